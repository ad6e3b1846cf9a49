package reconcile_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/reconcile"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/tally"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/models"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/store"
)

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func quiz() models.Quiz {
	q := models.Question{ID: uuid.New(), Text: "q", TimeLimitSeconds: 30}
	for i := 0; i < 3; i++ {
		q.Options = append(q.Options, models.Option{ID: uuid.New(), Text: "o", IsCorrect: i == 0})
	}
	return models.Quiz{ID: uuid.New(), Title: "t", Questions: []models.Question{q}}
}

func TestLoopConverges(t *testing.T) {
	Convey("Given a live tally missing answers that are in the log", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		clock := clockwork.NewFakeClock()
		mem := store.NewMemory()
		qz := quiz()
		sessionID := uuid.New()
		agg := tally.NewAggregator(sessionID, &qz, mem, clock, nil)
		So(agg.Reset(0, clock.Now()), ShouldBeNil)

		inject := func(option int) {
			So(mem.InsertAnswer(ctx, &models.AnswerEvent{
				ID: uuid.New(), SessionID: sessionID, PlayerID: uuid.New(), QuestionIndex: 0,
				OptionID: qz.Questions[0].Options[option].ID, SubmittedAt: clock.Now(),
			}), ShouldBeNil)
		}
		total := func() int {
			live, _ := agg.Live()
			return live.Total
		}

		var active atomic.Bool
		active.Store(true)
		live := func() (int, bool) { return 0, active.Load() }

		inject(1)
		loop := reconcile.New(sessionID, 0, agg, live, clock, reconcile.Config{Interval: 2 * time.Second}, nil)
		done := make(chan struct{})
		go func() {
			loop.Run(ctx)
			close(done)
		}()

		Convey("The first pass runs immediately", func() {
			So(eventually(func() bool { return total() == 1 }), ShouldBeTrue)

			Convey("A nudge triggers an early pass", func() {
				inject(2)
				loop.Nudge()
				So(eventually(func() bool { return total() == 2 }), ShouldBeTrue)
			})

			Convey("The interval tick triggers a pass", func() {
				inject(0)
				clock.Advance(2 * time.Second)
				So(eventually(func() bool { return total() == 2 }), ShouldBeTrue)
			})

			Convey("It stops once its question is no longer active", func() {
				active.Store(false)
				loop.Nudge()
				So(eventually(func() bool {
					select {
					case <-done:
						return true
					default:
						return false
					}
				}), ShouldBeTrue)
			})

			Convey("It stops when cancelled", func() {
				cancel()
				So(eventually(func() bool {
					select {
					case <-done:
						return true
					default:
						return false
					}
				}), ShouldBeTrue)
			})
		})
	})
}

type flakyTarget struct {
	mu       sync.Mutex
	failures int
	calls    int
	applied  int
}

func (f *flakyTarget) Version() uint64 { return 0 }

func (f *flakyTarget) Authoritative(context.Context, int) (tally.Tally, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return tally.Tally{}, errors.New("connection refused")
	}
	return tally.Tally{Counts: map[uuid.UUID]int{}}, nil
}

func (f *flakyTarget) Replace(tally.Tally, uint64) (bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied++
	return true, false
}

func (f *flakyTarget) Reconcile(context.Context, int) (bool, error) { return false, nil }

func (f *flakyTarget) appliedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.applied
}

func TestLoopRetries(t *testing.T) {
	Convey("Given a store that fails the first read", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		clock := clockwork.NewFakeClock()
		target := &flakyTarget{failures: 1}
		loop := reconcile.New(uuid.New(), 0, target, func() (int, bool) { return 0, true }, clock,
			reconcile.Config{Interval: time.Minute, MaxRetries: 2, RetryDelay: 100 * time.Millisecond}, nil)

		So(loop.Pass(ctx), ShouldNotBeNil)
		So(target.appliedCount(), ShouldEqual, 0)

		Convey("The next attempt after the backoff succeeds", func() {
			target.failures = 2
			go loop.Run(ctx)

			// ticker plus the backoff wait
			waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
			defer waitCancel()
			So(clock.BlockUntilContext(waitCtx, 2), ShouldBeNil)
			clock.Advance(100 * time.Millisecond)
			So(eventually(func() bool { return target.appliedCount() == 1 }), ShouldBeTrue)
		})
	})
}

// busyTarget refuses lock-free replaces until refusals of them were made, as
// when answers keep arriving between the read and the replace.
type busyTarget struct {
	mu         sync.Mutex
	refusals   int
	replaces   int
	reconciles int
}

func (b *busyTarget) Version() uint64 { return 0 }

func (b *busyTarget) Authoritative(context.Context, int) (tally.Tally, error) {
	return tally.Tally{Counts: map[uuid.UUID]int{}}, nil
}

func (b *busyTarget) Replace(tally.Tally, uint64) (bool, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replaces++
	return b.replaces > b.refusals, false
}

func (b *busyTarget) Reconcile(context.Context, int) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reconciles++
	return true, nil
}

func TestPassUnderLoad(t *testing.T) {
	Convey("Given live counters that move during a pass", t, func() {
		ctx := context.Background()
		clock := clockwork.NewFakeClock()
		active := func() (int, bool) { return 0, true }

		Convey("A replace that succeeds on a retry never takes the lock", func() {
			target := &busyTarget{refusals: 2}
			loop := reconcile.New(uuid.New(), 0, target, active, clock, reconcile.DefaultConfig(), nil)
			So(loop.Pass(ctx), ShouldBeNil)
			So(target.replaces, ShouldEqual, 3)
			So(target.reconciles, ShouldEqual, 0)
		})

		Convey("Counters that never settle fall back to the locked read", func() {
			target := &busyTarget{refusals: 100}
			loop := reconcile.New(uuid.New(), 0, target, active, clock, reconcile.DefaultConfig(), nil)
			So(loop.Pass(ctx), ShouldBeNil)
			So(target.replaces, ShouldEqual, 3)
			So(target.reconciles, ShouldEqual, 1)
		})
	})
}
