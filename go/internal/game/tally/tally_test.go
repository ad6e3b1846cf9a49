package tally_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/nmsdosti/newquiz.onlin2/go/internal/apperrors"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/tally"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/models"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/store"
)

func fixtureQuiz() models.Quiz {
	quiz := models.Quiz{ID: uuid.New(), Title: "fixture"}
	for i := 0; i < 2; i++ {
		q := models.Question{ID: uuid.New(), Text: fmt.Sprintf("q%d", i), TimeLimitSeconds: 30}
		for j, label := range []string{"A", "B", "C", "D"} {
			q.Options = append(q.Options, models.Option{ID: uuid.New(), Text: label, IsCorrect: j == 0})
		}
		quiz.Questions = append(quiz.Questions, q)
	}
	return quiz
}

type fixture struct {
	ctx       context.Context
	clock     *clockwork.FakeClock
	store     *store.Memory
	quiz      models.Quiz
	sessionID uuid.UUID
	agg       *tally.Aggregator
	start     time.Time
}

func newFixture(players int) (*fixture, []uuid.UUID) {
	f := &fixture{
		ctx:       context.Background(),
		clock:     clockwork.NewFakeClock(),
		store:     store.NewMemory(),
		quiz:      fixtureQuiz(),
		sessionID: uuid.New(),
	}
	So(f.store.AddQuiz(f.quiz), ShouldBeNil)
	ids := make([]uuid.UUID, players)
	for i := range ids {
		ids[i] = uuid.New()
		f.store.AddPlayer(models.Player{ID: ids[i], SessionID: f.sessionID, DisplayName: fmt.Sprintf("p%d", i)})
	}
	f.agg = tally.NewAggregator(f.sessionID, &f.quiz, f.store, f.clock, nil)
	f.start = f.clock.Now()
	So(f.agg.Reset(0, f.start), ShouldBeNil)
	return f, ids
}

func (f *fixture) option(q, o int) uuid.UUID { return f.quiz.Questions[q].Options[o].ID }

func (f *fixture) submit(player uuid.UUID, q, o int, after time.Duration) (*models.AnswerEvent, error) {
	return f.agg.Submit(f.ctx, tally.Submission{
		SessionID:     f.sessionID,
		PlayerID:      player,
		QuestionIndex: q,
		OptionID:      f.option(q, o),
		SubmittedAt:   f.start.Add(after),
	})
}

func TestAggregatorScenarios(t *testing.T) {
	Convey("Given three players answering question 0", t, func() {
		f, players := newFixture(3)

		Convey("Counts, percentages and correctness follow the accepted answers", func() {
			ev, err := f.submit(players[0], 0, 0, 5*time.Second)
			So(err, ShouldBeNil)
			So(ev.IsCorrect, ShouldBeTrue)
			So(ev.TimeTakenSeconds, ShouldEqual, 5.0)
			_, err = f.submit(players[1], 0, 0, 8*time.Second)
			So(err, ShouldBeNil)
			ev, err = f.submit(players[2], 0, 1, 10*time.Second)
			So(err, ShouldBeNil)
			So(ev.IsCorrect, ShouldBeFalse)

			live, ok := f.agg.Live()
			So(ok, ShouldBeTrue)
			So(live.Total, ShouldEqual, 3)
			So(live.Counts[f.option(0, 0)], ShouldEqual, 2)
			So(live.Counts[f.option(0, 1)], ShouldEqual, 1)

			shares := tally.Percentages(live, f.quiz.Questions[0].OptionIDs())
			So(shares[0].Percent, ShouldEqual, 67)
			So(shares[1].Percent, ShouldEqual, 33)
			So(shares[2].Percent, ShouldEqual, 0)
			So(shares[3].Percent, ShouldEqual, 0)
		})

		Convey("A second answer from the same player is rejected and changes nothing", func() {
			_, err := f.submit(players[0], 0, 0, time.Second)
			So(err, ShouldBeNil)
			_, err = f.submit(players[0], 0, 1, 2*time.Second)
			So(apperrors.ReasonOf(err), ShouldEqual, apperrors.ReasonDuplicate)

			live, _ := f.agg.Live()
			So(live.Total, ShouldEqual, 1)
			So(live.Counts[f.option(0, 1)], ShouldEqual, 0)
		})

		Convey("Answers after the question is frozen are rejected", func() {
			So(f.agg.Freeze(0), ShouldBeTrue)
			So(f.agg.Freeze(0), ShouldBeFalse)
			_, err := f.submit(players[0], 0, 0, 31*time.Second)
			So(apperrors.ReasonOf(err), ShouldEqual, apperrors.ReasonQuestionClosed)
		})

		Convey("Answers for another question index are stale", func() {
			_, err := f.submit(players[0], 1, 0, time.Second)
			So(apperrors.ReasonOf(err), ShouldEqual, apperrors.ReasonStaleQuestion)
		})

		Convey("Options of another question are unknown", func() {
			_, err := f.agg.Submit(f.ctx, tally.Submission{
				SessionID: f.sessionID, PlayerID: players[0], QuestionIndex: 0, OptionID: f.option(1, 0),
			})
			So(apperrors.ReasonOf(err), ShouldEqual, apperrors.ReasonUnknownOption)
		})

		Convey("Players of other sessions are rejected", func() {
			stranger := uuid.New()
			f.store.AddPlayer(models.Player{ID: stranger, SessionID: uuid.New()})
			_, err := f.submit(stranger, 0, 0, time.Second)
			So(apperrors.ReasonOf(err), ShouldEqual, apperrors.ReasonUnknownPlayer)
			_, err = f.submit(uuid.New(), 0, 0, time.Second)
			So(apperrors.ReasonOf(err), ShouldEqual, apperrors.ReasonUnknownPlayer)
		})

		Convey("Response times are clamped to the time limit", func() {
			ev, err := f.submit(players[0], 0, 0, 45*time.Second)
			So(err, ShouldBeNil)
			So(ev.TimeTakenSeconds, ShouldEqual, 30.0)
			ev, err = f.submit(players[1], 0, 0, -time.Second)
			So(err, ShouldBeNil)
			So(ev.TimeTakenSeconds, ShouldEqual, 0.0)
		})

		Convey("Reset scopes the tally to the next question", func() {
			_, _ = f.submit(players[0], 0, 0, time.Second)
			So(f.agg.Reset(1, f.start.Add(time.Minute)), ShouldBeNil)
			live, _ := f.agg.Live()
			So(live.QuestionIndex, ShouldEqual, 1)
			So(live.Total, ShouldEqual, 0)

			frozen, err := f.agg.Tally(f.ctx, 0)
			So(err, ShouldBeNil)
			So(frozen.Total, ShouldEqual, 1)
		})
	})
}

func TestAggregatorConcurrency(t *testing.T) {
	Convey("Given many concurrent submissions", t, func() {
		f, players := newFixture(200)

		Convey("Every distinct player is counted exactly once and rebuild matches live", func() {
			var wg sync.WaitGroup
			for i, p := range players {
				wg.Add(1)
				go func(i int, p uuid.UUID) {
					defer wg.Done()
					// Each player retries three times concurrently.
					for k := 0; k < 3; k++ {
						_, _ = f.submit(p, 0, i%4, time.Duration(i)*time.Millisecond)
					}
				}(i, p)
			}
			wg.Wait()

			live, _ := f.agg.Live()
			So(live.Total, ShouldEqual, 200)
			sum := 0
			for _, n := range live.Counts {
				sum += n
			}
			So(sum, ShouldEqual, live.Total)

			idx := 0
			evs, err := f.store.ListAnswers(f.ctx, f.sessionID, &idx)
			So(err, ShouldBeNil)
			So(evs, ShouldHaveLength, 200)
			rebuilt := tally.Rebuild(0, f.quiz.Questions[0].OptionIDs(), evs)
			So(rebuilt.Equal(live), ShouldBeTrue)
		})

		Convey("A single player racing with itself is accepted once", func() {
			var wg sync.WaitGroup
			var mu sync.Mutex
			accepted := 0
			for i := 0; i < 64; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					if _, err := f.submit(players[0], 0, i%4, time.Second); err == nil {
						mu.Lock()
						accepted++
						mu.Unlock()
					}
				}(i)
			}
			wg.Wait()
			So(accepted, ShouldEqual, 1)
			live, _ := f.agg.Live()
			So(live.Total, ShouldEqual, 1)
		})
	})
}

func TestReconcileApply(t *testing.T) {
	Convey("Given answers written to the log behind the aggregator's back", t, func() {
		f, players := newFixture(2)
		_, err := f.submit(players[0], 0, 0, time.Second)
		So(err, ShouldBeNil)
		So(f.store.InsertAnswer(f.ctx, &models.AnswerEvent{
			ID: uuid.New(), SessionID: f.sessionID, PlayerID: players[1], QuestionIndex: 0,
			OptionID: f.option(0, 2), SubmittedAt: f.start.Add(2 * time.Second),
		}), ShouldBeNil)

		Convey("Reconcile overwrites the live tally with the log", func() {
			drift, err := f.agg.Reconcile(f.ctx, 0)
			So(err, ShouldBeNil)
			So(drift, ShouldBeTrue)
			live, _ := f.agg.Live()
			So(live.Total, ShouldEqual, 2)
			So(live.Counts[f.option(0, 2)], ShouldEqual, 1)

			drift, err = f.agg.Reconcile(f.ctx, 0)
			So(err, ShouldBeNil)
			So(drift, ShouldBeFalse)
		})

		Convey("Replace is refused when live counters moved since the read", func() {
			v := f.agg.Version()
			auth, err := f.agg.Authoritative(f.ctx, 0)
			So(err, ShouldBeNil)
			applied, _ := f.agg.Replace(auth, v+1)
			So(applied, ShouldBeFalse)
			applied, drift := f.agg.Replace(auth, v)
			So(applied, ShouldBeTrue)
			So(drift, ShouldBeTrue)
		})
	})
}

// stalledStore never answers answer-log reads before the caller gives up.
type stalledStore struct {
	*store.Memory
}

func (s stalledStore) ListAnswers(ctx context.Context, _ uuid.UUID, _ *int) ([]models.AnswerEvent, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestReconcileStalledStore(t *testing.T) {
	Convey("Given an answer log that stops responding", t, func() {
		f, players := newFixture(1)
		agg := tally.NewAggregator(f.sessionID, &f.quiz, stalledStore{f.store}, f.clock, nil)
		So(agg.Reset(0, f.start), ShouldBeNil)

		Convey("A locked reconcile gives up and lets submissions through", func() {
			started := time.Now()
			errCh := make(chan error, 1)
			go func() {
				_, err := agg.Reconcile(context.Background(), 0)
				errCh <- err
			}()
			time.Sleep(20 * time.Millisecond)

			_, err := agg.Submit(f.ctx, tally.Submission{
				SessionID:     f.sessionID,
				PlayerID:      players[0],
				QuestionIndex: 0,
				OptionID:      f.option(0, 1),
				SubmittedAt:   f.start.Add(time.Second),
			})
			So(err, ShouldBeNil)
			So(time.Since(started) < 2*time.Second, ShouldBeTrue)
			So(errors.Is(<-errCh, context.DeadlineExceeded), ShouldBeTrue)

			live, _ := agg.Live()
			So(live.Total, ShouldEqual, 1)
		})
	})
}

func TestPercentages(t *testing.T) {
	Convey("A zero total yields zero for every option", t, func() {
		ids := []uuid.UUID{uuid.New(), uuid.New()}
		shares := tally.Percentages(tally.Empty(0, ids), ids)
		So(shares, ShouldHaveLength, 2)
		So(shares[0].Percent, ShouldEqual, 0)
		So(shares[1].Percent, ShouldEqual, 0)
	})

	Convey("Halves round away from zero", t, func() {
		ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()}
		tl := tally.Empty(0, ids)
		tl.Counts[ids[0]] = 1
		tl.Total = 8
		for _, id := range ids[1:] {
			tl.Counts[id] = 1
		}
		shares := tally.Percentages(tl, ids)
		So(shares[0].Percent, ShouldEqual, 13) // 12.5
	})

	Convey("Rebuild keeps only the earliest answer per player", t, func() {
		opt := []uuid.UUID{uuid.New(), uuid.New()}
		p := uuid.New()
		now := time.Now()
		evs := []models.AnswerEvent{
			{PlayerID: p, QuestionIndex: 0, OptionID: opt[1], SubmittedAt: now.Add(time.Second)},
			{PlayerID: p, QuestionIndex: 0, OptionID: opt[0], SubmittedAt: now},
			{PlayerID: uuid.New(), QuestionIndex: 1, OptionID: opt[0], SubmittedAt: now},
		}
		got := tally.Rebuild(0, opt, evs)
		So(got.Total, ShouldEqual, 1)
		So(got.Counts[opt[0]], ShouldEqual, 1)
	})
}
