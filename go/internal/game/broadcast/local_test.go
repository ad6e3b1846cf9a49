package broadcast_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/broadcast"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/events"
)

type recorder struct {
	mu   sync.Mutex
	envs []events.Envelope
}

func (r *recorder) handle(_ context.Context, env events.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envs = append(r.envs, env)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.envs)
}

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

func TestLocal(t *testing.T) {
	Convey("Given a local broadcaster", t, func() {
		ctx := context.Background()
		b := broadcast.NewLocal(clockwork.NewFakeClock(), 4, nil)
		defer b.Close()
		sessionID, other := uuid.New(), uuid.New()

		Convey("Session subscribers only see their session, wildcard subscribers see all", func() {
			mine, all := &recorder{}, &recorder{}
			_, err := b.Subscribe(sessionID, mine.handle)
			So(err, ShouldBeNil)
			_, err = b.Subscribe(broadcast.AllSessions, all.handle)
			So(err, ShouldBeNil)

			So(b.Publish(ctx, sessionID, events.TimeUp{QuestionIndex: 0}), ShouldBeNil)
			So(b.Publish(ctx, other, events.TimeUp{QuestionIndex: 0}), ShouldBeNil)

			So(eventually(func() bool { return all.count() == 2 }), ShouldBeTrue)
			So(mine.count(), ShouldEqual, 1)
		})

		Convey("Invalid events are rejected and never delivered", func() {
			r := &recorder{}
			_, _ = b.Subscribe(sessionID, r.handle)
			err := b.Publish(ctx, sessionID, events.QuestionChanged{QuestionIndex: -1})
			So(err, ShouldNotBeNil)
			time.Sleep(20 * time.Millisecond)
			So(r.count(), ShouldEqual, 0)
		})

		Convey("A stuck subscriber never blocks the publisher", func() {
			release := make(chan struct{})
			_, _ = b.Subscribe(sessionID, func(context.Context, events.Envelope) { <-release })

			done := make(chan struct{})
			go func() {
				for i := 0; i < 50; i++ {
					_ = b.Publish(ctx, sessionID, events.QuestionChanged{QuestionIndex: i})
				}
				close(done)
			}()
			So(eventually(func() bool {
				select {
				case <-done:
					return true
				default:
					return false
				}
			}), ShouldBeTrue)
			close(release)
		})

		Convey("Unsubscribed handlers stop receiving", func() {
			r := &recorder{}
			sub, _ := b.Subscribe(sessionID, r.handle)
			So(sub.Unsubscribe(), ShouldBeNil)
			So(sub.Unsubscribe(), ShouldBeNil)
			_ = b.Publish(ctx, sessionID, events.GameEnded{})
			time.Sleep(20 * time.Millisecond)
			So(r.count(), ShouldEqual, 0)
		})
	})
}
