package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/nmsdosti/newquiz.onlin2/go/internal/models"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/store"
)

func TestMemoryAnswers(t *testing.T) {
	Convey("Given a memory store", t, func() {
		ctx := context.Background()
		m := store.NewMemory()
		sessionID, playerID := uuid.New(), uuid.New()
		answer := func(q int) *models.AnswerEvent {
			return &models.AnswerEvent{
				ID:            uuid.New(),
				SessionID:     sessionID,
				PlayerID:      playerID,
				QuestionIndex: q,
				OptionID:      uuid.New(),
				SubmittedAt:   time.Now(),
			}
		}

		Convey("The second answer for the same question is a duplicate", func() {
			So(m.InsertAnswer(ctx, answer(0)), ShouldBeNil)
			err := m.InsertAnswer(ctx, answer(0))
			So(errors.Is(err, store.ErrDuplicateAnswer), ShouldBeTrue)

			So(m.InsertAnswer(ctx, answer(1)), ShouldBeNil)
			all, err := m.ListAnswers(ctx, sessionID, nil)
			So(err, ShouldBeNil)
			So(all, ShouldHaveLength, 2)

			idx := 1
			scoped, err := m.ListAnswers(ctx, sessionID, &idx)
			So(err, ShouldBeNil)
			So(scoped, ShouldHaveLength, 1)
		})

		Convey("Concurrent inserts for one triple accept exactly one", func() {
			var wg sync.WaitGroup
			var mu sync.Mutex
			accepted := 0
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if m.InsertAnswer(ctx, answer(0)) == nil {
						mu.Lock()
						accepted++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			So(accepted, ShouldEqual, 1)
		})
	})
}

func TestMemorySessions(t *testing.T) {
	Convey("Given a stored lobby session", t, func() {
		ctx := context.Background()
		m := store.NewMemory()
		s := &models.GameSession{ID: uuid.New(), PIN: "123456", Status: models.SessionStatusLobby}
		So(m.CreateSession(ctx, s), ShouldBeNil)

		Convey("An update conditioned on the current state applies", func() {
			expect := store.ExpectationOf(*s)
			idx := 0
			next := s.Clone()
			next.Status = models.SessionStatusActive
			next.CurrentQuestionIndex = &idx
			So(m.UpdateSession(ctx, &next, expect), ShouldBeNil)

			Convey("and replaying the same transition conflicts", func() {
				err := m.UpdateSession(ctx, &next, expect)
				So(errors.Is(err, store.ErrConflict), ShouldBeTrue)
			})

			got, err := m.GetSession(ctx, s.ID)
			So(err, ShouldBeNil)
			So(got.Status, ShouldEqual, models.SessionStatusActive)

			active, err := m.ListActiveSessions(ctx)
			So(err, ShouldBeNil)
			So(active, ShouldHaveLength, 1)
		})

		Convey("Lookup by pin finds it", func() {
			got, err := m.GetSessionByPIN(ctx, "123456")
			So(err, ShouldBeNil)
			So(got.ID, ShouldEqual, s.ID)

			_, err = m.GetSessionByPIN(ctx, "000000")
			So(errors.Is(err, store.ErrNotFound), ShouldBeTrue)
		})

		Convey("A summary can be stored and read back", func() {
			So(m.SaveSummary(ctx, s.ID, []byte(`{"total_players":0}`)), ShouldBeNil)
			b, err := m.GetSummary(ctx, s.ID)
			So(err, ShouldBeNil)
			So(string(b), ShouldEqual, `{"total_players":0}`)
		})
	})
}
