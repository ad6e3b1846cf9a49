package gateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/nmsdosti/newquiz.onlin2/go/internal/apperrors"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/analytics"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/broadcast"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/events"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/gateway"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/scoring"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/session"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/models"
)

type fakeProvider struct {
	known uuid.UUID
}

func (p *fakeProvider) State(_ context.Context, id uuid.UUID) (*session.State, error) {
	if id != p.known {
		return nil, apperrors.NewNotFoundError("session", id.String())
	}
	idx := 2
	return &session.State{Snapshot: session.Snapshot{
		SessionID: id, Status: models.SessionStatusActive, Phase: session.PhaseQuestionActive,
		QuestionIndex: &idx, RemainingSeconds: 14,
	}}, nil
}

func (p *fakeProvider) StateByPIN(ctx context.Context, pin string) (*session.State, error) {
	if pin != "123456" {
		return nil, apperrors.NewNotFoundError("session", pin)
	}
	return p.State(ctx, p.known)
}

func (p *fakeProvider) Leaderboard(_ context.Context, id uuid.UUID) ([]scoring.Entry, error) {
	return []scoring.Entry{{Rank: 1, PlayerID: uuid.New(), DisplayName: "ana", Score: 300}}, nil
}

func (p *fakeProvider) Summary(_ context.Context, id uuid.UUID) (*analytics.Report, error) {
	return nil, apperrors.NewStateError("summary", "question_active", "session %s is not completed", id)
}

// redeliveringBus hands every envelope to its subscribers twice, as
// JetStream does when an ack is lost.
type redeliveringBus struct {
	*broadcast.Local
}

func (b redeliveringBus) Subscribe(sessionID uuid.UUID, h broadcast.Handler) (broadcast.Subscription, error) {
	return b.Local.Subscribe(sessionID, func(ctx context.Context, env events.Envelope) {
		h(ctx, env)
		h(ctx, env)
	})
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

func TestStateRoutes(t *testing.T) {
	Convey("Given the state routes", t, func() {
		provider := &fakeProvider{known: uuid.New()}
		bus := broadcast.NewLocal(clockwork.NewFakeClock(), 8, nil)
		defer bus.Close()
		svc := gateway.NewService(gateway.DefaultConfig(), provider, bus)
		mux := http.NewServeMux()
		svc.RegisterRoutes(mux)
		srv := httptest.NewServer(mux)
		defer srv.Close()

		get := func(path string) *http.Response {
			resp, err := http.Get(srv.URL + path)
			So(err, ShouldBeNil)
			return resp
		}

		Convey("The state of a known session is returned as JSON", func() {
			resp := get("/api/sessions/" + provider.known.String() + "/state")
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			var st session.State
			So(json.NewDecoder(resp.Body).Decode(&st), ShouldBeNil)
			So(st.SessionID, ShouldEqual, provider.known)
			So(*st.QuestionIndex, ShouldEqual, 2)
			So(st.RemainingSeconds, ShouldEqual, 14)
		})

		Convey("A PIN resolves to the same state", func() {
			resp := get("/api/pins/123456")
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
		})

		Convey("The leaderboard is wrapped with its session", func() {
			resp := get("/api/sessions/" + provider.known.String() + "/leaderboard")
			defer resp.Body.Close()
			var lb gateway.LeaderboardResponse
			So(json.NewDecoder(resp.Body).Decode(&lb), ShouldBeNil)
			So(lb.Entries, ShouldHaveLength, 1)
			So(lb.Entries[0].Score, ShouldEqual, 300)
		})

		Convey("Errors map to HTTP statuses", func() {
			resp := get("/api/sessions/" + uuid.NewString() + "/state")
			resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)

			resp = get("/api/sessions/not-a-uuid/state")
			resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)

			resp = get("/api/sessions/" + provider.known.String() + "/summary")
			resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusConflict)
		})
	})
}

func TestWebSocketRelay(t *testing.T) {
	Convey("Given an observer connected to a session", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		clock := clockwork.NewFakeClock()
		bus := broadcast.NewLocal(clock, 16, nil)
		defer bus.Close()
		sessionID := uuid.New()

		svc := gateway.NewService(gateway.DefaultConfig(), &fakeProvider{known: sessionID}, redeliveringBus{bus})
		So(svc.Start(ctx), ShouldBeNil)
		mux := http.NewServeMux()
		svc.RegisterRoutes(mux)
		srv := httptest.NewServer(mux)
		defer srv.Close()

		wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/session?session_id=" + sessionID.String()
		dial := func() *websocket.Conn {
			c, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
			So(err, ShouldBeNil)
			return c
		}
		conn := dial()
		defer func() { conn.Close() }()
		So(eventually(func() bool { return svc.Stats().TotalConnections == 1 }), ShouldBeTrue)

		read := func() events.Envelope {
			conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			var env events.Envelope
			So(conn.ReadJSON(&env), ShouldBeNil)
			return env
		}

		Convey("Published events reach the observer", func() {
			So(bus.Publish(ctx, sessionID, events.TimeUp{QuestionIndex: 0}), ShouldBeNil)
			env := read()
			So(env.Type, ShouldEqual, events.TypeTimeUp)
			So(env.SessionID, ShouldEqual, sessionID)
		})

		Convey("A redelivered envelope is relayed once", func() {
			So(bus.Publish(ctx, sessionID, events.QuestionChanged{QuestionIndex: 1}), ShouldBeNil)
			So(bus.Publish(ctx, sessionID, events.TimeUp{QuestionIndex: 1}), ShouldBeNil)

			first := read()
			So(first.Type, ShouldEqual, events.TypeQuestionChanged)
			second := read()
			So(second.Type, ShouldEqual, events.TypeTimeUp)
			So(second.ID, ShouldNotEqual, first.ID)
		})

		Convey("A session's question mark is dropped when its last observer leaves", func() {
			So(bus.Publish(ctx, sessionID, events.QuestionChanged{QuestionIndex: 3}), ShouldBeNil)
			So(read().Type, ShouldEqual, events.TypeQuestionChanged)

			conn.Close()
			So(eventually(func() bool { return svc.Stats().TotalConnections == 0 }), ShouldBeTrue)
			conn = dial()
			So(eventually(func() bool { return svc.Stats().TotalConnections == 1 }), ShouldBeTrue)

			So(bus.Publish(ctx, sessionID, events.TimeUp{QuestionIndex: 1}), ShouldBeNil)
			env := read()
			So(env.Type, ShouldEqual, events.TypeTimeUp)
		})

		Convey("Other sessions' events are not relayed", func() {
			So(bus.Publish(ctx, uuid.New(), events.GameEnded{}), ShouldBeNil)
			So(bus.Publish(ctx, sessionID, events.GameEnded{}), ShouldBeNil)
			env := read()
			So(env.SessionID, ShouldEqual, sessionID)
		})
	})
}
