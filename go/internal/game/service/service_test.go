package service_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/nmsdosti/newquiz.onlin2/go/internal/apperrors"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/auth"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/broadcast"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/service"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/session"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/models"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/store"
)

type harness struct {
	server *httptest.Server
	mgr    *session.Manager
	bus    *broadcast.Local
	jwt    *auth.JWTService
	quiz   models.Quiz
	id     uuid.UUID
	hostID uuid.UUID
	player models.Player
}

func newHarness() *harness {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	mem := store.NewMemory()
	h := &harness{id: uuid.New(), hostID: uuid.New()}

	h.quiz = models.Quiz{ID: uuid.New(), Title: "capitals"}
	for i := 0; i < 2; i++ {
		h.quiz.Questions = append(h.quiz.Questions, models.Question{
			ID:               uuid.New(),
			Text:             "capital?",
			TimeLimitSeconds: 20,
			Options: []models.Option{
				{ID: uuid.New(), Text: "Lisbon", IsCorrect: true},
				{ID: uuid.New(), Text: "Porto"},
			},
		})
	}
	So(mem.AddQuiz(h.quiz), ShouldBeNil)
	So(mem.CreateSession(ctx, &models.GameSession{
		ID: h.id, QuizID: h.quiz.ID, HostID: h.hostID, PIN: "104822", Status: models.SessionStatusLobby,
	}), ShouldBeNil)
	h.player = models.Player{ID: uuid.New(), SessionID: h.id, DisplayName: "ana", JoinedAt: clock.Now()}
	mem.AddPlayer(h.player)

	h.bus = broadcast.NewLocal(clock, 16, nil)
	h.mgr = session.NewManager(mem, h.bus, clock, nil, session.DefaultConfig())

	var err error
	h.jwt, err = auth.NewJWTService("test-secret", time.Hour, "quizd", nil)
	So(err, ShouldBeNil)

	mux := http.NewServeMux()
	mux.Handle(service.NewHostServiceHandler(
		service.NewHostService(h.mgr),
		connect.WithInterceptors(auth.NewHostInterceptor(h.jwt)),
	))
	mux.Handle(service.NewPlayServiceHandler(service.NewPlayService(h.mgr)))
	h.server = httptest.NewServer(mux)
	return h
}

func (h *harness) close() {
	h.server.Close()
	h.mgr.Shutdown()
	_ = h.bus.Close()
}

func (h *harness) hostClient(hostID uuid.UUID) *service.HostClient {
	token, err := h.jwt.Issue(hostID)
	So(err, ShouldBeNil)
	return service.NewHostClient(h.server.Client(), h.server.URL,
		connect.WithInterceptors(auth.NewTokenInterceptor(token)))
}

func (h *harness) playClient() *service.PlayClient {
	return service.NewPlayClient(h.server.Client(), h.server.URL)
}

func reasonOf(err error) string {
	var cerr *connect.Error
	if errors.As(err, &cerr) {
		return cerr.Meta().Get(service.ReasonHeader)
	}
	return ""
}

func TestHostService(t *testing.T) {
	Convey("Given a quiz service", t, func() {
		h := newHarness()
		defer h.close()
		ctx := context.Background()
		req := connect.NewRequest(&service.SessionRequest{SessionID: h.id})

		Convey("Calls without a token are unauthenticated", func() {
			client := service.NewHostClient(h.server.Client(), h.server.URL)
			_, err := client.StartGame(ctx, req)
			So(connect.CodeOf(err), ShouldEqual, connect.CodeUnauthenticated)
		})

		Convey("Another host may not drive the session", func() {
			_, err := h.hostClient(uuid.New()).StartGame(ctx, req)
			So(connect.CodeOf(err), ShouldEqual, connect.CodePermissionDenied)
		})

		Convey("The owning host starts the game", func() {
			client := h.hostClient(h.hostID)
			res, err := client.StartGame(ctx, req)
			So(err, ShouldBeNil)
			So(res.Msg.Session.Phase, ShouldEqual, session.PhaseQuestionActive)
			So(*res.Msg.Session.QuestionIndex, ShouldEqual, 0)
			So(res.Msg.Session.RemainingSeconds, ShouldEqual, 20)

			Convey("Starting again is a failed precondition", func() {
				_, err := client.StartGame(ctx, req)
				So(connect.CodeOf(err), ShouldEqual, connect.CodeFailedPrecondition)
			})

			Convey("The summary is unavailable until the game ends", func() {
				_, err := client.GetSummary(ctx, req)
				So(connect.CodeOf(err), ShouldEqual, connect.CodeFailedPrecondition)

				res, err := client.EndGame(ctx, req)
				So(err, ShouldBeNil)
				So(res.Msg.Session.Phase, ShouldEqual, session.PhaseCompleted)

				report, err := client.GetSummary(ctx, req)
				So(err, ShouldBeNil)
				So(report.Msg.SessionID, ShouldEqual, h.id)
				So(report.Msg.TotalQuestions, ShouldEqual, 2)
			})
		})

		Convey("An unknown session is not found", func() {
			_, err := h.hostClient(h.hostID).Advance(ctx, connect.NewRequest(&service.SessionRequest{SessionID: uuid.New()}))
			So(connect.CodeOf(err), ShouldEqual, connect.CodeNotFound)
		})

		Convey("A missing session id is an invalid argument", func() {
			_, err := h.hostClient(h.hostID).CloseQuestion(ctx, connect.NewRequest(&service.SessionRequest{}))
			So(connect.CodeOf(err), ShouldEqual, connect.CodeInvalidArgument)
		})
	})
}

func TestPlayService(t *testing.T) {
	Convey("Given a started session", t, func() {
		h := newHarness()
		defer h.close()
		ctx := context.Background()
		_, err := h.hostClient(h.hostID).StartGame(ctx, connect.NewRequest(&service.SessionRequest{SessionID: h.id}))
		So(err, ShouldBeNil)
		play := h.playClient()
		answer := &service.SubmitAnswerRequest{
			SessionID:     h.id,
			PlayerID:      h.player.ID,
			QuestionIndex: 0,
			OptionID:      h.quiz.Questions[0].Options[0].ID,
		}

		Convey("An answer is accepted once", func() {
			res, err := play.SubmitAnswer(ctx, connect.NewRequest(answer))
			So(err, ShouldBeNil)
			So(res.Msg.AnswerID, ShouldNotEqual, uuid.Nil)
			So(res.Msg.QuestionIndex, ShouldEqual, 0)

			_, err = play.SubmitAnswer(ctx, connect.NewRequest(answer))
			So(connect.CodeOf(err), ShouldEqual, connect.CodeInvalidArgument)
			So(reasonOf(err), ShouldEqual, string(apperrors.ReasonDuplicate))

			Convey("and shows up in the tally", func() {
				tally, err := play.GetTally(ctx, connect.NewRequest(&service.GetTallyRequest{SessionID: h.id}))
				So(err, ShouldBeNil)
				So(tally.Msg.Tally.Tally.Total, ShouldEqual, 1)
				So(tally.Msg.Tally.Shares[0].Percent, ShouldEqual, 100)
				So(tally.Msg.Tally.Live, ShouldBeTrue)
			})

			Convey("and in the leaderboard", func() {
				board, err := play.GetLeaderboard(ctx, connect.NewRequest(&service.SessionRequest{SessionID: h.id}))
				So(err, ShouldBeNil)
				So(len(board.Msg.Entries), ShouldEqual, 1)
				So(board.Msg.Entries[0].Score, ShouldEqual, 100)
			})
		})

		Convey("An answer for an unknown session is rejected", func() {
			bad := *answer
			bad.SessionID = uuid.New()
			_, err := play.SubmitAnswer(ctx, connect.NewRequest(&bad))
			So(connect.CodeOf(err), ShouldEqual, connect.CodeInvalidArgument)
			So(reasonOf(err), ShouldEqual, string(apperrors.ReasonUnknownSession))
		})

		Convey("An answer for an unknown option is rejected", func() {
			bad := *answer
			bad.OptionID = uuid.New()
			_, err := play.SubmitAnswer(ctx, connect.NewRequest(&bad))
			So(reasonOf(err), ShouldEqual, string(apperrors.ReasonUnknownOption))
		})

		Convey("State is served by id and by PIN", func() {
			byID, err := play.GetState(ctx, connect.NewRequest(&service.GetStateRequest{SessionID: h.id}))
			So(err, ShouldBeNil)
			So(byID.Msg.State.Phase, ShouldEqual, session.PhaseQuestionActive)

			byPIN, err := play.GetState(ctx, connect.NewRequest(&service.GetStateRequest{PIN: "104822"}))
			So(err, ShouldBeNil)
			So(byPIN.Msg.State.SessionID, ShouldEqual, h.id)

			_, err = play.GetState(ctx, connect.NewRequest(&service.GetStateRequest{}))
			So(connect.CodeOf(err), ShouldEqual, connect.CodeInvalidArgument)
		})
	})
}

func TestCodeOf(t *testing.T) {
	Convey("Domain errors map onto connect codes", t, func() {
		So(service.CodeOf(apperrors.NewValidationError(apperrors.ReasonInvalid, "x")), ShouldEqual, connect.CodeInvalidArgument)
		So(service.CodeOf(apperrors.NewStateError("advance", "lobby", "x")), ShouldEqual, connect.CodeFailedPrecondition)
		So(service.CodeOf(apperrors.NewNotFoundError("session", "1")), ShouldEqual, connect.CodeNotFound)
		So(service.CodeOf(apperrors.NewAuthorizationError("x")), ShouldEqual, connect.CodePermissionDenied)
		So(service.CodeOf(apperrors.NewTransportError("read", errors.New("down"))), ShouldEqual, connect.CodeUnavailable)
		So(service.CodeOf(errors.New("boom")), ShouldEqual, connect.CodeInternal)
	})
}
