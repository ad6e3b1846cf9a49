package service

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/scoring"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/session"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/tally"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/models"
)

const (
	PlayServiceName = "quiz.v1.PlayService"

	PlayServiceSubmitAnswerProcedure   = "/quiz.v1.PlayService/SubmitAnswer"
	PlayServiceGetTallyProcedure       = "/quiz.v1.PlayService/GetTally"
	PlayServiceGetLeaderboardProcedure = "/quiz.v1.PlayService/GetLeaderboard"
	PlayServiceGetStateProcedure       = "/quiz.v1.PlayService/GetState"
)

// PlaySessions is what the participant service needs from the session
// manager.
type PlaySessions interface {
	SubmitAnswer(ctx context.Context, sub tally.Submission) (*models.AnswerEvent, error)
	Tally(ctx context.Context, sessionID uuid.UUID, questionIndex *int) (*session.TallyView, error)
	Leaderboard(ctx context.Context, sessionID uuid.UUID) ([]scoring.Entry, error)
	State(ctx context.Context, sessionID uuid.UUID) (*session.State, error)
	StateByPIN(ctx context.Context, pin string) (*session.State, error)
}

// PlayService implements the participant surface
type PlayService struct {
	sessions PlaySessions
}

func NewPlayService(sessions PlaySessions) *PlayService {
	return &PlayService{sessions: sessions}
}

// SubmitAnswer records one answer for the active question
func (s *PlayService) SubmitAnswer(ctx context.Context, req *connect.Request[SubmitAnswerRequest]) (*connect.Response[SubmitAnswerResponse], error) {
	if err := check(req.Msg); err != nil {
		return nil, toConnectError(err)
	}
	ev, err := s.sessions.SubmitAnswer(ctx, tally.Submission{
		SessionID:     req.Msg.SessionID,
		PlayerID:      req.Msg.PlayerID,
		QuestionIndex: req.Msg.QuestionIndex,
		OptionID:      req.Msg.OptionID,
	})
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&SubmitAnswerResponse{
		AnswerID:         ev.ID,
		QuestionIndex:    ev.QuestionIndex,
		TimeTakenSeconds: ev.TimeTakenSeconds,
		SubmittedAt:      ev.SubmittedAt,
	}), nil
}

// GetTally returns the tally of a question, the current one when no index
// is given
func (s *PlayService) GetTally(ctx context.Context, req *connect.Request[GetTallyRequest]) (*connect.Response[GetTallyResponse], error) {
	if err := check(req.Msg); err != nil {
		return nil, toConnectError(err)
	}
	view, err := s.sessions.Tally(ctx, req.Msg.SessionID, req.Msg.QuestionIndex)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&GetTallyResponse{Tally: *view}), nil
}

func (s *PlayService) GetLeaderboard(ctx context.Context, req *connect.Request[SessionRequest]) (*connect.Response[GetLeaderboardResponse], error) {
	if err := check(req.Msg); err != nil {
		return nil, toConnectError(err)
	}
	entries, err := s.sessions.Leaderboard(ctx, req.Msg.SessionID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&GetLeaderboardResponse{SessionID: req.Msg.SessionID, Entries: entries}), nil
}

// GetState is the re-pull target named by every broadcast hint
func (s *PlayService) GetState(ctx context.Context, req *connect.Request[GetStateRequest]) (*connect.Response[GetStateResponse], error) {
	if err := check(req.Msg); err != nil {
		return nil, toConnectError(err)
	}
	var (
		state *session.State
		err   error
	)
	if req.Msg.SessionID != uuid.Nil {
		state, err = s.sessions.State(ctx, req.Msg.SessionID)
	} else {
		state, err = s.sessions.StateByPIN(ctx, req.Msg.PIN)
	}
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&GetStateResponse{State: *state}), nil
}

// NewPlayServiceHandler builds an HTTP handler for the participant service
// and returns the path to mount it on.
func NewPlayServiceHandler(svc *PlayService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)
	submitAnswer := connect.NewUnaryHandler(PlayServiceSubmitAnswerProcedure, svc.SubmitAnswer, opts...)
	getTally := connect.NewUnaryHandler(PlayServiceGetTallyProcedure, svc.GetTally, opts...)
	getLeaderboard := connect.NewUnaryHandler(PlayServiceGetLeaderboardProcedure, svc.GetLeaderboard, opts...)
	getState := connect.NewUnaryHandler(PlayServiceGetStateProcedure, svc.GetState, opts...)

	return "/" + PlayServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case PlayServiceSubmitAnswerProcedure:
			submitAnswer.ServeHTTP(w, r)
		case PlayServiceGetTallyProcedure:
			getTally.ServeHTTP(w, r)
		case PlayServiceGetLeaderboardProcedure:
			getLeaderboard.ServeHTTP(w, r)
		case PlayServiceGetStateProcedure:
			getState.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// PlayClient calls the participant service.
type PlayClient struct {
	submitAnswer   *connect.Client[SubmitAnswerRequest, SubmitAnswerResponse]
	getTally       *connect.Client[GetTallyRequest, GetTallyResponse]
	getLeaderboard *connect.Client[SessionRequest, GetLeaderboardResponse]
	getState       *connect.Client[GetStateRequest, GetStateResponse]
}

func NewPlayClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *PlayClient {
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
	return &PlayClient{
		submitAnswer:   connect.NewClient[SubmitAnswerRequest, SubmitAnswerResponse](httpClient, baseURL+PlayServiceSubmitAnswerProcedure, opts...),
		getTally:       connect.NewClient[GetTallyRequest, GetTallyResponse](httpClient, baseURL+PlayServiceGetTallyProcedure, opts...),
		getLeaderboard: connect.NewClient[SessionRequest, GetLeaderboardResponse](httpClient, baseURL+PlayServiceGetLeaderboardProcedure, opts...),
		getState:       connect.NewClient[GetStateRequest, GetStateResponse](httpClient, baseURL+PlayServiceGetStateProcedure, opts...),
	}
}

func (c *PlayClient) SubmitAnswer(ctx context.Context, req *connect.Request[SubmitAnswerRequest]) (*connect.Response[SubmitAnswerResponse], error) {
	return c.submitAnswer.CallUnary(ctx, req)
}

func (c *PlayClient) GetTally(ctx context.Context, req *connect.Request[GetTallyRequest]) (*connect.Response[GetTallyResponse], error) {
	return c.getTally.CallUnary(ctx, req)
}

func (c *PlayClient) GetLeaderboard(ctx context.Context, req *connect.Request[SessionRequest]) (*connect.Response[GetLeaderboardResponse], error) {
	return c.getLeaderboard.CallUnary(ctx, req)
}

func (c *PlayClient) GetState(ctx context.Context, req *connect.Request[GetStateRequest]) (*connect.Response[GetStateResponse], error) {
	return c.getState.CallUnary(ctx, req)
}
