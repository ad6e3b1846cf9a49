// Package service exposes the session engine over Connect RPC.
package service

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"github.com/nmsdosti/newquiz.onlin2/go/internal/auth"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/analytics"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/session"
)

const (
	HostServiceName = "quiz.v1.HostService"

	HostServiceStartGameProcedure     = "/quiz.v1.HostService/StartGame"
	HostServiceCloseQuestionProcedure = "/quiz.v1.HostService/CloseQuestion"
	HostServiceAdvanceProcedure       = "/quiz.v1.HostService/Advance"
	HostServiceEndGameProcedure       = "/quiz.v1.HostService/EndGame"
	HostServiceGetSummaryProcedure    = "/quiz.v1.HostService/GetSummary"
)

// HostSessions is what the host service needs from the session manager.
type HostSessions interface {
	StartGame(ctx context.Context, sessionID, hostID uuid.UUID) (*session.Result, error)
	CloseQuestion(ctx context.Context, sessionID, hostID uuid.UUID) (*session.Result, error)
	Advance(ctx context.Context, sessionID, hostID uuid.UUID) (*session.Result, error)
	EndGame(ctx context.Context, sessionID, hostID uuid.UUID) (*session.Result, error)
	Summary(ctx context.Context, sessionID uuid.UUID) (*analytics.Report, error)
}

// HostService implements the host command surface. Every call must carry a
// host token; see auth.NewHostInterceptor.
type HostService struct {
	sessions HostSessions
}

func NewHostService(sessions HostSessions) *HostService {
	return &HostService{sessions: sessions}
}

type hostCommand func(ctx context.Context, sessionID, hostID uuid.UUID) (*session.Result, error)

func (s *HostService) run(ctx context.Context, req *connect.Request[SessionRequest], cmd hostCommand) (*connect.Response[CommandResponse], error) {
	hostID, ok := auth.HostIDFromContext(ctx)
	if !ok {
		return nil, connect.NewError(connect.CodeUnauthenticated, errors.New("no host in request context"))
	}
	if err := check(req.Msg); err != nil {
		return nil, toConnectError(err)
	}
	res, err := cmd(ctx, req.Msg.SessionID, hostID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&CommandResponse{Session: res.Snapshot, Warnings: res.Warnings}), nil
}

// StartGame opens the first question of a session in the lobby
func (s *HostService) StartGame(ctx context.Context, req *connect.Request[SessionRequest]) (*connect.Response[CommandResponse], error) {
	return s.run(ctx, req, s.sessions.StartGame)
}

// CloseQuestion freezes answers for the active question
func (s *HostService) CloseQuestion(ctx context.Context, req *connect.Request[SessionRequest]) (*connect.Response[CommandResponse], error) {
	return s.run(ctx, req, s.sessions.CloseQuestion)
}

// Advance moves to the next question, or completes the session after the last
func (s *HostService) Advance(ctx context.Context, req *connect.Request[SessionRequest]) (*connect.Response[CommandResponse], error) {
	return s.run(ctx, req, s.sessions.Advance)
}

// EndGame completes the session from any live state
func (s *HostService) EndGame(ctx context.Context, req *connect.Request[SessionRequest]) (*connect.Response[CommandResponse], error) {
	return s.run(ctx, req, s.sessions.EndGame)
}

// GetSummary returns the analytics report of a completed session
func (s *HostService) GetSummary(ctx context.Context, req *connect.Request[SessionRequest]) (*connect.Response[analytics.Report], error) {
	if _, ok := auth.HostIDFromContext(ctx); !ok {
		return nil, connect.NewError(connect.CodeUnauthenticated, errors.New("no host in request context"))
	}
	if err := check(req.Msg); err != nil {
		return nil, toConnectError(err)
	}
	report, err := s.sessions.Summary(ctx, req.Msg.SessionID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(report), nil
}

// NewHostServiceHandler builds an HTTP handler for the host service and
// returns the path to mount it on.
func NewHostServiceHandler(svc *HostService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)
	startGame := connect.NewUnaryHandler(HostServiceStartGameProcedure, svc.StartGame, opts...)
	closeQuestion := connect.NewUnaryHandler(HostServiceCloseQuestionProcedure, svc.CloseQuestion, opts...)
	advance := connect.NewUnaryHandler(HostServiceAdvanceProcedure, svc.Advance, opts...)
	endGame := connect.NewUnaryHandler(HostServiceEndGameProcedure, svc.EndGame, opts...)
	getSummary := connect.NewUnaryHandler(HostServiceGetSummaryProcedure, svc.GetSummary, opts...)

	return "/" + HostServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case HostServiceStartGameProcedure:
			startGame.ServeHTTP(w, r)
		case HostServiceCloseQuestionProcedure:
			closeQuestion.ServeHTTP(w, r)
		case HostServiceAdvanceProcedure:
			advance.ServeHTTP(w, r)
		case HostServiceEndGameProcedure:
			endGame.ServeHTTP(w, r)
		case HostServiceGetSummaryProcedure:
			getSummary.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// HostClient calls the host service.
type HostClient struct {
	startGame     *connect.Client[SessionRequest, CommandResponse]
	closeQuestion *connect.Client[SessionRequest, CommandResponse]
	advance       *connect.Client[SessionRequest, CommandResponse]
	endGame       *connect.Client[SessionRequest, CommandResponse]
	getSummary    *connect.Client[SessionRequest, analytics.Report]
}

func NewHostClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *HostClient {
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
	return &HostClient{
		startGame:     connect.NewClient[SessionRequest, CommandResponse](httpClient, baseURL+HostServiceStartGameProcedure, opts...),
		closeQuestion: connect.NewClient[SessionRequest, CommandResponse](httpClient, baseURL+HostServiceCloseQuestionProcedure, opts...),
		advance:       connect.NewClient[SessionRequest, CommandResponse](httpClient, baseURL+HostServiceAdvanceProcedure, opts...),
		endGame:       connect.NewClient[SessionRequest, CommandResponse](httpClient, baseURL+HostServiceEndGameProcedure, opts...),
		getSummary:    connect.NewClient[SessionRequest, analytics.Report](httpClient, baseURL+HostServiceGetSummaryProcedure, opts...),
	}
}

func (c *HostClient) StartGame(ctx context.Context, req *connect.Request[SessionRequest]) (*connect.Response[CommandResponse], error) {
	return c.startGame.CallUnary(ctx, req)
}

func (c *HostClient) CloseQuestion(ctx context.Context, req *connect.Request[SessionRequest]) (*connect.Response[CommandResponse], error) {
	return c.closeQuestion.CallUnary(ctx, req)
}

func (c *HostClient) Advance(ctx context.Context, req *connect.Request[SessionRequest]) (*connect.Response[CommandResponse], error) {
	return c.advance.CallUnary(ctx, req)
}

func (c *HostClient) EndGame(ctx context.Context, req *connect.Request[SessionRequest]) (*connect.Response[CommandResponse], error) {
	return c.endGame.CallUnary(ctx, req)
}

func (c *HostClient) GetSummary(ctx context.Context, req *connect.Request[SessionRequest]) (*connect.Response[analytics.Report], error) {
	return c.getSummary.CallUnary(ctx, req)
}
