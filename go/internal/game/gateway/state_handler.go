package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/nmsdosti/newquiz.onlin2/go/internal/apperrors"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/analytics"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/scoring"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/session"
)

// StateProvider is the authoritative read side observers re-pull from after
// any broadcast hint.
type StateProvider interface {
	State(ctx context.Context, sessionID uuid.UUID) (*session.State, error)
	StateByPIN(ctx context.Context, pin string) (*session.State, error)
	Leaderboard(ctx context.Context, sessionID uuid.UUID) ([]scoring.Entry, error)
	Summary(ctx context.Context, sessionID uuid.UUID) (*analytics.Report, error)
}

type LeaderboardResponse struct {
	SessionID uuid.UUID       `json:"session_id"`
	Entries   []scoring.Entry `json:"entries"`
}

// StateHandler serves session state over plain HTTP.
type StateHandler struct {
	stateProvider StateProvider
}

func NewStateHandler(provider StateProvider) *StateHandler {
	return &StateHandler{
		stateProvider: provider,
	}
}

// HandleGetSessionState handles GET /api/sessions/{id}/state
func (h *StateHandler) HandleGetSessionState(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDFromPath(w, r)
	if !ok {
		return
	}
	state, err := h.stateProvider.State(r.Context(), sessionID)
	if err != nil {
		writeError(w, err, sessionID.String())
		return
	}
	writeJSON(w, state)
}

// HandleGetLeaderboard handles GET /api/sessions/{id}/leaderboard
func (h *StateHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDFromPath(w, r)
	if !ok {
		return
	}
	entries, err := h.stateProvider.Leaderboard(r.Context(), sessionID)
	if err != nil {
		writeError(w, err, sessionID.String())
		return
	}
	writeJSON(w, LeaderboardResponse{SessionID: sessionID, Entries: entries})
}

// HandleGetSummary handles GET /api/sessions/{id}/summary
func (h *StateHandler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDFromPath(w, r)
	if !ok {
		return
	}
	report, err := h.stateProvider.Summary(r.Context(), sessionID)
	if err != nil {
		writeError(w, err, sessionID.String())
		return
	}
	writeJSON(w, report)
}

// HandleGetStateByPIN handles GET /api/pins/{pin}
func (h *StateHandler) HandleGetStateByPIN(w http.ResponseWriter, r *http.Request) {
	pin := r.PathValue("pin")
	if pin == "" {
		http.Error(w, "pin is required", http.StatusBadRequest)
		return
	}
	state, err := h.stateProvider.StateByPIN(r.Context(), pin)
	if err != nil {
		writeError(w, err, pin)
		return
	}
	writeJSON(w, state)
}

func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sessions/{id}/state", h.HandleGetSessionState)
	mux.HandleFunc("GET /api/sessions/{id}/leaderboard", h.HandleGetLeaderboard)
	mux.HandleFunc("GET /api/sessions/{id}/summary", h.HandleGetSummary)
	mux.HandleFunc("GET /api/pins/{pin}", h.HandleGetStateByPIN)
}

func sessionIDFromPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.PathValue("id")
	if raw == "" {
		http.Error(w, "session id is required", http.StatusBadRequest)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, "invalid session id format", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// StatusOf maps a typed error onto an HTTP status.
func StatusOf(err error) int {
	switch {
	case apperrors.IsNotFound(err):
		return http.StatusNotFound
	case apperrors.IsValidation(err):
		return http.StatusBadRequest
	case apperrors.IsState(err):
		return http.StatusConflict
	case apperrors.IsAuthorization(err):
		return http.StatusForbidden
	case apperrors.IsTransport(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error, target string) {
	status := StatusOf(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("target", target).Msg("failed to serve session state")
	}
	http.Error(w, err.Error(), status)
}
