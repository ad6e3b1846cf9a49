package service

import (
	"time"

	"github.com/google/uuid"

	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/scoring"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/session"
)

// SessionRequest names the session a host command or query applies to.
type SessionRequest struct {
	SessionID uuid.UUID `json:"session_id" validate:"required"`
}

// CommandResponse is returned by every host command.
type CommandResponse struct {
	Session  session.Snapshot `json:"session"`
	Warnings []string         `json:"warnings,omitempty"`
}

type SubmitAnswerRequest struct {
	SessionID     uuid.UUID `json:"session_id" validate:"required"`
	PlayerID      uuid.UUID `json:"player_id" validate:"required"`
	QuestionIndex int       `json:"question_index" validate:"gte=0"`
	OptionID      uuid.UUID `json:"option_id" validate:"required"`
}

// SubmitAnswerResponse acknowledges an accepted answer. Correctness is not
// revealed until the question closes.
type SubmitAnswerResponse struct {
	AnswerID         uuid.UUID `json:"answer_id"`
	QuestionIndex    int       `json:"question_index"`
	TimeTakenSeconds float64   `json:"time_taken_seconds"`
	SubmittedAt      time.Time `json:"submitted_at"`
}

type GetTallyRequest struct {
	SessionID     uuid.UUID `json:"session_id" validate:"required"`
	QuestionIndex *int      `json:"question_index,omitempty" validate:"omitempty,gte=0"`
}

type GetTallyResponse struct {
	Tally session.TallyView `json:"tally"`
}

type GetLeaderboardResponse struct {
	SessionID uuid.UUID       `json:"session_id"`
	Entries   []scoring.Entry `json:"entries"`
}

// GetStateRequest looks a session up by id, or by PIN when no id is given.
type GetStateRequest struct {
	SessionID uuid.UUID `json:"session_id" validate:"required_without=PIN"`
	PIN       string    `json:"pin,omitempty" validate:"omitempty,numeric,len=6"`
}

type GetStateResponse struct {
	State session.State `json:"state"`
}
