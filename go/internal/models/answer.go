package models

import (
	"time"

	"github.com/google/uuid"
)

// AnswerEvent is one accepted answer. The log is append-only and holds at most
// one event per (session, player, question index).
type AnswerEvent struct {
	ID               uuid.UUID `json:"id"`
	SessionID        uuid.UUID `json:"session_id"`
	PlayerID         uuid.UUID `json:"player_id"`
	QuestionIndex    int       `json:"question_index"`
	OptionID         uuid.UUID `json:"option_id"`
	TimeTakenSeconds float64   `json:"time_taken_seconds"`
	IsCorrect        bool      `json:"is_correct"`
	SubmittedAt      time.Time `json:"submitted_at"`
}
