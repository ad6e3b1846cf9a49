package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the persisted coarse status of a game session.
type SessionStatus string

const (
	SessionStatusLobby     SessionStatus = "LOBBY"
	SessionStatusActive    SessionStatus = "ACTIVE"
	SessionStatusCompleted SessionStatus = "COMPLETED"
)

// GameSession is one live run of a quiz.
//
// CurrentQuestionIndex is nil before the first question and after completion.
// Once set it never decreases. QuestionClosed distinguishes an active question
// from one whose answers are frozen but which the host has not advanced past.
type GameSession struct {
	ID                   uuid.UUID     `json:"id"`
	QuizID               uuid.UUID     `json:"quiz_id"`
	HostID               uuid.UUID     `json:"host_id"`
	PIN                  string        `json:"pin"`
	Status               SessionStatus `json:"status"`
	CurrentQuestionIndex *int          `json:"current_question_index,omitempty"`
	QuestionStartedAt    *time.Time    `json:"question_started_at,omitempty"`
	QuestionClosed       bool          `json:"question_closed"`
	CompletedAt          *time.Time    `json:"completed_at,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// Clone returns a deep copy so callers can mutate the result freely.
func (s GameSession) Clone() GameSession {
	out := s
	if s.CurrentQuestionIndex != nil {
		idx := *s.CurrentQuestionIndex
		out.CurrentQuestionIndex = &idx
	}
	if s.QuestionStartedAt != nil {
		t := *s.QuestionStartedAt
		out.QuestionStartedAt = &t
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// QuestionIndex returns the current question index and whether one is set.
func (s GameSession) QuestionIndex() (int, bool) {
	if s.CurrentQuestionIndex == nil {
		return 0, false
	}
	return *s.CurrentQuestionIndex, true
}
