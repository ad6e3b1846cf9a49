package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type names one variant of the closed set of session events.
type Type string

const (
	TypeGameStarted     Type = "game_started"
	TypeQuestionStarted Type = "question_started"
	TypeQuestionChanged Type = "question_changed"
	TypeTimeUp          Type = "time_up"
	TypeGameEnded       Type = "game_ended"
)

// Event is implemented only by the payload types in this package.
type Event interface {
	Type() Type
	Validate() error
	sealed()
}

// GameStarted is the payload for a game_started event
type GameStarted struct {
	QuizID         uuid.UUID `json:"quiz_id"`
	TotalQuestions int       `json:"total_questions"`
}

// QuestionStarted is the payload for a question_started event
type QuestionStarted struct {
	QuestionIndex int       `json:"question_index"`
	TimeLimit     int       `json:"time_limit"`
	StartedAt     time.Time `json:"started_at"`
	Deadline      time.Time `json:"deadline"`
}

// QuestionChanged is the payload for a question_changed event
type QuestionChanged struct {
	QuestionIndex int `json:"question_index"`
}

// TimeUp is the payload for a time_up event
type TimeUp struct {
	QuestionIndex int `json:"question_index"`
}

// GameEnded is the payload for a game_ended event
type GameEnded struct{}

func (GameStarted) Type() Type     { return TypeGameStarted }
func (QuestionStarted) Type() Type { return TypeQuestionStarted }
func (QuestionChanged) Type() Type { return TypeQuestionChanged }
func (TimeUp) Type() Type          { return TypeTimeUp }
func (GameEnded) Type() Type       { return TypeGameEnded }

func (GameStarted) sealed()     {}
func (QuestionStarted) sealed() {}
func (QuestionChanged) sealed() {}
func (TimeUp) sealed()          {}
func (GameEnded) sealed()       {}

func (e GameStarted) Validate() error {
	if e.QuizID == uuid.Nil {
		return fmt.Errorf("%s: quiz_id is required", e.Type())
	}
	if e.TotalQuestions <= 0 {
		return fmt.Errorf("%s: total_questions must be positive, got %d", e.Type(), e.TotalQuestions)
	}
	return nil
}

func (e QuestionStarted) Validate() error {
	if e.QuestionIndex < 0 {
		return fmt.Errorf("%s: negative question_index %d", e.Type(), e.QuestionIndex)
	}
	if e.TimeLimit <= 0 {
		return fmt.Errorf("%s: time_limit must be positive, got %d", e.Type(), e.TimeLimit)
	}
	if e.StartedAt.IsZero() {
		return fmt.Errorf("%s: started_at is required", e.Type())
	}
	if !e.Deadline.After(e.StartedAt) {
		return fmt.Errorf("%s: deadline must be after started_at", e.Type())
	}
	return nil
}

func (e QuestionChanged) Validate() error {
	if e.QuestionIndex < 0 {
		return fmt.Errorf("%s: negative question_index %d", e.Type(), e.QuestionIndex)
	}
	return nil
}

func (e TimeUp) Validate() error {
	if e.QuestionIndex < 0 {
		return fmt.Errorf("%s: negative question_index %d", e.Type(), e.QuestionIndex)
	}
	return nil
}

func (GameEnded) Validate() error { return nil }

// QuestionIndexOf returns the question index an event is scoped to.
func QuestionIndexOf(ev Event) (int, bool) {
	switch e := ev.(type) {
	case QuestionStarted:
		return e.QuestionIndex, true
	case QuestionChanged:
		return e.QuestionIndex, true
	case TimeUp:
		return e.QuestionIndex, true
	default:
		return 0, false
	}
}
