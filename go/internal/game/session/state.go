package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/reconcile"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/tally"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/timer"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/models"
)

// Phase is the state machine position derived from the persisted session.
type Phase string

const (
	PhaseLobby          Phase = "lobby"
	PhaseQuestionActive Phase = "question_active"
	PhaseQuestionClosed Phase = "question_closed"
	PhaseCompleted      Phase = "completed"
)

// PhaseOf maps a persisted session onto its machine state.
func PhaseOf(s models.GameSession) Phase {
	switch s.Status {
	case models.SessionStatusCompleted:
		return PhaseCompleted
	case models.SessionStatusActive:
		if s.QuestionClosed {
			return PhaseQuestionClosed
		}
		return PhaseQuestionActive
	default:
		return PhaseLobby
	}
}

// ActiveQuestion holds the background work scoped to one open question. It
// is owned by the Machine and torn down on every path that closes the
// question.
type ActiveQuestion struct {
	Index    int
	Deadline *timer.Deadline
	loop     *reconcile.Loop
	cancel   context.CancelFunc
	done     chan struct{}
}

// stop cancels the deadline and the reconciliation loop and waits for the
// loop to exit.
func (a *ActiveQuestion) stop() {
	a.Deadline.Cancel()
	a.cancel()
	<-a.done
}

// Snapshot is the authoritative view of a session at one instant.
type Snapshot struct {
	SessionID         uuid.UUID            `json:"session_id"`
	QuizID            uuid.UUID            `json:"quiz_id"`
	PIN               string               `json:"pin"`
	Status            models.SessionStatus `json:"status"`
	Phase             Phase                `json:"phase"`
	TotalQuestions    int                  `json:"total_questions"`
	QuestionIndex     *int                 `json:"question_index,omitempty"`
	QuestionStartedAt *time.Time           `json:"question_started_at,omitempty"`
	Deadline          *time.Time           `json:"deadline,omitempty"`
	RemainingSeconds  int                  `json:"remaining_seconds"`
	CompletedAt       *time.Time           `json:"completed_at,omitempty"`
}

// Result is returned by every successful host command. Warnings carry
// failures that did not undo the transition, such as a broadcast that could
// not be delivered.
type Result struct {
	Snapshot Snapshot `json:"snapshot"`
	Warnings []string `json:"warnings,omitempty"`
}

// TallyView is a tally with its rounded percentages in option order.
type TallyView struct {
	Tally  tally.Tally   `json:"tally"`
	Shares []tally.Share `json:"shares"`
	Live   bool          `json:"live"`
}

// State is what an observer re-pulls after any broadcast hint.
type State struct {
	Snapshot
	Tally *TallyView `json:"tally,omitempty"`
}
