// Package store is the narrow persistence contract the session engine relies
// on: read quizzes and players, compare-and-set session state, append answers.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/nmsdosti/newquiz.onlin2/go/internal/models"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicateAnswer is returned when (session, player, question index)
	// already has an accepted answer.
	ErrDuplicateAnswer = errors.New("store: duplicate answer")
	// ErrConflict is returned by UpdateSession when the stored session no
	// longer matches the expected state.
	ErrConflict = errors.New("store: session state conflict")
)

// Expectation is the session state an update is conditioned on.
type Expectation struct {
	Status         models.SessionStatus
	QuestionIndex  *int
	QuestionClosed bool
}

// ExpectationOf captures the transition-relevant fields of s.
func ExpectationOf(s models.GameSession) Expectation {
	c := s.Clone()
	return Expectation{
		Status:         c.Status,
		QuestionIndex:  c.CurrentQuestionIndex,
		QuestionClosed: c.QuestionClosed,
	}
}

// Matches reports whether s is in the expected state.
func (e Expectation) Matches(s models.GameSession) bool {
	if e.Status != s.Status || e.QuestionClosed != s.QuestionClosed {
		return false
	}
	switch {
	case e.QuestionIndex == nil && s.CurrentQuestionIndex == nil:
		return true
	case e.QuestionIndex == nil || s.CurrentQuestionIndex == nil:
		return false
	default:
		return *e.QuestionIndex == *s.CurrentQuestionIndex
	}
}

type Store interface {
	GetQuiz(ctx context.Context, id uuid.UUID) (*models.Quiz, error)

	CreateSession(ctx context.Context, s *models.GameSession) error
	GetSession(ctx context.Context, id uuid.UUID) (*models.GameSession, error)
	GetSessionByPIN(ctx context.Context, pin string) (*models.GameSession, error)
	ListActiveSessions(ctx context.Context) ([]models.GameSession, error)
	// UpdateSession writes s only if the stored row still matches expect,
	// returning ErrConflict otherwise.
	UpdateSession(ctx context.Context, s *models.GameSession, expect Expectation) error
	SaveSummary(ctx context.Context, sessionID uuid.UUID, summary []byte) error
	GetSummary(ctx context.Context, sessionID uuid.UUID) ([]byte, error)

	ListPlayers(ctx context.Context, sessionID uuid.UUID) ([]models.Player, error)
	GetPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error)

	// InsertAnswer appends a; ErrDuplicateAnswer when the triple exists.
	InsertAnswer(ctx context.Context, a *models.AnswerEvent) error
	// ListAnswers returns answers ordered by submission time. A nil
	// questionIndex returns every answer of the session.
	ListAnswers(ctx context.Context, sessionID uuid.UUID, questionIndex *int) ([]models.AnswerEvent, error)
}
