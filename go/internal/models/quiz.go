package models

import (
	"time"

	"github.com/google/uuid"
)

// Time limit bounds for a single question, in seconds.
const (
	MinTimeLimitSeconds = 5
	MaxTimeLimitSeconds = 120
)

// Quiz is an ordered, read-only set of questions. It is immutable once a
// session using it has started.
type Quiz struct {
	ID          uuid.UUID  `json:"id" yaml:"id" validate:"required"`
	Title       string     `json:"title" yaml:"title" validate:"required,max=200"`
	Description string     `json:"description" yaml:"description"`
	Questions   []Question `json:"questions" yaml:"questions" validate:"dive"`
	CreatedAt   time.Time  `json:"created_at" yaml:"-"`
}

// Question is a single timed multiple choice question.
type Question struct {
	ID               uuid.UUID `json:"id" yaml:"id" validate:"required"`
	Text             string    `json:"text" yaml:"text" validate:"required"`
	TimeLimitSeconds int       `json:"time_limit_seconds" yaml:"time_limit_seconds" validate:"min=5,max=120"`
	Options          []Option  `json:"options" yaml:"options" validate:"min=2,max=10,dive"`
}

// TimeLimit returns the question's time limit as a duration.
func (q Question) TimeLimit() time.Duration {
	return time.Duration(q.TimeLimitSeconds) * time.Second
}

// Option returns the option with the given id.
func (q Question) Option(id uuid.UUID) (Option, bool) {
	for _, o := range q.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// OptionIDs returns the option ids in display order.
func (q Question) OptionIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(q.Options))
	for i, o := range q.Options {
		ids[i] = o.ID
	}
	return ids
}

type Option struct {
	ID        uuid.UUID `json:"id" yaml:"id" validate:"required"`
	Text      string    `json:"text" yaml:"text" validate:"required"`
	IsCorrect bool      `json:"is_correct" yaml:"is_correct"`
}

// Question returns the question at index i.
func (q *Quiz) Question(i int) (Question, bool) {
	if i < 0 || i >= len(q.Questions) {
		return Question{}, false
	}
	return q.Questions[i], true
}
