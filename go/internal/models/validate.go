package models

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateQuiz checks struct constraints and that every question has exactly
// one correct option.
func ValidateQuiz(q *Quiz) error {
	if q == nil {
		return fmt.Errorf("quiz is nil")
	}
	if err := validatorInstance().Struct(q); err != nil {
		return fmt.Errorf("invalid quiz %s: %w", q.ID, err)
	}
	for i, question := range q.Questions {
		correct := 0
		for _, o := range question.Options {
			if o.IsCorrect {
				correct++
			}
		}
		if correct != 1 {
			return fmt.Errorf("invalid quiz %s: question %d has %d correct options, want exactly 1", q.ID, i, correct)
		}
	}
	return nil
}
