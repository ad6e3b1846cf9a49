package models_test

import (
	"testing"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/nmsdosti/newquiz.onlin2/go/internal/models"
)

func question(limit int, correct ...bool) models.Question {
	q := models.Question{ID: uuid.New(), Text: "q", TimeLimitSeconds: limit}
	for _, c := range correct {
		q.Options = append(q.Options, models.Option{ID: uuid.New(), Text: "o", IsCorrect: c})
	}
	return q
}

func TestValidateQuiz(t *testing.T) {
	Convey("Given a quiz", t, func() {
		quiz := &models.Quiz{ID: uuid.New(), Title: "Capitals"}

		Convey("A well formed quiz is accepted", func() {
			quiz.Questions = []models.Question{question(30, true, false, false)}
			So(models.ValidateQuiz(quiz), ShouldBeNil)
		})

		Convey("A time limit outside [5,120] is rejected", func() {
			quiz.Questions = []models.Question{question(4, true, false)}
			So(models.ValidateQuiz(quiz), ShouldNotBeNil)
			quiz.Questions = []models.Question{question(121, true, false)}
			So(models.ValidateQuiz(quiz), ShouldNotBeNil)
		})

		Convey("A question with a single option is rejected", func() {
			quiz.Questions = []models.Question{question(30, true)}
			So(models.ValidateQuiz(quiz), ShouldNotBeNil)
		})

		Convey("A question must have exactly one correct option", func() {
			quiz.Questions = []models.Question{question(30, true, true)}
			So(models.ValidateQuiz(quiz), ShouldNotBeNil)
			quiz.Questions = []models.Question{question(30, false, false)}
			So(models.ValidateQuiz(quiz), ShouldNotBeNil)
		})
	})
}

func TestSessionClone(t *testing.T) {
	Convey("Cloning a session copies pointer fields", t, func() {
		idx := 2
		s := models.GameSession{ID: uuid.New(), CurrentQuestionIndex: &idx}
		c := s.Clone()
		*c.CurrentQuestionIndex = 3
		So(*s.CurrentQuestionIndex, ShouldEqual, 2)
		got, ok := c.QuestionIndex()
		So(ok, ShouldBeTrue)
		So(got, ShouldEqual, 3)
	})
}
