package scoring_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/scoring"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/models"
)

func TestLeaderboard(t *testing.T) {
	Convey("Given three players who joined in order", t, func() {
		base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
		players := []models.Player{
			{ID: uuid.New(), DisplayName: "ana", JoinedAt: base},
			{ID: uuid.New(), DisplayName: "ben", JoinedAt: base.Add(time.Second)},
			{ID: uuid.New(), DisplayName: "cy", JoinedAt: base.Add(2 * time.Second)},
		}
		answer := func(p int, q int, correct bool, took float64) models.AnswerEvent {
			return models.AnswerEvent{PlayerID: players[p].ID, QuestionIndex: q, IsCorrect: correct, TimeTakenSeconds: took}
		}

		Convey("Correct answers score 100 each with no time bonus", func() {
			board := scoring.Leaderboard(players, []models.AnswerEvent{
				answer(0, 0, true, 5),
				answer(1, 0, true, 8),
				answer(2, 0, false, 10),
			})
			So(board[0].DisplayName, ShouldEqual, "ana")
			So(board[0].Score, ShouldEqual, 100)
			So(board[1].DisplayName, ShouldEqual, "ben")
			So(board[1].Score, ShouldEqual, 100)
			So(board[2].Score, ShouldEqual, 0)
			So(board[2].Rank, ShouldEqual, 3)
		})

		Convey("Equal scores are broken by total time, then join order", func() {
			board := scoring.Leaderboard(players, []models.AnswerEvent{
				answer(0, 0, true, 9),
				answer(1, 0, true, 4),
				answer(2, 0, true, 9),
			})
			So(board[0].DisplayName, ShouldEqual, "ben")
			So(board[1].DisplayName, ShouldEqual, "ana")
			So(board[2].DisplayName, ShouldEqual, "cy")
		})

		Convey("A replayed answer is not scored twice", func() {
			a := answer(0, 0, true, 3)
			board := scoring.Leaderboard(players, []models.AnswerEvent{a, a})
			So(board[0].Score, ShouldEqual, 100)
			So(board[0].Answered, ShouldEqual, 1)

			board = scoring.Leaderboard(players, []models.AnswerEvent{a, a, answer(0, 1, true, 2)})
			So(board[0].Score, ShouldEqual, 200)
			So(board[0].Answered, ShouldEqual, 2)
		})

		Convey("Players without answers still appear", func() {
			board := scoring.Leaderboard(players, nil)
			So(board, ShouldHaveLength, 3)
			So(board[0].DisplayName, ShouldEqual, "ana")
		})
	})
}
