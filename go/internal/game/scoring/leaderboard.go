// Package scoring derives scores and rankings from the answer log.
package scoring

import (
	"sort"

	"github.com/google/uuid"

	"github.com/nmsdosti/newquiz.onlin2/go/internal/models"
)

// PointsPerCorrect is the fixed award for a correct answer.
const PointsPerCorrect = 100

type Entry struct {
	Rank             int       `json:"rank"`
	PlayerID         uuid.UUID `json:"player_id"`
	DisplayName      string    `json:"display_name"`
	Score            int       `json:"score"`
	Correct          int       `json:"correct"`
	Answered         int       `json:"answered"`
	TotalTimeSeconds float64   `json:"total_time_seconds"`
}

// Leaderboard ranks players by score descending, then total response time
// ascending, then join order. Players without answers are ranked with a zero
// score; answers from players not in players are ignored. Only the first
// answer per (player, question) counts, so replayed logs score the same.
func Leaderboard(players []models.Player, answers []models.AnswerEvent) []Entry {
	entries := make([]Entry, len(players))
	byPlayer := make(map[uuid.UUID]*Entry, len(players))
	for i, p := range players {
		entries[i] = Entry{PlayerID: p.ID, DisplayName: p.DisplayName}
		byPlayer[p.ID] = &entries[i]
	}

	type answerKey struct {
		player   uuid.UUID
		question int
	}
	counted := make(map[answerKey]struct{}, len(answers))
	for _, a := range answers {
		e, ok := byPlayer[a.PlayerID]
		if !ok {
			continue
		}
		key := answerKey{player: a.PlayerID, question: a.QuestionIndex}
		if _, dup := counted[key]; dup {
			continue
		}
		counted[key] = struct{}{}

		e.Answered++
		e.TotalTimeSeconds += a.TimeTakenSeconds
		if a.IsCorrect {
			e.Correct++
			e.Score += PointsPerCorrect
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].TotalTimeSeconds < entries[j].TotalTimeSeconds
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
