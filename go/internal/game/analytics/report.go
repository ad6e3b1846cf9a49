// Package analytics builds the post-game report consumed by export tooling.
package analytics

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/nmsdosti/newquiz.onlin2/go/internal/apperrors"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/scoring"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/models"
)

type Difficulty string

const (
	DifficultyEasy     Difficulty = "Easy"
	DifficultyMedium   Difficulty = "Medium"
	DifficultyHard     Difficulty = "Hard"
	DifficultyVeryHard Difficulty = "Very Hard"
)

// DifficultyOf buckets a question by the percentage of correct answers.
func DifficultyOf(accuracy float64) Difficulty {
	switch {
	case accuracy >= 80:
		return DifficultyEasy
	case accuracy >= 50:
		return DifficultyMedium
	case accuracy >= 30:
		return DifficultyHard
	default:
		return DifficultyVeryHard
	}
}

type OptionStats struct {
	OptionID  uuid.UUID `json:"option_id"`
	Text      string    `json:"text"`
	IsCorrect bool      `json:"is_correct"`
	Count     int       `json:"count"`
	Percent   float64   `json:"percent"`
}

type QuestionStats struct {
	Index               int           `json:"index"`
	QuestionID          uuid.UUID     `json:"question_id"`
	Text                string        `json:"text"`
	Answered            int           `json:"answered"`
	Correct             int           `json:"correct"`
	Accuracy            float64       `json:"accuracy"`
	Difficulty          Difficulty    `json:"difficulty"`
	AverageResponseTime float64       `json:"average_response_time"`
	Options             []OptionStats `json:"options"`
}

type PlayerStats struct {
	PlayerID            uuid.UUID `json:"player_id"`
	DisplayName         string    `json:"display_name"`
	Rank                int       `json:"rank"`
	Score               int       `json:"score"`
	Answered            int       `json:"answered"`
	Correct             int       `json:"correct"`
	Accuracy            float64   `json:"accuracy"`
	AverageResponseTime float64   `json:"average_response_time"`
}

// Response identifies a single answer at one end of the timing range.
type Response struct {
	PlayerID      uuid.UUID `json:"player_id"`
	DisplayName   string    `json:"display_name"`
	QuestionIndex int       `json:"question_index"`
	Seconds       float64   `json:"seconds"`
}

// Report is the read-only summary of a completed session. Percentages are in
// [0,100] rounded to one decimal.
type Report struct {
	SessionID         uuid.UUID       `json:"session_id"`
	QuizID            uuid.UUID       `json:"quiz_id"`
	QuizTitle         string          `json:"quiz_title"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
	TotalQuestions    int             `json:"total_questions"`
	TotalPlayers      int             `json:"total_players"`
	TotalAnswers      int             `json:"total_answers"`
	CorrectAnswers    int             `json:"correct_answers"`
	OverallAccuracy   float64         `json:"overall_accuracy"`
	ParticipationRate float64         `json:"participation_rate"`
	Questions         []QuestionStats `json:"questions"`
	Players           []PlayerStats   `json:"players"`
	MostAccurate      *int            `json:"most_accurate_question,omitempty"`
	LeastAccurate     *int            `json:"least_accurate_question,omitempty"`
	Fastest           *Response       `json:"fastest_response,omitempty"`
	Slowest           *Response       `json:"slowest_response,omitempty"`
}

// Build computes the report for a completed session. Answers are
// deduplicated per (player, question) and answers from unknown players or
// for out-of-range questions are ignored.
func Build(session *models.GameSession, quiz *models.Quiz, answers []models.AnswerEvent, players []models.Player) (*Report, error) {
	if session == nil || quiz == nil {
		return nil, apperrors.NewValidationError(apperrors.ReasonInvalid, "session and quiz are required")
	}
	if session.Status != models.SessionStatusCompleted {
		return nil, apperrors.NewStateError("summary", string(session.Status), "session %s is not completed", session.ID)
	}

	names := make(map[uuid.UUID]string, len(players))
	for _, p := range players {
		names[p.ID] = p.DisplayName
	}
	accepted := dedupe(answers, names, len(quiz.Questions))

	r := &Report{
		SessionID:      session.ID,
		QuizID:         quiz.ID,
		QuizTitle:      quiz.Title,
		CompletedAt:    session.CompletedAt,
		TotalQuestions: len(quiz.Questions),
		TotalPlayers:   len(players),
		TotalAnswers:   len(accepted),
	}

	byQuestion := make([][]models.AnswerEvent, len(quiz.Questions))
	for _, a := range accepted {
		byQuestion[a.QuestionIndex] = append(byQuestion[a.QuestionIndex], a)
		if a.IsCorrect {
			r.CorrectAnswers++
		}
		resp := Response{PlayerID: a.PlayerID, DisplayName: names[a.PlayerID], QuestionIndex: a.QuestionIndex, Seconds: a.TimeTakenSeconds}
		if r.Fastest == nil || resp.Seconds < r.Fastest.Seconds {
			fastest := resp
			r.Fastest = &fastest
		}
		if r.Slowest == nil || resp.Seconds > r.Slowest.Seconds {
			slowest := resp
			r.Slowest = &slowest
		}
	}
	r.OverallAccuracy = percent(r.CorrectAnswers, r.TotalAnswers)
	r.ParticipationRate = percent(r.TotalAnswers, r.TotalQuestions*r.TotalPlayers)

	r.Questions = make([]QuestionStats, len(quiz.Questions))
	for i, q := range quiz.Questions {
		r.Questions[i] = questionStats(i, q, byQuestion[i])
	}
	r.MostAccurate, r.LeastAccurate = extremes(r.Questions)
	r.Players = playerStats(players, accepted)
	return r, nil
}

func dedupe(answers []models.AnswerEvent, known map[uuid.UUID]string, questions int) []models.AnswerEvent {
	type key struct {
		player   uuid.UUID
		question int
	}
	seen := make(map[key]struct{}, len(answers))
	out := make([]models.AnswerEvent, 0, len(answers))
	for _, a := range answers {
		if _, ok := known[a.PlayerID]; !ok {
			continue
		}
		if a.QuestionIndex < 0 || a.QuestionIndex >= questions {
			continue
		}
		k := key{player: a.PlayerID, question: a.QuestionIndex}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, a)
	}
	return out
}

func questionStats(index int, q models.Question, answers []models.AnswerEvent) QuestionStats {
	qs := QuestionStats{
		Index:      index,
		QuestionID: q.ID,
		Text:       q.Text,
		Answered:   len(answers),
		Options:    make([]OptionStats, len(q.Options)),
	}
	counts := make(map[uuid.UUID]int, len(q.Options))
	var totalTime float64
	for _, a := range answers {
		counts[a.OptionID]++
		totalTime += a.TimeTakenSeconds
		if a.IsCorrect {
			qs.Correct++
		}
	}
	qs.Accuracy = percent(qs.Correct, qs.Answered)
	qs.Difficulty = DifficultyOf(qs.Accuracy)
	qs.AverageResponseTime = average(totalTime, qs.Answered)
	for i, o := range q.Options {
		qs.Options[i] = OptionStats{
			OptionID:  o.ID,
			Text:      o.Text,
			IsCorrect: o.IsCorrect,
			Count:     counts[o.ID],
			Percent:   percent(counts[o.ID], qs.Answered),
		}
	}
	return qs
}

// extremes returns the indexes of the most and least accurate answered
// questions. The earliest question wins a tie.
func extremes(questions []QuestionStats) (most, least *int) {
	for i := range questions {
		q := questions[i]
		if q.Answered == 0 {
			continue
		}
		if most == nil || q.Accuracy > questions[*most].Accuracy {
			idx := i
			most = &idx
		}
		if least == nil || q.Accuracy < questions[*least].Accuracy {
			idx := i
			least = &idx
		}
	}
	return most, least
}

func playerStats(players []models.Player, answers []models.AnswerEvent) []PlayerStats {
	board := scoring.Leaderboard(players, answers)
	out := make([]PlayerStats, len(board))
	for i, e := range board {
		out[i] = PlayerStats{
			PlayerID:            e.PlayerID,
			DisplayName:         e.DisplayName,
			Rank:                e.Rank,
			Score:               e.Score,
			Answered:            e.Answered,
			Correct:             e.Correct,
			Accuracy:            percent(e.Correct, e.Answered),
			AverageResponseTime: average(e.TotalTimeSeconds, e.Answered),
		}
	}
	return out
}

func percent(n, d int) float64 {
	if d <= 0 {
		return 0
	}
	return round1(100 * float64(n) / float64(d))
}

func average(sum float64, n int) float64 {
	if n <= 0 {
		return 0
	}
	return math.Round(sum/float64(n)*1000) / 1000
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
