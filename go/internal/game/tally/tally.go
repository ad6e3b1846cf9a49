// Package tally aggregates accepted answers into per-option counts.
package tally

import (
	"math"

	"github.com/google/uuid"

	"github.com/nmsdosti/newquiz.onlin2/go/internal/models"
)

// Key addresses one counter. Scoping by question index means a counter can
// never leak into another question even if option ids are reused.
type Key struct {
	QuestionIndex int
	OptionID      uuid.UUID
}

// Tally is the per-option count for one question. Every option of the
// question is present, and the counts always sum to Total.
type Tally struct {
	QuestionIndex int               `json:"question_index"`
	Counts        map[uuid.UUID]int `json:"counts"`
	Total         int               `json:"total"`
}

// Share is one option's count and rounded percentage.
type Share struct {
	OptionID uuid.UUID `json:"option_id"`
	Count    int       `json:"count"`
	Percent  int       `json:"percent"`
}

// Empty returns a zeroed tally over optionIDs.
func Empty(questionIndex int, optionIDs []uuid.UUID) Tally {
	t := Tally{QuestionIndex: questionIndex, Counts: make(map[uuid.UUID]int, len(optionIDs))}
	for _, id := range optionIDs {
		t.Counts[id] = 0
	}
	return t
}

// Rebuild replays events into a tally for questionIndex. Events for other
// questions or unknown options are ignored, and only the earliest event per
// player counts.
func Rebuild(questionIndex int, optionIDs []uuid.UUID, evs []models.AnswerEvent) Tally {
	t := Empty(questionIndex, optionIDs)
	first := make(map[uuid.UUID]models.AnswerEvent, len(evs))
	for _, ev := range evs {
		if ev.QuestionIndex != questionIndex {
			continue
		}
		if _, known := t.Counts[ev.OptionID]; !known {
			continue
		}
		if prev, seen := first[ev.PlayerID]; seen && !ev.SubmittedAt.Before(prev.SubmittedAt) {
			continue
		}
		first[ev.PlayerID] = ev
	}
	for _, ev := range first {
		t.Counts[ev.OptionID]++
		t.Total++
	}
	return t
}

// Equal reports whether two tallies hold the same counts.
func (t Tally) Equal(o Tally) bool {
	if t.QuestionIndex != o.QuestionIndex || t.Total != o.Total || len(t.Counts) != len(o.Counts) {
		return false
	}
	for id, n := range t.Counts {
		if o.Counts[id] != n {
			return false
		}
	}
	return true
}

// Clone returns a copy that shares nothing with t.
func (t Tally) Clone() Tally {
	c := Tally{QuestionIndex: t.QuestionIndex, Total: t.Total, Counts: make(map[uuid.UUID]int, len(t.Counts))}
	for id, n := range t.Counts {
		c.Counts[id] = n
	}
	return c
}

// Percentages returns round(100*count/total) per option in optionIDs order,
// rounding halves away from zero. A zero total yields 0 for every option.
func Percentages(t Tally, optionIDs []uuid.UUID) []Share {
	out := make([]Share, 0, len(optionIDs))
	for _, id := range optionIDs {
		n := t.Counts[id]
		pct := 0
		if t.Total > 0 {
			pct = int(math.Round(100 * float64(n) / float64(t.Total)))
		}
		out = append(out, Share{OptionID: id, Count: n, Percent: pct})
	}
	return out
}
