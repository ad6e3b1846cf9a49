package tally

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/nmsdosti/newquiz.onlin2/go/internal/apperrors"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/metrics"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/models"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/store"
)

// AnswerStore is the slice of the entity store the aggregator needs.
type AnswerStore interface {
	GetPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error)
	InsertAnswer(ctx context.Context, a *models.AnswerEvent) error
	ListAnswers(ctx context.Context, sessionID uuid.UUID, questionIndex *int) ([]models.AnswerEvent, error)
}

// Submission is a participant's answer as received.
type Submission struct {
	SessionID     uuid.UUID
	PlayerID      uuid.UUID
	QuestionIndex int
	OptionID      uuid.UUID
	SubmittedAt   time.Time // zero means now
}

type scope struct {
	index     int
	question  models.Question
	startedAt time.Time
	open      bool
	counts    map[Key]int
	total     int
	answered  map[uuid.UUID]struct{}
}

// Aggregator owns the live tally of one session. Validation, the store
// insert, and the counter increment happen under one lock, so concurrent
// submissions for a session are applied one at a time.
type Aggregator struct {
	sessionID uuid.UUID
	quiz      *models.Quiz
	store     AnswerStore
	clock     clockwork.Clock
	metrics   metrics.Collector

	mu      sync.Mutex
	scope   *scope
	version uint64
	members map[uuid.UUID]bool
}

func NewAggregator(sessionID uuid.UUID, quiz *models.Quiz, s AnswerStore, clock clockwork.Clock, m metrics.Collector) *Aggregator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Aggregator{
		sessionID: sessionID,
		quiz:      quiz,
		store:     s,
		clock:     clock,
		metrics:   metrics.OrNoOp(m),
		members:   make(map[uuid.UUID]bool),
	}
}

// Reset scopes the aggregator to question index and opens it for answers.
// Counters of the previous question are discarded.
func (a *Aggregator) Reset(index int, startedAt time.Time) error {
	q, ok := a.quiz.Question(index)
	if !ok {
		return fmt.Errorf("question %d out of range [0,%d)", index, len(a.quiz.Questions))
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scope = &scope{
		index:     index,
		question:  q,
		startedAt: startedAt,
		open:      true,
		counts:    make(map[Key]int, len(q.Options)),
		answered:  make(map[uuid.UUID]struct{}),
	}
	a.version++
	return nil
}

// Freeze stops accepting answers for index. Any submission already holding
// the lock completes first. It reports whether the scope was open.
func (a *Aggregator) Freeze(index int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.scope == nil || a.scope.index != index || !a.scope.open {
		return false
	}
	a.scope.open = false
	return true
}

// Thaw reopens a frozen scope, used when closing a question could not be
// persisted.
func (a *Aggregator) Thaw(index int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.scope != nil && a.scope.index == index {
		a.scope.open = true
	}
}

// Clear drops the scope entirely once the session completes.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scope = nil
	a.version++
}

func (a *Aggregator) reject(reason apperrors.Reason, format string, args ...interface{}) error {
	a.metrics.RecordAnswer(false, string(reason))
	return apperrors.NewValidationError(reason, format, args...)
}

// Submit validates and records one answer. Exactly one of any set of
// submissions for the same (player, question) is accepted.
func (a *Aggregator) Submit(ctx context.Context, sub Submission) (*models.AnswerEvent, error) {
	if sub.SessionID != a.sessionID {
		return nil, a.reject(apperrors.ReasonUnknownSession, "answer for session %s sent to session %s", sub.SessionID, a.sessionID)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.scope
	switch {
	case s == nil:
		return nil, a.reject(apperrors.ReasonNotActive, "session %s has no active question", a.sessionID)
	case sub.QuestionIndex != s.index:
		return nil, a.reject(apperrors.ReasonStaleQuestion, "question %d is not the current question %d", sub.QuestionIndex, s.index)
	case !s.open:
		return nil, a.reject(apperrors.ReasonQuestionClosed, "question %d is closed", s.index)
	}

	opt, ok := s.question.Option(sub.OptionID)
	if !ok {
		return nil, a.reject(apperrors.ReasonUnknownOption, "option %s is not part of question %d", sub.OptionID, s.index)
	}
	if _, dup := s.answered[sub.PlayerID]; dup {
		return nil, a.reject(apperrors.ReasonDuplicate, "player %s already answered question %d", sub.PlayerID, s.index)
	}
	if err := a.checkMember(ctx, sub.PlayerID); err != nil {
		return nil, err
	}

	submittedAt := sub.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = a.clock.Now()
	}
	ev := &models.AnswerEvent{
		ID:               uuid.New(),
		SessionID:        a.sessionID,
		PlayerID:         sub.PlayerID,
		QuestionIndex:    s.index,
		OptionID:         opt.ID,
		TimeTakenSeconds: timeTaken(submittedAt, s.startedAt, s.question.TimeLimit()),
		IsCorrect:        opt.IsCorrect,
		SubmittedAt:      submittedAt,
	}

	if err := a.store.InsertAnswer(ctx, ev); err != nil {
		if errors.Is(err, store.ErrDuplicateAnswer) {
			s.answered[sub.PlayerID] = struct{}{}
			return nil, a.reject(apperrors.ReasonDuplicate, "player %s already answered question %d", sub.PlayerID, s.index)
		}
		a.metrics.RecordAnswer(false, "store_error")
		return nil, fmt.Errorf("failed to record answer: %w", err)
	}

	s.answered[sub.PlayerID] = struct{}{}
	s.counts[Key{QuestionIndex: s.index, OptionID: opt.ID}]++
	s.total++
	a.version++
	a.metrics.RecordAnswer(true, "")

	log.Debug().
		Str("session_id", a.sessionID.String()).
		Str("player_id", sub.PlayerID.String()).
		Int("question_index", s.index).
		Float64("time_taken", ev.TimeTakenSeconds).
		Msg("answer accepted")
	return ev, nil
}

// checkMember caches positive and negative lookups; players never move
// between sessions.
func (a *Aggregator) checkMember(ctx context.Context, playerID uuid.UUID) error {
	if member, cached := a.members[playerID]; cached {
		if !member {
			return a.reject(apperrors.ReasonUnknownPlayer, "player %s is not in session %s", playerID, a.sessionID)
		}
		return nil
	}
	p, err := a.store.GetPlayer(ctx, playerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			a.members[playerID] = false
			return a.reject(apperrors.ReasonUnknownPlayer, "player %s is not in session %s", playerID, a.sessionID)
		}
		return fmt.Errorf("failed to look up player: %w", err)
	}
	a.members[playerID] = p.SessionID == a.sessionID
	if !a.members[playerID] {
		return a.reject(apperrors.ReasonUnknownPlayer, "player %s is not in session %s", playerID, a.sessionID)
	}
	return nil
}

// timeTaken clamps the response time to [0, limit] with millisecond precision.
func timeTaken(submittedAt, startedAt time.Time, limit time.Duration) float64 {
	d := submittedAt.Sub(startedAt)
	if d < 0 {
		d = 0
	}
	if d > limit {
		d = limit
	}
	return math.Round(d.Seconds()*1000) / 1000
}

// Current returns the index of the scoped question and whether it is open.
func (a *Aggregator) Current() (index int, open bool, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.scope == nil {
		return 0, false, false
	}
	return a.scope.index, a.scope.open, true
}

// Version changes whenever the live counters change.
func (a *Aggregator) Version() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.version
}

// Live returns the in-memory tally of the scoped question.
func (a *Aggregator) Live() (Tally, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.scope == nil {
		return Tally{}, false
	}
	return a.snapshotLocked(), true
}

func (a *Aggregator) snapshotLocked() Tally {
	s := a.scope
	t := Empty(s.index, s.question.OptionIDs())
	for k, n := range s.counts {
		if k.QuestionIndex == s.index {
			t.Counts[k.OptionID] = n
		}
	}
	t.Total = s.total
	return t
}

// Tally returns the live tally for the scoped question and rebuilds any other
// question's tally from the answer log.
func (a *Aggregator) Tally(ctx context.Context, questionIndex int) (Tally, error) {
	q, ok := a.quiz.Question(questionIndex)
	if !ok {
		return Tally{}, apperrors.NewValidationError(apperrors.ReasonInvalid, "question %d out of range", questionIndex)
	}
	if t, live := a.Live(); live && t.QuestionIndex == questionIndex {
		return t, nil
	}
	evs, err := a.store.ListAnswers(ctx, a.sessionID, &questionIndex)
	if err != nil {
		return Tally{}, fmt.Errorf("failed to list answers: %w", err)
	}
	return Rebuild(questionIndex, q.OptionIDs(), evs), nil
}

// Authoritative rebuilds the tally for questionIndex from the answer log.
func (a *Aggregator) Authoritative(ctx context.Context, questionIndex int) (Tally, error) {
	q, ok := a.quiz.Question(questionIndex)
	if !ok {
		return Tally{}, fmt.Errorf("question %d out of range", questionIndex)
	}
	evs, err := a.store.ListAnswers(ctx, a.sessionID, &questionIndex)
	if err != nil {
		return Tally{}, err
	}
	return Rebuild(questionIndex, q.OptionIDs(), evs), nil
}

// Replace overwrites the live tally with t if the counters have not changed
// since version was read. It reports whether t was applied and whether it
// differed from the live counts.
func (a *Aggregator) Replace(t Tally, version uint64) (applied, drift bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.scope == nil || a.scope.index != t.QuestionIndex || a.version != version {
		return false, false
	}
	return true, a.applyLocked(t)
}

// lockedReadTimeout bounds the store read Reconcile makes while holding the
// lock, which is also the longest a submission waits behind it.
const lockedReadTimeout = 500 * time.Millisecond

// Reconcile fetches and applies the authoritative tally while holding the
// lock, so no submission can interleave.
func (a *Aggregator) Reconcile(ctx context.Context, questionIndex int) (drift bool, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.scope == nil || a.scope.index != questionIndex {
		return false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, lockedReadTimeout)
	defer cancel()
	t, err := a.Authoritative(ctx, questionIndex)
	if err != nil {
		return false, err
	}
	return a.applyLocked(t), nil
}

func (a *Aggregator) applyLocked(t Tally) bool {
	s := a.scope
	drift := !a.snapshotLocked().Equal(t)
	if !drift {
		return false
	}
	s.counts = make(map[Key]int, len(t.Counts))
	for id, n := range t.Counts {
		if n > 0 {
			s.counts[Key{QuestionIndex: t.QuestionIndex, OptionID: id}] = n
		}
	}
	s.total = t.Total
	a.version++
	a.metrics.RecordDriftCorrected()
	log.Info().
		Str("session_id", a.sessionID.String()).
		Int("question_index", t.QuestionIndex).
		Int("total", t.Total).
		Msg("live tally corrected from answer log")
	return true
}
