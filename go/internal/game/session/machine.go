// Package session drives live quiz sessions: host commands, question
// deadlines, and the answer tally of the active question.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/nmsdosti/newquiz.onlin2/go/internal/apperrors"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/analytics"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/broadcast"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/events"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/reconcile"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/tally"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/timer"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/metrics"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/models"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/store"
)

const (
	opStartGame     = "start_game"
	opCloseQuestion = "close_question"
	opTimeExpire    = "time_expire"
	opAdvance       = "advance"
	opEndGame       = "end_game"
)

// Machine is the single writer of one session's state. Commands are
// serialized by mu; every transition is persisted with compare-and-set
// before any side effect runs.
type Machine struct {
	store       store.Store
	broadcaster broadcast.Broadcaster
	clock       clockwork.Clock
	metrics     metrics.Collector
	cfg         Config
	quiz        *models.Quiz
	agg         *tally.Aggregator
	id          uuid.UUID
	hostID      uuid.UUID

	mu      sync.Mutex
	session models.GameSession
	active  *ActiveQuestion

	// live mirrors the active question index (-1 for none) so the
	// reconciliation loop and nudges never need mu.
	live atomic.Int64
	loop atomic.Pointer[reconcile.Loop]

	stopped  chan struct{}
	stopOnce sync.Once
}

func newMachine(s models.GameSession, quiz *models.Quiz, st store.Store, b broadcast.Broadcaster, clock clockwork.Clock, m metrics.Collector, cfg Config) *Machine {
	mc := &Machine{
		store:       st,
		broadcaster: b,
		clock:       clock,
		metrics:     metrics.OrNoOp(m),
		cfg:         cfg,
		quiz:        quiz,
		agg:         tally.NewAggregator(s.ID, quiz, st, clock, m),
		id:          s.ID,
		hostID:      s.HostID,
		session:     s.Clone(),
		stopped:     make(chan struct{}),
	}
	mc.live.Store(-1)
	return mc
}

func (m *Machine) ID() uuid.UUID { return m.id }

// Authorize fails unless hostID is the session's host.
func (m *Machine) Authorize(hostID uuid.UUID) error {
	if hostID != m.hostID {
		return apperrors.NewAuthorizationError("host %s does not own session %s", hostID, m.id)
	}
	return nil
}

// StartGame moves Lobby to QuestionActive(0).
func (m *Machine) StartGame(ctx context.Context) (*Result, error) {
	return m.command(ctx, opStartGame, func(ctx context.Context) ([]string, error) {
		if phase := PhaseOf(m.session); phase != PhaseLobby {
			return nil, apperrors.NewStateError(opStartGame, string(phase), "session %s has already started", m.id)
		}
		if len(m.quiz.Questions) == 0 {
			return nil, apperrors.NewStateError(opStartGame, string(PhaseLobby), "quiz %s has no questions", m.quiz.ID)
		}

		now := m.clock.Now()
		next := m.session.Clone()
		first := 0
		next.Status = models.SessionStatusActive
		next.CurrentQuestionIndex = &first
		next.QuestionStartedAt = &now
		next.QuestionClosed = false
		if err := m.persist(ctx, opStartGame, next); err != nil {
			return nil, err
		}

		m.openQuestion(first, now)
		var warnings []string
		warnings = m.publish(ctx, warnings, events.GameStarted{QuizID: m.quiz.ID, TotalQuestions: len(m.quiz.Questions)})
		warnings = m.publish(ctx, warnings, m.questionStarted(first, now))
		return warnings, nil
	})
}

// CloseQuestion is the host-forced close of the active question. Closing a
// question that is already closed succeeds without side effects.
func (m *Machine) CloseQuestion(ctx context.Context) (*Result, error) {
	return m.command(ctx, opCloseQuestion, func(ctx context.Context) ([]string, error) {
		return m.closeLocked(ctx, opCloseQuestion)
	})
}

// Advance moves QuestionClosed(i) to QuestionActive(i+1), or to Completed
// after the last question.
func (m *Machine) Advance(ctx context.Context) (*Result, error) {
	return m.command(ctx, opAdvance, func(ctx context.Context) ([]string, error) {
		phase := PhaseOf(m.session)
		switch phase {
		case PhaseLobby:
			return nil, apperrors.NewStateError(opAdvance, string(phase), "session %s has not started", m.id)
		case PhaseQuestionActive:
			idx, _ := m.session.QuestionIndex()
			return nil, apperrors.NewStateError(opAdvance, string(phase), "question %d is still active", idx)
		case PhaseCompleted:
			return nil, apperrors.NewStateError(opAdvance, string(phase), "session %s is completed", m.id)
		}

		idx, _ := m.session.QuestionIndex()
		nextIdx := idx + 1
		if nextIdx >= len(m.quiz.Questions) {
			return m.completeLocked(ctx, opAdvance)
		}

		now := m.clock.Now()
		next := m.session.Clone()
		next.CurrentQuestionIndex = &nextIdx
		next.QuestionStartedAt = &now
		next.QuestionClosed = false
		if err := m.persist(ctx, opAdvance, next); err != nil {
			return nil, err
		}

		m.openQuestion(nextIdx, now)
		var warnings []string
		warnings = m.publish(ctx, warnings, events.QuestionChanged{QuestionIndex: nextIdx})
		warnings = m.publish(ctx, warnings, m.questionStarted(nextIdx, now))
		return warnings, nil
	})
}

// EndGame terminates the session from any state but Completed.
func (m *Machine) EndGame(ctx context.Context) (*Result, error) {
	return m.command(ctx, opEndGame, func(ctx context.Context) ([]string, error) {
		if phase := PhaseOf(m.session); phase == PhaseCompleted {
			return nil, apperrors.NewStateError(opEndGame, string(phase), "session %s is already completed", m.id)
		}
		return m.completeLocked(ctx, opEndGame)
	})
}

func (m *Machine) command(ctx context.Context, op string, fn func(ctx context.Context) ([]string, error)) (*Result, error) {
	start := time.Now()

	m.mu.Lock()
	from := PhaseOf(m.session)
	warnings, err := fn(ctx)
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.metrics.RecordCommand(op, outcomeOf(err), time.Since(start))
	if err != nil {
		log.Warn().
			Err(err).
			Str("session_id", snap.SessionID.String()).
			Str("op", op).
			Str("phase", string(from)).
			Msg("session command rejected")
		return nil, err
	}

	if from == snap.Phase && from != PhaseQuestionActive {
		log.Debug().
			Str("session_id", snap.SessionID.String()).
			Str("op", op).
			Str("phase", string(from)).
			Msg("session command had no effect")
		return &Result{Snapshot: snap, Warnings: warnings}, nil
	}

	ev := log.Info().
		Str("session_id", snap.SessionID.String()).
		Str("op", op).
		Str("from", string(from)).
		Str("to", string(snap.Phase))
	if snap.QuestionIndex != nil {
		ev = ev.Int("question_index", *snap.QuestionIndex)
	}
	ev.Int("warnings", len(warnings)).Msg("session transition applied")
	return &Result{Snapshot: snap, Warnings: warnings}, nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case apperrors.IsState(err):
		return "state_error"
	case apperrors.IsAuthorization(err):
		return "unauthorized"
	case apperrors.IsNotFound(err):
		return "not_found"
	case apperrors.IsTransport(err):
		return "transport_error"
	default:
		return "error"
	}
}

// resyncTimeout bounds the store read that follows a failed write.
const resyncTimeout = 5 * time.Second

// persist writes next conditioned on the current in-memory state and adopts
// it on success. When the outcome of the write is unknown the session is
// re-read: a write that landed is adopted as success, and any other state
// the store holds replaces the local view before the error is returned.
func (m *Machine) persist(ctx context.Context, op string, next models.GameSession) error {
	next.UpdatedAt = m.clock.Now()
	err := m.store.UpdateSession(ctx, &next, store.ExpectationOf(m.session))
	switch {
	case err == nil:
		m.session = next
		return nil
	case errors.Is(err, store.ErrNotFound):
		return apperrors.NewNotFoundError("session", m.id.String())
	case errors.Is(err, store.ErrConflict):
		err = apperrors.NewStateError(op, string(PhaseOf(m.session)), "session %s was modified concurrently", m.id)
	case !apperrors.IsTransport(err):
		err = apperrors.NewTransportError("persist "+op, err)
	}
	if m.resyncLocked(ctx, op, next) {
		return nil
	}
	return err
}

// resyncLocked reports whether the store already holds next.
func (m *Machine) resyncLocked(ctx context.Context, op string, next models.GameSession) bool {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resyncTimeout)
	defer cancel()

	stored, err := m.store.GetSession(ctx, m.id)
	if err != nil {
		log.Warn().Err(err).
			Str("session_id", m.id.String()).
			Str("op", op).
			Msg("failed to re-read session after write error")
		return false
	}
	if store.ExpectationOf(next).Matches(*stored) {
		m.session = stored.Clone()
		log.Info().
			Str("session_id", m.id.String()).
			Str("op", op).
			Msg("session write landed despite error")
		return true
	}
	if store.ExpectationOf(m.session).Matches(*stored) {
		return false
	}

	log.Warn().
		Str("session_id", m.id.String()).
		Str("op", op).
		Str("local", string(PhaseOf(m.session))).
		Str("stored", string(PhaseOf(*stored))).
		Msg("session diverged from store, resyncing")
	m.session = stored.Clone()
	m.restoreLocked(ctx)
	return false
}

// thaw reopens index for answers after a failed write, unless the session
// no longer has it active.
func (m *Machine) thaw(index int) {
	if cur, ok := m.session.QuestionIndex(); ok && cur == index && PhaseOf(m.session) == PhaseQuestionActive {
		m.agg.Thaw(index)
	}
}

// closeLocked moves QuestionActive(i) to QuestionClosed(i). Answers are
// frozen before the write so nothing is accepted after the close is durable.
func (m *Machine) closeLocked(ctx context.Context, op string) ([]string, error) {
	phase := PhaseOf(m.session)
	switch phase {
	case PhaseLobby, PhaseCompleted:
		return nil, apperrors.NewStateError(op, string(phase), "no question to close")
	case PhaseQuestionClosed:
		return nil, nil
	}

	idx, _ := m.session.QuestionIndex()
	m.agg.Freeze(idx)
	next := m.session.Clone()
	next.QuestionClosed = true
	if err := m.persist(ctx, op, next); err != nil {
		m.thaw(idx)
		return nil, err
	}

	loop := m.stopActive()
	var warnings []string
	if loop != nil {
		if err := loop.Pass(ctx); err != nil {
			warnings = append(warnings, fmt.Sprintf("final reconciliation of question %d failed: %v", idx, err))
			log.Warn().Err(err).
				Str("session_id", m.id.String()).
				Int("question_index", idx).
				Msg("final reconciliation failed, live tally kept")
		}
	}
	warnings = m.publish(ctx, warnings, events.TimeUp{QuestionIndex: idx})
	return warnings, nil
}

func (m *Machine) completeLocked(ctx context.Context, op string) ([]string, error) {
	idx, hasIdx := m.session.QuestionIndex()
	frozen := hasIdx && m.agg.Freeze(idx)

	now := m.clock.Now()
	next := m.session.Clone()
	next.Status = models.SessionStatusCompleted
	next.CurrentQuestionIndex = nil
	next.QuestionStartedAt = nil
	next.QuestionClosed = false
	next.CompletedAt = &now
	if err := m.persist(ctx, op, next); err != nil {
		if frozen {
			m.thaw(idx)
		}
		return nil, err
	}

	m.stopActive()
	m.agg.Clear()

	var warnings []string
	warnings = m.publish(ctx, warnings, events.GameEnded{})
	if err := m.saveSummary(ctx); err != nil {
		warnings = append(warnings, fmt.Sprintf("summary not saved: %v", err))
		log.Error().Err(err).Str("session_id", m.id.String()).Msg("failed to save session summary")
	}
	return warnings, nil
}

func (m *Machine) saveSummary(ctx context.Context) error {
	report, err := BuildReport(ctx, m.store, &m.session, m.quiz)
	if err != nil {
		return err
	}
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	if err := m.store.SaveSummary(ctx, m.id, data); err != nil {
		return fmt.Errorf("failed to save summary: %w", err)
	}
	return nil
}

// BuildReport loads the answer log and players of a completed session and
// builds its analytics report.
func BuildReport(ctx context.Context, st store.Store, s *models.GameSession, quiz *models.Quiz) (*analytics.Report, error) {
	answers, err := st.ListAnswers(ctx, s.ID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}
	players, err := st.ListPlayers(ctx, s.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	return analytics.Build(s, quiz, answers, players)
}

// openQuestion scopes the tally to index and starts the deadline and the
// reconciliation loop for it.
func (m *Machine) openQuestion(index int, startedAt time.Time) {
	m.stopActive()
	if err := m.agg.Reset(index, startedAt); err != nil {
		// index comes from a persisted transition bounded by the quiz length
		log.Error().Err(err).Str("session_id", m.id.String()).Msg("failed to scope tally")
	}
	m.live.Store(int64(index))

	ctx, cancel := context.WithCancel(context.Background())
	loop := reconcile.New(m.id, index, m.agg, m.liveIndex, m.clock, m.cfg.Reconcile, m.metrics)
	done := make(chan struct{})
	go func() {
		defer close(done)
		loop.Run(ctx)
	}()
	m.loop.Store(loop)

	q := m.quiz.Questions[index]
	m.active = &ActiveQuestion{
		Index:    index,
		Deadline: timer.Arm(m.clock, index, startedAt, q.TimeLimit(), m.onExpire),
		loop:     loop,
		cancel:   cancel,
		done:     done,
	}
}

// stopActive tears down the active question's background work and returns
// its loop for a final pass.
func (m *Machine) stopActive() *reconcile.Loop {
	a := m.active
	if a == nil {
		return nil
	}
	m.active = nil
	m.live.Store(-1)
	m.loop.Store(nil)
	a.stop()
	return a.loop
}

func (m *Machine) liveIndex() (int, bool) {
	v := m.live.Load()
	return int(v), v >= 0
}

// onExpire runs on the deadline's goroutine. Transport failures are retried
// because the timer fires only once; a stale index is ignored.
func (m *Machine) onExpire(index int) {
	m.metrics.RecordTimerExpired()
	ctx := context.Background()

	for attempt := 0; attempt <= m.cfg.ExpireRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-m.stopped:
				return
			case <-m.clock.After(m.cfg.ExpireRetryDelay * time.Duration(attempt)):
			}
		}

		stale := false
		_, err := m.command(ctx, opTimeExpire, func(ctx context.Context) ([]string, error) {
			if cur, ok := m.session.QuestionIndex(); !ok || cur != index || PhaseOf(m.session) != PhaseQuestionActive {
				stale = true
				return nil, nil
			}
			return m.closeLocked(ctx, opTimeExpire)
		})
		if stale || err == nil || !apperrors.IsTransport(err) {
			return
		}
		log.Warn().
			Err(err).
			Str("session_id", m.id.String()).
			Int("question_index", index).
			Int("attempt", attempt+1).
			Msg("failed to close expired question, retrying")
	}
}

func (m *Machine) questionStarted(index int, startedAt time.Time) events.QuestionStarted {
	q := m.quiz.Questions[index]
	return events.QuestionStarted{
		QuestionIndex: index,
		TimeLimit:     q.TimeLimitSeconds,
		StartedAt:     startedAt,
		Deadline:      startedAt.Add(q.TimeLimit()),
	}
}

// publish is fire-and-forget: a failure becomes a warning on the command.
func (m *Machine) publish(ctx context.Context, warnings []string, ev events.Event) []string {
	if m.broadcaster == nil {
		return warnings
	}
	if err := m.broadcaster.Publish(ctx, m.id, ev); err != nil {
		log.Warn().
			Err(err).
			Str("session_id", m.id.String()).
			Str("event_type", string(ev.Type())).
			Msg("failed to broadcast event")
		return append(warnings, fmt.Sprintf("broadcast %s failed: %v", ev.Type(), err))
	}
	return warnings
}

// SubmitAnswer validates and records a participant's answer.
func (m *Machine) SubmitAnswer(ctx context.Context, sub tally.Submission) (*models.AnswerEvent, error) {
	return m.agg.Submit(ctx, sub)
}

// Tally returns the tally of questionIndex, or of the current question when
// questionIndex is nil.
func (m *Machine) Tally(ctx context.Context, questionIndex *int) (*TallyView, error) {
	idx := 0
	if questionIndex != nil {
		idx = *questionIndex
	} else {
		m.mu.Lock()
		cur, ok := m.session.QuestionIndex()
		m.mu.Unlock()
		if !ok {
			return nil, apperrors.NewValidationError(apperrors.ReasonNotActive, "session %s has no current question", m.id)
		}
		idx = cur
	}

	t, err := m.agg.Tally(ctx, idx)
	if err != nil {
		if apperrors.IsValidation(err) {
			return nil, err
		}
		return nil, apperrors.NewTransportError("tally", err)
	}
	cur, _, scoped := m.agg.Current()
	q, _ := m.quiz.Question(idx)
	return &TallyView{
		Tally:  t,
		Shares: tally.Percentages(t, q.OptionIDs()),
		Live:   scoped && cur == idx,
	}, nil
}

// Nudge requests an early reconciliation pass if index is the active question.
func (m *Machine) Nudge(index int) {
	if loop := m.loop.Load(); loop != nil && loop.Index() == index {
		loop.Nudge()
	}
}

// NudgeActive requests an early pass for whatever question is active.
func (m *Machine) NudgeActive() {
	if loop := m.loop.Load(); loop != nil {
		loop.Nudge()
	}
}

// Snapshot returns the current session view.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() Snapshot {
	s := m.session.Clone()
	snap := Snapshot{
		SessionID:         s.ID,
		QuizID:            s.QuizID,
		PIN:               s.PIN,
		Status:            s.Status,
		Phase:             PhaseOf(s),
		TotalQuestions:    len(m.quiz.Questions),
		QuestionIndex:     s.CurrentQuestionIndex,
		QuestionStartedAt: s.QuestionStartedAt,
		CompletedAt:       s.CompletedAt,
	}
	idx, ok := s.QuestionIndex()
	if !ok || s.QuestionStartedAt == nil {
		return snap
	}
	if q, found := m.quiz.Question(idx); found {
		at := s.QuestionStartedAt.Add(q.TimeLimit())
		snap.Deadline = &at
		if snap.Phase == PhaseQuestionActive {
			snap.RemainingSeconds = timer.RemainingSeconds(at, m.clock.Now())
		}
	}
	return snap
}

// State returns the snapshot plus the tally of the current question.
func (m *Machine) State(ctx context.Context) (*State, error) {
	st := &State{Snapshot: m.Snapshot()}
	if st.QuestionIndex == nil {
		return st, nil
	}
	view, err := m.Tally(ctx, st.QuestionIndex)
	if err != nil {
		return nil, err
	}
	st.Tally = view
	return st, nil
}

// resume restores background work for a session loaded from the store. An
// active question is re-armed from its persisted start time, so a deadline
// that passed while the process was down fires at once.
func (m *Machine) resume(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restoreLocked(ctx)
}

// restoreLocked rebuilds the tally scope, deadline and reconciliation loop
// to match m.session.
func (m *Machine) restoreLocked(ctx context.Context) {
	m.stopActive()
	idx, ok := m.session.QuestionIndex()
	if !ok || m.session.Status != models.SessionStatusActive {
		m.agg.Clear()
		return
	}
	startedAt := m.clock.Now()
	if m.session.QuestionStartedAt != nil {
		startedAt = *m.session.QuestionStartedAt
	}

	if !m.session.QuestionClosed {
		m.openQuestion(idx, startedAt)
		log.Info().
			Str("session_id", m.id.String()).
			Int("question_index", idx).
			Int("remaining_seconds", m.active.Deadline.RemainingSeconds()).
			Msg("restored active question")
		return
	}

	if err := m.agg.Reset(idx, startedAt); err != nil {
		log.Error().Err(err).Str("session_id", m.id.String()).Msg("failed to scope tally")
		return
	}
	m.agg.Freeze(idx)
	if _, err := m.agg.Reconcile(ctx, idx); err != nil {
		log.Warn().Err(err).
			Str("session_id", m.id.String()).
			Int("question_index", idx).
			Msg("failed to rebuild closed question tally")
	}
	log.Info().
		Str("session_id", m.id.String()).
		Int("question_index", idx).
		Msg("restored closed question")
}

// shutdown stops background work without changing session state.
func (m *Machine) shutdown() {
	m.stopOnce.Do(func() { close(m.stopped) })
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopActive()
}
