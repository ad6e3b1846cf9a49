package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/nmsdosti/newquiz.onlin2/go/internal/apperrors"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/analytics"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/broadcast"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/reconcile"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/scoring"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/tally"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/metrics"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/models"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/store"
)

type Config struct {
	Reconcile        reconcile.Config
	ExpireRetries    int           // retries when closing an expired question fails to persist
	ExpireRetryDelay time.Duration // linear backoff step for those retries
	ReadRetries      int           // retries for store reads on query paths
	ReadRetryDelay   time.Duration
}

func DefaultConfig() Config {
	return Config{
		Reconcile:        reconcile.DefaultConfig(),
		ExpireRetries:    5,
		ExpireRetryDelay: 500 * time.Millisecond,
		ReadRetries:      2,
		ReadRetryDelay:   100 * time.Millisecond,
	}
}

// Manager owns one Machine per live session in this process.
type Manager struct {
	store       store.Store
	broadcaster broadcast.Broadcaster
	clock       clockwork.Clock
	metrics     metrics.Collector
	cfg         Config

	mu       sync.RWMutex
	machines map[uuid.UUID]*Machine
}

func NewManager(s store.Store, b broadcast.Broadcaster, clock clockwork.Clock, m metrics.Collector, cfg Config) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Manager{
		store:       s,
		broadcaster: b,
		clock:       clock,
		metrics:     metrics.OrNoOp(m),
		cfg:         cfg,
		machines:    make(map[uuid.UUID]*Machine),
	}
}

// machine returns the registered machine for id, loading it from the store
// on first use. Completed sessions get a throwaway machine for reads.
func (mgr *Manager) machine(ctx context.Context, id uuid.UUID) (*Machine, error) {
	mgr.mu.RLock()
	m, ok := mgr.machines[id]
	mgr.mu.RUnlock()
	if ok {
		return m, nil
	}

	var sess *models.GameSession
	err := mgr.read(ctx, "session", id.String(), func(ctx context.Context) error {
		var err error
		sess, err = mgr.store.GetSession(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	var quiz *models.Quiz
	err = mgr.read(ctx, "quiz", sess.QuizID.String(), func(ctx context.Context) error {
		var err error
		quiz, err = mgr.store.GetQuiz(ctx, sess.QuizID)
		return err
	})
	if err != nil {
		return nil, err
	}

	m = newMachine(*sess, quiz, mgr.store, mgr.broadcaster, mgr.clock, mgr.metrics, mgr.cfg)
	if sess.Status == models.SessionStatusCompleted {
		return m, nil
	}

	mgr.mu.Lock()
	if existing, ok := mgr.machines[id]; ok {
		mgr.mu.Unlock()
		return existing, nil
	}
	mgr.machines[id] = m
	n := len(mgr.machines)
	mgr.mu.Unlock()
	mgr.metrics.SetActiveSessions(n)

	m.resume(ctx)
	return m, nil
}

// read runs a store read, retrying transport failures with linear backoff.
// A missing row is reported as a NotFoundError and never retried.
func (mgr *Manager) read(ctx context.Context, kind, id string, fn func(ctx context.Context) error) error {
	op := "read " + kind
	var lastErr error
	for attempt := 0; attempt <= mgr.cfg.ReadRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return apperrors.NewTransportError(op, ctx.Err())
			case <-mgr.clock.After(mgr.cfg.ReadRetryDelay * time.Duration(attempt)):
			}
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.NewNotFoundError(kind, id)
		}
		lastErr = err
		log.Debug().Err(err).Str("op", op).Int("attempt", attempt+1).Msg("store read failed")
	}
	if apperrors.IsTransport(lastErr) {
		return lastErr
	}
	return apperrors.NewTransportError(op, lastErr)
}

func (mgr *Manager) release(id uuid.UUID) {
	mgr.mu.Lock()
	delete(mgr.machines, id)
	n := len(mgr.machines)
	mgr.mu.Unlock()
	mgr.metrics.SetActiveSessions(n)
}

// hostCommand loads and authorizes the machine, runs cmd, and drops the
// machine from the registry once the session is completed. A failed command
// can still find the session completed after re-reading the store.
func (mgr *Manager) hostCommand(ctx context.Context, sessionID, hostID uuid.UUID, cmd func(*Machine, context.Context) (*Result, error)) (*Result, error) {
	m, err := mgr.machine(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := m.Authorize(hostID); err != nil {
		return nil, err
	}
	res, err := cmd(m, ctx)
	if m.Snapshot().Phase == PhaseCompleted {
		m.shutdown()
		mgr.release(sessionID)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (mgr *Manager) StartGame(ctx context.Context, sessionID, hostID uuid.UUID) (*Result, error) {
	return mgr.hostCommand(ctx, sessionID, hostID, (*Machine).StartGame)
}

func (mgr *Manager) CloseQuestion(ctx context.Context, sessionID, hostID uuid.UUID) (*Result, error) {
	return mgr.hostCommand(ctx, sessionID, hostID, (*Machine).CloseQuestion)
}

func (mgr *Manager) Advance(ctx context.Context, sessionID, hostID uuid.UUID) (*Result, error) {
	return mgr.hostCommand(ctx, sessionID, hostID, (*Machine).Advance)
}

func (mgr *Manager) EndGame(ctx context.Context, sessionID, hostID uuid.UUID) (*Result, error) {
	return mgr.hostCommand(ctx, sessionID, hostID, (*Machine).EndGame)
}

// SubmitAnswer routes a participant's answer to its session. An unknown
// session is a validation failure, not a lookup failure.
func (mgr *Manager) SubmitAnswer(ctx context.Context, sub tally.Submission) (*models.AnswerEvent, error) {
	m, err := mgr.machine(ctx, sub.SessionID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NewValidationError(apperrors.ReasonUnknownSession, "session %s does not exist", sub.SessionID)
		}
		return nil, err
	}
	return m.SubmitAnswer(ctx, sub)
}

func (mgr *Manager) Tally(ctx context.Context, sessionID uuid.UUID, questionIndex *int) (*TallyView, error) {
	m, err := mgr.machine(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return m.Tally(ctx, questionIndex)
}

func (mgr *Manager) State(ctx context.Context, sessionID uuid.UUID) (*State, error) {
	m, err := mgr.machine(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return m.State(ctx)
}

// StateByPIN resolves a display code to its newest session.
func (mgr *Manager) StateByPIN(ctx context.Context, pin string) (*State, error) {
	var sess *models.GameSession
	err := mgr.read(ctx, "session", "pin "+pin, func(ctx context.Context) error {
		var err error
		sess, err = mgr.store.GetSessionByPIN(ctx, pin)
		return err
	})
	if err != nil {
		return nil, err
	}
	return mgr.State(ctx, sess.ID)
}

// Leaderboard recomputes the ranking from the answer log.
func (mgr *Manager) Leaderboard(ctx context.Context, sessionID uuid.UUID) ([]scoring.Entry, error) {
	if _, err := mgr.machine(ctx, sessionID); err != nil {
		return nil, err
	}
	var (
		players []models.Player
		answers []models.AnswerEvent
	)
	err := mgr.read(ctx, "answers", sessionID.String(), func(ctx context.Context) error {
		var err error
		if players, err = mgr.store.ListPlayers(ctx, sessionID); err != nil {
			return err
		}
		answers, err = mgr.store.ListAnswers(ctx, sessionID, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return scoring.Leaderboard(players, answers), nil
}

// Summary returns the stored report of a completed session, building it
// when it was never saved.
func (mgr *Manager) Summary(ctx context.Context, sessionID uuid.UUID) (*analytics.Report, error) {
	m, err := mgr.machine(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	snap := m.Snapshot()
	if snap.Status != models.SessionStatusCompleted {
		return nil, apperrors.NewStateError("summary", string(snap.Phase), "session %s is not completed", sessionID)
	}

	data, err := mgr.store.GetSummary(ctx, sessionID)
	if err == nil {
		var report analytics.Report
		if err := json.Unmarshal(data, &report); err != nil {
			return nil, fmt.Errorf("failed to decode stored summary: %w", err)
		}
		return &report, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("failed to load stored summary, rebuilding")
	}

	var report *analytics.Report
	err = mgr.read(ctx, "summary", sessionID.String(), func(ctx context.Context) error {
		m.mu.Lock()
		sess := m.session.Clone()
		m.mu.Unlock()
		var err error
		report, err = BuildReport(ctx, mgr.store, &sess, m.quiz)
		return err
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// Nudge requests an early reconciliation pass for a session's question. It
// never loads a session.
func (mgr *Manager) Nudge(sessionID uuid.UUID, questionIndex int) {
	mgr.mu.RLock()
	m := mgr.machines[sessionID]
	mgr.mu.RUnlock()
	if m != nil {
		m.Nudge(questionIndex)
	}
}

// NudgeAll requests a pass for every active question, used after a
// notification gap.
func (mgr *Manager) NudgeAll() {
	mgr.mu.RLock()
	ms := make([]*Machine, 0, len(mgr.machines))
	for _, m := range mgr.machines {
		ms = append(ms, m)
	}
	mgr.mu.RUnlock()
	for _, m := range ms {
		m.NudgeActive()
	}
}

// Recover loads every active session so their deadlines and reconciliation
// resume. It returns how many sessions were recovered.
func (mgr *Manager) Recover(ctx context.Context) (int, error) {
	var active []models.GameSession
	err := mgr.read(ctx, "sessions", "active", func(ctx context.Context) error {
		var err error
		active, err = mgr.store.ListActiveSessions(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, s := range active {
		if _, err := mgr.machine(ctx, s.ID); err != nil {
			log.Error().Err(err).Str("session_id", s.ID.String()).Msg("failed to recover session")
			continue
		}
		recovered++
	}
	log.Info().Int("sessions", recovered).Msg("recovered active sessions")
	return recovered, nil
}

// Shutdown stops every machine's background work. Session state is left as
// persisted so Recover can pick it up.
func (mgr *Manager) Shutdown() {
	mgr.mu.Lock()
	ms := mgr.machines
	mgr.machines = make(map[uuid.UUID]*Machine)
	mgr.mu.Unlock()
	for _, m := range ms {
		m.shutdown()
	}
	mgr.metrics.SetActiveSessions(0)
}
