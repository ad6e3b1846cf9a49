// Package reconcile keeps the live tally of an active question converged on
// the answer log.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/tally"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/metrics"
)

type Config struct {
	Interval   time.Duration // fixed pass interval
	MaxRetries int           // store read retries per pass
	RetryDelay time.Duration // linear backoff step between retries
}

func DefaultConfig() Config {
	return Config{
		Interval:   2 * time.Second,
		MaxRetries: 3,
		RetryDelay: 200 * time.Millisecond,
	}
}

// Target is the live tally being reconciled.
type Target interface {
	Version() uint64
	Authoritative(ctx context.Context, questionIndex int) (tally.Tally, error)
	Replace(t tally.Tally, version uint64) (applied, drift bool)
	Reconcile(ctx context.Context, questionIndex int) (drift bool, err error)
}

// LiveIndex reports the session's currently active question, if any.
type LiveIndex func() (index int, active bool)

// Loop reconciles one question of one session. It stops when its context is
// cancelled or when the session's active question is no longer its own.
type Loop struct {
	sessionID uuid.UUID
	index     int
	target    Target
	live      LiveIndex
	clock     clockwork.Clock
	cfg       Config
	metrics   metrics.Collector
	wakeCh    chan struct{}
}

func New(sessionID uuid.UUID, index int, target Target, live LiveIndex, clock clockwork.Clock, cfg Config, m metrics.Collector) *Loop {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	return &Loop{
		sessionID: sessionID,
		index:     index,
		target:    target,
		live:      live,
		clock:     clock,
		cfg:       cfg,
		metrics:   metrics.OrNoOp(m),
		wakeCh:    make(chan struct{}, 1),
	}
}

func (l *Loop) Index() int { return l.index }

// Nudge requests an early pass. Nudges coalesce; it never blocks.
func (l *Loop) Nudge() {
	select {
	case l.wakeCh <- struct{}{}:
	default:
	}
}

// Run passes once immediately, then on every interval tick or nudge.
func (l *Loop) Run(ctx context.Context) {
	ticker := l.clock.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	log.Debug().
		Str("session_id", l.sessionID.String()).
		Int("question_index", l.index).
		Dur("interval", l.cfg.Interval).
		Msg("reconciliation loop started")

	for {
		if l.stale() {
			l.metrics.RecordReconcilePass(metrics.ReconcileStale)
			log.Debug().
				Str("session_id", l.sessionID.String()).
				Int("question_index", l.index).
				Msg("reconciliation loop no longer current, stopping")
			return
		}
		if err := l.passWithRetry(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().
				Err(err).
				Str("session_id", l.sessionID.String()).
				Int("question_index", l.index).
				Msg("reconciliation pass failed, keeping last known tally")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		case <-l.wakeCh:
		}
	}
}

func (l *Loop) stale() bool {
	idx, active := l.live()
	return !active || idx != l.index
}

// optimisticAttempts is how many lock-free reads a pass tries before it
// falls back to reading under the aggregator lock.
const optimisticAttempts = 3

// Pass runs one reconciliation without retrying store failures. The
// authoritative tally is read without blocking submissions; while live
// counters keep moving the read is redone, and only then repeated under the
// aggregator lock.
func (l *Loop) Pass(ctx context.Context) error {
	var applied, drift bool
	for attempt := 0; attempt < optimisticAttempts && !applied; attempt++ {
		version := l.target.Version()
		t, err := l.target.Authoritative(ctx, l.index)
		if err != nil {
			l.metrics.RecordReconcilePass(metrics.ReconcileError)
			return fmt.Errorf("fetch authoritative tally: %w", err)
		}
		applied, drift = l.target.Replace(t, version)
	}

	if !applied {
		var err error
		drift, err = l.target.Reconcile(ctx, l.index)
		if err != nil {
			l.metrics.RecordReconcilePass(metrics.ReconcileError)
			return fmt.Errorf("reconcile under lock: %w", err)
		}
	}
	if drift {
		l.metrics.RecordReconcilePass(metrics.ReconcileDrift)
	} else {
		l.metrics.RecordReconcilePass(metrics.ReconcileOK)
	}
	return nil
}

// passWithRetry retries a failed pass with linear backoff.
func (l *Loop) passWithRetry(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt <= l.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := l.cfg.RetryDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-l.clock.After(delay):
			}
			if l.stale() {
				return nil
			}
		}
		if lastErr = l.Pass(ctx); lastErr == nil {
			return nil
		}
		log.Debug().
			Err(lastErr).
			Int("attempt", attempt+1).
			Int("max_attempts", l.cfg.MaxRetries+1).
			Msg("reconciliation attempt failed")
	}
	return fmt.Errorf("reconciliation failed after %d attempts: %w", l.cfg.MaxRetries+1, lastErr)
}
