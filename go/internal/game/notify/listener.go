// Package notify turns Postgres answer notifications into reconciliation
// nudges.
package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

type ListenerConfig struct {
	DatabaseURL      string        // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel    string        // channel the answer trigger notifies on
	FallbackInterval time.Duration // how often every active question is nudged regardless
	PingInterval     time.Duration
	MinReconnect     time.Duration
	MaxReconnect     time.Duration
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		NotifyChannel:    "answer_events",
		FallbackInterval: 30 * time.Second,
		PingInterval:     90 * time.Second,
		MinReconnect:     10 * time.Second,
		MaxReconnect:     time.Minute,
	}
}

// Nudger receives the hints. session.Manager implements it.
type Nudger interface {
	Nudge(sessionID uuid.UUID, questionIndex int)
	NudgeAll()
}

type Listener struct {
	notify <-chan *pq.Notification
	ping   func() error
	close  func() error
	nudger Nudger
	clock  clockwork.Clock
	cfg    ListenerConfig
}

// NewListener subscribes to cfg.NotifyChannel.
func NewListener(nudger Nudger, clock clockwork.Clock, cfg ListenerConfig) (*Listener, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		cfg.MinReconnect,
		cfg.MaxReconnect,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for answer notifications")

	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Listener{
		notify: l.Notify,
		ping:   l.Ping,
		close:  l.Close,
		nudger: nudger,
		clock:  clock,
		cfg:    cfg,
	}, nil
}

// Start dispatches notifications until ctx is done.
func (l *Listener) Start(ctx context.Context) error {
	log.Info().
		Str("channel", l.cfg.NotifyChannel).
		Dur("ping_interval", l.cfg.PingInterval).
		Dur("fallback_interval", l.cfg.FallbackInterval).
		Msg("answer listener started")

	pingTicker := l.clock.NewTicker(l.cfg.PingInterval)
	fallbackTicker := l.clock.NewTicker(l.cfg.FallbackInterval)
	defer pingTicker.Stop()
	defer fallbackTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("answer listener shutting down")
			return l.close()
		case note := <-l.notify:
			if note == nil {
				// Reconnected; anything sent meanwhile was lost.
				l.nudger.NudgeAll()
				continue
			}
			if err := l.handleNotification(note.Extra); err != nil {
				log.Error().Err(err).Msg("failed to handle notification")
			}
		case <-fallbackTicker.Chan():
			l.nudger.NudgeAll()
		case <-pingTicker.Chan():
			if err := l.ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

func (l *Listener) handleNotification(extra string) error {
	sessionID, idx, err := ParsePayload(extra)
	if err != nil {
		return err
	}
	l.nudger.Nudge(sessionID, idx)
	return nil
}

// ParsePayload reads the "<session id>:<question index>" payload written by
// the answer_events trigger.
func ParsePayload(extra string) (uuid.UUID, int, error) {
	sid, idx, ok := strings.Cut(extra, ":")
	if !ok {
		return uuid.Nil, 0, fmt.Errorf("malformed notification payload %q", extra)
	}
	sessionID, err := uuid.Parse(sid)
	if err != nil {
		return uuid.Nil, 0, fmt.Errorf("invalid session id in notification: %w", err)
	}
	n, err := strconv.Atoi(idx)
	if err != nil || n < 0 {
		return uuid.Nil, 0, fmt.Errorf("invalid question index in notification %q", idx)
	}
	return sessionID, n, nil
}
