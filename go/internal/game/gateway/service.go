// Package gateway serves observers: a WebSocket fan-out of session events and
// the HTTP state endpoints they re-pull from.
package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/broadcast"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/events"
)

// Service relays broadcast envelopes to WebSocket observers and serves state.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	broadcaster       broadcast.Broadcaster
	deduper           *events.Deduper
}

type Config struct {
	ConnectionConfig ConnectionConfig
	DedupeWindow     int // event ids remembered for duplicate suppression
}

func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		DedupeWindow:     10000,
	}
}

func NewService(config Config, stateProvider StateProvider, b broadcast.Broadcaster) *Service {
	cm := NewConnectionManager(config.ConnectionConfig)
	deduper := events.NewDeduper(config.DedupeWindow)
	cm.OnSessionEmpty(deduper.Forget)
	return &Service{
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm),
		stateHandler:      NewStateHandler(stateProvider),
		broadcaster:       b,
		deduper:           deduper,
	}
}

// Start subscribes to every session's events and relays them to observers
// until ctx is done. It returns once the subscription is in place.
// Duplicated and stale envelopes are dropped before fan-out.
func (s *Service) Start(ctx context.Context) error {
	sub, err := s.broadcaster.Subscribe(broadcast.AllSessions, s.relay)
	if err != nil {
		return fmt.Errorf("failed to subscribe to session events: %w", err)
	}
	log.Info().Msg("session gateway service started")

	go s.connectionManager.Start(ctx)
	go func() {
		<-ctx.Done()
		if err := sub.Unsubscribe(); err != nil {
			log.Error().Err(err).Msg("failed to unsubscribe gateway")
		}
		log.Info().Msg("session gateway service stopped")
	}()
	return nil
}

// relay only tracks sessions someone is watching; observers that attach
// later re-pull the state instead of replaying missed events.
func (s *Service) relay(_ context.Context, env events.Envelope) {
	if !s.connectionManager.HasObservers(env.SessionID) {
		return
	}
	if !s.deduper.Observe(env) {
		log.Debug().
			Str("event_id", env.ID.String()).
			Str("session_id", env.SessionID.String()).
			Str("event_type", string(env.Type)).
			Msg("dropping duplicate or stale event")
		return
	}
	s.connectionManager.BroadcastToSession(env)
}

func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("session gateway routes registered")
}

func (s *Service) Stats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}
