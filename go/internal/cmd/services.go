package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/nmsdosti/newquiz.onlin2/go/internal/auth"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/config"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/broadcast"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/gateway"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/notify"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/reconcile"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/service"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/session"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/health"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/metrics"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/store"
)

type Services struct {
	Sessions *session.Manager
	Host     *service.HostService
	Play     *service.PlayService
	Gateway  *gateway.Service
	Listener *notify.Listener
	JWT      *auth.JWTService
}

// setupBroadcaster connects to JetStream when a NATS URL is configured and
// keeps broadcasts in process otherwise.
func setupBroadcaster(cfg *config.Config, m *metrics.Manager) (broadcast.Broadcaster, error) {
	if cfg.NATSURL == "" {
		log.Info().Msg("no NATS url configured, broadcasting in process")
		return broadcast.NewLocal(nil, cfg.BroadcastQueue, m), nil
	}
	jsCfg := broadcast.DefaultJetStreamConfig()
	jsCfg.URL = cfg.NATSURL
	jsCfg.StreamName = cfg.NATSStream
	jsCfg.MaxAckPending = cfg.BroadcastQueue
	js, err := broadcast.NewJetStream(jsCfg, nil, m)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to jetstream: %w", err)
	}
	log.Info().Str("nats_url", cfg.NATSURL).Str("stream", cfg.NATSStream).Msg("broadcasting over jetstream")
	return js, nil
}

func setupServices(cfg *config.Config, database *sql.DB, bus broadcast.Broadcaster, m *metrics.Manager) (*Services, error) {
	// Database layer → Store → Session manager → RPC/gateway layer
	clock := clockwork.NewRealClock()
	st := store.NewPostgres(database)

	sessions := session.NewManager(st, bus, clock, m, session.Config{
		Reconcile: reconcile.Config{
			Interval:   cfg.ReconcileInterval,
			MaxRetries: cfg.ReadRetries,
			RetryDelay: cfg.ReadRetryDelay,
		},
		ExpireRetries:    cfg.ExpireRetries,
		ExpireRetryDelay: cfg.ExpireRetryDelay,
		ReadRetries:      cfg.ReadRetries,
		ReadRetryDelay:   cfg.ReadRetryDelay,
	})

	jwtService, err := auth.NewJWTService(cfg.JWTSecret, cfg.JWTTTL, cfg.JWTIssuer, clock)
	if err != nil {
		return nil, err
	}

	gwCfg := gateway.DefaultConfig()
	gwCfg.DedupeWindow = cfg.DedupeSize
	gwCfg.ConnectionConfig.SendBuffer = cfg.WSSendBuffer

	services := &Services{
		Sessions: sessions,
		Host:     service.NewHostService(sessions),
		Play:     service.NewPlayService(sessions),
		Gateway:  gateway.NewService(gwCfg, sessions, bus),
		JWT:      jwtService,
	}

	if cfg.NotifyEnabled {
		lcfg := notify.DefaultListenerConfig()
		lcfg.DatabaseURL = cfg.Database().DSN()
		lcfg.NotifyChannel = cfg.NotifyChannel
		lcfg.FallbackInterval = cfg.NotifyFallbackInterval
		listener, err := notify.NewListener(sessions, clock, lcfg)
		if err != nil {
			return nil, fmt.Errorf("failed to start answer listener: %w", err)
		}
		services.Listener = listener
	}
	return services, nil
}

func setupHealth(database *sql.DB, bus broadcast.Broadcaster) http.Handler {
	checker := health.NewChecker(0)
	checker.Register("database", database.PingContext)
	if js, ok := bus.(*broadcast.JetStream); ok {
		checker.Register("nats", func(context.Context) error {
			if status := js.Conn().Status(); status != nats.CONNECTED {
				return errors.New("nats " + status.String())
			}
			return nil
		})
	}
	return checker
}
