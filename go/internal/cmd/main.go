package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/nmsdosti/newquiz.onlin2/go/internal/config"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := setupDatabase(ctx, cfg.Database())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up database")
	}
	defer database.Close()

	m := metrics.NewManager()
	bus, err := setupBroadcaster(cfg, m)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up broadcaster")
	}
	defer bus.Close()

	services, err := setupServices(cfg, database, bus, m)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up services")
	}
	defer services.Sessions.Shutdown()

	if n, err := services.Sessions.Recover(ctx); err != nil {
		log.Error().Err(err).Msg("failed to recover active sessions")
	} else if n > 0 {
		log.Info().Int("sessions", n).Msg("resumed sessions after restart")
	}

	if err := services.Gateway.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start gateway")
	}
	if services.Listener != nil {
		go func() {
			if err := services.Listener.Start(ctx); err != nil {
				log.Error().Err(err).Msg("answer listener stopped")
			}
		}()
	}

	server := setupServer(cfg, services, m, setupHealth(database, bus))
	go func() {
		log.Info().Str("addr", server.Addr).Msg("quizd listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to shut down server cleanly")
	}
}
