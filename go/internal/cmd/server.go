package main

import (
	"net/http"

	"connectrpc.com/connect"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/nmsdosti/newquiz.onlin2/go/internal/auth"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/config"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/service"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/metrics"
)

func setupServer(cfg *config.Config, services *Services, m *metrics.Manager, healthHandler http.Handler) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: cfg.Origins(),
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{service.ReasonHeader},
	})

	registerServices(mux, services)

	// Observer websocket and state re-pull routes
	services.Gateway.RegisterRoutes(mux)

	mux.Handle("/health", healthHandler)
	mux.Handle("/metrics", m.Handler())

	// Wrap with CORS
	handler := c.Handler(mux)

	// Setup HTTP/2 server
	return &http.Server{
		Addr:    cfg.Addr,
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}

func registerServices(mux *http.ServeMux, services *Services) {
	// Host commands require a bearer token
	hostPath, hostHandler := service.NewHostServiceHandler(
		services.Host,
		connect.WithInterceptors(auth.NewHostInterceptor(services.JWT)),
	)
	mux.Handle(hostPath, hostHandler)

	playPath, playHandler := service.NewPlayServiceHandler(services.Play)
	mux.Handle(playPath, playHandler)
}
