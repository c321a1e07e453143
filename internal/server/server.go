// Package server wires the chi router that exposes the rebalancer's
// read-only HTTP surface: dry-run calculation endpoints and operational
// health checks. It never exposes an endpoint that submits orders — order
// submission is scheduler-only (spec.md §5).
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/vvolkov/rebalancer/internal/modules/rebalancing/handlers"
)

// Config configures the HTTP server.
type Config struct {
	Port     int
	Log      zerolog.Logger
	Accounts handlers.AccountSource
}

// Server wraps an http.Server with its chi router.
type Server struct {
	httpServer *http.Server
	log        zerolog.Logger
}

// New builds a Server. Routes are mounted but the listener is not opened
// until Start is called.
func New(cfg Config) *Server {
	log := cfg.Log.With().Str("component", "server").Logger()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", handleHealthz)

	rebalancingHandler := handlers.NewHandler(cfg.Accounts, log)
	r.Route("/api/rebalancing", rebalancingHandler.Routes)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}
}

// Start blocks serving HTTP until Shutdown is called, at which point it
// returns http.ErrServerClosed.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("starting HTTP server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
