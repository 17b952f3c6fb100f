// Package httpapi exposes the agent's parameter get/set surface and
// lifecycle event stream over HTTP, grounded on xzhiot-lorawan_server's
// internal/api: chi router, go-chi/cors, and the same
// respondJSON/respondError helper pair. The surface is diagnostic and
// operator-facing, never load-bearing for the state machine itself
// (spec §6, "out of core scope").
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/fpga-edge/drm-agent-go"
)

// Server is the HTTP surface wrapping one Agent.
type Server struct {
	agent  *drmagent.Agent
	hub    *Hub
	router chi.Router
	server *http.Server
	log    zerolog.Logger
}

// NewServer builds a Server around agent. hub is optional — pass nil
// to disable the /api/v1/events websocket stream.
func NewServer(agent *drmagent.Agent, hub *Hub, log zerolog.Logger) *Server {
	s := &Server{agent: agent, hub: hub, router: chi.NewRouter(), log: log}
	s.setupRoutes()
	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	s.router.Route("/api/v1", func(r chi.Router) {
		s.setupAPIRoutes(r)
	})
}

// ListenAndServe starts the server on addr. It blocks until the
// server stops or fails to start.
func (s *Server) ListenAndServe(addr string) error {
	s.server.Addr = addr
	s.log.Info().Str("addr", addr).Msg("starting httpapi server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error().Err(err).Msg("encode response")
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(v)
}
