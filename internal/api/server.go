// SPDX-License-Identifier: MIT

// Package api binds the service facade to HTTP. Transport concerns only:
// auth, rate limiting, serialization and status mapping live here, all
// behavior stays in the service.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/mediaflow/internal/log"
	"github.com/ManuGH/mediaflow/internal/service"
	"github.com/ManuGH/mediaflow/internal/store"
)

// Server is the HTTP binding of the platform.
type Server struct {
	svc    *service.Service
	store  *store.Store
	logger zerolog.Logger
}

// New wires the HTTP server over the service facade. The store is used for
// token validation and read-only detail endpoints.
func New(svc *service.Service, st *store.Store) *Server {
	return &Server{
		svc:    svc,
		store:  st,
		logger: log.WithComponent("api"),
	}
}

// Validate resolves a bearer token to its user.
func (s *Server) Validate(ctx context.Context, token string) (string, error) {
	t, err := s.store.ValidateRefreshToken(ctx, token)
	if err != nil {
		return "", err
	}
	return t.UserID, nil
}

// Router assembles the full route tree with the canonical middleware stack.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(recoverer)
	r.Use(requestID)
	r.Use(requestLogger)
	r.Use(rateLimit(600, time.Minute))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth(s))

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.handleListJobs)
			r.Post("/", s.handleCreateJob)
			r.Route("/{jobID}", func(r chi.Router) {
				r.Get("/", s.handleGetJob)
				r.Put("/", s.handleUpdateJob)
				r.Delete("/", s.handleDeleteJob)
				r.With(rateLimit(10, time.Minute)).Post("/trigger", s.handleTriggerJob)
				r.Post("/dry-run", s.handleDryRunJob)
			})
		})

		r.Route("/recordings", func(r chi.Router) {
			r.Get("/", s.handleListRecordings)
			r.Route("/{recordingID}", func(r chi.Router) {
				r.Get("/", s.handleGetRecording)
				r.Delete("/", s.handleDeleteRecording)
				r.Patch("/config", s.handlePatchRecordingConfig)
				r.Post("/pause", s.handlePauseRecording)
				r.Post("/resume", s.handleResumeRecording)
				r.Post("/retry", s.handleRetryRecording)
				r.Get("/stages", s.handleListStages)
			})
		})

		r.Get("/quota", s.handleQuotaStatus)
		r.Post("/auth/revoke", s.handleRevokeToken)
	})

	return r
}

// Serve runs the HTTP listener until ctx is canceled, then drains.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("http listener started")
		errc <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errc:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
