// Package http exposes the intake operations over JSON HTTP.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"medvise-backend/internal/core"
)

// Server bundles the dependencies required by the HTTP handlers.  It
// implements http.Handler so it can be passed to an http.Server or httptest.
type Server struct {
	intake *core.IntakeService
	log    zerolog.Logger
	router *gin.Engine
}

// NewServer builds the router.  The gin mode is left to the caller.
func NewServer(intake *core.IntakeService, logger zerolog.Logger) (*Server, error) {
	if intake == nil {
		return nil, errors.New("http: intake service is required")
	}
	s := &Server{
		intake: intake,
		log:    logger.With().Str("component", "http").Logger(),
		router: gin.New(),
	}
	s.router.Use(gin.Recovery(), requestLogger(s.log))
	s.registerRoutes()
	return s, nil
}

// ServeHTTP dispatches to the gin router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run listens on port until ctx is cancelled, then shuts down gracefully,
// letting in-flight requests finish for up to ten seconds.
func (s *Server) Run(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("shutdown")
		}
	}()

	s.log.Info().Int("port", port).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http: %w", err)
	}
	return nil
}

// requestLogger writes one line per request.
func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		ev := log.Info()
		if status >= http.StatusInternalServerError {
			ev = log.Error()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("session_id", c.GetHeader(headerSessionID)).
			Msg("request")
	}
}
