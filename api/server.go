// Package api exposes the chatbot over HTTP.
//
// Endpoints:
//
//	POST /api/v1/chat/query     →  SSE answer stream
//	GET  /api/v1/chat/history   →  paginated session history
//	POST /api/v1/chat/feedback  →  rate an assistant message
//	POST /api/v1/chat/migrate   →  attach a session to a signed-in user
//	GET  /health                →  dependency health summary
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: request id, logging, recovery, CORS
//   - ratelimit.go: per-client token bucket
//   - chat.go: SSE query endpoint
//   - session.go: history, feedback and migrate endpoints
//   - health.go: health endpoint
//   - response.go: JSON response helpers
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/studyhall/ragchat/internal/log"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = "127.0.0.1:8000"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 30 * time.Second

	// ReadHeaderTimeout is the timeout for reading request headers.
	// This prevents Slowloris attacks (CWE-400).
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout bounds the whole response. Generous because answers
	// stream over SSE.
	WriteTimeout = 2 * time.Minute

	// IdleTimeout is the maximum time to wait for the next request on keep-alive connections.
	IdleTimeout = 2 * time.Minute
)

// Options tune the outer middleware.
type Options struct {
	// CORSOrigins lists allowed origins. Empty disables CORS headers.
	CORSOrigins []string

	// TrustProxy makes the rate limiter read X-Forwarded-For.
	TrustProxy bool
}

// Server is the HTTP server for the chatbot API.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger
	opts   Options

	chat    *ChatHandler
	session *SessionHandler
	health  *HealthHandler
	limiter *rateLimiter
}

// NewServer creates a new HTTP server with all routes registered.
func NewServer(chat *ChatHandler, session *SessionHandler, health *HealthHandler, opts Options, logger log.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		mux:     mux,
		logger:  logger,
		opts:    opts,
		chat:    chat,
		session: session,
		health:  health,
		limiter: newRateLimiter(opts.TrustProxy),
	}

	s.chat.RegisterRoutes(mux)
	s.session.RegisterRoutes(mux)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → request id → logging → CORS → rate limit.
// The health endpoint sits outside the chain apart from request ids, so a
// hammering load balancer never trips the limiter.
func (s *Server) Handler() http.Handler {
	apiHandler := chain(s.mux,
		recoveryMiddleware(s.logger),
		requestIDMiddleware,
		loggingMiddleware(s.logger),
		corsMiddleware(s.opts.CORSOrigins),
		s.limiter.middleware,
	)

	healthHandler := chain(http.HandlerFunc(s.health.handle), requestIDMiddleware)

	root := http.NewServeMux()
	root.HandleFunc("GET /health", healthHandler.ServeHTTP)
	root.Handle("/", apiHandler)
	return root
}

// Run starts the HTTP server and blocks until the context is cancelled.
// It handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
