// Package gateway exposes the chat service over HTTP: /chat drives one
// conversation turn, /end-chat archives and evicts the session.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/nbarki/shipdesk/internal/observability"
	"github.com/nbarki/shipdesk/internal/tracing"
	"github.com/nbarki/shipdesk/pkg/archive"
	"github.com/nbarki/shipdesk/pkg/persona"
	"github.com/nbarki/shipdesk/pkg/provider"
	"github.com/nbarki/shipdesk/pkg/store"
	"github.com/rs/zerolog"
)

const (
	// providerTimeout bounds a single completion attempt. The call is
	// detached from the client connection, so this is the only limit.
	providerTimeout = 60 * time.Second

	archiveTimeout = 30 * time.Second
)

// Server is the HTTP front of the chat service
type Server struct {
	host           string
	port           int
	typingDelay    time.Duration
	typingCap      time.Duration
	server         *http.Server
	store          *store.Store
	engine         *persona.Engine
	completer      provider.Completer
	archiver       archive.Archiver
	logger         zerolog.Logger
	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
}

// Config holds server configuration
type Config struct {
	Host string
	Port int

	// TypingDelay is the simulated typing delay per reply character;
	// the total is capped by TypingDelayCap. Zero disables the delay.
	TypingDelay    time.Duration
	TypingDelayCap time.Duration

	Store     *store.Store
	Engine    *persona.Engine
	Completer provider.Completer
	Archiver  archive.Archiver
	Logger    zerolog.Logger
}

// NewServer creates a new chat server
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("persona engine is required")
	}
	if cfg.Completer == nil {
		return nil, fmt.Errorf("completion provider is required")
	}
	if cfg.Archiver == nil {
		return nil, fmt.Errorf("transcript archiver is required")
	}
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}

	return &Server{
		host:        cfg.Host,
		port:        cfg.Port,
		typingDelay: cfg.TypingDelay,
		typingCap:   cfg.TypingDelayCap,
		store:       cfg.Store,
		engine:      cfg.Engine,
		completer:   cfg.Completer,
		archiver:    cfg.Archiver,
		logger:      cfg.Logger,
	}, nil
}

// Handler builds the full request handler, including middleware
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", s.handleChat)
	mux.HandleFunc("/end-chat", s.handleEndChat)
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	return s.withCORS(s.withRequestID(mux))
}

// Start starts the server and blocks until shutdown
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.host, s.port),
		Handler: s.Handler(),
	}

	s.logger.Info().
		Str("host", s.host).
		Int("port", s.port).
		Msg("Starting chat server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start chat server: %w", err)
	}

	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down chat server")

	// Wait for in-flight requests with timeout
	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-time.After(30 * time.Second):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}

	s.logger.Info().Msg("Chat server stopped")
	return nil
}

// beginRequest registers a request with the in-flight group unless the
// server is draining. The check and the Add happen under the same lock
// Stop takes before waiting, so no request can slip in once the wait
// has started.
func (s *Server) beginRequest() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()

	if s.isShuttingDown {
		return false
	}
	s.inFlightReqs.Add(1)
	return true
}

// withRequestID tags every request with a request id and a trace id
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID, err := gonanoid.New()
		if err != nil {
			requestID = tracing.NewTraceID()
		}

		ctx := tracing.NewRequestContext(r.Context())
		ctx = tracing.WithRequestID(ctx, requestID)

		w.Header().Set("X-Request-Id", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withCORS allows browser clients from any origin
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
