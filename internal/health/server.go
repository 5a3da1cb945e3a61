// Package health exposes the liveness/readiness HTTP endpoints used by
// deployment supervision.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	logx "votebot/pkg/logx"
)

type Config struct {
	Enabled bool
	Addr    string

	// PingURL is the base URL for the self-ping (e.g. the public URL of the
	// deployment). Empty disables self-ping.
	PingURL string
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = "0.0.0.0:8080"
	}
	return c
}

// Service manages lifecycle for the health HTTP listener and holds the
// current liveness/readiness state.
type Service struct {
	mu   sync.Mutex
	log  logx.Logger
	srv  *http.Server
	ln   net.Listener
	addr string

	cfg Config

	healthy bool
	message string
	ready   bool

	http *http.Client
}

func New(log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:     log,
		healthy: true,
		message: "OK",
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// Apply starts/stops the server according to cfg.
func (s *Service) Apply(ctx context.Context, cfg Config) {
	cfg = cfg.withDefaults()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg

	if !cfg.Enabled {
		s.stopLocked(ctx)
		return
	}
	if s.srv != nil && s.addr == cfg.Addr {
		return
	}
	s.stopLocked(ctx)
	s.startLocked(cfg)
}

func (s *Service) startLocked(cfg Config) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/readiness", s.handleReadiness)

	srv := &http.Server{Addr: cfg.Addr, Handler: mux}
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		s.log.Warn("health listen failed", logx.String("addr", cfg.Addr), logx.Err(err))
		return
	}

	s.srv = srv
	s.ln = ln
	s.addr = ln.Addr().String()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("health server error", logx.Err(err))
		}
	}()
	s.log.Info("health endpoint enabled", logx.String("addr", s.addr))
}

// Stop gracefully shuts down the server.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(ctx)
}

func (s *Service) stopLocked(ctx context.Context) {
	if s.srv == nil {
		return
	}
	srv := s.srv
	ln := s.ln
	addr := s.addr
	s.srv = nil
	s.ln = nil
	s.addr = ""

	shutdownCtx := ctx
	if shutdownCtx == nil {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}

	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Warn("health shutdown error", logx.String("addr", addr), logx.Err(err))
	}
	if ln != nil {
		_ = ln.Close()
	}
	s.log.Info("health endpoint disabled", logx.String("addr", addr))
}

// Addr reports the actual listen address if running.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// SetStatus updates the liveness state served by /health.
func (s *Service) SetStatus(healthy bool, message string) {
	s.mu.Lock()
	s.healthy = healthy
	s.message = message
	s.mu.Unlock()
}

// SetReady updates the readiness state served by /readiness.
func (s *Service) SetReady(ready bool) {
	s.mu.Lock()
	s.ready = ready
	s.mu.Unlock()
}

// SelfPing issues one GET against the configured ping URL. Errors are logged
// at debug and otherwise ignored: the point is the traffic, not the answer.
func (s *Service) SelfPing(ctx context.Context) {
	s.mu.Lock()
	base := strings.TrimRight(s.cfg.PingURL, "/")
	s.mu.Unlock()
	if base == "" {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/health", http.NoBody)
	if err != nil {
		return
	}
	resp, err := s.http.Do(req)
	if err != nil {
		s.log.Debug("self-ping failed", logx.Err(err))
		return
	}
	_ = resp.Body.Close()
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	s.mu.Lock()
	healthy, message := s.healthy, s.message
	s.mu.Unlock()

	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{
		"status":  status,
		"message": message,
	})
}

func (s *Service) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	s.mu.Lock()
	ready := s.ready
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]bool{"ready": ready})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
