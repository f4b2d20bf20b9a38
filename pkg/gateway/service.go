package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"corridorbots/pkg/config"
	"corridorbots/pkg/session"
)

const (
	defaultHealthHost   = "127.0.0.1"
	defaultHealthPort   = 18790
	providerCheckPeriod = 30 * time.Second
)

// SessionSource lists the sessions the fleet is running.
type SessionSource interface {
	Sessions() []session.Status
}

// HealthChecker reports whether the generation backend is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

type Service struct {
	cfg      config.GatewayConfig
	sessions SessionSource
	provider HealthChecker
	log      *slog.Logger

	mu               sync.RWMutex
	startedAt        time.Time
	providerLastOKAt time.Time
	providerLastErr  string
}

type statusResponse struct {
	Status           string         `json:"status"`
	UptimeSeconds    int64          `json:"uptime_seconds"`
	ProviderLastOKAt string         `json:"provider_last_ok_at,omitempty"`
	ProviderLastErr  string         `json:"provider_last_error,omitempty"`
	Bots             map[string]int `json:"bots"`
}

// NewService builds the status server. provider may be nil when no bot
// generates text.
func NewService(cfg config.GatewayConfig, sessions SessionSource, provider HealthChecker, log *slog.Logger) (*Service, error) {
	if sessions == nil {
		return nil, errors.New("session source is required")
	}
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		cfg:      cfg,
		sessions: sessions,
		provider: provider,
		log:      log.With("component", "gateway.service"),
	}, nil
}

// Run serves the status endpoints until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	listener, err := net.Listen("tcp", s.address())
	if err != nil {
		return fmt.Errorf("start status server: %w", err)
	}

	if s.provider != nil {
		go s.watchProvider(ctx)
	}

	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Gateway status server started", "address", listener.Addr().String())
	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve status: %w", err)
	}

	return nil
}

func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /bots", s.handleBots)
	return mux
}

func (s *Service) address() string {
	host := strings.TrimSpace(s.cfg.Host)
	if host == "" {
		host = defaultHealthHost
	}

	port := s.cfg.Port
	if port <= 0 {
		port = defaultHealthPort
	}

	return net.JoinHostPort(host, strconv.Itoa(port))
}

func (s *Service) watchProvider(ctx context.Context) {
	ticker := time.NewTicker(providerCheckPeriod)
	defer ticker.Stop()

	for {
		if err := s.checkProviderHealth(ctx); err != nil && ctx.Err() == nil {
			s.log.Warn("Provider health check failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondStatus(w, http.StatusOK, "ok")
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	statusCode := http.StatusOK
	status := "ready"
	if !s.isReady() {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	s.respondStatus(w, statusCode, status)
}

func (s *Service) handleBots(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.sessions.Sessions())
}

func (s *Service) respondStatus(w http.ResponseWriter, statusCode int, status string) {
	s.writeJSON(w, statusCode, s.currentStatus(status))
}

func (s *Service) writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}

func (s *Service) currentStatus(status string) statusResponse {
	bots := make(map[string]int)
	for _, st := range s.sessions.Sessions() {
		bots[string(st.State)]++
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	providerLastOK := ""
	if !s.providerLastOKAt.IsZero() {
		providerLastOK = s.providerLastOKAt.Format(time.RFC3339)
	}

	return statusResponse{
		Status:           status,
		UptimeSeconds:    uptime,
		ProviderLastOKAt: providerLastOK,
		ProviderLastErr:  s.providerLastErr,
		Bots:             bots,
	}
}

// isReady reports whether at least one session is active.
func (s *Service) isReady() bool {
	for _, st := range s.sessions.Sessions() {
		if st.State == session.StateActive {
			return true
		}
	}

	return false
}

func (s *Service) checkProviderHealth(ctx context.Context) error {
	if err := s.provider.Health(ctx); err != nil {
		s.mu.Lock()
		s.providerLastErr = err.Error()
		s.mu.Unlock()
		return fmt.Errorf("provider health check failed: %w", err)
	}

	s.mu.Lock()
	s.providerLastErr = ""
	s.providerLastOKAt = time.Now().UTC()
	s.mu.Unlock()

	return nil
}
