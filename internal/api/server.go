package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/salsowa/smarthome-core/internal/audit"
	"github.com/salsowa/smarthome-core/internal/hierarchy"
	"github.com/salsowa/smarthome-core/internal/infrastructure/config"
	"github.com/salsowa/smarthome-core/internal/infrastructure/logging"
	"github.com/salsowa/smarthome-core/internal/latest"
	"github.com/salsowa/smarthome-core/internal/telemetry"
)

const gracefulShutdownTimeout = 10 * time.Second

// LatestReader reads a device's most recent data payload.
// *latest.Cache satisfies it.
type LatestReader interface {
	Get(ctx context.Context, deviceID string) (latest.Entry, error)
}

// HealthChecker is implemented by every infrastructure client.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ConnectionStatus reports whether a broker connection is up.
type ConnectionStatus interface {
	IsConnected() bool
}

// DBStatsProvider exposes connection pool statistics. *database.DB satisfies it.
type DBStatsProvider interface {
	Stats() sql.DBStats
}

// TelemetryStats exposes ingest counters. *telemetry.Ingester satisfies it.
type TelemetryStats interface {
	Stats() telemetry.Stats
}

// Deps holds the dependencies required by the API server. Logger and Store
// are required; everything else is optional and the matching endpoints
// degrade when it is missing.
type Deps struct {
	Config config.APIConfig
	WS     config.WebSocketConfig
	Logger *logging.Logger
	Store  *hierarchy.Store

	Latest    LatestReader
	Audit     audit.Repository
	DB        DBStatsProvider
	MQTT      ConnectionStatus
	Telemetry TelemetryStats

	// HealthChecks are run by GET /health, keyed by component name.
	HealthChecks map[string]HealthChecker

	// Hub, if set, is used instead of a hub created by New. Either way the
	// hub is registered as a store observer.
	Hub *Hub

	Version string
}

// Server serves the REST API, the WebSocket change feed and the metrics
// endpoints. Create it with New; nothing listens until Start.
type Server struct {
	cfg    config.APIConfig
	logger *logging.Logger
	store  *hierarchy.Store
	hub    *Hub

	latest       LatestReader
	auditRepo    audit.Repository
	db           DBStatsProvider
	mqtt         ConnectionStatus
	telemetry    TelemetryStats
	healthChecks map[string]HealthChecker

	version   string
	startTime time.Time
	registry  *prometheus.Registry
	metrics   *httpMetrics

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	stopHub  context.CancelFunc
}

// New wires a Server from deps. The hub is subscribed to store changes
// before New returns, so no change is missed between New and Start.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, errors.New("logger is required")
	case deps.Store == nil:
		return nil, errors.New("hierarchy store is required")
	}

	hub := deps.Hub
	if hub == nil {
		hub = NewHub(deps.WS, deps.Logger)
	}
	deps.Store.AddObserver(hub)

	s := &Server{
		cfg:          deps.Config,
		logger:       deps.Logger,
		store:        deps.Store,
		hub:          hub,
		latest:       deps.Latest,
		auditRepo:    deps.Audit,
		db:           deps.DB,
		mqtt:         deps.MQTT,
		telemetry:    deps.Telemetry,
		healthChecks: deps.HealthChecks,
		version:      deps.Version,
		startTime:    time.Now(),
		registry:     prometheus.NewRegistry(),
	}

	var err error
	if s.metrics, err = newHTTPMetrics(s.registry, s); err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}
	return s, nil
}

// Hub returns the WebSocket hub, for wiring other broadcasters to it.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the configured address and serves in the background. A bind
// failure is returned here rather than logged later. The hub runs until
// ctx is cancelled or Close is called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return errors.New("api server already started")
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	hubCtx, stop := context.WithCancel(ctx)
	go s.hub.Run(hubCtx)

	srv := &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.Timeouts.Read,
		ReadHeaderTimeout: s.cfg.Timeouts.Read,
		WriteTimeout:      s.cfg.Timeouts.Write,
		IdleTimeout:       s.cfg.Timeouts.Idle,
	}
	s.server, s.listener, s.stopHub = srv, ln, stop

	tls := s.cfg.TLS
	s.logger.Info("API server listening", "address", ln.Addr().String(), "tls", tls.Enabled)
	go func() {
		var err error
		if tls.Enabled {
			err = srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server stopped", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close stops the hub and shuts the listener down, giving in-flight
// requests up to gracefulShutdownTimeout to finish.
func (s *Server) Close() error {
	s.mu.Lock()
	srv, stop := s.server, s.stopHub
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	stop()

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()
	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck fails until Start has succeeded.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api health check: %w", err)
	}
	if s.Addr() == "" {
		return errors.New("api server not started")
	}
	return nil
}
