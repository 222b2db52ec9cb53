package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/cloud4rpi-go/internal/device"
	"github.com/nerrad567/cloud4rpi-go/internal/infrastructure/config"
	"github.com/nerrad567/cloud4rpi-go/internal/infrastructure/logging"
	"github.com/nerrad567/cloud4rpi-go/internal/runner"
	"github.com/nerrad567/cloud4rpi-go/internal/transport"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// StatsSource reports the driver loop counters.
type StatsSource interface {
	Stats() runner.Stats
}

// SpoolSource reports how many messages wait in the offline spool.
type SpoolSource interface {
	Len(ctx context.Context) (int, error)
}

// LinkSource reports the state of a persistent cloud link.
type LinkSource interface {
	IsConnected() bool
	Reconnects() int
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config config.APIConfig
	Logger *logging.Logger
	Device *device.Device

	// Hub is the live feed. If nil the server creates and runs its own.
	Hub *Hub

	// Optional status sources for /metrics.
	Runner StatsSource
	Spool  SpoolSource
	Link   LinkSource

	Version string
}

// Server is the daemon's loopback HTTP API and live feed.
type Server struct {
	cfg         config.APIConfig
	logger      *logging.Logger
	device      *device.Device
	runner      StatsSource
	spool       SpoolSource
	link        LinkSource
	version     string
	startTime   time.Time
	server      *http.Server
	addr        string
	hub         *Hub
	externalHub bool               // true if hub was injected externally
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New validates deps and prepares the server. Nothing listens until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Device == nil {
		return nil, fmt.Errorf("device is required")
	}

	s := &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		device:    deps.Device,
		runner:    deps.Runner,
		spool:     deps.Spool,
		link:      deps.Link,
		version:   deps.Version,
		startTime: time.Now(),
	}

	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	} else {
		s.hub = NewHub(deps.Config.WS, deps.Logger)
	}
	s.hub.SetSnapshot(s.snapshot)

	return s, nil
}

// snapshot gives new feed subscribers the current config and stored
// values. Diagnostics have none: reading them invokes their bindings.
func (s *Server) snapshot(channel string) (any, bool) {
	switch transport.Kind(channel) {
	case transport.KindConfig:
		return s.device.ReadConfig(), true
	case transport.KindData:
		return s.device.Values(), true
	default:
		return nil, false
	}
}

// Hub returns the live feed hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds the listener and serves in the background until Close.
// A bind failure is returned here rather than logged later.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("api listen on %s: %w", addr, err)
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.Timeouts.ReadDuration(),
		ReadHeaderTimeout: s.cfg.Timeouts.ReadDuration(),
		WriteTimeout:      s.cfg.Timeouts.WriteDuration(),
		IdleTimeout:       s.cfg.Timeouts.IdleDuration(),
	}
	s.addr = ln.Addr().String()

	s.logger.Info("API server listening", "address", s.addr)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	return s.addr
}

// Close stops the feed and shuts the listener down, giving in-flight
// requests up to gracefulShutdownTimeout.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
