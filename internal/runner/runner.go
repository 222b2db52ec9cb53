package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/cloud4rpi-go/internal/device"
)

// publishTimeout bounds one publish on any tick.
const publishTimeout = 30 * time.Second

// Publisher is the part of device.Device the loop drives. A nil argument
// publishes the device's current state.
type Publisher interface {
	PublishConfig(ctx context.Context, cfg []device.ConfigEntry) error
	PublishData(ctx context.Context, data map[string]any) error
	PublishDiag(ctx context.Context, diag map[string]any) error
}

// Poller fetches pending commands and dispatches them. HTTP transports
// implement it; MQTT pushes commands and needs none.
type Poller interface {
	PollOnce(ctx context.Context) (int, error)
}

// Flusher replays messages stored while the link was down.
type Flusher interface {
	Flush(ctx context.Context) (int, error)
}

// Logger defines the logging interface used by the Runner.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds the loop cadence.
type Config struct {
	// DataInterval is the time between data publishes.
	DataInterval time.Duration

	// DiagnosticsInterval is the time between diagnostics publishes.
	// Config is re-published on the same tick.
	DiagnosticsInterval time.Duration

	// PollInterval is the time between command polls and spool flushes.
	PollInterval time.Duration
}

// Runner publishes a device on a fixed cadence until its context ends.
type Runner struct {
	dev    Publisher
	cfg    Config
	poller Poller
	spool  Flusher

	mu     sync.Mutex
	logger Logger
	stats  Stats
}

// Stats counts what the loop has done since it started.
type Stats struct {
	DataPublished  int
	DiagPublished  int
	Failures       int
	CommandsPolled int
	Replayed       int
	LastPublish    time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithPoller polls commands on every poll tick.
func WithPoller(p Poller) Option {
	return func(r *Runner) { r.poller = p }
}

// WithSpool flushes the spool on every poll tick.
func WithSpool(f Flusher) Option {
	return func(r *Runner) { r.spool = f }
}

// WithLogger sets the runner logger.
func WithLogger(logger Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a Runner. Zero intervals are rejected.
func New(dev Publisher, cfg Config, opts ...Option) (*Runner, error) {
	if dev == nil {
		return nil, errors.New("runner: publisher is required")
	}
	if cfg.DataInterval <= 0 || cfg.DiagnosticsInterval <= 0 {
		return nil, fmt.Errorf("runner: data and diagnostics intervals must be positive")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}

	r := &Runner{dev: dev, cfg: cfg, logger: noopLogger{}}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Stats returns a snapshot of the loop counters.
func (r *Runner) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Run publishes config, data and diagnostics once, then keeps publishing
// on the configured intervals. Tick failures are logged and the loop
// carries on. Run returns ctx.Err() when ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("driver loop starting",
		"data_interval", r.cfg.DataInterval,
		"diagnostics_interval", r.cfg.DiagnosticsInterval,
		"poll_interval", r.cfg.PollInterval,
	)

	r.publishConfig(ctx)
	r.publishData(ctx)
	r.publishDiag(ctx)

	dataTicker := time.NewTicker(r.cfg.DataInterval)
	defer dataTicker.Stop()
	diagTicker := time.NewTicker(r.cfg.DiagnosticsInterval)
	defer diagTicker.Stop()
	pollTicker := time.NewTicker(r.cfg.PollInterval)
	defer pollTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("driver loop stopped")
			return ctx.Err()
		case <-dataTicker.C:
			r.publishData(ctx)
		case <-diagTicker.C:
			r.publishConfig(ctx)
			r.publishDiag(ctx)
		case <-pollTicker.C:
			r.poll(ctx)
			r.flush(ctx)
		}
	}
}

func (r *Runner) publishConfig(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := r.dev.PublishConfig(pctx, nil); err != nil {
		r.failed("publishing config", err)
	}
}

func (r *Runner) publishData(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := r.dev.PublishData(pctx, nil); err != nil {
		r.failed("publishing data", err)
		return
	}

	r.mu.Lock()
	r.stats.DataPublished++
	r.stats.LastPublish = time.Now()
	r.mu.Unlock()
}

func (r *Runner) publishDiag(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := r.dev.PublishDiag(pctx, nil); err != nil {
		r.failed("publishing diagnostics", err)
		return
	}

	r.mu.Lock()
	r.stats.DiagPublished++
	r.mu.Unlock()
}

func (r *Runner) poll(ctx context.Context) {
	if r.poller == nil {
		return
	}
	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	n, err := r.poller.PollOnce(pctx)
	if err != nil {
		r.failed("polling commands", err)
		return
	}
	if n > 0 {
		r.mu.Lock()
		r.stats.CommandsPolled += n
		r.mu.Unlock()
	}
}

func (r *Runner) flush(ctx context.Context) {
	if r.spool == nil {
		return
	}
	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	n, err := r.spool.Flush(pctx)
	if n > 0 {
		r.logger.Info("replayed spooled messages", "count", n)
		r.mu.Lock()
		r.stats.Replayed += n
		r.mu.Unlock()
	}
	if err != nil {
		r.logger.Debug("spool flush stopped", "error", err)
	}
}

func (r *Runner) failed(what string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	r.logger.Error(what+" failed", "error", err, "message", device.ErrorMessage(err))

	r.mu.Lock()
	r.stats.Failures++
	r.mu.Unlock()
}
