package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/cloud4rpi-go/internal/infrastructure/config"
)

const (
	pingTimeout = 10 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 // seconds
)

// pointWriter is the part of api.WriteAPI the mirror needs.
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// Client mirrors delivered device messages into an InfluxDB v2 bucket.
// Writes are batched by the library and never block the caller; failures
// arrive later through the SetOnError callback.
type Client struct {
	client influxdb2.Client
	writer pointWriter
	device string

	closed  atomic.Bool
	written atomic.Int64
	failed  atomic.Int64

	mu      sync.Mutex
	onError func(err error)
}

// Connect pings the server and returns a mirror tagging every point with
// deviceTag. It returns ErrDisabled when the mirror is switched off.
func Connect(cfg config.InfluxDBConfig, deviceTag string) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	opts := influxdb2.DefaultOptions().
		SetBatchSize(positive(cfg.BatchSize, defaultBatchSize)).
		SetFlushInterval(positive(cfg.FlushInterval, defaultFlushInterval) * uint(time.Second/time.Millisecond))
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	ok, err := client.Ping(ctx)
	switch {
	case err != nil:
		client.Close()
		return nil, fmt.Errorf("%w: ping %s: %w", ErrConnectionFailed, cfg.URL, err)
	case !ok:
		client.Close()
		return nil, fmt.Errorf("%w: %s is not ready", ErrConnectionFailed, cfg.URL)
	}

	w := client.WriteAPI(cfg.Org, cfg.Bucket)
	c := newClient(w, deviceTag)
	c.client = client
	go c.watchErrors(w.Errors())
	return c, nil
}

func newClient(w pointWriter, deviceTag string) *Client {
	return &Client{writer: w, device: deviceTag}
}

// positive returns v as a uint, or def when v is not above zero.
func positive(v, def int) uint {
	if v <= 0 {
		return uint(def)
	}
	return uint(v) // #nosec G115 -- checked above
}

func (c *Client) watchErrors(errs <-chan error) {
	for err := range errs {
		c.failed.Add(1)
		c.mu.Lock()
		fn := c.onError
		c.mu.Unlock()
		if fn != nil {
			fn(err)
		}
	}
}

func (c *Client) write(p *write.Point) {
	c.writer.WritePoint(p)
	c.written.Add(1)
}

// SetOnError sets the callback for failed batch writes.
func (c *Client) SetOnError(fn func(err error)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

// IsConnected reports whether the mirror still accepts points.
func (c *Client) IsConnected() bool {
	return !c.closed.Load()
}

// Written returns the number of points handed to the batch writer.
func (c *Client) Written() int64 { return c.written.Load() }

// Failed returns the number of batch write errors reported by the server.
func (c *Client) Failed() int64 { return c.failed.Load() }

// Flush sends buffered points now. It does nothing after Close.
func (c *Client) Flush() {
	if c.closed.Load() {
		return
	}
	c.writer.Flush()
}

// Close flushes what is buffered and releases the connection. Later calls
// are no-ops.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.writer.Flush()
	if c.client != nil {
		c.client.Close()
	}
	return nil
}
