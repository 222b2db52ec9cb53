package transport

import (
	"context"
	"time"

	"github.com/nerrad567/cloud4rpi-go/internal/device"
)

// Conn is a cloud link able to deliver messages and receive commands.
type Conn interface {
	// Send delivers one message. Implementations choose the destination
	// from msg.Kind.
	Send(ctx context.Context, msg Message) error

	// OnCommand registers the handler for remote commands. Only the last
	// registered handler is kept.
	OnCommand(handler func(cmd map[string]any))

	// Close releases the connection.
	Close() error
}

// Logger defines the logging interface used by transports.
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

// Adapter turns a Conn into a device.Transport by stamping each payload
// with the current time.
type Adapter struct {
	conn Conn
	now  func() time.Time
}

var _ device.Transport = (*Adapter)(nil)

// NewAdapter wraps conn.
func NewAdapter(conn Conn) *Adapter {
	return &Adapter{conn: conn, now: time.Now}
}

// PublishConfig implements device.Transport.
func (a *Adapter) PublishConfig(ctx context.Context, cfg []device.ConfigEntry) error {
	if cfg == nil {
		cfg = []device.ConfigEntry{}
	}
	return a.send(ctx, KindConfig, cfg)
}

// PublishData implements device.Transport.
func (a *Adapter) PublishData(ctx context.Context, data map[string]any) error {
	return a.send(ctx, KindData, data)
}

// PublishDiag implements device.Transport.
func (a *Adapter) PublishDiag(ctx context.Context, diag map[string]any) error {
	return a.send(ctx, KindDiagnostics, diag)
}

// OnCommand implements device.Transport.
func (a *Adapter) OnCommand(handler func(cmd map[string]any)) {
	a.conn.OnCommand(handler)
}

// Conn returns the wrapped connection.
func (a *Adapter) Conn() Conn {
	return a.conn
}

func (a *Adapter) send(ctx context.Context, kind Kind, payload any) error {
	return a.conn.Send(ctx, Message{
		Kind:      kind,
		Timestamp: a.now(),
		Payload:   payload,
	})
}
