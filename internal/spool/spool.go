package spool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/cloud4rpi-go/internal/infrastructure/database"
	"github.com/nerrad567/cloud4rpi-go/internal/transport"
)

const (
	// DefaultMaxMessages bounds the spool when no limit is configured.
	DefaultMaxMessages = 10000

	// flushBatch is how many rows Flush loads per query.
	flushBatch = 100

	storedTimeFormat = time.RFC3339Nano
)

// ErrNotSpoolable is wrapped into send errors for messages the spool
// never stores (config).
var ErrNotSpoolable = errors.New("spool: message kind is not spooled")

// Logger defines the logging interface used by the spool.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Spool is a transport.Conn that keeps data and diagnostics it failed to
// deliver in SQLite and replays them on Flush.
//
// A failed Send of a data or diagnostics message is stored and reported
// as success. Config messages are passed through unchanged, errors
// included. The oldest entries are dropped once the spool is full.
type Spool struct {
	transport.Conn

	db     *database.DB
	max    int
	logger Logger
	now    func() time.Time

	// flushMu keeps two flushes from replaying the same rows.
	flushMu sync.Mutex
}

var _ transport.Conn = (*Spool)(nil)

// New wraps conn. db must already be migrated. maxMessages <= 0 selects
// DefaultMaxMessages.
func New(conn transport.Conn, db *database.DB, maxMessages int) *Spool {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return &Spool{
		Conn:   conn,
		db:     db,
		max:    maxMessages,
		logger: noopLogger{},
		now:    time.Now,
	}
}

// SetLogger sets the logger for the spool.
func (s *Spool) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Send delivers msg through the wrapped conn, spooling it on failure.
func (s *Spool) Send(ctx context.Context, msg transport.Message) error {
	sendErr := s.Conn.Send(ctx, msg)
	if sendErr == nil {
		return nil
	}
	if !spoolable(msg.Kind) {
		return sendErr
	}
	if errors.Is(sendErr, transport.ErrUnknownKind) {
		return sendErr
	}

	// Store with a fresh context so a cancelled publish is still kept.
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.store(storeCtx, msg); err != nil {
		s.logger.Error("spooling failed, message lost", "kind", msg.Kind, "error", err)
		return errors.Join(sendErr, err)
	}

	s.logger.Warn("send failed, message spooled", "kind", msg.Kind, "error", sendErr)
	return nil
}

func spoolable(kind transport.Kind) bool {
	return kind == transport.KindData || kind == transport.KindDiagnostics
}

func (s *Spool) store(ctx context.Context, msg transport.Message) error {
	payload, err := msg.PayloadJSON()
	if err != nil {
		return err
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO spooled_messages (id, seq, kind, ts, payload, created_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM spooled_messages), ?, ?, ?, ?)`,
		uuid.NewString(),
		string(msg.Kind),
		ts.UTC().Format(storedTimeFormat),
		string(payload),
		s.now().UTC().Format(storedTimeFormat),
	); err != nil {
		return fmt.Errorf("inserting spooled message: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		DELETE FROM spooled_messages WHERE seq <= (
			SELECT MAX(seq) - ? FROM spooled_messages
		)`, s.max)
	if err != nil {
		return fmt.Errorf("trimming spool: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing spooled message: %w", err)
	}

	if dropped, _ := res.RowsAffected(); dropped > 0 {
		s.logger.Warn("spool full, dropped oldest messages", "dropped", dropped, "max", s.max)
	}
	return nil
}

type row struct {
	id      string
	kind    string
	ts      string
	payload string
}

// Flush replays spooled messages oldest first, deleting each one once it
// is delivered. It stops at the first failure and returns the number of
// messages delivered.
func (s *Spool) Flush(ctx context.Context) (int, error) {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	sent := 0
	for {
		rows, err := s.load(ctx)
		if err != nil {
			return sent, err
		}
		if len(rows) == 0 {
			if sent > 0 {
				s.logger.Info("spool flushed", "sent", sent)
			}
			return sent, nil
		}

		for _, r := range rows {
			msg, err := r.message()
			if err != nil {
				s.logger.Error("dropping unreadable spooled message", "id", r.id, "error", err)
				if err := s.delete(ctx, r.id); err != nil {
					return sent, err
				}
				continue
			}

			if err := s.Conn.Send(ctx, msg); err != nil {
				return sent, fmt.Errorf("replaying spooled %s: %w", msg.Kind, err)
			}
			if err := s.delete(ctx, r.id); err != nil {
				return sent, err
			}
			sent++
		}
	}
}

func (s *Spool) load(ctx context.Context) ([]row, error) {
	rs, err := s.db.QueryContext(ctx, `
		SELECT id, kind, ts, payload FROM spooled_messages
		ORDER BY seq LIMIT ?`, flushBatch)
	if err != nil {
		return nil, fmt.Errorf("loading spooled messages: %w", err)
	}
	defer rs.Close()

	var rows []row
	for rs.Next() {
		var r row
		if err := rs.Scan(&r.id, &r.kind, &r.ts, &r.payload); err != nil {
			return nil, fmt.Errorf("scanning spooled message: %w", err)
		}
		rows = append(rows, r)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("iterating spooled messages: %w", err)
	}
	return rows, nil
}

func (s *Spool) delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM spooled_messages WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting spooled message %s: %w", id, err)
	}
	return nil
}

func (r row) message() (transport.Message, error) {
	kind := transport.Kind(r.kind)
	if !spoolable(kind) {
		return transport.Message{}, fmt.Errorf("%w: %q", ErrNotSpoolable, r.kind)
	}
	ts, err := time.Parse(storedTimeFormat, r.ts)
	if err != nil {
		return transport.Message{}, fmt.Errorf("parsing timestamp: %w", err)
	}
	if !json.Valid([]byte(r.payload)) {
		return transport.Message{}, errors.New("payload is not valid JSON")
	}
	return transport.Message{
		Kind:      kind,
		Timestamp: ts,
		Payload:   json.RawMessage(r.payload),
	}, nil
}

// Len returns the number of spooled messages.
func (s *Spool) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM spooled_messages").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting spooled messages: %w", err)
	}
	return n, nil
}
