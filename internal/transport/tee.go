package transport

import "context"

// Sink receives a copy of every message that was sent successfully.
// Record must not block for long.
type Sink interface {
	Record(msg Message)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(msg Message)

// Record implements Sink.
func (f SinkFunc) Record(msg Message) { f(msg) }

type tee struct {
	Conn
	sinks []Sink
}

// Tee returns a Conn that sends through conn and then copies each
// delivered message to every sink. Failed sends are not recorded.
func Tee(conn Conn, sinks ...Sink) Conn {
	if len(sinks) == 0 {
		return conn
	}
	return &tee{Conn: conn, sinks: sinks}
}

func (t *tee) Send(ctx context.Context, msg Message) error {
	if err := t.Conn.Send(ctx, msg); err != nil {
		return err
	}
	for _, s := range t.sinks {
		s.Record(msg)
	}
	return nil
}
