// Package natssink publishes events to a NATS server. Each event goes to
// "<subject>.<kind>", so subscribers can follow everything with
// "<subject>.>" or pick one kind.
package natssink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/zkmkarlsruhe/LanguageIdentifier/internal/notify"
)

// DefaultSubject is the subject prefix used when none is configured.
const DefaultSubject = "langid.events"

// Conn is the subset of *nats.Conn used by the sink.
type Conn interface {
	Publish(subject string, data []byte) error
	IsConnected() bool
}

var (
	_ notify.Sink          = (*Sink)(nil)
	_ notify.HealthChecker = (*Sink)(nil)
	_ Conn                 = (*nats.Conn)(nil)
)

// Sink is a NATS notify sink.
type Sink struct {
	conn    Conn
	subject string
	closeFn func()
}

// New wraps an existing connection. Close does not close conn.
func New(conn Conn, subject string) (*Sink, error) {
	if conn == nil {
		return nil, errors.New("natssink: conn must not be nil")
	}
	if subject == "" {
		subject = DefaultSubject
	}
	return &Sink{conn: conn, subject: subject}, nil
}

// Connect dials the comma-separated urls and returns a connection that
// reconnects forever. Drain it when done.
func Connect(urls, name string, opts ...nats.Option) (*nats.Conn, error) {
	base := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", "address", nc.ConnectedAddr())
		}),
	}
	nc, err := nats.Connect(urls, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("natssink: connect %q: %w", urls, err)
	}
	slog.Info("connected to NATS server",
		"version", nc.ConnectedServerVersion(),
		"address", nc.ConnectedAddr(),
	)
	return nc, nil
}

// Own makes Close drain nc.
func (s *Sink) Own(nc *nats.Conn) *Sink {
	s.closeFn = func() {
		if err := nc.Drain(); err != nil {
			slog.Warn("natssink: drain", "err", err)
		}
	}
	return s
}

// Name returns "nats".
func (s *Sink) Name() string { return "nats" }

// Subject returns the subject an event of kind k is published to.
func (s *Sink) Subject(k notify.Kind) string {
	return strings.TrimSuffix(s.subject, ".") + "." + string(k)
}

// Publish encodes e and publishes it. The NATS client buffers outgoing
// messages, so the call does not wait for the server.
func (s *Sink) Publish(ctx context.Context, e notify.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := notify.Encode(e)
	if err != nil {
		return err
	}
	if err := s.conn.Publish(s.Subject(e.Kind), data); err != nil {
		return fmt.Errorf("natssink: publish: %w", err)
	}
	return nil
}

// Healthy reports whether the connection is up.
func (s *Sink) Healthy(context.Context) error {
	if !s.conn.IsConnected() {
		return errors.New("natssink: not connected")
	}
	return nil
}

// Close drains the connection if the sink owns it.
func (s *Sink) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}
