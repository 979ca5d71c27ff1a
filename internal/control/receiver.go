package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
)

// Handler applies a command. It is called from the receiving goroutine.
type Handler func(ctx context.Context, cmd Command) error

// DefaultSubject is the NATS subject used when none is configured.
const DefaultSubject = "langid.control"

// maxBody bounds HTTP command bodies.
const maxBody = 1 << 10

// Subscriber is the subset of *nats.Conn used by [SubscribeNATS].
type Subscriber interface {
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

var _ Subscriber = (*nats.Conn)(nil)

// SubscribeNATS applies every message on subject as a command. If the message
// has a reply subject, "ok" or the error text is sent back.
func SubscribeNATS(ctx context.Context, conn Subscriber, subject string, h Handler) (*nats.Subscription, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	sub, err := conn.Subscribe(subject, func(m *nats.Msg) {
		reply := "ok"
		if err := HandleMessage(ctx, m.Data, h); err != nil {
			reply = err.Error()
		}
		if m.Reply != "" {
			if err := m.Respond([]byte(reply)); err != nil {
				slog.Debug("control: nats reply failed", "err", err)
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("control: subscribe %q: %w", subject, err)
	}
	slog.Info("control: listening for commands", "transport", "nats", "subject", subject)
	return sub, nil
}

// HandleMessage parses data and applies it with h. Parse failures are logged
// and returned.
func HandleMessage(ctx context.Context, data []byte, h Handler) error {
	cmd, err := Parse(data)
	if err != nil {
		slog.Warn("control: rejected command", "payload", string(data), "err", err)
		return err
	}
	slog.Info("control: command received", "command", cmd.String())
	return h(ctx, cmd)
}

// HTTPHandler returns a handler for POST /control/{verb}. The optional
// argument is taken from the "value" query parameter or the request body
// (plain text or {"value": …}).
func HTTPHandler(h Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		args, err := httpArgs(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		cmd, err := New(r.PathValue("verb"), args...)
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, ErrUnknownVerb) {
				status = http.StatusNotFound
			}
			http.Error(w, err.Error(), status)
			return
		}
		if err := h(r.Context(), cmd); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(cmd)
	})
}

func httpArgs(r *http.Request) ([]string, error) {
	if v := r.URL.Query().Get("value"); v != "" {
		return []string{v}, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) == 0 {
		return nil, nil
	}
	if body[0] == '{' {
		var raw struct {
			Value any `json:"value"`
		}
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("decode body: %w", err)
		}
		if raw.Value == nil {
			return nil, nil
		}
		return []string{fmt.Sprint(raw.Value)}, nil
	}
	s := strings.TrimSpace(string(body))
	if s == "" {
		return nil, nil
	}
	return []string{s}, nil
}
