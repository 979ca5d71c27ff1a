// Package wssink serves events to WebSocket clients such as a browser
// dashboard. Each connected client receives every event as a JSON text
// message. Text messages sent by clients are passed to an optional handler,
// which the application uses for remote control.
package wssink

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/zkmkarlsruhe/LanguageIdentifier/internal/notify"
)

const (
	defaultBuffer       = 16
	defaultWriteTimeout = 5 * time.Second
)

var (
	_ notify.Sink  = (*Hub)(nil)
	_ http.Handler = (*Hub)(nil)
)

// Option configures a [Hub].
type Option func(*Hub)

// WithMessageHandler sets the callback for inbound text messages. It runs on
// the client's read goroutine.
func WithMessageHandler(fn func(ctx context.Context, data []byte)) Option {
	return func(h *Hub) { h.onMessage = fn }
}

// WithOriginPatterns allows cross-origin clients matching the patterns.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Hub) { h.origins = patterns }
}

// WithBuffer sets the per-client queue length. A client whose queue is full
// misses events rather than slowing the others. Default: 16.
func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

type client struct {
	send   chan []byte
	cancel context.CancelFunc
}

// Hub tracks connected clients and broadcasts events to them.
type Hub struct {
	onMessage func(ctx context.Context, data []byte)
	origins   []string
	buffer    int

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
	wg      sync.WaitGroup
}

// NewHub creates an empty Hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		buffer:  defaultBuffer,
		clients: make(map[*client]struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Name returns "websocket".
func (h *Hub) Name() string { return "websocket" }

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and serves the client until it disconnects
// or the hub is closed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		slog.Warn("wssink: accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := &client{send: make(chan []byte, h.buffer), cancel: cancel}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	h.clients[c] = struct{}{}
	h.wg.Add(1)
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		h.wg.Done()
	}()

	slog.Info("wssink: client connected", "remote", r.RemoteAddr)
	go h.writeLoop(ctx, conn, c.send)

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == -1 && !errors.Is(err, context.Canceled) {
				slog.Debug("wssink: read ended", "remote", r.RemoteAddr, "err", err)
			}
			break
		}
		if typ == websocket.MessageText && h.onMessage != nil {
			h.onMessage(ctx, data)
		}
	}
	conn.Close(websocket.StatusNormalClosure, "")
	slog.Info("wssink: client disconnected", "remote", r.RemoteAddr)
}

func (h *Hub) writeLoop(ctx context.Context, conn *websocket.Conn, send <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-send:
			wctx, cancel := context.WithTimeout(ctx, defaultWriteTimeout)
			err := conn.Write(wctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				slog.Debug("wssink: write failed", "err", err)
				return
			}
		}
	}
}

// Publish queues e for every client without blocking.
func (h *Hub) Publish(_ context.Context, e notify.Event) error {
	data, err := notify.Encode(e)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slog.Warn("wssink: client queue full, dropping event", "event", e.Kind)
		}
	}
	return nil
}

// Close disconnects every client and waits for their handlers to return.
// Later connection attempts are refused.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		c.cancel()
	}
	h.mu.Unlock()
	h.wg.Wait()
	return nil
}
