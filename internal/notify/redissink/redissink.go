// Package redissink publishes events on a Redis pub/sub channel.
package redissink

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/zkmkarlsruhe/LanguageIdentifier/internal/notify"
)

// DefaultChannel is used when no channel is configured.
const DefaultChannel = "langid-events"

// Client is the subset of redis.UniversalClient used by the sink.
type Client interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

var (
	_ notify.Sink          = (*Sink)(nil)
	_ notify.HealthChecker = (*Sink)(nil)
	_ Client               = (*redis.Client)(nil)
)

// Options selects the Redis server.
type Options struct {
	Addr     string
	Username string
	Password string
	DB       int
	UseTLS   bool
}

// Dial creates a client for opts and verifies it with PING.
func Dial(ctx context.Context, opts Options) (*redis.Client, error) {
	var tlsConfig *tls.Config
	if opts.UseTLS {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:      opts.Addr,
		Username:  opts.Username,
		Password:  opts.Password,
		DB:        opts.DB,
		TLSConfig: tlsConfig,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redissink: ping %s: %w", opts.Addr, err)
	}
	if info, err := rdb.Info(ctx, "server").Result(); err == nil {
		for _, line := range strings.Split(info, "\r\n") {
			if v, ok := strings.CutPrefix(line, "redis_version:"); ok {
				slog.Info("connected to Redis", "addr", opts.Addr, "version", v)
				break
			}
		}
	}
	return rdb, nil
}

// Sink is a Redis notify sink.
type Sink struct {
	client  Client
	channel string
	owned   bool
}

// New wraps client. If owned is true, Close closes the client.
func New(client Client, channel string, owned bool) (*Sink, error) {
	if client == nil {
		return nil, errors.New("redissink: client must not be nil")
	}
	if channel == "" {
		channel = DefaultChannel
	}
	return &Sink{client: client, channel: channel, owned: owned}, nil
}

// Name returns "redis".
func (s *Sink) Name() string { return "redis" }

// Publish encodes e and publishes it on the channel.
func (s *Sink) Publish(ctx context.Context, e notify.Event) error {
	data, err := notify.Encode(e)
	if err != nil {
		return err
	}
	n, err := s.client.Publish(ctx, s.channel, data).Result()
	if err != nil {
		return fmt.Errorf("redissink: publish: %w", err)
	}
	slog.Debug("redis event published", "channel", s.channel, "event", e.Kind, "receivers", n)
	return nil
}

// Healthy pings the server.
func (s *Sink) Healthy(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redissink: ping: %w", err)
	}
	return nil
}

// Close closes the client if the sink owns it.
func (s *Sink) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}
