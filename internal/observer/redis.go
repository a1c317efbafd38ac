package observer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DefaultChannel is the default pub/sub channel name.
const DefaultChannel = "gravitytiming:events"

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// RedisConfig configures the Redis pub/sub sink.
type RedisConfig struct {
	// URL is the Redis connection URL (required), e.g.
	// redis://[:password@]host:port[/db].
	URL string
	// Channel is the pub/sub channel name (default DefaultChannel).
	Channel string
	// Timeout is the per-publish timeout (default DefaultTimeout).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure (default DefaultRetries).
	Retries int
}

// RedisSink publishes events as JSON over Redis PUBLISH, letting
// multiple server instances (or an external display/speaker client)
// share one event stream instead of only the in-process subscribers
// MemorySink reaches.
type RedisSink struct {
	config RedisConfig
	client *goredis.Client
}

// NewRedisSink creates a Redis pub/sub sink from the given config.
func NewRedisSink(cfg RedisConfig) (*RedisSink, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis sink requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis sink: invalid URL: %w", err)
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	return &RedisSink{config: cfg, client: goredis.NewClient(opts)}, nil
}

// envelope is the wire shape of a published message: kind alongside
// the typed payload, so a remote subscriber can dispatch on Kind
// without type assertions.
type envelope struct {
	Kind    EventKind `json:"type"`
	Payload any       `json:"payload"`
}

// Publish implements Sink, retrying with exponential backoff.
func (r *RedisSink) Publish(ctx context.Context, kind EventKind, payload any) error {
	body, err := json.Marshal(envelope{Kind: kind, Payload: payload})
	if err != nil {
		return fmt.Errorf("redis sink: marshal event: %w", err)
	}

	var lastErr error
	attempts := 1 + r.config.Retries
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("redis sink: context canceled: %w", err)
		}
		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return fmt.Errorf("redis sink: context canceled during backoff: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		publishCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
		lastErr = r.client.Publish(publishCtx, r.config.Channel, body).Err()
		cancel()
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("redis sink: failed after %d attempts: %w", attempts, lastErr)
}

// Close releases the underlying Redis client.
func (r *RedisSink) Close() error {
	return r.client.Close()
}

var _ Sink = (*RedisSink)(nil)
