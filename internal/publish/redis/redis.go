// Package redis fans block completion events out over Redis pub/sub, so any
// number of subscribers (dashboards, persistence workers) can follow a run.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/KaramelBytes/statm8/internal/publish"
	"github.com/KaramelBytes/statm8/internal/utils"
)

// DefaultChannel receives every event unless Config.Channel overrides it.
const DefaultChannel = "statm8:block_completed"

// Config configures a Publisher.
type Config struct {
	// URL is redis://[:password@]host:port[/db] and is required.
	URL     string
	Channel string
	// Timeout bounds one PUBLISH round trip (default 5s).
	Timeout time.Duration
	// Retries after the first attempt. Negative is rejected.
	Retries int
	// Backoff is the first retry delay (default 500ms), jittered and doubled.
	Backoff time.Duration
}

// Publisher sends events with PUBLISH on one channel.
type Publisher struct {
	cfg Config
	rdb *goredis.Client
}

// New validates cfg and opens a lazily connecting client.
func New(cfg Config) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis publisher requires a URL")
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis publisher: invalid URL: %w", err)
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	// Deliver owns retries; the client should fail fast.
	opts.MaxRetries = -1
	return &Publisher{cfg: cfg, rdb: goredis.NewClient(opts)}, nil
}

// Channel returns the channel events are published to.
func (p *Publisher) Channel() string { return p.cfg.Channel }

// Publish sends the event as JSON. Subscriber count is not checked: an event
// nobody listens to is still delivered.
func (p *Publisher) Publish(ctx context.Context, event *publish.BlockCompletedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}
	bo := utils.Backoff{Base: p.cfg.Backoff}
	err = publish.Deliver(ctx, p.cfg.Retries, &bo, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
		return p.rdb.Publish(ctx, p.cfg.Channel, payload).Err()
	})
	if err != nil {
		return fmt.Errorf("redis: publish to %s: %w", p.cfg.Channel, err)
	}
	return nil
}

// Close releases the connection pool.
func (p *Publisher) Close() error {
	return p.rdb.Close()
}

var _ publish.Publisher = (*Publisher)(nil)
