package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"yield-ledger/internal/ledger"
)

const (
	DefaultChannel   = "yield-ledger:events"
	DefaultRecentKey = "yield-ledger:events:recent"
)

type RedisConfig struct {
	Logger    *slog.Logger
	Client    *redis.Client
	Channel   string
	RecentKey string
	// Keep is the length of the recent list.
	Keep int
}

func (cfg *RedisConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Client == nil {
		return errors.New("redis client is required")
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.RecentKey == "" {
		cfg.RecentKey = DefaultRecentKey
	}
	if cfg.Keep <= 0 {
		cfg.Keep = DefaultRecent
	}
	return nil
}

// RedisPublisher publishes every event as JSON on a pub/sub channel and
// mirrors it into a capped list.
type RedisPublisher struct {
	log *slog.Logger
	cfg RedisConfig
}

func NewRedisPublisher(cfg RedisConfig) (*RedisPublisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &RedisPublisher{log: cfg.Logger, cfg: cfg}, nil
}

func (p *RedisPublisher) Publish(ctx context.Context, events ...ledger.Event) error {
	if len(events) == 0 {
		return nil
	}

	pipe := p.cfg.Client.TxPipeline()
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal event %s: %w", ev.ID, err)
		}
		pipe.Publish(ctx, p.cfg.Channel, payload)
		pipe.LPush(ctx, p.cfg.RecentKey, payload)
	}
	pipe.LTrim(ctx, p.cfg.RecentKey, 0, int64(p.cfg.Keep-1))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish events: %w", err)
	}
	p.log.Debug("events: published", "count", len(events), "channel", p.cfg.Channel)
	return nil
}

func (p *RedisPublisher) Recent(ctx context.Context, n int) ([]ledger.Event, error) {
	if n <= 0 || n > p.cfg.Keep {
		n = p.cfg.Keep
	}
	raw, err := p.cfg.Client.LRange(ctx, p.cfg.RecentKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read recent events: %w", err)
	}

	out := make([]ledger.Event, 0, len(raw))
	for _, item := range raw {
		var ev ledger.Event
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			p.log.Warn("events: skipping malformed event", "error", err)
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}
