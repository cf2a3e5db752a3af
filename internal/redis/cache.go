package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ViewCache is a generic JSON-backed Redis cache for read model projections.
// Keys are namespaced with prefix; ttl of 0 means keys never expire.
type ViewCache[T any] struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
	logger zerolog.Logger
}

func NewViewCache[T any](client *goredis.Client, prefix string, ttl time.Duration, logger zerolog.Logger) *ViewCache[T] {
	return &ViewCache[T]{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.With().Str("component", "view_cache").Str("prefix", prefix).Logger(),
	}
}

// Get returns (nil, false) on any miss or decode error.
func (c *ViewCache[T]) Get(ctx context.Context, key string) (*T, bool) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.logger.Warn().Err(err).Str("key", key).Msg("cache read")
		}
		return nil, false
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache decode")
		return nil, false
	}
	return &v, true
}

// Set stores value under key. Write failures are logged, not returned.
func (c *ViewCache[T]) Set(ctx context.Context, key string, value *T) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache encode")
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache write")
	}
}

func (c *ViewCache[T]) Delete(ctx context.Context, key string) {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache delete")
	}
}
