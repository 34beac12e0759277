package memcache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ManuGH/imagepipeline/internal/imagepipeline/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisCache is a Redis-backed model.ImageCache, for sharing decoded
// responses across pipeline instances. The cached Image must be JSON
// serializable; opaque or unexported-field images should stay on the
// in-process TTLCache instead.
type RedisCache struct {
	client *redis.Client
	logger zerolog.Logger
	ttl    time.Duration

	hits, misses, sets atomic.Int64
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisCache dials Redis and verifies connectivity before returning.
func NewRedisCache(cfg RedisConfig, ttl time.Duration, logger zerolog.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info().Str("addr", cfg.Addr).Int("db", cfg.DB).Msg("connected to redis memory cache")

	return &RedisCache{client: client, logger: logger, ttl: ttl}, nil
}

type wireResponse struct {
	Image             json.RawMessage          `json:"image"`
	TransportResponse *model.TransportResponse `json:"transport_response,omitempty"`
}

// Get implements model.ImageCache.
func (c *RedisCache) Get(key string) (model.Response, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	raw, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		c.misses.Add(1)
		return model.Response{}, false
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("redis get failed")
		c.misses.Add(1)
		return model.Response{}, false
	}

	var wire wireResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("redis payload unmarshal failed")
		c.misses.Add(1)
		return model.Response{}, false
	}

	var image model.Image
	if err := json.Unmarshal(wire.Image, &image); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("redis image unmarshal failed")
		c.misses.Add(1)
		return model.Response{}, false
	}

	c.hits.Add(1)
	return model.Response{Image: image, TransportResponse: wire.TransportResponse}, true
}

// Put implements model.ImageCache.
func (c *RedisCache) Put(key string, resp model.Response) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	imageJSON, err := json.Marshal(resp.Image)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("image marshal failed, skipping cache put")
		return
	}
	payload, err := json.Marshal(wireResponse{Image: imageJSON, TransportResponse: resp.TransportResponse})
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("payload marshal failed, skipping cache put")
		return
	}

	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("redis set failed")
		return
	}
	c.sets.Add(1)
}

// Stats returns hit/miss/set counters tracked client-side.
func (c *RedisCache) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Sets:   c.sets.Load(),
	}
}

// Close closes the underlying Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
