// Package cache stores successful worker payloads so repeat research on the
// same address skips provider calls.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/property-research/internal/model"
)

// DefaultTTL is used when a non-positive TTL is configured.
const DefaultTTL = 24 * time.Hour

const keyPrefix = "propresearch:worker:"

// envelope is the stored form of a payload.
type envelope struct {
	Kind    model.PayloadKind `json:"kind"`
	Payload json.RawMessage   `json:"payload"`
}

// Redis caches worker payloads in Redis. Errors are logged and treated as
// misses; the cache never fails a worker.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedis creates a Redis-backed cache.
func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

// NewRedisClient parses a redis:// URL into a client.
func NewRedisClient(rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "cache: parse redis url")
	}
	return redis.NewClient(opts), nil
}

// Key returns the cache key for a worker and normalized address.
func Key(worker, address string) string {
	return keyPrefix + worker + ":" + strings.ToLower(address)
}

// Get returns a cached payload.
func (r *Redis) Get(ctx context.Context, worker, address string) (model.Payload, bool) {
	raw, err := r.client.Get(ctx, Key(worker, address)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.L().Warn("cache: get failed", zap.String("worker", worker), zap.Error(err))
		}
		return nil, false
	}
	p, err := decode(raw)
	if err != nil {
		zap.L().Warn("cache: decode failed", zap.String("worker", worker), zap.Error(err))
		return nil, false
	}
	return p, true
}

// Set stores a payload with the configured TTL.
func (r *Redis) Set(ctx context.Context, worker, address string, p model.Payload) {
	raw, err := encode(p)
	if err != nil {
		zap.L().Warn("cache: encode failed", zap.String("worker", worker), zap.Error(err))
		return
	}
	if err := r.client.Set(ctx, Key(worker, address), raw, r.ttl).Err(); err != nil {
		zap.L().Warn("cache: set failed", zap.String("worker", worker), zap.Error(err))
	}
}

// Health pings the Redis server.
func (r *Redis) Health(ctx context.Context) error {
	return eris.Wrap(r.client.Ping(ctx).Err(), "cache: ping")
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}

func encode(p model.Payload) ([]byte, error) {
	if p == nil {
		return nil, eris.New("cache: nil payload")
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, eris.Wrap(err, "cache: marshal payload")
	}
	return json.Marshal(envelope{Kind: p.Kind(), Payload: raw})
}

func decode(raw []byte) (model.Payload, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, eris.Wrap(err, "cache: unmarshal envelope")
	}
	return model.DecodePayload(env.Kind, env.Payload)
}

// Noop never hits and discards writes.
type Noop struct{}

func (Noop) Get(context.Context, string, string) (model.Payload, bool) { return nil, false }
func (Noop) Set(context.Context, string, string, model.Payload)        {}
