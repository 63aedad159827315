package resolver

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rbaliyan/smsbox"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

var _ smsbox.ContactResolver = (*Redis)(nil)

// Redis caches another ContactResolver's answers in Redis.
//
// The cache is owned by the caller through the client passed to NewRedis; no
// state is global. Concurrent misses for one address share a single lookup.
// Redis failures are logged and the lookup falls through to the backend, so
// resolution never fails.
type Redis struct {
	client    redis.UniversalClient
	backend   smsbox.ContactResolver
	keyPrefix string
	ttl       time.Duration
	logger    *slog.Logger
	group     singleflight.Group
}

// NewRedis creates a caching resolver in front of backend.
// A nil backend uses Digits.
func NewRedis(client redis.UniversalClient, backend smsbox.ContactResolver, opts ...Option) *Redis {
	o := &options{
		keyPrefix: "smsbox:contact:",
		ttl:       24 * time.Hour,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if backend == nil {
		backend = Digits{}
	}
	return &Redis{
		client:    client,
		backend:   backend,
		keyPrefix: o.keyPrefix,
		ttl:       o.ttl,
		logger:    o.logger,
	}
}

// CanonicalAddress returns the cached canonical address, resolving and
// caching it on a miss.
func (r *Redis) CanonicalAddress(ctx context.Context, address string) string {
	key := r.keyPrefix + Normalize(address)

	cached, err := r.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		r.logger.Debug("contact cache hit", "address", address)
		return cached
	case errors.Is(err, redis.Nil):
		r.logger.Debug("contact cache miss", "address", address)
	default:
		r.logger.Warn("contact cache read failed", "address", address, "error", err)
	}

	v, _, _ := r.group.Do(key, func() (any, error) {
		canonical := r.backend.CanonicalAddress(ctx, address)
		if err := r.client.Set(ctx, key, canonical, r.ttl).Err(); err != nil {
			r.logger.Warn("contact cache write failed", "address", address, "error", err)
		}
		return canonical, nil
	})
	return v.(string)
}

// Invalidate removes cached entries for the given addresses.
func (r *Redis) Invalidate(ctx context.Context, addresses ...string) error {
	if len(addresses) == 0 {
		return nil
	}
	keys := make([]string, len(addresses))
	for i, a := range addresses {
		keys[i] = r.keyPrefix + Normalize(a)
	}
	return r.client.Del(ctx, keys...).Err()
}
