// Package dedup provides a redis-backed first-seen marker used to drop
// duplicate webhook deliveries cheaply. Postgres remains the source of truth
// for idempotency; this is only a fast path, and a nil Deduper is a no-op so
// the application runs without redis.
package dedup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "webhook:seen:"

// Deduper marks webhook delivery keys as seen with a TTL.
type Deduper struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a Deduper from a redis URL. An empty URL returns nil, which
// disables deduplication.
func New(redisURL string, ttl time.Duration) (*Deduper, error) {
	if redisURL == "" {
		return nil, nil
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	return &Deduper{
		client: redis.NewClient(opt),
		ttl:    ttl,
	}, nil
}

// FirstSeen atomically records the key and reports whether this is its first
// delivery. Errors degrade to "first seen" so a redis outage never drops a
// webhook; the database-level idempotency check still applies.
func (d *Deduper) FirstSeen(ctx context.Context, key string) bool {
	if d == nil || d.client == nil || key == "" {
		return true
	}

	ok, err := d.client.SetNX(ctx, keyPrefix+key, "1", d.ttl).Result()
	if err != nil {
		return true
	}
	return ok
}

// Forget removes a seen marker, allowing the delivery to be reprocessed.
// Used when handling fails after the marker was set.
func (d *Deduper) Forget(ctx context.Context, key string) {
	if d == nil || d.client == nil || key == "" {
		return
	}
	d.client.Del(ctx, keyPrefix+key)
}

// Close releases the underlying redis connection.
func (d *Deduper) Close() error {
	if d == nil || d.client == nil {
		return nil
	}
	return d.client.Close()
}
