// AngelaMos | 2026
// store.go

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dashtv/streaming-gateway/internal/config"
)

// Domain names a cache namespace with its own configured TTL.
type Domain string

const (
	DomainLiveToken Domain = "live_token"
	DomainPlaylist  Domain = "playlist"
	DomainMetadata  Domain = "metadata"
	DomainSegment   Domain = "segment"
)

// Store is a fail-open TTL key-value cache over Redis. Every backend
// error is logged and converted to a miss (or false) so a request never
// hard-fails just because the cache is unavailable.
type Store struct {
	client *redis.Client
	ttls   map[Domain]time.Duration
}

func NewStore(client *redis.Client, cfg config.CacheConfig) *Store {
	return &Store{
		client: client,
		ttls: map[Domain]time.Duration{
			DomainLiveToken: cfg.LiveTokenTTL,
			DomainPlaylist:  cfg.PlaylistTTL,
			DomainMetadata:  cfg.MetadataTTL,
			DomainSegment:   cfg.SegmentTTL,
		},
	}
}

// TTL returns the configured expiry for a cache domain.
func (s *Store) TTL(domain Domain) time.Duration {
	return s.ttls[domain]
}

// Get unmarshals the cached JSON value for key into dest. It reports
// whether a live entry was found; backend errors count as misses.
func (s *Store) Get(ctx context.Context, key string, dest any) bool {
	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("cache get failed, treating as miss",
				"key", key,
				"error", err,
			)
		}
		return false
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		slog.Warn("cache entry corrupt, treating as miss",
			"key", key,
			"error", err,
		)
		return false
	}

	return true
}

func (s *Store) Set(
	ctx context.Context,
	key string,
	value any,
	ttl time.Duration,
) bool {
	raw, err := json.Marshal(value)
	if err != nil {
		slog.Warn("cache set marshal failed", "key", key, "error", err)
		return false
	}

	if err := s.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		slog.Warn("cache set failed", "key", key, "error", err)
		return false
	}

	return true
}

func (s *Store) Del(ctx context.Context, key string) bool {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		slog.Warn("cache del failed", "key", key, "error", err)
		return false
	}
	return true
}

func (s *Store) Exists(ctx context.Context, key string) bool {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		slog.Warn("cache exists failed", "key", key, "error", err)
		return false
	}
	return n == 1
}

// Increment bumps a persisted counter, setting the TTL on first use.
// Returns 0 when the backend is unreachable.
func (s *Store) Increment(
	ctx context.Context,
	key string,
	ttl time.Duration,
) int64 {
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		slog.Warn("cache incr failed", "key", key, "error", err)
		return 0
	}

	if n == 1 {
		if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
			slog.Warn("cache expire failed", "key", key, "error", err)
		}
	}

	return n
}

// GetInt64 reads a persisted counter; 0 on miss or backend error.
func (s *Store) GetInt64(ctx context.Context, key string) int64 {
	n, err := s.client.Get(ctx, key).Int64()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("cache get failed, treating as miss",
				"key", key,
				"error", err,
			)
		}
		return 0
	}
	return n
}

// Healthy pings the backend; used by the health endpoint only. The
// store itself never propagates backend failures.
func (s *Store) Healthy(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return s.client.Ping(pingCtx).Err()
}
