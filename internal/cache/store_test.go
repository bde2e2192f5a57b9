// AngelaMos | 2026
// store_test.go

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dashtv/streaming-gateway/internal/config"
)

// unreachableStore points at a closed port so every backend call fails.
func unreachableStore() *Store {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	return NewStore(client, config.CacheConfig{
		LiveTokenTTL: 5 * time.Minute,
		PlaylistTTL:  time.Hour,
		MetadataTTL:  24 * time.Hour,
		SegmentTTL:   720 * time.Hour,
	})
}

func TestFailOpenOnBackendOutage(t *testing.T) {
	s := unreachableStore()
	ctx := context.Background()

	var dest map[string]any
	if s.Get(ctx, "live:token:42", &dest) {
		t.Error("Get() = true with unreachable backend, want miss")
	}
	if s.Set(ctx, "live:token:42", map[string]string{"url": "x"}, time.Minute) {
		t.Error("Set() = true with unreachable backend, want false")
	}
	if s.Del(ctx, "live:token:42") {
		t.Error("Del() = true with unreachable backend, want false")
	}
	if s.Exists(ctx, "live:token:42") {
		t.Error("Exists() = true with unreachable backend, want false")
	}
	if n := s.Increment(ctx, "popularity:live:42", time.Hour); n != 0 {
		t.Errorf("Increment() = %d with unreachable backend, want 0", n)
	}
	if n := s.GetInt64(ctx, "popularity:live:42"); n != 0 {
		t.Errorf("GetInt64() = %d with unreachable backend, want 0", n)
	}
	if err := s.Healthy(ctx); err == nil {
		t.Error("Healthy() = nil with unreachable backend, want error")
	}
}

func TestTTLPerDomain(t *testing.T) {
	s := unreachableStore()

	tests := []struct {
		domain Domain
		want   time.Duration
	}{
		{DomainLiveToken, 5 * time.Minute},
		{DomainPlaylist, time.Hour},
		{DomainMetadata, 24 * time.Hour},
		{DomainSegment, 720 * time.Hour},
	}

	for _, tc := range tests {
		if got := s.TTL(tc.domain); got != tc.want {
			t.Errorf("TTL(%s) = %v, want %v", tc.domain, got, tc.want)
		}
	}
}
