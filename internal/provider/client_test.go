// AngelaMos | 2026
// client_test.go

package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dashtv/streaming-gateway/internal/cache"
	"github.com/dashtv/streaming-gateway/internal/config"
	"github.com/dashtv/streaming-gateway/internal/core"
)

// memCache is an in-process TokenCache for tests.
type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string][]byte)}
}

func (m *memCache) Get(_ context.Context, key string, dest any) bool {
	m.mu.Lock()
	raw, ok := m.entries[key]
	m.mu.Unlock()
	if !ok {
		return false
	}
	return json.Unmarshal(raw, dest) == nil
}

func (m *memCache) Set(_ context.Context, key string, value any, _ time.Duration) bool {
	raw, err := json.Marshal(value)
	if err != nil {
		return false
	}
	m.mu.Lock()
	m.entries[key] = raw
	m.mu.Unlock()
	return true
}

func (m *memCache) Del(_ context.Context, key string) bool {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return true
}

func (m *memCache) TTL(cache.Domain) time.Duration {
	return 5 * time.Minute
}

func newTestClient(baseURL string) (*Client, *memCache) {
	mc := newMemCache()
	c := NewClient(config.UpstreamConfig{
		BaseURL:      baseURL,
		Username:     "gw",
		Password:     "secret",
		FetchTimeout: 5 * time.Second,
		MaxRedirects: 5,
		UserAgent:    "test-agent",
	}, mc)
	return c, mc
}

func TestResolveFollowsRedirectAndCaches(t *testing.T) {
	var hits int
	upstream := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			hits++
			if r.URL.Path != "/gw/secret/42" {
				t.Errorf("upstream path = %q", r.URL.Path)
			}
			w.Header().Set("Location", "http://edge.example.com/live/42.m3u8?token=abc")
			w.WriteHeader(http.StatusFound)
		},
	))
	defer upstream.Close()

	c, _ := newTestClient(upstream.URL)
	ctx := context.Background()

	first, err := c.Resolve(ctx, "42")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if first.Cached {
		t.Error("first Resolve() cached = true, want false")
	}
	if first.URL != "http://edge.example.com/live/42.m3u8?token=abc" {
		t.Errorf("Resolve() url = %q", first.URL)
	}

	second, err := c.Resolve(ctx, "42")
	if err != nil {
		t.Fatalf("second Resolve() error = %v", err)
	}
	if !second.Cached {
		t.Error("second Resolve() cached = false, want true")
	}
	if second.URL != first.URL {
		t.Errorf("cached url = %q, want %q", second.URL, first.URL)
	}
	if hits != 1 {
		t.Errorf("upstream hits = %d, want 1", hits)
	}
}

func TestForceRefreshInvalidates(t *testing.T) {
	var hits int
	upstream := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			hits++
			w.Header().Set("Location", "http://edge.example.com/live/7.m3u8?token=t")
			w.WriteHeader(http.StatusFound)
		},
	))
	defer upstream.Close()

	c, _ := newTestClient(upstream.URL)
	ctx := context.Background()

	if _, err := c.Resolve(ctx, "7"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	res, err := c.ForceRefresh(ctx, "7")
	if err != nil {
		t.Fatalf("ForceRefresh() error = %v", err)
	}
	if res.Cached {
		t.Error("ForceRefresh() cached = true, want false")
	}
	if hits != 2 {
		t.Errorf("upstream hits = %d, want 2", hits)
	}
}

func TestResolveNoRedirect(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
	))
	defer upstream.Close()

	c, _ := newTestClient(upstream.URL)

	_, err := c.Resolve(context.Background(), "42")
	if !core.IsResolutionError(err) {
		t.Fatalf("Resolve() error = %v, want ResolutionError", err)
	}
}

func TestResolveMissingLocation(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			// http.Redirect would add Location; write the status raw.
			w.WriteHeader(http.StatusFound)
		},
	))
	defer upstream.Close()

	c, _ := newTestClient(upstream.URL)

	_, err := c.Resolve(context.Background(), "42")
	if !core.IsResolutionError(err) {
		t.Fatalf("Resolve() error = %v, want ResolutionError", err)
	}
}

func TestStreamInfoCaches(t *testing.T) {
	var hits int
	upstream := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			hits++
			if got := r.URL.Query().Get("action"); got != "get_vod_info" {
				t.Errorf("action = %q, want get_vod_info", got)
			}
			w.Header().Set("Content-Type", "application/json")
			//nolint:errcheck
			_, _ = w.Write([]byte(`{"info":{"name":"Movie"}}`))
		},
	))
	defer upstream.Close()

	c, _ := newTestClient(upstream.URL)
	ctx := context.Background()

	if _, err := c.StreamInfo(ctx, "vod", "9"); err != nil {
		t.Fatalf("StreamInfo() error = %v", err)
	}
	if _, err := c.StreamInfo(ctx, "vod", "9"); err != nil {
		t.Fatalf("second StreamInfo() error = %v", err)
	}
	if hits != 1 {
		t.Errorf("upstream hits = %d, want 1", hits)
	}
}
