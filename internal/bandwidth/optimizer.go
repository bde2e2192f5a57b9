// AngelaMos | 2026
// optimizer.go

package bandwidth

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Counter is the slice of the cache store used for cross-instance
// popularity counters.
type Counter interface {
	Increment(ctx context.Context, key string, ttl time.Duration) int64
	GetInt64(ctx context.Context, key string) int64
}

// popularityTTL bounds how long a view counter survives without traffic.
const popularityTTL = 30 * 24 * time.Hour

// aggressiveCacheThreshold is the view count past which content is
// considered popular enough for long-lived caching.
const aggressiveCacheThreshold = 10

// Optimizer tracks content popularity and derives cache TTLs from it.
// Popularity is max(local, shared): the local counter survives cache
// outages, the shared one gives cross-instance visibility. Loose
// consistency is fine here since popularity only drives a TTL
// heuristic, never billing.
type Optimizer struct {
	counter Counter

	mu    sync.Mutex
	views map[string]int64
}

func NewOptimizer(counter Counter) *Optimizer {
	return &Optimizer{
		counter: counter,
		views:   make(map[string]int64),
	}
}

func viewKey(contentID, contentType string) string {
	return contentType + ":" + contentID
}

// TrackView records one view locally and in the shared counter, and
// returns the local count.
func (o *Optimizer) TrackView(
	ctx context.Context,
	contentID, contentType string,
) int64 {
	key := viewKey(contentID, contentType)

	o.mu.Lock()
	o.views[key]++
	n := o.views[key]
	o.mu.Unlock()

	o.counter.Increment(ctx, "popularity:"+key, popularityTTL)

	slog.Debug("view tracked", "content", key, "views", n)

	return n
}

// Popularity returns max(local, shared) view count.
func (o *Optimizer) Popularity(
	ctx context.Context,
	contentID, contentType string,
) int64 {
	key := viewKey(contentID, contentType)

	o.mu.Lock()
	local := o.views[key]
	o.mu.Unlock()

	shared := o.counter.GetInt64(ctx, "popularity:"+key)

	if shared > local {
		return shared
	}
	return local
}

// ShouldCacheAggressively reports whether content is popular enough to
// pin with a long TTL.
func (o *Optimizer) ShouldCacheAggressively(
	ctx context.Context,
	contentID, contentType string,
) bool {
	return o.Popularity(ctx, contentID, contentType) >= aggressiveCacheThreshold
}

// OptimalTTL maps popularity onto a cache TTL step function.
func (o *Optimizer) OptimalTTL(
	ctx context.Context,
	contentID, contentType string,
) time.Duration {
	popularity := o.Popularity(ctx, contentID, contentType)

	switch {
	case popularity >= 100:
		return 30 * 24 * time.Hour
	case popularity >= 50:
		return 15 * 24 * time.Hour
	case popularity >= 10:
		return 7 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// ContentStat is one entry of the bandwidth report.
type ContentStat struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// Report summarizes tracked content for admin monitoring.
type Report struct {
	TotalTrackedContent int           `json:"totalTrackedContent"`
	TopContent          []ContentStat `json:"topContent"`
	Timestamp           time.Time     `json:"timestamp"`
}

// Report returns the top tracked content by local view count.
func (o *Optimizer) Report() Report {
	o.mu.Lock()
	total := len(o.views)
	stats := make([]ContentStat, 0, total)
	for key, count := range o.views {
		stats = append(stats, ContentStat{Key: key, Count: count})
	}
	o.mu.Unlock()

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].Key < stats[j].Key
	})

	const topN = 10
	if len(stats) > topN {
		stats = stats[:topN]
	}

	return Report{
		TotalTrackedContent: total,
		TopContent:          stats,
		Timestamp:           time.Now(),
	}
}

// Savings estimates the bandwidth a cached copy avoids: the first view
// costs download plus upload, every further view only upload.
type Savings struct {
	Views        int64   `json:"views"`
	WithoutCache int64   `json:"withoutCacheBytes"`
	WithCache    int64   `json:"withCacheBytes"`
	Saved        int64   `json:"savedBytes"`
	SavedPercent float64 `json:"savedPercent"`
}

func (o *Optimizer) EstimateSavings(
	ctx context.Context,
	contentID, contentType string,
	fileSize int64,
) Savings {
	views := o.Popularity(ctx, contentID, contentType)
	if views <= 1 {
		return Savings{Views: views}
	}

	withoutCache := views * fileSize * 2
	withCache := fileSize*2 + (views-1)*fileSize
	saved := withoutCache - withCache

	return Savings{
		Views:        views,
		WithoutCache: withoutCache,
		WithCache:    withCache,
		Saved:        saved,
		SavedPercent: float64(saved) / float64(withoutCache) * 100,
	}
}

// StreamingProxy wraps an upstream body so bytes flow straight to the
// client without buffering the whole file, counting what passed through.
func StreamingProxy(src io.Reader) io.ReadCloser {
	pr, pw := io.Pipe()

	go func() {
		n, err := io.Copy(pw, src)
		if err != nil {
			slog.Error("streaming proxy source failed",
				"bytes_streamed", n,
				"error", err,
			)
			pw.CloseWithError(err)
			return
		}
		slog.Debug("streaming proxy done",
			"streamed", fmt.Sprintf("%.2f MB", float64(n)/1024/1024),
		)
		pw.Close()
	}()

	return pr
}
