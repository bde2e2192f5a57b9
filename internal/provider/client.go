// AngelaMos | 2026
// client.go

package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/dashtv/streaming-gateway/internal/cache"
	"github.com/dashtv/streaming-gateway/internal/config"
	"github.com/dashtv/streaming-gateway/internal/core"
)

// TokenCache is the slice of the cache store the provider client needs.
type TokenCache interface {
	Get(ctx context.Context, key string, dest any) bool
	Set(ctx context.Context, key string, value any, ttl time.Duration) bool
	Del(ctx context.Context, key string) bool
	TTL(domain cache.Domain) time.Duration
}

// ResolvedToken is the cached outcome of following the provider's live
// redirect. The URL embeds a token that outlives our TTL, so re-resolving
// after expiry always yields a usable URL.
type ResolvedToken struct {
	StreamID string    `json:"streamId"`
	URL      string    `json:"url"`
	IssuedAt time.Time `json:"issuedAt"`
}

// Resolution is a ResolvedToken plus whether it was served from cache.
type Resolution struct {
	ResolvedToken
	Cached bool `json:"cached"`
}

// Client talks to the upstream Xtream-style provider with the shared
// gateway account.
type Client struct {
	cfg      config.UpstreamConfig
	cache    TokenCache
	redirect *http.Client
	fetch    *http.Client
}

func NewClient(cfg config.UpstreamConfig, tokenCache TokenCache) *Client {
	return &Client{
		cfg:   cfg,
		cache: tokenCache,
		redirect: &http.Client{
			Timeout: cfg.FetchTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		fetch: &http.Client{
			Timeout: cfg.FetchTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= cfg.MaxRedirects {
					return fmt.Errorf("stopped after %d redirects", cfg.MaxRedirects)
				}
				return nil
			},
		},
	}
}

// LiveURL builds the redirect-issuing live stream URL. No extension: the
// provider responds with a 302 whose Location carries the token.
func (c *Client) LiveURL(streamID string) string {
	return fmt.Sprintf(
		"%s/%s/%s/%s",
		c.cfg.BaseURL,
		c.cfg.Username,
		c.cfg.Password,
		streamID,
	)
}

func (c *Client) VODURL(id, extension string) string {
	return fmt.Sprintf(
		"%s/movie/%s/%s/%s.%s",
		c.cfg.BaseURL,
		c.cfg.Username,
		c.cfg.Password,
		id,
		extension,
	)
}

// SeriesEpisodeURL addresses an episode directly by its id, the way the
// Xtream API exposes it on the /series/ path.
func (c *Client) SeriesEpisodeURL(episodeID, extension string) string {
	return fmt.Sprintf(
		"%s/series/%s/%s/%s.%s",
		c.cfg.BaseURL,
		c.cfg.Username,
		c.cfg.Password,
		episodeID,
		extension,
	)
}

func tokenCacheKey(streamID string) string {
	return "live:token:" + streamID
}

// Resolve returns the time-limited upstream URL for a live stream,
// following the provider's 302 once and caching the result for the
// live-token TTL. A missing redirect or Location header surfaces as a
// ResolutionError; the caller decides whether to retry.
func (c *Client) Resolve(
	ctx context.Context,
	streamID string,
) (*Resolution, error) {
	key := tokenCacheKey(streamID)

	var cached ResolvedToken
	if c.cache.Get(ctx, key, &cached) {
		slog.Debug("live token cache hit", "stream_id", streamID)
		return &Resolution{ResolvedToken: cached, Cached: true}, nil
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		c.LiveURL(streamID),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("build live request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.redirect.Do(req)
	if err != nil {
		return nil, fmt.Errorf("resolve live stream %s: %w", streamID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 300 || resp.StatusCode >= 400 {
		return nil, &core.ResolutionError{
			StreamID: streamID,
			Reason:   fmt.Sprintf("expected redirect, got %d", resp.StatusCode),
		}
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return nil, &core.ResolutionError{
			StreamID: streamID,
			Reason:   "no redirect location found",
		}
	}

	token := ResolvedToken{
		StreamID: streamID,
		URL:      location,
		IssuedAt: time.Now(),
	}

	c.cache.Set(ctx, key, token, c.cache.TTL(cache.DomainLiveToken))

	slog.Info("live token resolved", "stream_id", streamID)

	return &Resolution{ResolvedToken: token, Cached: false}, nil
}

// ForceRefresh drops the cached token and resolves fresh. Used when a
// player reports an expired token.
func (c *Client) ForceRefresh(
	ctx context.Context,
	streamID string,
) (*Resolution, error) {
	c.cache.Del(ctx, tokenCacheKey(streamID))
	return c.Resolve(ctx, streamID)
}

// StreamInfo proxies player_api.php metadata, cached for the metadata TTL.
func (c *Client) StreamInfo(
	ctx context.Context,
	kind, id string,
) (json.RawMessage, error) {
	key := fmt.Sprintf("info:%s:%s", kind, id)

	var cached json.RawMessage
	if c.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	apiURL, err := url.Parse(c.cfg.BaseURL + "/player_api.php")
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}

	params := url.Values{}
	params.Set("username", c.cfg.Username)
	params.Set("password", c.cfg.Password)

	switch kind {
	case "vod":
		params.Set("action", "get_vod_info")
		params.Set("vod_id", id)
	case "series":
		params.Set("action", "get_series_info")
		params.Set("series_id", id)
	default:
		return nil, fmt.Errorf("stream info: %w: kind %q", core.ErrInvalidInput, kind)
	}

	apiURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		apiURL.String(),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("build info request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.fetch.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch stream info %s:%s: %w", kind, id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf(
			"stream info %s:%s: upstream status %d",
			kind,
			id,
			resp.StatusCode,
		)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read info response: %w", err)
	}

	if !json.Valid(body) {
		return nil, fmt.Errorf("stream info %s:%s: invalid JSON from upstream", kind, id)
	}

	c.cache.Set(ctx, key, json.RawMessage(body), c.cache.TTL(cache.DomainMetadata))

	return body, nil
}
