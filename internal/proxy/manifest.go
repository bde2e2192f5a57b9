// AngelaMos | 2026
// manifest.go

package proxy

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/dashtv/streaming-gateway/internal/config"
	"github.com/dashtv/streaming-gateway/internal/provider"
)

// ManifestContentType is what rewritten playlists are served as.
const ManifestContentType = "application/vnd.apple.mpegurl"

// routePrefix is where the sub-resource route lives; rewritten manifest
// lines point back here so every fetch flows through the gateway.
const routePrefix = "/api/live"

// Resolver is the slice of the provider client the proxy needs.
type Resolver interface {
	Resolve(ctx context.Context, streamID string) (*provider.Resolution, error)
}

// Fetched is the outcome of proxying one upstream resource. Manifests
// are rewritten in memory; anything else streams through Body untouched.
type Fetched struct {
	ContentType string
	Manifest    bool
	Content     []byte
	Body        io.ReadCloser
}

// Proxy fetches upstream HLS resources and rewrites manifests so that
// variant playlists and segments route back through the gateway.
type Proxy struct {
	resolver Resolver
	cfg      config.UpstreamConfig
	client   *http.Client
}

func New(resolver Resolver, cfg config.UpstreamConfig) *Proxy {
	return &Proxy{
		resolver: resolver,
		cfg:      cfg,
		client: &http.Client{
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

// FetchAndRewrite resolves the live token for streamID and proxies the
// resolved URL, rewriting it if it turns out to be a manifest.
func (p *Proxy) FetchAndRewrite(
	ctx context.Context,
	streamID string,
) (*Fetched, error) {
	res, err := p.resolver.Resolve(ctx, streamID)
	if err != nil {
		return nil, err
	}
	return p.fetch(ctx, streamID, res.URL)
}

// FetchSubResource decodes a rewritten path segment back to its upstream
// URL and proxies it, recursing through the same rewrite logic so nested
// variant playlists keep pointing at the gateway.
func (p *Proxy) FetchSubResource(
	ctx context.Context,
	streamID, encoded, rawQuery string,
) (*Fetched, error) {
	target, err := p.decodeSegment(ctx, streamID, encoded)
	if err != nil {
		return nil, err
	}

	// Players append their own query parameters to segment requests;
	// forward them to the upstream untouched.
	if rawQuery != "" {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + rawQuery
	}

	return p.fetch(ctx, streamID, target)
}

func (p *Proxy) fetch(
	ctx context.Context,
	streamID, target string,
) (*Fetched, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build proxy request: %w", err)
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: upstream status %d", target, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	body := bufio.NewReader(resp.Body)

	if !isManifest(target, contentType, body) {
		return &Fetched{
			ContentType: contentType,
			Body:        readerWithCloser{body, resp.Body},
		}, nil
	}

	defer resp.Body.Close()

	content, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", target, err)
	}

	return &Fetched{
		ContentType: ManifestContentType,
		Manifest:    true,
		Content:     RewriteManifest(content, streamID, target),
	}, nil
}

// isManifest classifies by URL extension, content type, then a sniff of
// the first bytes for the #EXTM3U header.
func isManifest(target, contentType string, body *bufio.Reader) bool {
	path := target
	if u, err := url.Parse(target); err == nil {
		path = u.Path
	}
	if strings.HasSuffix(path, ".m3u8") || strings.HasSuffix(path, ".m3u") {
		return true
	}

	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "mpegurl") {
		return true
	}

	head, _ := body.Peek(len("#EXTM3U"))
	return strings.HasPrefix(string(head), "#EXTM3U")
}

// RewriteManifest rewrites every URL line of an HLS playlist to a
// gateway sub-resource path. Comment and blank lines pass through
// byte-for-byte; URL lines are resolved to absolute form against the
// manifest's own URL, then base64-encoded into the path.
func RewriteManifest(content []byte, streamID, manifestURL string) []byte {
	origin, baseDir := splitBase(manifestURL)

	lines := strings.Split(string(content), "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}

		raw, hadCR := strings.CutSuffix(line, "\r")

		var abs string
		switch {
		case strings.HasPrefix(raw, "http://"), strings.HasPrefix(raw, "https://"):
			abs = raw
		case strings.HasPrefix(raw, "/"):
			abs = origin + raw
		default:
			abs = baseDir + "/" + raw
		}

		rewritten := fmt.Sprintf(
			"%s/%s/proxy/%s",
			routePrefix,
			streamID,
			base64.URLEncoding.EncodeToString([]byte(abs)),
		)
		// Keep the input's line ending so CRLF manifests stay CRLF.
		if hadCR {
			rewritten += "\r"
		}
		lines[i] = rewritten
	}

	return []byte(strings.Join(lines, "\n"))
}

// splitBase returns the origin (scheme://host) and the directory part
// of a manifest URL, with any query string stripped.
func splitBase(manifestURL string) (origin, baseDir string) {
	u, err := url.Parse(manifestURL)
	if err != nil || u.Host == "" {
		// Not an absolute URL; treat everything before the last slash
		// as the directory.
		withoutQuery, _, _ := strings.Cut(manifestURL, "?")
		if i := strings.LastIndex(withoutQuery, "/"); i >= 0 {
			withoutQuery = withoutQuery[:i]
		}
		return withoutQuery, withoutQuery
	}

	origin = u.Scheme + "://" + u.Host

	dir := path.Dir(u.EscapedPath())
	if dir == "." || dir == "/" {
		return origin, origin
	}
	return origin, origin + dir
}

// decodeSegment recovers the upstream URL from a rewritten path segment.
// When decoding fails the segment is treated as a literal relative path
// against the stream's resolved origin, so odd player behavior degrades
// instead of hard-failing.
func (p *Proxy) decodeSegment(
	ctx context.Context,
	streamID, encoded string,
) (string, error) {
	decoded, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		decoded, err = base64.RawURLEncoding.DecodeString(encoded)
	}

	if err == nil {
		target := string(decoded)
		if strings.HasPrefix(target, "http://") ||
			strings.HasPrefix(target, "https://") {
			return target, nil
		}
	}

	slog.Warn("segment path not base64, falling back to relative lookup",
		"stream_id", streamID,
		"segment", encoded,
	)

	res, resolveErr := p.resolver.Resolve(ctx, streamID)
	if resolveErr != nil {
		return "", fmt.Errorf("decode segment fallback: %w", resolveErr)
	}

	origin, _ := splitBase(res.URL)
	return origin + "/" + encoded, nil
}

// readerWithCloser pairs a buffered reader (which may hold sniffed
// bytes) with the underlying response body's Close.
type readerWithCloser struct {
	io.Reader
	closer io.Closer
}

func (r readerWithCloser) Close() error {
	return r.closer.Close()
}
