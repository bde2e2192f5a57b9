// AngelaMos | 2026
// handler.go

package live

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dashtv/streaming-gateway/internal/bandwidth"
	"github.com/dashtv/streaming-gateway/internal/cache"
	"github.com/dashtv/streaming-gateway/internal/core"
	"github.com/dashtv/streaming-gateway/internal/provider"
	"github.com/dashtv/streaming-gateway/internal/proxy"
)

// ResolveResponse is the payload for the resolve and refresh endpoints.
type ResolveResponse struct {
	StreamID  string    `json:"streamId"`
	URL       string    `json:"url"`
	Cached    bool      `json:"cached"`
	Timestamp time.Time `json:"timestamp"`
	ExpiresIn int64     `json:"expiresIn"`
}

// Handler serves the live streaming surface: token resolution, manifest
// proxying, and sub-resource pass-through.
type Handler struct {
	resolver  *provider.Client
	proxy     *proxy.Proxy
	optimizer *bandwidth.Optimizer
	tokenTTL  time.Duration
}

func NewHandler(
	resolver *provider.Client,
	manifestProxy *proxy.Proxy,
	optimizer *bandwidth.Optimizer,
	store *cache.Store,
) *Handler {
	return &Handler{
		resolver:  resolver,
		proxy:     manifestProxy,
		optimizer: optimizer,
		tokenTTL:  store.TTL(cache.DomainLiveToken),
	}
}

// RegisterRoutes mounts the live endpoints behind the supplied gates
// (auth, package access, tiered rate limit), applied in order.
func (h *Handler) RegisterRoutes(
	r chi.Router,
	gates ...func(http.Handler) http.Handler,
) {
	r.Route("/live/{streamID}", func(r chi.Router) {
		for _, gate := range gates {
			r.Use(gate)
		}

		r.Get("/", h.Resolve)
		r.Get("/refresh", h.Refresh)
		r.Get("/proxy", h.Proxy)
		r.Get("/proxy/*", h.ProxySubResource)
	})
}

func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "streamID")

	res, err := h.resolver.Resolve(r.Context(), streamID)
	if err != nil {
		h.resolutionError(w, streamID, err)
		return
	}

	core.OK(w, h.toResponse(res))
}

// Refresh drops the cached token and resolves fresh; players call this
// when the upstream rejects an expired token.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "streamID")

	res, err := h.resolver.ForceRefresh(r.Context(), streamID)
	if err != nil {
		h.resolutionError(w, streamID, err)
		return
	}

	core.OK(w, h.toResponse(res))
}

// Proxy fetches the stream's entry resource, rewriting it when it is a
// manifest and passing bytes through otherwise.
func (h *Handler) Proxy(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "streamID")

	h.optimizer.TrackView(r.Context(), streamID, "live")

	fetched, err := h.proxy.FetchAndRewrite(r.Context(), streamID)
	if err != nil {
		h.resolutionError(w, streamID, err)
		return
	}

	h.serve(w, fetched)
}

// ProxySubResource serves one rewritten manifest line: decode, fetch,
// and recurse through the rewrite for nested playlists.
func (h *Handler) ProxySubResource(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "streamID")
	encoded := chi.URLParam(r, "*")

	fetched, err := h.proxy.FetchSubResource(
		r.Context(), streamID, encoded, r.URL.RawQuery,
	)
	if err != nil {
		h.resolutionError(w, streamID, err)
		return
	}

	h.serve(w, fetched)
}

func (h *Handler) serve(w http.ResponseWriter, fetched *proxy.Fetched) {
	if fetched.ContentType != "" {
		w.Header().Set("Content-Type", fetched.ContentType)
	}

	if fetched.Manifest {
		//nolint:errcheck // best-effort response write
		_, _ = w.Write(fetched.Content)
		return
	}

	defer fetched.Body.Close()

	stream := bandwidth.StreamingProxy(fetched.Body)
	defer stream.Close()

	if _, err := io.Copy(w, stream); err != nil {
		// Client disconnects land here; nothing to send anymore.
		slog.Debug("segment stream aborted", "error", err)
	}
}

func (h *Handler) toResponse(res *provider.Resolution) ResolveResponse {
	expiresIn := int64(
		(h.tokenTTL - time.Since(res.IssuedAt)).Seconds(),
	)
	if expiresIn < 0 {
		expiresIn = 0
	}

	return ResolveResponse{
		StreamID:  res.StreamID,
		URL:       res.URL,
		Cached:    res.Cached,
		Timestamp: res.IssuedAt,
		ExpiresIn: expiresIn,
	}
}

// resolutionError maps a failed resolve onto the wire contract: hard
// resolution failures are surfaced as 500s with the machine code, never
// retried here.
func (h *Handler) resolutionError(
	w http.ResponseWriter,
	streamID string,
	err error,
) {
	var resErr *core.ResolutionError
	if errors.As(err, &resErr) {
		slog.Error("stream resolution failed",
			"stream_id", streamID,
			"reason", resErr.Reason,
		)
		core.JSONError(w, core.NewAppError(
			http.StatusInternalServerError,
			core.CodeResolutionFailed,
			resErr.Error(),
		))
		return
	}

	core.InternalServerError(w, err)
}
