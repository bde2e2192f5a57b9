// AngelaMos | 2026
// handler.go

package vod

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dashtv/streaming-gateway/internal/bandwidth"
	"github.com/dashtv/streaming-gateway/internal/core"
	"github.com/dashtv/streaming-gateway/internal/provider"
)

// URLResponse carries a direct playback URL. VOD files embed the
// account credentials in the path, so these URLs never pass through the
// manifest rewrite.
type URLResponse struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Container string    `json:"container"`
	Timestamp time.Time `json:"timestamp"`
}

// Handler serves on-demand content: movie and series metadata from the
// upstream player API, and direct playback URLs.
type Handler struct {
	resolver  *provider.Client
	optimizer *bandwidth.Optimizer
}

func NewHandler(resolver *provider.Client, optimizer *bandwidth.Optimizer) *Handler {
	return &Handler{
		resolver:  resolver,
		optimizer: optimizer,
	}
}

// RegisterRoutes mounts the on-demand endpoints. Movie and series
// routes take separate gate chains since they sit behind different
// package categories.
func (h *Handler) RegisterRoutes(
	r chi.Router,
	movieGates []func(http.Handler) http.Handler,
	seriesGates []func(http.Handler) http.Handler,
) {
	r.Route("/vod/{vodID}", func(r chi.Router) {
		for _, gate := range movieGates {
			r.Use(gate)
		}

		r.Get("/", h.MovieInfo)
		r.Get("/url", h.MovieURL)
	})

	r.Route("/series", func(r chi.Router) {
		for _, gate := range seriesGates {
			r.Use(gate)
		}

		r.Get("/{seriesID}", h.SeriesInfo)
		r.Get("/episode/{episodeID}/url", h.EpisodeURL)
	})
}

func (h *Handler) MovieInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.resolver.StreamInfo(r.Context(), "vod", chi.URLParam(r, "vodID"))
	if err != nil {
		h.upstreamError(w, err)
		return
	}

	core.OK(w, info)
}

func (h *Handler) MovieURL(w http.ResponseWriter, r *http.Request) {
	vodID := chi.URLParam(r, "vodID")
	container := containerParam(r, "mp4")

	h.optimizer.TrackView(r.Context(), vodID, "movie")

	core.OK(w, URLResponse{
		ID:        vodID,
		URL:       h.resolver.VODURL(vodID, container),
		Container: container,
		Timestamp: time.Now(),
	})
}

func (h *Handler) SeriesInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.resolver.StreamInfo(
		r.Context(), "series", chi.URLParam(r, "seriesID"),
	)
	if err != nil {
		h.upstreamError(w, err)
		return
	}

	core.OK(w, info)
}

func (h *Handler) EpisodeURL(w http.ResponseWriter, r *http.Request) {
	episodeID := chi.URLParam(r, "episodeID")
	container := containerParam(r, "mkv")

	h.optimizer.TrackView(r.Context(), episodeID, "episode")

	core.OK(w, URLResponse{
		ID:        episodeID,
		URL:       h.resolver.SeriesEpisodeURL(episodeID, container),
		Container: container,
		Timestamp: time.Now(),
	})
}

func containerParam(r *http.Request, fallback string) string {
	if ext := r.URL.Query().Get("ext"); ext != "" {
		return ext
	}
	return fallback
}

func (h *Handler) upstreamError(w http.ResponseWriter, err error) {
	if errors.Is(err, core.ErrInvalidInput) {
		core.BadRequest(w, err.Error())
		return
	}

	core.JSONError(w, core.NewAppError(
		http.StatusBadGateway,
		"UPSTREAM_ERROR",
		"The content provider did not return metadata.",
	))
}
