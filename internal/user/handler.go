// AngelaMos | 2026
// handler.go

package user

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/dashtv/streaming-gateway/internal/core"
)

type Handler struct {
	store     *Store
	validator *validator.Validate
}

func NewHandler(store *Store) *Handler {
	return &Handler{
		store:     store,
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
) {
	r.Route("/packages", func(r chi.Router) {
		r.Get("/categories", h.ListCategories)
		r.Get("/{username}", h.GetPackage)
		r.Post("/create", h.CreatePackage)
	})

	r.Route("/wallet", func(r chi.Router) {
		r.Use(authenticator)

		r.Get("/balance", h.GetBalance)
		r.Get("/transactions", h.GetTransactions)
		r.Post("/topup", h.RequestTopup)
	})
}

// ListCategories returns the package catalogue with per-category
// pricing.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	core.OK(w, CategoriesResponse{
		Categories: Categories,
		Currency:   "GNF",
	})
}

func (h *Handler) GetPackage(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	u := h.store.User(username)
	if u == nil {
		core.NotFound(w, "user")
		return
	}

	core.OK(w, u.Package)
}

// CreatePackage upserts a user's category selection. The monthly price
// is derived from the catalogue, never taken from the client.
func (h *Handler) CreatePackage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username" validate:"required,min=2,max=64"`
		SelectPackageRequest
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	if ok, unknown := ValidCategories(req.SelectedCategories); !ok {
		core.BadRequest(w, fmt.Sprintf("invalid categories: %v", unknown))
		return
	}

	if h.store.User(req.Username) == nil {
		if _, err := h.store.CreateOrUpdate(
			r.Context(), req.Username, "", "",
		); err != nil {
			core.InternalServerError(w, err)
			return
		}
	}

	u, err := h.store.UpdatePackage(
		r.Context(),
		req.Username,
		req.SelectedCategories,
		PriceFor(req.SelectedCategories),
	)
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, ToUserResponse(u))
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	username := core.UsernameFromContext(r.Context())

	u := h.store.User(username)
	if u == nil {
		core.NotFound(w, "user")
		return
	}

	core.OK(w, u.Wallet)
}

func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	username := core.UsernameFromContext(r.Context())

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	core.OK(w, h.store.UserTransactions(username, limit))
}

// RequestTopup records a pending top-up; an admin confirms it once the
// mobile-money payment is verified.
func (h *Handler) RequestTopup(w http.ResponseWriter, r *http.Request) {
	username := core.UsernameFromContext(r.Context())

	var req PendingTopupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	method := req.PaymentMethod
	if method == "" {
		method = "mobile_money"
	}

	tx, err := h.store.CreatePendingTopup(
		r.Context(), username, req.Amount, method, req.Note,
	)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			core.NotFound(w, "user")
			return
		}
		core.InternalServerError(w, err)
		return
	}

	core.Created(w, tx)
}
