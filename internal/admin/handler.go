// AngelaMos | 2026
// handler.go

package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"

	"github.com/dashtv/streaming-gateway/internal/bandwidth"
	"github.com/dashtv/streaming-gateway/internal/billing"
	"github.com/dashtv/streaming-gateway/internal/core"
	"github.com/dashtv/streaming-gateway/internal/filelock"
	"github.com/dashtv/streaming-gateway/internal/user"
)

// Handler exposes the operator surface: user management, wallet
// movements, pending top-up confirmation, billing control, and system
// stats. Every route is gated by the admin key middleware passed to
// RegisterRoutes.
type Handler struct {
	store      *user.Store
	scheduler  *billing.Scheduler
	optimizer  *bandwidth.Optimizer
	locks      *filelock.Locker
	redisStats func() *redis.PoolStats
	validator  *validator.Validate
}

type HandlerConfig struct {
	Store      *user.Store
	Scheduler  *billing.Scheduler
	Optimizer  *bandwidth.Optimizer
	Locks      *filelock.Locker
	RedisStats func() *redis.PoolStats
}

func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		store:      cfg.Store,
		scheduler:  cfg.Scheduler,
		optimizer:  cfg.Optimizer,
		locks:      cfg.Locks,
		redisStats: cfg.RedisStats,
		validator:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	adminOnly func(http.Handler) http.Handler,
) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(adminOnly)

		r.Get("/users", h.ListUsers)
		r.Post("/users", h.CreateUser)
		r.Get("/users/{username}", h.GetUser)
		r.Post("/users/{username}/status", h.SetStatus)
		r.Post("/users/{username}/topup", h.Topup)
		r.Post("/users/{username}/deduct", h.Deduct)
		r.Post("/users/{username}/refund", h.Refund)
		r.Get("/users/{username}/transactions", h.UserTransactions)

		r.Get("/topups/pending", h.PendingTopups)
		r.Post("/topups/{transactionID}/confirm", h.ConfirmTopup)

		r.Get("/billing/status", h.BillingStatus)
		r.Post("/billing/run", h.RunBilling)
		r.Post("/billing/stats/reset", h.ResetBillingStats)

		r.Get("/bandwidth/report", h.BandwidthReport)
		r.Get("/bandwidth/savings", h.BandwidthSavings)

		r.Get("/stats", h.SystemStats)
	})
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	core.OK(w, user.ToUserResponseList(h.store.All()))
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req user.CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	u, err := h.store.CreateOrUpdate(r.Context(), req.Username, req.Name, req.WhatsApp)
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	core.Created(w, user.ToUserResponse(u))
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	u := h.store.User(chi.URLParam(r, "username"))
	if u == nil {
		core.NotFound(w, "user")
		return
	}

	core.OK(w, user.ToUserResponse(u))
}

func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req user.SetStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	u, err := h.store.SetStatus(r.Context(), chi.URLParam(r, "username"), req.Status)
	if err != nil {
		h.storeError(w, err)
		return
	}

	core.OK(w, user.ToUserResponse(u))
}

// Topup credits a wallet directly, skipping the pending flow. Used when
// the admin has the cash in hand.
func (h *Handler) Topup(w http.ResponseWriter, r *http.Request) {
	var req user.TopupRequest
	h.walletMovement(w, r, &req, func() (int64, string, string) {
		return req.Amount, user.TxTopup, req.Note
	})
}

func (h *Handler) Deduct(w http.ResponseWriter, r *http.Request) {
	var req user.DeductRequest
	h.walletMovement(w, r, &req, func() (int64, string, string) {
		return req.Amount, user.TxDeduction, req.Note
	})
}

func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	var req user.RefundRequest
	h.walletMovement(w, r, &req, func() (int64, string, string) {
		return req.Amount, user.TxRefund, req.Note
	})
}

func (h *Handler) walletMovement(
	w http.ResponseWriter,
	r *http.Request,
	req any,
	movement func() (amount int64, txType, note string),
) {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	amount, txType, note := movement()

	u, tx, err := h.store.UpdateWallet(
		r.Context(), chi.URLParam(r, "username"), amount, txType, note,
	)
	if err != nil {
		h.storeError(w, err)
		return
	}

	core.OK(w, user.WalletResponse{
		User:        user.ToUserResponse(u),
		Transaction: tx,
	})
}

func (h *Handler) UserTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	core.OK(w, h.store.UserTransactions(chi.URLParam(r, "username"), limit))
}

func (h *Handler) PendingTopups(w http.ResponseWriter, r *http.Request) {
	core.OK(w, h.store.PendingTopups())
}

// ConfirmTopup applies a pending top-up once the payment is verified.
// The confirming admin is recorded on the transaction.
func (h *Handler) ConfirmTopup(w http.ResponseWriter, r *http.Request) {
	admin := r.Header.Get("X-Username")
	if admin == "" {
		admin = "admin"
	}

	u, tx, err := h.store.ConfirmTopup(
		r.Context(), chi.URLParam(r, "transactionID"), admin,
	)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrNotFound):
			core.NotFound(w, "transaction")
		case errors.Is(err, core.ErrInvalidInput):
			core.BadRequest(w, err.Error())
		default:
			core.InternalServerError(w, err)
		}
		return
	}

	core.OK(w, user.WalletResponse{
		User:        user.ToUserResponse(u),
		Transaction: tx,
	})
}

func (h *Handler) BillingStatus(w http.ResponseWriter, r *http.Request) {
	core.OK(w, h.scheduler.Status())
}

func (h *Handler) RunBilling(w http.ResponseWriter, r *http.Request) {
	run := h.scheduler.ManualRun(r.Context())
	if run == nil {
		core.JSONError(w, core.NewAppError(
			http.StatusConflict,
			"BILLING_IN_PROGRESS",
			"A billing run is already in progress.",
		))
		return
	}

	core.OK(w, run)
}

func (h *Handler) ResetBillingStats(w http.ResponseWriter, r *http.Request) {
	h.scheduler.ResetStats()
	core.OK(w, h.scheduler.Status())
}

func (h *Handler) BandwidthReport(w http.ResponseWriter, r *http.Request) {
	core.OK(w, h.optimizer.Report())
}

// BandwidthSavings estimates the bytes caching avoids for one piece of
// content, sized by the fileSize query parameter.
func (h *Handler) BandwidthSavings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	contentID := q.Get("contentId")
	if contentID == "" {
		core.BadRequest(w, "contentId is required")
		return
	}

	contentType := q.Get("contentType")
	if contentType == "" {
		contentType = "live"
	}

	fileSize, err := strconv.ParseInt(q.Get("fileSize"), 10, 64)
	if err != nil || fileSize <= 0 {
		core.BadRequest(w, "fileSize must be a positive integer")
		return
	}

	core.OK(w, h.optimizer.EstimateSavings(r.Context(), contentID, contentType, fileSize))
}

type SystemStatsResponse struct {
	Users     user.Stats      `json:"users"`
	Billing   billing.Status  `json:"billing"`
	FileLocks filelock.Stats  `json:"fileLocks"`
	Redis     *RedisPoolStats `json:"redis,omitempty"`
	Runtime   RuntimeStats    `json:"runtime"`
}

type RedisPoolStats struct {
	Hits       uint32 `json:"hits"`
	Misses     uint32 `json:"misses"`
	Timeouts   uint32 `json:"timeouts"`
	TotalConns uint32 `json:"total_conns"`
	IdleConns  uint32 `json:"idle_conns"`
	StaleConns uint32 `json:"stale_conns"`
}

type RuntimeStats struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	NumCPU       int    `json:"num_cpu"`
	MemAlloc     uint64 `json:"mem_alloc_bytes"`
	MemSys       uint64 `json:"mem_sys_bytes"`
	NumGC        uint32 `json:"num_gc"`
}

func (h *Handler) SystemStats(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	response := SystemStatsResponse{
		Users:     h.store.Stats(),
		Billing:   h.scheduler.Status(),
		FileLocks: h.locks.Stats(),
		Runtime: RuntimeStats{
			GoVersion:    runtime.Version(),
			NumGoroutine: runtime.NumGoroutine(),
			NumCPU:       runtime.NumCPU(),
			MemAlloc:     memStats.Alloc,
			MemSys:       memStats.Sys,
			NumGC:        memStats.NumGC,
		},
	}

	if h.redisStats != nil {
		stats := h.redisStats()
		response.Redis = &RedisPoolStats{
			Hits:       stats.Hits,
			Misses:     stats.Misses,
			Timeouts:   stats.Timeouts,
			TotalConns: stats.TotalConns,
			IdleConns:  stats.IdleConns,
			StaleConns: stats.StaleConns,
		}
	}

	core.OK(w, response)
}

func (h *Handler) storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		core.NotFound(w, "user")
	case errors.Is(err, core.ErrInvalidInput):
		core.BadRequest(w, err.Error())
	default:
		core.InternalServerError(w, err)
	}
}
