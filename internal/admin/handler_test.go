// AngelaMos | 2026
// handler_test.go

package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/dashtv/streaming-gateway/internal/bandwidth"
	"github.com/dashtv/streaming-gateway/internal/billing"
	"github.com/dashtv/streaming-gateway/internal/cache"
	"github.com/dashtv/streaming-gateway/internal/config"
	"github.com/dashtv/streaming-gateway/internal/filelock"
	"github.com/dashtv/streaming-gateway/internal/user"
)

// newAdmin wires the admin surface with real components and a no-op
// gate; the key middleware has its own tests.
func newAdmin(t *testing.T) (http.Handler, *user.Store) {
	t.Helper()

	dir := t.TempDir()
	locks := filelock.New()
	store := user.NewStore(config.DataConfig{
		UsersFile:        filepath.Join(dir, "users.json"),
		TransactionsFile: filepath.Join(dir, "transactions.json"),
	}, locks)
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	cacheStore := cache.NewStore(
		redis.NewClient(&redis.Options{
			Addr:        "127.0.0.1:1",
			DialTimeout: 50 * time.Millisecond,
			MaxRetries:  -1,
		}),
		config.CacheConfig{},
	)

	h := NewHandler(HandlerConfig{
		Store:     store,
		Scheduler: billing.NewScheduler(store, nil),
		Optimizer: bandwidth.NewOptimizer(cacheStore),
		Locks:     locks,
	})

	passthrough := func(next http.Handler) http.Handler { return next }

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		h.RegisterRoutes(r, passthrough)
	})
	return r, store
}

func do(
	t *testing.T,
	handler http.Handler,
	method, path string,
	body any,
) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

type dataEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()

	var env dataEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, rec.Body.String())
	}
	if err := json.Unmarshal(env.Data, dest); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func TestUserLifecycle(t *testing.T) {
	handler, _ := newAdmin(t)

	rec := do(t, handler, http.MethodPost, "/api/admin/users", map[string]string{
		"username": "mamadou",
		"name":     "Mamadou Diallo",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d (%s)", rec.Code, rec.Body.String())
	}

	rec = do(t, handler, http.MethodGet, "/api/admin/users/mamadou", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status = %d", rec.Code)
	}

	var got user.UserResponse
	decodeData(t, rec, &got)
	if got.Tier != user.TierBasic {
		t.Errorf("new user tier = %q, want BASIC", got.Tier)
	}
	if got.Status != user.StatusActive {
		t.Errorf("new user status = %q, want active", got.Status)
	}

	rec = do(t, handler, http.MethodPost,
		"/api/admin/users/mamadou/status",
		map[string]string{"status": "suspended"},
	)
	if rec.Code != http.StatusOK {
		t.Fatalf("set status: %d (%s)", rec.Code, rec.Body.String())
	}

	decodeData(t, rec, &got)
	if got.Status != user.StatusSuspended {
		t.Errorf("status = %q, want suspended", got.Status)
	}

	rec = do(t, handler, http.MethodGet, "/api/admin/users/ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown user: status = %d, want 404", rec.Code)
	}
}

func TestWalletMovements(t *testing.T) {
	handler, store := newAdmin(t)

	if _, err := store.CreateOrUpdate(
		context.Background(), "aissatou", "", "",
	); err != nil {
		t.Fatal(err)
	}

	rec := do(t, handler, http.MethodPost,
		"/api/admin/users/aissatou/topup",
		map[string]any{"amount": 50000, "note": "cash payment"},
	)
	if rec.Code != http.StatusOK {
		t.Fatalf("topup: %d (%s)", rec.Code, rec.Body.String())
	}

	var resp user.WalletResponse
	decodeData(t, rec, &resp)
	if resp.User.Wallet.Balance != 50000 {
		t.Errorf("balance after topup = %d, want 50000", resp.User.Wallet.Balance)
	}

	rec = do(t, handler, http.MethodPost,
		"/api/admin/users/aissatou/deduct",
		map[string]any{"amount": 20000},
	)
	if rec.Code != http.StatusOK {
		t.Fatalf("deduct: %d (%s)", rec.Code, rec.Body.String())
	}
	decodeData(t, rec, &resp)
	if resp.User.Wallet.Balance != 30000 {
		t.Errorf("balance after deduct = %d, want 30000", resp.User.Wallet.Balance)
	}

	// Over-deduction must leave the balance untouched.
	rec = do(t, handler, http.MethodPost,
		"/api/admin/users/aissatou/deduct",
		map[string]any{"amount": 999999},
	)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("over-deduct: %d, want 400", rec.Code)
	}
	if got := store.User("aissatou").Wallet.Balance; got != 30000 {
		t.Errorf("balance after failed deduct = %d, want 30000", got)
	}

	rec = do(t, handler, http.MethodPost,
		"/api/admin/users/aissatou/refund",
		map[string]any{"amount": 5000, "note": "outage credit"},
	)
	if rec.Code != http.StatusOK {
		t.Fatalf("refund: %d (%s)", rec.Code, rec.Body.String())
	}
	decodeData(t, rec, &resp)
	if resp.User.Wallet.Balance != 35000 {
		t.Errorf("balance after refund = %d, want 35000", resp.User.Wallet.Balance)
	}
}

func TestPendingTopupConfirmFlow(t *testing.T) {
	handler, store := newAdmin(t)
	ctx := context.Background()

	if _, err := store.CreateOrUpdate(ctx, "fatou", "", ""); err != nil {
		t.Fatal(err)
	}
	tx, err := store.CreatePendingTopup(ctx, "fatou", 25000, "mobile_money", "")
	if err != nil {
		t.Fatal(err)
	}

	rec := do(t, handler, http.MethodGet, "/api/admin/topups/pending", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("pending list: %d", rec.Code)
	}
	var pending []user.Transaction
	decodeData(t, rec, &pending)
	if len(pending) != 1 || pending[0].ID != tx.ID {
		t.Fatalf("pending = %+v, want one entry %s", pending, tx.ID)
	}

	rec = do(t, handler, http.MethodPost,
		"/api/admin/topups/"+tx.ID+"/confirm", nil,
	)
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm: %d (%s)", rec.Code, rec.Body.String())
	}

	var resp user.WalletResponse
	decodeData(t, rec, &resp)
	if resp.User.Wallet.Balance != 25000 {
		t.Errorf("balance after confirm = %d, want 25000", resp.User.Wallet.Balance)
	}

	// Second confirm of the same transaction is rejected.
	rec = do(t, handler, http.MethodPost,
		"/api/admin/topups/"+tx.ID+"/confirm", nil,
	)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("double confirm: %d, want 400", rec.Code)
	}

	rec = do(t, handler, http.MethodPost,
		"/api/admin/topups/TXN-nope/confirm", nil,
	)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown transaction: %d, want 404", rec.Code)
	}
}

func TestManualBillingRun(t *testing.T) {
	handler, store := newAdmin(t)
	ctx := context.Background()

	if _, err := store.CreateOrUpdate(ctx, "ibrahima", "", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := store.UpdatePackage(
		ctx, "ibrahima", []string{"sports"}, 20000,
	); err != nil {
		t.Fatal(err)
	}
	if _, _, err := store.UpdateWallet(
		ctx, "ibrahima", 100000, user.TxTopup, "",
	); err != nil {
		t.Fatal(err)
	}

	rec := do(t, handler, http.MethodPost, "/api/admin/billing/run", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("run: %d (%s)", rec.Code, rec.Body.String())
	}

	var run billing.LastRun
	decodeData(t, rec, &run)
	if run.Results.Successful != 1 {
		t.Errorf("successful = %d, want 1", run.Results.Successful)
	}
	if run.Results.Revenue != 20000 {
		t.Errorf("revenue = %d, want 20000", run.Results.Revenue)
	}

	rec = do(t, handler, http.MethodGet, "/api/admin/billing/status", nil)
	var status billing.Status
	decodeData(t, rec, &status)
	if status.Stats.TotalRuns != 1 {
		t.Errorf("totalRuns = %d, want 1", status.Stats.TotalRuns)
	}
}

func TestSystemStats(t *testing.T) {
	handler, store := newAdmin(t)

	if _, err := store.CreateOrUpdate(
		context.Background(), "ousmane", "", "",
	); err != nil {
		t.Fatal(err)
	}

	rec := do(t, handler, http.MethodGet, "/api/admin/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: %d (%s)", rec.Code, rec.Body.String())
	}

	var stats SystemStatsResponse
	decodeData(t, rec, &stats)
	if stats.Users.TotalUsers != 1 {
		t.Errorf("totalUsers = %d, want 1", stats.Users.TotalUsers)
	}
	if stats.Runtime.GoVersion == "" {
		t.Error("runtime stats missing")
	}
}

func TestBandwidthSavingsValidation(t *testing.T) {
	handler, _ := newAdmin(t)

	tests := []struct {
		name       string
		query      string
		wantStatus int
	}{
		{"missing contentId", "fileSize=1000", http.StatusBadRequest},
		{"missing fileSize", "contentId=42", http.StatusBadRequest},
		{"negative fileSize", "contentId=42&fileSize=-5", http.StatusBadRequest},
		{"valid", "contentId=42&fileSize=1000", http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, handler, http.MethodGet,
				"/api/admin/bandwidth/savings?"+tc.query, nil,
			)
			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d (%s)",
					rec.Code, tc.wantStatus, rec.Body.String())
			}
		})
	}
}
