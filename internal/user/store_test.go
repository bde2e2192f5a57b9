// AngelaMos | 2026
// store_test.go

package user

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dashtv/streaming-gateway/internal/config"
	"github.com/dashtv/streaming-gateway/internal/core"
	"github.com/dashtv/streaming-gateway/internal/filelock"
)

func testStore(t *testing.T) *Store {
	t.Helper()

	dir := t.TempDir()
	s := NewStore(config.DataConfig{
		UsersFile:        filepath.Join(dir, "users.json"),
		TransactionsFile: filepath.Join(dir, "transactions.json"),
	}, filelock.New())

	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return s
}

func seedUser(
	t *testing.T,
	s *Store,
	username string,
	balance, monthlyPrice int64,
	categories []string,
) *User {
	t.Helper()
	ctx := context.Background()

	if _, err := s.CreateOrUpdate(ctx, username, "Test User", ""); err != nil {
		t.Fatalf("CreateOrUpdate() error = %v", err)
	}
	if _, err := s.UpdatePackage(ctx, username, categories, monthlyPrice); err != nil {
		t.Fatalf("UpdatePackage() error = %v", err)
	}
	if balance > 0 {
		if _, _, err := s.UpdateWallet(
			ctx, username, balance, TxTopup, "seed",
		); err != nil {
			t.Fatalf("UpdateWallet() error = %v", err)
		}
	}
	return s.User(username)
}

func TestDetermineTier(t *testing.T) {
	tests := []struct {
		name       string
		categories int
		price      int64
		want       Tier
	}{
		{"empty package", 0, 0, TierBasic},
		{"basic limits", 2, 30000, TierBasic},
		{"categories push standard", 3, 10000, TierStandard},
		{"price pushes standard", 1, 30001, TierStandard},
		{"standard limits", 5, 60000, TierStandard},
		{"categories push premium", 6, 10000, TierPremium},
		{"price pushes premium", 2, 60001, TierPremium},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cats := make([]string, tc.categories)
			if got := DetermineTier(cats, tc.price); got != tc.want {
				t.Errorf(
					"DetermineTier(%d cats, %d) = %s, want %s",
					tc.categories, tc.price, got, tc.want,
				)
			}
		})
	}
}

func TestDetermineTierMonotonic(t *testing.T) {
	rank := func(tr Tier) int {
		return map[Tier]int{TierBasic: 1, TierStandard: 2, TierPremium: 3}[tr]
	}

	for n := 0; n <= 7; n++ {
		for _, price := range []int64{0, 15000, 30000, 45000, 60000, 90000} {
			base := rank(DetermineTier(make([]string, n), price))
			moreCats := rank(DetermineTier(make([]string, n+1), price))
			morePrice := rank(DetermineTier(make([]string, n), price+20000))

			if moreCats < base {
				t.Fatalf("tier dropped adding a category at (%d, %d)", n, price)
			}
			if morePrice < base {
				t.Fatalf("tier dropped raising price at (%d, %d)", n, price)
			}
		}
	}
}

func TestValidateStreamAccessDecisionTable(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	seedUser(t, s, "sporty", 50000, 20000, []string{"sports"})

	if _, err := s.CreateOrUpdate(ctx, "broke", "", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SetStatus(ctx, "broke", StatusSuspended); err != nil {
		t.Fatal(err)
	}

	if _, err := s.CreateOrUpdate(ctx, "dormant", "", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SetStatus(ctx, "dormant", StatusInactive); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		username string
		category string
		allowed  bool
		code     string
	}{
		{"unknown user", "ghost", "", false, core.CodeUserNotFound},
		{"suspended", "broke", "", false, core.CodeAccountSuspended},
		{"inactive", "dormant", "", false, core.CodeAccountInactive},
		{"category not covered", "sporty", "movies", false, core.CodeUpgradeRequired},
		{"category covered", "sporty", "sports", true, ""},
		{"no category check", "sporty", "", true, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := s.ValidateStreamAccess(tc.username, tc.category)
			if d.Allowed != tc.allowed {
				t.Fatalf("Allowed = %v, want %v (%+v)", d.Allowed, tc.allowed, d)
			}
			if d.Code != tc.code {
				t.Errorf("Code = %q, want %q", d.Code, tc.code)
			}
		})
	}

	d := s.ValidateStreamAccess("sporty", "movies")
	if d.RequiredCategory != "movies" || d.UpgradeURL == "" {
		t.Errorf("upgrade hint incomplete: %+v", d)
	}

	ok := s.ValidateStreamAccess("sporty", "")
	if ok.User == nil || ok.User.Username != "sporty" {
		t.Errorf("allowed decision missing user: %+v", ok)
	}
}

func TestProcessBillingSuccess(t *testing.T) {
	s := testStore(t)
	seedUser(t, s, "rich", 100000, 60000, []string{"sports", "livetv", "french"})

	before := time.Now()

	res, err := s.ProcessBilling(context.Background(), "rich")
	if err != nil {
		t.Fatalf("ProcessBilling() error = %v", err)
	}
	if !res.Success {
		t.Fatalf("Success = false: %+v", res)
	}

	u := s.User("rich")
	if u.Wallet.Balance != 40000 {
		t.Errorf("balance = %d, want 40000", u.Wallet.Balance)
	}
	if u.Status != StatusActive {
		t.Errorf("status = %s, want active", u.Status)
	}
	if u.Package.NextBillingDate == nil ||
		u.Package.NextBillingDate.Before(before.AddDate(0, 1, -1)) {
		t.Errorf("nextBillingDate not advanced: %v", u.Package.NextBillingDate)
	}

	txs := s.UserTransactions("rich", 0)
	var completed int
	for _, tx := range txs {
		if tx.Type == TxDeduction && tx.Status == TxStatusCompleted {
			completed++
			if tx.Amount != 60000 {
				t.Errorf("deduction amount = %d, want 60000", tx.Amount)
			}
		}
	}
	if completed != 1 {
		t.Errorf("completed deductions = %d, want 1", completed)
	}
}

func TestProcessBillingInsufficientBalance(t *testing.T) {
	s := testStore(t)
	seedUser(t, s, "broke", 10000, 60000, []string{"sports", "livetv", "french"})

	res, err := s.ProcessBilling(context.Background(), "broke")
	if err != nil {
		t.Fatalf("ProcessBilling() error = %v", err)
	}
	if res.Success {
		t.Fatal("Success = true, want billing failure")
	}
	if !res.Suspended {
		t.Fatal("Suspended = false, want true")
	}

	u := s.User("broke")
	if u.Wallet.Balance != 10000 {
		t.Errorf("balance = %d, want 10000 untouched", u.Wallet.Balance)
	}
	if u.Status != StatusSuspended {
		t.Errorf("status = %s, want suspended", u.Status)
	}

	var failed int
	for _, tx := range s.UserTransactions("broke", 0) {
		if tx.Type == TxDeductionFailed {
			failed++
		}
	}
	if failed != 1 {
		t.Errorf("deduction_failed records = %d, want 1", failed)
	}
}

func TestProcessBillingNoPackage(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if _, err := s.CreateOrUpdate(ctx, "fresh", "", ""); err != nil {
		t.Fatal(err)
	}

	res, err := s.ProcessBilling(ctx, "fresh")
	if err != nil {
		t.Fatalf("ProcessBilling() error = %v", err)
	}
	if res.Success || res.Suspended {
		t.Errorf("no-package billing = %+v, want plain failure", res)
	}
	if s.User("fresh").Status != StatusActive {
		t.Error("user without package was suspended")
	}
}

func TestPendingTopupConfirm(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedUser(t, s, "payer", 0, 20000, []string{"sports"})

	tx, err := s.CreatePendingTopup(ctx, "payer", 50000, "mobile_money", "")
	if err != nil {
		t.Fatalf("CreatePendingTopup() error = %v", err)
	}

	if got := s.User("payer").Wallet.Balance; got != 0 {
		t.Fatalf("balance moved before confirmation: %d", got)
	}
	if len(s.PendingTopups()) != 1 {
		t.Fatalf("PendingTopups() = %d, want 1", len(s.PendingTopups()))
	}

	u, confirmed, err := s.ConfirmTopup(ctx, tx.ID, "admin")
	if err != nil {
		t.Fatalf("ConfirmTopup() error = %v", err)
	}
	if u.Wallet.Balance != 50000 {
		t.Errorf("balance = %d, want 50000", u.Wallet.Balance)
	}
	if confirmed.Status != TxStatusConfirmed || confirmed.ConfirmedBy != "admin" {
		t.Errorf("transaction = %+v", confirmed)
	}

	// Second confirmation must be rejected.
	if _, _, err := s.ConfirmTopup(ctx, tx.ID, "admin"); err == nil {
		t.Fatal("double confirmation accepted")
	}
}

func TestUsersDueForBilling(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	due := seedUser(t, s, "due", 100000, 20000, []string{"sports"})
	seedUser(t, s, "suspended", 100000, 20000, []string{"sports"})
	if _, err := s.SetStatus(ctx, "suspended", StatusSuspended); err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	got := s.UsersDueForBilling(now)
	if len(got) != 1 || got[0].Username != "due" {
		t.Fatalf("UsersDueForBilling() = %v", usernames(got))
	}
	if due.Package.BillingDate != now.Day() {
		t.Fatalf("billingDate = %d, want today", due.Package.BillingDate)
	}

	// A different day of month matches nobody.
	other := now.AddDate(0, 0, 1)
	if got := s.UsersDueForBilling(other); len(got) != 0 {
		t.Fatalf("UsersDueForBilling(+1d) = %v, want none", usernames(got))
	}
}

func usernames(users []*User) []string {
	out := make([]string, len(users))
	for i, u := range users {
		out[i] = u.Username
	}
	return out
}

func TestLoadPersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DataConfig{
		UsersFile:        filepath.Join(dir, "users.json"),
		TransactionsFile: filepath.Join(dir, "transactions.json"),
	}
	ctx := context.Background()

	s := NewStore(cfg, filelock.New())
	if err := s.Load(ctx); err != nil {
		t.Fatal(err)
	}
	seedUser(t, s, "durable", 5000, 20000, []string{"sports"})

	reopened := NewStore(cfg, filelock.New())
	if err := reopened.Load(ctx); err != nil {
		t.Fatal(err)
	}

	u := reopened.User("durable")
	if u == nil {
		t.Fatal("user lost across restart")
	}
	if u.Wallet.Balance != 5000 {
		t.Errorf("balance = %d, want 5000", u.Wallet.Balance)
	}
	if len(reopened.UserTransactions("durable", 0)) != 1 {
		t.Error("transactions lost across restart")
	}
}
