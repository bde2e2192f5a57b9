// AngelaMos | 2026
// store.go

package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dashtv/streaming-gateway/internal/config"
	"github.com/dashtv/streaming-gateway/internal/core"
	"github.com/dashtv/streaming-gateway/internal/filelock"
)

// Tier thresholds: a package at or under both limits stays in that tier.
const (
	basicMaxCategories    = 2
	basicMaxPrice         = 30000
	standardMaxCategories = 5
	standardMaxPrice      = 60000
)

// Store is the unified user datastore: users.json and transactions.json
// held in memory and rewritten whole on every mutation, each file under
// its own FIFO lock. Cross-file writes are not atomic; a crash between
// the transaction write and the user write can leave a transaction
// without its balance change.
type Store struct {
	cfg    config.DataConfig
	locks  *filelock.Locker
	legacy *LegacyStore

	mu           sync.RWMutex
	users        []*User
	transactions []*Transaction
}

func NewStore(cfg config.DataConfig, locks *filelock.Locker) *Store {
	return &Store{
		cfg:    cfg,
		locks:  locks,
		legacy: NewLegacyStore(cfg.LegacyUsersFile),
	}
}

// Load reads both data files, creating empty ones on first run.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := loadOrCreate(ctx, s.locks, s.cfg.UsersFile, &s.users); err != nil {
		return fmt.Errorf("load users: %w", err)
	}
	if err := loadOrCreate(
		ctx, s.locks, s.cfg.TransactionsFile, &s.transactions,
	); err != nil {
		return fmt.Errorf("load transactions: %w", err)
	}

	s.legacy.Load(ctx, s.locks)

	slog.Info("user store loaded",
		"users", len(s.users),
		"transactions", len(s.transactions),
	)

	return nil
}

func loadOrCreate[T any](
	ctx context.Context,
	locks *filelock.Locker,
	path string,
	dest *[]T,
) error {
	return locks.WithLock(ctx, path, func() error {
		raw, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			*dest = []T{}
			slog.Info("created data file", "path", path)
			return os.WriteFile(path, []byte("[]"), 0o644)
		}
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, dest)
	})
}

// saveUsers rewrites users.json. Caller must hold s.mu.
func (s *Store) saveUsers(ctx context.Context) error {
	return saveFile(ctx, s.locks, s.cfg.UsersFile, s.users)
}

// saveTransactions rewrites transactions.json. Caller must hold s.mu.
func (s *Store) saveTransactions(ctx context.Context) error {
	return saveFile(ctx, s.locks, s.cfg.TransactionsFile, s.transactions)
}

func saveFile(
	ctx context.Context,
	locks *filelock.Locker,
	path string,
	value any,
) error {
	return locks.WithLock(ctx, path, func() error {
		raw, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return err
		}
		return os.WriteFile(path, raw, 0o644)
	})
}

// DetermineTier maps a package selection onto a tier. Both the category
// count and the price must stay under a tier's limits to qualify.
func DetermineTier(selectedCategories []string, totalPrice int64) Tier {
	n := len(selectedCategories)

	if n <= basicMaxCategories && totalPrice <= basicMaxPrice {
		return TierBasic
	}
	if n <= standardMaxCategories && totalPrice <= standardMaxPrice {
		return TierStandard
	}
	return TierPremium
}

// User returns the account for username, or nil.
func (s *Store) User(username string) *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findLocked(username)
}

func (s *Store) findLocked(username string) *User {
	for _, u := range s.users {
		if u.Username == username {
			return u
		}
	}
	return nil
}

// LegacyUser looks up the read-only legacy store consumed for backward
// compatibility with accounts never migrated to users.json.
func (s *Store) LegacyUser(username string) *LegacyUser {
	return s.legacy.User(username)
}

// CreateOrUpdate upserts a user by username.
func (s *Store) CreateOrUpdate(
	ctx context.Context,
	username, name, whatsapp string,
) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()

	if existing := s.findLocked(username); existing != nil {
		if name != "" {
			existing.Name = name
		}
		if whatsapp != "" {
			existing.WhatsApp = whatsapp
		}
		existing.UpdatedAt = &now
		return existing, s.saveUsers(ctx)
	}

	u := &User{
		Username: username,
		Name:     name,
		WhatsApp: whatsapp,
		Tier:     TierBasic,
		Package: Package{
			SelectedCategories: []string{},
		},
		Wallet: Wallet{
			AutoRenew: true,
		},
		Status:    StatusActive,
		CreatedAt: &now,
		UpdatedAt: &now,
	}
	s.users = append(s.users, u)

	slog.Info("user created", "username", username)

	return u, s.saveUsers(ctx)
}

// UpdatePackage replaces a user's category selection, re-derives the
// tier, and anchors billing to today's day of month.
func (s *Store) UpdatePackage(
	ctx context.Context,
	username string,
	selectedCategories []string,
	monthlyPrice int64,
) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.findLocked(username)
	if u == nil {
		return nil, fmt.Errorf("%w: user", core.ErrNotFound)
	}

	now := time.Now()
	next := now.AddDate(0, 1, 0)

	createdAt := u.Package.CreatedAt
	if createdAt == nil {
		createdAt = &now
	}

	u.Tier = DetermineTier(selectedCategories, monthlyPrice)
	u.Package = Package{
		SelectedCategories: selectedCategories,
		MonthlyPrice:       monthlyPrice,
		CreatedAt:          createdAt,
		BillingDate:        now.Day(),
		NextBillingDate:    &next,
	}
	u.UpdatedAt = &now

	slog.Info("package updated",
		"username", username,
		"tier", u.Tier,
		"monthly_price", monthlyPrice,
	)

	return u, s.saveUsers(ctx)
}

func newTransactionID() string {
	return "TXN-" + uuid.NewString()
}

// UpdateWallet applies a completed wallet movement. Deductions are
// all-or-nothing: insufficient balance returns an error and leaves the
// balance untouched.
func (s *Store) UpdateWallet(
	ctx context.Context,
	username string,
	amount int64,
	txType, note string,
) (*User, *Transaction, error) {
	if amount <= 0 {
		return nil, nil, fmt.Errorf("%w: amount must be positive", core.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.findLocked(username)
	if u == nil {
		return nil, nil, fmt.Errorf("%w: user", core.ErrNotFound)
	}

	now := time.Now()

	delta := amount
	if txType == TxDeduction {
		if u.Wallet.Balance < amount {
			return nil, nil, fmt.Errorf(
				"%w: insufficient balance", core.ErrInvalidInput,
			)
		}
		delta = -amount
	}

	tx := &Transaction{
		ID:            newTransactionID(),
		Username:      username,
		Type:          txType,
		Amount:        amount,
		BalanceBefore: u.Wallet.Balance,
		BalanceAfter:  u.Wallet.Balance + delta,
		Note:          note,
		Status:        TxStatusCompleted,
		CreatedAt:     now,
	}

	u.Wallet.Balance += delta
	if txType == TxDeduction {
		u.Wallet.LastDeduction = &now
	} else {
		u.Wallet.LastTopup = &now
	}
	u.UpdatedAt = &now

	s.transactions = append(s.transactions, tx)
	if err := s.saveTransactions(ctx); err != nil {
		return nil, nil, err
	}
	if err := s.saveUsers(ctx); err != nil {
		return nil, nil, err
	}

	slog.Info("wallet updated",
		"username", username,
		"type", txType,
		"amount", amount,
		"balance", u.Wallet.Balance,
	)

	return u, tx, nil
}

// CreatePendingTopup records a top-up awaiting admin confirmation; the
// balance does not move until ConfirmTopup.
func (s *Store) CreatePendingTopup(
	ctx context.Context,
	username string,
	amount int64,
	paymentMethod, note string,
) (*Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", core.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.findLocked(username)
	if u == nil {
		return nil, fmt.Errorf("%w: user", core.ErrNotFound)
	}

	tx := &Transaction{
		ID:            newTransactionID(),
		Username:      username,
		Type:          TxTopup,
		Amount:        amount,
		PaymentMethod: paymentMethod,
		BalanceBefore: u.Wallet.Balance,
		BalanceAfter:  u.Wallet.Balance,
		Note:          note,
		Status:        TxStatusPending,
		CreatedAt:     time.Now(),
	}

	s.transactions = append(s.transactions, tx)

	slog.Info("pending topup created", "username", username, "amount", amount)

	return tx, s.saveTransactions(ctx)
}

// ConfirmTopup applies a pending top-up to the wallet.
func (s *Store) ConfirmTopup(
	ctx context.Context,
	transactionID, adminUsername string,
) (*User, *Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tx *Transaction
	for _, t := range s.transactions {
		if t.ID == transactionID {
			tx = t
			break
		}
	}
	if tx == nil {
		return nil, nil, fmt.Errorf("%w: transaction", core.ErrNotFound)
	}
	if tx.Status != TxStatusPending {
		return nil, nil, fmt.Errorf(
			"%w: transaction is not pending", core.ErrInvalidInput,
		)
	}

	u := s.findLocked(tx.Username)
	if u == nil {
		return nil, nil, fmt.Errorf("%w: user", core.ErrNotFound)
	}

	now := time.Now()

	tx.Status = TxStatusConfirmed
	tx.ConfirmedAt = &now
	tx.ConfirmedBy = adminUsername
	tx.BalanceAfter = u.Wallet.Balance + tx.Amount

	u.Wallet.Balance += tx.Amount
	u.Wallet.LastTopup = &now
	u.UpdatedAt = &now

	if err := s.saveTransactions(ctx); err != nil {
		return nil, nil, err
	}
	if err := s.saveUsers(ctx); err != nil {
		return nil, nil, err
	}

	slog.Info("topup confirmed",
		"username", tx.Username,
		"amount", tx.Amount,
		"confirmed_by", adminUsername,
	)

	return u, tx, nil
}

// PendingTopups returns top-ups awaiting confirmation.
func (s *Store) PendingTopups() []*Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Transaction
	for _, t := range s.transactions {
		if t.Type == TxTopup && t.Status == TxStatusPending {
			out = append(out, t)
		}
	}
	return out
}

// UserTransactions returns a user's most recent transactions.
func (s *Store) UserTransactions(username string, limit int) []*Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Transaction
	for _, t := range s.transactions {
		if t.Username == username {
			out = append(out, t)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// HasCategoryAccess reports whether an active user's package includes
// the category.
func (s *Store) HasCategoryAccess(username, categoryID string) bool {
	u := s.User(username)
	if u == nil || u.Status != StatusActive {
		return false
	}
	for _, c := range u.Package.SelectedCategories {
		if c == categoryID {
			return true
		}
	}
	return false
}

// ValidateStreamAccess runs the access decision table: existence, then
// suspension, then activity, then category coverage. The first failing
// rule wins.
func (s *Store) ValidateStreamAccess(
	username, categoryID string,
) AccessDecision {
	u := s.User(username)

	if u == nil {
		return AccessDecision{
			Code:    core.CodeUserNotFound,
			Message: "User not found in system",
		}
	}

	if u.Status == StatusSuspended {
		return AccessDecision{
			Code:           core.CodeAccountSuspended,
			Message:        "Your account is suspended due to insufficient balance",
			RequiredAction: "topup",
		}
	}

	if u.Status != StatusActive {
		return AccessDecision{
			Code:    core.CodeAccountInactive,
			Message: "Your account is inactive",
		}
	}

	if categoryID != "" && !s.HasCategoryAccess(username, categoryID) {
		return AccessDecision{
			Code: core.CodeUpgradeRequired,
			Message: fmt.Sprintf(
				"Your %s package does not include %s content",
				u.Tier,
				categoryID,
			),
			CurrentTier:      u.Tier,
			RequiredCategory: categoryID,
			UpgradeURL:       "/packages",
		}
	}

	return AccessDecision{
		Allowed: true,
		User: &AccessUser{
			Username:        u.Username,
			Tier:            u.Tier,
			Balance:         u.Wallet.Balance,
			NextBillingDate: u.Package.NextBillingDate,
		},
	}
}

// UsersDueForBilling returns active auto-renew users whose billing day
// of month is today. A billingDate of 31 never matches shorter months.
func (s *Store) UsersDueForBilling(now time.Time) []*User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day := now.Day()

	var due []*User
	for _, u := range s.users {
		if u.Status != StatusActive {
			continue
		}
		if !u.Wallet.AutoRenew {
			continue
		}
		if u.Package.BillingDate == 0 {
			continue
		}
		if u.Package.BillingDate == day {
			due = append(due, u)
		}
	}
	return due
}

// ProcessBilling charges one user their monthly price. Insufficient
// balance suspends the account, records a failed transaction, and
// leaves the balance untouched.
func (s *Store) ProcessBilling(
	ctx context.Context,
	username string,
) (*BillingResult, error) {
	u := s.User(username)
	if u == nil {
		return nil, fmt.Errorf("%w: user", core.ErrNotFound)
	}

	if u.Package.MonthlyPrice == 0 {
		slog.Warn("billing skipped, no package price", "username", username)
		return &BillingResult{Reason: "No package configured"}, nil
	}

	amount := u.Package.MonthlyPrice

	billed, tx, err := s.UpdateWallet(
		ctx, username, amount, TxDeduction, "Monthly subscription billing",
	)
	if err == nil {
		s.mu.Lock()
		now := time.Now()
		next := now.AddDate(0, 1, 0)
		billed.Package.NextBillingDate = &next
		billed.UpdatedAt = &now
		saveErr := s.saveUsers(ctx)
		s.mu.Unlock()
		if saveErr != nil {
			return nil, saveErr
		}

		slog.Info("billing successful", "username", username, "amount", amount)

		return &BillingResult{
			Success:     true,
			User:        billed,
			Transaction: tx,
		}, nil
	}

	if !errors.Is(err, core.ErrInvalidInput) {
		return nil, err
	}

	slog.Warn("billing failed, suspending account",
		"username", username,
		"amount", amount,
		"error", err,
	)

	s.mu.Lock()
	now := time.Now()
	u.Status = StatusSuspended
	u.UpdatedAt = &now

	failed := &Transaction{
		ID:        newTransactionID(),
		Username:  username,
		Type:      TxDeductionFailed,
		Amount:    amount,
		Note:      fmt.Sprintf("Monthly billing failed: %v", err),
		Status:    TxStatusFailed,
		CreatedAt: now,
	}
	s.transactions = append(s.transactions, failed)

	if saveErr := s.saveUsers(ctx); saveErr != nil {
		s.mu.Unlock()
		return nil, saveErr
	}
	if saveErr := s.saveTransactions(ctx); saveErr != nil {
		s.mu.Unlock()
		return nil, saveErr
	}
	s.mu.Unlock()

	return &BillingResult{
		Reason:      err.Error(),
		Suspended:   true,
		User:        u,
		Transaction: failed,
	}, nil
}

// SetStatus transitions a user between active/suspended/inactive.
func (s *Store) SetStatus(
	ctx context.Context,
	username, status string,
) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.findLocked(username)
	if u == nil {
		return nil, fmt.Errorf("%w: user", core.ErrNotFound)
	}

	now := time.Now()
	u.Status = status
	u.UpdatedAt = &now

	slog.Info("user status changed", "username", username, "status", status)

	return u, s.saveUsers(ctx)
}

// All returns every user.
func (s *Store) All() []*User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*User, len(s.users))
	copy(out, s.users)
	return out
}

// Stats aggregates the user base.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		TotalUsers: len(s.users),
		Tiers: map[Tier]int{
			TierBasic:    0,
			TierStandard: 0,
			TierPremium:  0,
		},
	}

	for _, u := range s.users {
		switch u.Status {
		case StatusActive:
			stats.ActiveUsers++
		case StatusSuspended:
			stats.SuspendedUsers++
		}
		stats.TotalBalance += u.Wallet.Balance
		stats.Tiers[u.Tier]++
	}

	for _, t := range s.transactions {
		if t.Type == TxDeduction && t.Status == TxStatusCompleted {
			stats.TotalRevenue += t.Amount
		}
		if t.Type == TxTopup && t.Status == TxStatusPending {
			stats.PendingTopups++
		}
	}

	return stats
}
