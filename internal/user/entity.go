// AngelaMos | 2026
// entity.go

package user

import "time"

// Tier is the subscription level derived from a user's package.
type Tier string

const (
	TierBasic    Tier = "BASIC"
	TierStandard Tier = "STANDARD"
	TierPremium  Tier = "PREMIUM"
)

// tierRank orders tiers for minimum-tier checks.
var tierRank = map[Tier]int{
	TierBasic:    1,
	TierStandard: 2,
	TierPremium:  3,
}

// AtLeast reports whether t meets the given minimum tier. Unknown tiers
// rank below BASIC.
func (t Tier) AtLeast(min Tier) bool {
	return tierRank[t] >= tierRank[min]
}

func (t Tier) Valid() bool {
	_, ok := tierRank[t]
	return ok
}

// Account statuses.
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
	StatusInactive  = "inactive"
)

// Transaction types.
const (
	TxTopup           = "topup"
	TxDeduction       = "deduction"
	TxRefund          = "refund"
	TxDeductionFailed = "deduction_failed"
)

// Transaction statuses.
const (
	TxStatusCompleted = "completed"
	TxStatusPending   = "pending"
	TxStatusConfirmed = "confirmed"
	TxStatusFailed    = "failed"
)

// Package is a user's category selection and billing terms. BillingDate
// is a day of month (1-31); months without that day skip the cycle.
type Package struct {
	SelectedCategories []string   `json:"selectedCategories"`
	MonthlyPrice       int64      `json:"monthlyPrice"`
	CreatedAt          *time.Time `json:"createdAt"`
	BillingDate        int        `json:"billingDate"`
	NextBillingDate    *time.Time `json:"nextBillingDate"`
}

// Wallet holds a user's prepaid balance in GNF.
type Wallet struct {
	Balance       int64      `json:"balance"`
	AutoRenew     bool       `json:"autoRenew"`
	LastTopup     *time.Time `json:"lastTopup"`
	LastDeduction *time.Time `json:"lastDeduction"`
}

// User is the unified account record persisted in users.json.
type User struct {
	Username  string     `json:"username"`
	Name      string     `json:"name"`
	WhatsApp  string     `json:"whatsapp,omitempty"`
	Tier      Tier       `json:"tier"`
	Package   Package    `json:"package"`
	Wallet    Wallet     `json:"wallet"`
	Status    string     `json:"status"`
	CreatedAt *time.Time `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt"`
}

// Transaction is one wallet movement persisted in transactions.json.
type Transaction struct {
	ID            string     `json:"id"`
	Username      string     `json:"username"`
	Type          string     `json:"type"`
	Amount        int64      `json:"amount"`
	PaymentMethod string     `json:"paymentMethod,omitempty"`
	BalanceBefore int64      `json:"balanceBefore"`
	BalanceAfter  int64      `json:"balanceAfter"`
	Note          string     `json:"note,omitempty"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"createdAt"`
	ConfirmedAt   *time.Time `json:"confirmedAt,omitempty"`
	ConfirmedBy   string     `json:"confirmedBy,omitempty"`
}

// AccessDecision is the structured outcome of a stream access check.
// Denials always carry a machine code and, where it helps the client
// recover, an actionable hint.
type AccessDecision struct {
	Allowed          bool   `json:"allowed"`
	Code             string `json:"error,omitempty"`
	Message          string `json:"message,omitempty"`
	RequiredAction   string `json:"requiredAction,omitempty"`
	CurrentTier      Tier   `json:"currentTier,omitempty"`
	RequiredCategory string `json:"requiredCategory,omitempty"`
	UpgradeURL       string `json:"upgradeUrl,omitempty"`

	User *AccessUser `json:"user,omitempty"`
}

// AccessUser is the caller-facing subset of a user attached to allowed
// decisions.
type AccessUser struct {
	Username        string     `json:"username"`
	Tier            Tier       `json:"tier"`
	Balance         int64      `json:"balance"`
	NextBillingDate *time.Time `json:"nextBillingDate"`
}

// BillingResult reports one user's billing attempt. Failure is a state
// transition (suspension), not an error: the scheduler keeps going.
type BillingResult struct {
	Success     bool         `json:"success"`
	Reason      string       `json:"error,omitempty"`
	Suspended   bool         `json:"suspended,omitempty"`
	User        *User        `json:"user,omitempty"`
	Transaction *Transaction `json:"transaction,omitempty"`
}

// Stats aggregates the user base for the admin dashboard.
type Stats struct {
	TotalUsers     int          `json:"totalUsers"`
	ActiveUsers    int          `json:"activeUsers"`
	SuspendedUsers int          `json:"suspendedUsers"`
	TotalBalance   int64        `json:"totalBalance"`
	TotalRevenue   int64        `json:"totalRevenue"`
	PendingTopups  int          `json:"pendingTopups"`
	Tiers          map[Tier]int `json:"tiers"`
}
