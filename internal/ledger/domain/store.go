package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// ApplyUsageInput describes one usage deduction against a tenant's balance.
type ApplyUsageInput struct {
	UserID          snowflake.ID
	UsageType       UsageType
	Amount          decimal.Decimal
	DurationSeconds int64
	ReferenceID     string
}

// ApplyTopUpInput describes one credit top-up from a confirmed purchase.
type ApplyTopUpInput struct {
	UserID           snowflake.ID
	PackageID        string
	PackageName      string
	Credits          decimal.Decimal
	Price            decimal.Decimal
	PaymentMethod    string
	PaymentReference string
}

// ListUsageFilter narrows usage log reads.
type ListUsageFilter struct {
	UsageType UsageType
	From      time.Time
	To        time.Time
	PageToken string
	PageSize  int
}

// UsageSummary aggregates the usage log per type.
type UsageSummary struct {
	TotalsByType     map[UsageType]decimal.Decimal
	TotalCreditsUsed decimal.Decimal
	TotalMinutesUsed decimal.Decimal
}

// Store is the ledger's persistence boundary. ApplyUsage and ApplyTopUp are
// the only two paths that mutate account balances; both execute as a single
// transaction so the idempotency check and the balance mutation are never
// observable separately.
type Store interface {
	// ApplyUsage inserts the usage entry and decrements the balance in one
	// atomic unit. Returns ErrAlreadyProcessed when an entry for the same
	// (user, type, reference) exists, ErrInsufficientCredits when the
	// balance cannot cover the amount; neither writes anything.
	ApplyUsage(ctx context.Context, in ApplyUsageInput) (*UsageEntry, error)

	// ApplyTopUp records the purchase and increments remaining credits in
	// one atomic unit, keyed on (user, payment reference). A replayed
	// reference returns the previously recorded purchase with
	// ErrAlreadyProcessed.
	ApplyTopUp(ctx context.Context, in ApplyTopUpInput) (*Purchase, error)

	// GetBalance returns the tenant's balance aggregate. A tenant with no
	// ledger activity gets a zero-valued aggregate, not an error.
	GetBalance(ctx context.Context, userID snowflake.ID) (*AccountBalance, error)

	// HasUsageEntry reports whether a usage entry exists for the reference.
	HasUsageEntry(ctx context.Context, userID snowflake.ID, usageType UsageType, referenceID string) (bool, error)

	ListUsage(ctx context.Context, userID snowflake.ID, filter ListUsageFilter) ([]*UsageEntry, error)
	SummarizeUsage(ctx context.Context, userID snowflake.ID, from, to time.Time) (*UsageSummary, error)
	ListPurchases(ctx context.Context, userID snowflake.ID, limit int) ([]*Purchase, error)
}
