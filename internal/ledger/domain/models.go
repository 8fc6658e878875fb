// Package domain contains the persistence models owned by the credit ledger:
// the per-tenant balance aggregate, the append-only usage log, and recorded
// purchases.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// UsageType classifies a usage log entry.
type UsageType string

const (
	UsageTypeCall  UsageType = "call"
	UsageTypeEmail UsageType = "email"
	UsageTypeOther UsageType = "other"
)

// PurchaseStatus is the lifecycle state of a recorded purchase.
type PurchaseStatus string

const (
	PurchaseStatusPending   PurchaseStatus = "pending"
	PurchaseStatusCompleted PurchaseStatus = "completed"
	PurchaseStatusFailed    PurchaseStatus = "failed"
	PurchaseStatusRefunded  PurchaseStatus = "refunded"
)

// AccountBalance is the mutable per-tenant credit aggregate. It is written
// exclusively through the store's atomic mutation primitives.
type AccountBalance struct {
	UserID           snowflake.ID    `gorm:"primaryKey"`
	RemainingCredits decimal.Decimal `gorm:"type:numeric;not null;default:0"`
	TotalCreditsUsed decimal.Decimal `gorm:"type:numeric;not null;default:0"`
	TotalMinutesUsed decimal.Decimal `gorm:"type:numeric;not null;default:0"`
	CreatedAt        time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (AccountBalance) TableName() string { return "account_balances" }

// UsageEntry is an append-only billing event. At most one entry may exist per
// (user_id, usage_type, reference_id); that uniqueness is the idempotency
// guard for call billing.
type UsageEntry struct {
	ID              snowflake.ID    `gorm:"primaryKey"`
	UserID          snowflake.ID    `gorm:"not null;index;uniqueIndex:ux_usage_entries_reference,priority:1"`
	UsageType       UsageType       `gorm:"type:text;not null;uniqueIndex:ux_usage_entries_reference,priority:2"`
	AmountUsed      decimal.Decimal `gorm:"type:numeric;not null"`
	DurationSeconds *int64          `gorm:""`
	ReferenceID     string          `gorm:"type:text;not null;uniqueIndex:ux_usage_entries_reference,priority:3"`
	CreatedAt       time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP;index"`
}

// TableName sets the database table name.
func (UsageEntry) TableName() string { return "usage_entries" }

// Purchase is a recorded credit top-up. Immutable after creation except for
// Status; (user_id, payment_reference) uniqueness makes recording idempotent.
type Purchase struct {
	ID               snowflake.ID    `gorm:"primaryKey"`
	UserID           snowflake.ID    `gorm:"not null;index;uniqueIndex:ux_purchases_payment_reference,priority:1"`
	PackageID        string          `gorm:"type:text;not null"`
	PackageName      string          `gorm:"type:text;not null"`
	Credits          decimal.Decimal `gorm:"type:numeric;not null"`
	Price            decimal.Decimal `gorm:"type:numeric;not null"`
	PaymentMethod    string          `gorm:"type:text"`
	PaymentReference string          `gorm:"type:text;not null;uniqueIndex:ux_purchases_payment_reference,priority:2"`
	Status           PurchaseStatus  `gorm:"type:text;not null"`
	CreatedAt        time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP;index"`
}

// TableName sets the database table name.
func (Purchase) TableName() string { return "purchases" }
