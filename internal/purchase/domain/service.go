// Package domain defines the purchase recorder contract: translating a
// confirmed payment into a ledger credit exactly once.
package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	ledgerdomain "github.com/voxbill/voxbill/internal/ledger/domain"
)

// RecordPurchaseRequest carries the confirmed payment details supplied by
// the billing-intake collaborator.
type RecordPurchaseRequest struct {
	UserID           snowflake.ID    `json:"user_id"`
	PackageID        string          `json:"package_id"`
	PackageName      string          `json:"package_name"`
	Credits          decimal.Decimal `json:"credits"`
	Price            decimal.Decimal `json:"price"`
	PaymentMethod    string          `json:"payment_method"`
	PaymentReference string          `json:"payment_reference"`
}

// Service records purchases. Recording the same payment reference twice
// credits the balance exactly once and returns the original purchase.
type Service interface {
	Record(ctx context.Context, req RecordPurchaseRequest) (*ledgerdomain.Purchase, error)
}

var (
	ErrInvalidPackage = errors.New("invalid_package")
	ErrInvalidCredits = errors.New("invalid_credits")
)
