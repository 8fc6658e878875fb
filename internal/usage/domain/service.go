// Package domain defines the read-side facade the UI layer consumes:
// balance, usage views, and purchase history. No mutation capability.
package domain

import (
	"context"
	"errors"
	"time"

	ledgerdomain "github.com/voxbill/voxbill/internal/ledger/domain"
	"github.com/voxbill/voxbill/pkg/db/pagination"
)

type ListUsageRequest struct {
	pagination.Pagination
	UsageType string    `form:"usage_type"`
	From      time.Time `form:"from" time_format:"2006-01-02"`
	To        time.Time `form:"to" time_format:"2006-01-02"`
}

type ListUsageResponse struct {
	pagination.PageInfo
	UsageEntries []ledgerdomain.UsageEntry `json:"usage_entries"`
}

// Service is the balance/usage query facade. Every read is tenant-scoped
// through the context and tolerates an empty ledger.
type Service interface {
	GetBalance(ctx context.Context) (*ledgerdomain.AccountBalance, error)
	ListUsage(ctx context.Context, req ListUsageRequest) (ListUsageResponse, error)
	SummarizeUsage(ctx context.Context, from, to time.Time) (*ledgerdomain.UsageSummary, error)
	ListPurchases(ctx context.Context, limit int) ([]*ledgerdomain.Purchase, error)
}

var ErrInvalidUsageType = errors.New("invalid_usage_type")
