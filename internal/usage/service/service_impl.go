package service

import (
	"context"
	"strings"
	"time"

	ledgerdomain "github.com/voxbill/voxbill/internal/ledger/domain"
	"github.com/voxbill/voxbill/internal/tenantctx"
	usagedomain "github.com/voxbill/voxbill/internal/usage/domain"
	"github.com/voxbill/voxbill/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Ledger ledgerdomain.Store
	Log    *zap.Logger
}

type Service struct {
	ledger ledgerdomain.Store
	log    *zap.Logger
}

func New(p Params) usagedomain.Service {
	return &Service{
		ledger: p.Ledger,
		log:    p.Log.Named("usage.service"),
	}
}

func (s *Service) GetBalance(ctx context.Context) (*ledgerdomain.AccountBalance, error) {
	userID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return nil, ledgerdomain.ErrInvalidTenant
	}
	return s.ledger.GetBalance(ctx, userID)
}

func (s *Service) ListUsage(ctx context.Context, req usagedomain.ListUsageRequest) (usagedomain.ListUsageResponse, error) {
	userID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return usagedomain.ListUsageResponse{}, ledgerdomain.ErrInvalidTenant
	}

	usageType, err := parseUsageType(req.UsageType)
	if err != nil {
		return usagedomain.ListUsageResponse{}, err
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	entries, err := s.ledger.ListUsage(ctx, userID, ledgerdomain.ListUsageFilter{
		UsageType: usageType,
		From:      req.From,
		To:        req.To,
		PageToken: req.PageToken,
		PageSize:  pageSize,
	})
	if err != nil {
		return usagedomain.ListUsageResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(entries, pageSize, func(entry *ledgerdomain.UsageEntry) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        entry.ID.String(),
			CreatedAt: entry.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo.HasMore && len(entries) > pageSize {
		entries = entries[:pageSize]
	}

	records := make([]ledgerdomain.UsageEntry, 0, len(entries))
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		records = append(records, *entry)
	}

	return usagedomain.ListUsageResponse{
		PageInfo:     *pageInfo,
		UsageEntries: records,
	}, nil
}

func (s *Service) SummarizeUsage(ctx context.Context, from, to time.Time) (*ledgerdomain.UsageSummary, error) {
	userID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return nil, ledgerdomain.ErrInvalidTenant
	}
	return s.ledger.SummarizeUsage(ctx, userID, from, to)
}

func (s *Service) ListPurchases(ctx context.Context, limit int) ([]*ledgerdomain.Purchase, error) {
	userID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return nil, ledgerdomain.ErrInvalidTenant
	}
	return s.ledger.ListPurchases(ctx, userID, limit)
}

func parseUsageType(raw string) (ledgerdomain.UsageType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return "", nil
	case string(ledgerdomain.UsageTypeCall):
		return ledgerdomain.UsageTypeCall, nil
	case string(ledgerdomain.UsageTypeEmail):
		return ledgerdomain.UsageTypeEmail, nil
	case string(ledgerdomain.UsageTypeOther):
		return ledgerdomain.UsageTypeOther, nil
	default:
		return "", usagedomain.ErrInvalidUsageType
	}
}
