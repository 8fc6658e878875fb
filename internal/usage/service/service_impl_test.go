package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	ledgerdomain "github.com/voxbill/voxbill/internal/ledger/domain"
	"github.com/voxbill/voxbill/internal/tenantctx"
	usagedomain "github.com/voxbill/voxbill/internal/usage/domain"
	"github.com/voxbill/voxbill/pkg/db/pagination"
	"go.uber.org/zap"
)

type ledgerStub struct {
	node       *snowflake.Node
	entries    []*ledgerdomain.UsageEntry
	lastFilter ledgerdomain.ListUsageFilter
	lastUserID snowflake.ID
}

func (l *ledgerStub) ApplyUsage(ctx context.Context, in ledgerdomain.ApplyUsageInput) (*ledgerdomain.UsageEntry, error) {
	return nil, errors.New("not implemented")
}

func (l *ledgerStub) ApplyTopUp(ctx context.Context, in ledgerdomain.ApplyTopUpInput) (*ledgerdomain.Purchase, error) {
	return nil, errors.New("not implemented")
}

func (l *ledgerStub) GetBalance(ctx context.Context, userID snowflake.ID) (*ledgerdomain.AccountBalance, error) {
	l.lastUserID = userID
	return &ledgerdomain.AccountBalance{
		UserID:           userID,
		RemainingCredits: decimal.NewFromInt(42),
	}, nil
}

func (l *ledgerStub) HasUsageEntry(ctx context.Context, userID snowflake.ID, usageType ledgerdomain.UsageType, referenceID string) (bool, error) {
	return false, nil
}

func (l *ledgerStub) ListUsage(ctx context.Context, userID snowflake.ID, filter ledgerdomain.ListUsageFilter) ([]*ledgerdomain.UsageEntry, error) {
	l.lastUserID = userID
	l.lastFilter = filter
	limit := filter.PageSize + 1
	if limit > len(l.entries) {
		limit = len(l.entries)
	}
	return l.entries[:limit], nil
}

func (l *ledgerStub) SummarizeUsage(ctx context.Context, userID snowflake.ID, from, to time.Time) (*ledgerdomain.UsageSummary, error) {
	l.lastUserID = userID
	return &ledgerdomain.UsageSummary{
		TotalsByType: map[ledgerdomain.UsageType]decimal.Decimal{
			ledgerdomain.UsageTypeCall: decimal.NewFromInt(4),
		},
		TotalCreditsUsed: decimal.NewFromInt(4),
		TotalMinutesUsed: decimal.NewFromInt(4),
	}, nil
}

func (l *ledgerStub) ListPurchases(ctx context.Context, userID snowflake.ID, limit int) ([]*ledgerdomain.Purchase, error) {
	l.lastUserID = userID
	return nil, nil
}

func TestFacadeRequiresTenant(t *testing.T) {
	svc := newFacade(&ledgerStub{})

	if _, err := svc.GetBalance(context.Background()); !errors.Is(err, ledgerdomain.ErrInvalidTenant) {
		t.Fatalf("balance: expected ErrInvalidTenant, got %v", err)
	}
	if _, err := svc.ListUsage(context.Background(), usagedomain.ListUsageRequest{}); !errors.Is(err, ledgerdomain.ErrInvalidTenant) {
		t.Fatalf("list: expected ErrInvalidTenant, got %v", err)
	}
	if _, err := svc.SummarizeUsage(context.Background(), time.Time{}, time.Time{}); !errors.Is(err, ledgerdomain.ErrInvalidTenant) {
		t.Fatalf("summary: expected ErrInvalidTenant, got %v", err)
	}
	if _, err := svc.ListPurchases(context.Background(), 10); !errors.Is(err, ledgerdomain.ErrInvalidTenant) {
		t.Fatalf("purchases: expected ErrInvalidTenant, got %v", err)
	}
}

func TestFacadeScopesToContextTenant(t *testing.T) {
	node := mustNode(t)
	stub := &ledgerStub{node: node}
	svc := newFacade(stub)

	userID := node.Generate()
	ctx := tenantctx.WithTenantID(context.Background(), userID)

	balance, err := svc.GetBalance(ctx)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance.UserID != userID || stub.lastUserID != userID {
		t.Fatalf("expected tenant %s, queried %s", userID, stub.lastUserID)
	}
}

func TestListUsageValidatesType(t *testing.T) {
	node := mustNode(t)
	svc := newFacade(&ledgerStub{node: node})
	ctx := tenantctx.WithTenantID(context.Background(), node.Generate())

	_, err := svc.ListUsage(ctx, usagedomain.ListUsageRequest{UsageType: "sms"})
	if !errors.Is(err, usagedomain.ErrInvalidUsageType) {
		t.Fatalf("expected ErrInvalidUsageType, got %v", err)
	}

	// Case and whitespace are tolerated.
	if _, err := svc.ListUsage(ctx, usagedomain.ListUsageRequest{UsageType: " Call "}); err != nil {
		t.Fatalf("expected normalized usage type to pass, got %v", err)
	}
}

func TestListUsageTrimsProbeRow(t *testing.T) {
	node := mustNode(t)
	stub := &ledgerStub{node: node}
	now := time.Now().UTC()
	for i := 0; i < 4; i++ {
		stub.entries = append(stub.entries, &ledgerdomain.UsageEntry{
			ID:         node.Generate(),
			UsageType:  ledgerdomain.UsageTypeCall,
			AmountUsed: decimal.NewFromInt(1),
			CreatedAt:  now.Add(-time.Duration(i) * time.Minute),
		})
	}
	svc := newFacade(stub)
	ctx := tenantctx.WithTenantID(context.Background(), node.Generate())

	resp, err := svc.ListUsage(ctx, usagedomain.ListUsageRequest{Pagination: pagination.Pagination{PageSize: 3}})
	if err != nil {
		t.Fatalf("list usage: %v", err)
	}
	if len(resp.UsageEntries) != 3 {
		t.Fatalf("expected 3 entries after trimming the probe row, got %d", len(resp.UsageEntries))
	}
	if !resp.HasMore {
		t.Fatalf("expected has_more with a probe row present")
	}
	if resp.NextPageToken == "" {
		t.Fatalf("expected a next page token")
	}
}

func TestListUsageLastPage(t *testing.T) {
	node := mustNode(t)
	stub := &ledgerStub{node: node}
	stub.entries = append(stub.entries, &ledgerdomain.UsageEntry{
		ID:         node.Generate(),
		UsageType:  ledgerdomain.UsageTypeCall,
		AmountUsed: decimal.NewFromInt(1),
		CreatedAt:  time.Now().UTC(),
	})
	svc := newFacade(stub)
	ctx := tenantctx.WithTenantID(context.Background(), node.Generate())

	resp, err := svc.ListUsage(ctx, usagedomain.ListUsageRequest{Pagination: pagination.Pagination{PageSize: 3}})
	if err != nil {
		t.Fatalf("list usage: %v", err)
	}
	if len(resp.UsageEntries) != 1 || resp.HasMore {
		t.Fatalf("expected final page without has_more, got %+v", resp.PageInfo)
	}
}

func newFacade(stub *ledgerStub) usagedomain.Service {
	return New(Params{
		Ledger: stub,
		Log:    zap.NewNop(),
	})
}

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()

	node, err := snowflake.NewNode(8)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}
