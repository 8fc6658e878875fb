package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	calldomain "github.com/voxbill/voxbill/internal/call/domain"
	"github.com/voxbill/voxbill/internal/config"
	ledgerdomain "github.com/voxbill/voxbill/internal/ledger/domain"
	"github.com/voxbill/voxbill/internal/tenantctx"
	"go.uber.org/zap"
)

type ledgerStub struct {
	mu         sync.Mutex
	applyCalls int
	applyErrs  []error
	hasEntry   bool
	lastInput  ledgerdomain.ApplyUsageInput
	genID      *snowflake.Node
}

func (l *ledgerStub) ApplyUsage(ctx context.Context, in ledgerdomain.ApplyUsageInput) (*ledgerdomain.UsageEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := l.applyCalls
	l.applyCalls++
	l.lastInput = in
	if idx < len(l.applyErrs) && l.applyErrs[idx] != nil {
		return nil, l.applyErrs[idx]
	}
	return &ledgerdomain.UsageEntry{
		ID:         l.genID.Generate(),
		UserID:     in.UserID,
		UsageType:  in.UsageType,
		AmountUsed: in.Amount,
	}, nil
}

func (l *ledgerStub) ApplyTopUp(ctx context.Context, in ledgerdomain.ApplyTopUpInput) (*ledgerdomain.Purchase, error) {
	return nil, errors.New("not implemented")
}

func (l *ledgerStub) GetBalance(ctx context.Context, userID snowflake.ID) (*ledgerdomain.AccountBalance, error) {
	return &ledgerdomain.AccountBalance{UserID: userID}, nil
}

func (l *ledgerStub) HasUsageEntry(ctx context.Context, userID snowflake.ID, usageType ledgerdomain.UsageType, referenceID string) (bool, error) {
	return l.hasEntry, nil
}

func (l *ledgerStub) ListUsage(ctx context.Context, userID snowflake.ID, filter ledgerdomain.ListUsageFilter) ([]*ledgerdomain.UsageEntry, error) {
	return nil, nil
}

func (l *ledgerStub) SummarizeUsage(ctx context.Context, userID snowflake.ID, from, to time.Time) (*ledgerdomain.UsageSummary, error) {
	return &ledgerdomain.UsageSummary{}, nil
}

func (l *ledgerStub) ListPurchases(ctx context.Context, userID snowflake.ID, limit int) ([]*ledgerdomain.Purchase, error) {
	return nil, nil
}

func (l *ledgerStub) ApplyCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.applyCalls
}

func TestProcessCallCreditsDeducts(t *testing.T) {
	node := mustNode(t)
	stub := &ledgerStub{genID: node}
	processor := newProcessor(stub)

	userID := node.Generate()
	call := &calldomain.CallRecord{
		ID:              node.Generate(),
		UserID:          userID,
		Status:          calldomain.CallStatusCompleted,
		DurationSeconds: 125,
	}

	result, err := processor.ProcessCallCredits(context.Background(), call)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !result.CreditsDeducted.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("expected 3 credits for 125s, got %s", result.CreditsDeducted)
	}
	if stub.lastInput.ReferenceID != call.ID.String() {
		t.Fatalf("expected call id as reference, got %q", stub.lastInput.ReferenceID)
	}
	if stub.lastInput.UsageType != ledgerdomain.UsageTypeCall {
		t.Fatalf("expected call usage type, got %q", stub.lastInput.UsageType)
	}
}

func TestProcessCallCreditsRejectsNonBillable(t *testing.T) {
	node := mustNode(t)
	stub := &ledgerStub{genID: node}
	processor := newProcessor(stub)

	cases := []*calldomain.CallRecord{
		nil,
		{ID: node.Generate(), UserID: node.Generate(), Status: calldomain.CallStatusFailed, DurationSeconds: 60},
		{ID: node.Generate(), UserID: node.Generate(), Status: calldomain.CallStatusCompleted, DurationSeconds: 0},
		{ID: node.Generate(), UserID: node.Generate(), Status: calldomain.CallStatusNightTime, DurationSeconds: 30},
	}
	for i, call := range cases {
		if _, err := processor.ProcessCallCredits(context.Background(), call); !errors.Is(err, ledgerdomain.ErrInvalidCall) {
			t.Fatalf("case %d: expected ErrInvalidCall, got %v", i, err)
		}
	}
	if stub.ApplyCalls() != 0 {
		t.Fatalf("expected no ledger writes for non-billable calls")
	}
}

func TestProcessCallCreditsTenantMismatch(t *testing.T) {
	node := mustNode(t)
	stub := &ledgerStub{genID: node}
	processor := newProcessor(stub)

	owner := node.Generate()
	other := node.Generate()
	call := &calldomain.CallRecord{
		ID:              node.Generate(),
		UserID:          owner,
		Status:          calldomain.CallStatusCompleted,
		DurationSeconds: 60,
	}

	ctx := tenantctx.WithTenantID(context.Background(), other)
	if _, err := processor.ProcessCallCredits(ctx, call); !errors.Is(err, ledgerdomain.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if stub.ApplyCalls() != 0 {
		t.Fatalf("expected no ledger writes on tenant mismatch")
	}
}

func TestProcessCallCreditsAlreadyProcessed(t *testing.T) {
	node := mustNode(t)
	stub := &ledgerStub{genID: node, hasEntry: true}
	processor := newProcessor(stub)

	call := &calldomain.CallRecord{
		ID:              node.Generate(),
		UserID:          node.Generate(),
		Status:          calldomain.CallStatusCompleted,
		DurationSeconds: 60,
	}

	if _, err := processor.ProcessCallCredits(context.Background(), call); !errors.Is(err, ledgerdomain.ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed, got %v", err)
	}
	if stub.ApplyCalls() != 0 {
		t.Fatalf("expected the read-side check to short-circuit")
	}
}

func TestProcessCallCreditsRetriesTransient(t *testing.T) {
	node := mustNode(t)
	stub := &ledgerStub{
		genID: node,
		applyErrs: []error{
			errors.New("database is locked"),
			errors.New("database is locked"),
			nil,
		},
	}
	processor := newProcessor(stub)

	call := &calldomain.CallRecord{
		ID:              node.Generate(),
		UserID:          node.Generate(),
		Status:          calldomain.CallStatusCompleted,
		DurationSeconds: 30,
	}

	result, err := processor.ProcessCallCredits(context.Background(), call)
	if err != nil {
		t.Fatalf("process with retries: %v", err)
	}
	if !result.CreditsDeducted.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected 1 credit for 30s, got %s", result.CreditsDeducted)
	}
	if stub.ApplyCalls() != 3 {
		t.Fatalf("expected 3 attempts, got %d", stub.ApplyCalls())
	}
}

func TestProcessCallCreditsTransientExhausted(t *testing.T) {
	node := mustNode(t)
	stub := &ledgerStub{
		genID: node,
		applyErrs: []error{
			errors.New("database is locked"),
			errors.New("database is locked"),
			errors.New("database is locked"),
		},
	}
	processor := newProcessor(stub)

	call := &calldomain.CallRecord{
		ID:              node.Generate(),
		UserID:          node.Generate(),
		Status:          calldomain.CallStatusCompleted,
		DurationSeconds: 30,
	}

	if _, err := processor.ProcessCallCredits(context.Background(), call); !errors.Is(err, ledgerdomain.ErrTransient) {
		t.Fatalf("expected ErrTransient after exhausted retries, got %v", err)
	}
}

func TestProcessCallCreditsPassesThroughInsufficient(t *testing.T) {
	node := mustNode(t)
	stub := &ledgerStub{
		genID:     node,
		applyErrs: []error{ledgerdomain.ErrInsufficientCredits},
	}
	processor := newProcessor(stub)

	call := &calldomain.CallRecord{
		ID:              node.Generate(),
		UserID:          node.Generate(),
		Status:          calldomain.CallStatusCompleted,
		DurationSeconds: 60,
	}

	if _, err := processor.ProcessCallCredits(context.Background(), call); !errors.Is(err, ledgerdomain.ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
	if stub.ApplyCalls() != 1 {
		t.Fatalf("expected no retries on business outcomes, got %d attempts", stub.ApplyCalls())
	}
}

func TestCreditsForDuration(t *testing.T) {
	cases := []struct {
		seconds int64
		want    int64
	}{
		{1, 1},
		{59, 1},
		{60, 1},
		{61, 2},
		{125, 3},
		{3600, 60},
	}
	for _, tc := range cases {
		got := creditsForDuration(tc.seconds)
		if !got.Equal(decimal.NewFromInt(tc.want)) {
			t.Fatalf("creditsForDuration(%d) = %s, want %d", tc.seconds, got, tc.want)
		}
	}
	if !creditsForDuration(0).IsZero() {
		t.Fatalf("expected zero credits for zero duration")
	}
}

func newProcessor(stub *ledgerStub) *Service {
	svc := New(Params{
		Ledger: stub,
		Log:    zap.NewNop(),
		Config: config.Config{ProcessTimeout: time.Second},
	})
	return svc.(*Service)
}

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()

	node, err := snowflake.NewNode(2)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}
