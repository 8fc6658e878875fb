package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	calldomain "github.com/voxbill/voxbill/internal/call/domain"
	"github.com/voxbill/voxbill/internal/config"
	creditdomain "github.com/voxbill/voxbill/internal/credit/domain"
	ledgerdomain "github.com/voxbill/voxbill/internal/ledger/domain"
	"github.com/voxbill/voxbill/internal/tenantctx"
	"github.com/voxbill/voxbill/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	maxAttempts    = 3
	retryBaseDelay = 50 * time.Millisecond
)

type Params struct {
	fx.In

	Ledger ledgerdomain.Store
	Log    *zap.Logger
	Config config.Config
}

type Service struct {
	ledger         ledgerdomain.Store
	log            *zap.Logger
	attemptTimeout time.Duration
}

func New(p Params) creditdomain.Processor {
	timeout := p.Config.ProcessTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Service{
		ledger:         p.Ledger,
		log:            p.Log.Named("credit.service"),
		attemptTimeout: timeout,
	}
}

// ProcessCallCredits bills one completed call. Preconditions short-circuit
// in order: billable input, tenant ownership, idempotency, then the atomic
// deduct. The deduct itself re-checks idempotency and balance inside one
// transaction, so concurrent invocations for the same call serialize there.
func (s *Service) ProcessCallCredits(ctx context.Context, call *calldomain.CallRecord) (creditdomain.Result, error) {
	if call == nil || call.ID == 0 || call.UserID == 0 {
		return creditdomain.Result{}, ledgerdomain.ErrInvalidCall
	}
	if call.Status != calldomain.CallStatusCompleted || call.DurationSeconds <= 0 {
		return creditdomain.Result{}, ledgerdomain.ErrInvalidCall
	}

	if tenantID, ok := tenantctx.TenantIDFromContext(ctx); ok && tenantID != call.UserID {
		return creditdomain.Result{}, ledgerdomain.ErrPermissionDenied
	}

	// Cheap read-side check before paying for a transaction. The unique
	// constraint inside ApplyUsage remains the authoritative guard.
	processed, err := s.ledger.HasUsageEntry(ctx, call.UserID, ledgerdomain.UsageTypeCall, call.ID.String())
	if err == nil && processed {
		return creditdomain.Result{}, ledgerdomain.ErrAlreadyProcessed
	}

	credits := creditsForDuration(call.DurationSeconds)

	entry, err := s.applyWithRetry(ctx, ledgerdomain.ApplyUsageInput{
		UserID:          call.UserID,
		UsageType:       ledgerdomain.UsageTypeCall,
		Amount:          credits,
		DurationSeconds: call.DurationSeconds,
		ReferenceID:     call.ID.String(),
	})
	if err != nil {
		return creditdomain.Result{}, err
	}

	s.log.Info("credits deducted",
		zap.String("call_id", call.ID.String()),
		zap.String("user_id", call.UserID.String()),
		zap.String("credits", credits.String()),
	)
	return creditdomain.Result{
		CreditsDeducted: credits,
		EntryID:         entry.ID,
	}, nil
}

func (s *Service) applyWithRetry(ctx context.Context, in ledgerdomain.ApplyUsageInput) (*ledgerdomain.UsageEntry, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, s.attemptTimeout)
		entry, err := s.ledger.ApplyUsage(attemptCtx, in)
		cancel()
		if err == nil {
			return entry, nil
		}

		// Expected business outcomes pass through untouched.
		if errors.Is(err, ledgerdomain.ErrAlreadyProcessed) ||
			errors.Is(err, ledgerdomain.ErrInsufficientCredits) ||
			errors.Is(err, ledgerdomain.ErrInvalidTenant) ||
			errors.Is(err, ledgerdomain.ErrInvalidReference) ||
			errors.Is(err, ledgerdomain.ErrInvalidAmount) {
			return nil, err
		}

		lastErr = err
		if !retryable(err) {
			break
		}
		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ledgerdomain.ErrTransient, ctx.Err())
			case <-time.After(retryBaseDelay * time.Duration(attempt)):
			}
		}
	}
	// Safe to retry later: idempotency means no compensating action is
	// needed, and the sweeper is the natural retry mechanism.
	return nil, fmt.Errorf("%w: %v", ledgerdomain.ErrTransient, lastErr)
}

func retryable(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || db.IsSerializationErr(err) || db.IsDuplicateKeyErr(err)
}

// creditsForDuration charges one credit per started minute.
func creditsForDuration(durationSeconds int64) decimal.Decimal {
	if durationSeconds <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt((durationSeconds + 59) / 60)
}
