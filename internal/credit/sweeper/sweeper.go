// Package sweeper is the reconciliation pass that finds completed-but-
// unbilled calls and replays the credit processor against them, healing
// gaps left by missed or dropped feed events.
package sweeper

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	calldomain "github.com/voxbill/voxbill/internal/call/domain"
	"github.com/voxbill/voxbill/internal/clock"
	"github.com/voxbill/voxbill/internal/config"
	creditdomain "github.com/voxbill/voxbill/internal/credit/domain"
	ledgerdomain "github.com/voxbill/voxbill/internal/ledger/domain"
	obsmetrics "github.com/voxbill/voxbill/internal/observability/metrics"
	"github.com/voxbill/voxbill/internal/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	batchSize   = 100
	tenantBatch = 100
)

type Params struct {
	fx.In

	Calls     calldomain.Store
	Processor creditdomain.Processor
	Clock     clock.Clock
	Metrics   *obsmetrics.Metrics `optional:"true"`
	Log       *zap.Logger
	Config    config.Config
}

type Sweeper struct {
	calls     calldomain.Store
	processor creditdomain.Processor
	clock     clock.Clock
	metrics   *obsmetrics.Metrics
	log       *zap.Logger
	cfg       config.SweepConfig
}

func New(p Params) *Sweeper {
	return &Sweeper{
		calls:     p.Calls,
		processor: p.Processor,
		clock:     p.Clock,
		metrics:   p.Metrics,
		log:       p.Log.Named("credit.sweeper"),
		cfg:       p.Config.Sweep,
	}
}

// ProcessUnprocessedCalls bills every unbilled completed call for the
// tenant. Already-processed outcomes count as neither success nor error:
// they mean the watcher won the race, which is expected. No user
// notifications are emitted here; bulk reconciliation stays silent.
func (s *Sweeper) ProcessUnprocessedCalls(ctx context.Context, userID snowflake.ID) (creditdomain.SweepSummary, error) {
	if userID == 0 {
		return creditdomain.SweepSummary{}, ledgerdomain.ErrInvalidTenant
	}

	ctx = tenantctx.WithTenantID(ctx, userID)
	summary := creditdomain.SweepSummary{}

	// Failed calls stay in the unbilled set, so the re-query keeps
	// returning them. Remember them for the rest of this sweep: each
	// failing call is attempted and counted once, and the query limit
	// grows past the stuck head so younger billable calls are still
	// reached. A later sweep retries the stuck ones after a top-up.
	attempted := make(map[snowflake.ID]struct{})

	for {
		limit := batchSize + len(attempted)
		calls, err := s.calls.ListUnbilled(ctx, userID, limit)
		if err != nil {
			return summary, err
		}

		fresh := 0
		for _, call := range calls {
			if err := ctx.Err(); err != nil {
				return summary, err
			}
			if _, seen := attempted[call.ID]; seen {
				continue
			}
			fresh++

			_, err := s.processor.ProcessCallCredits(ctx, call)
			switch {
			case err == nil:
				summary.Processed++
				if s.metrics != nil {
					s.metrics.RecordDeduction(ctx, "sweeper")
				}
			case errors.Is(err, ledgerdomain.ErrAlreadyProcessed):
				// The watcher billed it between our query and the
				// replay. Not an error, and it leaves the unbilled set.
			case errors.Is(err, ledgerdomain.ErrInsufficientCredits):
				attempted[call.ID] = struct{}{}
				summary.Errors++
				if s.metrics != nil {
					s.metrics.RecordInsufficientCredits(ctx, "sweeper")
				}
			default:
				attempted[call.ID] = struct{}{}
				summary.Errors++
				s.log.Warn("sweep failed to bill call",
					zap.String("call_id", call.ID.String()),
					zap.Error(err),
				)
			}
		}

		if fresh == 0 {
			break
		}
		if len(calls) < limit {
			// The query saw the whole remaining set.
			break
		}
	}

	if s.metrics != nil {
		s.metrics.RecordSweep(ctx, summary.Processed, summary.Errors)
	}
	if summary.Processed > 0 || summary.Errors > 0 {
		s.log.Info("reconciliation sweep finished",
			zap.String("user_id", userID.String()),
			zap.Int("processed", summary.Processed),
			zap.Int("errors", summary.Errors),
		)
	}
	return summary, nil
}

// SweepAll reconciles every tenant that currently has unbilled calls.
func (s *Sweeper) SweepAll(ctx context.Context) error {
	userIDs, err := s.calls.TenantsWithUnbilled(ctx, tenantBatch)
	if err != nil {
		return err
	}

	var errs error
	for _, userID := range userIDs {
		if err := ctx.Err(); err != nil {
			return errors.Join(errs, err)
		}
		if _, err := s.ProcessUnprocessedCalls(ctx, userID); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}

// RunForever runs a sweep on the configured interval until ctx is
// cancelled. Each run carries its own timeout; a timed-out run is logged
// and retried on the next tick, which idempotency makes safe.
func (s *Sweeper) RunForever(ctx context.Context) {
	if s.cfg.RunOnStart {
		s.runOnce(ctx)
	}

	ticker := s.clock.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(parent context.Context) {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.RunTimeout)
	defer cancel()

	err := s.SweepAll(ctx)
	if err == nil {
		return
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.log.Warn("sweep run timed out",
			zap.Duration("elapsed", s.clock.Now().Sub(start)),
			zap.Duration("timeout", s.cfg.RunTimeout),
		)
		return
	}
	s.log.Warn("sweep run failed", zap.Error(err))
}
