// Package watcher consumes the call transition feed and bills completed
// calls in real time. Deduplication is not its job: the processor's
// idempotency guard absorbs duplicate and racing deliveries.
package watcher

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	calldomain "github.com/voxbill/voxbill/internal/call/domain"
	"github.com/voxbill/voxbill/internal/call/feed"
	creditdomain "github.com/voxbill/voxbill/internal/credit/domain"
	ledgerdomain "github.com/voxbill/voxbill/internal/ledger/domain"
	"github.com/voxbill/voxbill/internal/notify"
	obsmetrics "github.com/voxbill/voxbill/internal/observability/metrics"
	"github.com/voxbill/voxbill/internal/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Hub       *feed.Hub
	Processor creditdomain.Processor
	Notifier  notify.Notifier
	Metrics   *obsmetrics.Metrics `optional:"true"`
	Log       *zap.Logger
}

type Watcher struct {
	hub       *feed.Hub
	processor creditdomain.Processor
	notifier  notify.Notifier
	metrics   *obsmetrics.Metrics
	log       *zap.Logger
}

func New(p Params) *Watcher {
	return &Watcher{
		hub:       p.Hub,
		processor: p.Processor,
		notifier:  p.Notifier,
		metrics:   p.Metrics,
		log:       p.Log.Named("credit.watcher"),
	}
}

// Watch subscribes to the tenant's transition feed and bills each completed
// call once per notification. Blocks until ctx is cancelled; unsubscribes on
// return, leaving no partial state.
func (w *Watcher) Watch(ctx context.Context, userID snowflake.ID) error {
	sub, backlog, err := w.hub.Subscribe(userID)
	if err != nil {
		return err
	}
	return w.consume(ctx, userID, sub, backlog)
}

// consume drains the backlog then the live feed until ctx is cancelled.
// Split from Watch so the supervisor can subscribe synchronously and hand
// the open subscription over to a goroutine.
func (w *Watcher) consume(ctx context.Context, userID snowflake.ID, sub *feed.Subscription, backlog []calldomain.TransitionEvent) error {
	defer sub.Close()

	ctx = tenantctx.WithTenantID(ctx, userID)

	for _, event := range backlog {
		w.handle(ctx, event)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-sub.Events():
			if !ok {
				return nil
			}
			w.handle(ctx, event)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event calldomain.TransitionEvent) {
	if !event.Completed() {
		return
	}

	call := &calldomain.CallRecord{
		ID:              event.CallID,
		UserID:          event.UserID,
		Status:          event.NewStatus,
		DurationSeconds: event.DurationSeconds,
	}

	result, err := w.processor.ProcessCallCredits(ctx, call)
	switch {
	case err == nil:
		w.notifier.Notify(ctx, notify.Notification{
			UserID: event.UserID,
			Kind:   notify.KindCreditsDeducted,
			Payload: map[string]any{
				"call_id":          event.CallID.String(),
				"credits_deducted": result.CreditsDeducted.String(),
			},
			DedupeKey: notify.KindCreditsDeducted + ":" + event.CallID.String(),
		})
		if w.metrics != nil {
			w.metrics.RecordDeduction(ctx, "watcher")
		}
	case errors.Is(err, ledgerdomain.ErrAlreadyProcessed):
		// Expected under concurrent delivery; the sweeper or an earlier
		// notification already won the race.
	case errors.Is(err, ledgerdomain.ErrInsufficientCredits):
		// The dedupe key keeps this at one warning per call, not one per
		// retry.
		w.notifier.Notify(ctx, notify.Notification{
			UserID: event.UserID,
			Kind:   notify.KindInsufficientCredits,
			Payload: map[string]any{
				"call_id": event.CallID.String(),
			},
			DedupeKey: notify.KindInsufficientCredits + ":" + event.CallID.String(),
		})
		if w.metrics != nil {
			w.metrics.RecordInsufficientCredits(ctx, "watcher")
		}
	case errors.Is(err, ledgerdomain.ErrInvalidCall):
		w.log.Warn("skipping non-billable call",
			zap.String("call_id", event.CallID.String()),
		)
	default:
		w.log.Error("failed to process call credits",
			zap.String("call_id", event.CallID.String()),
			zap.String("user_id", event.UserID.String()),
			zap.Error(err),
		)
	}
}
