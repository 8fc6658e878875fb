package service

import (
	"context"
	"errors"
	"strings"

	"github.com/oklog/ulid/v2"
	ledgerdomain "github.com/voxbill/voxbill/internal/ledger/domain"
	"github.com/voxbill/voxbill/internal/notify"
	obsmetrics "github.com/voxbill/voxbill/internal/observability/metrics"
	purchasedomain "github.com/voxbill/voxbill/internal/purchase/domain"
	"github.com/voxbill/voxbill/internal/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Ledger   ledgerdomain.Store
	Notifier notify.Notifier
	Metrics  *obsmetrics.Metrics `optional:"true"`
	Log      *zap.Logger
}

type Service struct {
	ledger   ledgerdomain.Store
	notifier notify.Notifier
	metrics  *obsmetrics.Metrics
	log      *zap.Logger
}

func New(p Params) purchasedomain.Service {
	return &Service{
		ledger:   p.Ledger,
		notifier: p.Notifier,
		metrics:  p.Metrics,
		log:      p.Log.Named("purchase.service"),
	}
}

func (s *Service) Record(ctx context.Context, req purchasedomain.RecordPurchaseRequest) (*ledgerdomain.Purchase, error) {
	if req.UserID == 0 {
		return nil, ledgerdomain.ErrInvalidTenant
	}
	if tenantID, ok := tenantctx.TenantIDFromContext(ctx); ok && tenantID != req.UserID {
		return nil, ledgerdomain.ErrPermissionDenied
	}
	if strings.TrimSpace(req.PackageID) == "" || strings.TrimSpace(req.PackageName) == "" {
		return nil, purchasedomain.ErrInvalidPackage
	}
	if req.Credits.IsNegative() || req.Credits.IsZero() {
		return nil, purchasedomain.ErrInvalidCredits
	}

	reference := strings.TrimSpace(req.PaymentReference)
	if reference == "" {
		// No reference from the payment collaborator: generate one so the
		// top-up still has an idempotency key for retries of this request
		// chain.
		reference = "topup_" + ulid.Make().String()
	}

	purchase, err := s.ledger.ApplyTopUp(ctx, ledgerdomain.ApplyTopUpInput{
		UserID:           req.UserID,
		PackageID:        req.PackageID,
		PackageName:      req.PackageName,
		Credits:          req.Credits,
		Price:            req.Price,
		PaymentMethod:    req.PaymentMethod,
		PaymentReference: reference,
	})
	if err != nil {
		if errors.Is(err, ledgerdomain.ErrAlreadyProcessed) {
			// Replayed reference: the balance was credited the first
			// time; hand back the original record as success.
			return purchase, nil
		}
		return nil, err
	}

	s.notifier.Notify(ctx, notify.Notification{
		UserID: req.UserID,
		Kind:   notify.KindPurchaseRecorded,
		Payload: map[string]any{
			"purchase_id":  purchase.ID.String(),
			"package_name": purchase.PackageName,
			"credits":      purchase.Credits.String(),
		},
		DedupeKey: notify.KindPurchaseRecorded + ":" + reference,
	})
	if s.metrics != nil {
		s.metrics.RecordPurchase(ctx)
	}

	s.log.Info("purchase recorded",
		zap.String("user_id", req.UserID.String()),
		zap.String("package_id", req.PackageID),
		zap.String("credits", req.Credits.String()),
	)
	return purchase, nil
}
