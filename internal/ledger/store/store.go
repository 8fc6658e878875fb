// Package store implements the ledger's persistence boundary on gorm.
//
// ApplyUsage and ApplyTopUp run as single transactions in which a
// conditional insert doubles as the idempotency guard: the unique index is
// the concurrency control, so two racing callers for the same reference
// serialize on the constraint and exactly one wins.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	ledgerdomain "github.com/voxbill/voxbill/internal/ledger/domain"
	"github.com/voxbill/voxbill/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Store struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func New(p Params) ledgerdomain.Store {
	return &Store{
		db:    p.DB,
		log:   p.Log.Named("ledger.store"),
		genID: p.GenID,
	}
}

func (s *Store) ApplyUsage(ctx context.Context, in ledgerdomain.ApplyUsageInput) (*ledgerdomain.UsageEntry, error) {
	if in.UserID == 0 {
		return nil, ledgerdomain.ErrInvalidTenant
	}
	if strings.TrimSpace(in.ReferenceID) == "" {
		return nil, ledgerdomain.ErrInvalidReference
	}
	if in.Amount.IsNegative() || in.Amount.IsZero() {
		return nil, ledgerdomain.ErrInvalidAmount
	}

	entry := &ledgerdomain.UsageEntry{
		ID:          s.genID.Generate(),
		UserID:      in.UserID,
		UsageType:   in.UsageType,
		AmountUsed:  in.Amount,
		ReferenceID: strings.TrimSpace(in.ReferenceID),
		CreatedAt:   time.Now().UTC(),
	}
	if in.DurationSeconds > 0 {
		seconds := in.DurationSeconds
		entry.DurationSeconds = &seconds
	}

	minutes := minutesFromSeconds(in.DurationSeconds)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var durationValue any
		if entry.DurationSeconds != nil {
			durationValue = *entry.DurationSeconds
		}

		// Idempotency guard: the conflict target is the uniqueness
		// constraint on (user_id, usage_type, reference_id).
		result := tx.Exec(
			`INSERT INTO usage_entries (
				id, user_id, usage_type, amount_used, duration_seconds, reference_id, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_id, usage_type, reference_id) DO NOTHING`,
			entry.ID,
			entry.UserID,
			string(entry.UsageType),
			entry.AmountUsed,
			durationValue,
			entry.ReferenceID,
			entry.CreatedAt,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ledgerdomain.ErrAlreadyProcessed
		}

		// Conditional decrement. Zero rows means the balance is missing or
		// too low; rolling back discards the entry inserted above so the
		// call stays unbilled and retryable.
		result = tx.Exec(
			`UPDATE account_balances
			 SET remaining_credits = remaining_credits - ?,
			     total_credits_used = total_credits_used + ?,
			     total_minutes_used = total_minutes_used + ?,
			     updated_at = ?
			 WHERE user_id = ? AND remaining_credits >= ?`,
			entry.AmountUsed,
			entry.AmountUsed,
			minutes,
			time.Now().UTC(),
			entry.UserID,
			entry.AmountUsed,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ledgerdomain.ErrInsufficientCredits
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Store) ApplyTopUp(ctx context.Context, in ledgerdomain.ApplyTopUpInput) (*ledgerdomain.Purchase, error) {
	if in.UserID == 0 {
		return nil, ledgerdomain.ErrInvalidTenant
	}
	reference := strings.TrimSpace(in.PaymentReference)
	if reference == "" {
		return nil, ledgerdomain.ErrInvalidReference
	}
	if in.Credits.IsNegative() || in.Credits.IsZero() {
		return nil, ledgerdomain.ErrInvalidAmount
	}

	purchase := &ledgerdomain.Purchase{
		ID:               s.genID.Generate(),
		UserID:           in.UserID,
		PackageID:        strings.TrimSpace(in.PackageID),
		PackageName:      strings.TrimSpace(in.PackageName),
		Credits:          in.Credits,
		Price:            in.Price,
		PaymentMethod:    strings.TrimSpace(in.PaymentMethod),
		PaymentReference: reference,
		Status:           ledgerdomain.PurchaseStatusCompleted,
		CreatedAt:        time.Now().UTC(),
	}

	replayed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Exec(
			`INSERT INTO purchases (
				id, user_id, package_id, package_name, credits, price,
				payment_method, payment_reference, status, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_id, payment_reference) DO NOTHING`,
			purchase.ID,
			purchase.UserID,
			purchase.PackageID,
			purchase.PackageName,
			purchase.Credits,
			purchase.Price,
			purchase.PaymentMethod,
			purchase.PaymentReference,
			string(purchase.Status),
			purchase.CreatedAt,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			replayed = true
			return nil
		}

		now := time.Now().UTC()
		return tx.Exec(
			`INSERT INTO account_balances (
				user_id, remaining_credits, total_credits_used, total_minutes_used, created_at, updated_at
			) VALUES (?, ?, 0, 0, ?, ?)
			ON CONFLICT (user_id) DO UPDATE SET
				remaining_credits = account_balances.remaining_credits + excluded.remaining_credits,
				updated_at = excluded.updated_at`,
			purchase.UserID,
			purchase.Credits,
			now,
			now,
		).Error
	})
	if err != nil {
		return nil, err
	}
	if replayed {
		existing, err := s.findPurchaseByReference(ctx, in.UserID, reference)
		if err != nil {
			return nil, err
		}
		return existing, ledgerdomain.ErrAlreadyProcessed
	}
	return purchase, nil
}

func (s *Store) GetBalance(ctx context.Context, userID snowflake.ID) (*ledgerdomain.AccountBalance, error) {
	if userID == 0 {
		return nil, ledgerdomain.ErrInvalidTenant
	}
	var balance ledgerdomain.AccountBalance
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// New tenant with no ledger activity yet.
			return &ledgerdomain.AccountBalance{
				UserID:           userID,
				RemainingCredits: decimal.Zero,
				TotalCreditsUsed: decimal.Zero,
				TotalMinutesUsed: decimal.Zero,
			}, nil
		}
		return nil, err
	}
	return &balance, nil
}

func (s *Store) HasUsageEntry(ctx context.Context, userID snowflake.ID, usageType ledgerdomain.UsageType, referenceID string) (bool, error) {
	if userID == 0 {
		return false, ledgerdomain.ErrInvalidTenant
	}
	var exists bool
	err := s.db.WithContext(ctx).Raw(
		`SELECT EXISTS(
			SELECT 1 FROM usage_entries
			WHERE user_id = ? AND usage_type = ? AND reference_id = ?
		)`,
		userID,
		string(usageType),
		strings.TrimSpace(referenceID),
	).Scan(&exists).Error
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *Store) ListUsage(ctx context.Context, userID snowflake.ID, filter ledgerdomain.ListUsageFilter) ([]*ledgerdomain.UsageEntry, error) {
	if userID == 0 {
		return nil, ledgerdomain.ErrInvalidTenant
	}

	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	query := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(pageSize + 1)

	if filter.UsageType != "" {
		query = query.Where("usage_type = ?", string(filter.UsageType))
	}
	if !filter.From.IsZero() {
		query = query.Where("created_at >= ?", filter.From.UTC())
	}
	if !filter.To.IsZero() {
		query = query.Where("created_at < ?", filter.To.UTC())
	}
	if filter.PageToken != "" {
		cursor, err := pagination.DecodeCursor(filter.PageToken)
		if err != nil {
			return nil, err
		}
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var entries []*ledgerdomain.UsageEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) SummarizeUsage(ctx context.Context, userID snowflake.ID, from, to time.Time) (*ledgerdomain.UsageSummary, error) {
	if userID == 0 {
		return nil, ledgerdomain.ErrInvalidTenant
	}

	query := s.db.WithContext(ctx).
		Table("usage_entries").
		Select("usage_type, SUM(amount_used) AS total").
		Where("user_id = ?", userID).
		Group("usage_type")
	if !from.IsZero() {
		query = query.Where("created_at >= ?", from.UTC())
	}
	if !to.IsZero() {
		query = query.Where("created_at < ?", to.UTC())
	}

	var rows []struct {
		UsageType string
		Total     decimal.Decimal
	}
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}

	summary := &ledgerdomain.UsageSummary{
		TotalsByType:     make(map[ledgerdomain.UsageType]decimal.Decimal, len(rows)),
		TotalCreditsUsed: decimal.Zero,
		TotalMinutesUsed: decimal.Zero,
	}
	for _, row := range rows {
		usageType := ledgerdomain.UsageType(row.UsageType)
		summary.TotalsByType[usageType] = row.Total
		summary.TotalCreditsUsed = summary.TotalCreditsUsed.Add(row.Total)
	}
	// Flat rate: one credit buys one started minute, so call credits
	// mirror minutes consumed.
	if callTotal, ok := summary.TotalsByType[ledgerdomain.UsageTypeCall]; ok {
		summary.TotalMinutesUsed = callTotal
	}
	return summary, nil
}

func (s *Store) ListPurchases(ctx context.Context, userID snowflake.ID, limit int) ([]*ledgerdomain.Purchase, error) {
	if userID == 0 {
		return nil, ledgerdomain.ErrInvalidTenant
	}
	if limit <= 0 {
		limit = 50
	}

	var purchases []*ledgerdomain.Purchase
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&purchases).Error
	if err != nil {
		return nil, err
	}
	return purchases, nil
}

func (s *Store) findPurchaseByReference(ctx context.Context, userID snowflake.ID, reference string) (*ledgerdomain.Purchase, error) {
	var purchase ledgerdomain.Purchase
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND payment_reference = ?", userID, reference).
		First(&purchase).Error
	if err != nil {
		return nil, err
	}
	return &purchase, nil
}

func minutesFromSeconds(seconds int64) decimal.Decimal {
	if seconds <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt((seconds + 59) / 60)
}
