package store

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	calldomain "github.com/voxbill/voxbill/internal/call/domain"
	ledgerdomain "github.com/voxbill/voxbill/internal/ledger/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

func New(p Params) calldomain.Store {
	return &Store{
		db:  p.DB,
		log: p.Log.Named("call.store"),
	}
}

func (s *Store) GetByID(ctx context.Context, callID snowflake.ID) (*calldomain.CallRecord, error) {
	if callID == 0 {
		return nil, calldomain.ErrCallNotFound
	}
	var call calldomain.CallRecord
	err := s.db.WithContext(ctx).
		Where("id = ?", callID).
		First(&call).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, calldomain.ErrCallNotFound
		}
		return nil, err
	}
	return &call, nil
}

func (s *Store) ListUnbilled(ctx context.Context, userID snowflake.ID, limit int) ([]*calldomain.CallRecord, error) {
	if userID == 0 {
		return nil, ledgerdomain.ErrInvalidTenant
	}
	if limit <= 0 {
		limit = 100
	}

	var calls []*calldomain.CallRecord
	err := s.db.WithContext(ctx).Raw(
		`SELECT c.* FROM call_records c
		 WHERE c.user_id = ?
		   AND c.status = ?
		   AND c.duration_seconds > 0
		   AND NOT EXISTS (
			SELECT 1 FROM usage_entries u
			WHERE u.user_id = c.user_id
			  AND u.usage_type = ?
			  AND u.reference_id = CAST(c.id AS TEXT)
		   )
		 ORDER BY c.created_at ASC
		 LIMIT ?`,
		userID,
		string(calldomain.CallStatusCompleted),
		string(ledgerdomain.UsageTypeCall),
		limit,
	).Scan(&calls).Error
	if err != nil {
		return nil, err
	}
	return calls, nil
}

func (s *Store) TenantsWithUnbilled(ctx context.Context, limit int) ([]snowflake.ID, error) {
	if limit <= 0 {
		limit = 100
	}

	var userIDs []snowflake.ID
	err := s.db.WithContext(ctx).Raw(
		`SELECT DISTINCT c.user_id FROM call_records c
		 WHERE c.status = ?
		   AND c.duration_seconds > 0
		   AND NOT EXISTS (
			SELECT 1 FROM usage_entries u
			WHERE u.user_id = c.user_id
			  AND u.usage_type = ?
			  AND u.reference_id = CAST(c.id AS TEXT)
		   )
		 LIMIT ?`,
		string(calldomain.CallStatusCompleted),
		string(ledgerdomain.UsageTypeCall),
		limit,
	).Scan(&userIDs).Error
	if err != nil {
		return nil, err
	}
	return userIDs, nil
}
