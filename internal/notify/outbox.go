package notify

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Outbox stores notifications in the billing_events table for the delivery
// collaborator to drain. Writes are deduplicated on (user_id, dedupe_key).
type Outbox struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewOutbox(db *gorm.DB, log *zap.Logger) *Outbox {
	return &Outbox{db: db, log: log.Named("notify.outbox")}
}

func (o *Outbox) Notify(ctx context.Context, n Notification) {
	if o == nil || o.db == nil {
		return
	}
	if n.UserID == 0 || strings.TrimSpace(n.Kind) == "" {
		return
	}

	payload := datatypes.JSONMap{}
	for key, value := range n.Payload {
		if strings.TrimSpace(key) == "" {
			continue
		}
		payload[key] = value
	}

	dedupe := strings.TrimSpace(n.DedupeKey)
	var dedupeValue any
	if dedupe != "" {
		dedupeValue = dedupe
	}

	err := o.db.WithContext(ctx).Exec(
		`INSERT INTO billing_events (id, user_id, kind, payload, dedupe_key, delivered, created_at)
		 VALUES (?, ?, ?, ?, ?, false, ?)
		 ON CONFLICT (user_id, dedupe_key) DO NOTHING`,
		uuid.NewString(),
		n.UserID,
		n.Kind,
		payload,
		dedupeValue,
		time.Now().UTC(),
	).Error
	if err != nil {
		// Best effort only.
		o.log.Warn("failed to enqueue notification",
			zap.String("kind", n.Kind),
			zap.String("user_id", n.UserID.String()),
			zap.Error(err),
		)
	}
}
