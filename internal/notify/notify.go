// Package notify delivers user-facing billing notifications. Delivery is
// one-way and best-effort: a failed notification never affects the ledger
// mutation that triggered it.
package notify

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

const (
	KindCreditsDeducted     = "credits_deducted"
	KindInsufficientCredits = "insufficient_credits"
	KindPurchaseRecorded    = "purchase_recorded"
)

// Notification is one user-facing billing event.
type Notification struct {
	UserID  snowflake.ID
	Kind    string
	Payload map[string]any

	// DedupeKey suppresses duplicate deliveries for the same underlying
	// event, e.g. one warning per call, not one per retry.
	DedupeKey string
}

// Notifier is the outbound notification collaborator.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}
