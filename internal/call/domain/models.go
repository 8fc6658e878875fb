// Package domain contains the call records the ledger reads. The calling
// subsystem owns these rows; the ledger never mutates them.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// CallStatus is the call lifecycle state reported by the calling subsystem.
type CallStatus string

const (
	CallStatusPending      CallStatus = "pending"
	CallStatusInProgress   CallStatus = "in_progress"
	CallStatusCompleted    CallStatus = "completed"
	CallStatusFailed       CallStatus = "failed"
	CallStatusNotConnected CallStatus = "not_connected"
	CallStatusNightTime    CallStatus = "night_time_dont_call"
)

// CallRecord is one phone call. Completed calls with a positive duration and
// no matching usage entry are considered unbilled.
type CallRecord struct {
	ID              snowflake.ID `gorm:"primaryKey"`
	UserID          snowflake.ID `gorm:"not null;index"`
	Status          CallStatus   `gorm:"type:text;not null;index"`
	DurationSeconds int64        `gorm:"not null;default:0"`
	CompletedAt     *time.Time   `gorm:""`
	CreatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (CallRecord) TableName() string { return "call_records" }

// TransitionEvent is one call-state-change notification from the push feed.
type TransitionEvent struct {
	CallID          snowflake.ID
	UserID          snowflake.ID
	OldStatus       CallStatus
	NewStatus       CallStatus
	DurationSeconds int64
	OccurredAt      time.Time
}

// Completed reports whether the transition finished a billable call.
func (e TransitionEvent) Completed() bool {
	return e.NewStatus == CallStatusCompleted && e.DurationSeconds > 0
}

// Store is the read-only view of call records the ledger needs.
type Store interface {
	// GetByID returns the call, or ErrCallNotFound.
	GetByID(ctx context.Context, callID snowflake.ID) (*CallRecord, error)

	// ListUnbilled returns completed calls with a positive duration that
	// have no matching usage entry, via a set-difference query.
	ListUnbilled(ctx context.Context, userID snowflake.ID, limit int) ([]*CallRecord, error)

	// TenantsWithUnbilled returns the tenants that currently have at least
	// one unbilled call, for the periodic reconciliation sweep.
	TenantsWithUnbilled(ctx context.Context, limit int) ([]snowflake.ID, error)
}

var ErrCallNotFound = errors.New("call_not_found")
