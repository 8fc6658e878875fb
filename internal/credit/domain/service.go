// Package domain defines the credit processor contract: the single
// authority for converting completed calls into ledger deductions.
package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	calldomain "github.com/voxbill/voxbill/internal/call/domain"
)

// Result reports a successful deduction.
type Result struct {
	CreditsDeducted decimal.Decimal
	EntryID         snowflake.ID
}

// Processor bills one completed call exactly once. Expected business
// outcomes (already processed, insufficient credits, non-billable input)
// come back as sentinel errors from the ledger domain, never panics.
type Processor interface {
	ProcessCallCredits(ctx context.Context, call *calldomain.CallRecord) (Result, error)
}

// SweepSummary tallies one reconciliation pass.
type SweepSummary struct {
	Processed int `json:"processed"`
	Errors    int `json:"errors"`
}

// Sweeper finds completed-but-unbilled calls and replays the processor
// against them. Safe to run repeatedly and concurrently with the watcher.
type Sweeper interface {
	ProcessUnprocessedCalls(ctx context.Context, userID snowflake.ID) (SweepSummary, error)
}
