package domain

import "errors"

// Billing outcome taxonomy. Expected business conditions are ordinary
// returned values matched with errors.Is, never panics.
var (
	// ErrInvalidCall marks a non-billable input (wrong status, zero
	// duration). Not retried.
	ErrInvalidCall = errors.New("invalid_call")

	// ErrAlreadyProcessed means the idempotency guard tripped. Callers
	// treat it as success.
	ErrAlreadyProcessed = errors.New("already_processed")

	// ErrInsufficientCredits means the balance was too low. The call stays
	// unbilled until the balance is topped up and the sweeper retries.
	ErrInsufficientCredits = errors.New("insufficient_credits")

	// ErrTransient marks I/O failures, timeouts, and retry exhaustion.
	// Always safe to retry later because of idempotency.
	ErrTransient = errors.New("transient_failure")

	// ErrPermissionDenied marks a tenant mismatch. Never retried.
	ErrPermissionDenied = errors.New("permission_denied")

	ErrInvalidTenant    = errors.New("invalid_tenant")
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrInvalidReference = errors.New("invalid_reference")
)
