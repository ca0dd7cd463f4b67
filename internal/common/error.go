// Package common defines shared constants and sentinel errors used across
// device and server layers of seedtrack. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// State-machine errors. Always returned to the caller, never coerced.
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnknownStatus     = errors.New("unknown status value")
	ErrCommentRequired   = errors.New("comment required for this status")

	// Local store errors.
	ErrEncryptionNotReady  = errors.New("encryption not ready")
	ErrInsufficientStorage = errors.New("insufficient local storage")
	ErrLocalDivergence     = errors.New("local copy diverged from last known good state")

	// Sync errors. Transient ones keep the mutation queued.
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrTimeout            = errors.New("operation timed out")
	ErrVersionConflict    = errors.New("version conflict")
	ErrBundleExpired      = errors.New("bundle expired")

	// Conflict resolution outcome that must block until an admin decides.
	ErrAdminResolutionRequired = errors.New("admin resolution required")

	// ERP gateway errors. Fail closed: block, never assume safe defaults.
	ErrMetadataUnavailable = errors.New("device metadata unavailable")
	ErrMetadataStale       = errors.New("device metadata stale")
	ErrCircuitOpen         = errors.New("erp circuit open")

	// Write-contract errors.
	ErrTreatmentVoided = errors.New("treatment is voided")
)
