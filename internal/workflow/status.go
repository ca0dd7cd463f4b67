// Package workflow implements the applicator status state machine. It is
// pure logic: it validates transitions against the treatment's workflow kind
// and returns the audit entry for the caller to persist atomically with the
// status change. No I/O happens here.
package workflow

import (
	"fmt"

	"github.com/avolkov/seedtrack/internal/common"
)

// Status is the lifecycle state of an applicator. The string values are a
// fixed, versioned wire contract shared with the remote system of record.
type Status string

const (
	StatusSealed            Status = "SEALED"
	StatusOpened            Status = "OPENED"
	StatusLoaded            Status = "LOADED"
	StatusInserted          Status = "INSERTED"
	StatusFaulty            Status = "FAULTY"
	StatusDisposed          Status = "DISPOSED"
	StatusDischarged        Status = "DISCHARGED"
	StatusDeploymentFailure Status = "DEPLOYMENT_FAILURE"
)

// ParseStatus validates a wire string against the contract set.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusSealed, StatusOpened, StatusLoaded, StatusInserted,
		StatusFaulty, StatusDisposed, StatusDischarged, StatusDeploymentFailure:
		return Status(s), nil
	}
	return "", fmt.Errorf("%w: %q", common.ErrUnknownStatus, s)
}

// IsTerminal reports whether the status has no outgoing transitions in any
// workflow map.
func IsTerminal(s Status) bool {
	switch s {
	case StatusInserted, StatusFaulty, StatusDisposed, StatusDischarged, StatusDeploymentFailure:
		return true
	}
	return false
}

// RequiresComment reports whether a transition into s must carry an
// explanatory comment.
func RequiresComment(s Status) bool {
	switch s {
	case StatusFaulty, StatusDisposed, StatusDischarged, StatusDeploymentFailure:
		return true
	}
	return false
}

// RequiresAdminForConflict reports whether s is a safety-relevant outcome
// that must never be silently overwritten during sync. Divergence involving
// these statuses always blocks for admin adjudication.
func RequiresAdminForConflict(s Status) bool {
	switch s {
	case StatusInserted, StatusFaulty, StatusDisposed, StatusDeploymentFailure:
		return true
	}
	return false
}

// UsageEvidence reports whether s asserts that the physical device has been
// consumed. For usage facts the locally observed value always wins over
// remote metadata during conflict resolution.
func UsageEvidence(s Status) bool {
	switch s {
	case StatusSealed, StatusOpened:
		return false
	}
	return true
}
