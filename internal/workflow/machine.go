package workflow

import (
	"fmt"
	"time"

	"github.com/avolkov/seedtrack/internal/common"
)

// AuditLogEntry is the immutable record of one accepted status transition.
// Entries are created, never mutated or deleted, and retained indefinitely.
type AuditLogEntry struct {
	ApplicatorID   string    `json:"applicatorId"`
	PreviousStatus Status    `json:"previousStatus"`
	NewStatus      Status    `json:"newStatus"`
	ActorID        string    `json:"actorId"`
	Timestamp      time.Time `json:"timestamp"`
	Reason         string    `json:"reason,omitempty"`
}

// allowedTargets returns the set of statuses reachable from current under the
// given workflow kind. The matches are written out per kind and per status so
// that adding a status forces this function to be revisited; there is no
// string-keyed lookup with a silent fallback.
func allowedTargets(kind Kind, current Status) []Status {
	switch kind {
	case KindThreeStage:
		switch current {
		case StatusSealed:
			return []Status{StatusOpened}
		case StatusOpened:
			return []Status{StatusLoaded, StatusFaulty, StatusDisposed}
		case StatusLoaded:
			return []Status{StatusInserted, StatusDischarged, StatusDeploymentFailure}
		}
		return nil

	case KindTwoStage:
		switch current {
		case StatusSealed:
			return []Status{StatusInserted, StatusFaulty}
		}
		return nil

	default: // KindGeneric
		switch current {
		case StatusSealed:
			return []Status{StatusOpened, StatusFaulty}
		case StatusOpened:
			return []Status{StatusLoaded, StatusFaulty, StatusDisposed}
		case StatusLoaded:
			return []Status{StatusInserted, StatusFaulty, StatusDeploymentFailure}
		case StatusInserted:
			return []Status{StatusDischarged, StatusDisposed}
		case StatusFaulty:
			return []Status{StatusDisposed, StatusDischarged}
		case StatusDeploymentFailure:
			return []Status{StatusDisposed, StatusFaulty}
		}
		return nil
	}
}

// CanTransition reports whether requested is reachable from current under the
// given workflow kind.
func CanTransition(kind Kind, current, requested Status) bool {
	for _, s := range allowedTargets(kind, current) {
		if s == requested {
			return true
		}
	}
	return false
}

// Apply validates the transition current -> requested under kind and, on
// success, returns the single AuditLogEntry the caller must persist
// atomically with the status change. On failure it returns
// common.ErrInvalidTransition; the status is never coerced.
func Apply(kind Kind, applicatorID string, current, requested Status, actorID, reason string, now time.Time) (AuditLogEntry, error) {
	if !CanTransition(kind, current, requested) {
		return AuditLogEntry{}, fmt.Errorf("%w: %s -> %s under %s workflow",
			common.ErrInvalidTransition, current, requested, kind)
	}

	return AuditLogEntry{
		ApplicatorID:   applicatorID,
		PreviousStatus: current,
		NewStatus:      requested,
		ActorID:        actorID,
		Timestamp:      now.UTC(),
		Reason:         reason,
	}, nil
}
