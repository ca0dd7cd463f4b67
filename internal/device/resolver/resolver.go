// Package resolver decides what happens when a pushed mutation is rejected
// because the remote copy moved. Divergence is either auto-resolved toward
// the remote or blocked for admin adjudication; safety-relevant outcomes are
// never merged automatically.
package resolver

import (
	"github.com/avolkov/seedtrack/internal/device/models"
	"github.com/avolkov/seedtrack/internal/workflow"
)

// Decision is the resolver's verdict for one divergence.
type Decision int

const (
	// AcceptRemote overwrites the local copy with the remote authoritative
	// state and drops the rejected mutation.
	AcceptRemote Decision = iota

	// Blocked keeps the local copy, marks it as a conflict, and surfaces the
	// divergence for manual adjudication. No auto-merge happens.
	Blocked
)

func (d Decision) String() string {
	switch d {
	case AcceptRemote:
		return "accept-remote"
	case Blocked:
		return "blocked"
	}
	return "unknown"
}

// Resolution carries the decision and a human-readable reason recorded with
// the conflict.
type Resolution struct {
	Decision Decision
	Reason   string
}

// Resolve reconciles one version conflict. Inputs are the local applicator
// copy, the remote's authoritative status and version, and the rejected
// mutation.
//
// Rules, in priority order:
//  1. Local usage evidence is never overwritten by a remote claim that the
//     device is unused. The remote is authoritative for metadata, never for
//     whether a physical device has already been consumed.
//  2. A divergence touching a safety-relevant status on either side blocks
//     for admin adjudication.
//  3. Anything else resolves last-writer-wins by server version: the remote
//     copy, which carries the higher version, overwrites the local one.
func Resolve(local models.Applicator, remoteStatus workflow.Status, remoteVersion int64, m models.PendingMutation) Resolution {
	if workflow.UsageEvidence(local.Status) && !workflow.UsageEvidence(remoteStatus) {
		return Resolution{
			Decision: Blocked,
			Reason:   "local copy records device usage, remote claims device unused",
		}
	}

	if workflow.RequiresAdminForConflict(m.Change.TargetStatus) && remoteStatus != m.Change.BaseStatus {
		return Resolution{
			Decision: Blocked,
			Reason:   "mutation targets a safety-relevant status and the remote diverged from its assumed base",
		}
	}

	if workflow.RequiresAdminForConflict(remoteStatus) && remoteStatus != m.Change.BaseStatus {
		return Resolution{
			Decision: Blocked,
			Reason:   "remote copy reached a safety-relevant status the mutation did not assume",
		}
	}

	return Resolution{
		Decision: AcceptRemote,
		Reason:   "no safety-relevant divergence, remote version wins",
	}
}
