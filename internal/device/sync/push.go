package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/sethvargo/go-retry"

	"github.com/avolkov/seedtrack/internal/api"
	"github.com/avolkov/seedtrack/internal/common"
	"github.com/avolkov/seedtrack/internal/device/models"
	"github.com/avolkov/seedtrack/internal/device/resolver"
	"github.com/avolkov/seedtrack/internal/integrity"
	"github.com/avolkov/seedtrack/internal/workflow"
)

// reconcileActor marks audit entries written when the local copy is
// overwritten with the remote authoritative state.
const reconcileActor = "system-of-record"

// BlockedMutation is one queue entry that could not be resolved
// automatically. The mutation stays queued until an admin adjudicates.
type BlockedMutation struct {
	MutationID string
	EntityID   string
	Reason     string
	Err        error
}

// Report summarizes one push cycle.
type Report struct {
	Pushed      int
	Accepted    int
	Remapped    int
	Overwritten int
	Blocked     []BlockedMutation
}

// AdminRequired reports whether any divergence is waiting for manual
// adjudication.
func (r *Report) AdminRequired() bool {
	for _, b := range r.Blocked {
		if errors.Is(b.Err, common.ErrAdminResolutionRequired) {
			return true
		}
	}
	return false
}

// Push sends the pending queue in enqueue order and reconciles the outcomes.
// Transient transport failures are retried with exponential backoff and then
// left pending; a mutation is never discarded without an outcome.
func (e *Engine) Push(ctx context.Context) (*Report, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()
	e.setPhase(PhasePushing)

	report, err := e.push(ctx)
	return report, e.finish(err)
}

func (e *Engine) push(ctx context.Context) (*Report, error) {
	report := &Report{}

	pending, err := e.store.PendingMutations(ctx)
	if err != nil {
		return report, err
	}
	if len(pending) == 0 {
		return report, nil
	}

	sendable, err := e.screenDivergence(ctx, pending, report)
	if err != nil {
		return report, err
	}
	if len(sendable) == 0 {
		return report, nil
	}

	wire := make([]api.Mutation, 0, len(sendable))
	byID := make(map[string]models.PendingMutation, len(sendable))
	for _, m := range sendable {
		wire = append(wire, toWire(m))
		byID[m.ID] = m
	}

	var outcomes []api.MutationOutcome
	backoff := retry.WithMaxRetries(e.cfg.MaxRetries, retry.NewExponential(e.cfg.RetryBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		defer cancel()

		result, err := e.remote.Push(callCtx, wire)
		if err != nil {
			if isTransient(err) {
				e.logger.Warn(ctx, "push attempt failed, will retry", "error", err.Error())
				return retry.RetryableError(err)
			}
			return err
		}
		outcomes = result
		return nil
	})
	if err != nil {
		// the queue is untouched, everything stays pending
		return report, fmt.Errorf("pushing %d mutations: %w", len(wire), err)
	}
	report.Pushed = len(wire)

	e.setPhase(PhaseReconciling)
	// ids remapped earlier in this cycle redirect later outcomes for the
	// same entity
	renames := map[string]string{}
	for _, outcome := range outcomes {
		m, ok := byID[outcome.MutationID]
		if !ok {
			e.logger.Warn(ctx, "outcome for unknown mutation", "mutationId", outcome.MutationID)
			continue
		}
		if newID, ok := renames[m.EntityID]; ok {
			m.EntityID = newID
		}
		if err := e.reconcileOutcome(ctx, m, outcome, renames, report); err != nil {
			return report, err
		}
	}
	return report, nil
}

// screenDivergence drops entities whose local copy no longer matches its last
// known good digest. Their mutations stay queued and are reported blocked.
func (e *Engine) screenDivergence(ctx context.Context, pending []models.PendingMutation, report *Report) ([]models.PendingMutation, error) {
	diverged := map[string]bool{}
	checked := map[string]bool{}
	sendable := make([]models.PendingMutation, 0, len(pending))

	for _, m := range pending {
		if !checked[m.EntityID] {
			checked[m.EntityID] = true
			app, err := e.store.ReadApplicator(ctx, m.EntityID)
			if err != nil {
				return nil, err
			}
			digest, err := integrity.ComputeDigest(app.DigestFields())
			if err != nil {
				return nil, err
			}
			if !integrity.CompareDigests(digest, app.Digest) {
				diverged[m.EntityID] = true
				e.logger.Error(ctx, "local copy diverged from last known good state, push blocked",
					"applicatorId", m.EntityID)
			}
		}
		if diverged[m.EntityID] {
			report.Blocked = append(report.Blocked, BlockedMutation{
				MutationID: m.ID,
				EntityID:   m.EntityID,
				Reason:     "local copy failed integrity check",
				Err:        common.ErrLocalDivergence,
			})
			continue
		}
		sendable = append(sendable, m)
	}
	return sendable, nil
}

func (e *Engine) reconcileOutcome(ctx context.Context, m models.PendingMutation, outcome api.MutationOutcome, renames map[string]string, report *Report) error {
	switch {
	case outcome.Accepted:
		entityID := m.EntityID
		if outcome.AssignedID != "" && outcome.AssignedID != entityID {
			if err := e.store.RemapApplicatorID(ctx, entityID, outcome.AssignedID, outcome.NewVersion); err != nil {
				return fmt.Errorf("remapping %s to %s: %w", entityID, outcome.AssignedID, err)
			}
			renames[entityID] = outcome.AssignedID
			entityID = outcome.AssignedID
			report.Remapped++
			e.logger.Info(ctx, "offline-created id remapped",
				"temporaryId", m.EntityID, "assignedId", entityID)
		}
		if err := e.confirmAccepted(ctx, entityID, outcome.NewVersion); err != nil {
			return err
		}
		report.Accepted++
		return e.store.RemoveMutation(ctx, m.ID)

	case outcome.Conflict != nil:
		return e.reconcileConflict(ctx, m, *outcome.Conflict, report)

	default:
		// permanently rejected without a conflict payload; keep it queued
		// and surface the reason
		e.logger.Error(ctx, "mutation rejected by remote",
			"mutationId", m.ID, "error", outcome.Error)
		report.Blocked = append(report.Blocked, BlockedMutation{
			MutationID: m.ID,
			EntityID:   m.EntityID,
			Reason:     outcome.Error,
		})
		return nil
	}
}

// confirmAccepted records the server-assigned version on the local copy and
// refreshes its digest.
func (e *Engine) confirmAccepted(ctx context.Context, entityID string, newVersion int64) error {
	app, err := e.store.ReadApplicator(ctx, entityID)
	if err != nil {
		return err
	}
	app.Version = newVersion
	app.SyncStatus = models.SyncSynced
	app.UpdatedAt = e.now().UTC()

	digest, err := integrity.ComputeDigest(app.DigestFields())
	if err != nil {
		return err
	}
	app.Digest = digest
	return e.store.SaveApplicators(ctx, []models.Applicator{app})
}

func (e *Engine) reconcileConflict(ctx context.Context, m models.PendingMutation, conflict api.Conflict, report *Report) error {
	local, err := e.store.ReadApplicator(ctx, m.EntityID)
	if err != nil {
		return err
	}
	remoteStatus, err := workflow.ParseStatus(conflict.RemoteStatus)
	if err != nil {
		return fmt.Errorf("conflict payload for %s: %w", m.EntityID, err)
	}

	res := resolver.Resolve(local, remoteStatus, conflict.RemoteVersion, m)
	switch res.Decision {
	case resolver.AcceptRemote:
		previous := local.Status
		local.Status = remoteStatus
		local.Version = conflict.RemoteVersion
		local.SyncStatus = models.SyncSynced
		local.UpdatedAt = e.now().UTC()

		digest, err := integrity.ComputeDigest(local.DigestFields())
		if err != nil {
			return err
		}
		local.Digest = digest
		if err := e.store.SaveApplicators(ctx, []models.Applicator{local}); err != nil {
			return err
		}
		if previous != remoteStatus {
			entry := workflow.AuditLogEntry{
				ApplicatorID:   local.ID,
				PreviousStatus: previous,
				NewStatus:      remoteStatus,
				ActorID:        reconcileActor,
				Timestamp:      e.now().UTC(),
				Reason:         res.Reason,
			}
			if err := e.store.AppendAudit(ctx, entry); err != nil {
				return err
			}
		}
		report.Overwritten++
		e.logger.Info(ctx, "conflict auto-resolved toward remote",
			"applicatorId", local.ID, "remoteVersion", conflict.RemoteVersion)
		return e.store.RemoveMutation(ctx, m.ID)

	default: // resolver.Blocked
		if err := e.store.MarkSyncStatus(ctx, local.ID, models.SyncConflict); err != nil {
			return err
		}
		report.Blocked = append(report.Blocked, BlockedMutation{
			MutationID: m.ID,
			EntityID:   local.ID,
			Reason:     res.Reason,
			Err:        common.ErrAdminResolutionRequired,
		})
		e.logger.Warn(ctx, "conflict requires admin adjudication",
			"applicatorId", local.ID, "reason", res.Reason)
		return nil
	}
}

func toWire(m models.PendingMutation) api.Mutation {
	return api.Mutation{
		ID:           m.ID,
		EntityID:     m.EntityID,
		TreatmentID:  m.TreatmentID,
		Kind:         m.Kind,
		BaseVersion:  m.BaseVersion,
		DeviceID:     m.DeviceID,
		EnqueuedAt:   m.EnqueuedAt,
		SerialNumber: m.Change.SerialNumber,
		BaseStatus:   string(m.Change.BaseStatus),
		TargetStatus: string(m.Change.TargetStatus),
		SeedQuantity: m.Change.SeedQuantity,
		PackageLabel: m.Change.PackageLabel,
		Comments:     m.Change.Comments,
	}
}
