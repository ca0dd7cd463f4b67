package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/seedtrack/internal/api"
	"github.com/avolkov/seedtrack/internal/common"
	"github.com/avolkov/seedtrack/internal/dbx"
	"github.com/avolkov/seedtrack/internal/logging"
	"github.com/avolkov/seedtrack/internal/server/models"
	"github.com/avolkov/seedtrack/internal/workflow"
)

// PushService applies mutations pushed from devices. Each mutation runs in
// its own transaction: duplicate ids replay their recorded outcome, stale
// base versions come back as conflicts, and every accepted transition is
// validated against the workflow rules and audited.
type PushService struct {
	db     *sql.DB
	repos  func(dbx.DBTX) RepoSet
	logger logging.Logger
	now    func() time.Time
}

func NewPushService(db *sql.DB, logger logging.Logger) *PushService {
	return &PushService{
		db:     db,
		repos:  PostgresRepoSet,
		logger: logger,
		now:    time.Now,
	}
}

// Apply processes mutations in the order the device sent them and returns
// one outcome per mutation.
func (s *PushService) Apply(ctx context.Context, actorID string, mutations []api.Mutation) ([]api.MutationOutcome, error) {
	outcomes := make([]api.MutationOutcome, 0, len(mutations))
	for _, m := range mutations {
		var outcome api.MutationOutcome
		err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			var err error
			outcome, err = s.applyOne(ctx, s.repos(tx), actorID, m)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("applying mutation %s: %w", m.ID, err)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func (s *PushService) applyOne(ctx context.Context, repos RepoSet, actorID string, m api.Mutation) (api.MutationOutcome, error) {
	applied, err := repos.Applied.Get(ctx, m.ID)
	switch {
	case err == nil:
		s.logger.Info(ctx, "duplicate mutation, replaying outcome",
			"mutationId", m.ID, "deviceId", m.DeviceID)
		return replayOutcome(applied), nil
	case !errors.Is(err, common.ErrNotFound):
		return api.MutationOutcome{}, err
	}

	switch m.Kind {
	case api.MutationCreate:
		return s.applyCreate(ctx, repos, m)
	case api.MutationUpdate:
		return s.applyUpdate(ctx, repos, actorID, m)
	default:
		return s.reject(ctx, repos, m, fmt.Sprintf("unknown mutation kind %q", m.Kind))
	}
}

func (s *PushService) applyCreate(ctx context.Context, repos RepoSet, m api.Mutation) (api.MutationOutcome, error) {
	t, err := repos.Treatments.GetByID(ctx, m.TreatmentID)
	if errors.Is(err, common.ErrNotFound) {
		return s.reject(ctx, repos, m, fmt.Sprintf("treatment %s not found", m.TreatmentID))
	}
	if err != nil {
		return api.MutationOutcome{}, err
	}
	if t.Voided {
		return s.reject(ctx, repos, m, fmt.Sprintf("treatment %s is voided", m.TreatmentID))
	}
	if m.SeedQuantity < 0 {
		return s.reject(ctx, repos, m, fmt.Sprintf("seed quantity %d is negative", m.SeedQuantity))
	}
	status, err := workflow.ParseStatus(m.TargetStatus)
	if err != nil {
		return s.reject(ctx, repos, m, err.Error())
	}

	assigned := uuid.NewString()
	app := &models.Applicator{
		ID:           assigned,
		TreatmentID:  m.TreatmentID,
		SerialNumber: m.SerialNumber,
		Status:       status,
		SeedQuantity: m.SeedQuantity,
		PackageLabel: m.PackageLabel,
		Comments:     m.Comments,
		Version:      1,
	}
	if err := repos.Applicators.Create(ctx, app); err != nil {
		return api.MutationOutcome{}, err
	}

	record := &models.AppliedMutation{
		MutationID: m.ID,
		EntityID:   assigned,
		Accepted:   true,
		NewVersion: 1,
		AssignedID: assigned,
	}
	if err := repos.Applied.Record(ctx, record); err != nil {
		return api.MutationOutcome{}, err
	}

	s.logger.Info(ctx, "applicator created",
		"applicatorId", assigned, "serialNumber", m.SerialNumber, "deviceId", m.DeviceID)
	return replayOutcome(record), nil
}

func (s *PushService) applyUpdate(ctx context.Context, repos RepoSet, actorID string, m api.Mutation) (api.MutationOutcome, error) {
	app, err := repos.Applicators.GetForUpdate(ctx, m.EntityID)
	if errors.Is(err, common.ErrNotFound) {
		return s.reject(ctx, repos, m, fmt.Sprintf("applicator %s not found", m.EntityID))
	}
	if err != nil {
		return api.MutationOutcome{}, err
	}

	if app.Version != m.BaseVersion {
		record := &models.AppliedMutation{
			MutationID:      m.ID,
			EntityID:        m.EntityID,
			ConflictStatus:  string(app.Status),
			ConflictVersion: app.Version,
		}
		if err := repos.Applied.Record(ctx, record); err != nil {
			return api.MutationOutcome{}, err
		}
		s.logger.Warn(ctx, "version conflict",
			"applicatorId", m.EntityID, "baseVersion", m.BaseVersion, "currentVersion", app.Version)
		return replayOutcome(record), nil
	}

	t, err := repos.Treatments.GetByID(ctx, app.TreatmentID)
	if err != nil {
		return api.MutationOutcome{}, err
	}
	if t.Voided {
		return s.reject(ctx, repos, m, fmt.Sprintf("treatment %s is voided", t.ID))
	}

	target, err := workflow.ParseStatus(m.TargetStatus)
	if err != nil {
		return s.reject(ctx, repos, m, err.Error())
	}
	entry, err := workflow.Apply(t.Kind(), app.ID, app.Status, target, actorID, m.Comments, s.now())
	if err != nil {
		return s.reject(ctx, repos, m, err.Error())
	}
	if workflow.RequiresComment(target) && m.Comments == "" {
		return s.reject(ctx, repos, m, fmt.Sprintf("comment required for transition to %s", target))
	}

	comments := app.Comments
	if m.Comments != "" {
		comments = m.Comments
	}
	newVersion, err := repos.Applicators.UpdateStatus(ctx, app.ID, string(target), comments)
	if err != nil {
		return api.MutationOutcome{}, err
	}
	if err := repos.Audit.Append(ctx, &entry); err != nil {
		return api.MutationOutcome{}, err
	}

	record := &models.AppliedMutation{
		MutationID: m.ID,
		EntityID:   app.ID,
		Accepted:   true,
		NewVersion: newVersion,
	}
	if err := repos.Applied.Record(ctx, record); err != nil {
		return api.MutationOutcome{}, err
	}

	s.logger.Info(ctx, "transition applied",
		"applicatorId", app.ID, "from", string(app.Status), "to", string(target), "version", newVersion)
	return replayOutcome(record), nil
}

// reject records a permanent, non-conflict rejection so a duplicate push
// replays the same refusal.
func (s *PushService) reject(ctx context.Context, repos RepoSet, m api.Mutation, reason string) (api.MutationOutcome, error) {
	record := &models.AppliedMutation{
		MutationID: m.ID,
		EntityID:   m.EntityID,
		Error:      reason,
	}
	if err := repos.Applied.Record(ctx, record); err != nil {
		return api.MutationOutcome{}, err
	}
	s.logger.Warn(ctx, "mutation rejected", "mutationId", m.ID, "reason", reason)
	return replayOutcome(record), nil
}

func replayOutcome(m *models.AppliedMutation) api.MutationOutcome {
	outcome := api.MutationOutcome{
		MutationID: m.MutationID,
		Accepted:   m.Accepted,
		NewVersion: m.NewVersion,
		AssignedID: m.AssignedID,
		Error:      m.Error,
	}
	if m.ConflictStatus != "" {
		outcome.Conflict = &api.Conflict{
			RemoteStatus:  m.ConflictStatus,
			RemoteVersion: m.ConflictVersion,
		}
	}
	return outcome
}
