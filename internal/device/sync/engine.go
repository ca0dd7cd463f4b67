// Package sync implements the device sync engine: bundle download, local
// mutation application, ordered push of the pending queue, and conflict
// reconciliation. One engine exists per device session; its lifecycle is tied
// to login and logout, not to any UI surface.
package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/seedtrack/internal/api"
	"github.com/avolkov/seedtrack/internal/common"
	"github.com/avolkov/seedtrack/internal/device/models"
	"github.com/avolkov/seedtrack/internal/device/remote"
	"github.com/avolkov/seedtrack/internal/device/store"
	"github.com/avolkov/seedtrack/internal/integrity"
	"github.com/avolkov/seedtrack/internal/logging"
	"github.com/avolkov/seedtrack/internal/workflow"
)

const (
	defaultCallTimeout  = 10 * time.Second
	defaultMaxRetries   = 3
	defaultRetryBackoff = 500 * time.Millisecond
)

// Config tunes the engine's network behavior. Zero values fall back to
// defaults.
type Config struct {
	CallTimeout  time.Duration
	MaxRetries   uint64
	RetryBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.CallTimeout <= 0 {
		c.CallTimeout = defaultCallTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	return c
}

// Engine coordinates the local store with the remote system of record. All
// operations are serialized: a push never overlaps a download, and there is a
// single active writer per device session.
type Engine struct {
	opMu stdsync.Mutex

	phaseMu stdsync.RWMutex
	phase   Phase

	store    *store.Store
	remote   remote.Client
	deviceID string
	cfg      Config
	logger   logging.Logger
	now      func() time.Time
}

func NewEngine(st *store.Store, rc remote.Client, deviceID string, cfg Config, logger logging.Logger) *Engine {
	return &Engine{
		store:    st,
		remote:   rc,
		deviceID: deviceID,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		now:      time.Now,
	}
}

// Phase returns the engine's current phase.
func (e *Engine) Phase() Phase {
	e.phaseMu.RLock()
	defer e.phaseMu.RUnlock()
	return e.phase
}

func (e *Engine) setPhase(p Phase) {
	e.phaseMu.Lock()
	e.phase = p
	e.phaseMu.Unlock()
}

// finish moves the engine to idle on success or errored on failure and
// returns err unchanged.
func (e *Engine) finish(err error) error {
	if err != nil {
		e.setPhase(PhaseErrored)
		return err
	}
	e.setPhase(PhaseIdle)
	return nil
}

// Download fetches the offline-work bundle for a treatment and atomically
// replaces the local copies. An already-expired bundle is rejected before
// anything is written.
func (e *Engine) Download(ctx context.Context, treatmentID string) error {
	e.opMu.Lock()
	defer e.opMu.Unlock()
	e.setPhase(PhaseDownloading)

	return e.finish(e.download(ctx, treatmentID))
}

func (e *Engine) download(ctx context.Context, treatmentID string) error {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	bundle, err := e.remote.DownloadBundle(callCtx, treatmentID)
	if err != nil {
		return fmt.Errorf("downloading bundle: %w", err)
	}

	now := e.now().UTC()
	if now.After(bundle.ExpiresAt) {
		return fmt.Errorf("%w: bundle for treatment %s expired at %s",
			common.ErrBundleExpired, treatmentID, bundle.ExpiresAt.Format(time.RFC3339))
	}
	if bundle.Treatment.Voided {
		return fmt.Errorf("%w: treatment %s", common.ErrTreatmentVoided, treatmentID)
	}

	treatment := models.Treatment{
		ID:            bundle.Treatment.ID,
		Indication:    bundle.Treatment.Indication,
		PatientRef:    bundle.Treatment.PatientRef,
		Completed:     bundle.Treatment.Completed,
		Voided:        bundle.Treatment.Voided,
		ServerVersion: bundle.ServerVersion,
		DownloadedAt:  bundle.DownloadedAt,
		ExpiresAt:     bundle.ExpiresAt,
	}

	apps := make([]models.Applicator, 0, len(bundle.Applicators))
	for _, a := range bundle.Applicators {
		status, err := workflow.ParseStatus(a.Status)
		if err != nil {
			return fmt.Errorf("applicator %s in bundle: %w", a.ID, err)
		}
		app := models.Applicator{
			ID:           a.ID,
			TreatmentID:  a.TreatmentID,
			SerialNumber: a.SerialNumber,
			Status:       status,
			SeedQuantity: a.SeedQuantity,
			PackageLabel: a.PackageLabel,
			Comments:     a.Comments,
			Version:      a.Version,
			SyncStatus:   models.SyncSynced,
			UpdatedAt:    now,
		}
		digest, err := integrity.ComputeDigest(app.DigestFields())
		if err != nil {
			return fmt.Errorf("digesting applicator %s: %w", a.ID, err)
		}
		app.Digest = digest
		apps = append(apps, app)
	}

	if err := e.store.ReplaceBundle(ctx, treatment, apps); err != nil {
		return fmt.Errorf("replacing local copies: %w", err)
	}

	e.logger.Info(ctx, "bundle downloaded",
		"treatmentId", treatmentID, "applicators", len(apps), "serverVersion", bundle.ServerVersion)
	return nil
}

// ChangeRequest is one requested status transition against a local applicator
// copy.
type ChangeRequest struct {
	ApplicatorID string
	TargetStatus workflow.Status
	Comment      string
	ActorID      string
}

// ApplyLocal validates and persists one local status transition. It never
// touches the network: the change lands in the local store together with its
// queued mutation and audit entry, or not at all.
func (e *Engine) ApplyLocal(ctx context.Context, req ChangeRequest) error {
	e.opMu.Lock()
	defer e.opMu.Unlock()
	e.setPhase(PhaseMutating)

	return e.finish(e.applyLocal(ctx, req))
}

func (e *Engine) applyLocal(ctx context.Context, req ChangeRequest) error {
	app, err := e.store.ReadApplicator(ctx, req.ApplicatorID)
	if err != nil {
		return err
	}
	treatment, err := e.store.ReadTreatment(ctx, app.TreatmentID)
	if err != nil {
		return err
	}

	now := e.now().UTC()
	if treatment.Voided {
		return fmt.Errorf("%w: treatment %s", common.ErrTreatmentVoided, treatment.ID)
	}
	if treatment.Expired(now) {
		return fmt.Errorf("%w: treatment %s expired at %s",
			common.ErrBundleExpired, treatment.ID, treatment.ExpiresAt.Format(time.RFC3339))
	}

	entry, err := workflow.Apply(treatment.Kind(), app.ID, app.Status, req.TargetStatus,
		req.ActorID, req.Comment, now)
	if err != nil {
		return err
	}
	if workflow.RequiresComment(req.TargetStatus) && req.Comment == "" {
		return fmt.Errorf("%w: transition to %s", common.ErrCommentRequired, req.TargetStatus)
	}

	updated := app
	updated.Status = req.TargetStatus
	if req.Comment != "" {
		updated.Comments = req.Comment
	}
	updated.SyncStatus = models.SyncPending
	updated.UpdatedAt = now

	digest, err := integrity.ComputeDigest(updated.DigestFields())
	if err != nil {
		return fmt.Errorf("digesting applicator %s: %w", updated.ID, err)
	}
	updated.Digest = digest

	mutation := models.PendingMutation{
		ID:          uuid.NewString(),
		EntityID:    app.ID,
		TreatmentID: app.TreatmentID,
		Kind:        api.MutationUpdate,
		BaseVersion: app.Version,
		DeviceID:    e.deviceID,
		EnqueuedAt:  now,
		Change: models.ApplicatorChange{
			BaseStatus:   app.Status,
			TargetStatus: req.TargetStatus,
			SeedQuantity: updated.SeedQuantity,
			PackageLabel: updated.PackageLabel,
			Comments:     updated.Comments,
		},
	}

	if err := e.store.ApplyLocalMutation(ctx, updated, mutation, entry); err != nil {
		return err
	}

	e.logger.Info(ctx, "local transition applied",
		"applicatorId", app.ID, "from", string(app.Status), "to", string(req.TargetStatus))
	return nil
}

// CreateRequest registers a new applicator scanned on the device while
// offline.
type CreateRequest struct {
	TreatmentID  string
	SerialNumber string
	SeedQuantity int
	PackageLabel string
	ActorID      string
}

// CreateLocal registers an offline-created applicator under a temporary
// client-generated id. The id is remapped to the server-assigned one when the
// create mutation is acknowledged.
func (e *Engine) CreateLocal(ctx context.Context, req CreateRequest) (models.Applicator, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()
	e.setPhase(PhaseMutating)

	app, err := e.createLocal(ctx, req)
	return app, e.finish(err)
}

func (e *Engine) createLocal(ctx context.Context, req CreateRequest) (models.Applicator, error) {
	if req.SeedQuantity < 0 {
		return models.Applicator{}, fmt.Errorf("seed quantity %d is negative", req.SeedQuantity)
	}
	treatment, err := e.store.ReadTreatment(ctx, req.TreatmentID)
	if err != nil {
		return models.Applicator{}, err
	}

	now := e.now().UTC()
	if treatment.Voided {
		return models.Applicator{}, fmt.Errorf("%w: treatment %s", common.ErrTreatmentVoided, treatment.ID)
	}
	if treatment.Expired(now) {
		return models.Applicator{}, fmt.Errorf("%w: treatment %s expired at %s",
			common.ErrBundleExpired, treatment.ID, treatment.ExpiresAt.Format(time.RFC3339))
	}

	app := models.Applicator{
		ID:             uuid.NewString(),
		TreatmentID:    req.TreatmentID,
		SerialNumber:   req.SerialNumber,
		Status:         workflow.StatusSealed,
		SeedQuantity:   req.SeedQuantity,
		PackageLabel:   req.PackageLabel,
		SyncStatus:     models.SyncPending,
		CreatedOffline: true,
		UpdatedAt:      now,
	}
	digest, err := integrity.ComputeDigest(app.DigestFields())
	if err != nil {
		return models.Applicator{}, fmt.Errorf("digesting applicator %s: %w", app.ID, err)
	}
	app.Digest = digest

	mutation := models.PendingMutation{
		ID:          uuid.NewString(),
		EntityID:    app.ID,
		TreatmentID: req.TreatmentID,
		Kind:        api.MutationCreate,
		BaseVersion: 0,
		DeviceID:    e.deviceID,
		EnqueuedAt:  now,
		Change: models.ApplicatorChange{
			SerialNumber: req.SerialNumber,
			BaseStatus:   workflow.StatusSealed,
			TargetStatus: workflow.StatusSealed,
			SeedQuantity: req.SeedQuantity,
			PackageLabel: req.PackageLabel,
		},
	}

	if err := e.store.CreateLocalApplicator(ctx, app, mutation); err != nil {
		return models.Applicator{}, err
	}

	e.logger.Info(ctx, "applicator registered offline",
		"applicatorId", app.ID, "serialNumber", req.SerialNumber)
	return app, nil
}

func isTransient(err error) bool {
	return errors.Is(err, common.ErrNetworkUnavailable) || errors.Is(err, common.ErrTimeout)
}
