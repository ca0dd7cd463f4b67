package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avolkov/seedtrack/internal/device/erp"
	"github.com/avolkov/seedtrack/internal/device/models"
	"github.com/avolkov/seedtrack/internal/device/store"
	"github.com/avolkov/seedtrack/internal/device/sync"
	"github.com/avolkov/seedtrack/internal/logging"
	"github.com/avolkov/seedtrack/internal/workflow"
)

var (
	// ErrProductRecalled blocks scanning an applicator the ERP flags as
	// recalled.
	ErrProductRecalled = errors.New("product recalled")

	// ErrProductExpired blocks scanning an applicator past its expiry date.
	ErrProductExpired = errors.New("product expired")
)

// TreatmentService is the device's clinical workflow front. Every scan
// validates product metadata through the ERP gateway before the applicator
// enters the local store; the validation fails closed when metadata is
// unavailable.
type TreatmentService struct {
	store  *store.Store
	engine *sync.Engine
	erp    erp.Client
	logger logging.Logger
}

func NewTreatmentService(st *store.Store, engine *sync.Engine, gateway erp.Client, logger logging.Logger) *TreatmentService {
	return &TreatmentService{store: st, engine: engine, erp: gateway, logger: logger}
}

// ScanRequest registers a physical applicator scanned at the point of care.
type ScanRequest struct {
	TreatmentID  string
	SerialNumber string
	SeedQuantity int
	PackageLabel string
	ActorID      string
}

// Scan validates the serial number against ERP product metadata and registers
// the applicator locally under a temporary id.
func (t *TreatmentService) Scan(ctx context.Context, req ScanRequest) (models.Applicator, error) {
	meta, err := t.erp.Lookup(ctx, req.SerialNumber)
	if err != nil {
		return models.Applicator{}, fmt.Errorf("validating serial %s: %w", req.SerialNumber, err)
	}
	if meta.Recalled {
		return models.Applicator{}, fmt.Errorf("%w: serial %s, lot %s",
			ErrProductRecalled, req.SerialNumber, meta.LotNumber)
	}
	if !meta.ExpiryDate.IsZero() && time.Now().After(meta.ExpiryDate) {
		return models.Applicator{}, fmt.Errorf("%w: serial %s expired %s",
			ErrProductExpired, req.SerialNumber, meta.ExpiryDate.Format("2006-01-02"))
	}

	return t.engine.CreateLocal(ctx, sync.CreateRequest{
		TreatmentID:  req.TreatmentID,
		SerialNumber: req.SerialNumber,
		SeedQuantity: req.SeedQuantity,
		PackageLabel: req.PackageLabel,
		ActorID:      req.ActorID,
	})
}

// ChangeStatus applies one status transition to a local applicator copy.
func (t *TreatmentService) ChangeStatus(ctx context.Context, applicatorID string, target workflow.Status, comment, actorID string) error {
	return t.engine.ApplyLocal(ctx, sync.ChangeRequest{
		ApplicatorID: applicatorID,
		TargetStatus: target,
		Comment:      comment,
		ActorID:      actorID,
	})
}

// List returns all locally cached treatments with their applicators.
func (t *TreatmentService) List(ctx context.Context) ([]store.TreatmentSnapshot, error) {
	return t.store.ReadAll(ctx)
}

// Conflicts returns applicators whose divergence is waiting for admin
// adjudication.
func (t *TreatmentService) Conflicts(ctx context.Context) ([]models.Applicator, error) {
	snapshots, err := t.store.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	var conflicted []models.Applicator
	for _, s := range snapshots {
		for _, a := range s.Applicators {
			if a.SyncStatus == models.SyncConflict {
				conflicted = append(conflicted, a)
			}
		}
	}
	return conflicted, nil
}

// Audit returns the transition trail of one applicator.
func (t *TreatmentService) Audit(ctx context.Context, applicatorID string) ([]workflow.AuditLogEntry, error) {
	return t.store.AuditFor(ctx, applicatorID)
}
