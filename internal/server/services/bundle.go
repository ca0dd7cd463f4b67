package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/avolkov/seedtrack/internal/api"
	"github.com/avolkov/seedtrack/internal/common"
	"github.com/avolkov/seedtrack/internal/dbx"
	"github.com/avolkov/seedtrack/internal/logging"
)

// DefaultBundleTTL bounds how long a downloaded bundle may seed local
// mutations.
const DefaultBundleTTL = 72 * time.Hour

// BundleService assembles offline-work snapshots of a treatment.
type BundleService struct {
	db     *sql.DB
	repos  func(dbx.DBTX) RepoSet
	ttl    time.Duration
	logger logging.Logger
	now    func() time.Time
}

func NewBundleService(db *sql.DB, ttl time.Duration, logger logging.Logger) *BundleService {
	if ttl <= 0 {
		ttl = DefaultBundleTTL
	}
	return &BundleService{
		db:     db,
		repos:  PostgresRepoSet,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Build returns the current snapshot of a treatment and its applicators. A
// voided treatment is never bundled.
func (s *BundleService) Build(ctx context.Context, treatmentID, deviceID string) (*api.Bundle, error) {
	repos := s.repos(s.db)

	t, err := repos.Treatments.GetByID(ctx, treatmentID)
	if err != nil {
		return nil, err
	}
	if t.Voided {
		return nil, fmt.Errorf("%w: treatment %s", common.ErrTreatmentVoided, treatmentID)
	}

	apps, err := repos.Applicators.ListByTreatment(ctx, treatmentID)
	if err != nil {
		return nil, err
	}
	maxVersion, err := repos.Applicators.MaxVersionByTreatment(ctx, treatmentID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	bundle := &api.Bundle{
		Treatment: api.Treatment{
			ID:         t.ID,
			Indication: t.Indication,
			PatientRef: t.PatientRef,
			Completed:  t.Completed,
			Voided:     t.Voided,
		},
		Applicators:   make([]api.Applicator, 0, len(apps)),
		DownloadedAt:  now,
		ExpiresAt:     now.Add(s.ttl),
		ServerVersion: maxVersion,
	}
	for _, a := range apps {
		bundle.Applicators = append(bundle.Applicators, api.Applicator{
			ID:           a.ID,
			TreatmentID:  a.TreatmentID,
			SerialNumber: a.SerialNumber,
			Status:       string(a.Status),
			SeedQuantity: a.SeedQuantity,
			PackageLabel: a.PackageLabel,
			Comments:     a.Comments,
			Version:      a.Version,
		})
	}

	s.logger.Info(ctx, "bundle built",
		"treatmentId", treatmentID, "deviceId", deviceID, "applicators", len(apps))
	return bundle, nil
}
