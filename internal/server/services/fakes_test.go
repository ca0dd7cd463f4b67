package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/avolkov/seedtrack/internal/common"
	"github.com/avolkov/seedtrack/internal/dbx"
	"github.com/avolkov/seedtrack/internal/logging"
	"github.com/avolkov/seedtrack/internal/server/models"
	"github.com/avolkov/seedtrack/internal/workflow"

	_ "modernc.org/sqlite"
)

type fakeTreatments struct {
	byID map[string]*models.Treatment
}

func (f *fakeTreatments) Create(ctx context.Context, t *models.Treatment) error {
	f.byID[t.ID] = t
	return nil
}

func (f *fakeTreatments) GetByID(ctx context.Context, id string) (*models.Treatment, error) {
	t, ok := f.byID[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	copied := *t
	return &copied, nil
}

func (f *fakeTreatments) Void(ctx context.Context, id string) error {
	t, ok := f.byID[id]
	if !ok {
		return common.ErrNotFound
	}
	t.Voided = true
	return nil
}

type fakeApplicators struct {
	byID map[string]*models.Applicator
}

func (f *fakeApplicators) Create(ctx context.Context, a *models.Applicator) error {
	copied := *a
	f.byID[a.ID] = &copied
	return nil
}

func (f *fakeApplicators) GetForUpdate(ctx context.Context, id string) (*models.Applicator, error) {
	a, ok := f.byID[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	copied := *a
	return &copied, nil
}

func (f *fakeApplicators) ListByTreatment(ctx context.Context, treatmentID string) ([]*models.Applicator, error) {
	var result []*models.Applicator
	for _, a := range f.byID {
		if a.TreatmentID == treatmentID {
			copied := *a
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (f *fakeApplicators) UpdateStatus(ctx context.Context, id string, status, comments string) (int64, error) {
	a, ok := f.byID[id]
	if !ok {
		return 0, common.ErrNotFound
	}
	a.Status = workflow.Status(status)
	a.Comments = comments
	a.Version++
	return a.Version, nil
}

func (f *fakeApplicators) MaxVersionByTreatment(ctx context.Context, treatmentID string) (int64, error) {
	var max int64
	for _, a := range f.byID {
		if a.TreatmentID == treatmentID && a.Version > max {
			max = a.Version
		}
	}
	return max, nil
}

type fakeAudit struct {
	entries []*workflow.AuditLogEntry
}

func (f *fakeAudit) Append(ctx context.Context, entry *workflow.AuditLogEntry) error {
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAudit) ListByApplicator(ctx context.Context, applicatorID string) ([]*workflow.AuditLogEntry, error) {
	var result []*workflow.AuditLogEntry
	for _, e := range f.entries {
		if e.ApplicatorID == applicatorID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (f *fakeAudit) CountByApplicator(ctx context.Context, applicatorID string) (int, error) {
	entries, _ := f.ListByApplicator(ctx, applicatorID)
	return len(entries), nil
}

type fakeApplied struct {
	byID map[string]*models.AppliedMutation
}

func (f *fakeApplied) Get(ctx context.Context, mutationID string) (*models.AppliedMutation, error) {
	m, ok := f.byID[mutationID]
	if !ok {
		return nil, common.ErrNotFound
	}
	return m, nil
}

func (f *fakeApplied) Record(ctx context.Context, m *models.AppliedMutation) error {
	f.byID[m.MutationID] = m
	return nil
}

type fixture struct {
	treatments  *fakeTreatments
	applicators *fakeApplicators
	audit       *fakeAudit
	applied     *fakeApplied
	db          *sql.DB
}

// newFixture wires fake repositories behind the services. The sqlite handle
// only backs transaction begin/commit mechanics.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	return &fixture{
		treatments:  &fakeTreatments{byID: map[string]*models.Treatment{}},
		applicators: &fakeApplicators{byID: map[string]*models.Applicator{}},
		audit:       &fakeAudit{},
		applied:     &fakeApplied{byID: map[string]*models.AppliedMutation{}},
		db:          db,
	}
}

func (f *fixture) repoSet(dbx.DBTX) RepoSet {
	return RepoSet{
		Treatments:  f.treatments,
		Applicators: f.applicators,
		Audit:       f.audit,
		Applied:     f.applied,
	}
}

func (f *fixture) pushService() *PushService {
	s := NewPushService(f.db, logging.NewJSON("push-test"))
	s.repos = f.repoSet
	return s
}

func (f *fixture) bundleService(ttl time.Duration) *BundleService {
	s := NewBundleService(f.db, ttl, logging.NewJSON("bundle-test"))
	s.repos = f.repoSet
	return s
}

func (f *fixture) seedTreatment(id, indication string) {
	f.treatments.byID[id] = &models.Treatment{ID: id, Indication: indication, PatientRef: "P-1"}
}

func (f *fixture) seedApplicator(id, treatmentID string, status workflow.Status, version int64) {
	f.applicators.byID[id] = &models.Applicator{
		ID:           id,
		TreatmentID:  treatmentID,
		SerialNumber: "SN-" + id,
		Status:       status,
		SeedQuantity: 4,
		Version:      version,
	}
}
