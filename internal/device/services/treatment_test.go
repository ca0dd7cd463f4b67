package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolkov/seedtrack/internal/api"
	"github.com/avolkov/seedtrack/internal/common"
	"github.com/avolkov/seedtrack/internal/device/erp"
	"github.com/avolkov/seedtrack/internal/device/models"
	"github.com/avolkov/seedtrack/internal/device/store"
	"github.com/avolkov/seedtrack/internal/device/sync"
	"github.com/avolkov/seedtrack/internal/logging"
	"github.com/avolkov/seedtrack/internal/workflow"
)

type fakeERP struct {
	metadata erp.Metadata
	err      error
}

func (f *fakeERP) Lookup(ctx context.Context, serialNumber string) (erp.Metadata, error) {
	if f.err != nil {
		return erp.Metadata{}, f.err
	}
	m := f.metadata
	m.SerialNumber = serialNumber
	return m, nil
}

type stubRemote struct{}

func (stubRemote) DownloadBundle(ctx context.Context, treatmentID string) (*api.Bundle, error) {
	return &api.Bundle{
		Treatment:     api.Treatment{ID: treatmentID, Indication: "prostate"},
		DownloadedAt:  time.Now().UTC(),
		ExpiresAt:     time.Now().Add(72 * time.Hour),
		ServerVersion: 1,
	}, nil
}

func (stubRemote) Push(ctx context.Context, mutations []api.Mutation) ([]api.MutationOutcome, error) {
	return nil, nil
}

func setupTreatmentService(t *testing.T, gateway erp.Client) (*TreatmentService, *store.Store) {
	t.Helper()
	st := setupStore(t)
	st.Keys().Init([]byte("0123456789abcdef0123456789abcdef"))

	logger := logging.NewJSON("treatment-test")
	engine := sync.NewEngine(st, stubRemote{}, "device-1", sync.Config{}, logger)
	require.NoError(t, engine.Download(context.Background(), "t1"))

	return NewTreatmentService(st, engine, gateway, logger), st
}

func TestTreatmentService_Scan(t *testing.T) {
	gateway := &fakeERP{metadata: erp.Metadata{
		ProductCode: "APL-20",
		ExpiryDate:  time.Now().Add(365 * 24 * time.Hour),
	}}
	svc, st := setupTreatmentService(t, gateway)
	ctx := context.Background()

	app, err := svc.Scan(ctx, ScanRequest{
		TreatmentID:  "t1",
		SerialNumber: "SN-1",
		SeedQuantity: 4,
		ActorID:      "nurse-7",
	})
	require.NoError(t, err)
	assert.True(t, app.CreatedOffline)
	assert.Equal(t, workflow.StatusSealed, app.Status)

	apps, err := st.ReadApplicators(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, apps, 1)
}

func TestTreatmentService_ScanRejectsRecalledProduct(t *testing.T) {
	gateway := &fakeERP{metadata: erp.Metadata{Recalled: true, LotNumber: "L-9"}}
	svc, _ := setupTreatmentService(t, gateway)

	_, err := svc.Scan(context.Background(), ScanRequest{
		TreatmentID: "t1", SerialNumber: "SN-1", ActorID: "nurse-7",
	})
	require.ErrorIs(t, err, ErrProductRecalled)
}

func TestTreatmentService_ScanRejectsExpiredProduct(t *testing.T) {
	gateway := &fakeERP{metadata: erp.Metadata{ExpiryDate: time.Now().Add(-24 * time.Hour)}}
	svc, _ := setupTreatmentService(t, gateway)

	_, err := svc.Scan(context.Background(), ScanRequest{
		TreatmentID: "t1", SerialNumber: "SN-1", ActorID: "nurse-7",
	})
	require.ErrorIs(t, err, ErrProductExpired)
}

func TestTreatmentService_ScanFailsClosedWithoutMetadata(t *testing.T) {
	gateway := &fakeERP{err: common.ErrMetadataUnavailable}
	svc, st := setupTreatmentService(t, gateway)

	_, err := svc.Scan(context.Background(), ScanRequest{
		TreatmentID: "t1", SerialNumber: "SN-1", ActorID: "nurse-7",
	})
	require.ErrorIs(t, err, common.ErrMetadataUnavailable)

	apps, err := st.ReadApplicators(context.Background(), "t1")
	require.NoError(t, err)
	assert.Empty(t, apps, "nothing is registered without validated metadata")
}

func TestTreatmentService_ChangeStatusAndAudit(t *testing.T) {
	gateway := &fakeERP{metadata: erp.Metadata{ExpiryDate: time.Now().Add(24 * time.Hour)}}
	svc, _ := setupTreatmentService(t, gateway)
	ctx := context.Background()

	app, err := svc.Scan(ctx, ScanRequest{
		TreatmentID: "t1", SerialNumber: "SN-1", SeedQuantity: 4, ActorID: "nurse-7",
	})
	require.NoError(t, err)

	require.NoError(t, svc.ChangeStatus(ctx, app.ID, workflow.StatusOpened, "", "nurse-7"))

	trail, err := svc.Audit(ctx, app.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, workflow.StatusOpened, trail[0].NewStatus)
}

func TestTreatmentService_Conflicts(t *testing.T) {
	gateway := &fakeERP{metadata: erp.Metadata{}}
	svc, st := setupTreatmentService(t, gateway)
	ctx := context.Background()

	app, err := svc.Scan(ctx, ScanRequest{
		TreatmentID: "t1", SerialNumber: "SN-1", ActorID: "nurse-7",
	})
	require.NoError(t, err)

	conflicted, err := svc.Conflicts(ctx)
	require.NoError(t, err)
	assert.Empty(t, conflicted)

	require.NoError(t, st.MarkSyncStatus(ctx, app.ID, models.SyncConflict))

	conflicted, err = svc.Conflicts(ctx)
	require.NoError(t, err)
	require.Len(t, conflicted, 1)
	assert.Equal(t, app.ID, conflicted[0].ID)
}
