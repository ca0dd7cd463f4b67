package sync

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolkov/seedtrack/internal/api"
	"github.com/avolkov/seedtrack/internal/common"
	"github.com/avolkov/seedtrack/internal/device/models"
	"github.com/avolkov/seedtrack/internal/device/store"
	"github.com/avolkov/seedtrack/internal/logging"
	"github.com/avolkov/seedtrack/internal/workflow"
)

type fakeRemote struct {
	bundle    *api.Bundle
	bundleErr error

	pushErrs []error // consumed first, one per attempt
	pushFn   func(mutations []api.Mutation) ([]api.MutationOutcome, error)
	pushed   [][]api.Mutation
}

func (f *fakeRemote) DownloadBundle(ctx context.Context, treatmentID string) (*api.Bundle, error) {
	if f.bundleErr != nil {
		return nil, f.bundleErr
	}
	return f.bundle, nil
}

func (f *fakeRemote) Push(ctx context.Context, mutations []api.Mutation) ([]api.MutationOutcome, error) {
	f.pushed = append(f.pushed, mutations)
	if len(f.pushErrs) > 0 {
		err := f.pushErrs[0]
		f.pushErrs = f.pushErrs[1:]
		return nil, err
	}
	return f.pushFn(mutations)
}

// acceptAll acknowledges every mutation with the next version.
func acceptAll(mutations []api.Mutation) ([]api.MutationOutcome, error) {
	outcomes := make([]api.MutationOutcome, 0, len(mutations))
	for _, m := range mutations {
		outcomes = append(outcomes, api.MutationOutcome{
			MutationID: m.ID,
			Accepted:   true,
			NewVersion: m.BaseVersion + 1,
		})
	}
	return outcomes, nil
}

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.RunMigrations(context.Background(), db))
	return db
}

func setupEngine(t *testing.T, rc *fakeRemote) (*Engine, *store.Store) {
	t.Helper()
	keys := store.NewSessionKeys()
	keys.Init([]byte("0123456789abcdef0123456789abcdef"))
	st := store.New(setupDB(t), keys, store.NoLimit{})

	cfg := Config{CallTimeout: time.Second, MaxRetries: 2, RetryBackoff: time.Millisecond}
	return NewEngine(st, rc, "device-1", cfg, logging.NewJSON("sync-test")), st
}

func testBundle(expiresAt time.Time) *api.Bundle {
	return &api.Bundle{
		Treatment: api.Treatment{ID: "t1", Indication: "prostate", PatientRef: "P-0042"},
		Applicators: []api.Applicator{
			{ID: "a1", TreatmentID: "t1", SerialNumber: "SN-1", Status: "SEALED", SeedQuantity: 4, Version: 1},
			{ID: "a2", TreatmentID: "t1", SerialNumber: "SN-2", Status: "LOADED", SeedQuantity: 6, Version: 2},
		},
		DownloadedAt:  time.Now().UTC(),
		ExpiresAt:     expiresAt,
		ServerVersion: 2,
	}
}

func seed(t *testing.T, e *Engine) {
	t.Helper()
	rcOld := e.remote
	e.remote = &fakeRemote{bundle: testBundle(time.Now().Add(72 * time.Hour))}
	require.NoError(t, e.Download(context.Background(), "t1"))
	e.remote = rcOld
}

func TestEngine_Download(t *testing.T) {
	rc := &fakeRemote{bundle: testBundle(time.Now().Add(72 * time.Hour))}
	e, st := setupEngine(t, rc)
	ctx := context.Background()

	require.NoError(t, e.Download(ctx, "t1"))
	assert.Equal(t, PhaseIdle, e.Phase())

	tr, err := st.ReadTreatment(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "prostate", tr.Indication)
	assert.Equal(t, int64(2), tr.ServerVersion)

	apps, err := st.ReadApplicators(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, apps, 2)
	for _, a := range apps {
		assert.Equal(t, models.SyncSynced, a.SyncStatus)
		assert.NotEmpty(t, a.Digest)
	}
}

func TestEngine_DownloadRejectsExpiredBundle(t *testing.T) {
	rc := &fakeRemote{bundle: testBundle(time.Now().Add(-time.Hour))}
	e, st := setupEngine(t, rc)
	ctx := context.Background()

	err := e.Download(ctx, "t1")
	require.ErrorIs(t, err, common.ErrBundleExpired)
	assert.Equal(t, PhaseErrored, e.Phase())

	_, err = st.ReadTreatment(ctx, "t1")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestEngine_DownloadRejectsVoidedTreatment(t *testing.T) {
	bundle := testBundle(time.Now().Add(72 * time.Hour))
	bundle.Treatment.Voided = true
	e, _ := setupEngine(t, &fakeRemote{bundle: bundle})

	err := e.Download(context.Background(), "t1")
	require.ErrorIs(t, err, common.ErrTreatmentVoided)
}

func TestEngine_ApplyLocal(t *testing.T) {
	e, st := setupEngine(t, &fakeRemote{})
	seed(t, e)
	ctx := context.Background()

	err := e.ApplyLocal(ctx, ChangeRequest{
		ApplicatorID: "a1",
		TargetStatus: workflow.StatusOpened,
		ActorID:      "nurse-7",
	})
	require.NoError(t, err)

	app, err := st.ReadApplicator(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusOpened, app.Status)
	assert.Equal(t, models.SyncPending, app.SyncStatus)

	pending, err := st.PendingMutations(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "a1", pending[0].EntityID)
	assert.Equal(t, workflow.StatusSealed, pending[0].Change.BaseStatus)

	n, err := st.AuditCount(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEngine_ApplyLocalRejectsInvalidTransition(t *testing.T) {
	e, st := setupEngine(t, &fakeRemote{})
	seed(t, e)
	ctx := context.Background()

	// a2 is LOADED under the three-stage workflow; OPENED is not reachable
	err := e.ApplyLocal(ctx, ChangeRequest{
		ApplicatorID: "a2",
		TargetStatus: workflow.StatusOpened,
		ActorID:      "nurse-7",
	})
	require.ErrorIs(t, err, common.ErrInvalidTransition)

	n, err := st.MutationCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestEngine_ApplyLocalRequiresComment(t *testing.T) {
	e, st := setupEngine(t, &fakeRemote{})
	seed(t, e)
	ctx := context.Background()

	err := e.ApplyLocal(ctx, ChangeRequest{
		ApplicatorID: "a2",
		TargetStatus: workflow.StatusDeploymentFailure,
		ActorID:      "nurse-7",
	})
	require.ErrorIs(t, err, common.ErrCommentRequired)

	err = e.ApplyLocal(ctx, ChangeRequest{
		ApplicatorID: "a2",
		TargetStatus: workflow.StatusDeploymentFailure,
		Comment:      "seed carrier jammed during deployment",
		ActorID:      "nurse-7",
	})
	require.NoError(t, err)

	app, err := st.ReadApplicator(ctx, "a2")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusDeploymentFailure, app.Status)
	assert.Equal(t, "seed carrier jammed during deployment", app.Comments)
}

func TestEngine_ApplyLocalRejectsExpiredBundle(t *testing.T) {
	e, _ := setupEngine(t, &fakeRemote{})
	seed(t, e)

	e.now = func() time.Time { return time.Now().Add(100 * time.Hour) }

	err := e.ApplyLocal(context.Background(), ChangeRequest{
		ApplicatorID: "a1",
		TargetStatus: workflow.StatusOpened,
		ActorID:      "nurse-7",
	})
	require.ErrorIs(t, err, common.ErrBundleExpired)
}

func TestEngine_PushAccepted(t *testing.T) {
	rc := &fakeRemote{pushFn: acceptAll}
	e, st := setupEngine(t, rc)
	seed(t, e)
	ctx := context.Background()

	require.NoError(t, e.ApplyLocal(ctx, ChangeRequest{
		ApplicatorID: "a1", TargetStatus: workflow.StatusOpened, ActorID: "nurse-7",
	}))

	report, err := e.Push(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Pushed)
	assert.Equal(t, 1, report.Accepted)
	assert.Empty(t, report.Blocked)

	app, err := st.ReadApplicator(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), app.Version)
	assert.Equal(t, models.SyncSynced, app.SyncStatus)

	n, err := st.MutationCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestEngine_PushRetriesTransientFailures(t *testing.T) {
	rc := &fakeRemote{
		pushErrs: []error{common.ErrNetworkUnavailable},
		pushFn:   acceptAll,
	}
	e, _ := setupEngine(t, rc)
	seed(t, e)
	ctx := context.Background()

	require.NoError(t, e.ApplyLocal(ctx, ChangeRequest{
		ApplicatorID: "a1", TargetStatus: workflow.StatusOpened, ActorID: "nurse-7",
	}))

	report, err := e.Push(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Accepted)
	assert.Len(t, rc.pushed, 2)
}

func TestEngine_PushLeavesQueueOnExhaustedRetries(t *testing.T) {
	rc := &fakeRemote{
		pushErrs: []error{common.ErrTimeout, common.ErrTimeout, common.ErrTimeout},
	}
	e, st := setupEngine(t, rc)
	seed(t, e)
	ctx := context.Background()

	require.NoError(t, e.ApplyLocal(ctx, ChangeRequest{
		ApplicatorID: "a1", TargetStatus: workflow.StatusOpened, ActorID: "nurse-7",
	}))

	_, err := e.Push(ctx)
	require.ErrorIs(t, err, common.ErrTimeout)
	assert.Equal(t, PhaseErrored, e.Phase())

	n, err := st.MutationCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "mutation must stay queued")
}

func TestEngine_PushConflictBlockedForAdmin(t *testing.T) {
	// remote moved a2 to DISPOSED while this device also disposed it from a
	// different prior state
	rc := &fakeRemote{pushFn: func(mutations []api.Mutation) ([]api.MutationOutcome, error) {
		return []api.MutationOutcome{{
			MutationID: mutations[0].ID,
			Conflict:   &api.Conflict{RemoteStatus: "DISPOSED", RemoteVersion: 9},
		}}, nil
	}}
	e, st := setupEngine(t, rc)
	seed(t, e)
	ctx := context.Background()

	require.NoError(t, e.ApplyLocal(ctx, ChangeRequest{
		ApplicatorID: "a2",
		TargetStatus: workflow.StatusDeploymentFailure,
		Comment:      "carrier jammed",
		ActorID:      "nurse-7",
	}))

	report, err := e.Push(ctx)
	require.NoError(t, err)
	require.Len(t, report.Blocked, 1)
	assert.True(t, report.AdminRequired())

	app, err := st.ReadApplicator(ctx, "a2")
	require.NoError(t, err)
	assert.Equal(t, models.SyncConflict, app.SyncStatus)
	assert.Equal(t, workflow.StatusDeploymentFailure, app.Status, "local copy must not be overwritten")

	n, err := st.MutationCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "blocked mutation stays queued for adjudication")
}

func TestEngine_PushConflictAcceptsRemoteMetadata(t *testing.T) {
	rc := &fakeRemote{pushFn: func(mutations []api.Mutation) ([]api.MutationOutcome, error) {
		return []api.MutationOutcome{{
			MutationID: mutations[0].ID,
			Conflict:   &api.Conflict{RemoteStatus: "OPENED", RemoteVersion: 5},
		}}, nil
	}}
	e, st := setupEngine(t, rc)
	seed(t, e)
	ctx := context.Background()

	require.NoError(t, e.ApplyLocal(ctx, ChangeRequest{
		ApplicatorID: "a1", TargetStatus: workflow.StatusOpened, ActorID: "nurse-7",
	}))

	report, err := e.Push(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Overwritten)
	assert.Empty(t, report.Blocked)

	app, err := st.ReadApplicator(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusOpened, app.Status)
	assert.Equal(t, int64(5), app.Version)
	assert.Equal(t, models.SyncSynced, app.SyncStatus)

	n, err := st.MutationCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestEngine_PushRemapsOfflineCreatedID(t *testing.T) {
	rc := &fakeRemote{pushFn: func(mutations []api.Mutation) ([]api.MutationOutcome, error) {
		outcomes := make([]api.MutationOutcome, 0, len(mutations))
		for _, m := range mutations {
			o := api.MutationOutcome{MutationID: m.ID, Accepted: true, NewVersion: m.BaseVersion + 1}
			if m.Kind == api.MutationCreate {
				o.AssignedID = "srv-100"
				o.NewVersion = 1
			}
			outcomes = append(outcomes, o)
		}
		return outcomes, nil
	}}
	e, st := setupEngine(t, rc)
	seed(t, e)
	ctx := context.Background()

	created, err := e.CreateLocal(ctx, CreateRequest{
		TreatmentID:  "t1",
		SerialNumber: "SN-9",
		SeedQuantity: 3,
		ActorID:      "nurse-7",
	})
	require.NoError(t, err)
	assert.True(t, created.CreatedOffline)

	report, err := e.Push(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Remapped)
	assert.Equal(t, 1, report.Accepted)

	_, err = st.ReadApplicator(ctx, created.ID)
	require.ErrorIs(t, err, common.ErrNotFound)

	app, err := st.ReadApplicator(ctx, "srv-100")
	require.NoError(t, err)
	assert.False(t, app.CreatedOffline)
	assert.Equal(t, int64(1), app.Version)
	assert.Equal(t, models.SyncSynced, app.SyncStatus)
	assert.Equal(t, "SN-9", app.SerialNumber)
}

func TestEngine_CreateLocalRejectsNegativeSeedQuantity(t *testing.T) {
	e, st := setupEngine(t, &fakeRemote{})
	seed(t, e)
	ctx := context.Background()

	_, err := e.CreateLocal(ctx, CreateRequest{
		TreatmentID:  "t1",
		SerialNumber: "SN-9",
		SeedQuantity: -1,
		ActorID:      "nurse-7",
	})
	require.Error(t, err)

	n, err := st.MutationCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestEngine_PushBlocksDivergedLocalCopy(t *testing.T) {
	rc := &fakeRemote{pushFn: acceptAll}
	e, st := setupEngine(t, rc)
	seed(t, e)
	ctx := context.Background()

	require.NoError(t, e.ApplyLocal(ctx, ChangeRequest{
		ApplicatorID: "a1", TargetStatus: workflow.StatusOpened, ActorID: "nurse-7",
	}))

	// corrupt the local copy behind the engine's back
	app, err := st.ReadApplicator(ctx, "a1")
	require.NoError(t, err)
	app.SeedQuantity = 99
	require.NoError(t, st.SaveApplicators(ctx, []models.Applicator{app}))

	report, err := e.Push(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Pushed)
	require.Len(t, report.Blocked, 1)
	require.ErrorIs(t, report.Blocked[0].Err, common.ErrLocalDivergence)
	assert.Empty(t, rc.pushed)

	n, err := st.MutationCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEngine_PushEmptyQueueIsNoop(t *testing.T) {
	rc := &fakeRemote{pushFn: acceptAll}
	e, _ := setupEngine(t, rc)
	seed(t, e)

	report, err := e.Push(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Pushed)
	assert.Empty(t, rc.pushed)
}
