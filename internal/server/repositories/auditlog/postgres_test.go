package auditlog

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/avolkov/seedtrack/internal/workflow"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestAppend_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`INSERT INTO audit_log \(applicator_id, previous_status, new_status, actor_id, reason, created_at\)`)

	ts := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec(q.String()).
		WithArgs("a1", "SEALED", "OPENED", "nurse-1", "", ts).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Append(context.Background(), &workflow.AuditLogEntry{
		ApplicatorID:   "a1",
		PreviousStatus: workflow.StatusSealed,
		NewStatus:      workflow.StatusOpened,
		ActorID:        "nurse-1",
		Timestamp:      ts,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAppend_DBExecError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`INSERT INTO audit_log`)

	mock.ExpectExec(q.String()).
		WillReturnError(errors.New("db is down"))

	err := repo.Append(context.Background(), &workflow.AuditLogEntry{ApplicatorID: "a1"})
	if err == nil || !regexp.MustCompile(`db error: .*db is down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestListByApplicator_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`SELECT applicator_id, previous_status, new_status, actor_id, reason, created_at\s+FROM audit_log\s+WHERE applicator_id = \$1\s+ORDER BY id`)

	ts := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"applicator_id", "previous_status", "new_status", "actor_id", "reason", "created_at",
	}).
		AddRow("a1", "SEALED", "OPENED", "nurse-1", "", ts).
		AddRow("a1", "OPENED", "FAULTY", "nurse-2", "seal damaged", ts.Add(time.Hour))

	mock.ExpectQuery(q.String()).
		WithArgs("a1").
		WillReturnRows(rows)

	got, err := repo.ListByApplicator(context.Background(), "a1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 entries, got %d", len(got))
	}
	if got[0].NewStatus != workflow.StatusOpened {
		t.Fatalf("unexpected first entry: %+v", got[0])
	}
	if got[1].NewStatus != workflow.StatusFaulty || got[1].Reason != "seal damaged" {
		t.Fatalf("unexpected second entry: %+v", got[1])
	}
}

func TestListByApplicator_RowsErr(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`SELECT .* FROM audit_log\s+WHERE applicator_id = \$1`)

	rows := sqlmock.NewRows([]string{
		"applicator_id", "previous_status", "new_status", "actor_id", "reason", "created_at",
	}).
		AddRow("a1", "SEALED", "OPENED", "nurse-1", "", time.Now()).
		RowError(0, errors.New("row-err"))

	mock.ExpectQuery(q.String()).
		WithArgs("a1").
		WillReturnRows(rows)

	_, err := repo.ListByApplicator(context.Background(), "a1")
	if err == nil || !regexp.MustCompile(`db error: .*row-err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped rows error, got %v", err)
	}
}

func TestCountByApplicator(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`SELECT count\(\*\) FROM audit_log\s+WHERE applicator_id = \$1`)

	mock.ExpectQuery(q.String()).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := repo.CountByApplicator(context.Background(), "a1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Fatalf("want 3, got %d", n)
	}
}
