package auditlog

import (
	"context"
	"fmt"

	"github.com/avolkov/seedtrack/internal/dbx"
	"github.com/avolkov/seedtrack/internal/workflow"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Append(ctx context.Context, entry *workflow.AuditLogEntry) error {
	query :=
		`INSERT INTO audit_log (applicator_id, previous_status, new_status, actor_id, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 `

	_, err := r.db.ExecContext(ctx, query,
		entry.ApplicatorID, string(entry.PreviousStatus), string(entry.NewStatus),
		entry.ActorID, entry.Reason, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListByApplicator(ctx context.Context, applicatorID string) ([]*workflow.AuditLogEntry, error) {
	query :=
		`SELECT applicator_id, previous_status, new_status, actor_id, reason, created_at
		 FROM audit_log
		 WHERE applicator_id = $1
		 ORDER BY id
		 `

	rows, err := r.db.QueryContext(ctx, query, applicatorID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*workflow.AuditLogEntry
	for rows.Next() {
		e := &workflow.AuditLogEntry{}
		var prev, next string
		if err := rows.Scan(&e.ApplicatorID, &prev, &next, &e.ActorID, &e.Reason, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		e.PreviousStatus = workflow.Status(prev)
		e.NewStatus = workflow.Status(next)
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) CountByApplicator(ctx context.Context, applicatorID string) (int, error) {
	query :=
		`SELECT count(*) FROM audit_log
		 WHERE applicator_id = $1
		 `

	var n int
	if err := r.db.QueryRowContext(ctx, query, applicatorID).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
