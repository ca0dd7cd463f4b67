// Package mutations persists the device's pending mutation queue in SQLite.
package mutations

import (
	"context"
	"fmt"

	"github.com/avolkov/seedtrack/internal/dbx"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Insert(ctx context.Context, row *Row) error {
	query := `INSERT INTO pending_mutations (id, entity_id, treatment_id, kind, base_version, device_id, enqueued_at, payload, nonce)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		row.ID, row.EntityID, row.TreatmentID, row.Kind, row.BaseVersion,
		row.DeviceID, row.EnqueuedAt, row.Payload, row.Nonce)
	if err != nil {
		return fmt.Errorf("failed to enqueue mutation: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListFIFO(ctx context.Context) ([]*Row, error) {
	query := `SELECT seq, id, entity_id, treatment_id, kind, base_version, device_id, enqueued_at, payload, nonce
		FROM pending_mutations ORDER BY seq`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select mutations: %w", err)
	}
	defer rows.Close()

	var result []*Row
	for rows.Next() {
		row := &Row{}
		if err := rows.Scan(&row.Seq, &row.ID, &row.EntityID, &row.TreatmentID, &row.Kind,
			&row.BaseVersion, &row.DeviceID, &row.EnqueuedAt, &row.Payload, &row.Nonce); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM pending_mutations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete mutation: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) RemapEntity(ctx context.Context, oldEntityID, newEntityID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE pending_mutations SET entity_id = ? WHERE entity_id = ?`, newEntityID, oldEntityID)
	if err != nil {
		return fmt.Errorf("failed to remap mutation entity id: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM pending_mutations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count mutations: %w", err)
	}
	return n, nil
}
