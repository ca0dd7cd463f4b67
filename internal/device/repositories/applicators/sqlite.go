// Package applicators persists local applicator copies in SQLite.
package applicators

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/avolkov/seedtrack/internal/common"
	"github.com/avolkov/seedtrack/internal/dbx"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Upsert(ctx context.Context, row *Row) error {
	query := `INSERT INTO applicators (id, treatment_id, payload, nonce, version, sync_status, created_offline, digest, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload,
			nonce = excluded.nonce,
			version = excluded.version,
			sync_status = excluded.sync_status,
			created_offline = excluded.created_offline,
			digest = excluded.digest,
			updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		row.ID, row.TreatmentID, row.Payload, row.Nonce, row.Version,
		row.SyncStatus, row.CreatedOffline, row.Digest, row.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert applicator: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Row, error) {
	query := `SELECT id, treatment_id, payload, nonce, version, sync_status, created_offline, digest, updated_at
		FROM applicators WHERE id = ?`
	row := &Row{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&row.ID, &row.TreatmentID, &row.Payload, &row.Nonce, &row.Version,
		&row.SyncStatus, &row.CreatedOffline, &row.Digest, &row.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select applicator: %w", err)
	}
	return row, nil
}

func (r *SQLiteRepository) ListByTreatment(ctx context.Context, treatmentID string) ([]*Row, error) {
	query := `SELECT id, treatment_id, payload, nonce, version, sync_status, created_offline, digest, updated_at
		FROM applicators WHERE treatment_id = ? ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, treatmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to select applicators: %w", err)
	}
	defer rows.Close()

	var result []*Row
	for rows.Next() {
		row := &Row{}
		if err := rows.Scan(&row.ID, &row.TreatmentID, &row.Payload, &row.Nonce, &row.Version,
			&row.SyncStatus, &row.CreatedOffline, &row.Digest, &row.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) UpdateSyncStatus(ctx context.Context, id, syncStatus string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE applicators SET sync_status = ? WHERE id = ?`, syncStatus, id)
	if err != nil {
		return fmt.Errorf("failed to update sync status: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return fmt.Errorf("update sync status for %s: %w", id, common.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) Remap(ctx context.Context, oldID, newID string, newVersion int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE applicators SET id = ?, version = ?, created_offline = 0 WHERE id = ?`,
		newID, newVersion, oldID)
	if err != nil {
		return fmt.Errorf("failed to remap applicator id: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return fmt.Errorf("remap applicator %s: %w", oldID, common.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) DeleteByTreatment(ctx context.Context, treatmentID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM applicators WHERE treatment_id = ?`, treatmentID)
	if err != nil {
		return fmt.Errorf("failed to delete applicators: %w", err)
	}
	return nil
}
