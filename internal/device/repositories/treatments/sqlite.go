// Package treatments persists local treatment copies in SQLite.
package treatments

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
	query := `INSERT INTO treatments (id, payload, nonce, server_version, downloaded_at, expires_at, voided)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload,
			nonce = excluded.nonce,
			server_version = excluded.server_version,
			downloaded_at = excluded.downloaded_at,
			expires_at = excluded.expires_at,
			voided = excluded.voided
	`
	_, err := r.db.ExecContext(ctx, query,
		row.ID, row.Payload, row.Nonce, row.ServerVersion, row.DownloadedAt, row.ExpiresAt, row.Voided)
	if err != nil {
		return fmt.Errorf("failed to upsert treatment: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Row, error) {
	query := `SELECT id, payload, nonce, server_version, downloaded_at, expires_at, voided
		FROM treatments WHERE id = ?`
	row := &Row{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&row.ID, &row.Payload, &row.Nonce, &row.ServerVersion, &row.DownloadedAt, &row.ExpiresAt, &row.Voided)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select treatment: %w", err)
	}
	return row, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*Row, error) {
	query := `SELECT id, payload, nonce, server_version, downloaded_at, expires_at, voided FROM treatments`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select treatments: %w", err)
	}
	defer rows.Close()

	var result []*Row
	for rows.Next() {
		row := &Row{}
		if err := rows.Scan(&row.ID, &row.Payload, &row.Nonce, &row.ServerVersion,
			&row.DownloadedAt, &row.ExpiresAt, &row.Voided); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM treatments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete treatment: %w", err)
	}
	return nil
}
