// Package auditlog persists the append-only status transition trail in SQLite.
package auditlog

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

func (r *SQLiteRepository) Append(ctx context.Context, row *Row) error {
	query := `INSERT INTO audit_log (applicator_id, payload, nonce, created_at) VALUES (?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, row.ApplicatorID, row.Payload, row.Nonce, row.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListByApplicator(ctx context.Context, applicatorID string) ([]*Row, error) {
	query := `SELECT seq, applicator_id, payload, nonce, created_at
		FROM audit_log WHERE applicator_id = ? ORDER BY seq`
	return r.list(ctx, query, applicatorID)
}

func (r *SQLiteRepository) ListAll(ctx context.Context) ([]*Row, error) {
	query := `SELECT seq, applicator_id, payload, nonce, created_at FROM audit_log ORDER BY seq`
	return r.list(ctx, query)
}

func (r *SQLiteRepository) list(ctx context.Context, query string, args ...any) ([]*Row, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select audit entries: %w", err)
	}
	defer rows.Close()

	var result []*Row
	for rows.Next() {
		row := &Row{}
		if err := rows.Scan(&row.Seq, &row.ApplicatorID, &row.Payload, &row.Nonce, &row.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) CountByApplicator(ctx context.Context, applicatorID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM audit_log WHERE applicator_id = ?`, applicatorID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit entries: %w", err)
	}
	return n, nil
}

// ReplacePayload rewrites one row's applicator id and re-encrypted payload.
// Only id remapping may call this; entry contents are never altered.
func (r *SQLiteRepository) ReplacePayload(ctx context.Context, seq int64, applicatorID string, payload, nonce []byte) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE audit_log SET applicator_id = ?, payload = ?, nonce = ? WHERE seq = ?`,
		applicatorID, payload, nonce, seq)
	if err != nil {
		return fmt.Errorf("failed to remap audit entry: %w", err)
	}
	return nil
}
