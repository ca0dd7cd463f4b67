package applicators

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/avolkov/seedtrack/internal/common"
	"github.com/avolkov/seedtrack/internal/dbx"
	"github.com/avolkov/seedtrack/internal/server/models"
	"github.com/avolkov/seedtrack/internal/workflow"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, a *models.Applicator) error {
	query :=
		`INSERT INTO applicators (id, treatment_id, serial_number, status, seed_quantity, package_label, comments, version, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		 `

	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.TreatmentID, a.SerialNumber, string(a.Status),
		a.SeedQuantity, a.PackageLabel, a.Comments, a.Version)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, id string) (*models.Applicator, error) {
	query :=
		`SELECT id, treatment_id, serial_number, status, seed_quantity, package_label, comments, version, updated_at
		 FROM applicators
		 WHERE id = $1
		 FOR UPDATE
		 `

	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) ListByTreatment(ctx context.Context, treatmentID string) ([]*models.Applicator, error) {
	query :=
		`SELECT id, treatment_id, serial_number, status, seed_quantity, package_label, comments, version, updated_at
		 FROM applicators
		 WHERE treatment_id = $1
		 ORDER BY id
		 `

	rows, err := r.db.QueryContext(ctx, query, treatmentID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Applicator
	for rows.Next() {
		a := &models.Applicator{}
		var status string
		if err := rows.Scan(&a.ID, &a.TreatmentID, &a.SerialNumber, &status,
			&a.SeedQuantity, &a.PackageLabel, &a.Comments, &a.Version, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		a.Status = workflow.Status(status)
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status, comments string) (int64, error) {
	query :=
		`UPDATE applicators
		 SET status = $2, comments = $3, version = version + 1, updated_at = now()
		 WHERE id = $1
		 RETURNING version
		 `

	var version int64
	err := r.db.QueryRowContext(ctx, query, id, status, comments).Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return version, nil
}

func (r *PostgresRepository) MaxVersionByTreatment(ctx context.Context, treatmentID string) (int64, error) {
	query :=
		`SELECT COALESCE(MAX(version), 0) FROM applicators
		 WHERE treatment_id = $1
		 `

	var version int64
	if err := r.db.QueryRowContext(ctx, query, treatmentID).Scan(&version); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return version, nil
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.Applicator, error) {
	a := &models.Applicator{}
	var status string
	err := row.Scan(&a.ID, &a.TreatmentID, &a.SerialNumber, &status,
		&a.SeedQuantity, &a.PackageLabel, &a.Comments, &a.Version, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	a.Status = workflow.Status(status)
	return a, nil
}
