package treatments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/avolkov/seedtrack/internal/common"
	"github.com/avolkov/seedtrack/internal/dbx"
	"github.com/avolkov/seedtrack/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, t *models.Treatment) error {
	query :=
		`INSERT INTO treatments (id, indication, patient_ref, completed, voided)
		 VALUES ($1, $2, $3, $4, $5)
		 `

	_, err := r.db.ExecContext(ctx, query,
		t.ID, t.Indication, t.PatientRef, t.Completed, t.Voided)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Treatment, error) {
	query :=
		`SELECT id, indication, patient_ref, completed, voided FROM treatments
		 WHERE id = $1
		 `

	t := &models.Treatment{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.Indication, &t.PatientRef, &t.Completed, &t.Voided)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) Void(ctx context.Context, id string) error {
	query :=
		`UPDATE treatments SET voided = TRUE
		 WHERE id = $1
		 `

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}
