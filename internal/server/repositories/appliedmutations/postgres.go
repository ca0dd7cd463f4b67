package appliedmutations

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

func (r *PostgresRepository) Get(ctx context.Context, mutationID string) (*models.AppliedMutation, error) {
	query :=
		`SELECT mutation_id, entity_id, accepted, new_version, assigned_id, conflict_status, conflict_version, error, applied_at
		 FROM applied_mutations
		 WHERE mutation_id = $1
		 `

	m := &models.AppliedMutation{}
	err := r.db.QueryRowContext(ctx, query, mutationID).Scan(
		&m.MutationID, &m.EntityID, &m.Accepted, &m.NewVersion, &m.AssignedID,
		&m.ConflictStatus, &m.ConflictVersion, &m.Error, &m.AppliedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return m, nil
}

func (r *PostgresRepository) Record(ctx context.Context, m *models.AppliedMutation) error {
	query :=
		`INSERT INTO applied_mutations (mutation_id, entity_id, accepted, new_version, assigned_id, conflict_status, conflict_version, error, applied_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		 `

	_, err := r.db.ExecContext(ctx, query,
		m.MutationID, m.EntityID, m.Accepted, m.NewVersion, m.AssignedID,
		m.ConflictStatus, m.ConflictVersion, m.Error)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
