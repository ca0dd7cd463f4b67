package applicators

import (
	"context"

	"github.com/avolkov/seedtrack/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, a *models.Applicator) error

	// GetForUpdate reads one applicator with a row lock so a concurrent push
	// for the same entity serializes behind it.
	GetForUpdate(ctx context.Context, id string) (*models.Applicator, error)

	ListByTreatment(ctx context.Context, treatmentID string) ([]*models.Applicator, error)

	// UpdateStatus applies a status change and bumps the version by one,
	// returning the new version.
	UpdateStatus(ctx context.Context, id string, status, comments string) (int64, error)

	// MaxVersionByTreatment returns the highest applicator version within a
	// treatment, 0 when the treatment has none.
	MaxVersionByTreatment(ctx context.Context, treatmentID string) (int64, error)
}
