package treatments

import (
	"context"

	"github.com/avolkov/seedtrack/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, t *models.Treatment) error
	GetByID(ctx context.Context, id string) (*models.Treatment, error)
	Void(ctx context.Context, id string) error
}
