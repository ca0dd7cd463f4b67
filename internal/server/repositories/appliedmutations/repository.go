package appliedmutations

import (
	"context"

	"github.com/avolkov/seedtrack/internal/server/models"
)

// Repository records the outcome of every processed mutation by its
// client-generated id. It is the idempotency ledger: a duplicate push finds
// its recorded outcome here and replays it without touching the data again.
type Repository interface {
	Get(ctx context.Context, mutationID string) (*models.AppliedMutation, error)
	Record(ctx context.Context, m *models.AppliedMutation) error
}
