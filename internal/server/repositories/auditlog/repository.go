package auditlog

import (
	"context"

	"github.com/avolkov/seedtrack/internal/workflow"
)

// Repository is the server's append-only transition trail. Rows are created,
// never mutated or deleted.
type Repository interface {
	Append(ctx context.Context, entry *workflow.AuditLogEntry) error
	ListByApplicator(ctx context.Context, applicatorID string) ([]*workflow.AuditLogEntry, error)
	CountByApplicator(ctx context.Context, applicatorID string) (int, error)
}
