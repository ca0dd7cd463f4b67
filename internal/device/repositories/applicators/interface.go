package applicators

import "context"

// Row is an applicator record as stored on device. The domain payload
// (serial, status, counts, comments) lives in the encrypted blob; the
// plaintext columns exist for sync ordering and reconciliation only.
type Row struct {
	ID             string
	TreatmentID    string
	Payload        []byte
	Nonce          []byte
	Version        int64
	SyncStatus     string
	CreatedOffline bool
	Digest         string
	UpdatedAt      int64 // unix seconds, UTC
}

// Repository describes persistence for local applicator copies.
type Repository interface {
	// Upsert inserts a new applicator row or replaces an existing one by id.
	Upsert(ctx context.Context, row *Row) error

	// GetByID returns an applicator row by id.
	GetByID(ctx context.Context, id string) (*Row, error)

	// ListByTreatment returns all applicator rows for one treatment.
	ListByTreatment(ctx context.Context, treatmentID string) ([]*Row, error)

	// UpdateSyncStatus sets the sync status column without touching the payload.
	UpdateSyncStatus(ctx context.Context, id, syncStatus string) error

	// Remap rewrites a client-generated temporary id to the server-assigned
	// one and clears the created-offline flag.
	Remap(ctx context.Context, oldID, newID string, newVersion int64) error

	// DeleteByTreatment removes all applicator rows for one treatment.
	// Used only for atomic bundle replacement.
	DeleteByTreatment(ctx context.Context, treatmentID string) error
}
