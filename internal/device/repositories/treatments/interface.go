package treatments

import "context"

// Row is a treatment record as stored on device: encrypted payload plus the
// plaintext bundle bookkeeping the sync engine reads without a session key.
type Row struct {
	ID            string
	Payload       []byte
	Nonce         []byte
	ServerVersion int64
	DownloadedAt  int64 // unix seconds, UTC
	ExpiresAt     int64 // unix seconds, UTC
	Voided        bool
}

// Repository describes persistence for local treatment copies.
type Repository interface {
	// Upsert inserts a new treatment row or replaces an existing one by id.
	Upsert(ctx context.Context, row *Row) error

	// GetByID returns a treatment row by id.
	GetByID(ctx context.Context, id string) (*Row, error)

	// List returns all treatment rows.
	List(ctx context.Context) ([]*Row, error)

	// Delete removes a treatment row. Used only for atomic bundle
	// replacement; domain deletes are void flags, never row removal.
	Delete(ctx context.Context, id string) error
}
