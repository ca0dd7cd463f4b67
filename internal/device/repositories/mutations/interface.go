package mutations

import "context"

// Row is a queued local change awaiting acknowledgment by the remote. Seq is
// assigned by the database and fixes the push order (FIFO per entity). The
// field diff is encrypted in the payload blob.
type Row struct {
	Seq         int64
	ID          string
	EntityID    string
	TreatmentID string
	Kind        string
	BaseVersion int64
	DeviceID    string
	EnqueuedAt  int64 // unix seconds, UTC
	Payload     []byte
	Nonce       []byte
}

// Repository describes the pending mutation queue.
type Repository interface {
	// Insert appends a mutation to the queue.
	Insert(ctx context.Context, row *Row) error

	// ListFIFO returns all queued mutations in enqueue order.
	ListFIFO(ctx context.Context) ([]*Row, error)

	// DeleteByID removes an acknowledged mutation from the queue.
	DeleteByID(ctx context.Context, id string) error

	// RemapEntity rewrites the entity id on queued mutations after the
	// remote assigned a permanent id to an offline-created record.
	RemapEntity(ctx context.Context, oldEntityID, newEntityID string) error

	// Count returns the queue depth.
	Count(ctx context.Context) (int, error)
}
