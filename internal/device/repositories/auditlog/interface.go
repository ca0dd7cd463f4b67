package auditlog

import "context"

// Row is one immutable audit record: the entry itself is encrypted in the
// payload blob; the applicator id stays in the clear for retrieval.
type Row struct {
	Seq          int64
	ApplicatorID string
	Payload      []byte
	Nonce        []byte
	CreatedAt    int64 // unix seconds, UTC
}

// Repository is the append-only audit trail. Rows are created, never mutated
// or deleted; RemapApplicator only rewrites the temporary id of an
// offline-created record to its server-assigned one.
type Repository interface {
	Append(ctx context.Context, row *Row) error
	ListByApplicator(ctx context.Context, applicatorID string) ([]*Row, error)
	CountByApplicator(ctx context.Context, applicatorID string) (int, error)
	ReplacePayload(ctx context.Context, seq int64, applicatorID string, payload, nonce []byte) error
	ListAll(ctx context.Context) ([]*Row, error)
}
