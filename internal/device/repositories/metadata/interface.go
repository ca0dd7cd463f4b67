package metadata

import "context"

// Repository is a small key/value blob store for device-level facts that must
// survive restarts: device identity, key derivation salt, session verifier.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
	Clear(ctx context.Context) error
}
