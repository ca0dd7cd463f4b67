// Package identity manages the stable device identifier. Every mutation the
// device enqueues carries this id so the remote can attribute changes and
// replay idempotent outcomes per device.
package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/avolkov/seedtrack/internal/device/repositories/metadata"
)

const metadataKey = "device_id"

// LoadOrCreate returns the persisted device id, generating and storing a new
// one on first run.
func LoadOrCreate(ctx context.Context, repo metadata.Repository) (string, error) {
	value, err := repo.Get(ctx, metadataKey)
	if err != nil {
		return "", fmt.Errorf("loading device id: %w", err)
	}
	if len(value) > 0 {
		return string(value), nil
	}

	id := uuid.NewString()
	if err := repo.Set(ctx, metadataKey, []byte(id)); err != nil {
		return "", fmt.Errorf("saving device id: %w", err)
	}
	return id, nil
}
