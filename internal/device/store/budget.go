package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/avolkov/seedtrack/internal/common"
)

// Budget is consulted before every store write. A failed check aborts the
// write with common.ErrInsufficientStorage before anything is persisted.
type Budget interface {
	Check(ctx context.Context, addBytes int64) error
}

// FileBudget caps the on-disk size of the store database file.
type FileBudget struct {
	Path     string
	MaxBytes int64
}

func (b *FileBudget) Check(ctx context.Context, addBytes int64) error {
	var size int64
	info, err := os.Stat(b.Path)
	switch {
	case err == nil:
		size = info.Size()
	case errors.Is(err, fs.ErrNotExist):
		// no file yet, nothing used
	default:
		return fmt.Errorf("storage budget stat: %w", err)
	}

	if size+addBytes > b.MaxBytes {
		return fmt.Errorf("%w: %d of %d bytes used, write needs %d more",
			common.ErrInsufficientStorage, size, b.MaxBytes, addBytes)
	}
	return nil
}

// NoLimit is a Budget that always passes. Used for in-memory databases and
// tests.
type NoLimit struct{}

func (NoLimit) Check(ctx context.Context, addBytes int64) error { return nil }
