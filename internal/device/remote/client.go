// Package remote implements the device-side client for the system of record.
// Transport failures are mapped to the common sentinel errors so the sync
// engine can tell "try again later" apart from "the data is wrong".
package remote

import (
	"context"

	"github.com/avolkov/seedtrack/internal/api"
)

// Client is the sync engine's view of the remote system of record.
type Client interface {
	// DownloadBundle fetches the offline-work snapshot for one treatment.
	DownloadBundle(ctx context.Context, treatmentID string) (*api.Bundle, error)

	// Push submits queued mutations in order and returns one outcome per
	// mutation. A duplicate mutation id replays its recorded outcome.
	Push(ctx context.Context, mutations []api.Mutation) ([]api.MutationOutcome, error)
}
