// Package models defines device-side data models. Domain payloads are
// persisted as AEAD ciphertext alongside their nonces; only the columns the
// sync engine needs for ordering and reconciliation stay in the clear.
package models

import (
	"time"

	"github.com/avolkov/seedtrack/internal/workflow"
)

// SyncStatus tracks where a local applicator copy stands relative to the
// remote system of record.
type SyncStatus string

const (
	SyncPending  SyncStatus = "pending"
	SyncSynced   SyncStatus = "synced"
	SyncConflict SyncStatus = "conflict"
)

// Treatment is the local copy of one clinical procedure session.
// ServerVersion, DownloadedAt and ExpiresAt come from the bundle that seeded
// this copy; local mutations are rejected once ExpiresAt has passed.
type Treatment struct {
	ID            string
	Indication    string
	PatientRef    string
	Completed     bool
	Voided        bool
	ServerVersion int64
	DownloadedAt  time.Time
	ExpiresAt     time.Time
}

// Kind derives the workflow transition map for this treatment.
func (t Treatment) Kind() workflow.Kind {
	return workflow.KindFor(t.Indication)
}

// Expired reports whether the seeding bundle can no longer be trusted for new
// local mutations.
func (t Treatment) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Applicator is the local copy of one physical device record.
type Applicator struct {
	ID           string
	TreatmentID  string
	SerialNumber string
	Status       workflow.Status
	SeedQuantity int
	PackageLabel string
	Comments     string
	Version      int64
	SyncStatus   SyncStatus
	// CreatedOffline is true while the id is client-generated and not yet
	// confirmed by the remote.
	CreatedOffline bool
	UpdatedAt      time.Time
	// Digest is the last known good content digest, refreshed on every
	// accepted local mutation and on every reconciled download.
	Digest string
}

// DigestFields returns the normalized view of the record that participates
// in integrity digests. Sync bookkeeping (digest itself, sync status) is
// excluded.
func (a Applicator) DigestFields() map[string]any {
	return map[string]any{
		"id":           a.ID,
		"treatmentId":  a.TreatmentID,
		"serialNumber": a.SerialNumber,
		"status":       string(a.Status),
		"seedQuantity": a.SeedQuantity,
		"packageLabel": a.PackageLabel,
		"comments":     a.Comments,
		"version":      a.Version,
	}
}

// ApplicatorChange is the field diff carried by a pending mutation.
// BaseStatus records what the mutation assumed; the resolver compares it
// against the remote's current status when a push is rejected.
type ApplicatorChange struct {
	SerialNumber string          `json:"serialNumber,omitempty"`
	BaseStatus   workflow.Status `json:"baseStatus"`
	TargetStatus workflow.Status `json:"targetStatus"`
	SeedQuantity int             `json:"seedQuantity"`
	PackageLabel string          `json:"packageLabel,omitempty"`
	Comments     string          `json:"comments,omitempty"`
}

// PendingMutation is a queued local change not yet acknowledged by the
// remote. Mutations are pushed in enqueue order per entity (FIFO) to
// preserve causal ordering.
type PendingMutation struct {
	ID          string
	Seq         int64
	EntityID    string
	TreatmentID string
	Kind        string
	BaseVersion int64
	DeviceID    string
	EnqueuedAt  time.Time
	Change      ApplicatorChange
}
