// Package models defines the server-side records for the system of record.
// The server is authoritative: versions are assigned here and only here.
package models

import (
	"time"

	"github.com/avolkov/seedtrack/internal/workflow"
)

// Treatment is one clinical procedure session. Treatments are voided, never
// deleted.
type Treatment struct {
	ID         string
	Indication string
	PatientRef string
	Completed  bool
	Voided     bool
}

// Kind derives the workflow transition map for this treatment.
func (t Treatment) Kind() workflow.Kind {
	return workflow.KindFor(t.Indication)
}

// Applicator is the authoritative record of one physical device. Version
// increments on every accepted mutation; pushes carrying a stale base version
// are rejected with a conflict.
type Applicator struct {
	ID           string
	TreatmentID  string
	SerialNumber string
	Status       workflow.Status
	SeedQuantity int
	PackageLabel string
	Comments     string
	Version      int64
	UpdatedAt    time.Time
}

// AppliedMutation records the outcome of a processed mutation, keyed by the
// client-generated mutation id. A duplicate push replays this outcome instead
// of applying the mutation again.
type AppliedMutation struct {
	MutationID      string
	EntityID        string
	Accepted        bool
	NewVersion      int64
	AssignedID      string
	ConflictStatus  string
	ConflictVersion int64
	Error           string
	AppliedAt       time.Time
}
