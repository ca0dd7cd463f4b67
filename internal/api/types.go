// Package api defines the JSON wire contract between the device sync engine
// and the remote system of record. Field names and status strings are a
// versioned contract; changing them requires a coordinated release.
package api

import "time"

// Treatment is one clinical procedure session for one patient visit.
type Treatment struct {
	ID         string `json:"id"`
	Indication string `json:"indication"`
	PatientRef string `json:"patientRef"`
	Completed  bool   `json:"completed"`
	Voided     bool   `json:"voided"`
}

// Applicator is the authoritative remote copy of one physical device record.
type Applicator struct {
	ID           string `json:"id"`
	TreatmentID  string `json:"treatmentId"`
	SerialNumber string `json:"serialNumber"`
	Status       string `json:"status"`
	SeedQuantity int    `json:"seedQuantity"`
	PackageLabel string `json:"packageLabel,omitempty"`
	Comments     string `json:"comments,omitempty"`
	Version      int64  `json:"version"`
}

// Bundle is a downloaded offline-work snapshot of a treatment and its
// applicators.
type Bundle struct {
	Treatment     Treatment    `json:"treatment"`
	Applicators   []Applicator `json:"applicators"`
	DownloadedAt  time.Time    `json:"downloadedAt"`
	ExpiresAt     time.Time    `json:"expiresAt"`
	ServerVersion int64        `json:"serverVersion"`
}

type DownloadBundleRequest struct {
	TreatmentID string `json:"treatmentId"`
	DeviceID    string `json:"deviceId"`
}

type DownloadBundleResponse struct {
	Bundle Bundle `json:"bundle"`
}

// Mutation kinds.
const (
	MutationCreate = "create"
	MutationUpdate = "update"
)

// Mutation is one queued local change pushed to the remote. The mutation id
// is client-generated and is the idempotency key: pushing the same mutation
// twice replays the recorded outcome instead of applying it again.
type Mutation struct {
	ID           string    `json:"id"`
	EntityID     string    `json:"entityId"`
	TreatmentID  string    `json:"treatmentId"`
	Kind         string    `json:"kind"`
	BaseVersion  int64     `json:"baseVersion"`
	DeviceID     string    `json:"deviceId"`
	EnqueuedAt   time.Time `json:"enqueuedAt"`
	SerialNumber string    `json:"serialNumber,omitempty"`
	BaseStatus   string    `json:"baseStatus"`
	TargetStatus string    `json:"targetStatus"`
	SeedQuantity int       `json:"seedQuantity"`
	PackageLabel string    `json:"packageLabel,omitempty"`
	Comments     string    `json:"comments,omitempty"`
}

// Conflict reports the remote's authoritative state when a push is rejected
// on a version mismatch.
type Conflict struct {
	RemoteStatus  string `json:"remoteStatus"`
	RemoteVersion int64  `json:"remoteVersion"`
}

// MutationOutcome is the per-mutation result of a push. Exactly one of
// Accepted or Conflict describes the result; AssignedID is set when the
// remote assigned a permanent id to an offline-created record.
type MutationOutcome struct {
	MutationID string    `json:"mutationId"`
	Accepted   bool      `json:"accepted"`
	NewVersion int64     `json:"newVersion,omitempty"`
	AssignedID string    `json:"assignedId,omitempty"`
	Conflict   *Conflict `json:"conflict,omitempty"`
	Error      string    `json:"error,omitempty"`
}

type PushRequest struct {
	DeviceID  string     `json:"deviceId"`
	Mutations []Mutation `json:"mutations"`
}

type PushResponse struct {
	Outcomes []MutationOutcome `json:"outcomes"`
}
