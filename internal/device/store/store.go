// Package store implements the encrypted device-local store. All domain
// payloads are encrypted at rest with the session key; writes require a
// derived key and a passing storage-budget check, and multi-record updates
// are transactional: a write either lands whole or not at all.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/avolkov/seedtrack/internal/cryptox"
	"github.com/avolkov/seedtrack/internal/dbx"
	"github.com/avolkov/seedtrack/internal/device/models"
	"github.com/avolkov/seedtrack/internal/device/repositories/applicators"
	"github.com/avolkov/seedtrack/internal/device/repositories/metadata"
	"github.com/avolkov/seedtrack/internal/device/repositories/treatments"
	"github.com/avolkov/seedtrack/internal/workflow"
)

// Store is the only mutable shared resource on the device. All local
// mutations are serialized through it by the sync engine.
type Store struct {
	db     *sql.DB
	keys   *SessionKeys
	budget Budget
}

func New(db *sql.DB, keys *SessionKeys, budget Budget) *Store {
	return &Store{db: db, keys: keys, budget: budget}
}

// IsEncryptionReady lets callers probe before attempting a write.
func (s *Store) IsEncryptionReady() bool {
	return s.keys.Ready()
}

// Keys exposes the session key guard for session lifecycle management.
func (s *Store) Keys() *SessionKeys {
	return s.keys
}

// Metadata returns the plaintext key/value repository (device id, salt,
// verifier). Metadata is the one table holding no clinical payloads.
func (s *Store) Metadata() metadata.Repository {
	return metadata.NewSQLiteRepository(s.db)
}

// TreatmentSnapshot pairs a treatment with its applicators.
type TreatmentSnapshot struct {
	Treatment   models.Treatment
	Applicators []models.Applicator
}

// treatmentPayload is the encrypted portion of a treatment row.
type treatmentPayload struct {
	Indication string `json:"indication"`
	PatientRef string `json:"patientRef"`
	Completed  bool   `json:"completed"`
}

// applicatorPayload is the encrypted portion of an applicator row.
type applicatorPayload struct {
	SerialNumber string          `json:"serialNumber"`
	Status       workflow.Status `json:"status"`
	SeedQuantity int             `json:"seedQuantity"`
	PackageLabel string          `json:"packageLabel,omitempty"`
	Comments     string          `json:"comments,omitempty"`
}

func (s *Store) checkWrite(ctx context.Context, estBytes int64) error {
	if !s.keys.Ready() {
		_, err := s.keys.Key()
		return err
	}
	return s.budget.Check(ctx, estBytes)
}

func (s *Store) sealTreatment(t models.Treatment) (*treatments.Row, error) {
	key, err := s.keys.Key()
	if err != nil {
		return nil, err
	}
	payload := treatmentPayload{Indication: t.Indication, PatientRef: t.PatientRef, Completed: t.Completed}
	ciphertext, nonce, err := cryptox.EncryptRecord(payload, key)
	if err != nil {
		return nil, fmt.Errorf("encryption error: %w", err)
	}
	return &treatments.Row{
		ID:            t.ID,
		Payload:       ciphertext,
		Nonce:         nonce,
		ServerVersion: t.ServerVersion,
		DownloadedAt:  t.DownloadedAt.UTC().Unix(),
		ExpiresAt:     t.ExpiresAt.UTC().Unix(),
		Voided:        t.Voided,
	}, nil
}

func (s *Store) openTreatment(row *treatments.Row) (models.Treatment, error) {
	key, err := s.keys.Key()
	if err != nil {
		return models.Treatment{}, err
	}
	var payload treatmentPayload
	if err := cryptox.DecryptRecord(row.Payload, row.Nonce, key, &payload); err != nil {
		return models.Treatment{}, fmt.Errorf("decryption error: %w", err)
	}
	return models.Treatment{
		ID:            row.ID,
		Indication:    payload.Indication,
		PatientRef:    payload.PatientRef,
		Completed:     payload.Completed,
		Voided:        row.Voided,
		ServerVersion: row.ServerVersion,
		DownloadedAt:  time.Unix(row.DownloadedAt, 0).UTC(),
		ExpiresAt:     time.Unix(row.ExpiresAt, 0).UTC(),
	}, nil
}

func (s *Store) sealApplicator(a models.Applicator) (*applicators.Row, error) {
	key, err := s.keys.Key()
	if err != nil {
		return nil, err
	}
	payload := applicatorPayload{
		SerialNumber: a.SerialNumber,
		Status:       a.Status,
		SeedQuantity: a.SeedQuantity,
		PackageLabel: a.PackageLabel,
		Comments:     a.Comments,
	}
	ciphertext, nonce, err := cryptox.EncryptRecord(payload, key)
	if err != nil {
		return nil, fmt.Errorf("encryption error: %w", err)
	}
	return &applicators.Row{
		ID:             a.ID,
		TreatmentID:    a.TreatmentID,
		Payload:        ciphertext,
		Nonce:          nonce,
		Version:        a.Version,
		SyncStatus:     string(a.SyncStatus),
		CreatedOffline: a.CreatedOffline,
		Digest:         a.Digest,
		UpdatedAt:      a.UpdatedAt.UTC().Unix(),
	}, nil
}

func (s *Store) openApplicator(row *applicators.Row) (models.Applicator, error) {
	key, err := s.keys.Key()
	if err != nil {
		return models.Applicator{}, err
	}
	var payload applicatorPayload
	if err := cryptox.DecryptRecord(row.Payload, row.Nonce, key, &payload); err != nil {
		return models.Applicator{}, fmt.Errorf("decryption error: %w", err)
	}
	return models.Applicator{
		ID:             row.ID,
		TreatmentID:    row.TreatmentID,
		SerialNumber:   payload.SerialNumber,
		Status:         payload.Status,
		SeedQuantity:   payload.SeedQuantity,
		PackageLabel:   payload.PackageLabel,
		Comments:       payload.Comments,
		Version:        row.Version,
		SyncStatus:     models.SyncStatus(row.SyncStatus),
		CreatedOffline: row.CreatedOffline,
		UpdatedAt:      time.Unix(row.UpdatedAt, 0).UTC(),
		Digest:         row.Digest,
	}, nil
}

// SaveTreatment upserts one treatment copy.
func (s *Store) SaveTreatment(ctx context.Context, t models.Treatment) error {
	if err := s.checkWrite(ctx, 1024); err != nil {
		return err
	}
	row, err := s.sealTreatment(t)
	if err != nil {
		return err
	}
	return treatments.NewSQLiteRepository(s.db).Upsert(ctx, row)
}

// ReadTreatment returns one treatment copy by id.
func (s *Store) ReadTreatment(ctx context.Context, id string) (models.Treatment, error) {
	row, err := treatments.NewSQLiteRepository(s.db).GetByID(ctx, id)
	if err != nil {
		return models.Treatment{}, err
	}
	return s.openTreatment(row)
}

// SaveApplicators upserts applicator copies in a single transaction.
func (s *Store) SaveApplicators(ctx context.Context, apps []models.Applicator) error {
	if err := s.checkWrite(ctx, int64(len(apps))*1024); err != nil {
		return err
	}
	rows := make([]*applicators.Row, 0, len(apps))
	for _, a := range apps {
		row, err := s.sealApplicator(a)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := applicators.NewSQLiteRepository(tx)
		for _, row := range rows {
			if err := repo.Upsert(ctx, row); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReadApplicators returns all applicator copies for a treatment.
func (s *Store) ReadApplicators(ctx context.Context, treatmentID string) ([]models.Applicator, error) {
	rows, err := applicators.NewSQLiteRepository(s.db).ListByTreatment(ctx, treatmentID)
	if err != nil {
		return nil, err
	}
	result := make([]models.Applicator, 0, len(rows))
	for _, row := range rows {
		a, err := s.openApplicator(row)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, nil
}

// ReadApplicator returns one applicator copy by id.
func (s *Store) ReadApplicator(ctx context.Context, id string) (models.Applicator, error) {
	row, err := applicators.NewSQLiteRepository(s.db).GetByID(ctx, id)
	if err != nil {
		return models.Applicator{}, err
	}
	return s.openApplicator(row)
}

// ReadAll returns every treatment with its applicators.
func (s *Store) ReadAll(ctx context.Context) ([]TreatmentSnapshot, error) {
	rows, err := treatments.NewSQLiteRepository(s.db).List(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]TreatmentSnapshot, 0, len(rows))
	for _, row := range rows {
		t, err := s.openTreatment(row)
		if err != nil {
			return nil, err
		}
		apps, err := s.ReadApplicators(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		result = append(result, TreatmentSnapshot{Treatment: t, Applicators: apps})
	}
	return result, nil
}

// DeleteTreatment removes a treatment and its applicators. This serves bundle
// replacement scope only; clinical records on the remote are voided, never
// deleted.
func (s *Store) DeleteTreatment(ctx context.Context, id string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := applicators.NewSQLiteRepository(tx).DeleteByTreatment(ctx, id); err != nil {
			return err
		}
		return treatments.NewSQLiteRepository(tx).Delete(ctx, id)
	})
}

// ReplaceBundle atomically replaces the local copies for one treatment with
// the downloaded bundle contents. Either the whole bundle lands or none of it
// does.
func (s *Store) ReplaceBundle(ctx context.Context, t models.Treatment, apps []models.Applicator) error {
	if err := s.checkWrite(ctx, int64(len(apps)+1)*1024); err != nil {
		return err
	}

	tRow, err := s.sealTreatment(t)
	if err != nil {
		return err
	}
	aRows := make([]*applicators.Row, 0, len(apps))
	for _, a := range apps {
		row, err := s.sealApplicator(a)
		if err != nil {
			return err
		}
		aRows = append(aRows, row)
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := applicators.NewSQLiteRepository(tx).DeleteByTreatment(ctx, t.ID); err != nil {
			return err
		}
		if err := treatments.NewSQLiteRepository(tx).Upsert(ctx, tRow); err != nil {
			return err
		}
		aRepo := applicators.NewSQLiteRepository(tx)
		for _, row := range aRows {
			if err := aRepo.Upsert(ctx, row); err != nil {
				return err
			}
		}
		return nil
	})
}
