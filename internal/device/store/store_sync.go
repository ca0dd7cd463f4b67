package store

import (
	"context"
	"fmt"
	"time"

	"github.com/avolkov/seedtrack/internal/cryptox"
	"github.com/avolkov/seedtrack/internal/dbx"
	"github.com/avolkov/seedtrack/internal/device/models"
	"github.com/avolkov/seedtrack/internal/device/repositories/applicators"
	"github.com/avolkov/seedtrack/internal/device/repositories/auditlog"
	"github.com/avolkov/seedtrack/internal/device/repositories/metadata"
	"github.com/avolkov/seedtrack/internal/device/repositories/mutations"
	"github.com/avolkov/seedtrack/internal/workflow"
)

func (s *Store) sealMutation(m models.PendingMutation) (*mutations.Row, error) {
	key, err := s.keys.Key()
	if err != nil {
		return nil, err
	}
	ciphertext, nonce, err := cryptox.EncryptRecord(m.Change, key)
	if err != nil {
		return nil, fmt.Errorf("encryption error: %w", err)
	}
	return &mutations.Row{
		ID:          m.ID,
		EntityID:    m.EntityID,
		TreatmentID: m.TreatmentID,
		Kind:        m.Kind,
		BaseVersion: m.BaseVersion,
		DeviceID:    m.DeviceID,
		EnqueuedAt:  m.EnqueuedAt.UTC().Unix(),
		Payload:     ciphertext,
		Nonce:       nonce,
	}, nil
}

func (s *Store) openMutation(row *mutations.Row) (models.PendingMutation, error) {
	key, err := s.keys.Key()
	if err != nil {
		return models.PendingMutation{}, err
	}
	var change models.ApplicatorChange
	if err := cryptox.DecryptRecord(row.Payload, row.Nonce, key, &change); err != nil {
		return models.PendingMutation{}, fmt.Errorf("decryption error: %w", err)
	}
	return models.PendingMutation{
		ID:          row.ID,
		Seq:         row.Seq,
		EntityID:    row.EntityID,
		TreatmentID: row.TreatmentID,
		Kind:        row.Kind,
		BaseVersion: row.BaseVersion,
		DeviceID:    row.DeviceID,
		EnqueuedAt:  time.Unix(row.EnqueuedAt, 0).UTC(),
		Change:      change,
	}, nil
}

func (s *Store) sealAudit(entry workflow.AuditLogEntry) (*auditlog.Row, error) {
	key, err := s.keys.Key()
	if err != nil {
		return nil, err
	}
	ciphertext, nonce, err := cryptox.EncryptRecord(entry, key)
	if err != nil {
		return nil, fmt.Errorf("encryption error: %w", err)
	}
	return &auditlog.Row{
		ApplicatorID: entry.ApplicatorID,
		Payload:      ciphertext,
		Nonce:        nonce,
		CreatedAt:    entry.Timestamp.UTC().Unix(),
	}, nil
}

func (s *Store) openAudit(row *auditlog.Row) (workflow.AuditLogEntry, error) {
	key, err := s.keys.Key()
	if err != nil {
		return workflow.AuditLogEntry{}, err
	}
	var entry workflow.AuditLogEntry
	if err := cryptox.DecryptRecord(row.Payload, row.Nonce, key, &entry); err != nil {
		return workflow.AuditLogEntry{}, fmt.Errorf("decryption error: %w", err)
	}
	return entry, nil
}

// EnqueueMutation appends one pending mutation to the push queue.
func (s *Store) EnqueueMutation(ctx context.Context, m models.PendingMutation) error {
	if err := s.checkWrite(ctx, 1024); err != nil {
		return err
	}
	row, err := s.sealMutation(m)
	if err != nil {
		return err
	}
	return mutations.NewSQLiteRepository(s.db).Insert(ctx, row)
}

// ApplyLocalMutation persists an accepted local change atomically: the
// updated applicator copy, the queued mutation, and exactly one audit entry.
// Nothing is written if any part fails.
func (s *Store) ApplyLocalMutation(ctx context.Context, a models.Applicator, m models.PendingMutation, entry workflow.AuditLogEntry) error {
	if err := s.checkWrite(ctx, 3*1024); err != nil {
		return err
	}

	aRow, err := s.sealApplicator(a)
	if err != nil {
		return err
	}
	mRow, err := s.sealMutation(m)
	if err != nil {
		return err
	}
	eRow, err := s.sealAudit(entry)
	if err != nil {
		return err
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := applicators.NewSQLiteRepository(tx).Upsert(ctx, aRow); err != nil {
			return err
		}
		if err := mutations.NewSQLiteRepository(tx).Insert(ctx, mRow); err != nil {
			return err
		}
		return auditlog.NewSQLiteRepository(tx).Append(ctx, eRow)
	})
}

// CreateLocalApplicator persists an offline-created applicator and its create
// mutation atomically. The record keeps its client-generated id until the
// remote acknowledges the create and assigns a permanent one.
func (s *Store) CreateLocalApplicator(ctx context.Context, a models.Applicator, m models.PendingMutation) error {
	if err := s.checkWrite(ctx, 2*1024); err != nil {
		return err
	}

	aRow, err := s.sealApplicator(a)
	if err != nil {
		return err
	}
	mRow, err := s.sealMutation(m)
	if err != nil {
		return err
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := applicators.NewSQLiteRepository(tx).Upsert(ctx, aRow); err != nil {
			return err
		}
		return mutations.NewSQLiteRepository(tx).Insert(ctx, mRow)
	})
}

// PendingMutations returns the queue in enqueue order.
func (s *Store) PendingMutations(ctx context.Context) ([]models.PendingMutation, error) {
	rows, err := mutations.NewSQLiteRepository(s.db).ListFIFO(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]models.PendingMutation, 0, len(rows))
	for _, row := range rows {
		m, err := s.openMutation(row)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, nil
}

// MutationCount returns the depth of the pending queue.
func (s *Store) MutationCount(ctx context.Context) (int, error) {
	return mutations.NewSQLiteRepository(s.db).Count(ctx)
}

// RemoveMutation deletes an acknowledged mutation from the queue.
func (s *Store) RemoveMutation(ctx context.Context, id string) error {
	return mutations.NewSQLiteRepository(s.db).DeleteByID(ctx, id)
}

// MarkSyncStatus updates the sync status column of one applicator.
func (s *Store) MarkSyncStatus(ctx context.Context, applicatorID string, status models.SyncStatus) error {
	return applicators.NewSQLiteRepository(s.db).UpdateSyncStatus(ctx, applicatorID, string(status))
}

// AppendAudit persists one audit entry outside a local-mutation transaction
// (used when reconciliation accepts a remote transition).
func (s *Store) AppendAudit(ctx context.Context, entry workflow.AuditLogEntry) error {
	if err := s.checkWrite(ctx, 1024); err != nil {
		return err
	}
	row, err := s.sealAudit(entry)
	if err != nil {
		return err
	}
	return auditlog.NewSQLiteRepository(s.db).Append(ctx, row)
}

// AuditFor returns the transition trail of one applicator in order.
func (s *Store) AuditFor(ctx context.Context, applicatorID string) ([]workflow.AuditLogEntry, error) {
	rows, err := auditlog.NewSQLiteRepository(s.db).ListByApplicator(ctx, applicatorID)
	if err != nil {
		return nil, err
	}
	result := make([]workflow.AuditLogEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := s.openAudit(row)
		if err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, nil
}

// AuditCount returns the number of audit entries for one applicator.
func (s *Store) AuditCount(ctx context.Context, applicatorID string) (int, error) {
	return auditlog.NewSQLiteRepository(s.db).CountByApplicator(ctx, applicatorID)
}

// RemapApplicatorID rewrites a client-generated temporary id to the
// server-assigned one across the applicator row, the queued mutations, and
// the audit trail, in one transaction. Audit payloads are re-encrypted with
// the new id; entry contents are otherwise untouched.
func (s *Store) RemapApplicatorID(ctx context.Context, oldID, newID string, newVersion int64) error {
	key, err := s.keys.Key()
	if err != nil {
		return err
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := applicators.NewSQLiteRepository(tx).Remap(ctx, oldID, newID, newVersion); err != nil {
			return err
		}
		if err := mutations.NewSQLiteRepository(tx).RemapEntity(ctx, oldID, newID); err != nil {
			return err
		}

		auditRepo := auditlog.NewSQLiteRepository(tx)
		rows, err := auditRepo.ListByApplicator(ctx, oldID)
		if err != nil {
			return err
		}
		for _, row := range rows {
			var entry workflow.AuditLogEntry
			if err := cryptox.DecryptRecord(row.Payload, row.Nonce, key, &entry); err != nil {
				return fmt.Errorf("decryption error: %w", err)
			}
			entry.ApplicatorID = newID
			ciphertext, nonce, err := cryptox.EncryptRecord(entry, key)
			if err != nil {
				return fmt.Errorf("encryption error: %w", err)
			}
			if err := auditRepo.ReplacePayload(ctx, row.Seq, newID, ciphertext, nonce); err != nil {
				return err
			}
		}
		return nil
	})
}

// Wipe clears all locally cached data plus every user's key verifier and KDF
// salt. The device identity survives; it belongs to the device, not a user.
func (s *Store) Wipe(ctx context.Context) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, stmt := range []string{
			`DELETE FROM audit_log`,
			`DELETE FROM pending_mutations`,
			`DELETE FROM applicators`,
			`DELETE FROM treatments`,
		} {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		meta := metadata.NewSQLiteRepository(tx)
		if err := meta.DeletePrefix(ctx, "verifier:"); err != nil {
			return err
		}
		return meta.DeletePrefix(ctx, "kdf_salt:")
	})
}
