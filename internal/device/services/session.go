// Package services wires the device's user-facing operations: session
// lifecycle and treatment work. The CLI talks to these, never to the store or
// the sync engine directly.
package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/avolkov/seedtrack/internal/common"
	"github.com/avolkov/seedtrack/internal/cryptox"
	"github.com/avolkov/seedtrack/internal/device/store"
	"github.com/avolkov/seedtrack/internal/logging"
)

// ErrInvalidCredentials is returned when a re-derived session key does not
// match the stored verifier for that user.
var ErrInvalidCredentials = errors.New("invalid credentials")

const saltSize = 16

// SessionService derives the session key at login and tears it down at
// logout. The key never leaves memory; only a salt and a key verifier are
// persisted per user.
type SessionService struct {
	store  *store.Store
	logger logging.Logger
}

func NewSessionService(st *store.Store, logger logging.Logger) *SessionService {
	return &SessionService{store: st, logger: logger}
}

// Login derives the session key from the password and the user's per-device
// salt and arms the store's encryption. The first login of a user on a device
// creates the salt and verifier; later logins must reproduce the same key.
func (s *SessionService) Login(ctx context.Context, username, password string) error {
	meta := s.store.Metadata()

	saltKey := "kdf_salt:" + username
	salt, err := meta.Get(ctx, saltKey)
	if err != nil {
		return fmt.Errorf("loading salt: %w", err)
	}
	firstLogin := len(salt) == 0
	if firstLogin {
		salt = common.GenerateRandByteArray(saltSize)
		if err := meta.Set(ctx, saltKey, salt); err != nil {
			return fmt.Errorf("saving salt: %w", err)
		}
	}

	key := cryptox.DeriveSessionKey([]byte(password), salt)
	defer common.WipeByteArray(key)
	verifier := cryptox.MakeVerifier(key)

	verifierKey := "verifier:" + username
	stored, err := meta.Get(ctx, verifierKey)
	if err != nil {
		return fmt.Errorf("loading verifier: %w", err)
	}
	switch {
	case len(stored) == 0:
		if err := meta.Set(ctx, verifierKey, verifier); err != nil {
			return fmt.Errorf("saving verifier: %w", err)
		}
	case !bytes.Equal(stored, verifier):
		return ErrInvalidCredentials
	}

	s.store.Keys().Init(key)
	s.logger.Info(ctx, "session started", "user", username, "firstLogin", firstLogin)
	return nil
}

// Logout wipes the session key. Cached data stays on disk, unreadable until
// the next login re-derives the key.
func (s *SessionService) Logout(ctx context.Context) {
	s.store.Keys().Teardown()
	s.logger.Info(ctx, "session ended")
}
