package store

import (
	"sync"

	"github.com/avolkov/seedtrack/internal/common"
)

// SessionKeys holds the AES key derived from the authenticated user's
// credentials at login. The raw key lives only in memory: it is initialized
// once per session, handed to the store for the session's lifetime, and wiped
// at logout. Every store write path goes through Key(), which fails with
// common.ErrEncryptionNotReady before initialization; plaintext is never
// written as a fallback.
type SessionKeys struct {
	mu  sync.RWMutex
	key []byte
}

func NewSessionKeys() *SessionKeys {
	return &SessionKeys{}
}

// Init installs the derived session key. The slice is copied so the caller
// may wipe its own buffer immediately.
func (k *SessionKeys) Init(key []byte) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.key = make([]byte, len(key))
	copy(k.key, key)
}

// Ready reports whether a session key has been derived.
func (k *SessionKeys) Ready() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.key) > 0
}

// Key returns the session key or common.ErrEncryptionNotReady.
func (k *SessionKeys) Key() ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if len(k.key) == 0 {
		return nil, common.ErrEncryptionNotReady
	}
	return k.key, nil
}

// Teardown wipes the key material and returns the guard to the not-ready
// state. Called on logout.
func (k *SessionKeys) Teardown() {
	k.mu.Lock()
	defer k.mu.Unlock()
	common.WipeByteArray(k.key)
	k.key = nil
}
