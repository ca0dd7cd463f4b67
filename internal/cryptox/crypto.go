// Package cryptox implements key derivation and record encryption for the
// device-local store. Session keys are derived from the authenticated user's
// credentials with argon2id and are never persisted.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"

	"golang.org/x/crypto/argon2"
)

// MakeVerifier returns a SHA-256 fingerprint of the session key. The verifier
// is safe to persist locally and lets the device confirm a re-derived key
// without storing the key itself.
func MakeVerifier(sessionKey []byte) []byte {
	hash := sha256.Sum256(sessionKey)
	return hash[:]
}

// DeriveSessionKey derives a 32-byte AES-256 key from the user's password and
// a per-device random salt using argon2id.
func DeriveSessionKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, 32)
}

// EncryptRecord serializes the given record to JSON and encrypts it using
// AES-GCM. A new random 12-byte nonce is generated for each encryption; the
// ciphertext and nonce are returned separately.
//
// The key must be a valid AES key length (16, 24, or 32 bytes).
func EncryptRecord(record any, key []byte) (ciphertext, nonce []byte, err error) {
	plaintext, err := json.Marshal(record)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, 12)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}

	ciphertext = aesgcm.Seal(nil, nonce, plaintext, nil)

	return ciphertext, nonce, nil
}

// DecryptRecord decrypts ciphertext produced by EncryptRecord and unmarshals
// the resulting JSON into v. The key and nonce must match the ones used at
// encryption time; any tampering with the ciphertext fails authentication.
func DecryptRecord(ciphertext, nonce, key []byte, v any) error {
	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return err
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return err
	}

	return json.Unmarshal(plaintext, v)
}
