package cryptox

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveSessionKey_Deterministic(t *testing.T) {
	password := []byte("clinic-password")
	salt := []byte("fixed-salt")

	key1 := DeriveSessionKey(password, salt)
	key2 := DeriveSessionKey(password, salt)

	assert.Equal(t, key1, key2, "same inputs must derive the same key")
	assert.Len(t, key1, 32)
}

func TestDeriveSessionKey_DifferentSalts(t *testing.T) {
	password := []byte("clinic-password")

	key1 := DeriveSessionKey(password, []byte("salt-1"))
	key2 := DeriveSessionKey(password, []byte("salt-2"))

	if bytes.Equal(key1, key2) {
		t.Errorf("different salts must derive different keys")
	}
}

func TestMakeVerifier_DoesNotLeakKey(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	v := MakeVerifier(key)
	assert.Len(t, v, 32)
	assert.NotEqual(t, key, v)
}

func TestEncryptDecryptRecord_RoundTrip(t *testing.T) {
	type rec struct {
		Serial string `json:"serial"`
		Seeds  int    `json:"seeds"`
	}

	key := bytes.Repeat([]byte{0x42}, 32)
	in := rec{Serial: "AP-0042", Seeds: 12}

	ciphertext, nonce, err := EncryptRecord(in, key)
	require.NoError(t, err)
	require.Len(t, nonce, 12)
	assert.NotContains(t, string(ciphertext), "AP-0042")

	var out rec
	require.NoError(t, DecryptRecord(ciphertext, nonce, key, &out))
	assert.Equal(t, in, out)
}

func TestDecryptRecord_TamperedCiphertext(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)

	ciphertext, nonce, err := EncryptRecord(map[string]string{"a": "b"}, key)
	require.NoError(t, err)

	ciphertext[0] ^= 0xFF

	var out map[string]string
	assert.Error(t, DecryptRecord(ciphertext, nonce, key, &out))
}

func TestDecryptRecord_WrongKey(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	other := bytes.Repeat([]byte{0x43}, 32)

	ciphertext, nonce, err := EncryptRecord(map[string]string{"a": "b"}, key)
	require.NoError(t, err)

	var out map[string]string
	assert.Error(t, DecryptRecord(ciphertext, nonce, other, &out))
}
