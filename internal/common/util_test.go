package common

import (
	"bytes"
	"testing"
)

func TestGenerateRandByteArray(t *testing.T) {
	const size = 32
	a := GenerateRandByteArray(size)
	b := GenerateRandByteArray(size)
	if len(a) != size || len(b) != size {
		t.Fatalf("expected %d bytes, got %d and %d", size, len(a), len(b))
	}
	if bytes.Equal(a, b) {
		t.Errorf("two random arrays should not match")
	}
}

func TestWipeByteArray(t *testing.T) {
	b := []byte("session-key-material")
	WipeByteArray(b)
	for i, v := range b {
		if v != 0 {
			t.Fatalf("byte %d not wiped", i)
		}
	}
	WipeByteArray(nil) // must not panic
}
