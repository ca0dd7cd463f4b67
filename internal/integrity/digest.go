// Package integrity computes deterministic content digests over normalized
// records. Digests detect silent divergence of a locally cached copy from its
// last known good state before a sync push is attempted.
package integrity

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
)

// ComputeDigest normalizes record and returns the lowercase hex SHA-256 of
// its canonical serialization. Normalization round-trips the record through
// generic JSON values so that object keys serialize in sorted order; two
// records that differ only in field insertion order produce the same digest.
func ComputeDigest(record any) (string, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return "", err
	}

	// encoding/json sorts map keys on output, so decoding into generic
	// values and re-encoding yields a canonical byte stream.
	var normalized any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return "", err
	}

	canonical, err := json.Marshal(normalized)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// CompareDigests reports whether two hex digests match, in constant time, so
// comparison never leaks how many leading characters agree.
func CompareDigests(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
