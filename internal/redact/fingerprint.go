package redact

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// FingerprintLength is the number of hex characters kept from the digest
const FingerprintLength = 12

// Fingerprinter produces salted one-way digests of matched values. The same
// value always yields the same fingerprint under one salt; there is no way
// back to the value.
type Fingerprinter struct {
	key []byte
}

// NewFingerprinter keys fingerprints with salt. An empty salt generates a
// random per-process key, so fingerprints then only correlate within one
// process lifetime.
func NewFingerprinter(salt string) (*Fingerprinter, error) {
	if salt != "" {
		return &Fingerprinter{key: []byte(salt)}, nil
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate fingerprint salt: %w", err)
	}
	return &Fingerprinter{key: key}, nil
}

// Fingerprint returns the truncated HMAC-SHA256 of value
func (f *Fingerprinter) Fingerprint(value string) string {
	mac := hmac.New(sha256.New, f.key)
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))[:FingerprintLength]
}
