package auth

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Fingerprinter derives cache keys from the full token string so the raw
// token is never stored.
type Fingerprinter struct {
	key []byte
}

// NewFingerprinter returns a fingerprinter keyed with key; an empty key yields a plain BLAKE2b-256.
func NewFingerprinter(key string) *Fingerprinter {
	k := []byte(key)
	if len(k) > blake2b.Size {
		sum := blake2b.Sum256(k)
		k = sum[:]
	}
	return &Fingerprinter{key: k}
}

// Fingerprint returns the hex encoded digest of token.
func (f *Fingerprinter) Fingerprint(token string) string {
	h, err := blake2b.New256(f.key)
	if err != nil {
		sum := blake2b.Sum256([]byte(token))
		return hex.EncodeToString(sum[:])
	}
	h.Write([]byte(token))
	return hex.EncodeToString(h.Sum(nil))
}
