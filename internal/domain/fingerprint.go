// Package domain holds the core data model shared by every SimsForge
// component: cache entries, profiles, and the disk performance config.
package domain

import (
	"crypto/sha256"
	"hash"
	"io"

	digest "github.com/opencontainers/go-digest"
)

// Fingerprint is the content address of a downloaded archive: a canonical
// "sha256:<hex>" digest. Two archives with identical bytes collide
// intentionally onto the same Fingerprint.
type Fingerprint = digest.Digest

// Algorithm is the digest algorithm used for fingerprints.
const Algorithm = digest.SHA256

// NewFingerprintHasher returns a fresh hash.Hash for streaming fingerprint
// computation over an archive's byte stream.
func NewFingerprintHasher() hash.Hash {
	return sha256.New()
}

// FingerprintFromReader streams r through the digest algorithm and returns
// the resulting Fingerprint. It does not buffer the whole stream in memory.
func FingerprintFromReader(r io.Reader) (Fingerprint, error) {
	return digest.SHA256.FromReader(r)
}

// ShortPrefix returns a short, filesystem- and display-safe prefix of a
// Fingerprint's hex digest, used by the Activator for collision-breaking
// safe-name suffixes.
func ShortPrefix(fp Fingerprint, n int) string {
	enc := fp.Encoded()
	if n <= 0 || n > len(enc) {
		return enc
	}
	return enc[:n]
}
