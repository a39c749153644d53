package honeypot

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
)

// Digest folds an uploaded payload into a running SHA-256 without buffering
// it. Each in-flight upload gets its own Digest; nothing is shared across
// concurrent uploads.
type Digest struct {
	h    hash.Hash
	size int64
}

// NewDigest creates a fresh Digest for one upload.
func NewDigest() *Digest {
	return &Digest{h: sha256.New()}
}

// Write folds chunk into the running digest. It never fails.
func (d *Digest) Write(chunk []byte) (int, error) {
	d.h.Write(chunk) // sha256 Write never returns an error
	d.size += int64(len(chunk))
	return len(chunk), nil
}

// Size returns the number of bytes folded in so far.
func (d *Digest) Size() int64 { return d.size }

// Sum returns the final checksum as a lowercase hex string.
func (d *Digest) Sum() string {
	return hex.EncodeToString(d.h.Sum(nil))
}
