package honeypot

import "io"

// ArtifactVault optionally keeps the real bytes of uploaded payloads,
// content-addressed by their SHA-256 checksum. Capture is off by default;
// the honeypot is fully functional hashing and discarding every payload.
type ArtifactVault interface {
	// PutContent stores content under its checksum. Idempotent: storing the
	// same checksum twice is safe.
	PutContent(checksum string, r io.Reader, size int64) error

	// GetContent writes the stored content for checksum to w.
	GetContent(checksum string, w io.Writer) error

	// HasContent reports whether content for checksum is present.
	HasContent(checksum string) (bool, error)

	// ValidateSetup verifies the vault is reachable and writable.
	ValidateSetup() error
}
