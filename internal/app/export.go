package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"decoyftp/internal/database"
	"decoyftp/internal/encryption"
	"decoyftp/internal/model"
)

// bundleLine is one record in an export bundle. Exactly one of the data
// fields is set, selected by Kind.
type bundleLine struct {
	Kind       string                  `json:"kind"` // "session", "command", "credential" or "artifact"
	Session    *model.SessionRecord    `json:"session,omitempty"`
	Command    *model.CommandEvent     `json:"command,omitempty"`
	Credential *model.CredentialAttempt `json:"credential,omitempty"`
	Artifact   *model.Artifact         `json:"artifact,omitempty"`
}

// ExportStats summarizes what went into a bundle.
type ExportStats struct {
	Sessions    int
	Commands    int
	Credentials int
	Artifacts   int
}

// WriteBundle collects all telemetry recorded at or after since, encodes
// it as JSONL and writes it age-encrypted to outPath. The store is read
// directly; the recorder queue is not drained first, so records still in
// flight land in the next bundle.
func WriteBundle(store *database.SQLiteStore, enc *encryption.AgeEncryptor, since time.Time, outPath string) (*ExportStats, error) {
	if !enc.IsConfigured() {
		return nil, fmt.Errorf("export keys not configured: run 'decoyftp export init' first")
	}

	var buf bytes.Buffer
	stats, err := writeLines(&buf, store, since)
	if err != nil {
		return nil, err
	}

	f, err := os.Create(outPath)
	if err != nil {
		return nil, fmt.Errorf("creating bundle file: %w", err)
	}
	defer f.Close()

	if err := enc.Encrypt(&buf, f); err != nil {
		os.Remove(outPath)
		return nil, fmt.Errorf("encrypting bundle: %w", err)
	}
	return stats, nil
}

func writeLines(w io.Writer, store *database.SQLiteStore, since time.Time) (*ExportStats, error) {
	je := json.NewEncoder(w)
	stats := &ExportStats{}

	sessions, err := store.SessionsSince(since)
	if err != nil {
		return nil, fmt.Errorf("collecting sessions: %w", err)
	}
	for i := range sessions {
		if err := je.Encode(bundleLine{Kind: "session", Session: &sessions[i]}); err != nil {
			return nil, fmt.Errorf("encoding session: %w", err)
		}
	}
	stats.Sessions = len(sessions)

	credentials, err := store.CredentialAttemptsSince(since)
	if err != nil {
		return nil, fmt.Errorf("collecting credential attempts: %w", err)
	}
	for i := range credentials {
		if err := je.Encode(bundleLine{Kind: "credential", Credential: &credentials[i]}); err != nil {
			return nil, fmt.Errorf("encoding credential attempt: %w", err)
		}
	}
	stats.Credentials = len(credentials)

	commands, err := store.CommandEventsSince(since)
	if err != nil {
		return nil, fmt.Errorf("collecting command events: %w", err)
	}
	for i := range commands {
		if err := je.Encode(bundleLine{Kind: "command", Command: &commands[i]}); err != nil {
			return nil, fmt.Errorf("encoding command event: %w", err)
		}
	}
	stats.Commands = len(commands)

	artifacts, err := store.ArtifactsSince(since)
	if err != nil {
		return nil, fmt.Errorf("collecting artifacts: %w", err)
	}
	for i := range artifacts {
		if err := je.Encode(bundleLine{Kind: "artifact", Artifact: &artifacts[i]}); err != nil {
			return nil, fmt.Errorf("encoding artifact: %w", err)
		}
	}
	stats.Artifacts = len(artifacts)

	return stats, nil
}

// DecryptBundle decrypts an exported bundle back to plaintext JSONL, for
// reading a bundle off-box with the private key.
func DecryptBundle(enc *encryption.AgeEncryptor, passphrase, inPath string, w io.Writer) error {
	dc, err := enc.Unlock(passphrase)
	if err != nil {
		return fmt.Errorf("unlocking export key: %w", err)
	}

	f, err := os.Open(inPath)
	if err != nil {
		return fmt.Errorf("opening bundle file: %w", err)
	}
	defer f.Close()

	if err := dc.Decrypt(f, w); err != nil {
		return fmt.Errorf("decrypting bundle: %w", err)
	}
	return nil
}
