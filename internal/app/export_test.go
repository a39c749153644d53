package app

import (
	"bufio"
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"decoyftp/internal/config"
	"decoyftp/internal/encryption"
	"decoyftp/internal/model"
	"decoyftp/internal/testutil"
)

func TestWriteBundleRoundTrip(t *testing.T) {
	store := testutil.NewTestStore(t)
	baseTime := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if err := store.InsertSession(model.SessionRecord{
		ID: "s1", RemoteAddr: "203.0.113.9:52100", StartTime: baseTime,
	}); err != nil {
		t.Fatalf("seeding session: %v", err)
	}
	if err := store.InsertCommandEvents([]model.CommandEvent{
		{SessionID: "s1", Timestamp: baseTime, Verb: "USER", Argument: "admin", ResultCode: "ok"},
		{SessionID: "s1", Timestamp: baseTime, Verb: "STOR", Argument: "x.bin", ResultCode: "ok", ContentHash: "cafe"},
	}); err != nil {
		t.Fatalf("seeding commands: %v", err)
	}
	if err := store.InsertCredentialAttempts([]model.CredentialAttempt{
		{SessionID: "s1", Timestamp: baseTime, Username: "admin", Password: "admin", Accepted: true},
	}); err != nil {
		t.Fatalf("seeding credentials: %v", err)
	}
	if err := store.UpsertArtifact(model.Artifact{
		Hash: "cafe", Size: 4, FirstSeen: baseTime, LastSeen: baseTime, OccurrenceCount: 1,
	}); err != nil {
		t.Fatalf("seeding artifact: %v", err)
	}

	dir := t.TempDir()
	enc := encryption.NewAgeEncryptor(config.ExportConfig{
		PublicKeyPath:  filepath.Join(dir, "export.pub"),
		PrivateKeyPath: filepath.Join(dir, "export.key"),
	})
	if err := enc.Setup("bundle-pass"); err != nil {
		t.Fatalf("Setup() error: %v", err)
	}

	outPath := filepath.Join(dir, "bundle.age")
	stats, err := WriteBundle(store, enc, time.Time{}, outPath)
	if err != nil {
		t.Fatalf("WriteBundle() error: %v", err)
	}
	if stats.Sessions != 1 || stats.Commands != 2 || stats.Credentials != 1 || stats.Artifacts != 1 {
		t.Errorf("stats = %+v, want 1/2/1/1", stats)
	}

	var plain bytes.Buffer
	if err := DecryptBundle(enc, "bundle-pass", outPath, &plain); err != nil {
		t.Fatalf("DecryptBundle() error: %v", err)
	}

	kinds := map[string]int{}
	scanner := bufio.NewScanner(&plain)
	for scanner.Scan() {
		var line bundleLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("bad bundle line %q: %v", scanner.Text(), err)
		}
		kinds[line.Kind]++
	}
	if kinds["session"] != 1 || kinds["command"] != 2 || kinds["credential"] != 1 || kinds["artifact"] != 1 {
		t.Errorf("line kinds = %v, want session:1 command:2 credential:1 artifact:1", kinds)
	}
}

func TestWriteBundleSinceFilter(t *testing.T) {
	store := testutil.NewTestStore(t)
	baseTime := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for _, s := range []model.SessionRecord{
		{ID: "old", RemoteAddr: "203.0.113.9:52100", StartTime: baseTime},
		{ID: "new", RemoteAddr: "198.51.100.7:40000", StartTime: baseTime.Add(2 * time.Hour)},
	} {
		if err := store.InsertSession(s); err != nil {
			t.Fatalf("seeding session: %v", err)
		}
	}

	dir := t.TempDir()
	enc := encryption.NewAgeEncryptor(config.ExportConfig{
		PublicKeyPath:  filepath.Join(dir, "export.pub"),
		PrivateKeyPath: filepath.Join(dir, "export.key"),
	})
	if err := enc.Setup("bundle-pass"); err != nil {
		t.Fatalf("Setup() error: %v", err)
	}

	stats, err := WriteBundle(store, enc, baseTime.Add(time.Hour), filepath.Join(dir, "b.age"))
	if err != nil {
		t.Fatalf("WriteBundle() error: %v", err)
	}
	if stats.Sessions != 1 {
		t.Errorf("sessions since cutoff = %d, want 1", stats.Sessions)
	}
}

func TestWriteBundleWithoutKeys(t *testing.T) {
	store := testutil.NewTestStore(t)
	dir := t.TempDir()
	enc := encryption.NewAgeEncryptor(config.ExportConfig{
		PublicKeyPath:  filepath.Join(dir, "export.pub"),
		PrivateKeyPath: filepath.Join(dir, "export.key"),
	})

	if _, err := WriteBundle(store, enc, time.Time{}, filepath.Join(dir, "b.age")); err == nil {
		t.Error("WriteBundle() without keys succeeded")
	}
}
