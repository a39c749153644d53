package database_test

import (
	"testing"
	"time"

	"decoyftp/internal/model"
	"decoyftp/internal/testutil"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestSessionLifecycle(t *testing.T) {
	store := testutil.NewTestStore(t)

	rec := model.SessionRecord{ID: "s1", RemoteAddr: "203.0.113.9:52100", StartTime: baseTime}
	if err := store.InsertSession(rec); err != nil {
		t.Fatalf("InsertSession() error: %v", err)
	}

	// Duplicate inserts are ignored, not errors: a batch may replay a start
	// record after a partial flush.
	if err := store.InsertSession(rec); err != nil {
		t.Fatalf("duplicate InsertSession() error: %v", err)
	}

	got, err := store.FindSessionByID("s1")
	if err != nil {
		t.Fatalf("FindSessionByID() error: %v", err)
	}
	if got == nil || got.RemoteAddr != rec.RemoteAddr || got.EndTime != nil {
		t.Fatalf("FindSessionByID() = %+v", got)
	}

	end := baseTime.Add(90 * time.Second)
	if err := store.CloseSession("s1", end); err != nil {
		t.Fatalf("CloseSession() error: %v", err)
	}

	got, err = store.FindSessionByID("s1")
	if err != nil {
		t.Fatalf("FindSessionByID() error: %v", err)
	}
	if got.EndTime == nil || !got.EndTime.Equal(end) {
		t.Errorf("end time = %v, want %v", got.EndTime, end)
	}

	// Closing again leaves the first end time in place.
	if err := store.CloseSession("s1", end.Add(time.Hour)); err != nil {
		t.Fatalf("second CloseSession() error: %v", err)
	}
	got, _ = store.FindSessionByID("s1")
	if !got.EndTime.Equal(end) {
		t.Errorf("end time after re-close = %v, want %v", got.EndTime, end)
	}
}

func TestFindSessionByIDNotFound(t *testing.T) {
	store := testutil.NewTestStore(t)

	got, err := store.FindSessionByID("missing")
	if err != nil {
		t.Fatalf("FindSessionByID() error: %v", err)
	}
	if got != nil {
		t.Errorf("FindSessionByID(missing) = %+v, want nil", got)
	}
}

func TestInsertCommandEvents(t *testing.T) {
	store := testutil.NewTestStore(t)

	events := []model.CommandEvent{
		{SessionID: "s1", Timestamp: baseTime, Verb: "USER", Argument: "admin", ResultCode: "ok"},
		{SessionID: "s1", Timestamp: baseTime.Add(time.Second), Verb: "PASS", ResultCode: "ok"},
		{SessionID: "s1", Timestamp: baseTime.Add(2 * time.Second), Verb: "STOR", Argument: "x.bin",
			ResultCode: "ok", ContentHash: "deadbeef"},
	}
	if err := store.InsertCommandEvents(events); err != nil {
		t.Fatalf("InsertCommandEvents() error: %v", err)
	}

	got, err := store.FindCommandEventsBySession("s1")
	if err != nil {
		t.Fatalf("FindCommandEventsBySession() error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("events = %d, want 3", len(got))
	}
	if got[0].Verb != "USER" || got[2].Verb != "STOR" {
		t.Errorf("order = %s..%s, want USER..STOR", got[0].Verb, got[2].Verb)
	}
	if got[2].ContentHash != "deadbeef" {
		t.Errorf("content hash = %q, want deadbeef", got[2].ContentHash)
	}
	if got[0].ContentHash != "" {
		t.Errorf("hash on hashless event = %q, want empty", got[0].ContentHash)
	}
}

func TestInsertCredentialAttempts(t *testing.T) {
	store := testutil.NewTestStore(t)

	attempts := []model.CredentialAttempt{
		{SessionID: "s1", Timestamp: baseTime, Username: "admin", Password: "admin", Accepted: false},
		{SessionID: "s1", Timestamp: baseTime.Add(time.Second), Username: "admin", Password: "123456", Accepted: true},
	}
	if err := store.InsertCredentialAttempts(attempts); err != nil {
		t.Fatalf("InsertCredentialAttempts() error: %v", err)
	}

	got, err := store.FindCredentialAttemptsBySession("s1")
	if err != nil {
		t.Fatalf("FindCredentialAttemptsBySession() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("attempts = %d, want 2", len(got))
	}
	if got[0].Accepted || !got[1].Accepted {
		t.Errorf("accepted flags = %v,%v, want false,true", got[0].Accepted, got[1].Accepted)
	}
}

func TestUpsertArtifact(t *testing.T) {
	store := testutil.NewTestStore(t)

	art := model.Artifact{
		Hash: "abc123", Size: 256,
		FirstSeen: baseTime, LastSeen: baseTime, OccurrenceCount: 1,
	}
	if err := store.UpsertArtifact(art); err != nil {
		t.Fatalf("UpsertArtifact() error: %v", err)
	}

	later := art
	later.FirstSeen = baseTime.Add(time.Hour) // must not overwrite the original
	later.LastSeen = baseTime.Add(time.Hour)
	if err := store.UpsertArtifact(later); err != nil {
		t.Fatalf("second UpsertArtifact() error: %v", err)
	}

	got, err := store.FindArtifactByHash("abc123")
	if err != nil {
		t.Fatalf("FindArtifactByHash() error: %v", err)
	}
	if got == nil {
		t.Fatal("artifact not found")
	}
	if got.OccurrenceCount != 2 {
		t.Errorf("occurrence count = %d, want 2", got.OccurrenceCount)
	}
	if got.Size != 256 {
		t.Errorf("size = %d, want 256", got.Size)
	}
	if !got.FirstSeen.Equal(baseTime) {
		t.Errorf("first seen = %v, want %v", got.FirstSeen, baseTime)
	}
	if !got.LastSeen.Equal(baseTime.Add(time.Hour)) {
		t.Errorf("last seen = %v, want %v", got.LastSeen, baseTime.Add(time.Hour))
	}
}

func TestArtifactScanResult(t *testing.T) {
	store := testutil.NewTestStore(t)

	for i, hash := range []string{"aaa111", "bbb222"} {
		art := model.Artifact{
			Hash: hash, Size: 64,
			FirstSeen: baseTime.Add(time.Duration(i) * time.Minute),
			LastSeen:  baseTime.Add(time.Duration(i) * time.Minute),
		}
		if err := store.UpsertArtifact(art); err != nil {
			t.Fatalf("UpsertArtifact(%s) error: %v", hash, err)
		}
	}

	pending, err := store.ArtifactsWithoutScanResult(10)
	if err != nil {
		t.Fatalf("ArtifactsWithoutScanResult() error: %v", err)
	}
	if len(pending) != 2 || pending[0].Hash != "aaa111" {
		t.Fatalf("pending = %+v, want aaa111 then bbb222", pending)
	}

	if err := store.SetArtifactScanResult("aaa111", "https://scanner.example/file/aaa111/details"); err != nil {
		t.Fatalf("SetArtifactScanResult() error: %v", err)
	}

	pending, err = store.ArtifactsWithoutScanResult(10)
	if err != nil {
		t.Fatalf("ArtifactsWithoutScanResult() error: %v", err)
	}
	if len(pending) != 1 || pending[0].Hash != "bbb222" {
		t.Errorf("pending after scan = %+v, want only bbb222", pending)
	}

	got, err := store.FindArtifactByHash("aaa111")
	if err != nil || got == nil {
		t.Fatalf("FindArtifactByHash() = %v, %v", got, err)
	}
	if got.ScanResult != "https://scanner.example/file/aaa111/details" {
		t.Errorf("scan result = %q", got.ScanResult)
	}
}

func TestFindArtifactByHashNotFound(t *testing.T) {
	store := testutil.NewTestStore(t)

	got, err := store.FindArtifactByHash("missing")
	if err != nil {
		t.Fatalf("FindArtifactByHash() error: %v", err)
	}
	if got != nil {
		t.Errorf("FindArtifactByHash(missing) = %+v, want nil", got)
	}
}

func TestReportQueries(t *testing.T) {
	store := testutil.NewTestStore(t)

	for i, s := range []model.SessionRecord{
		{ID: "s1", RemoteAddr: "203.0.113.9:52100", StartTime: baseTime},
		{ID: "s2", RemoteAddr: "198.51.100.7:40000", StartTime: baseTime.Add(time.Hour)},
	} {
		if err := store.InsertSession(s); err != nil {
			t.Fatalf("insert session %d: %v", i, err)
		}
	}

	attempts := []model.CredentialAttempt{
		{SessionID: "s1", Timestamp: baseTime, Username: "admin", Password: "admin"},
		{SessionID: "s1", Timestamp: baseTime, Username: "admin", Password: "admin", Accepted: true},
		{SessionID: "s2", Timestamp: baseTime, Username: "root", Password: "toor"},
	}
	if err := store.InsertCredentialAttempts(attempts); err != nil {
		t.Fatalf("insert attempts: %v", err)
	}

	t.Run("top credentials", func(t *testing.T) {
		top, err := store.TopCredentials(10)
		if err != nil {
			t.Fatalf("TopCredentials() error: %v", err)
		}
		if len(top) != 2 {
			t.Fatalf("pairs = %d, want 2", len(top))
		}
		if top[0].Username != "admin" || top[0].Attempts != 2 || top[0].Accepted != 1 {
			t.Errorf("top pair = %+v, want admin x2, 1 accepted", top[0])
		}
	})

	t.Run("recent sessions", func(t *testing.T) {
		recent, err := store.RecentSessions(10)
		if err != nil {
			t.Fatalf("RecentSessions() error: %v", err)
		}
		if len(recent) != 2 || recent[0].ID != "s2" {
			t.Errorf("recent = %+v, want s2 first", recent)
		}
	})

	t.Run("sessions since", func(t *testing.T) {
		since, err := store.SessionsSince(baseTime.Add(30 * time.Minute))
		if err != nil {
			t.Fatalf("SessionsSince() error: %v", err)
		}
		if len(since) != 1 || since[0].ID != "s2" {
			t.Errorf("since = %+v, want only s2", since)
		}
	})
}
