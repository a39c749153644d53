package honeypot_test

import (
	"bytes"
	"io"
	"testing"

	"decoyftp/internal/honeypot"
	"decoyftp/internal/testutil"
	"decoyftp/internal/vault"
	"decoyftp/internal/vfs"
)

type fixture struct {
	it       *honeypot.Interceptor
	session  *honeypot.Session
	recorder *testutil.CaptureRecorder
	clock    *testutil.StubClock
	vault    *vault.MemoryVault
}

// newFixture wires an interceptor with in-memory collaborators. withVault
// enables payload capture.
func newFixture(t *testing.T, withVault bool) *fixture {
	t.Helper()

	clock := testutil.FixedClock()
	rec := testutil.NewCaptureRecorder()
	session := honeypot.NewSession("s1", "203.0.113.9:52100", clock.Now())

	deps := honeypot.InterceptorDeps{
		FS:       vfs.New(42, vfs.Options{}),
		Policy:   honeypot.NewCredentialPolicy(honeypot.PolicyOptions{Mode: honeypot.PolicyAcceptAll}, clock),
		Recorder: rec,
		Clock:    clock,
		Logger:   honeypot.NewNopLogger(),
	}

	f := &fixture{session: session, recorder: rec, clock: clock}
	if withVault {
		f.vault = vault.NewMemoryVault("test")
		deps.Vault = f.vault
		deps.CaptureLimit = 1 << 20
	}
	f.it = honeypot.NewInterceptor(session, deps)
	return f
}

// login drives USER/PASS and fails the test if the session does not
// activate.
func (f *fixture) login(t *testing.T, username, password string) {
	t.Helper()
	if got := f.it.UserPresented(username); got != honeypot.ResultOK {
		t.Fatalf("UserPresented() = %v, want %v", got, honeypot.ResultOK)
	}
	if got := f.it.Authenticate(password); got != honeypot.ResultOK {
		t.Fatalf("Authenticate() = %v, want %v", got, honeypot.ResultOK)
	}
}

func TestInterceptorLoginUploadQuit(t *testing.T) {
	f := newFixture(t, false)
	payload := bytes.Repeat([]byte{0xAB}, 256)
	wantHash := testutil.SHA256Hex(payload)

	if got := f.it.UserPresented("test"); got != honeypot.ResultOK {
		t.Fatalf("UserPresented() = %v", got)
	}
	if f.session.State() != honeypot.StateAuthenticating {
		t.Fatalf("state after USER = %v, want %v", f.session.State(), honeypot.StateAuthenticating)
	}

	if got := f.it.Authenticate("test"); got != honeypot.ResultOK {
		t.Fatalf("Authenticate() = %v", got)
	}
	if f.session.State() != honeypot.StateActive {
		t.Fatalf("state after PASS = %v, want %v", f.session.State(), honeypot.StateActive)
	}

	if _, got := f.it.List(""); got != honeypot.ResultOK {
		t.Fatalf("List() = %v", got)
	}

	if got := f.it.Store("dump.zip", bytes.NewReader(payload)); got != honeypot.ResultOK {
		t.Fatalf("Store() = %v", got)
	}

	f.it.Close()
	if f.session.State() != honeypot.StateClosed {
		t.Fatalf("state after QUIT = %v, want %v", f.session.State(), honeypot.StateClosed)
	}

	// Exactly one session start and end.
	if len(f.recorder.Sessions) != 1 || f.recorder.Sessions[0].ID != "s1" {
		t.Errorf("session starts = %+v, want one for s1", f.recorder.Sessions)
	}
	if len(f.recorder.Ends) != 1 || f.recorder.Ends[0].SessionID != "s1" {
		t.Errorf("session ends = %+v, want one for s1", f.recorder.Ends)
	}

	// Exactly one accepted credential attempt.
	if len(f.recorder.Credentials) != 1 {
		t.Fatalf("credential attempts = %d, want 1", len(f.recorder.Credentials))
	}
	cred := f.recorder.Credentials[0]
	if cred.Username != "test" || cred.Password != "test" || !cred.Accepted {
		t.Errorf("credential attempt = %+v, want accepted test/test", cred)
	}

	// Command sequence USER, PASS, LIST, STOR, QUIT with the payload hash
	// on the STOR event.
	var verbs []string
	for _, ev := range f.recorder.Commands {
		verbs = append(verbs, ev.Verb)
	}
	want := []string{"USER", "PASS", "LIST", "STOR", "QUIT"}
	if len(verbs) != len(want) {
		t.Fatalf("commands = %v, want %v", verbs, want)
	}
	for i := range want {
		if verbs[i] != want[i] {
			t.Fatalf("command %d = %s, want %s", i, verbs[i], want[i])
		}
	}
	stor := f.recorder.Commands[3]
	if stor.ContentHash != wantHash {
		t.Errorf("STOR content hash = %s, want %s", stor.ContentHash, wantHash)
	}
	if stor.ResultCode != "ok" {
		t.Errorf("STOR result = %s, want ok", stor.ResultCode)
	}

	// One artifact, correct hash and size.
	if len(f.recorder.Artifacts) != 1 {
		t.Fatalf("artifacts = %d, want 1", len(f.recorder.Artifacts))
	}
	art := f.recorder.Artifacts[0]
	if art.Hash != wantHash || art.Size != 256 || art.OccurrenceCount != 1 {
		t.Errorf("artifact = %+v, want hash=%s size=256 count=1", art, wantHash)
	}
}

func TestInterceptorReuploadSameContent(t *testing.T) {
	f := newFixture(t, false)
	f.login(t, "test", "test")
	payload := []byte("same bytes both times")

	f.it.Store("a.bin", bytes.NewReader(payload))
	f.it.Store("b.bin", bytes.NewReader(payload))

	if len(f.recorder.Artifacts) != 2 {
		t.Fatalf("artifact observations = %d, want 2", len(f.recorder.Artifacts))
	}
	if f.recorder.Artifacts[0].Hash != f.recorder.Artifacts[1].Hash {
		t.Errorf("hashes differ across re-upload: %s vs %s",
			f.recorder.Artifacts[0].Hash, f.recorder.Artifacts[1].Hash)
	}
}

func TestInterceptorStoreTraversal(t *testing.T) {
	f := newFixture(t, false)
	f.login(t, "test", "test")
	payload := []byte("escape attempt")

	if got := f.it.Store("../../evil.bin", bytes.NewReader(payload)); got != honeypot.ResultNotFound {
		t.Fatalf("Store(traversal) = %v, want %v", got, honeypot.ResultNotFound)
	}

	// The payload is still hashed and the attempt recorded.
	stor := f.recorder.LastCommand()
	if stor == nil || stor.Verb != "STOR" {
		t.Fatalf("last command = %+v, want STOR", stor)
	}
	if stor.ResultCode != "not_found" {
		t.Errorf("result = %s, want not_found", stor.ResultCode)
	}
	if stor.ContentHash != testutil.SHA256Hex(payload) {
		t.Errorf("content hash = %s, want %s", stor.ContentHash, testutil.SHA256Hex(payload))
	}

	// Nothing lands in the overlay and no artifact is observed.
	if len(f.recorder.Artifacts) != 0 {
		t.Errorf("artifacts = %d, want 0", len(f.recorder.Artifacts))
	}
	if _, result := f.it.Stat("/evil.bin"); result != honeypot.ResultNotFound {
		t.Errorf("Stat(/evil.bin) = %v, want %v", result, honeypot.ResultNotFound)
	}
}

func TestInterceptorUploadVisibleInListing(t *testing.T) {
	f := newFixture(t, false)
	f.login(t, "test", "test")

	f.it.Store("fresh_upload.dat", bytes.NewReader([]byte("data")))

	entries, result := f.it.List("/")
	if result != honeypot.ResultOK {
		t.Fatalf("List() = %v", result)
	}
	found := false
	for _, e := range entries {
		if e.Name == "fresh_upload.dat" {
			found = true
			if e.Size != 4 {
				t.Errorf("uploaded entry size = %d, want 4", e.Size)
			}
		}
	}
	if !found {
		t.Error("uploaded file missing from listing")
	}

	// Delete hides it again.
	if got := f.it.Delete("fresh_upload.dat"); got != honeypot.ResultOK {
		t.Fatalf("Delete() = %v", got)
	}
	if _, result := f.it.Stat("fresh_upload.dat"); result != honeypot.ResultNotFound {
		t.Errorf("Stat after delete = %v, want %v", result, honeypot.ResultNotFound)
	}
}

func TestInterceptorCapturedRoundTrip(t *testing.T) {
	f := newFixture(t, true)
	f.login(t, "test", "test")
	payload := []byte("the exact uploaded bytes")

	if got := f.it.Store("loot.bin", bytes.NewReader(payload)); got != honeypot.ResultOK {
		t.Fatalf("Store() = %v", got)
	}

	hash := testutil.SHA256Hex(payload)
	if ok, err := f.vault.HasContent(hash); err != nil || !ok {
		t.Fatalf("HasContent(%s) = %v, %v, want true", hash, ok, err)
	}

	rc, result := f.it.Retrieve("loot.bin")
	if result != honeypot.ResultOK {
		t.Fatalf("Retrieve() = %v", result)
	}
	defer rc.Close()

	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("reading retrieved content: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("retrieved %q, want %q", got, payload)
	}
}

func TestInterceptorCaptureLimit(t *testing.T) {
	clock := testutil.FixedClock()
	v := vault.NewMemoryVault("test")
	session := honeypot.NewSession("s1", "203.0.113.9:52100", clock.Now())
	it := honeypot.NewInterceptor(session, honeypot.InterceptorDeps{
		FS:           vfs.New(42, vfs.Options{}),
		Policy:       honeypot.NewCredentialPolicy(honeypot.PolicyOptions{}, clock),
		Recorder:     testutil.NewCaptureRecorder(),
		Clock:        clock,
		Logger:       honeypot.NewNopLogger(),
		Vault:        v,
		CaptureLimit: 16,
	})
	it.UserPresented("test")
	it.Authenticate("test")

	payload := bytes.Repeat([]byte{0x01}, 64) // over the 16-byte cap
	if got := it.Store("big.bin", bytes.NewReader(payload)); got != honeypot.ResultOK {
		t.Fatalf("Store() = %v", got)
	}

	// Hash-only: nothing captured.
	if ok, _ := v.HasContent(testutil.SHA256Hex(payload)); ok {
		t.Error("payload over the capture limit was stored")
	}
}

func TestInterceptorMkdCwdRename(t *testing.T) {
	f := newFixture(t, false)
	f.login(t, "test", "test")

	if got := f.it.MakeDirectory("staging"); got != honeypot.ResultOK {
		t.Fatalf("MakeDirectory() = %v", got)
	}
	if got := f.it.ChangeDirectory("staging"); got != honeypot.ResultOK {
		t.Fatalf("ChangeDirectory() = %v", got)
	}
	if got := f.it.CurrentDirectory(); got != "/staging" {
		t.Fatalf("CurrentDirectory() = %q, want /staging", got)
	}

	// A new directory starts empty.
	entries, result := f.it.List("")
	if result != honeypot.ResultOK {
		t.Fatalf("List() = %v", result)
	}
	if len(entries) != 0 {
		t.Errorf("new directory has %d entries, want 0", len(entries))
	}

	f.it.Store("tool.bin", bytes.NewReader([]byte("payload")))

	if got := f.it.RenameFrom("tool.bin"); got != honeypot.ResultOK {
		t.Fatalf("RenameFrom() = %v", got)
	}
	if got := f.it.RenameTo("renamed.bin"); got != honeypot.ResultOK {
		t.Fatalf("RenameTo() = %v", got)
	}
	if _, result := f.it.Stat("tool.bin"); result != honeypot.ResultNotFound {
		t.Errorf("old name still visible: %v", result)
	}
	if entry, result := f.it.Stat("renamed.bin"); result != honeypot.ResultOK || entry.Size != 7 {
		t.Errorf("Stat(renamed.bin) = %+v, %v", entry, result)
	}

	// RNTO without RNFR is a generic failure.
	if got := f.it.RenameTo("orphan.bin"); got != honeypot.ResultGeneric {
		t.Errorf("RenameTo without RenameFrom = %v, want %v", got, honeypot.ResultGeneric)
	}
}

func TestInterceptorRejectedLogin(t *testing.T) {
	clock := testutil.FixedClock()
	rec := testutil.NewCaptureRecorder()
	session := honeypot.NewSession("s1", "203.0.113.9:52100", clock.Now())
	it := honeypot.NewInterceptor(session, honeypot.InterceptorDeps{
		FS:       vfs.New(42, vfs.Options{}),
		Policy:   honeypot.NewCredentialPolicy(honeypot.PolicyOptions{Mode: honeypot.PolicyRejectAll}, clock),
		Recorder: rec,
		Clock:    clock,
		Logger:   honeypot.NewNopLogger(),
	})

	it.UserPresented("admin")
	if got := it.Authenticate("guess"); got != honeypot.ResultPermissionDenied {
		t.Fatalf("Authenticate() = %v, want %v", got, honeypot.ResultPermissionDenied)
	}
	if session.State() != honeypot.StateAuthenticating {
		t.Errorf("state after rejected PASS = %v, want %v", session.State(), honeypot.StateAuthenticating)
	}

	// The attempt is still recorded, marked rejected.
	if len(rec.Credentials) != 1 || rec.Credentials[0].Accepted {
		t.Errorf("credentials = %+v, want one rejected attempt", rec.Credentials)
	}
}

func TestInterceptorClosedSessionSendsNothing(t *testing.T) {
	f := newFixture(t, false)
	f.login(t, "test", "test")
	f.it.Close()

	before := len(f.recorder.Commands)

	if got := f.it.UserPresented("again"); got != honeypot.ResultGeneric {
		t.Errorf("UserPresented after close = %v, want %v", got, honeypot.ResultGeneric)
	}
	if _, got := f.it.List("/"); got != honeypot.ResultGeneric {
		t.Errorf("List after close = %v, want %v", got, honeypot.ResultGeneric)
	}
	if got := f.it.Store("x", bytes.NewReader([]byte("y"))); got != honeypot.ResultGeneric {
		t.Errorf("Store after close = %v, want %v", got, honeypot.ResultGeneric)
	}
	f.it.Close() // idempotent

	if len(f.recorder.Commands) != before {
		t.Errorf("closed session recorded %d new commands", len(f.recorder.Commands)-before)
	}
	if len(f.recorder.Ends) != 1 {
		t.Errorf("session ends = %d, want 1", len(f.recorder.Ends))
	}
}

func TestInterceptorRetrieveDeterministic(t *testing.T) {
	f := newFixture(t, false)
	f.login(t, "test", "test")

	entries, result := f.it.List("/")
	if result != honeypot.ResultOK {
		t.Fatalf("List() = %v", result)
	}
	var file string
	for _, e := range entries {
		if !e.IsDir && e.Size < 1<<20 {
			file = e.Name
			break
		}
	}
	if file == "" {
		t.Skip("no small file at root for this seed")
	}

	read := func() []byte {
		rc, result := f.it.Retrieve(file)
		if result != honeypot.ResultOK {
			t.Fatalf("Retrieve(%s) = %v", file, result)
		}
		defer rc.Close()
		b, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("reading: %v", err)
		}
		return b
	}

	first := read()
	second := read()
	if !bytes.Equal(first, second) {
		t.Error("re-download of the same path yielded different bytes")
	}
}
