package honeypot

import (
	"bytes"
	"io"

	"decoyftp/internal/model"
	"decoyftp/internal/vfs"
)

// Backend is the capability set the external protocol engine drives, one
// instance per connection. Every method records telemetry and returns a
// protocol-plausible result; none of them ever returns a Go error, because
// toward the attacker there is nothing to fail — internal trouble is the
// operator's problem, not the session's.
type Backend interface {
	UserPresented(username string) Result
	Authenticate(password string) Result
	ChangeDirectory(target string) Result
	CurrentDirectory() string
	List(target string) ([]vfs.Entry, Result)
	Stat(target string) (*vfs.Entry, Result)
	Retrieve(target string) (io.ReadCloser, Result)
	Store(target string, payload io.Reader) Result
	Delete(target string) Result
	RenameFrom(target string) Result
	RenameTo(target string) Result
	MakeDirectory(target string) Result
	RemoveDirectory(target string) Result
	Close()
}

// readChunk is the buffer size for draining upload streams.
const readChunk = 32 * 1024

// Interceptor is the single concrete Backend. It composes the session
// context, the synthetic filesystem (plus this session's mutation overlay),
// the credential policy and the hashing service, and feeds the shared
// recorder. All state it mutates is session-local.
type Interceptor struct {
	session  *Session
	fs       *vfs.FS
	overlay  *vfs.Overlay
	policy   *CredentialPolicy
	recorder Recorder
	clock    Clock
	logger   Logger

	// vault is nil unless payload capture is configured.
	vault        ArtifactVault
	captureLimit int64

	renameFrom string
	uploads    map[string]string // overlay path -> content hash
}

var _ Backend = (*Interceptor)(nil)

// InterceptorDeps carries the shared process-wide handles an interceptor
// needs; everything here is read-only or internally synchronized.
type InterceptorDeps struct {
	FS           *vfs.FS
	Policy       *CredentialPolicy
	Recorder     Recorder
	Clock        Clock
	Logger       Logger
	Vault        ArtifactVault // optional
	CaptureLimit int64         // max payload bytes kept per upload
}

// NewInterceptor creates the backend for one freshly accepted connection
// and records the session start.
func NewInterceptor(session *Session, deps InterceptorDeps) *Interceptor {
	it := &Interceptor{
		session:      session,
		fs:           deps.FS,
		overlay:      vfs.NewOverlay(),
		policy:       deps.Policy,
		recorder:     deps.Recorder,
		clock:        deps.Clock,
		logger:       deps.Logger,
		vault:        deps.Vault,
		captureLimit: deps.CaptureLimit,
		uploads:      make(map[string]string),
	}
	it.recorder.SessionStarted(model.SessionRecord{
		ID:         session.ID(),
		RemoteAddr: session.RemoteAddr(),
		StartTime:  session.StartTime(),
	})
	return it
}

// Session exposes the session context, mainly for tests and the engine's
// greeting logic.
func (it *Interceptor) Session() *Session { return it.session }

// record updates the session history and enqueues one CommandEvent. It is
// called on every operation before control returns to the engine.
func (it *Interceptor) record(verb Verb, argument string, result Result, contentHash string) {
	now := it.clock.Now()
	it.session.Record(verb, argument, now)
	it.recorder.CommandObserved(model.CommandEvent{
		SessionID:   it.session.ID(),
		Timestamp:   now,
		Verb:        verb.String(),
		Argument:    argument,
		ResultCode:  result.Code(),
		ContentHash: contentHash,
	})
}

// closed guards against callbacks arriving after the session ended; a dead
// session sends nothing further.
func (it *Interceptor) closed() bool { return it.session.State() == StateClosed }

// UserPresented handles USER: remembers the identity and moves the session
// into Authenticating. Always plausible-successful; real servers accept any
// username and judge at PASS time.
func (it *Interceptor) UserPresented(username string) Result {
	if it.closed() {
		return ResultGeneric
	}
	it.session.SetUsername(username)
	it.session.SetState(StateAuthenticating)
	it.record(VerbUser, username, ResultOK, "")
	return ResultOK
}

// Authenticate handles PASS: consults the credential policy, records
// exactly one CredentialAttempt whatever the outcome, and activates the
// session on acceptance.
func (it *Interceptor) Authenticate(password string) Result {
	if it.closed() {
		return ResultGeneric
	}
	accepted := it.policy.Evaluate(it.session.Username(), password, it.session.RemoteAddr())

	it.recorder.CredentialObserved(model.CredentialAttempt{
		SessionID: it.session.ID(),
		Timestamp: it.clock.Now(),
		Username:  it.session.Username(),
		Password:  password,
		Accepted:  accepted,
	})

	result := ResultPermissionDenied
	if accepted {
		it.session.SetState(StateActive)
		result = ResultOK
	}
	it.record(VerbPass, "", result, "")
	return result
}

// ChangeDirectory handles CWD. Path policy violations and missing
// directories both come back as NotFound — indistinguishable from a real
// server refusing a bad path.
func (it *Interceptor) ChangeDirectory(target string) Result {
	if it.closed() {
		return ResultGeneric
	}
	result := ResultNotFound
	if resolved, err := it.session.Resolve(target); err == nil && it.dirExists(resolved) {
		it.session.ChangeDirectory(target)
		result = ResultOK
	}
	it.record(VerbCwd, target, result, "")
	return result
}

// CurrentDirectory handles PWD.
func (it *Interceptor) CurrentDirectory() string {
	if it.closed() {
		return "/"
	}
	it.record(VerbPwd, "", ResultOK, "")
	return it.session.Cwd()
}

// List handles LIST/NLST against the derived tree with this session's
// mutations applied.
func (it *Interceptor) List(target string) ([]vfs.Entry, Result) {
	if it.closed() {
		return nil, ResultGeneric
	}
	if target == "" {
		target = "."
	}
	resolved, err := it.session.Resolve(target)
	if err != nil || !it.dirExists(resolved) {
		it.record(VerbList, target, ResultNotFound, "")
		return nil, ResultNotFound
	}

	base, lerr := it.fs.List(resolved)
	if lerr != nil {
		base = nil // overlay-created directory: empty base listing
	}
	entries := it.overlay.Merge(resolved, base)
	it.record(VerbList, target, ResultOK, "")
	return entries, ResultOK
}

// Stat handles SIZE/MDTM-style metadata queries.
func (it *Interceptor) Stat(target string) (*vfs.Entry, Result) {
	if it.closed() {
		return nil, ResultGeneric
	}
	entry, ok := it.lookup(target)
	if !ok {
		it.record(VerbStat, target, ResultNotFound, "")
		return nil, ResultNotFound
	}
	it.record(VerbStat, target, ResultOK, "")
	return entry, ResultOK
}

// Retrieve handles RETR: a chunked synthetic stream sized to the entry, or
// the captured payload when this session uploaded the file and capture is
// on. Re-downloads of the same path always yield the same bytes.
func (it *Interceptor) Retrieve(target string) (io.ReadCloser, Result) {
	if it.closed() {
		return nil, ResultGeneric
	}
	entry, ok := it.lookup(target)
	if !ok || entry.IsDir {
		it.record(VerbRetr, target, ResultNotFound, "")
		return nil, ResultNotFound
	}

	it.record(VerbRetr, target, ResultOK, "")

	if overlayEntry, isOverlay := it.overlay.Lookup(entry.Path); isOverlay {
		if rc, ok := it.capturedContent(overlayEntry.Path); ok {
			return rc, ResultOK
		}
		return it.fs.OpenSized(overlayEntry.Path, overlayEntry.Size), ResultOK
	}

	rc, err := it.fs.Open(entry.Path)
	if err != nil {
		// The entry was visible a moment ago; mask the inconsistency with a
		// synthetic stream rather than a protocol anomaly.
		return it.fs.OpenSized(entry.Path, entry.Size), ResultOK
	}
	return rc, ResultOK
}

// Store handles STOR: the payload is folded chunk by chunk into a fresh
// digest and discarded (or teed into the capture vault under the size cap).
// Whatever goes wrong internally, the attacker sees a successful upload.
func (it *Interceptor) Store(target string, payload io.Reader) Result {
	if it.closed() {
		return ResultGeneric
	}
	resolved, rerr := it.session.Resolve(target)

	digest := NewDigest()
	var capture *bytes.Buffer
	if it.vault != nil {
		capture = &bytes.Buffer{}
	}

	buf := make([]byte, readChunk)
	for {
		n, err := payload.Read(buf)
		if n > 0 {
			digest.Write(buf[:n])
			if capture != nil {
				if int64(capture.Len()+n) <= it.captureLimit {
					capture.Write(buf[:n])
				} else {
					capture = nil // over the cap: hash only
				}
			}
		}
		if err != nil {
			break // io.EOF or a dead data connection; either way we're done
		}
	}

	hash := digest.Sum()
	size := digest.Size()

	if rerr != nil {
		// Traversal attempt: swallow the payload, answer like a full disk
		// would not — uploads "succeed" everywhere inside the root, but an
		// escape path gets the same not-found a real chroot gives.
		it.record(VerbStor, target, ResultNotFound, hash)
		return ResultNotFound
	}

	now := it.clock.Now()
	it.overlay.AddFile(resolved, size, now)

	it.recorder.ArtifactObserved(model.Artifact{
		Hash:            hash,
		Size:            size,
		FirstSeen:       now,
		LastSeen:        now,
		OccurrenceCount: 1,
	})

	if capture != nil && size > 0 {
		if err := it.vault.PutContent(hash, bytes.NewReader(capture.Bytes()), size); err != nil {
			it.logger.Warn("artifact capture failed", "hash", hash, "err", err)
		} else {
			it.uploads[resolved] = hash
		}
	}

	it.record(VerbStor, target, ResultOK, hash)
	return ResultOK
}

// Delete handles DELE against the session overlay only.
func (it *Interceptor) Delete(target string) Result {
	if it.closed() {
		return ResultGeneric
	}
	result := ResultNotFound
	if entry, ok := it.lookup(target); ok && !entry.IsDir {
		it.overlay.Delete(entry.Path)
		delete(it.uploads, entry.Path)
		result = ResultOK
	}
	it.record(VerbDele, target, result, "")
	return result
}

// RenameFrom handles RNFR: remembers the source if it exists.
func (it *Interceptor) RenameFrom(target string) Result {
	if it.closed() {
		return ResultGeneric
	}
	result := ResultNotFound
	if entry, ok := it.lookup(target); ok {
		it.renameFrom = entry.Path
		result = ResultOK
	}
	it.record(VerbRnfr, target, result, "")
	return result
}

// RenameTo handles RNTO: completes a pending RNFR in the overlay.
func (it *Interceptor) RenameTo(target string) Result {
	if it.closed() {
		return ResultGeneric
	}
	if it.renameFrom == "" {
		it.record(VerbRnto, target, ResultGeneric, "")
		return ResultGeneric
	}
	from := it.renameFrom
	it.renameFrom = ""

	resolved, err := it.session.Resolve(target)
	if err != nil {
		it.record(VerbRnto, target, ResultNotFound, "")
		return ResultNotFound
	}
	entry, ok := it.lookup(from)
	if !ok {
		it.record(VerbRnto, target, ResultNotFound, "")
		return ResultNotFound
	}
	it.overlay.Rename(from, resolved, *entry)
	if hash, uploaded := it.uploads[from]; uploaded {
		delete(it.uploads, from)
		it.uploads[resolved] = hash
	}
	it.record(VerbRnto, target, ResultOK, "")
	return ResultOK
}

// MakeDirectory handles MKD against the session overlay only.
func (it *Interceptor) MakeDirectory(target string) Result {
	if it.closed() {
		return ResultGeneric
	}
	resolved, err := it.session.Resolve(target)
	if err != nil {
		it.record(VerbMkd, target, ResultNotFound, "")
		return ResultNotFound
	}
	if _, exists := it.lookup(resolved); exists {
		it.record(VerbMkd, target, ResultGeneric, "")
		return ResultGeneric
	}
	it.overlay.AddDir(resolved, it.clock.Now())
	it.record(VerbMkd, target, ResultOK, "")
	return ResultOK
}

// RemoveDirectory handles RMD against the session overlay only.
func (it *Interceptor) RemoveDirectory(target string) Result {
	if it.closed() {
		return ResultGeneric
	}
	result := ResultNotFound
	if entry, ok := it.lookup(target); ok && entry.IsDir {
		it.overlay.Delete(entry.Path)
		result = ResultOK
	}
	it.record(VerbRmd, target, result, "")
	return result
}

// Close handles QUIT or disconnect: records the end of the session and
// releases any in-flight rename state. Idempotent.
func (it *Interceptor) Close() {
	if it.closed() {
		return
	}
	it.session.SetState(StateClosing)
	now := it.clock.Now()
	it.session.Record(VerbQuit, "", now)
	it.recorder.CommandObserved(model.CommandEvent{
		SessionID:  it.session.ID(),
		Timestamp:  now,
		Verb:       VerbQuit.String(),
		ResultCode: ResultOK.Code(),
	})
	it.recorder.SessionEnded(it.session.ID(), now)
	it.renameFrom = ""
	it.session.SetState(StateClosed)
}

// lookup resolves target against the session cwd and finds its entry,
// overlay first, derived tree second.
func (it *Interceptor) lookup(target string) (*vfs.Entry, bool) {
	resolved, err := it.session.Resolve(target)
	if err != nil {
		return nil, false
	}
	if it.overlay.Deleted(resolved) {
		return nil, false
	}
	if entry, ok := it.overlay.Lookup(resolved); ok {
		return &entry, true
	}
	entry, serr := it.fs.Stat(resolved)
	if serr != nil {
		return nil, false
	}
	return entry, true
}

// dirExists checks overlay-created directories as well as the derived tree.
func (it *Interceptor) dirExists(resolved string) bool {
	if it.overlay.Deleted(resolved) {
		return false
	}
	if entry, ok := it.overlay.Lookup(resolved); ok {
		return entry.IsDir
	}
	if resolved == "/" {
		return true
	}
	entry, err := it.fs.Stat(resolved)
	return err == nil && entry.IsDir
}

// capturedContent streams a captured payload back from the vault, so a
// re-download returns the exact bytes the attacker uploaded. Falls back to
// the synthetic stream when the payload wasn't captured.
func (it *Interceptor) capturedContent(resolved string) (io.ReadCloser, bool) {
	if it.vault == nil {
		return nil, false
	}
	hash, ok := it.uploads[resolved]
	if !ok {
		return nil, false
	}
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(it.vault.GetContent(hash, pw))
	}()
	return pr, true
}
