package testutil

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"decoyftp/internal/model"
)

// SHA256Hex returns the hex-encoded SHA-256 digest of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SessionEnd captures one SessionEnded call.
type SessionEnd struct {
	SessionID string
	At        time.Time
}

// CaptureRecorder is an in-memory honeypot.Recorder that remembers every
// call, in order, for assertions. Safe for concurrent use.
type CaptureRecorder struct {
	mu          sync.Mutex
	Sessions    []model.SessionRecord
	Ends        []SessionEnd
	Commands    []model.CommandEvent
	Credentials []model.CredentialAttempt
	Artifacts   []model.Artifact
}

func NewCaptureRecorder() *CaptureRecorder {
	return &CaptureRecorder{}
}

func (r *CaptureRecorder) SessionStarted(rec model.SessionRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Sessions = append(r.Sessions, rec)
}

func (r *CaptureRecorder) SessionEnded(sessionID string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Ends = append(r.Ends, SessionEnd{SessionID: sessionID, At: at})
}

func (r *CaptureRecorder) CommandObserved(ev model.CommandEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Commands = append(r.Commands, ev)
}

func (r *CaptureRecorder) CredentialObserved(att model.CredentialAttempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Credentials = append(r.Credentials, att)
}

func (r *CaptureRecorder) ArtifactObserved(art model.Artifact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Artifacts = append(r.Artifacts, art)
}

// LastCommand returns the most recently observed command event.
func (r *CaptureRecorder) LastCommand() *model.CommandEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Commands) == 0 {
		return nil
	}
	return &r.Commands[len(r.Commands)-1]
}
