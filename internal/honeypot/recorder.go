package honeypot

import (
	"time"

	"decoyftp/internal/model"
)

// Recorder is the asynchronous telemetry sink shared by all interceptors.
// Implementations must return quickly — at most a short bounded wait when
// the queue is full — and must never surface persistence problems to the
// caller: a session path that cannot record keeps serving the attacker.
type Recorder interface {
	SessionStarted(rec model.SessionRecord)
	SessionEnded(sessionID string, at time.Time)
	CommandObserved(ev model.CommandEvent)
	CredentialObserved(att model.CredentialAttempt)
	ArtifactObserved(art model.Artifact)
}

// NopRecorder discards everything. Use in tests that don't assert on
// telemetry.
type NopRecorder struct{}

func NewNopRecorder() *NopRecorder { return &NopRecorder{} }

func (*NopRecorder) SessionStarted(model.SessionRecord)        {}
func (*NopRecorder) SessionEnded(string, time.Time)            {}
func (*NopRecorder) CommandObserved(model.CommandEvent)        {}
func (*NopRecorder) CredentialObserved(model.CredentialAttempt) {}
func (*NopRecorder) ArtifactObserved(model.Artifact)           {}
