// Package recorder implements the attack event recorder: a bounded queue
// fed by many concurrent sessions and drained by a single consumer that
// batches records into a Store. Sessions never touch storage directly.
package recorder

import (
	"sync"
	"sync/atomic"
	"time"

	"decoyftp/internal/honeypot"
	"decoyftp/internal/model"
)

// Store is the persistence side of the recorder. Implemented by the SQLite
// store; only the single consumer goroutine calls it.
type Store interface {
	InsertSession(rec model.SessionRecord) error
	CloseSession(sessionID string, end time.Time) error
	InsertCommandEvents(events []model.CommandEvent) error
	InsertCredentialAttempts(attempts []model.CredentialAttempt) error
	UpsertArtifact(art model.Artifact) error
}

// Backpressure selects what happens when the queue is full.
type Backpressure string

const (
	// BackpressureBlock stalls the enqueuing session for at most the
	// enqueue timeout, then drops. Fewer forensic gaps, slower responses
	// under flood.
	BackpressureBlock Backpressure = "block"
	// BackpressureDrop drops immediately, counting the loss. Responses stay
	// fast; gaps are visible in the drop counter.
	BackpressureDrop Backpressure = "drop"
)

// Options tune queue capacity, batching and the retry/grace behavior.
type Options struct {
	QueueCapacity  int
	EnqueueTimeout time.Duration // max stall per enqueue under BackpressureBlock
	Backpressure   Backpressure
	BatchSize      int
	FlushInterval  time.Duration
	RetryBase      time.Duration // first retry delay after a store error
	RetryMax       time.Duration // backoff cap
	GracePeriod    time.Duration // give up on a batch after this much outage
}

// DefaultOptions are sized for a single busy honeypot instance.
var DefaultOptions = Options{
	QueueCapacity:  4096,
	EnqueueTimeout: 50 * time.Millisecond,
	Backpressure:   BackpressureDrop,
	BatchSize:      128,
	FlushInterval:  time.Second,
	RetryBase:      100 * time.Millisecond,
	RetryMax:       5 * time.Second,
	GracePeriod:    30 * time.Second,
}

type recordKind int

const (
	kindSessionStart recordKind = iota
	kindSessionEnd
	kindCommand
	kindCredential
	kindArtifact
)

type record struct {
	kind       recordKind
	session    model.SessionRecord
	sessionID  string
	at         time.Time
	command    model.CommandEvent
	credential model.CredentialAttempt
	artifact   model.Artifact
}

// Recorder is the shared ingestion side. Safe for concurrent use by all
// sessions; all storage writes happen on the consumer goroutine.
type Recorder struct {
	opts   Options
	store  Store
	logger honeypot.Logger

	queue chan record

	dropped   atomic.Int64
	persisted atomic.Int64

	closeOnce sync.Once
	closing   chan struct{}
	done      chan struct{}
}

var _ honeypot.Recorder = (*Recorder)(nil)

// New creates a Recorder and starts its consumer goroutine.
func New(store Store, opts Options, logger honeypot.Logger) *Recorder {
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = DefaultOptions.QueueCapacity
	}
	if opts.EnqueueTimeout <= 0 {
		opts.EnqueueTimeout = DefaultOptions.EnqueueTimeout
	}
	if opts.Backpressure != BackpressureBlock {
		opts.Backpressure = BackpressureDrop
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultOptions.BatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultOptions.FlushInterval
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = DefaultOptions.RetryBase
	}
	if opts.RetryMax <= 0 {
		opts.RetryMax = DefaultOptions.RetryMax
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultOptions.GracePeriod
	}

	r := &Recorder{
		opts:   opts,
		store:  store,
		logger: logger,
		queue:   make(chan record, opts.QueueCapacity),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go r.consume()
	return r
}

// Dropped returns the number of records lost to backpressure or storage
// outage.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// Persisted returns the number of records written to the store.
func (r *Recorder) Persisted() int64 { return r.persisted.Load() }

func (r *Recorder) SessionStarted(rec model.SessionRecord) {
	r.enqueue(record{kind: kindSessionStart, session: rec})
}

func (r *Recorder) SessionEnded(sessionID string, at time.Time) {
	r.enqueue(record{kind: kindSessionEnd, sessionID: sessionID, at: at})
}

func (r *Recorder) CommandObserved(ev model.CommandEvent) {
	r.enqueue(record{kind: kindCommand, command: ev})
}

func (r *Recorder) CredentialObserved(att model.CredentialAttempt) {
	r.enqueue(record{kind: kindCredential, credential: att})
}

func (r *Recorder) ArtifactObserved(art model.Artifact) {
	r.enqueue(record{kind: kindArtifact, artifact: art})
}

// enqueue applies the configured backpressure policy. It never blocks
// longer than the enqueue timeout and never reports failure to the caller.
func (r *Recorder) enqueue(rec record) {
	select {
	case <-r.closing:
		r.dropped.Add(1)
		return
	default:
	}

	if r.opts.Backpressure == BackpressureDrop {
		select {
		case r.queue <- rec:
		default:
			r.dropped.Add(1)
		}
		return
	}

	timer := time.NewTimer(r.opts.EnqueueTimeout)
	defer timer.Stop()
	select {
	case r.queue <- rec:
	case <-timer.C:
		r.dropped.Add(1)
	case <-r.closing:
		r.dropped.Add(1)
	}
}

// Close stops ingestion and waits up to timeout for the consumer to drain
// what is already queued.
func (r *Recorder) Close(timeout time.Duration) {
	r.closeOnce.Do(func() {
		close(r.closing)
	})
	select {
	case <-r.done:
	case <-time.After(timeout):
	}
}

// consume drains the queue in batches: a batch goes out when it reaches
// BatchSize or when the flush interval expires with records pending.
func (r *Recorder) consume() {
	defer close(r.done)

	ticker := time.NewTicker(r.opts.FlushInterval)
	defer ticker.Stop()

	batch := make([]record, 0, r.opts.BatchSize)
	for {
		select {
		case rec := <-r.queue:
			batch = append(batch, rec)
			if len(batch) >= r.opts.BatchSize {
				r.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				r.flush(batch)
				batch = batch[:0]
			}
		case <-r.closing:
			// Drain whatever is already queued, then stop.
			for {
				select {
				case rec := <-r.queue:
					batch = append(batch, rec)
					if len(batch) >= r.opts.BatchSize {
						r.flush(batch)
						batch = batch[:0]
					}
				default:
					r.flush(batch)
					return
				}
			}
		}
	}
}

// flush persists one batch, retrying transient store errors with capped
// exponential backoff. The batch is broken into ordered store writes whose
// progress survives retries, so a write that already landed is never
// re-applied when a later one fails. If the store stays down past the grace
// period the rest of the batch is dropped and counted; memory never grows
// past one batch plus the queue.
func (r *Recorder) flush(batch []record) {
	if len(batch) == 0 {
		return
	}

	steps := r.plan(batch)
	deadline := time.Now().Add(r.opts.GracePeriod)
	backoff := r.opts.RetryBase
	for {
		err := steps.run()
		if err == nil {
			r.persisted.Add(int64(len(batch)))
			return
		}
		if time.Now().Add(backoff).After(deadline) {
			r.dropped.Add(int64(len(batch)))
			r.logger.Error("telemetry batch dropped after storage grace period",
				"records", len(batch), "err", err)
			return
		}
		r.logger.Warn("telemetry store unavailable, retrying", "backoff", backoff, "err", err)
		time.Sleep(backoff)
		backoff *= 2
		if backoff > r.opts.RetryMax {
			backoff = r.opts.RetryMax
		}
	}
}

// batchSteps is the ordered sequence of store writes for one batch. The
// cursor marks how far the batch got; run resumes there, so upserts that
// already bumped an occurrence count and event inserts that already landed
// are not repeated when a later write fails mid-batch.
type batchSteps struct {
	steps []func() error
	next  int
}

func (s *batchSteps) run() error {
	for s.next < len(s.steps) {
		if err := s.steps[s.next](); err != nil {
			return err
		}
		s.next++
	}
	return nil
}

// plan partitions a batch by record type into store writes. Relative order
// within each type is preserved, which keeps per-session command ordering
// monotonic. Session starts go first and ends last so a session row exists
// before its end-time update lands.
func (r *Recorder) plan(batch []record) *batchSteps {
	var (
		p           batchSteps
		commands    []model.CommandEvent
		credentials []model.CredentialAttempt
	)
	for _, rec := range batch {
		rec := rec
		if rec.kind == kindSessionStart {
			p.steps = append(p.steps, func() error { return r.store.InsertSession(rec.session) })
		}
	}
	for _, rec := range batch {
		rec := rec
		switch rec.kind {
		case kindCommand:
			commands = append(commands, rec.command)
		case kindCredential:
			credentials = append(credentials, rec.credential)
		case kindArtifact:
			p.steps = append(p.steps, func() error { return r.store.UpsertArtifact(rec.artifact) })
		}
	}
	if len(credentials) > 0 {
		p.steps = append(p.steps, func() error { return r.store.InsertCredentialAttempts(credentials) })
	}
	if len(commands) > 0 {
		p.steps = append(p.steps, func() error { return r.store.InsertCommandEvents(commands) })
	}
	for _, rec := range batch {
		rec := rec
		if rec.kind == kindSessionEnd {
			p.steps = append(p.steps, func() error { return r.store.CloseSession(rec.sessionID, rec.at) })
		}
	}
	return &p
}
