package testutil

import (
	"errors"
	"sync"
	"time"

	"decoyftp/internal/model"
	"decoyftp/internal/recorder"
)

// ErrStoreDown is returned by a FlakyStore while it is failing.
var ErrStoreDown = errors.New("store unavailable")

// FlakyStore is an in-memory recorder.Store whose writes fail while Fail is
// set, for storage-outage tests. Safe for concurrent use.
type FlakyStore struct {
	mu          sync.Mutex
	failing     bool
	failures    int
	Sessions    []model.SessionRecord
	Ends        []string
	Commands    []model.CommandEvent
	Credentials []model.CredentialAttempt
	Artifacts   []model.Artifact
}

var _ recorder.Store = (*FlakyStore)(nil)

func NewFlakyStore() *FlakyStore {
	return &FlakyStore{}
}

// SetFailing switches the store between healthy and failing.
func (s *FlakyStore) SetFailing(failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = failing
}

// Failures returns how many writes were rejected while failing.
func (s *FlakyStore) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

func (s *FlakyStore) reject() bool {
	if s.failing {
		s.failures++
		return true
	}
	return false
}

func (s *FlakyStore) InsertSession(rec model.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reject() {
		return ErrStoreDown
	}
	s.Sessions = append(s.Sessions, rec)
	return nil
}

func (s *FlakyStore) CloseSession(sessionID string, end time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reject() {
		return ErrStoreDown
	}
	s.Ends = append(s.Ends, sessionID)
	return nil
}

func (s *FlakyStore) InsertCommandEvents(events []model.CommandEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reject() {
		return ErrStoreDown
	}
	s.Commands = append(s.Commands, events...)
	return nil
}

func (s *FlakyStore) InsertCredentialAttempts(attempts []model.CredentialAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reject() {
		return ErrStoreDown
	}
	s.Credentials = append(s.Credentials, attempts...)
	return nil
}

func (s *FlakyStore) UpsertArtifact(art model.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reject() {
		return ErrStoreDown
	}
	for i := range s.Artifacts {
		if s.Artifacts[i].Hash == art.Hash {
			s.Artifacts[i].OccurrenceCount++
			s.Artifacts[i].LastSeen = art.LastSeen
			return nil
		}
	}
	s.Artifacts = append(s.Artifacts, art)
	return nil
}

// CommandCount returns how many command events have been persisted.
func (s *FlakyStore) CommandCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Commands)
}
