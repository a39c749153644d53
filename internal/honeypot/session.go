package honeypot

import (
	"errors"
	"path"
	"strings"
	"time"
)

// ErrPathPolicy marks attacker input that violates the virtual path policy:
// traversal outside the root, oversized paths, or too many segments. The
// interceptor answers these with a plain "not found", never an error leak.
var ErrPathPolicy = errors.New("path outside virtual root policy")

const (
	maxPathLen      = 1024
	maxPathSegments = 32
	maxHistory      = 512
)

// State tracks where a session is in its lifecycle. Transitions are driven
// entirely by callbacks from the external protocol engine.
type State int

const (
	StateConnecting State = iota
	StateAuthenticating
	StateActive
	StateClosing
	StateClosed
)

var stateNames = [...]string{
	StateConnecting:     "connecting",
	StateAuthenticating: "authenticating",
	StateActive:         "active",
	StateClosing:        "closing",
	StateClosed:         "closed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// HistoryEntry is one attacker command as seen by the session.
type HistoryEntry struct {
	Verb     Verb
	Argument string
	At       time.Time
}

// Session holds per-connection mutable state. A Session is owned by exactly
// one connection task and must not be shared across sessions; no locking is
// done here.
type Session struct {
	id         string
	remoteAddr string
	startTime  time.Time
	state      State
	username   string
	cwd        string
	history    []HistoryEntry
}

// NewSession creates a session for a freshly accepted connection.
func NewSession(id, remoteAddr string, start time.Time) *Session {
	return &Session{
		id:         id,
		remoteAddr: remoteAddr,
		startTime:  start,
		state:      StateConnecting,
		cwd:        "/",
	}
}

func (s *Session) ID() string         { return s.id }
func (s *Session) RemoteAddr() string { return s.remoteAddr }
func (s *Session) StartTime() time.Time { return s.startTime }
func (s *Session) State() State       { return s.state }
func (s *Session) Username() string   { return s.username }
func (s *Session) Cwd() string        { return s.cwd }

// History returns the recorded commands in order.
func (s *Session) History() []HistoryEntry { return s.history }

// SetState advances the lifecycle. Closed is terminal; any transition out
// of it is ignored.
func (s *Session) SetState(st State) {
	if s.state == StateClosed {
		return
	}
	s.state = st
}

// SetUsername records the identity presented via USER.
func (s *Session) SetUsername(name string) { s.username = name }

// Record appends a command to the bounded history. Oldest entries are
// dropped once the cap is reached so a hostile session cannot grow memory.
func (s *Session) Record(verb Verb, argument string, at time.Time) {
	if len(s.history) >= maxHistory {
		s.history = s.history[1:]
	}
	s.history = append(s.history, HistoryEntry{Verb: verb, Argument: argument, At: at})
}

// ChangeDirectory normalizes target against the current directory and makes
// it the new working directory. The caller is expected to have verified the
// directory exists in the virtual model.
func (s *Session) ChangeDirectory(target string) error {
	normalized, err := s.Resolve(target)
	if err != nil {
		return err
	}
	s.cwd = normalized
	return nil
}

// Resolve normalizes raw against the session's working directory and clamps
// it inside the virtual root. Absolute input is resolved from the root;
// relative input from the cwd. Traversal that would escape the root and
// oversized input yield ErrPathPolicy.
func (s *Session) Resolve(raw string) (string, error) {
	if len(raw) > maxPathLen {
		return "", ErrPathPolicy
	}

	joined := raw
	if !strings.HasPrefix(raw, "/") {
		joined = s.cwd + "/" + raw
	}

	// Walk the segments with an explicit stack. A ".." with nothing left to
	// pop is an attempt to climb above the virtual root.
	var stack []string
	for _, seg := range strings.Split(joined, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(stack) == 0 {
				return "", ErrPathPolicy
			}
			stack = stack[:len(stack)-1]
		default:
			stack = append(stack, seg)
		}
	}
	if len(stack) > maxPathSegments {
		return "", ErrPathPolicy
	}
	return path.Clean("/" + strings.Join(stack, "/")), nil
}
