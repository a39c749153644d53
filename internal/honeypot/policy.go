package honeypot

import (
	"strings"
	"sync"
	"time"
)

// PolicyMode selects how login attempts are decided.
type PolicyMode string

const (
	// PolicyAcceptAll accepts every login. The default: maximizes captured
	// post-auth behavior.
	PolicyAcceptAll PolicyMode = "accept"
	// PolicyRejectAll rejects every login.
	PolicyRejectAll PolicyMode = "reject"
	// PolicyList accepts only configured username:password pairs.
	PolicyList PolicyMode = "list"
	// PolicyTarpit rejects the first N attempts per remote address, then
	// accepts. Mimics a server whose password eventually gets guessed.
	PolicyTarpit PolicyMode = "tarpit"
)

// CredentialPolicy decides login attempts. It is shared across all sessions
// and safe for concurrent use; the decision itself never blocks.
type CredentialPolicy struct {
	mode          PolicyMode
	allowed       map[string]string // username -> password, PolicyList only
	tarpitTries   int               // attempts rejected before acceptance, PolicyTarpit only
	ratePerMinute int               // 0 disables throttling

	clock Clock

	mu       sync.Mutex
	attempts map[string][]time.Time // remote address -> recent attempt times
	counts   map[string]int        // remote address -> total attempts (tarpit)
}

// PolicyOptions configures a CredentialPolicy.
type PolicyOptions struct {
	Mode PolicyMode
	// AllowedCredentials holds "username:password" pairs for PolicyList.
	AllowedCredentials []string
	// TarpitTries is the per-address attempt count rejected before
	// PolicyTarpit starts accepting. Defaults to 3.
	TarpitTries int
	// RatePerMinute caps login attempts per remote address per minute.
	// Beyond the cap attempts are rejected (simulated throttling) but still
	// recorded. 0 disables the cap.
	RatePerMinute int
}

// NewCredentialPolicy creates a policy from options. Unknown modes fall back
// to accept-all.
func NewCredentialPolicy(opts PolicyOptions, clock Clock) *CredentialPolicy {
	mode := opts.Mode
	switch mode {
	case PolicyAcceptAll, PolicyRejectAll, PolicyList, PolicyTarpit:
	default:
		mode = PolicyAcceptAll
	}

	allowed := make(map[string]string, len(opts.AllowedCredentials))
	for _, pair := range opts.AllowedCredentials {
		user, pass, ok := strings.Cut(pair, ":")
		if ok {
			allowed[user] = pass
		}
	}

	tries := opts.TarpitTries
	if tries <= 0 {
		tries = 3
	}

	return &CredentialPolicy{
		mode:          mode,
		allowed:       allowed,
		tarpitTries:   tries,
		ratePerMinute: opts.RatePerMinute,
		clock:         clock,
		attempts:      make(map[string][]time.Time),
		counts:        make(map[string]int),
	}
}

// Evaluate decides one login attempt. Every call corresponds to exactly one
// recorded CredentialAttempt regardless of the outcome.
func (p *CredentialPolicy) Evaluate(username, password, remoteAddr string) bool {
	if p.throttled(remoteAddr) {
		return false
	}

	switch p.mode {
	case PolicyRejectAll:
		return false
	case PolicyList:
		want, ok := p.allowed[username]
		return ok && want == password
	case PolicyTarpit:
		p.mu.Lock()
		p.counts[remoteAddr]++
		n := p.counts[remoteAddr]
		p.mu.Unlock()
		return n > p.tarpitTries
	default:
		return true
	}
}

// throttled records the attempt time and reports whether the per-address
// rate cap is exceeded. Entries older than one minute are pruned on each
// call, so state per address stays bounded by the cap itself.
func (p *CredentialPolicy) throttled(remoteAddr string) bool {
	if p.ratePerMinute <= 0 {
		return false
	}

	now := p.clock.Now()
	cutoff := now.Add(-time.Minute)

	p.mu.Lock()
	defer p.mu.Unlock()

	recent := p.attempts[remoteAddr][:0]
	for _, t := range p.attempts[remoteAddr] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	recent = append(recent, now)
	p.attempts[remoteAddr] = recent

	return len(recent) > p.ratePerMinute
}
