package dispatcher

import (
	"sync"
	"time"
)

// Status is a provider's availability state.
type Status string

const (
	StatusAvailable   Status = "available"
	StatusRateLimited Status = "rate_limited"
)

// providerState tracks one provider's availability.
type providerState struct {
	status        Status
	cooldownUntil time.Time
}

// StateTable tracks which providers are currently usable. A provider that
// returns a rate-limit error is flagged for a fixed cooldown; recovery is
// lazy, happening the next time the provider is considered after its
// cooldown expires.
type StateTable struct {
	cooldown time.Duration
	now      func() time.Time

	mu     sync.Mutex
	states map[string]*providerState
}

// NewStateTable creates a table with the given cooldown period.
func NewStateTable(cooldown time.Duration) *StateTable {
	return &StateTable{
		cooldown: cooldown,
		now:      time.Now,
		states:   make(map[string]*providerState),
	}
}

func (t *StateTable) state(name string) *providerState {
	s, ok := t.states[name]
	if !ok {
		s = &providerState{status: StatusAvailable}
		t.states[name] = s
	}
	return s
}

// MarkRateLimited flags the provider and starts its cooldown. Re-flagging
// an already limited provider does not extend the cooldown; several
// workers hitting the same quota wall must not push recovery further out.
// It returns true on the first transition.
func (t *StateTable) MarkRateLimited(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.state(name)
	if s.status == StatusRateLimited && t.now().Before(s.cooldownUntil) {
		return false
	}
	s.status = StatusRateLimited
	s.cooldownUntil = t.now().Add(t.cooldown)
	return true
}

// Eligible reports whether the provider may be tried. An expired cooldown
// flips the provider back to available.
func (t *StateTable) Eligible(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.state(name)
	if s.status == StatusAvailable {
		return true
	}
	if !t.now().Before(s.cooldownUntil) {
		s.status = StatusAvailable
		s.cooldownUntil = time.Time{}
		return true
	}
	return false
}

// Status returns the provider's current state without triggering recovery.
func (t *StateTable) Status(name string) Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state(name).status
}

// Reset returns the provider to available immediately.
func (t *StateTable) Reset(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.state(name)
	s.status = StatusAvailable
	s.cooldownUntil = time.Time{}
}

// SoonestRecovery returns the earliest cooldown expiry among currently
// limited providers. The second return value is false when no provider is
// cooling down.
func (t *StateTable) SoonestRecovery() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var soonest time.Time
	found := false
	for _, s := range t.states {
		if s.status != StatusRateLimited {
			continue
		}
		if !found || s.cooldownUntil.Before(soonest) {
			soonest = s.cooldownUntil
			found = true
		}
	}
	return soonest, found
}
