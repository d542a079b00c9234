package game

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// TimerRole identifies the single live timer a state machine may hold for a
// given purpose. Re-arming a role always cancels the prior handle first, so a
// role can never leak concurrent timers.
type TimerRole string

const (
	RoleHolderExpiry TimerRole = "holderExpiry"
	RoleCountdown    TimerRole = "countdown"
	RoleAutoStart    TimerRole = "autoStartDebounce"
	RoleResetDelay   TimerRole = "resetDelay"
)

// TimerRegistry owns one timer handle per role on top of an injectable clock.
type TimerRegistry struct {
	clock  clockwork.Clock
	mu     sync.Mutex
	timers map[TimerRole]clockwork.Timer
}

func NewTimerRegistry(clock clockwork.Clock) *TimerRegistry {
	return &TimerRegistry{clock: clock, timers: make(map[TimerRole]clockwork.Timer)}
}

// Arm schedules fn to run once after d, cancelling any prior timer of the same
// role. fn runs on its own goroutine; callers are responsible for re-validating
// state when it fires.
func (r *TimerRegistry) Arm(role TimerRole, d time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timers[role]; ok {
		t.Stop()
	}
	r.timers[role] = r.clock.AfterFunc(d, fn)
}

// Cancel stops the timer for a role, if any.
func (r *TimerRegistry) Cancel(role TimerRole) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timers[role]; ok {
		t.Stop()
		delete(r.timers, role)
	}
}

// CancelAll stops every live timer. Used on terminal transitions (manual
// reset, roster wipe, shutdown).
func (r *TimerRegistry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for role, t := range r.timers {
		t.Stop()
		delete(r.timers, role)
	}
}
