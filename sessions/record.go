package sessions

import (
	"sync"
	"time"

	"github.com/rfakhoury/wagate/driver"
	"github.com/rfakhoury/wagate/tenant"
)

// Record is one tenant's session state. It is owned exclusively by the
// registry; all mutation happens under mu, and every mutation broadcasts on
// the notification channel so readiness waiters wake immediately instead of
// polling.
type Record struct {
	tenantID tenant.ID

	mu        sync.Mutex
	state     State
	handle    driver.Handle
	artifact  *driver.LoginCode
	enteredAt time.Time
	evicted   bool

	// notify is closed and replaced on every state change. Waiters grab the
	// current channel under mu and select on it.
	notify chan struct{}
}

func newRecord(id tenant.ID) *Record {
	return &Record{
		tenantID:  id,
		state:     StateInitializing,
		enteredAt: time.Now(),
		notify:    make(chan struct{}),
	}
}

// Snapshot is a consistent read of a record's observable state.
type Snapshot struct {
	TenantID  tenant.ID
	State     State
	LoginCode *driver.LoginCode
	EnteredAt time.Time
}

// Snapshot returns the record's current observable state.
func (r *Record) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		TenantID:  r.tenantID,
		State:     r.state,
		LoginCode: r.artifact,
		EnteredAt: r.enteredAt,
	}
}

// broadcastLocked wakes every waiter. Callers must hold mu.
func (r *Record) broadcastLocked() {
	close(r.notify)
	r.notify = make(chan struct{})
}

// setStateLocked moves the record to s and wakes waiters. Callers must hold mu.
func (r *Record) setStateLocked(s State) {
	if r.state == s {
		return
	}
	r.state = s
	r.enteredAt = time.Now()
	r.broadcastLocked()
}
