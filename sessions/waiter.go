package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/rfakhoury/wagate/driver"
	"github.com/rfakhoury/wagate/tenant"
)

// WaitLevel is the readiness a caller requires from AwaitReady. It is an
// explicit parameter: read-only operations that tolerate the login-code
// window say so, everything else waits for a connected session.
type WaitLevel int

const (
	// WaitConnected blocks until the session is connected.
	WaitConnected WaitLevel = iota
	// WaitPending also accepts a session that is still pending a login scan.
	// The returned handle exists but is not yet authorized for messaging.
	WaitPending
)

// AwaitReady blocks until the tenant's session satisfies level, then returns
// its driver handle. If no record exists the session is initialized lazily
// first. The wait is event-driven: each state transition wakes waiters
// directly, so readiness is observed without poll latency.
//
// Failure modes:
//   - ErrAwaitTimeout when budget elapses. A record still stuck in
//     initializing is evicted as a side effect so a wedged session does not
//     leak; a pending record is left intact, since the user may simply not
//     have scanned the code yet.
//   - ErrNotFound when the record disappears during the wait.
//   - ErrUnavailable when the session transitions to disconnected.
//   - ctx.Err() when the caller's context ends first.
func (m *Manager) AwaitReady(ctx context.Context, id tenant.ID, level WaitLevel, budget time.Duration) (driver.Handle, error) {
	rec := m.registry.Get(id)
	if rec == nil {
		if _, err := m.Init(ctx, id); err != nil {
			return nil, err
		}
		rec = m.registry.Get(id)
		if rec == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
	}

	timer := time.NewTimer(budget)
	defer timer.Stop()

	for {
		rec.mu.Lock()
		switch {
		case rec.evicted:
			rec.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		case rec.state == StateConnected:
			h := rec.handle
			rec.mu.Unlock()
			return h, nil
		case rec.state == StatePending && level == WaitPending:
			h := rec.handle
			rec.mu.Unlock()
			return h, nil
		case rec.state == StateDisconnected:
			rec.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrUnavailable, id)
		}
		ch := rec.notify
		rec.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			rec.mu.Lock()
			wedged := !rec.evicted && rec.state == StateInitializing
			rec.mu.Unlock()
			if wedged {
				m.evict(rec)
			}
			return nil, fmt.Errorf("%w: %s after %s", ErrAwaitTimeout, id, budget)
		case <-ch:
			// State changed; re-evaluate.
		}
	}
}
