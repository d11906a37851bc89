package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/rfakhoury/wagate/driver"
	"github.com/rfakhoury/wagate/tenant"
)

// Manager owns the registry and applies every lifecycle command and driver
// event. Commands for one tenant serialize on the record mutex; events are
// applied in the order the driver emits them by a per-handle pump goroutine.
type Manager struct {
	factory  driver.Factory
	registry *Registry
	dataDir  string
	log      *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// NewManager builds a Manager rooted at dataDir, the directory holding each
// tenant's durable login data. Failure to create it is fatal: the process
// cannot persist sessions without it.
func NewManager(factory driver.Factory, dataDir string, opts ...Option) (*Manager, error) {
	if factory == nil {
		return nil, fmt.Errorf("driver factory required")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create session data dir %s: %w", dataDir, err)
	}
	m := &Manager{
		factory:  factory,
		registry: NewRegistry(),
		dataDir:  dataDir,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// Registry exposes the session registry for status surfaces.
func (m *Manager) Registry() *Registry { return m.registry }

// DataDirFor returns the tenant's durable login-data directory.
func (m *Manager) DataDirFor(id tenant.ID) string {
	return filepath.Join(m.dataDir, id.String())
}

// HasDurableData reports whether durable login data exists on disk for the
// tenant, independent of any in-memory record.
func (m *Manager) HasDurableData(id tenant.ID) bool {
	entries, err := os.ReadDir(m.DataDirFor(id))
	return err == nil && len(entries) > 0
}

// InitResult is the outcome of an init-class command.
type InitResult struct {
	State State
	// LoginCode is the outstanding artifact while the session is pending.
	LoginCode *driver.LoginCode
	// AlreadyConnected is set when init found a connected session and did
	// nothing.
	AlreadyConnected bool
}

// Init creates the tenant's session if absent and begins the driver connect.
// It is idempotent: while pending it returns the outstanding login code,
// while connected it reports AlreadyConnected, and while initializing it
// returns without starting a second connection. A disconnected record is
// reconnected in place, reusing durable login data.
func (m *Manager) Init(ctx context.Context, id tenant.ID) (*InitResult, error) {
	for {
		rec, created := m.registry.GetOrCreate(id)

		rec.mu.Lock()
		if rec.evicted {
			// Lost a race with eviction between lookup and lock; start over
			// with a fresh record.
			rec.mu.Unlock()
			continue
		}
		if !created {
			switch rec.state {
			case StateConnected:
				rec.mu.Unlock()
				return &InitResult{State: StateConnected, AlreadyConnected: true}, nil
			case StatePending:
				res := &InitResult{State: StatePending, LoginCode: rec.artifact}
				rec.mu.Unlock()
				return res, nil
			case StateInitializing:
				rec.mu.Unlock()
				return &InitResult{State: StateInitializing}, nil
			case StateDisconnected:
				// Reconnect in place below.
			}
		}

		res, stale, err := m.connectLocked(ctx, rec)
		rec.mu.Unlock()
		if err != nil {
			m.registry.removeEntry(id, rec)
			m.release(stale)
			return nil, err
		}
		m.log.InfoContext(ctx, "session init started", slog.String("tenant", id.String()))
		return res, nil
	}
}

// connectLocked builds and starts a handle for rec. Callers must hold rec.mu.
// On failure the record is marked evicted and the handle that must still be
// released (if any) is returned alongside the error; the caller finishes the
// eviction outside the lock.
func (m *Manager) connectLocked(ctx context.Context, rec *Record) (*InitResult, driver.Handle, error) {
	rec.artifact = nil
	rec.setStateLocked(StateInitializing)

	h, err := m.factory.NewHandle(ctx, rec.tenantID.String(), m.DataDirFor(rec.tenantID))
	if err != nil {
		rec.evicted = true
		rec.broadcastLocked()
		return nil, nil, fmt.Errorf("create driver handle: %w", err)
	}
	rec.handle = h
	go m.pump(rec, h)

	if err := h.Connect(ctx); err != nil {
		rec.handle = nil
		rec.evicted = true
		rec.broadcastLocked()
		return nil, h, fmt.Errorf("driver connect: %w", err)
	}
	return &InitResult{State: rec.state, LoginCode: rec.artifact}, nil, nil
}

// Stop releases the tenant's in-memory handle and marks the session
// disconnected. Durable login data is retained so a later restart reconnects
// without a fresh login code.
func (m *Manager) Stop(ctx context.Context, id tenant.ID) error {
	rec := m.registry.Get(id)
	if rec == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec.mu.Lock()
	h := rec.handle
	rec.handle = nil
	rec.artifact = nil
	rec.setStateLocked(StateDisconnected)
	rec.mu.Unlock()

	m.release(h)
	m.log.InfoContext(ctx, "session stopped", slog.String("tenant", id.String()))
	return nil
}

// Restart stops the session if one exists, then runs a fresh init.
func (m *Manager) Restart(ctx context.Context, id tenant.ID) (*InitResult, error) {
	if err := m.Stop(ctx, id); err != nil && !IsNotFound(err) {
		return nil, err
	}
	return m.Init(ctx, id)
}

// Delete tears the session down hard: the record is evicted, the handle
// released, and the tenant's durable login data erased. Deleting a tenant
// with no record still erases any durable data left on disk.
func (m *Manager) Delete(ctx context.Context, id tenant.ID) error {
	if rec := m.registry.Get(id); rec != nil {
		m.evict(rec)
	}
	if err := os.RemoveAll(m.DataDirFor(id)); err != nil {
		return fmt.Errorf("erase durable login data: %w", err)
	}
	m.log.InfoContext(ctx, "session deleted", slog.String("tenant", id.String()))
	return nil
}

// Reinitialize forces a fresh login flow. A connected session is left alone
// (AlreadyConnected); a session stuck before ready is logged out, evicted,
// and re-initialized so the driver issues a new login code. Durable login
// data is not erased; that is Delete's job.
func (m *Manager) Reinitialize(ctx context.Context, id tenant.ID) (*InitResult, error) {
	if rec := m.registry.Get(id); rec != nil {
		rec.mu.Lock()
		if rec.state == StateConnected {
			rec.mu.Unlock()
			return &InitResult{State: StateConnected, AlreadyConnected: true}, nil
		}
		rec.mu.Unlock()
		m.evict(rec)
	}
	return m.Init(ctx, id)
}

// Status describes a session to the caller.
type Status struct {
	TenantID tenant.ID
	State    State
	// LoginCode is present while pending.
	LoginCode *driver.LoginCode
	// DriverState is the driver's own view of the link, populated when the
	// session is connected.
	DriverState driver.ConnectionState
	// Since is when the session entered its current state.
	Since time.Time
}

// Status reports the tenant's session state.
func (m *Manager) Status(ctx context.Context, id tenant.ID) (*Status, error) {
	rec := m.registry.Get(id)
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec.mu.Lock()
	st := &Status{
		TenantID:  id,
		State:     rec.state,
		LoginCode: rec.artifact,
		Since:     rec.enteredAt,
	}
	h := rec.handle
	connected := rec.state == StateConnected
	rec.mu.Unlock()

	if connected && h != nil {
		ds, err := h.ConnectionState(ctx)
		if err != nil {
			m.log.WarnContext(ctx, "driver connection state query failed",
				slog.String("tenant", id.String()), slog.String("error", err.Error()))
		} else {
			st.DriverState = ds
		}
	}
	return st, nil
}

// pump applies the handle's event stream to the record until the driver
// closes it. Events arriving after the record has been evicted, or for a
// handle the record no longer owns, are dropped.
func (m *Manager) pump(rec *Record, h driver.Handle) {
	for ev := range h.Events() {
		m.applyEvent(rec, h, ev)
	}
}

func (m *Manager) applyEvent(rec *Record, h driver.Handle, ev driver.Event) {
	rec.mu.Lock()
	if rec.evicted || rec.handle != h {
		rec.mu.Unlock()
		m.log.Debug("dropping stale driver event",
			slog.String("tenant", rec.tenantID.String()), slog.String("event", ev.Kind.String()))
		return
	}
	tr, ok := transitionFor(rec.state, ev.Kind)
	if !ok {
		rec.mu.Unlock()
		m.log.Debug("ignoring driver event with no transition",
			slog.String("tenant", rec.tenantID.String()),
			slog.String("state", string(rec.state)), slog.String("event", ev.Kind.String()))
		return
	}

	var toRelease driver.Handle
	switch tr.effect {
	case effectStoreCode:
		rec.artifact = ev.Code
		rec.setStateLocked(StatePending)
		// Code rotation keeps the state pending; wake waiters anyway so a
		// pending-tolerant caller sees the fresh code.
		rec.broadcastLocked()
	case effectClearCode:
		rec.artifact = nil
		rec.setStateLocked(StateConnected)
	case effectDisconnect:
		toRelease = rec.handle
		rec.handle = nil
		rec.artifact = nil
		rec.setStateLocked(StateDisconnected)
	case effectEvict:
		toRelease = rec.handle
		rec.handle = nil
		rec.artifact = nil
		rec.evicted = true
		rec.broadcastLocked()
	}
	state := rec.state
	rec.mu.Unlock()

	if tr.effect == effectEvict {
		m.registry.removeEntry(rec.tenantID, rec)
	}
	m.release(toRelease)

	m.log.Info("session transition",
		slog.String("tenant", rec.tenantID.String()),
		slog.String("event", ev.Kind.String()),
		slog.String("state", string(state)),
		slog.Bool("evicted", tr.effect == effectEvict))
}

// evict removes rec from the registry and releases its handle. Safe to call
// during racing cleanup paths; the handle is released at most once.
func (m *Manager) evict(rec *Record) {
	rec.mu.Lock()
	if rec.evicted {
		rec.mu.Unlock()
		return
	}
	h := rec.handle
	rec.handle = nil
	rec.artifact = nil
	rec.evicted = true
	rec.broadcastLocked()
	rec.mu.Unlock()

	m.registry.removeEntry(rec.tenantID, rec)
	m.release(h)
}

// release frees a handle's driver resources. Handles tolerate repeated
// release, so racing cleanup paths are safe.
func (m *Manager) release(h driver.Handle) {
	if h == nil {
		return
	}
	if err := h.Release(context.Background()); err != nil {
		m.log.Warn("driver handle release failed", slog.String("error", err.Error()))
	}
}

// IsNotFound reports whether err is a not-found session failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
