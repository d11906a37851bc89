// Package sessions implements the multi-tenant session lifecycle core: the
// registry of per-tenant records, the state machine driven by driver events
// and API commands, and the bounded readiness wait used by every operation
// that needs a connected driver handle.
//
// Each tenant owns at most one Record at a time. Commands for one tenant are
// serialized on the record; tenants never block one another. Durable login
// data lives on disk under the manager's data directory, written by the
// driver, and is erased only by Delete.
package sessions

import "errors"

var (
	// ErrNotFound indicates no session record exists for the tenant.
	ErrNotFound = errors.New("session not found")
	// ErrNotReady indicates the operation requires a connected session but the
	// session is still initializing, pending a login scan, or disconnected.
	ErrNotReady = errors.New("session not ready")
	// ErrUnavailable indicates the session transitioned to disconnected while
	// the caller was waiting on it.
	ErrUnavailable = errors.New("session disconnected")
	// ErrAwaitTimeout indicates readiness was not reached within the caller's
	// budget.
	ErrAwaitTimeout = errors.New("timed out waiting for session readiness")
)
