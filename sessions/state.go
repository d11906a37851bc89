package sessions

import "github.com/rfakhoury/wagate/driver"

// State is a session's position in the lifecycle.
type State string

const (
	// StateInitializing means a record exists but the driver handle has not
	// yet reported login progress. A record is created in this state before
	// its handle exists so a concurrent second init observes it instead of
	// starting a second connection.
	StateInitializing State = "initializing"
	// StatePending means the driver produced a login code and is waiting for
	// the user to scan it.
	StatePending State = "pending"
	// StateConnected means the handle is usable for messaging operations.
	StateConnected State = "connected"
	// StateDisconnected means the in-memory handle has been released; durable
	// login data is retained so a restart can reconnect without a new scan.
	StateDisconnected State = "disconnected"
)

// effect is the side effect bound to a driver-event transition.
type effect int

const (
	effectNone effect = iota
	// effectStoreCode stores the event's login code as the record's artifact.
	effectStoreCode
	// effectClearCode clears the artifact on reaching connected.
	effectClearCode
	// effectEvict releases the handle and removes the record.
	effectEvict
	// effectDisconnect releases the handle but keeps the record and its
	// durable login data.
	effectDisconnect
)

// transition is one allowed edge of the driver-event state machine. Command
// edges (init, stop, restart, delete, reinitialize) are handled by the
// Manager directly; this table governs only events emitted by the driver.
type transition struct {
	from   State
	event  driver.EventKind
	to     State
	effect effect
}

var transitions = []transition{
	{from: StateInitializing, event: driver.EventLoginCode, to: StatePending, effect: effectStoreCode},
	// The driver rotates codes while pending; each one replaces the last.
	{from: StatePending, event: driver.EventLoginCode, to: StatePending, effect: effectStoreCode},

	{from: StateInitializing, event: driver.EventReady, to: StateConnected, effect: effectClearCode},
	{from: StatePending, event: driver.EventReady, to: StateConnected, effect: effectClearCode},

	{from: StateInitializing, event: driver.EventAuthFailure, effect: effectEvict},
	{from: StatePending, event: driver.EventAuthFailure, effect: effectEvict},

	{from: StateInitializing, event: driver.EventDisconnected, to: StateDisconnected, effect: effectDisconnect},
	{from: StatePending, event: driver.EventDisconnected, to: StateDisconnected, effect: effectDisconnect},
	{from: StateConnected, event: driver.EventDisconnected, to: StateDisconnected, effect: effectDisconnect},
}

// transitionFor returns the allowed edge for a state and event. Events with
// no edge (late events for an evicted or already-disconnected session) are
// ignored by the caller rather than treated as errors.
func transitionFor(from State, ev driver.EventKind) (transition, bool) {
	for _, tr := range transitions {
		if tr.from == from && tr.event == ev {
			return tr, true
		}
	}
	return transition{}, false
}
