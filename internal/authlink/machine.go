// Package authlink tracks the lifecycle of an in-flight recovery or
// verification link exchange. The status is process-wide state rather than
// screen-local: the exchange is started by the URL-handling path while the
// screen that renders its outcome may not be mounted yet, and a screen that
// inferred "expired" from the mere absence of a token would flash a false
// error while the exchange is still in flight.
package authlink

import "sync"

// State is the lifecycle position of the current link exchange.
type State string

const (
	StateIdle       State = "idle"
	StateProcessing State = "processing"
	StateSuccess    State = "success"
	StateError      State = "error"
)

// Intent is the flow the link belongs to.
type Intent string

const (
	IntentRecovery Intent = "recovery"
	IntentVerify   Intent = "verify"
)

// Status is a snapshot of the machine. Intent and Err are meaningful only
// outside StateIdle.
type Status struct {
	State  State
	Intent Intent
	Err    string
}

// Machine serializes status transitions for one exchange at a time.
type Machine struct {
	mu     sync.Mutex
	status Status
}

func New() *Machine {
	return &Machine{status: Status{State: StateIdle}}
}

// Begin enters processing for the given intent. It always clears a prior
// error so a retry never displays the previous failure, and is permitted
// from any state to support retry-without-reset.
func (m *Machine) Begin(intent Intent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = Status{State: StateProcessing, Intent: intent}
}

// Succeed marks the exchange complete. Ignored unless processing.
func (m *Machine) Succeed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status.State != StateProcessing {
		return
	}
	m.status.State = StateSuccess
	m.status.Err = ""
}

// Fail records a terminal failure with a user-facing message. Ignored unless
// processing, so a late failure cannot clobber a handled outcome.
func (m *Machine) Fail(message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status.State != StateProcessing {
		return
	}
	m.status.State = StateError
	m.status.Err = message
}

// Reset returns the machine to idle. The consumer calls this after it has
// fully handled a terminal state; until then the status survives remounts.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = Status{State: StateIdle}
}

// Status returns the current snapshot.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}
