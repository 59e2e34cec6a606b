// Package session implements the charge-point-wide status machine spec.md
// §3/§4.6 describes: DISCONNECTED -> CONNECTING -> CONNECTED -> AUTHORIZED
// -> IN_TRANSACTION, plus ERROR reachable from any state.
package session

import (
	"sync"

	"github.com/weilun-shrimp/ocpp16-cp-sim/internal/observer"
)

// Status is one of the charge point's lifecycle states.
type Status string

const (
	Disconnected  Status = "DISCONNECTED"
	Connecting    Status = "CONNECTING"
	Connected     Status = "CONNECTED"
	Authorized    Status = "AUTHORIZED"
	InTransaction Status = "IN_TRANSACTION"
	Error         Status = "ERROR"
)

// allowed records the legal Status -> Status transitions from spec.md
// §4.6. ERROR is reachable from every state and is therefore not listed as
// a destination here — Machine.Fail always succeeds regardless of table
// contents.
var allowed = map[Status]map[Status]bool{
	Disconnected:  {Connecting: true},
	Connecting:    {Connected: true, Disconnected: true},
	Connected:     {Authorized: true, InTransaction: true, Disconnected: true},
	Authorized:    {InTransaction: true, Connected: true, Disconnected: true},
	InTransaction: {Authorized: true, Disconnected: true},
	Error:         {Connecting: true, Disconnected: true},
}

// Machine is the charge point's session state machine. Every transition is
// observable before the next inbound message is processed, per spec.md
// §4.6's ordering invariant: Transition holds Machine's lock for its whole
// duration, so OnStatusChange fires strictly before the method
// returns and the caller's goroutine moves on to the next frame.
type Machine struct {
	mu       sync.Mutex
	status   Status
	observer observer.Observer
}

// New returns a Machine starting in DISCONNECTED.
func New(obs observer.Observer) *Machine {
	if obs == nil {
		obs = observer.NoopObserver{}
	}
	return &Machine{status: Disconnected, observer: obs}
}

// Status returns the current status.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Transition moves to next if the transition is legal, notifying the
// observer with detail (empty for ordinary application transitions). It
// reports whether the transition was applied; an illegal transition is a
// no-op, left for the caller to log.
func (m *Machine) Transition(next Status, detail string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status == next {
		return true
	}
	if !allowed[m.status][next] {
		return false
	}
	m.status = next
	m.observer.OnStatusChange(string(next), detail)
	return true
}

// Fail forces ERROR from any state — socket errors and protocol
// violations always win, per spec.md §4.6. detail is spec.md §4.8's
// readyState/close-code text ("ws normal error", "connection cannot be
// opened", "websocket error", "Connection error: <code>",
// "No connection to OCPP server").
func (m *Machine) Fail(detail string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == Error {
		return
	}
	m.status = Error
	m.observer.OnStatusChange(string(Error), detail)
}

// Reset forces DISCONNECTED from any state, used by disconnect() per
// spec.md §4.8.
func (m *Machine) Reset(detail string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == Disconnected {
		return
	}
	m.status = Disconnected
	m.observer.OnStatusChange(string(Disconnected), detail)
}
