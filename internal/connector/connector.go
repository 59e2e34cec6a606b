// Package connector implements spec.md §4.4's per-connector model: durable
// availability (Operative/Inoperative) and session-scoped status, plus the
// connector-0-cascades-to-1-and-2 rule.
package connector

import (
	"fmt"
	"strconv"

	"github.com/weilun-shrimp/ocpp16-cp-sim/internal/kvstore"
	"github.com/weilun-shrimp/ocpp16-cp-sim/internal/observer"
)

// Status values a connector's session-scoped status can take.
const (
	StatusAvailable   = "Available"
	StatusCharging    = "Charging"
	StatusUnavailable = "Unavailable"
	StatusFinishing   = "Finishing"
)

// Availability values a connector's durable availability can take.
const (
	Operative   = "Operative"
	Inoperative = "Inoperative"
)

// IDs are the three connectors this model knows about: 0 is the charge
// point itself, 1 and 2 are outlets.
const (
	ConnectorChargePoint = 0
	ConnectorOutlet1     = 1
	ConnectorOutlet2     = 2
)

// Model tracks availability (durable) and status (session) for connectors
// 0, 1, and 2.
type Model struct {
	session observer.Observer
	durable kvstore.Store
	sess    kvstore.Store
}

// New builds a connector Model backed by the given durable and session
// stores, notifying obs of every change.
func New(durable, session kvstore.Store, obs observer.Observer) *Model {
	if obs == nil {
		obs = observer.NoopObserver{}
	}
	return &Model{durable: durable, sess: session, session: obs}
}

func statusKey(c int) string {
	return kvstore.KeyConnStatus + strconv.Itoa(c)
}

func availabilityKey(c int) string {
	return kvstore.KeyConnAvailability + strconv.Itoa(c)
}

// GetStatus returns connector c's session-scoped status, defaulting to
// Available.
func (m *Model) GetStatus(c int) string {
	return m.sess.Get(statusKey(c), StatusAvailable)
}

// SetStatus writes connector c's session-scoped status. When notify is
// true, the change is also reported via the observer (callers pass false
// for StopTransaction's Finishing transition, per spec.md §4.7 — the
// server will query status on its own schedule).
func (m *Model) SetStatus(c int, status string, notify bool) {
	m.sess.Put(statusKey(c), status)
	if notify {
		m.session.OnConnectorStatusChange(c, status)
	}
}

// GetAvailability returns connector c's durable availability, defaulting
// to Operative.
func (m *Model) GetAvailability(c int) string {
	return m.durable.Get(availabilityKey(c), Operative)
}

// SetAvailability writes connector c's durable availability and applies
// the corrected side effects from spec.md §4.4: Inoperative forces status
// Unavailable, Operative forces status Available. When c is the
// charge-point connector (0), the same availability is cascaded to
// connectors 1 and 2 after this connector's own update and event fire.
func (m *Model) SetAvailability(c int, availability string) error {
	switch availability {
	case Operative, Inoperative:
	default:
		return fmt.Errorf("connector: invalid availability %q", availability)
	}

	m.durable.Put(availabilityKey(c), availability)

	switch availability {
	case Inoperative:
		m.SetStatus(c, StatusUnavailable, true)
	case Operative:
		m.SetStatus(c, StatusAvailable, true)
	}

	m.session.OnAvailabilityChange(c, availability)

	if c == ConnectorChargePoint {
		if err := m.SetAvailability(ConnectorOutlet1, availability); err != nil {
			return err
		}
		if err := m.SetAvailability(ConnectorOutlet2, availability); err != nil {
			return err
		}
	}
	return nil
}
