// Package kvstore implements the two-namespace key-value abstraction from
// spec.md §4.1: a session store cleared every reconnect, and a durable store
// that survives process restarts. All values are strings — callers parse.
package kvstore

// Store is a string-keyed get/put interface with defaulted reads. Both the
// session and durable namespaces implement it so the rest of the engine
// never needs to know which backs a given call.
type Store interface {
	// Get returns the value stored at key, or def if the key is unset.
	Get(key, def string) string
	// Put stores value at key.
	Put(key, value string)
}

// Fixed key prefixes/names shared by both namespaces, per spec.md §4.1.
const (
	KeyCPStatus         = "cp_status"
	KeyMeterValue       = "meter_value"
	KeyConnStatus       = "conn_status"       // suffixed with connector id
	KeyConnAvailability = "conn_availability" // suffixed with connector id
	KeyTransactionID    = "TransactionId"
	KeyLastAction       = "LastAction" // historical artifact, see DESIGN.md
	KeyWSURL            = "WSURL"
	KeyCPID             = "CPID"
	KeyTag              = "TAG"
	KeyNegotiatedSubp   = "negotiated_subprotocol"
)
