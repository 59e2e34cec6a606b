package ocpp

import "fmt"

// Kind classifies the error conditions spec.md §7 names, so callers can
// distinguish a dropped connection from a malformed frame from a timed-out
// call without string-matching error text.
type Kind int

const (
	// KindTransportError covers socket open failure, unexpected close, or a
	// write attempted on a closed socket. The engine is unusable until
	// reconnect.
	KindTransportError Kind = iota
	// KindProtocolError covers malformed JSON, an unknown message type, or
	// an unknown inbound action. The socket stays open.
	KindProtocolError
	// KindServerRejection covers a BootNotification that came back anything
	// other than Accepted, or an Authorize that came back Invalid.
	KindServerRejection
	// KindOperationNotApplicable covers StopTransaction/MeterValues sent
	// without a known transaction id.
	KindOperationNotApplicable
	// KindTimeout covers a pending call that never resolved within the
	// correlation timeout.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindTransportError:
		return "TransportError"
	case KindProtocolError:
		return "ProtocolError"
	case KindServerRejection:
		return "ServerRejection"
	case KindOperationNotApplicable:
		return "OperationNotApplicable"
	case KindTimeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying error with the operation that produced it and
// its Kind, following the wrapped-error idiom used throughout the pack.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError constructs an *Error, wrapping err (which may be nil).
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}
