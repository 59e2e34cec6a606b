// Package ocpp implements the OCPP 1.6J wire format: the four-, three- and
// five-element envelope arrays (CALL/CALLRESULT/CALLERROR), the action payload
// structs carried inside them, and the Kind/Error sentinel used to classify
// protocol-level failures.
package ocpp

import (
	"encoding/json"
	"fmt"
)

// Message type tags, the leading integer of every OCPP envelope.
const (
	TypeCall       = 2
	TypeCallResult = 3
	TypeCallError  = 4
)

// Action names for every operation SPEC_FULL.md names.
const (
	ActionBootNotification       = "BootNotification"
	ActionAuthorize              = "Authorize"
	ActionStartTransaction       = "StartTransaction"
	ActionStopTransaction        = "StopTransaction"
	ActionHeartbeat              = "Heartbeat"
	ActionMeterValues            = "MeterValues"
	ActionStatusNotification     = "StatusNotification"
	ActionDataTransfer           = "DataTransfer"
	ActionReset                  = "Reset"
	ActionRemoteStartTransaction = "RemoteStartTransaction"
	ActionRemoteStopTransaction  = "RemoteStopTransaction"
	ActionTriggerMessage         = "TriggerMessage"
	ActionChangeAvailability     = "ChangeAvailability"
	ActionUnlockConnector        = "UnlockConnector"
	ActionGetConfiguration       = "GetConfiguration"
	ActionSetChargingProfile     = "SetChargingProfile"
)

// Call is an outbound or inbound CALL: [2, uniqueId, action, payload].
type Call struct {
	UniqueID string
	Action   string
	Payload  interface{}
}

// CallResult is a CALLRESULT: [3, uniqueId, payload].
type CallResult struct {
	UniqueID string
	Payload  interface{}
}

// CallError is a CALLERROR: [4, uniqueId, errorCode, errorDescription, errorDetails].
type CallError struct {
	UniqueID         string
	ErrorCode        string
	ErrorDescription string
	ErrorDetails     interface{}
}

// EncodeCall marshals a CALL envelope.
func EncodeCall(uniqueID, action string, payload interface{}) ([]byte, error) {
	return json.Marshal([]interface{}{TypeCall, uniqueID, action, payload})
}

// EncodeCallResult marshals a CALLRESULT envelope.
func EncodeCallResult(uniqueID string, payload interface{}) ([]byte, error) {
	return json.Marshal([]interface{}{TypeCallResult, uniqueID, payload})
}

// EncodeCallError marshals a CALLERROR envelope. errorDetails may be nil, in
// which case it is encoded as an empty object per OCPP 1.6J convention.
func EncodeCallError(uniqueID, errorCode, errorDescription string, errorDetails interface{}) ([]byte, error) {
	if errorDetails == nil {
		errorDetails = map[string]interface{}{}
	}
	return json.Marshal([]interface{}{TypeCallError, uniqueID, errorCode, errorDescription, errorDetails})
}

// Decoded is the result of decoding one inbound frame: exactly one of Call,
// CallResult, or CallError is non-nil depending on the leading type tag.
type Decoded struct {
	Call       *Call
	CallResult *CallResult
	CallError  *CallError
}

// Decode parses a raw frame into its tagged form. A malformed frame (bad
// JSON, too few elements, an unrecognized leading type) returns a
// *Error of KindProtocolError — per spec.md §7 the socket stays open and
// the caller logs and continues.
func Decode(data []byte) (*Decoded, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, NewError(KindProtocolError, "ocpp.Decode", fmt.Errorf("malformed frame: %w", err))
	}
	if len(raw) < 3 {
		return nil, NewError(KindProtocolError, "ocpp.Decode", fmt.Errorf("frame has %d elements, need at least 3", len(raw)))
	}

	var msgType int
	if err := json.Unmarshal(raw[0], &msgType); err != nil {
		return nil, NewError(KindProtocolError, "ocpp.Decode", fmt.Errorf("bad message type: %w", err))
	}

	var uniqueID string
	if err := json.Unmarshal(raw[1], &uniqueID); err != nil {
		return nil, NewError(KindProtocolError, "ocpp.Decode", fmt.Errorf("bad unique id: %w", err))
	}

	switch msgType {
	case TypeCall:
		if len(raw) < 4 {
			return nil, NewError(KindProtocolError, "ocpp.Decode", fmt.Errorf("CALL frame has %d elements, need 4", len(raw)))
		}
		var action string
		if err := json.Unmarshal(raw[2], &action); err != nil {
			return nil, NewError(KindProtocolError, "ocpp.Decode", fmt.Errorf("bad action: %w", err))
		}
		return &Decoded{Call: &Call{UniqueID: uniqueID, Action: action, Payload: raw[3]}}, nil

	case TypeCallResult:
		return &Decoded{CallResult: &CallResult{UniqueID: uniqueID, Payload: raw[2]}}, nil

	case TypeCallError:
		if len(raw) < 5 {
			return nil, NewError(KindProtocolError, "ocpp.Decode", fmt.Errorf("CALLERROR frame has %d elements, need 5", len(raw)))
		}
		var code, desc string
		if err := json.Unmarshal(raw[2], &code); err != nil {
			return nil, NewError(KindProtocolError, "ocpp.Decode", fmt.Errorf("bad error code: %w", err))
		}
		if err := json.Unmarshal(raw[3], &desc); err != nil {
			return nil, NewError(KindProtocolError, "ocpp.Decode", fmt.Errorf("bad error description: %w", err))
		}
		return &Decoded{CallError: &CallError{UniqueID: uniqueID, ErrorCode: code, ErrorDescription: desc, ErrorDetails: raw[4]}}, nil

	default:
		return nil, NewError(KindProtocolError, "ocpp.Decode", fmt.Errorf("unknown message type %d", msgType))
	}
}

// DecodePayload unmarshals a Call/CallResult's raw payload (itself a
// json.RawMessage) into dst.
func DecodePayload(payload interface{}, dst interface{}) error {
	raw, ok := payload.(json.RawMessage)
	if !ok {
		b, err := json.Marshal(payload)
		if err != nil {
			return NewError(KindProtocolError, "ocpp.DecodePayload", err)
		}
		raw = b
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return NewError(KindProtocolError, "ocpp.DecodePayload", err)
	}
	return nil
}
