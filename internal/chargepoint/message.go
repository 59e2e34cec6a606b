package chargepoint

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/weilun-shrimp/ocpp16-cp-sim/internal/ocpp"
	"github.com/weilun-shrimp/ocpp16-cp-sim/internal/pending"
)

// callTimeout is the correlation timeout spec.md §4.3 specifies: OCPP 1.6J
// doesn't define one, 30s is a sensible default.
const callTimeout = 30 * time.Second

// sendCall originates a CALL, registers it in the pending table, writes it
// to the socket, and blocks for the correlated reply (or callTimeout).
func (e *Engine) sendCall(action string, payload interface{}) (pending.Response, error) {
	conn, err := e.activeConn()
	if err != nil {
		return pending.Response{}, err
	}

	uniqueID := uuid.New().String()
	data, err := ocpp.EncodeCall(uniqueID, action, payload)
	if err != nil {
		return pending.Response{}, ocpp.NewError(ocpp.KindProtocolError, "chargepoint.sendCall", err)
	}

	respCh := e.pend.Register(uniqueID, action)

	e.log.Debug().Str("action", action).Str("id", uniqueID).Msg("sending call")
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		e.pend.Forget(uniqueID)
		e.sess.Fail("ws normal error")
		return pending.Response{}, ocpp.NewError(ocpp.KindTransportError, "chargepoint.sendCall", err)
	}

	select {
	case resp := <-respCh:
		return resp, nil
	case <-time.After(callTimeout):
		e.pend.Forget(uniqueID)
		return pending.Response{}, ocpp.NewError(ocpp.KindTimeout, "chargepoint.sendCall", fmt.Errorf("timeout waiting for %s response", action))
	}
}

// sendCallResult replies to an inbound CALL with a CALLRESULT.
func (e *Engine) sendCallResult(uniqueID string, payload interface{}) error {
	conn, err := e.activeConn()
	if err != nil {
		return err
	}

	data, err := ocpp.EncodeCallResult(uniqueID, payload)
	if err != nil {
		return ocpp.NewError(ocpp.KindProtocolError, "chargepoint.sendCallResult", err)
	}

	e.log.Debug().Str("id", uniqueID).Msg("sending call result")
	return conn.WriteMessage(websocket.TextMessage, data)
}

// sendCallError replies to an inbound CALL with a CALLERROR.
func (e *Engine) sendCallError(uniqueID, code, description string) error {
	conn, err := e.activeConn()
	if err != nil {
		return err
	}

	data, err := ocpp.EncodeCallError(uniqueID, code, description, nil)
	if err != nil {
		return ocpp.NewError(ocpp.KindProtocolError, "chargepoint.sendCallError", err)
	}

	e.log.Debug().Str("id", uniqueID).Str("code", code).Msg("sending call error")
	return conn.WriteMessage(websocket.TextMessage, data)
}

// handleFrame decodes one inbound frame and dispatches it: CALL goes to
// the matching inbound handler (replying with CALLRESULT or CALLERROR
// "NotImplemented"); CALLRESULT/CALLERROR resolves the pending-call table,
// delivering the response to the sendCall goroutine that's awaiting it —
// that goroutine, not this one, applies the operation's on*Result handler,
// so there is exactly one place each result is processed. A malformed
// frame is logged and the socket stays open, per spec.md §7.
func (e *Engine) handleFrame(data []byte) {
	decoded, err := ocpp.Decode(data)
	if err != nil {
		e.obs.OnLog(fmt.Sprintf("protocol error: %v", err))
		return
	}

	switch {
	case decoded.Call != nil:
		e.handleInboundCall(decoded.Call)
	case decoded.CallResult != nil:
		if _, ok := e.pend.Resolve(decoded.CallResult.UniqueID, pending.Response{Payload: decoded.CallResult.Payload}); !ok {
			e.obs.OnLog(fmt.Sprintf("unmatched CALLRESULT for id %s", decoded.CallResult.UniqueID))
		}
	case decoded.CallError != nil:
		_, ok := e.pend.Resolve(decoded.CallError.UniqueID, pending.Response{
			ErrorCode: decoded.CallError.ErrorCode,
			ErrorDesc: decoded.CallError.ErrorDescription,
			ErrorData: decoded.CallError.ErrorDetails,
		})
		if !ok {
			e.obs.OnLog(fmt.Sprintf("unmatched CALLERROR for id %s", decoded.CallError.UniqueID))
			return
		}
		e.obs.OnLog(fmt.Sprintf("received CALLERROR %s: %s", decoded.CallError.ErrorCode, decoded.CallError.ErrorDescription))
	}
}

// handleInboundCall dispatches a server-originated CALL to its handler.
func (e *Engine) handleInboundCall(call *ocpp.Call) {
	switch call.Action {
	case ocpp.ActionRemoteStartTransaction:
		e.handleRemoteStartTransaction(call.UniqueID, call.Payload)
	case ocpp.ActionRemoteStopTransaction:
		e.handleRemoteStopTransaction(call.UniqueID, call.Payload)
	case ocpp.ActionReset:
		e.handleReset(call.UniqueID, call.Payload)
	case ocpp.ActionChangeAvailability:
		e.handleChangeAvailability(call.UniqueID, call.Payload)
	case ocpp.ActionUnlockConnector:
		e.handleUnlockConnector(call.UniqueID, call.Payload)
	case ocpp.ActionGetConfiguration:
		e.handleGetConfiguration(call.UniqueID, call.Payload)
	case ocpp.ActionTriggerMessage:
		e.handleTriggerMessage(call.UniqueID, call.Payload)
	case ocpp.ActionSetChargingProfile:
		e.handleSetChargingProfile(call.UniqueID, call.Payload)
	default:
		e.obs.OnLog(fmt.Sprintf("unknown action: %s", call.Action))
		if err := e.sendCallError(call.UniqueID, "NotImplemented", fmt.Sprintf("unsupported action %q", call.Action)); err != nil {
			e.obs.OnLog(fmt.Sprintf("failed to send CALLERROR: %v", err))
		}
	}
}
