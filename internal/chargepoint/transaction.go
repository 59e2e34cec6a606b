package chargepoint

import (
	"strconv"
	"time"

	"github.com/weilun-shrimp/ocpp16-cp-sim/internal/connector"
	"github.com/weilun-shrimp/ocpp16-cp-sim/internal/kvstore"
	"github.com/weilun-shrimp/ocpp16-cp-sim/internal/ocpp"
	"github.com/weilun-shrimp/ocpp16-cp-sim/internal/session"
)

// Authorize sends Authorize{idTag} and, if accepted, transitions to
// AUTHORIZED per spec.md §4.7. An Invalid idTagInfo leaves the state
// machine where it was.
func (e *Engine) Authorize(idTag string) error {
	resp, err := e.sendCall(ocpp.ActionAuthorize, ocpp.AuthorizeRequest{IdTag: idTag})
	if err != nil {
		return err
	}
	if resp.IsError() {
		e.obs.OnLog("Authorize rejected: " + resp.ErrorCode)
		return nil
	}
	e.onAuthorizeResult(resp.Payload)
	e.durable.Put(kvstore.KeyTag, idTag)
	return nil
}

func (e *Engine) onAuthorizeResult(payload interface{}) {
	var resp ocpp.AuthorizeResponse
	if err := ocpp.DecodePayload(payload, &resp); err != nil {
		e.obs.OnLog("malformed Authorize response: " + err.Error())
		return
	}
	if resp.IdTagInfo.Status == "Invalid" {
		e.obs.OnLog("Authorize rejected: Invalid idTag")
		return
	}
	e.sess.Transition(session.Authorized, "")
}

// StartTransaction begins a transaction on connectorID (default outlet 1):
// it moves to IN_TRANSACTION and marks the connector Charging immediately,
// optimistically, before the server confirms — per spec.md §4.7's "moves
// immediately" wording.
func (e *Engine) StartTransaction(idTag string, connectorID, reservationID int) error {
	if connectorID == 0 {
		connectorID = connector.ConnectorOutlet1
	}

	e.sess.Transition(session.InTransaction, "")
	e.SetConnectorStatus(connectorID, connector.StatusCharging, true)
	// meterValueWh resets to 0 at the start of every transaction, matching
	// the MeterStart the outbound payload carries below, and the observer
	// is told.
	e.sessKV.Put(kvstore.KeyMeterValue, "0")
	e.obs.OnMeterValueChange(0)
	e.StartMeterValuesLoop(connectorID)

	req := ocpp.StartTransactionRequest{
		ConnectorId:   connectorID,
		IdTag:         idTag,
		MeterStart:    0,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		ReservationId: reservationID,
	}

	resp, err := e.sendCall(ocpp.ActionStartTransaction, req)
	if err != nil {
		return err
	}
	if resp.IsError() {
		e.obs.OnLog("StartTransaction rejected: " + resp.ErrorCode)
		return nil
	}
	e.onStartTransactionResult(resp.Payload)
	return nil
}

func (e *Engine) onStartTransactionResult(payload interface{}) {
	var resp ocpp.StartTransactionResponse
	if err := ocpp.DecodePayload(payload, &resp); err != nil {
		e.obs.OnLog("malformed StartTransaction response: " + err.Error())
		return
	}
	// "if absent or zero, do not overwrite" per spec.md §4.7.
	if resp.TransactionId != 0 {
		e.durable.Put(kvstore.KeyTransactionID, strconv.Itoa(resp.TransactionId))
	}
}

// transactionID returns the currently stored transaction id, or 0 if none.
func (e *Engine) transactionID() int {
	v := e.durable.Get(kvstore.KeyTransactionID, "0")
	id, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return id
}

// StopTransaction ends the active transaction: sends StopTransaction with
// a two-entry transactionData (begin 0 Wh, end the current meter value),
// transitions to AUTHORIZED, and sets connector 1 Finishing without
// notifying (the server is expected to poll status on its own), per
// spec.md §4.7.
func (e *Engine) StopTransaction(idTag, reason string) error {
	if reason == "" {
		reason = "Local"
	}

	meterStop := e.meterValue()
	txID := e.transactionID()
	now := time.Now().UTC().Format(time.RFC3339)

	req := ocpp.StopTransactionRequest{
		IdTag:         idTag,
		MeterStop:     meterStop,
		Timestamp:     now,
		TransactionId: txID,
		Reason:        reason,
		TransactionData: []ocpp.MeterValueEntry{
			{Timestamp: now, SampledValue: []ocpp.SampledValue{{Value: "0"}}},
			{Timestamp: now, SampledValue: []ocpp.SampledValue{{Value: strconv.Itoa(meterStop)}}},
		},
	}

	resp, err := e.sendCall(ocpp.ActionStopTransaction, req)
	if err != nil {
		return err
	}

	e.StopMeterValuesLoop()
	e.sess.Transition(session.Authorized, "")
	e.SetConnectorStatus(connector.ConnectorOutlet1, connector.StatusFinishing, false)

	if !resp.IsError() {
		e.onStopTransactionResult(resp.Payload)
	}
	return nil
}

// onStopTransactionResult applies the StopTransaction CALLRESULT rule:
// connector 1 becomes Available again.
func (e *Engine) onStopTransactionResult(payload interface{}) {
	e.SetConnectorStatus(connector.ConnectorOutlet1, connector.StatusAvailable, true)
}
