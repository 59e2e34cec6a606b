package chargepoint

import (
	"time"

	"github.com/weilun-shrimp/ocpp16-cp-sim/internal/connector"
	"github.com/weilun-shrimp/ocpp16-cp-sim/internal/ocpp"
)

// handleRemoteStartTransaction replies with the configured canned status
// and, if Accepted, starts a transaction after the configured simulated
// delay. The delay runs in its own goroutine — per spec.md §5 the engine
// MUST keep processing inbound frames and heartbeats while it elapses, it
// is not a blocking barrier.
func (e *Engine) handleRemoteStartTransaction(uniqueID string, payload interface{}) {
	var req ocpp.RemoteStartTransactionRequest
	if err := ocpp.DecodePayload(payload, &req); err != nil {
		e.obs.OnLog("malformed RemoteStartTransaction: " + err.Error())
		return
	}

	status := e.cfg.RemoteStartStopResponse
	if err := e.sendCallResult(uniqueID, ocpp.RemoteStartTransactionResponse{Status: status}); err != nil {
		e.obs.OnLog("failed to reply to RemoteStartTransaction: " + err.Error())
		return
	}

	if status != "Accepted" {
		return
	}

	connectorID := req.ConnectorId
	if connectorID == 0 {
		connectorID = connector.ConnectorOutlet1
	}

	delay := time.Duration(e.cfg.RemoteStartDelaySeconds) * time.Second
	go func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		if err := e.StartTransaction(req.IdTag, connectorID, 0); err != nil {
			e.obs.OnLog("RemoteStartTransaction-triggered StartTransaction failed: " + err.Error())
		}
	}()
}

// handleRemoteStopTransaction replies with the configured canned status,
// except that an Accepted configuration replies Rejected when the request's
// transactionId is not the stored one. If the reply is Accepted, it stops
// the active transaction.
func (e *Engine) handleRemoteStopTransaction(uniqueID string, payload interface{}) {
	var req ocpp.RemoteStopTransactionRequest
	if err := ocpp.DecodePayload(payload, &req); err != nil {
		e.obs.OnLog("malformed RemoteStopTransaction: " + err.Error())
		return
	}

	status := e.cfg.RemoteStartStopResponse
	if status == "Accepted" && e.transactionID() != req.TransactionId {
		status = "Rejected"
	}

	if err := e.sendCallResult(uniqueID, ocpp.RemoteStopTransactionResponse{Status: status}); err != nil {
		e.obs.OnLog("failed to reply to RemoteStopTransaction: " + err.Error())
		return
	}

	if status != "Accepted" {
		return
	}

	go func() {
		if err := e.StopTransaction("", "Remote"); err != nil {
			e.obs.OnLog("RemoteStopTransaction-triggered StopTransaction failed: " + err.Error())
		}
	}()
}

// handleReset replies Accepted and then cleanly disconnects. Soft and Hard
// resets are handled the same way; the reset type is not inspected.
func (e *Engine) handleReset(uniqueID string, payload interface{}) {
	var req ocpp.ResetRequest
	if err := ocpp.DecodePayload(payload, &req); err != nil {
		e.obs.OnLog("malformed Reset: " + err.Error())
		return
	}

	if err := e.sendCallResult(uniqueID, ocpp.ResetResponse{Status: "Accepted"}); err != nil {
		e.obs.OnLog("failed to reply to Reset: " + err.Error())
		return
	}

	go e.Disconnect()
}

// handleChangeAvailability replies Accepted, then applies spec.md §4.4's
// setAvailability (including the connector-0 cascade).
func (e *Engine) handleChangeAvailability(uniqueID string, payload interface{}) {
	var req ocpp.ChangeAvailabilityRequest
	if err := ocpp.DecodePayload(payload, &req); err != nil {
		e.obs.OnLog("malformed ChangeAvailability: " + err.Error())
		return
	}

	if err := e.sendCallResult(uniqueID, ocpp.ChangeAvailabilityResponse{Status: ocpp.AvailabilityStatusAccepted}); err != nil {
		e.obs.OnLog("failed to reply to ChangeAvailability: " + err.Error())
		return
	}

	if err := e.SetConnectorAvailability(req.ConnectorId, string(req.Type)); err != nil {
		e.obs.OnLog("ChangeAvailability failed: " + err.Error())
	}
}

// handleUnlockConnector is an unconditional no-op acknowledgment: it always
// replies Accepted and touches no connector (see SPEC_FULL.md §8).
func (e *Engine) handleUnlockConnector(uniqueID string, payload interface{}) {
	if err := e.sendCallResult(uniqueID, ocpp.UnlockConnectorResponse{Status: "Accepted"}); err != nil {
		e.obs.OnLog("failed to reply to UnlockConnector: " + err.Error())
	}
}

// configurationKeys is the fixed key list GetConfiguration reports,
// per spec.md §4.7's literal required response.
var configurationKeys = []ocpp.ConfigurationKeyValue{
	{Key: "HeartbeatInterval", Readonly: false, Value: "900"},
	{Key: "ConnectionTimeOut", Readonly: false, Value: "60"},
	{Key: "NumberOfConnectors", Readonly: true, Value: "2"},
}

// handleGetConfiguration reports the fixed key list above, or the subset
// named in the request (anything not found goes into UnknownKey).
func (e *Engine) handleGetConfiguration(uniqueID string, payload interface{}) {
	var req ocpp.GetConfigurationRequest
	if err := ocpp.DecodePayload(payload, &req); err != nil {
		e.obs.OnLog("malformed GetConfiguration: " + err.Error())
		return
	}

	if len(req.Key) == 0 {
		e.replyGetConfiguration(uniqueID, configurationKeys, nil)
		return
	}

	known := map[string]ocpp.ConfigurationKeyValue{}
	for _, kv := range configurationKeys {
		known[kv.Key] = kv
	}

	var found []ocpp.ConfigurationKeyValue
	var unknown []string
	for _, k := range req.Key {
		if kv, ok := known[k]; ok {
			found = append(found, kv)
		} else {
			unknown = append(unknown, k)
		}
	}
	e.replyGetConfiguration(uniqueID, found, unknown)
}

func (e *Engine) replyGetConfiguration(uniqueID string, found []ocpp.ConfigurationKeyValue, unknown []string) {
	resp := ocpp.GetConfigurationResponse{ConfigurationKey: found, UnknownKey: unknown}
	if err := e.sendCallResult(uniqueID, resp); err != nil {
		e.obs.OnLog("failed to reply to GetConfiguration: " + err.Error())
	}
}

// handleTriggerMessage replies Accepted and originates the requested CALL.
// Unknown requested messages are logged but still reply Accepted.
func (e *Engine) handleTriggerMessage(uniqueID string, payload interface{}) {
	var req ocpp.TriggerMessageRequest
	if err := ocpp.DecodePayload(payload, &req); err != nil {
		e.obs.OnLog("malformed TriggerMessage: " + err.Error())
		return
	}

	if err := e.sendCallResult(uniqueID, ocpp.TriggerMessageResponse{Status: "Accepted"}); err != nil {
		e.obs.OnLog("failed to reply to TriggerMessage: " + err.Error())
		return
	}

	connectorID := req.ConnectorId
	if connectorID == 0 {
		connectorID = connector.ConnectorOutlet1
	}

	go func() {
		var err error
		switch req.RequestedMessage {
		case "BootNotification":
			err = e.BootNotification()
		case "Heartbeat":
			err = e.Heartbeat()
		case "MeterValues":
			err = e.SendMeterValues(connectorID)
		case "StatusNotification":
			err = e.SendStatusNotification(connectorID, e.ConnectorStatus(connectorID))
		case "DiagnosticsStatusNotification", "FirmwareStatusNotification":
			// no-op, per spec.md §4.7
		default:
			e.obs.OnLog("TriggerMessage: unsupported requestedMessage " + req.RequestedMessage)
			return
		}
		if err != nil {
			e.obs.OnLog("TriggerMessage-triggered " + req.RequestedMessage + " failed: " + err.Error())
		}
	}()
}

// handleSetChargingProfile acknowledges Accepted without applying the
// profile — spec.md §6 scopes actual charging-profile enforcement as a
// supplemented no-op: the simulator has no power-limiting model to apply
// it against.
func (e *Engine) handleSetChargingProfile(uniqueID string, payload interface{}) {
	var req ocpp.SetChargingProfileRequest
	if err := ocpp.DecodePayload(payload, &req); err != nil {
		e.obs.OnLog("malformed SetChargingProfile: " + err.Error())
		return
	}
	if err := e.sendCallResult(uniqueID, ocpp.SetChargingProfileResponse{Status: "Accepted"}); err != nil {
		e.obs.OnLog("failed to reply to SetChargingProfile: " + err.Error())
	}
}
