package chargepoint

import (
	"time"

	"github.com/weilun-shrimp/ocpp16-cp-sim/internal/connector"
	"github.com/weilun-shrimp/ocpp16-cp-sim/internal/ocpp"
)

// SendStatusNotification originates a StatusNotification CALL for
// connectorID with the given status, per spec.md §4.7's fixed payload
// shape.
func (e *Engine) SendStatusNotification(connectorID int, status string) error {
	req := ocpp.StatusNotificationRequest{
		ConnectorId: connectorID,
		ErrorCode:   "NoError",
		Status:      ocpp.ChargePointStatus(status),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	_, err := e.sendCall(ocpp.ActionStatusNotification, req)
	return err
}

// SetConnectorStatus updates connectorID's session-scoped status. When
// notify is true it also originates a StatusNotification CALL — callers
// pass false for transitions the server is expected to poll for instead
// (StopTransaction's Finishing, per spec.md §4.7).
func (e *Engine) SetConnectorStatus(connectorID int, status string, notify bool) {
	e.conns.SetStatus(connectorID, status, notify)
	if notify {
		if err := e.SendStatusNotification(connectorID, status); err != nil {
			e.obs.OnLog("StatusNotification failed: " + err.Error())
		}
	}
}

// ConnectorStatus returns connectorID's current session-scoped status.
func (e *Engine) ConnectorStatus(connectorID int) string {
	return e.conns.GetStatus(connectorID)
}

// ConnectorAvailability returns connectorID's durable availability.
func (e *Engine) ConnectorAvailability(connectorID int) string {
	return e.conns.GetAvailability(connectorID)
}

// SetConnectorAvailability applies spec.md §4.4's setAvailability,
// originating the StatusNotification CALLs the connector model's status
// changes trigger, connector 0 first then the cascade to 1 and 2.
func (e *Engine) SetConnectorAvailability(connectorID int, availability string) error {
	if err := e.conns.SetAvailability(connectorID, availability); err != nil {
		return err
	}

	targetStatus := connector.StatusAvailable
	if availability == connector.Inoperative {
		targetStatus = connector.StatusUnavailable
	}

	if err := e.SendStatusNotification(connectorID, targetStatus); err != nil {
		e.obs.OnLog("StatusNotification failed: " + err.Error())
	}
	if connectorID == connector.ConnectorChargePoint {
		if err := e.SendStatusNotification(connector.ConnectorOutlet1, targetStatus); err != nil {
			e.obs.OnLog("StatusNotification failed: " + err.Error())
		}
		if err := e.SendStatusNotification(connector.ConnectorOutlet2, targetStatus); err != nil {
			e.obs.OnLog("StatusNotification failed: " + err.Error())
		}
	}
	return nil
}
