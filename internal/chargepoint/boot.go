package chargepoint

import (
	"github.com/weilun-shrimp/ocpp16-cp-sim/internal/ocpp"
	"github.com/weilun-shrimp/ocpp16-cp-sim/internal/session"
)

// bootVendor/bootModel are fixed vendor identifiers; spec.md §4.7 notes
// the exact values aren't protocol-critical, they just MUST be sent.
const (
	bootVendor  = "Simulator"
	bootModel   = "OCPP16-CP-SIM"
	bootFWVer   = "1.0.0"
	bootMeterTy = "Simulated"
)

// BootNotification sends the initial CALL every connect performs.
func (e *Engine) BootNotification() error {
	req := ocpp.BootNotificationRequest{
		ChargePointVendor:       bootVendor,
		ChargePointModel:        bootModel,
		ChargePointSerialNumber: e.cfg.CpId,
		FirmwareVersion:         bootFWVer,
		MeterType:               bootMeterTy,
	}

	resp, err := e.sendCall(ocpp.ActionBootNotification, req)
	if err != nil {
		e.obs.OnLog("BootNotification failed: " + err.Error())
		return err
	}
	if resp.IsError() {
		e.obs.OnLog("BootNotification rejected: " + resp.ErrorCode)
		e.Disconnect()
		return nil
	}
	e.onBootNotificationResult(resp.Payload)
	return nil
}

// onBootNotificationResult applies spec.md §4.7's BootNotification
// CALLRESULT rule: Accepted arms the heartbeat and transitions to
// CONNECTED; anything else logs and closes.
func (e *Engine) onBootNotificationResult(payload interface{}) {
	var resp ocpp.BootNotificationResponse
	if err := ocpp.DecodePayload(payload, &resp); err != nil {
		e.obs.OnLog("malformed BootNotification response: " + err.Error())
		return
	}

	if resp.Status != ocpp.RegistrationAccepted {
		e.obs.OnLog("BootNotification rejected: " + string(resp.Status))
		e.Disconnect()
		return
	}

	e.sess.Transition(session.Connected, "")
	if resp.Interval > 0 {
		e.hb.Start(resp.Interval)
	}
}
