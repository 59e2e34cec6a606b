package chargepoint

import "github.com/weilun-shrimp/ocpp16-cp-sim/internal/ocpp"

// sendHeartbeatTick is the heartbeat.Scheduler callback: fire-and-forget a
// Heartbeat CALL, independent of any other traffic per spec.md §4.5.
func (e *Engine) sendHeartbeatTick() {
	if _, err := e.sendCall(ocpp.ActionHeartbeat, ocpp.HeartbeatRequest{}); err != nil {
		e.obs.OnLog("Heartbeat failed: " + err.Error())
	}
}

// Heartbeat sends a single Heartbeat CALL on demand (e.g. from a UI
// command), independent of the scheduled loop.
func (e *Engine) Heartbeat() error {
	_, err := e.sendCall(ocpp.ActionHeartbeat, ocpp.HeartbeatRequest{})
	return err
}
