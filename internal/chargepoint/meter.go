package chargepoint

import (
	"strconv"
	"sync"
	"time"

	"github.com/weilun-shrimp/ocpp16-cp-sim/internal/kvstore"
	"github.com/weilun-shrimp/ocpp16-cp-sim/internal/ocpp"
)

const meterLoopInterval = 60 * time.Second

// meterLoop holds the auto-send goroutine's lifecycle, separate from the
// mutex guarding the socket so a meter tick never blocks on connect/
// disconnect.
type meterLoop struct {
	mu   sync.Mutex
	stop chan struct{}
}

func (e *Engine) meterValue() int {
	v := e.sessKV.Get(kvstore.KeyMeterValue, "0")
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// SetMeterValue sets the stored meter reading (Wh) and, if notify is true,
// immediately originates a MeterValues CALL, matching the teacher's
// setMeterValue(value, updateServer) behavior (spec.md §4.7).
func (e *Engine) SetMeterValue(value int, notify bool) error {
	e.sessKV.Put(kvstore.KeyMeterValue, strconv.Itoa(value))
	e.obs.OnMeterValueChange(value)
	if !notify {
		return nil
	}
	return e.SendMeterValues(1)
}

// SendMeterValues originates a MeterValues CALL for connectorID carrying
// the currently stored meter reading, per spec.md §4.7's fixed sampled
// value shape.
func (e *Engine) SendMeterValues(connectorID int) error {
	now := time.Now().UTC().Format(time.RFC3339)
	req := ocpp.MeterValuesRequest{
		ConnectorId:   connectorID,
		TransactionId: e.transactionID(),
		MeterValue: []ocpp.MeterValueEntry{{
			Timestamp: now,
			SampledValue: []ocpp.SampledValue{{
				Value:     strconv.Itoa(e.meterValue()),
				Context:   "Sample.Periodic",
				Format:    "Raw",
				Measurand: "Energy.Active.Import.Register",
				Location:  "Outlet",
				Unit:      "Wh",
			}},
		}},
	}
	_, err := e.sendCall(ocpp.ActionMeterValues, req)
	return err
}

// StartMeterValuesLoop arms a periodic MeterValues sender for the
// duration of a transaction, grounded on the teacher's StartMeterLoop
// side effect when status becomes Charging (charger/status.go).
func (e *Engine) StartMeterValuesLoop(connectorID int) {
	e.meter.mu.Lock()
	defer e.meter.mu.Unlock()

	if e.meter.stop != nil {
		close(e.meter.stop)
	}
	stop := make(chan struct{})
	e.meter.stop = stop

	go func() {
		ticker := time.NewTicker(meterLoopInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := e.SendMeterValues(connectorID); err != nil {
					e.obs.OnLog("MeterValues failed: " + err.Error())
				}
			case <-stop:
				return
			}
		}
	}()
}

// StopMeterValuesLoop disarms the periodic MeterValues sender.
func (e *Engine) StopMeterValuesLoop() {
	e.meter.mu.Lock()
	defer e.meter.mu.Unlock()
	if e.meter.stop != nil {
		close(e.meter.stop)
		e.meter.stop = nil
	}
}
