package chargepoint

import (
	"encoding/json"
	"fmt"

	"github.com/weilun-shrimp/ocpp16-cp-sim/internal/ocpp"
)

// SendDataTransfer originates a vendor DataTransfer CALL, the generic
// vehicle spec.md §6 names for simulation add-ons beyond the core OCPP
// action set.
func (e *Engine) SendDataTransfer(vendorID, messageID, data string) error {
	resp, err := e.sendCall(ocpp.ActionDataTransfer, ocpp.DataTransferRequest{
		VendorId:  vendorID,
		MessageId: messageID,
		Data:      data,
	})
	if err != nil {
		return fmt.Errorf("DataTransfer failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("DataTransfer rejected: %s", resp.ErrorCode)
	}

	var dtResp ocpp.DataTransferResponse
	if err := ocpp.DecodePayload(resp.Payload, &dtResp); err != nil {
		return fmt.Errorf("malformed DataTransfer response: %w", err)
	}
	e.obs.OnLog(fmt.Sprintf("DataTransfer (%s) response: status=%s", vendorID, dtResp.Status))
	return nil
}

// licensePlatePayload is the vendor-specific data shape carried by the
// LicensePlate DataTransfer, matching the teacher's license_plate.go.
type licensePlatePayload struct {
	LicensePlate string `json:"licensePlate"`
	ConnectorId  int    `json:"connectorId"`
}

// SetLicensePlate records an EV's plate and, if connected, reports it to
// the server via a vendor DataTransfer CALL.
func (e *Engine) SetLicensePlate(licensePlate string, connectorID int) error {
	data, err := json.Marshal(licensePlatePayload{LicensePlate: licensePlate, ConnectorId: connectorID})
	if err != nil {
		return fmt.Errorf("failed to marshal license plate data: %w", err)
	}

	e.sessKV.Put("license_plate", licensePlate)

	if !e.Connected() {
		return nil
	}
	return e.SendDataTransfer("LicensePlate", "EVLicensePlate", string(data))
}
