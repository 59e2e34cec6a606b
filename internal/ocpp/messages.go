package ocpp

// ChargePointStatus is the StatusNotification.status enumeration.
type ChargePointStatus string

const (
	StatusAvailable     ChargePointStatus = "Available"
	StatusPreparing     ChargePointStatus = "Preparing"
	StatusCharging      ChargePointStatus = "Charging"
	StatusSuspendedEVSE ChargePointStatus = "SuspendedEVSE"
	StatusSuspendedEV   ChargePointStatus = "SuspendedEV"
	StatusFinishing     ChargePointStatus = "Finishing"
	StatusReserved      ChargePointStatus = "Reserved"
	StatusUnavailable   ChargePointStatus = "Unavailable"
	StatusFaulted       ChargePointStatus = "Faulted"
)

// RegistrationStatus is the BootNotification.status enumeration.
type RegistrationStatus string

const (
	RegistrationAccepted RegistrationStatus = "Accepted"
	RegistrationPending  RegistrationStatus = "Pending"
	RegistrationRejected RegistrationStatus = "Rejected"
)

// AvailabilityType is the ChangeAvailability.type enumeration.
type AvailabilityType string

const (
	AvailabilityInoperative AvailabilityType = "Inoperative"
	AvailabilityOperative   AvailabilityType = "Operative"
)

// AvailabilityStatus is the ChangeAvailability response status.
type AvailabilityStatus string

const (
	AvailabilityStatusAccepted  AvailabilityStatus = "Accepted"
	AvailabilityStatusRejected  AvailabilityStatus = "Rejected"
	AvailabilityStatusScheduled AvailabilityStatus = "Scheduled"
)

type BootNotificationRequest struct {
	ChargePointVendor       string `json:"chargePointVendor"`
	ChargePointModel        string `json:"chargePointModel"`
	ChargePointSerialNumber string `json:"chargePointSerialNumber,omitempty"`
	ChargeBoxSerialNumber   string `json:"chargeBoxSerialNumber,omitempty"`
	FirmwareVersion         string `json:"firmwareVersion,omitempty"`
	Iccid                   string `json:"iccid,omitempty"`
	Imsi                    string `json:"imsi,omitempty"`
	MeterType               string `json:"meterType,omitempty"`
	MeterSerialNumber       string `json:"meterSerialNumber,omitempty"`
}

type BootNotificationResponse struct {
	Status      RegistrationStatus `json:"status"`
	CurrentTime string             `json:"currentTime"`
	Interval    int                `json:"interval"`
}

type IdTagInfo struct {
	Status      string `json:"status"`
	ExpiryDate  string `json:"expiryDate,omitempty"`
	ParentIdTag string `json:"parentIdTag,omitempty"`
}

type AuthorizeRequest struct {
	IdTag string `json:"idTag"`
}

type AuthorizeResponse struct {
	IdTagInfo IdTagInfo `json:"idTagInfo"`
}

type StatusNotificationRequest struct {
	ConnectorId     int               `json:"connectorId"`
	ErrorCode       string            `json:"errorCode"`
	Status          ChargePointStatus `json:"status"`
	Timestamp       string            `json:"timestamp,omitempty"`
	Info            string            `json:"info,omitempty"`
	VendorId        string            `json:"vendorId,omitempty"`
	VendorErrorCode string            `json:"vendorErrorCode,omitempty"`
}

type StatusNotificationResponse struct{}

type StartTransactionRequest struct {
	ConnectorId   int    `json:"connectorId"`
	IdTag         string `json:"idTag"`
	MeterStart    int    `json:"meterStart"`
	Timestamp     string `json:"timestamp"`
	ReservationId int    `json:"reservationId,omitempty"`
}

type StartTransactionResponse struct {
	IdTagInfo     IdTagInfo `json:"idTagInfo"`
	TransactionId int       `json:"transactionId"`
}

type StopTransactionRequest struct {
	IdTag           string            `json:"idTag,omitempty"`
	MeterStop       int               `json:"meterStop"`
	Timestamp       string            `json:"timestamp"`
	TransactionId   int               `json:"transactionId"`
	Reason          string            `json:"reason,omitempty"`
	TransactionData []MeterValueEntry `json:"transactionData,omitempty"`
}

type StopTransactionResponse struct {
	IdTagInfo *IdTagInfo `json:"idTagInfo,omitempty"`
}

type MeterValuesRequest struct {
	ConnectorId   int               `json:"connectorId"`
	TransactionId int               `json:"transactionId,omitempty"`
	MeterValue    []MeterValueEntry `json:"meterValue"`
}

type MeterValueEntry struct {
	Timestamp    string         `json:"timestamp"`
	SampledValue []SampledValue `json:"sampledValue"`
}

type SampledValue struct {
	Value     string `json:"value"`
	Context   string `json:"context,omitempty"`
	Format    string `json:"format,omitempty"`
	Measurand string `json:"measurand,omitempty"`
	Phase     string `json:"phase,omitempty"`
	Location  string `json:"location,omitempty"`
	Unit      string `json:"unit,omitempty"`
}

type MeterValuesResponse struct{}

type HeartbeatRequest struct{}

type HeartbeatResponse struct {
	CurrentTime string `json:"currentTime"`
}

type DataTransferRequest struct {
	VendorId  string `json:"vendorId"`
	MessageId string `json:"messageId,omitempty"`
	Data      string `json:"data,omitempty"`
}

type DataTransferResponse struct {
	Status string `json:"status"` // Accepted, Rejected, UnknownMessageId, UnknownVendorId
	Data   string `json:"data,omitempty"`
}

// ChargingProfile is carried by RemoteStartTransaction and SetChargingProfile.
type ChargingProfile struct {
	ChargingProfileId      int               `json:"chargingProfileId"`
	TransactionId          int               `json:"transactionId,omitempty"`
	StackLevel             int               `json:"stackLevel"`
	ChargingProfilePurpose string            `json:"chargingProfilePurpose"`
	ChargingProfileKind    string            `json:"chargingProfileKind"`
	RecurrencyKind         string            `json:"recurrencyKind,omitempty"`
	ValidFrom              string            `json:"validFrom,omitempty"`
	ValidTo                string            `json:"validTo,omitempty"`
	ChargingSchedule       *ChargingSchedule `json:"chargingSchedule"`
}

type ChargingSchedule struct {
	Duration               int                      `json:"duration,omitempty"`
	StartSchedule          string                   `json:"startSchedule,omitempty"`
	ChargingRateUnit       string                   `json:"chargingRateUnit"`
	ChargingSchedulePeriod []ChargingSchedulePeriod `json:"chargingSchedulePeriod"`
	MinChargingRate        float64                  `json:"minChargingRate,omitempty"`
}

type ChargingSchedulePeriod struct {
	StartPeriod  int     `json:"startPeriod"`
	Limit        float64 `json:"limit"`
	NumberPhases int     `json:"numberPhases,omitempty"`
}

type RemoteStartTransactionRequest struct {
	IdTag           string           `json:"idTag"`
	ConnectorId     int              `json:"connectorId,omitempty"`
	ChargingProfile *ChargingProfile `json:"chargingProfile,omitempty"`
}

type RemoteStartTransactionResponse struct {
	Status string `json:"status"` // Accepted, Rejected
}

type RemoteStopTransactionRequest struct {
	TransactionId int `json:"transactionId"`
}

type RemoteStopTransactionResponse struct {
	Status string `json:"status"` // Accepted, Rejected
}

// ResetRequest is the inbound Reset CALL.
type ResetRequest struct {
	Type string `json:"type"` // Hard, Soft
}

type ResetResponse struct {
	Status string `json:"status"` // Accepted, Rejected
}

// ChangeAvailabilityRequest is the inbound ChangeAvailability CALL. A
// ConnectorId of 0 targets the whole charge point, per spec.md §4.4.
type ChangeAvailabilityRequest struct {
	ConnectorId int              `json:"connectorId"`
	Type        AvailabilityType `json:"type"`
}

type ChangeAvailabilityResponse struct {
	Status AvailabilityStatus `json:"status"`
}

// UnlockConnectorRequest is the inbound UnlockConnector CALL.
type UnlockConnectorRequest struct {
	ConnectorId int `json:"connectorId"`
}

type UnlockConnectorResponse struct {
	Status string `json:"status"` // Unlocked, UnlockFailed, NotSupported
}

// GetConfigurationRequest is the inbound GetConfiguration CALL. An empty
// Key requests every known key.
type GetConfigurationRequest struct {
	Key []string `json:"key,omitempty"`
}

type ConfigurationKeyValue struct {
	Key      string `json:"key"`
	Readonly bool   `json:"readonly"`
	Value    string `json:"value,omitempty"`
}

type GetConfigurationResponse struct {
	ConfigurationKey []ConfigurationKeyValue `json:"configurationKey,omitempty"`
	UnknownKey       []string                `json:"unknownKey,omitempty"`
}

// TriggerMessageRequest is the inbound TriggerMessage CALL.
type TriggerMessageRequest struct {
	RequestedMessage string `json:"requestedMessage"`
	ConnectorId      int    `json:"connectorId,omitempty"`
}

type TriggerMessageResponse struct {
	Status string `json:"status"` // Accepted, Rejected, NotImplemented
}

// SetChargingProfileRequest is the inbound SetChargingProfile CALL.
type SetChargingProfileRequest struct {
	ConnectorId     int              `json:"connectorId"`
	ChargingProfile *ChargingProfile `json:"csChargingProfiles"`
}

type SetChargingProfileResponse struct {
	Status string `json:"status"` // Accepted, Rejected, NotSupported
}
