// Package ocpp holds the OCPP 2.0.1 payload shapes consumed from the
// charge-point event feed. Only the fields this service reads are modelled.
package ocpp

import "time"

type TransactionEventType string

const (
	TransactionEventStarted TransactionEventType = "Started"
	TransactionEventUpdated TransactionEventType = "Updated"
	TransactionEventEnded   TransactionEventType = "Ended"
)

type TriggerReason string

const (
	TriggerAuthorized       TriggerReason = "Authorized"
	TriggerCablePluggedIn   TriggerReason = "CablePluggedIn"
	TriggerChargingStateChg TriggerReason = "ChargingStateChanged"
	TriggerDeauthorized     TriggerReason = "Deauthorized"
	TriggerEVDetected       TriggerReason = "EVDetected"
	TriggerEVDeparted       TriggerReason = "EVDeparted"
	TriggerMeterValuePeriod TriggerReason = "MeterValuePeriodic"
	TriggerRemoteStart      TriggerReason = "RemoteStart"
	TriggerRemoteStop       TriggerReason = "RemoteStop"
	TriggerSignedData       TriggerReason = "SignedDataReceived"
	TriggerStopAuthorized   TriggerReason = "StopAuthorized"
)

type Measurand string

const (
	MeasurandEnergyActiveImportRegister Measurand = "Energy.Active.Import.Register"
	MeasurandPowerActiveImport          Measurand = "Power.Active.Import"
	MeasurandSoC                        Measurand = "SoC"
)

type UnitOfMeasure struct {
	Unit       *string  `json:"unit,omitempty"`
	Multiplier *float64 `json:"multiplier,omitempty"`
}

type SampledValue struct {
	Value         float64        `json:"value"`
	Measurand     Measurand      `json:"measurand,omitempty"`
	Phase         *string        `json:"phase,omitempty"`
	UnitOfMeasure *UnitOfMeasure `json:"unitOfMeasure,omitempty"`
}

type MeterValue struct {
	Timestamp    *time.Time     `json:"timestamp,omitempty"`
	SampledValue []SampledValue `json:"sampledValue"`
}

type IdToken struct {
	IdToken string `json:"idToken"`
	Type    string `json:"type"`
}

type TransactionInfo struct {
	TransactionId string `json:"transactionId"`
	RemoteStartId *int64 `json:"remoteStartId,omitempty"`
}

type TransactionEventRequest struct {
	EventType       TransactionEventType `json:"eventType"`
	Timestamp       time.Time            `json:"timestamp"`
	TriggerReason   TriggerReason        `json:"triggerReason"`
	TransactionInfo TransactionInfo      `json:"transactionInfo"`
	IdToken         *IdToken             `json:"idToken,omitempty"`
	MeterValue      []MeterValue         `json:"meterValue,omitempty"`
}

type ConnectorStatus string

const (
	ConnectorAvailable   ConnectorStatus = "Available"
	ConnectorOccupied    ConnectorStatus = "Occupied"
	ConnectorReserved    ConnectorStatus = "Reserved"
	ConnectorUnavailable ConnectorStatus = "Unavailable"
	ConnectorFaulted     ConnectorStatus = "Faulted"
)

type StatusNotificationRequest struct {
	Timestamp       time.Time       `json:"timestamp"`
	ConnectorId     int             `json:"connectorId"`
	EvseId          int             `json:"evseId"`
	ConnectorStatus ConnectorStatus `json:"connectorStatus"`
}
