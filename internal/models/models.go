package models

import "time"

type CheckoutStatus string

const (
	CheckoutCreated                CheckoutStatus = "created"
	CheckoutAuthorizationRequested CheckoutStatus = "authorization_requested"
	CheckoutRemoteStartRequested   CheckoutStatus = "remote_start_requested"
	CheckoutAccepted               CheckoutStatus = "accepted"
	CheckoutRejected               CheckoutStatus = "rejected"
	CheckoutCharging               CheckoutStatus = "charging"
	CheckoutEnded                  CheckoutStatus = "ended"
	CheckoutCaptureRequested       CheckoutStatus = "capture_requested"
	CheckoutCaptured               CheckoutStatus = "captured"
	CheckoutCaptureFailed          CheckoutStatus = "capture_failed"
)

// Terminal reports whether no further transition is allowed out of s.
func (s CheckoutStatus) Terminal() bool {
	return s == CheckoutRejected || s == CheckoutCaptured || s == CheckoutCaptureFailed
}

type RemoteStartStatus string

const (
	RemoteStartAccepted RemoteStartStatus = "Accepted"
	RemoteStartRejected RemoteStartStatus = "Rejected"
)

// Checkout is the payment/session record for one charging session.
// ConnectorId and TariffId are fixed at creation; everything else is filled in
// by the webhook intake and the broker event feed.
type Checkout struct {
	Id              int64
	PaymentIntentId *string
	ConnectorId     int64
	TariffId        int64
	Status          CheckoutStatus

	RemoteRequestStatus *RemoteStartStatus
	RemoteTransactionId *string
	QrMessageId         *int

	TransactionStartTime *time.Time
	TransactionEndTime   *time.Time

	// TransactionKwh is cumulative consumed energy; LastMeterReadingKwh is the
	// raw register baseline the next delta is computed against.
	TransactionKwh      *float64
	LastMeterReadingKwh *float64
	PowerActiveImport   *float64
	TransactionSoc      *float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Tariff is a price schedule. A nil rate means the cost component does not
// apply, not that it is zero.
type Tariff struct {
	Id                  int64
	PriceKwh            *float64
	PriceMinute         *float64
	PriceSession        *float64
	Currency            string
	TaxRate             float64
	AuthorizationAmount float64
	PaymentFee          float64
	StripePriceId       *string
}

type Connector struct {
	Id          int64
	ConnectorId string
	PowerType   string
	MaxVoltage  int
	MaxAmperage int
	EvseId      int64
	TariffId    *int64
}

type Evse struct {
	Id         int64
	EvseId     string
	OcppEvseId int
	Status     string
	StationId  string
	TenantId   string
	LocationId int64
}

type Location struct {
	Id         int64
	LocationId string
	Address    *string
	PostalCode *string
	City       *string
	State      *string
	Country    *string
	OperatorId int64
}

type Operator struct {
	Id              int64
	Name            string
	StripeAccountId string
}

// OcppTransaction mirrors the charge-point management system's transaction
// record; read-only here, used to validate scan-and-charge callbacks.
type OcppTransaction struct {
	StationId     string
	TransactionId string
	IsActive      bool
	OcppEvseId    *int
}
