package services

import (
	"context"
	"time"

	"evpay/internal/models"
	"evpay/internal/ocpp"
)

// Store interfaces are implemented by internal/repo; collaborator interfaces
// by internal/cpclient, internal/payments and internal/filestore. Everything
// is injected so the state machine has no implicit reachable integration.

type CheckoutStore interface {
	Create(ctx context.Context, connectorId, tariffId int64) (*models.Checkout, error)
	Get(ctx context.Context, id int64) (*models.Checkout, error)
	Update(ctx context.Context, c *models.Checkout) error
}

type TariffStore interface {
	Get(ctx context.Context, id int64) (*models.Tariff, error)
	SetStripePriceId(ctx context.Context, id int64, priceId string) error
}

type TopologyStore interface {
	EvseByEvseId(ctx context.Context, evseId string) (*models.Evse, error)
	EvseByStationId(ctx context.Context, stationId string) (*models.Evse, error)
	EvseByStationAndOcppId(ctx context.Context, stationId string, ocppEvseId int) (*models.Evse, error)
	UpdateEvseStatus(ctx context.Context, evseId int64, status string) error
	FirstConnectorForEvse(ctx context.Context, evseId int64) (*models.Connector, error)
	EvseForConnector(ctx context.Context, connectorId int64) (*models.Evse, error)
	LocationById(ctx context.Context, id int64) (*models.Location, error)
	OperatorById(ctx context.Context, id int64) (*models.Operator, error)
	OperatorForConnector(ctx context.Context, connectorId int64) (*models.Operator, error)
}

type OcppStore interface {
	TransactionByStationAndId(ctx context.Context, stationId, transactionId string) (*models.OcppTransaction, error)
	NextMessageId(ctx context.Context, stationId string) (int, error)
}

type AuditStore interface {
	InsertRaw(ctx context.Context, stationId, action string, ts time.Time, payload []byte) error
}

// RemoteStart addresses a requestStartTransaction call.
type RemoteStart struct {
	StationId     string
	TenantId      string
	EvseId        *int
	RemoteStartId int64
	IdToken       ocpp.IdToken
}

// ChargePointAuthority is the charge-point management system boundary.
type ChargePointAuthority interface {
	RequestStart(ctx context.Context, req RemoteStart) (models.RemoteStartStatus, error)
	UpsertAuthorization(ctx context.Context, stationId, tenantId string, token ocpp.IdToken, attributes map[string]string) error
	SetDisplayMessage(ctx context.Context, stationId, tenantId string, messageId int, transactionId, contentURL string) error
	ClearDisplayMessage(ctx context.Context, stationId, tenantId string, messageId int) error
}

type CheckoutSessionParams struct {
	CheckoutId               int64
	Currency                 string
	AuthorizationAmountMinor int64
	ConnectedAccount         string
	SuccessURL               string
	CancelURL                string
}

type CheckoutSession struct {
	Id              string
	URL             string
	PaymentIntentId string
}

// PaymentProcessor is the payment provider boundary. Amounts are integer
// minor currency units.
type PaymentProcessor interface {
	CreateCheckoutSession(ctx context.Context, p CheckoutSessionParams) (*CheckoutSession, error)
	EnsurePrice(ctx context.Context, connectedAccount string, t models.Tariff) (string, error)
	CreatePaymentLink(ctx context.Context, connectedAccount, priceId string, metadata map[string]string) (string, error)
	Capture(ctx context.Context, intentId, connectedAccount string, amountMinor, feeMinor int64) error
	Cancel(ctx context.Context, intentId string) error
}

// FileStore persists public assets and returns their URL.
type FileStore interface {
	Upload(ctx context.Context, data []byte, mimeType, filename, title string) (string, error)
}
