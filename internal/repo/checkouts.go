package repo

import (
	"context"
	"errors"

	"evpay/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CheckoutsRepo struct{ db *pgxpool.Pool }

func NewCheckoutsRepo(db *pgxpool.Pool) *CheckoutsRepo { return &CheckoutsRepo{db: db} }

const checkoutColumns = `
	id, payment_intent_id, connector_id, tariff_id, status,
	remote_request_status, remote_transaction_id, qr_message_id,
	transaction_start_time, transaction_end_time,
	transaction_kwh, last_meter_reading_kwh, power_active_import, transaction_soc,
	created_at, updated_at`

func (r *CheckoutsRepo) Create(ctx context.Context, connectorId, tariffId int64) (*models.Checkout, error) {
	row := r.db.QueryRow(ctx, `
		insert into checkouts (connector_id, tariff_id, status)
		values ($1,$2,$3)
		returning`+checkoutColumns, connectorId, tariffId, models.CheckoutCreated)
	return scanCheckout(row)
}

func (r *CheckoutsRepo) Get(ctx context.Context, id int64) (*models.Checkout, error) {
	row := r.db.QueryRow(ctx, `select`+checkoutColumns+` from checkouts where id=$1`, id)
	c, err := scanCheckout(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

// Update persists every mutable checkout field. Connector and tariff are
// fixed at creation and deliberately not part of the statement.
func (r *CheckoutsRepo) Update(ctx context.Context, c *models.Checkout) error {
	_, err := r.db.Exec(ctx, `
		update checkouts set
		  payment_intent_id=$2,
		  status=$3,
		  remote_request_status=$4,
		  remote_transaction_id=$5,
		  qr_message_id=$6,
		  transaction_start_time=$7,
		  transaction_end_time=$8,
		  transaction_kwh=$9,
		  last_meter_reading_kwh=$10,
		  power_active_import=$11,
		  transaction_soc=$12,
		  updated_at=now()
		where id=$1
	`, c.Id, c.PaymentIntentId, c.Status, c.RemoteRequestStatus, c.RemoteTransactionId,
		c.QrMessageId, c.TransactionStartTime, c.TransactionEndTime,
		c.TransactionKwh, c.LastMeterReadingKwh, c.PowerActiveImport, c.TransactionSoc)
	return err
}

func scanCheckout(row pgx.Row) (*models.Checkout, error) {
	var c models.Checkout
	if err := row.Scan(
		&c.Id, &c.PaymentIntentId, &c.ConnectorId, &c.TariffId, &c.Status,
		&c.RemoteRequestStatus, &c.RemoteTransactionId, &c.QrMessageId,
		&c.TransactionStartTime, &c.TransactionEndTime,
		&c.TransactionKwh, &c.LastMeterReadingKwh, &c.PowerActiveImport, &c.TransactionSoc,
		&c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}
