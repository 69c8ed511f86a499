package repo

import (
	"context"
	"errors"

	"evpay/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TariffsRepo struct{ db *pgxpool.Pool }

func NewTariffsRepo(db *pgxpool.Pool) *TariffsRepo { return &TariffsRepo{db: db} }

func (r *TariffsRepo) Get(ctx context.Context, id int64) (*models.Tariff, error) {
	row := r.db.QueryRow(ctx, `
		select id, price_kwh::float8, price_minute::float8, price_session::float8,
		       currency, tax_rate::float8, authorization_amount::float8, payment_fee::float8, stripe_price_id
		from tariffs where id=$1
	`, id)
	var t models.Tariff
	if err := row.Scan(&t.Id, &t.PriceKwh, &t.PriceMinute, &t.PriceSession,
		&t.Currency, &t.TaxRate, &t.AuthorizationAmount, &t.PaymentFee, &t.StripePriceId); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// SetStripePriceId caches the payment processor's price object so repeated
// scan-and-charge payment links reuse it.
func (r *TariffsRepo) SetStripePriceId(ctx context.Context, id int64, priceId string) error {
	_, err := r.db.Exec(ctx, `update tariffs set stripe_price_id=$2 where id=$1`, id, priceId)
	return err
}
