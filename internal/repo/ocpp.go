package repo

import (
	"context"
	"errors"

	"evpay/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OcppRepo reads the charge-point management system's own tables: transactions
// (to validate scan-and-charge callbacks) and the per-station display-message
// counter.
type OcppRepo struct{ db *pgxpool.Pool }

func NewOcppRepo(db *pgxpool.Pool) *OcppRepo { return &OcppRepo{db: db} }

func (r *OcppRepo) TransactionByStationAndId(ctx context.Context, stationId, transactionId string) (*models.OcppTransaction, error) {
	row := r.db.QueryRow(ctx, `
		select station_id, transaction_id, is_active, ocpp_evse_id
		from ocpp_transactions
		where station_id=$1 and transaction_id=$2
	`, stationId, transactionId)
	var t models.OcppTransaction
	if err := row.Scan(&t.StationId, &t.TransactionId, &t.IsActive, &t.OcppEvseId); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// NextMessageId allocates the next display-message id for a station. Ids are
// monotonically increasing per station, not globally, so a later message can
// reference and replace an earlier one.
func (r *OcppRepo) NextMessageId(ctx context.Context, stationId string) (int, error) {
	row := r.db.QueryRow(ctx, `
		insert into message_infos (station_id, message_id)
		values ($1, coalesce((select max(message_id) from message_infos where station_id=$1), 0) + 1)
		returning message_id
	`, stationId)
	var id int
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}
