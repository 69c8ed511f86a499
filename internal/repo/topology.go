package repo

import (
	"context"
	"errors"

	"evpay/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TopologyRepo reads the static operator/location/EVSE/connector tree. The
// core never mutates it except for EVSE status, which tracks
// status-notification events.
type TopologyRepo struct{ db *pgxpool.Pool }

func NewTopologyRepo(db *pgxpool.Pool) *TopologyRepo { return &TopologyRepo{db: db} }

const evseColumns = `id, evse_id, ocpp_evse_id, status, station_id, tenant_id, location_id`

func (r *TopologyRepo) EvseByEvseId(ctx context.Context, evseId string) (*models.Evse, error) {
	row := r.db.QueryRow(ctx, `select `+evseColumns+` from evses where evse_id=$1`, evseId)
	return scanEvse(row)
}

func (r *TopologyRepo) EvseByStationId(ctx context.Context, stationId string) (*models.Evse, error) {
	row := r.db.QueryRow(ctx, `
		select `+evseColumns+` from evses where station_id=$1 order by id asc limit 1
	`, stationId)
	return scanEvse(row)
}

func (r *TopologyRepo) EvseByStationAndOcppId(ctx context.Context, stationId string, ocppEvseId int) (*models.Evse, error) {
	row := r.db.QueryRow(ctx, `
		select `+evseColumns+` from evses where station_id=$1 and ocpp_evse_id=$2
	`, stationId, ocppEvseId)
	return scanEvse(row)
}

func (r *TopologyRepo) UpdateEvseStatus(ctx context.Context, evseId int64, status string) error {
	_, err := r.db.Exec(ctx, `update evses set status=$2 where id=$1`, evseId, status)
	return err
}

func (r *TopologyRepo) FirstConnectorForEvse(ctx context.Context, evseId int64) (*models.Connector, error) {
	row := r.db.QueryRow(ctx, `
		select id, connector_id, power_type, max_voltage, max_amperage, evse_id, tariff_id
		from connectors where evse_id=$1
		order by id asc limit 1
	`, evseId)
	var c models.Connector
	if err := row.Scan(&c.Id, &c.ConnectorId, &c.PowerType, &c.MaxVoltage, &c.MaxAmperage, &c.EvseId, &c.TariffId); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *TopologyRepo) EvseForConnector(ctx context.Context, connectorId int64) (*models.Evse, error) {
	row := r.db.QueryRow(ctx, `
		select e.id, e.evse_id, e.ocpp_evse_id, e.status, e.station_id, e.tenant_id, e.location_id
		from evses e
		join connectors c on c.evse_id = e.id
		where c.id=$1
	`, connectorId)
	return scanEvse(row)
}

func (r *TopologyRepo) LocationById(ctx context.Context, id int64) (*models.Location, error) {
	row := r.db.QueryRow(ctx, `
		select id, location_id, address, postal_code, city, state, country, operator_id
		from locations where id=$1
	`, id)
	var l models.Location
	if err := row.Scan(&l.Id, &l.LocationId, &l.Address, &l.PostalCode, &l.City, &l.State, &l.Country, &l.OperatorId); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &l, nil
}

func (r *TopologyRepo) OperatorById(ctx context.Context, id int64) (*models.Operator, error) {
	row := r.db.QueryRow(ctx, `select id, name, stripe_account_id from operators where id=$1`, id)
	return scanOperator(row)
}

// OperatorForConnector resolves the operator owning a connector through the
// EVSE and location links.
func (r *TopologyRepo) OperatorForConnector(ctx context.Context, connectorId int64) (*models.Operator, error) {
	row := r.db.QueryRow(ctx, `
		select o.id, o.name, o.stripe_account_id
		from operators o
		join locations l on l.operator_id = o.id
		join evses e on e.location_id = l.id
		join connectors c on c.evse_id = e.id
		where c.id=$1
	`, connectorId)
	return scanOperator(row)
}

func scanEvse(row pgx.Row) (*models.Evse, error) {
	var e models.Evse
	if err := row.Scan(&e.Id, &e.EvseId, &e.OcppEvseId, &e.Status, &e.StationId, &e.TenantId, &e.LocationId); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

func scanOperator(row pgx.Row) (*models.Operator, error) {
	var o models.Operator
	if err := row.Scan(&o.Id, &o.Name, &o.StripeAccountId); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}
