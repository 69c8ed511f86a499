// Seed loads a development topology fixture: one operator, location, EVSE,
// connector and tariff, wired together. Intended for local stacks only.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"evpay/internal/config"
	"evpay/internal/db"
)

func main() {
	operator := flag.String("operator", "Dev Operator", "operator name")
	stripeAccount := flag.String("stripe_account", "acct_dev", "operator's connected account id")
	locationId := flag.String("location_id", "LOC-DEV-1", "external location id")
	evseId := flag.String("evse_id", "DE*DEV*E1", "external EVSE id")
	ocppEvseId := flag.Int("ocpp_evse_id", 1, "OCPP EVSE id on the station")
	stationId := flag.String("station", "STATION-DEV-1", "station id")
	tenantId := flag.String("tenant", "1", "tenant id")
	connectorId := flag.String("connector", "1", "external connector id")
	priceKwh := flag.Float64("price_kwh", 0.40, "price per kWh")
	priceMinute := flag.Float64("price_minute", 0.0, "price per minute (0 disables)")
	priceSession := flag.Float64("price_session", 1.00, "flat session price (0 disables)")
	currency := flag.String("currency", "eur", "tariff currency")
	taxRate := flag.Float64("tax_rate", 19, "tax rate percent")
	authAmount := flag.Float64("auth_amount", 50, "authorization hold, major units")
	paymentFee := flag.Float64("payment_fee", 2, "payment fee percent")
	flag.Parse()

	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	d, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer d.Close()

	var operatorPk int64
	err = d.Pool.QueryRow(ctx, `
		insert into operators (name, stripe_account_id) values ($1,$2)
		on conflict (name) do update set stripe_account_id=excluded.stripe_account_id
		returning id
	`, *operator, *stripeAccount).Scan(&operatorPk)
	if err != nil {
		log.Fatal(err)
	}

	var locationPk int64
	err = d.Pool.QueryRow(ctx, `
		insert into locations (location_id, operator_id) values ($1,$2)
		on conflict (location_id) do update set operator_id=excluded.operator_id
		returning id
	`, *locationId, operatorPk).Scan(&locationPk)
	if err != nil {
		log.Fatal(err)
	}

	var tariffPk int64
	err = d.Pool.QueryRow(ctx, `
		insert into tariffs (price_kwh, price_minute, price_session, currency,
		                     tax_rate, authorization_amount, payment_fee)
		values (nullif($1,0.0), nullif($2,0.0), nullif($3,0.0), $4, $5, $6, $7)
		returning id
	`, *priceKwh, *priceMinute, *priceSession, *currency, *taxRate, *authAmount, *paymentFee).Scan(&tariffPk)
	if err != nil {
		log.Fatal(err)
	}

	var evsePk int64
	err = d.Pool.QueryRow(ctx, `
		insert into evses (evse_id, ocpp_evse_id, status, station_id, tenant_id, location_id)
		values ($1,$2,'Available',$3,$4,$5)
		on conflict (evse_id) do update set
		  ocpp_evse_id=excluded.ocpp_evse_id,
		  station_id=excluded.station_id,
		  tenant_id=excluded.tenant_id,
		  location_id=excluded.location_id
		returning id
	`, *evseId, *ocppEvseId, *stationId, *tenantId, locationPk).Scan(&evsePk)
	if err != nil {
		log.Fatal(err)
	}

	_, err = d.Pool.Exec(ctx, `
		insert into connectors (connector_id, power_type, max_voltage, max_amperage, evse_id, tariff_id)
		values ($1,'AC_3_PHASE',400,32,$2,$3)
		on conflict (connector_id, evse_id) do update set tariff_id=excluded.tariff_id
	`, *connectorId, evsePk, tariffPk)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Seeded EVSE %s on station %s (tariff %d, operator %s)\n",
		*evseId, *stationId, tariffPk, *operator)
}
