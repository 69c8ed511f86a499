// Package meter folds charge-point meter samples into the running
// energy/power/state-of-charge figures of a checkout.
package meter

import (
	"math"

	"evpay/internal/models"
	"evpay/internal/ocpp"
)

// Reading holds the normalized values extracted from one meter-value payload.
// EnergyKwh is the raw cumulative register, not a delta.
type Reading struct {
	EnergyKwh *float64
	PowerKw   *float64
	Soc       *float64
}

// Extract takes the most recent meter-value entry of a transaction event and
// pulls at most one reading per measurand of interest. Samples tagged with an
// electrical phase are skipped; only the aggregate sample is authoritative.
func Extract(values []ocpp.MeterValue) Reading {
	var r Reading
	if len(values) == 0 {
		return r
	}
	latest := values[len(values)-1]
	for _, sv := range latest.SampledValue {
		if sv.Phase != nil {
			continue
		}
		switch sv.Measurand {
		case ocpp.MeasurandEnergyActiveImportRegister:
			v := normalize(sv, "Wh")
			r.EnergyKwh = &v
		case ocpp.MeasurandPowerActiveImport:
			v := normalize(sv, "W")
			r.PowerKw = &v
		case ocpp.MeasurandSoC:
			v := scale(sv.Value, sv.UnitOfMeasure)
			r.Soc = &v
		}
	}
	return r
}

// normalize converts a sampled value to kilo-units: an unspecified unit is
// read as baseUnit (Wh or W) and divided by 1000, then the multiplier
// exponent is applied.
func normalize(sv ocpp.SampledValue, baseUnit string) float64 {
	v := sv.Value
	if sv.UnitOfMeasure == nil || sv.UnitOfMeasure.Unit == nil || *sv.UnitOfMeasure.Unit == baseUnit {
		v = v / 1000
	}
	return scale(v, sv.UnitOfMeasure)
}

func scale(v float64, u *ocpp.UnitOfMeasure) float64 {
	if u != nil && u.Multiplier != nil {
		v = v * math.Pow(10, *u.Multiplier)
	}
	return v
}

// Apply folds a reading into the checkout. Energy is accumulated as the delta
// against the previously stored raw register so re-delivered or restarted
// registers never double-count; the first register only records the baseline.
// Power and state of charge are last-value-wins.
func Apply(c *models.Checkout, r Reading) {
	if r.EnergyKwh != nil {
		if c.LastMeterReadingKwh != nil {
			delta := *r.EnergyKwh - *c.LastMeterReadingKwh
			if delta > 0 {
				total := delta
				if c.TransactionKwh != nil {
					total += *c.TransactionKwh
				}
				c.TransactionKwh = &total
			}
		} else if c.TransactionKwh == nil {
			zero := 0.0
			c.TransactionKwh = &zero
		}
		v := *r.EnergyKwh
		c.LastMeterReadingKwh = &v
	}
	if r.PowerKw != nil {
		v := *r.PowerKw
		c.PowerActiveImport = &v
	}
	if r.Soc != nil {
		v := *r.Soc
		c.TransactionSoc = &v
	}
}
