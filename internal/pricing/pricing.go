// Package pricing computes the monetary breakdown of a charging session from a
// tariff and the consumption facts. Pure computation, no I/O.
//
// Intermediate arithmetic runs on decimals at full precision; amounts are
// truncated to integer minor currency units only when a derived field is
// externalized, so the net -> tax -> gross chain never compounds rounding
// error.
package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"evpay/internal/models"
)

var (
	hundred          = decimal.NewFromInt(100)
	secondsPerMinute = decimal.NewFromInt(60)
)

// Breakdown is the externalized pricing of one checkout. Cost fields are
// integer minor currency units (cents); a nil cost means the component does
// not apply for the tariff.
type Breakdown struct {
	Currency   string  `json:"currency"`
	TaxRate    float64 `json:"tax_rate"`
	PaymentFee float64 `json:"payment_fee"`

	EnergyConsumptionKwh *float64 `json:"energy_consumption_kwh"`
	EnergyCosts          *int64   `json:"energy_costs"`
	TimeConsumptionMin   float64  `json:"time_consumption_min"`
	TimeCosts            *int64   `json:"time_costs"`
	SessionConsumption   int      `json:"session_consumption"`
	SessionCosts         *int64   `json:"session_costs"`

	// PaymentCostsTaxRate is kept explicit for reverse-charge jurisdictions;
	// currently always 0.
	PaymentCostsTaxRate float64 `json:"payment_costs_tax_rate"`

	TotalCostsNet     int64 `json:"total_costs_net"`
	TaxCosts          int64 `json:"tax_costs"`
	TotalCostsGross   int64 `json:"total_costs_gross"`
	PaymentCostsNet   int64 `json:"payment_costs_net"`
	PaymentCostsGross int64 `json:"payment_costs_gross"`
}

// Compute prices a session. kwh is the cumulative consumed energy, start/end
// the transaction window; a running session (end == nil) is priced up to now.
func Compute(tariff models.Tariff, kwh *float64, start, end *time.Time, now time.Time) Breakdown {
	b := Breakdown{
		Currency:             tariff.Currency,
		TaxRate:              tariff.TaxRate,
		PaymentFee:           tariff.PaymentFee,
		EnergyConsumptionKwh: kwh,
		SessionConsumption:   1,
	}

	minutes := sessionMinutes(start, end, now)
	b.TimeConsumptionMin, _ = minutes.Float64()

	net := decimal.Zero
	if kwh != nil && tariff.PriceKwh != nil {
		energy := decimal.NewFromFloat(*tariff.PriceKwh).Mul(decimal.NewFromFloat(*kwh))
		b.EnergyCosts = ptr(minorUnits(energy))
		net = net.Add(energy)
	}
	if tariff.PriceMinute != nil {
		timeCosts := decimal.NewFromFloat(*tariff.PriceMinute).Mul(minutes)
		b.TimeCosts = ptr(minorUnits(timeCosts))
		net = net.Add(timeCosts)
	}
	if tariff.PriceSession != nil {
		session := decimal.NewFromFloat(*tariff.PriceSession)
		b.SessionCosts = ptr(minorUnits(session))
		net = net.Add(session)
	}

	taxRate := decimal.NewFromFloat(tariff.TaxRate)
	fee := decimal.NewFromFloat(tariff.PaymentFee)
	reverseCharge := decimal.NewFromFloat(b.PaymentCostsTaxRate)

	tax := net.Mul(taxRate).Div(hundred)
	b.TotalCostsNet = minorUnits(net)
	b.TaxCosts = minorUnits(tax)
	b.TotalCostsGross = minorUnits(net.Add(tax))
	b.PaymentCostsNet = minorUnits(net.Mul(fee).Div(hundred))
	b.PaymentCostsGross = minorUnits(net.
		Mul(decimal.NewFromInt(1).Add(reverseCharge.Div(hundred))).
		Mul(fee).Div(hundred))
	return b
}

func sessionMinutes(start, end *time.Time, now time.Time) decimal.Decimal {
	if start == nil {
		return decimal.Zero
	}
	until := now
	if end != nil {
		until = *end
	}
	return decimal.NewFromFloat(until.Sub(*start).Seconds()).Div(secondsPerMinute)
}

// minorUnits converts a major-unit decimal amount to integer minor units,
// truncating toward zero.
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).IntPart()
}

// MajorToMinor converts a configured major-unit amount to minor units. A
// configured amount is an exact value, not a derived cost, so it rounds to
// the nearest cent instead of truncating; int64(19.99*100) would lose one.
func MajorToMinor(amount float64) int64 {
	return decimal.NewFromFloat(amount).Mul(hundred).Round(0).IntPart()
}

func ptr(v int64) *int64 { return &v }
