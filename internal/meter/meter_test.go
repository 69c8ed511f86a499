package meter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evpay/internal/models"
	"evpay/internal/ocpp"
)

func f(v float64) *float64 { return &v }
func s(v string) *string   { return &v }

func sample(measurand ocpp.Measurand, value float64, unit *string, multiplier *float64) ocpp.SampledValue {
	sv := ocpp.SampledValue{Value: value, Measurand: measurand}
	if unit != nil || multiplier != nil {
		sv.UnitOfMeasure = &ocpp.UnitOfMeasure{Unit: unit, Multiplier: multiplier}
	}
	return sv
}

func payload(samples ...ocpp.SampledValue) []ocpp.MeterValue {
	return []ocpp.MeterValue{{SampledValue: samples}}
}

func TestExtractNormalizesUnits(t *testing.T) {
	for _, tc := range []struct {
		name     string
		samples  []ocpp.SampledValue
		expected float64
	}{
		{"no unit defaults to Wh", []ocpp.SampledValue{sample(ocpp.MeasurandEnergyActiveImportRegister, 12500, nil, nil)}, 12.5},
		{"explicit Wh", []ocpp.SampledValue{sample(ocpp.MeasurandEnergyActiveImportRegister, 12500, s("Wh"), nil)}, 12.5},
		{"kWh passes through", []ocpp.SampledValue{sample(ocpp.MeasurandEnergyActiveImportRegister, 12.5, s("kWh"), nil)}, 12.5},
		{"multiplier exponent", []ocpp.SampledValue{sample(ocpp.MeasurandEnergyActiveImportRegister, 12.5, s("Wh"), f(3))}, 12.5},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r := Extract(payload(tc.samples...))
			require.NotNil(t, r.EnergyKwh)
			assert.InDelta(t, tc.expected, *r.EnergyKwh, 1e-9)
		})
	}
}

func TestExtractIgnoresPhaseTaggedSamples(t *testing.T) {
	phased := sample(ocpp.MeasurandEnergyActiveImportRegister, 99999, nil, nil)
	phased.Phase = s("L1")

	r := Extract(payload(phased, sample(ocpp.MeasurandEnergyActiveImportRegister, 5000, nil, nil)))
	require.NotNil(t, r.EnergyKwh)
	assert.Equal(t, 5.0, *r.EnergyKwh)
}

func TestExtractUsesMostRecentMeterValue(t *testing.T) {
	values := []ocpp.MeterValue{
		{SampledValue: []ocpp.SampledValue{sample(ocpp.MeasurandEnergyActiveImportRegister, 1000, nil, nil)}},
		{SampledValue: []ocpp.SampledValue{sample(ocpp.MeasurandEnergyActiveImportRegister, 2000, nil, nil)}},
	}
	r := Extract(values)
	require.NotNil(t, r.EnergyKwh)
	assert.Equal(t, 2.0, *r.EnergyKwh)

	assert.Equal(t, Reading{}, Extract(nil))
}

func TestExtractPowerAndSoc(t *testing.T) {
	r := Extract(payload(
		sample(ocpp.MeasurandPowerActiveImport, 11000, nil, nil),
		sample(ocpp.MeasurandSoC, 42, nil, nil),
	))
	require.NotNil(t, r.PowerKw)
	require.NotNil(t, r.Soc)
	assert.Equal(t, 11.0, *r.PowerKw)
	assert.Equal(t, 42.0, *r.Soc)
}

func TestApplyFirstReadingOnlySetsBaseline(t *testing.T) {
	var c models.Checkout
	Apply(&c, Reading{EnergyKwh: f(10.5)})

	require.NotNil(t, c.TransactionKwh)
	assert.Equal(t, 0.0, *c.TransactionKwh)
	require.NotNil(t, c.LastMeterReadingKwh)
	assert.Equal(t, 10.5, *c.LastMeterReadingKwh)
}

func TestApplyAccumulatesDeltas(t *testing.T) {
	// Final cumulative energy equals the sum of successive register deltas,
	// with the first register contributing nothing.
	registers := []float64{100, 100.5, 101.7, 103.2, 107.9}
	var c models.Checkout
	for _, r := range registers {
		Apply(&c, Reading{EnergyKwh: f(r)})
	}

	require.NotNil(t, c.TransactionKwh)
	assert.InDelta(t, 7.9, *c.TransactionKwh, 1e-9)
	assert.Equal(t, 107.9, *c.LastMeterReadingKwh)
}

func TestApplyNeverDecreasesCumulativeEnergy(t *testing.T) {
	var c models.Checkout
	Apply(&c, Reading{EnergyKwh: f(100)})
	Apply(&c, Reading{EnergyKwh: f(105)})
	Apply(&c, Reading{EnergyKwh: f(90)}) // register reset
	Apply(&c, Reading{EnergyKwh: f(92)})

	require.NotNil(t, c.TransactionKwh)
	assert.InDelta(t, 7.0, *c.TransactionKwh, 1e-9)
}

func TestApplyPowerAndSocAreLastValueWins(t *testing.T) {
	var c models.Checkout
	Apply(&c, Reading{PowerKw: f(11), Soc: f(40)})
	Apply(&c, Reading{PowerKw: f(7.4), Soc: f(55)})
	Apply(&c, Reading{}) // empty reading leaves everything untouched

	require.NotNil(t, c.PowerActiveImport)
	assert.Equal(t, 7.4, *c.PowerActiveImport)
	assert.Equal(t, 55.0, *c.TransactionSoc)
}
