package validator

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certline/internal/domain"
	"certline/internal/standards"
)

func ptr(v float64) *float64 { return &v }

func TestValidateMeasurement_Continuity(t *testing.T) {
	std := &domain.MeasurementStandard{
		MeasurementType:   domain.MeasurementContinuity,
		MaxAcceptable:     ptr(1.0),
		StandardReference: "BS7671 Table 41.3",
	}

	tests := []struct {
		name   string
		value  float64
		status domain.ValidationStatus
		pass   bool
	}{
		{name: "well inside", value: 0.35, status: domain.StatusPass, pass: true},
		{name: "near ceiling", value: 0.95, status: domain.StatusWarning, pass: true},
		{name: "at ceiling", value: 1.0, status: domain.StatusWarning, pass: true},
		{name: "above ceiling", value: 1.2, status: domain.StatusFail, pass: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ValidateMeasurement(domain.MeasurementContinuity, tt.value, std)
			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, tt.pass, res.Pass)
			assert.Equal(t, "BS7671 Table 41.3", res.StandardReference)
		})
	}

	res := ValidateMeasurement(domain.MeasurementContinuity, 1.2, std)
	assert.Equal(t, "1.2 exceeds maximum 1 (BS7671 Table 41.3)", res.Message)
	assert.Contains(t, res.Message, "1.2")
}

func TestValidateMeasurement_NoStandard(t *testing.T) {
	for _, v := range []float64{0.01, 1, 500, 1e9} {
		res := ValidateMeasurement(domain.MeasurementEarthLoop, v, nil)
		assert.Equal(t, domain.StatusUnknown, res.Status)
		assert.False(t, res.Pass)
		assert.Equal(t, "No standard found for this measurement", res.Message)
		assert.Empty(t, res.StandardReference)
	}
}

func TestValidateMeasurement_MaxOnlyBands(t *testing.T) {
	std := &domain.MeasurementStandard{MaxAcceptable: ptr(200), StandardReference: "ref"}
	for _, v := range []float64{1, 100, 179.9} {
		assert.Equal(t, domain.StatusPass, ValidateMeasurement(domain.MeasurementEarthLoop, v, std).Status, "value %v", v)
	}
	for _, v := range []float64{180.1, 199, 200} {
		assert.Equal(t, domain.StatusWarning, ValidateMeasurement(domain.MeasurementEarthLoop, v, std).Status, "value %v", v)
	}
	for _, v := range []float64{200.01, 1000} {
		assert.Equal(t, domain.StatusFail, ValidateMeasurement(domain.MeasurementEarthLoop, v, std).Status, "value %v", v)
	}
}

func TestValidateMeasurement_MinOnlyBands(t *testing.T) {
	std := &domain.MeasurementStandard{MinAcceptable: ptr(2), StandardReference: "BS 7671 Table 64"}
	for _, v := range []float64{2.21, 2.5, 299} {
		assert.Equal(t, domain.StatusPass, ValidateMeasurement(domain.MeasurementInsulation, v, std).Status, "value %v", v)
	}
	for _, v := range []float64{2, 2.1, 2.19} {
		res := ValidateMeasurement(domain.MeasurementInsulation, v, std)
		assert.Equal(t, domain.StatusWarning, res.Status, "value %v", v)
		assert.True(t, res.Pass)
		assert.Equal(t, "Value is close to minimum limit of 2", res.Message)
	}
	res := ValidateMeasurement(domain.MeasurementInsulation, 1.5, std)
	assert.Equal(t, domain.StatusFail, res.Status)
	assert.Equal(t, "1.5 is below minimum 2 (BS 7671 Table 64)", res.Message)
}

func TestValidateMeasurement_BothBounds(t *testing.T) {
	std := &domain.MeasurementStandard{MinAcceptable: ptr(216.2), MaxAcceptable: ptr(253), StandardReference: "ESQCR"}

	atMin := ValidateMeasurement(domain.MeasurementVoltage, 216.2, std)
	assert.Equal(t, domain.StatusWarning, atMin.Status)
	assert.True(t, atMin.Pass)

	below := ValidateMeasurement(domain.MeasurementVoltage, 210, std)
	assert.Equal(t, domain.StatusFail, below.Status)

	above := ValidateMeasurement(domain.MeasurementVoltage, 260, std)
	assert.Equal(t, domain.StatusFail, above.Status)
	assert.Contains(t, above.Message, "exceeds maximum 253")

	// inside the min band and the max band at once: the min warning wins
	narrow := &domain.MeasurementStandard{MinAcceptable: ptr(10), MaxAcceptable: ptr(10.5), StandardReference: "ref"}
	res := ValidateMeasurement(domain.MeasurementVoltage, 10.2, narrow)
	assert.Equal(t, domain.StatusWarning, res.Status)
	assert.Contains(t, res.Message, "minimum")
}

func TestValidateMeasurement_FailNeverReportedAsWarning(t *testing.T) {
	std := &domain.MeasurementStandard{MinAcceptable: ptr(1), MaxAcceptable: ptr(1.05), StandardReference: "ref"}
	res := ValidateMeasurement(domain.MeasurementInsulation, 1.06, std)
	assert.Equal(t, domain.StatusFail, res.Status)
	res = ValidateMeasurement(domain.MeasurementInsulation, 0.99, std)
	assert.Equal(t, domain.StatusFail, res.Status)
}

func TestParseReading(t *testing.T) {
	tests := []struct {
		raw   string
		value float64
		ok    bool
	}{
		{raw: "0.35", value: 0.35, ok: true},
		{raw: "  1.2 ", value: 1.2, ok: true},
		{raw: "200", value: 200, ok: true},
		{raw: "", ok: false},
		{raw: "   ", ok: false},
		{raw: "abc", ok: false},
		{raw: ">999", ok: false},
		{raw: "0", ok: false},
		{raw: "-0.4", ok: false},
		{raw: "NaN", ok: false},
		{raw: "Inf", ok: false},
	}
	for _, tt := range tests {
		v, ok := ParseReading(tt.raw)
		assert.Equal(t, tt.ok, ok, "raw %q", tt.raw)
		if tt.ok {
			assert.InDelta(t, tt.value, v, 1e-12, "raw %q", tt.raw)
		}
	}
	_, ok := ParseReading(formatNumber(math.MaxFloat64) + "0")
	assert.False(t, ok)
}

type countingFinder struct {
	calls atomic.Int32
	inner standards.Finder
	err   error
}

func (f *countingFinder) FindStandard(ctx context.Context, mt domain.MeasurementType, circuitType, rating string) (*domain.MeasurementStandard, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.inner.FindStandard(ctx, mt, circuitType, rating)
}

func TestValidateCircuit(t *testing.T) {
	finder := &countingFinder{inner: standards.Default()}
	circuit := domain.Circuit{CircuitType: "ring_final", OvercurrentDeviceRating: "32"}
	readings := []Reading{
		{Type: domain.MeasurementContinuity, Value: 0.2},
		{Type: domain.MeasurementInsulation, Value: 0.8},
		{Type: domain.MeasurementEarthLoop, Value: 1.3},
		{Type: domain.MeasurementPolarity, Value: 1},
	}
	out, err := ValidateCircuit(context.Background(), finder, circuit, readings)
	require.NoError(t, err)
	require.Len(t, out, 4)
	assert.EqualValues(t, 4, finder.calls.Load())

	assert.Equal(t, domain.MeasurementContinuity, out[0].Reading.Type)
	assert.Equal(t, domain.StatusPass, out[0].Result.Status)
	assert.Equal(t, "BS 7671 Reg 643.2.1", out[0].Result.StandardReference)

	assert.Equal(t, domain.StatusFail, out[1].Result.Status)

	assert.Equal(t, domain.StatusWarning, out[2].Result.Status)
	require.NotNil(t, out[2].Standard)
	assert.Equal(t, "32A", out[2].Standard.CircuitRating)

	assert.Equal(t, domain.StatusUnknown, out[3].Result.Status)
	assert.Nil(t, out[3].Standard)
}

func TestValidateCircuit_LookupError(t *testing.T) {
	boom := errors.New("catalog offline")
	finder := &countingFinder{err: boom}
	_, err := ValidateCircuit(context.Background(), finder, domain.Circuit{}, []Reading{{Type: domain.MeasurementVoltage, Value: 230}})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestUsable(t *testing.T) {
	for _, v := range []float64{-5, 0, math.NaN(), math.Inf(1), math.Inf(-1)} {
		assert.False(t, Usable(v), "%v", v)
	}
	assert.True(t, Usable(0.35))
}
