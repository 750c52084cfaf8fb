package criteria

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperatorIsValid(t *testing.T) {
	for _, op := range Operators {
		assert.True(t, op.IsValid(), "operator %q", op)
	}
	for _, op := range []Operator{"", "=", "<>", "gt", "=>"} {
		assert.False(t, op.IsValid(), "operator %q", op)
	}
}

func TestFindingDecodesNumberAndTextValues(t *testing.T) {
	var f Finding
	err := json.Unmarshal([]byte(`{
		"structureGroup": "Jacket",
		"defectCode": "CORR",
		"defectType": "PITTING",
		"value": 3.5,
		"customParameters": {"depth": 12, "coating": "damaged", "unset": null}
	}`), &f)
	require.NoError(t, err)

	assert.True(t, f.Value.IsNumber())
	v, ok := f.Value.Float()
	assert.True(t, ok)
	assert.Equal(t, 3.5, v)

	assert.True(t, f.CustomParameters["depth"].IsNumber())
	assert.Equal(t, "damaged", f.CustomParameters["coating"].String())
	assert.False(t, f.CustomParameters["unset"].IsSet())
}

func TestFindingWithoutValue(t *testing.T) {
	var f Finding
	require.NoError(t, json.Unmarshal([]byte(`{"structureGroup": "Jacket"}`), &f))
	assert.False(t, f.Value.IsSet())

	out, err := json.Marshal(f.Value)
	require.NoError(t, err)
	assert.JSONEq(t, `null`, string(out))
}

func TestMeasurementRejectsNonScalars(t *testing.T) {
	var m Measurement
	assert.Error(t, json.Unmarshal([]byte(`{"a": 1}`), &m))
	assert.Error(t, json.Unmarshal([]byte(`[1, 2]`), &m))
	assert.Error(t, json.Unmarshal([]byte(`true`), &m))
}

func TestMeasurementStringUsesShortestForm(t *testing.T) {
	assert.Equal(t, "2", Number(2).String())
	assert.Equal(t, "3.5", Number(3.5).String())
	assert.Equal(t, "0.1", Number(0.1).String())
	assert.Equal(t, "-12.25", Number(-12.25).String())
}

func TestParseMeasurement(t *testing.T) {
	tests := []struct {
		in   any
		want Measurement
	}{
		{nil, Measurement{}},
		{3.5, Number(3.5)},
		{7, Number(7)},
		{int64(-2), Number(-2)},
		{"deep", Text("deep")},
		{"NaN", Text("NaN")},
	}
	for _, tt := range tests {
		got, err := ParseMeasurement(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	for _, in := range []any{[]int{1}, true, math.NaN(), math.Inf(1)} {
		_, err := ParseMeasurement(in)
		assert.Error(t, err, "%v", in)
	}
}

func TestMeasurementFloatRejectsNonDecimalText(t *testing.T) {
	for _, s := range []string{"NaN", "nan", "Inf", "+Inf", "-infinity", "0x1p4", "0X10", "1e400", ""} {
		_, ok := Text(s).Float()
		assert.False(t, ok, "%q", s)
	}

	f, ok := Text("-12.5e1").Float()
	assert.True(t, ok)
	assert.Equal(t, -125.0, f)
}
