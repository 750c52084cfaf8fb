package criteria

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Operator compares a finding value against a threshold.
type Operator string

const (
	OpGreaterThan    Operator = ">"
	OpLessThan       Operator = "<"
	OpGreaterOrEqual Operator = ">="
	OpLessOrEqual    Operator = "<="
	OpEqual          Operator = "=="
	OpNotEqual       Operator = "!="
)

// Operators lists every supported operator in display order.
var Operators = []Operator{OpGreaterThan, OpLessThan, OpGreaterOrEqual, OpLessOrEqual, OpEqual, OpNotEqual}

// IsValid returns true if the operator is a recognized value.
func (o Operator) IsValid() bool {
	switch o {
	case OpGreaterThan, OpLessThan, OpGreaterOrEqual, OpLessOrEqual, OpEqual, OpNotEqual:
		return true
	}
	return false
}

// compareNumbers applies o to actual and threshold. Equality is exact.
func compareNumbers(o Operator, actual, threshold float64) bool {
	switch o {
	case OpGreaterThan:
		return actual > threshold
	case OpLessThan:
		return actual < threshold
	case OpGreaterOrEqual:
		return actual >= threshold
	case OpLessOrEqual:
		return actual <= threshold
	case OpEqual:
		return actual == threshold
	case OpNotEqual:
		return actual != threshold
	default:
		return false
	}
}

// compareText applies o lexicographically for ordering operators and as exact
// equality for == and !=.
func compareText(o Operator, actual, threshold string) bool {
	switch o {
	case OpGreaterThan:
		return actual > threshold
	case OpLessThan:
		return actual < threshold
	case OpGreaterOrEqual:
		return actual >= threshold
	case OpLessOrEqual:
		return actual <= threshold
	case OpEqual:
		return actual == threshold
	case OpNotEqual:
		return actual != threshold
	default:
		return false
	}
}

type measurementKind uint8

const (
	measurementNone measurementKind = iota
	measurementNumber
	measurementText
)

// Measurement is a finding value that is either a number or text. The zero
// value means the finding carries no value.
type Measurement struct {
	kind measurementKind
	num  float64
	text string
}

// Number returns a numeric measurement.
func Number(v float64) Measurement {
	return Measurement{kind: measurementNumber, num: v}
}

// Text returns a text measurement.
func Text(s string) Measurement {
	return Measurement{kind: measurementText, text: s}
}

// ParseMeasurement converts a decoded JSON/YAML scalar into a Measurement.
// nil yields the zero Measurement. Like UnmarshalJSON it accepts only numbers
// and strings; booleans and non-finite numbers are rejected.
func ParseMeasurement(v any) (Measurement, error) {
	switch x := v.(type) {
	case nil:
		return Measurement{}, nil
	case Measurement:
		return x, nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return Measurement{}, fmt.Errorf("measurement must be finite, got %v", x)
		}
		return Number(x), nil
	case float32:
		return ParseMeasurement(float64(x))
	case int:
		return Number(float64(x)), nil
	case int64:
		return Number(float64(x)), nil
	case uint64:
		return Number(float64(x)), nil
	case string:
		return Text(x), nil
	default:
		return Measurement{}, fmt.Errorf("measurement must be a number or a string, got %T", v)
	}
}

// IsSet reports whether the measurement carries a value.
func (m Measurement) IsSet() bool { return m.kind != measurementNone }

// IsNumber reports whether the measurement was supplied as a number.
func (m Measurement) IsNumber() bool { return m.kind == measurementNumber }

// Float coerces the measurement to a number. Text is parsed as a decimal
// float; the second result is false when coercion is not possible or the
// result is not finite.
func (m Measurement) Float() (float64, bool) {
	switch m.kind {
	case measurementNumber:
		return m.num, true
	case measurementText:
		if strings.ContainsAny(m.text, "xX") {
			return 0, false
		}
		f, err := strconv.ParseFloat(m.text, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// String renders the measurement as text. Numbers use the shortest
// representation that round-trips.
func (m Measurement) String() string {
	switch m.kind {
	case measurementNumber:
		return strconv.FormatFloat(m.num, 'f', -1, 64)
	case measurementText:
		return m.text
	}
	return ""
}

// Interface returns the measurement as float64, string or nil.
func (m Measurement) Interface() any {
	switch m.kind {
	case measurementNumber:
		return m.num
	case measurementText:
		return m.text
	}
	return nil
}

// MarshalJSON writes a number, a string or null.
func (m Measurement) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Interface())
}

// UnmarshalJSON accepts a number, a string or null.
func (m *Measurement) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*m = Measurement{}
		return nil
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return err
	}
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return fmt.Errorf("invalid numeric measurement %q: %w", x, err)
		}
		*m = Number(f)
	case string:
		*m = Text(x)
	default:
		return fmt.Errorf("measurement must be a number or a string, got %T", v)
	}
	return nil
}
