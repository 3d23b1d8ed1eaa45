package cookiestore

import (
	"strconv"

	"github.com/goccy/go-json"
)

// Value is a stored item. It keeps the JSON encoding it was written with so
// that numbers, booleans and strings read back exactly as they were set.
type Value struct {
	raw json.RawMessage
}

// Raw returns the JSON encoding of the value.
func (v Value) Raw() []byte { return append([]byte(nil), v.raw...) }

// String returns the value as text. JSON strings are unquoted; any other JSON
// value is returned verbatim, so 1.5 reads back as "1.5".
func (v Value) String() string {
	var s string
	if err := json.Unmarshal(v.raw, &s); err == nil {
		return s
	}
	return string(v.raw)
}

// Float64 parses the value as a number. Numeric strings are accepted.
func (v Value) Float64() (float64, bool) {
	var f float64
	if err := json.Unmarshal(v.raw, &f); err == nil {
		return f, true
	}
	f, err := strconv.ParseFloat(v.String(), 64)
	return f, err == nil
}

// Bool parses the value as a boolean. The strings "true" and "false" are
// accepted.
func (v Value) Bool() (bool, bool) {
	var b bool
	if err := json.Unmarshal(v.raw, &b); err == nil {
		return b, true
	}
	b, err := strconv.ParseBool(v.String())
	return b, err == nil
}

// Decode unmarshals the value into dst.
func (v Value) Decode(dst any) error {
	return json.Unmarshal(v.raw, dst)
}

// Interface returns the value decoded into its natural Go type.
func (v Value) Interface() any {
	var out any
	if err := json.Unmarshal(v.raw, &out); err != nil {
		return nil
	}
	return out
}
