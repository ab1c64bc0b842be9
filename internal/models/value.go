package models

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// Kind tells which storage column a Value belongs to.
type Kind uint8

const (
	KindString Kind = iota
	KindInt
)

// Value is a single row-field value: either an integer or a string.
// Integers are stored in the integer column, everything else as text.
type Value struct {
	kind Kind
	n    int64
	s    string
}

// String returns a text value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Int returns an integer value.
func Int(n int64) Value { return Value{kind: KindInt, n: n} }

// ValueOf converts a loosely typed input into a Value. Whole numbers become
// integers, other numbers are kept as their shortest decimal text. The second
// result is false for nil and unsupported inputs, which callers skip.
func ValueOf(x any) (Value, bool) {
	switch v := x.(type) {
	case nil:
		return Value{}, false
	case Value:
		return v, true
	case string:
		return String(v), true
	case int:
		return Int(int64(v)), true
	case int8:
		return Int(int64(v)), true
	case int16:
		return Int(int64(v)), true
	case int32:
		return Int(int64(v)), true
	case int64:
		return Int(v), true
	case uint:
		return fromUint(uint64(v)), true
	case uint8:
		return Int(int64(v)), true
	case uint16:
		return Int(int64(v)), true
	case uint32:
		return Int(int64(v)), true
	case uint64:
		return fromUint(v), true
	case float32:
		return fromFloat(float64(v)), true
	case float64:
		return fromFloat(v), true
	case json.Number:
		return fromNumber(string(v)), true
	case bool:
		return String(strconv.FormatBool(v)), true
	case fmt.Stringer:
		return String(v.String()), true
	default:
		return Value{}, false
	}
}

func fromUint(u uint64) Value {
	if u > math.MaxInt64 {
		return String(strconv.FormatUint(u, 10))
	}
	return Int(int64(u))
}

func fromFloat(f float64) Value {
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return Int(int64(f))
	}
	return String(strconv.FormatFloat(f, 'f', -1, 64))
}

func fromNumber(lit string) Value {
	if n, err := strconv.ParseInt(lit, 10, 64); err == nil {
		return Int(n)
	}
	// Integer literals beyond int64 keep their digits as text.
	if !strings.ContainsAny(lit, ".eE") {
		return String(lit)
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return String(lit)
	}
	return fromFloat(f)
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsInt() bool { return v.kind == KindInt }

// Int64 returns the integer payload; it is zero for text values.
func (v Value) Int64() int64 { return v.n }

// Text returns the text payload; it is empty for integer values.
func (v Value) Text() string { return v.s }

// String renders the value as text regardless of its kind.
func (v Value) String() string {
	if v.kind == KindInt {
		return strconv.FormatInt(v.n, 10)
	}
	return v.s
}

// Equal reports whether both values have the same kind and payload.
func (v Value) Equal(o Value) bool {
	return v.kind == o.kind && v.n == o.n && v.s == o.s
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindInt {
		return []byte(strconv.FormatInt(v.n, 10)), nil
	}
	return json.Marshal(v.s)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty value")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = String(strconv.FormatBool(b))
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("unsupported value %s: %w", data, err)
		}
		*v = fromNumber(string(n))
	}
	return nil
}
