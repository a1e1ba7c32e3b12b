package transactions

import (
	"encoding/json"
	"math/big"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// fieldError pairs a dotted field path with the reason it could not be read.
type fieldError struct {
	field string
	err   error
}

// lookupObject reads a nested object. Absent and null values are ErrMissingField.
func lookupObject(m map[string]any, key string) (map[string]any, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, ErrMissingField
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, ErrWrongType
	}
	return obj, nil
}

// lookupString reads a required string. Reading from a nil map reports ErrMissingField.
func lookupString(m map[string]any, key string) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", ErrMissingField
	}
	s, ok := v.(string)
	if !ok {
		return "", ErrWrongType
	}
	return s, nil
}

// lookupOptionalString returns nil without error when the value is absent or null.
func lookupOptionalString(m map[string]any, key string) (*string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, ErrWrongType
	}
	return &s, nil
}

func lookupBool(m map[string]any, key string) (bool, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, ErrWrongType
	}
	return b, nil
}

// lookupUnixTime reads a unix timestamp in seconds. Numbers may arrive as
// json.Number (UseNumber decoding), float64 (plain decoding), int (jq output)
// or a decimal string.
func lookupUnixTime(m map[string]any, key string) (*time.Time, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}

	var secs int64
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			f, ferr := n.Float64()
			if ferr != nil {
				return nil, ErrWrongType
			}
			i = int64(f)
		}
		secs = i
	case float64:
		secs = int64(n)
	case int:
		secs = int64(n)
	case int64:
		secs = n
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return nil, ErrWrongType
		}
		secs = i
	default:
		return nil, ErrWrongType
	}

	t := time.Unix(secs, 0).UTC()
	return &t, nil
}

// lookupDecimal reads an amount without going through float64 when the
// source preserved the digits.
func lookupDecimal(m map[string]any, key string) (*decimal.Decimal, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}

	var (
		d   decimal.Decimal
		err error
	)
	switch n := v.(type) {
	case string:
		d, err = decimal.NewFromString(n)
	case json.Number:
		d, err = decimal.NewFromString(n.String())
	case float64:
		d = decimal.NewFromFloat(n)
	case int:
		d = decimal.NewFromInt(int64(n))
	case int64:
		d = decimal.NewFromInt(n)
	case *big.Int:
		d = decimal.NewFromBigInt(n, 0)
	default:
		return nil, ErrWrongType
	}
	if err != nil {
		return nil, ErrWrongType
	}
	return &d, nil
}
