package transactions

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/brojonat/txlist/service/metrics"
)

// Policy decides what happens to records with missing or malformed fields.
type Policy int

const (
	// PolicyPermissive substitutes zero values and never fails.
	PolicyPermissive Policy = iota
	// PolicyStrict drops malformed records and reports each one as a *DecodeError.
	PolicyStrict
)

func (p Policy) String() string {
	if p == PolicyStrict {
		return "strict"
	}
	return "permissive"
}

// Converter turns a generic JSON transaction list into display Transactions.
// A Converter is immutable after construction and safe for concurrent use.
type Converter struct {
	policy  Policy
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Converter.
type Option func(*Converter)

// WithPolicy sets the missing/malformed data policy.
func WithPolicy(p Policy) Option {
	return func(c *Converter) { c.policy = p }
}

// WithLogger sets the logger. Degraded fields are logged at debug, strict
// rejections at warn.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Converter) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics enables Prometheus recording.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Converter) { c.metrics = m }
}

// NewConverter creates a permissive Converter unless configured otherwise.
func NewConverter(opts ...Option) *Converter {
	c := &Converter{
		policy: PolicyPermissive,
		logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var defaultConverter = NewConverter()

// Convert converts input with the permissive policy. Non-array input yields
// an empty slice; every array element yields exactly one Transaction.
func Convert(input any) []Transaction {
	txns, _ := defaultConverter.Convert(input)
	return txns
}

// Policy returns the configured policy.
func (c *Converter) Policy() Policy {
	return c.policy
}

// Convert converts an already-decoded JSON value ([]any of map[string]any).
// Output order follows input order. Under PolicyStrict the returned error
// joins one *DecodeError per rejected record, and the returned slice still
// holds every record that converted cleanly.
func (c *Converter) Convert(input any) ([]Transaction, error) {
	start := time.Now()
	txns, err := c.convert(input)
	if c.metrics != nil {
		c.metrics.RecordConversion(c.policy.String(), time.Since(start).Seconds(), err)
	}
	return txns, err
}

// ConvertJSON decodes data and converts the result. Invalid JSON is an
// error under both policies.
func (c *Converter) ConvertJSON(data []byte) ([]Transaction, error) {
	input, err := DecodeJSON(data)
	if err != nil {
		return nil, err
	}
	return c.Convert(input)
}

func (c *Converter) convert(input any) ([]Transaction, error) {
	records, ok := input.([]any)
	if !ok {
		if c.policy == PolicyStrict {
			return nil, ErrNotArray
		}
		c.logger.Debug("input is not an array, treating as empty",
			"input_type", fmt.Sprintf("%T", input),
		)
		return []Transaction{}, nil
	}

	out := make([]Transaction, 0, len(records))
	var errs []error

	for i, raw := range records {
		txn, required, optional := parseRecord(raw)

		for _, fe := range optional {
			c.degraded(i, fe)
		}

		if len(required) > 0 {
			if c.policy == PolicyStrict {
				for _, fe := range required {
					c.logger.Warn("record rejected",
						"index", i,
						"field", fe.field,
						"error", fe.err,
					)
					if c.metrics != nil {
						c.metrics.RecordRejected(fe.field)
					}
					errs = append(errs, &DecodeError{Index: i, Field: fe.field, Err: fe.err})
				}
				continue
			}
			for _, fe := range required {
				c.degraded(i, fe)
			}
		}

		if c.metrics != nil {
			c.metrics.RecordConverted(txn.Type.String())
		}
		out = append(out, txn)
	}

	return out, errors.Join(errs...)
}

func (c *Converter) degraded(index int, fe fieldError) {
	c.logger.Debug("field degraded to zero value",
		"index", index,
		"field", fe.field,
		"error", fe.err,
	)
	if c.metrics != nil {
		c.metrics.RecordDegraded(fe.field)
	}
}

// parseRecord builds a Transaction from one array element. Problems with the
// display fields are returned in required; problems with metadata fields that
// only drive ordering and grouping are returned in optional.
func parseRecord(raw any) (txn Transaction, required, optional []fieldError) {
	data, ok := raw.(map[string]any)
	if !ok {
		return Transaction{Type: Received}, []fieldError{{field: "record", err: ErrNotObject}}, nil
	}

	// An absent or null type is simply not a send.
	if v, present := data["type"]; present && v != nil {
		s, ok := v.(string)
		if !ok {
			required = append(required, fieldError{field: "type", err: ErrWrongType})
		}
		txn.Type = DirectionFromType(s)
	}

	requireString := func(obj map[string]any, path, key string) string {
		s, err := lookupString(obj, key)
		if err != nil {
			required = append(required, fieldError{field: path + "." + key, err: err})
		}
		return s
	}

	asset, err := lookupObject(data, "asset")
	if err != nil {
		required = append(required, fieldError{field: "asset", err: err})
	} else {
		image, err := lookupOptionalString(asset, "icon_url")
		if err != nil {
			required = append(required, fieldError{field: "asset.icon_url", err: err})
		}
		txn.CoinImage = image
		txn.CoinName = requireString(asset, "asset", "name")
	}

	native, err := lookupObject(data, "native")
	if err != nil {
		required = append(required, fieldError{field: "native", err: err})
	} else {
		txn.NativeDisplay = requireString(native, "native", "display")
		if amount, err := lookupDecimal(native, "amount"); err != nil {
			optional = append(optional, fieldError{field: "native.amount", err: err})
		} else {
			txn.NativeAmount = amount
		}
	}

	balance, err := lookupObject(data, "balance")
	if err != nil {
		required = append(required, fieldError{field: "balance", err: err})
	} else {
		txn.BalanceDisplay = requireString(balance, "balance", "display")
	}

	if hash, err := lookupOptionalString(data, "hash"); err != nil {
		optional = append(optional, fieldError{field: "hash", err: err})
	} else {
		txn.Hash = hash
	}

	minedKey := "minedAt"
	if _, ok := data[minedKey]; !ok {
		minedKey = "mined_at"
	}
	if minedAt, err := lookupUnixTime(data, minedKey); err != nil {
		optional = append(optional, fieldError{field: minedKey, err: err})
	} else {
		txn.MinedAt = minedAt
	}

	if pending, err := lookupBool(data, "pending"); err != nil {
		optional = append(optional, fieldError{field: "pending", err: err})
	} else {
		txn.Pending = pending
	}

	if status, err := lookupOptionalString(data, "status"); err != nil {
		optional = append(optional, fieldError{field: "status", err: err})
	} else if status != nil {
		txn.Status = *status
	}

	return txn, required, optional
}

// DecodeJSON parses data into generic JSON values, keeping numbers as
// json.Number so amounts keep their digits.
func DecodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("failed to decode JSON: unexpected data after top-level value")
	}
	return v, nil
}
