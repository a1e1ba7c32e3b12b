package transactions

import (
	"errors"
	"fmt"
)

var (
	// ErrNotArray is returned by strict conversion when the input is not a JSON array.
	ErrNotArray = errors.New("input is not an array")

	// ErrNotObject marks a record that is not a JSON object.
	ErrNotObject = errors.New("record is not an object")

	// ErrMissingField marks a required field that is absent or null.
	ErrMissingField = errors.New("missing field")

	// ErrWrongType marks a field whose value has an unexpected JSON type.
	ErrWrongType = errors.New("unexpected field type")
)

// DecodeError describes why a single input record could not be converted.
type DecodeError struct {
	Index int    // position of the record in the input array
	Field string // dotted path of the offending field, "record" for the record itself
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("record %d: %s: %v", e.Index, e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
