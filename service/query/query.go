// Package query selects the transaction array out of an upstream response
// envelope using jq expressions.
package query

import (
	"errors"
	"fmt"

	"github.com/itchyny/gojq"
)

// Compile parses and compiles a jq expression.
func Compile(expr string) (*gojq.Code, error) {
	q, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jq expression %q: %w", expr, err)
	}
	code, err := gojq.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("failed to compile jq expression %q: %w", expr, err)
	}
	return code, nil
}

// Select runs expr against input. An empty expression returns input as is.
func Select(expr string, input any) (any, error) {
	if expr == "" {
		return input, nil
	}
	code, err := Compile(expr)
	if err != nil {
		return nil, err
	}
	return Run(code, input)
}

// Run evaluates code against input. A single result is returned directly,
// several results are collected into an array, and no result yields nil.
func Run(code *gojq.Code, input any) (any, error) {
	var results []any
	iter := code.Run(input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			var halt *gojq.HaltError
			if errors.As(err, &halt) && halt.Value() == nil {
				break
			}
			return nil, fmt.Errorf("jq evaluation failed: %w", err)
		}
		results = append(results, v)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}
