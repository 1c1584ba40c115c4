package model

import (
	"errors"
	"fmt"
)

// ErrInfeasibleConfiguration marks inputs whose contradiction can be detected
// before any solve, such as an initial state of charge above capacity.
var ErrInfeasibleConfiguration = errors.New("infeasible configuration")

// ConfigurationError reports invalid physical or operational parameters.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// DataError reports a missing or malformed forecast or state lookup.
type DataError struct {
	Source string
	Reason string
	Err    error
}

func (e *DataError) Error() string {
	msg := "data error"
	if e.Source != "" {
		msg += ": " + e.Source
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DataError) Unwrap() error { return e.Err }

func configErr(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func dataErr(format string, args ...any) error {
	return &DataError{Source: "forecast", Reason: fmt.Sprintf(format, args...)}
}
