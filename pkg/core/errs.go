package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData is returned when there are not enough bars to fill an indicator window
	ErrInsufficientData = errors.New("insufficient data")
	// ErrDegenerateParameterSet is returned when a parameter set cannot be simulated
	ErrDegenerateParameterSet = errors.New("degenerate parameter set")
	// ErrMalformedSeries is returned for non-monotonic timestamps or invalid prices/volume
	ErrMalformedSeries = errors.New("malformed bar series")
)

// EvaluationError wraps the failure of a single parameter set evaluation
type EvaluationError struct {
	Key string
	Err error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation of %s failed: %v", e.Key, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

func degenerate(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDegenerateParameterSet, fmt.Sprintf(format, args...))
}
