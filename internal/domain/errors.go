package domain

import (
	"errors"
	"fmt"
)

// ErrEmptyListing is returned when the upstream answers with no records
// where at least one is required.
var ErrEmptyListing = errors.New("upstream returned no listings")

// UpstreamError is a non-2xx answer from the market-data API.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error %d: %s", e.StatusCode, e.Message)
}

// TransportError wraps a timeout or connection failure talking to the API.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// CorruptRecordError means a stored snapshot exists but cannot be decoded.
type CorruptRecordError struct {
	Key string
	Err error
}

func (e *CorruptRecordError) Error() string {
	return fmt.Sprintf("corrupt snapshot %s: %v", e.Key, e.Err)
}

func (e *CorruptRecordError) Unwrap() error { return e.Err }

// CalculationError means the daily return could not be computed.
type CalculationError struct {
	Reason string
}

func (e *CalculationError) Error() string {
	return "return calculation: " + e.Reason
}

// IsFetchFailure reports whether err came from talking to the upstream API.
func IsFetchFailure(err error) bool {
	var upstream *UpstreamError
	var transport *TransportError
	return errors.As(err, &upstream) || errors.As(err, &transport)
}
