package domain

import (
	"errors"
	"fmt"
	"time"
)

var ErrCarrierNotFound = errors.New("no adapter for carrier")
var ErrCarrierDetectionFailed = errors.New("carrier detection failed")
var ErrTrackingNotFound = errors.New("no tracking events found")
var ErrCircuitOpen = errors.New("circuit breaker open")

// CarrierAPIError is an upstream HTTP failure from a carrier API. It is the
// only error shape adapter call failures are allowed to surface as.
type CarrierAPIError struct {
	CarrierCode    string
	TrackingNumber string
	StatusCode     int
	Err            error
}

func (e *CarrierAPIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("carrier %s: tracking %s: http %d: %v", e.CarrierCode, e.TrackingNumber, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("carrier %s: tracking %s: http %d", e.CarrierCode, e.TrackingNumber, e.StatusCode)
}

func (e *CarrierAPIError) Unwrap() error { return e.Err }

// RateLimitError signals carrier-side throttling with an optional retry hint.
type RateLimitError struct {
	CarrierCode string
	RetryAfter  time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("carrier %s: rate limited, retry after %s", e.CarrierCode, e.RetryAfter)
	}
	return fmt.Sprintf("carrier %s: rate limited", e.CarrierCode)
}

// ValidationError signals a malformed tracking number or a missing required field.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }
