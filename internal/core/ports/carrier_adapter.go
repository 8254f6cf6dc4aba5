package ports

import (
	"context"

	"github.com/Newton-b/shipsmart-sub002/internal/core/domain"
)

// CarrierAdapter translates one external carrier's API into the shared
// tracking model. One instance exists per configured carrier; each owns its
// HTTP client, status mapping, and circuit breaker.
type CarrierAdapter interface {
	// Track fetches and normalizes the tracking history for one tracking
	// number. Events in the returned response are sorted newest first.
	Track(ctx context.Context, trackingNumber string) (*domain.TrackingResponse, error)

	// TrackBatch tracks several numbers concurrently. A failing number is
	// dropped from the result (and logged); it never fails the batch.
	TrackBatch(ctx context.Context, trackingNumbers []string) ([]*domain.TrackingResponse, error)

	// ValidateTrackingNumber reports whether the number matches any of the
	// carrier's tracking number patterns.
	ValidateTrackingNumber(trackingNumber string) bool

	// HealthCheck is a best-effort liveness probe. Failures are swallowed
	// and reported as false, never as an error.
	HealthCheck(ctx context.Context) bool

	// Code returns the uppercased carrier code this adapter serves.
	Code() string

	// Name returns the human-readable carrier name.
	Name() string
}

// CarrierRegistry resolves carrier adapters by code or by tracking number
// format, and aggregates carrier health.
type CarrierRegistry interface {
	// GetAdapter returns the adapter for the given carrier code
	// (case-insensitive). Returns domain.ErrCarrierNotFound when absent.
	GetAdapter(carrierCode string) (CarrierAdapter, error)

	// DetectCarrier infers the carrier from the tracking number format.
	// Carriers are tested in registration order; the first match wins.
	DetectCarrier(trackingNumber string) (string, bool)

	// RefreshAdapter rebuilds one adapter from its current stored config.
	// Used after credential rotation.
	RefreshAdapter(ctx context.Context, carrierCode string) error

	// HealthCheckAll probes every registered adapter and returns a
	// per-carrier result map. One carrier's failure never affects another's.
	HealthCheckAll(ctx context.Context) map[string]bool

	// AvailableCarriers lists active carriers, falling back to a static
	// default list when the config store is unreachable.
	AvailableCarriers(ctx context.Context) []domain.CarrierSummary
}
