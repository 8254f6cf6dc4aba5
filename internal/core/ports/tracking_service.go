package ports

import (
	"context"

	"github.com/Newton-b/shipsmart-sub002/internal/core/domain"
)

// Batch item status values.
const (
	BatchItemOK    = "ok"
	BatchItemError = "error"
)

// BatchTrackingItem is one per-number result of a batch request. A failed
// number carries Status "error" and a message instead of a response, so one
// failure never aborts its siblings.
type BatchTrackingItem struct {
	TrackingNumber string                   `json:"tracking_number"`
	Status         string                   `json:"status"`
	Response       *domain.TrackingResponse `json:"response,omitempty"`
	Error          string                   `json:"error,omitempty"`
}

// HealthStatus is the aggregated carrier health report. Status is "healthy"
// when at least one carrier is healthy.
type HealthStatus struct {
	Status   string          `json:"status"`
	Carriers map[string]bool `json:"carriers"`
}

// TrackingService is the inbound surface consumed by the web layer.
type TrackingService interface {
	// TrackShipment resolves the adapter (by hint or by tracking-number
	// detection), invokes it, persists the returned events, and returns the
	// normalized response. Detection failure is a hard error.
	TrackShipment(ctx context.Context, trackingNumber string, carrierCode *string) (*domain.TrackingResponse, error)

	// TrackBatchShipments runs TrackShipment per number with bounded
	// concurrency, converting per-item failures into error-shaped entries.
	TrackBatchShipments(ctx context.Context, trackingNumbers []string, carrierCode *string) []BatchTrackingItem

	// GetLatestStatus returns the persisted latest event for the number.
	GetLatestStatus(ctx context.Context, trackingNumber string, carrierCode string) (*domain.PersistedTrackingEvent, error)

	// GetTrackingHistory returns the full persisted history, newest first.
	GetTrackingHistory(ctx context.Context, trackingNumber string, carrierCode string) ([]*domain.PersistedTrackingEvent, error)

	// GetHealthStatus reports per-carrier health and an overall rollup.
	GetHealthStatus(ctx context.Context) *HealthStatus

	// AvailableCarriers lists the carriers callers may track with.
	AvailableCarriers(ctx context.Context) []domain.CarrierSummary
}
