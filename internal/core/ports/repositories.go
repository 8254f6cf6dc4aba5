package ports

import (
	"context"

	"github.com/Newton-b/shipsmart-sub002/internal/core/domain"
)

// TrackingEventRepository persists the append-only tracking history.
type TrackingEventRepository interface {
	// Append inserts new event rows. When any incoming row has IsLatest set,
	// the previously stored latest flag for that (tracking_number,
	// carrier_code) pair is cleared first, so the single-latest invariant
	// holds. Stored row payloads are never modified.
	Append(ctx context.Context, events []*domain.PersistedTrackingEvent) error

	// FindLatest returns the row currently flagged latest for the pair, or
	// domain.ErrTrackingNotFound when no history exists. carrierCode may be
	// empty to match any carrier.
	FindLatest(ctx context.Context, trackingNumber, carrierCode string) (*domain.PersistedTrackingEvent, error)

	// FindHistory returns all rows for the tracking number, newest first.
	// carrierCode may be empty to match any carrier.
	FindHistory(ctx context.Context, trackingNumber, carrierCode string) ([]*domain.PersistedTrackingEvent, error)
}

// CarrierConfigRepository reads carrier credentials and configuration.
type CarrierConfigRepository interface {
	// FindActive returns all active carrier configs.
	FindActive(ctx context.Context) ([]*domain.CarrierConfig, error)

	// FindByCode returns the config for one carrier code (case-insensitive).
	// Returns domain.ErrCarrierNotFound when absent.
	FindByCode(ctx context.Context, carrierCode string) (*domain.CarrierConfig, error)
}
