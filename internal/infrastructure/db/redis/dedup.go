package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupTTL = 24 * time.Hour

// EventDedup provides idempotency checks for persisted tracking events,
// backed by Redis. Carriers re-report the full event history on every poll,
// so already-stored events are filtered out before they hit the store.
// Key format: trackevt:<tracking_number>:<carrier_code>:<status>:<unix_timestamp>
type EventDedup struct {
	client *redis.Client
}

// NewEventDedup creates an EventDedup wrapping the given Redis client.
func NewEventDedup(client *redis.Client) *EventDedup {
	return &EventDedup{client: client}
}

// IsDuplicate reports whether this exact event has already been persisted.
func (d *EventDedup) IsDuplicate(ctx context.Context, trackingNumber, carrierCode, status string, ts time.Time) (bool, error) {
	n, err := d.client.Exists(ctx, d.key(trackingNumber, carrierCode, status, ts)).Result()
	if err != nil {
		return false, fmt.Errorf("dedup check: %w", err)
	}
	return n > 0, nil
}

// Mark records that this event has been persisted (expires after dedupTTL).
func (d *EventDedup) Mark(ctx context.Context, trackingNumber, carrierCode, status string, ts time.Time) error {
	return d.client.Set(ctx, d.key(trackingNumber, carrierCode, status, ts), "1", dedupTTL).Err()
}

func (d *EventDedup) key(trackingNumber, carrierCode, status string, ts time.Time) string {
	return fmt.Sprintf("trackevt:%s:%s:%s:%d", trackingNumber, carrierCode, status, ts.Unix())
}
