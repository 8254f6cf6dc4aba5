package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/Newton-b/shipsmart-sub002/internal/api/metrics"
	"github.com/Newton-b/shipsmart-sub002/internal/core/domain"
	"github.com/Newton-b/shipsmart-sub002/internal/core/ports"
)

const defaultBatchConcurrency = 8

// EventDedup abstracts the idempotency store (Redis). Carriers re-report the
// full history on every poll; the dedup filter keeps the persisted history
// free of repeats.
type EventDedup interface {
	IsDuplicate(ctx context.Context, trackingNumber, carrierCode, status string, ts time.Time) (bool, error)
	Mark(ctx context.Context, trackingNumber, carrierCode, status string, ts time.Time) error
}

// TrackingService resolves carrier adapters, invokes them, and persists the
// returned events. It is the single inbound surface for the web layer.
type TrackingService struct {
	registry ports.CarrierRegistry
	events   ports.TrackingEventRepository
	dedup    EventDedup
	sem      *semaphore.Weighted
	log      zerolog.Logger
}

// NewTrackingService wires the service. batchConcurrency bounds the fan-out
// of TrackBatchShipments; values <= 0 fall back to the default.
func NewTrackingService(
	registry ports.CarrierRegistry,
	events ports.TrackingEventRepository,
	dedup EventDedup,
	batchConcurrency int64,
	log zerolog.Logger,
) *TrackingService {
	if batchConcurrency <= 0 {
		batchConcurrency = defaultBatchConcurrency
	}
	return &TrackingService{
		registry: registry,
		events:   events,
		dedup:    dedup,
		sem:      semaphore.NewWeighted(batchConcurrency),
		log:      log,
	}
}

// TrackShipment tracks one shipment. With a carrier hint the adapter is
// resolved directly; otherwise the carrier is detected from the tracking
// number format. Detection failure is a hard error — the service never
// blind-probes every carrier.
func (s *TrackingService) TrackShipment(ctx context.Context, trackingNumber string, carrierCode *string) (*domain.TrackingResponse, error) {
	trackingNumber = strings.TrimSpace(trackingNumber)
	if trackingNumber == "" {
		return nil, &domain.ValidationError{Message: "tracking number is required"}
	}

	code := ""
	if carrierCode != nil {
		code = strings.TrimSpace(*carrierCode)
	}
	if code == "" {
		detected, ok := s.registry.DetectCarrier(trackingNumber)
		if !ok {
			return nil, fmt.Errorf("%s: %w", trackingNumber, domain.ErrCarrierDetectionFailed)
		}
		code = detected
	}

	adapter, err := s.registry.GetAdapter(code)
	if err != nil {
		return nil, err
	}

	resp, err := adapter.Track(ctx, trackingNumber)
	if err != nil {
		return nil, err
	}

	// Persistence failure degrades the history, not the live answer.
	if err := s.SaveTrackingEvents(ctx, resp); err != nil {
		s.log.Warn().Err(err).
			Str("tracking_number", trackingNumber).
			Str("carrier", resp.CarrierCode).
			Msg("failed to persist tracking events")
	}

	s.log.Info().
		Str("tracking_number", trackingNumber).
		Str("carrier", resp.CarrierCode).
		Str("status", string(resp.CurrentStatus)).
		Int("events", len(resp.Events)).
		Msg("shipment tracked")

	return resp, nil
}

// TrackBatchShipments tracks many numbers with bounded concurrency. A failed
// number becomes an error-shaped entry; it never aborts its siblings.
func (s *TrackingService) TrackBatchShipments(ctx context.Context, trackingNumbers []string, carrierCode *string) []ports.BatchTrackingItem {
	metrics.BatchSize.Observe(float64(len(trackingNumbers)))

	items := make([]ports.BatchTrackingItem, len(trackingNumbers))
	var wg sync.WaitGroup
	for i, num := range trackingNumbers {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			items[i] = ports.BatchTrackingItem{
				TrackingNumber: num,
				Status:         ports.BatchItemError,
				Error:          err.Error(),
			}
			continue
		}
		wg.Add(1)
		go func(i int, num string) {
			defer wg.Done()
			defer s.sem.Release(1)
			resp, err := s.TrackShipment(ctx, num, carrierCode)
			if err != nil {
				items[i] = ports.BatchTrackingItem{
					TrackingNumber: num,
					Status:         ports.BatchItemError,
					Error:          err.Error(),
				}
				return
			}
			items[i] = ports.BatchTrackingItem{
				TrackingNumber: num,
				Status:         ports.BatchItemOK,
				Response:       resp,
			}
		}(i, num)
	}
	wg.Wait()

	return items
}

// SaveTrackingEvents persists the response's events, deduplicated against
// previously stored rows. The newest genuinely new event takes over the
// is_latest flag only when it postdates the stored latest.
func (s *TrackingService) SaveTrackingEvents(ctx context.Context, resp *domain.TrackingResponse) error {
	if resp == nil || len(resp.Events) == 0 {
		return nil
	}

	var latestStored time.Time
	stored, err := s.events.FindLatest(ctx, resp.TrackingNumber, resp.CarrierCode)
	switch {
	case err == nil:
		latestStored = stored.EventTimestamp
	case errors.Is(err, domain.ErrTrackingNotFound):
		// first sighting of this pair
	default:
		return fmt.Errorf("save events: %w", err)
	}

	rows := make([]*domain.PersistedTrackingEvent, 0, len(resp.Events))
	for _, ev := range resp.Events {
		dup, err := s.dedup.IsDuplicate(ctx, resp.TrackingNumber, resp.CarrierCode, string(ev.Status), ev.Timestamp)
		if err != nil {
			s.log.Warn().Err(err).Str("tracking_number", resp.TrackingNumber).Msg("dedup check failed, persisting anyway")
		} else if dup {
			metrics.EventsDedupTotal.WithLabelValues("hit").Inc()
			continue
		}
		metrics.EventsDedupTotal.WithLabelValues("miss").Inc()

		rows = append(rows, &domain.PersistedTrackingEvent{
			TrackingNumber:  resp.TrackingNumber,
			CarrierCode:     resp.CarrierCode,
			Status:          ev.Status,
			Description:     ev.Description,
			Location:        ev.Location,
			EventTimestamp:  ev.Timestamp,
			ExternalEventID: ev.ExternalEventID,
		})
	}
	if len(rows) == 0 {
		return nil
	}

	// rows follow the response order, newest first.
	if rows[0].EventTimestamp.After(latestStored) {
		rows[0].IsLatest = true
	}

	if err := s.events.Append(ctx, rows); err != nil {
		return fmt.Errorf("save events: %w", err)
	}

	for _, row := range rows {
		if err := s.dedup.Mark(ctx, row.TrackingNumber, row.CarrierCode, string(row.Status), row.EventTimestamp); err != nil {
			s.log.Warn().Err(err).Str("tracking_number", row.TrackingNumber).Msg("failed to set dedup key")
		}
	}

	metrics.EventsPersistedTotal.WithLabelValues(resp.CarrierCode).Add(float64(len(rows)))
	return nil
}

// GetLatestStatus returns the persisted row flagged latest for the number.
func (s *TrackingService) GetLatestStatus(ctx context.Context, trackingNumber, carrierCode string) (*domain.PersistedTrackingEvent, error) {
	return s.events.FindLatest(ctx, strings.TrimSpace(trackingNumber), carrierCode)
}

// GetTrackingHistory returns the full persisted history, newest first.
func (s *TrackingService) GetTrackingHistory(ctx context.Context, trackingNumber, carrierCode string) ([]*domain.PersistedTrackingEvent, error) {
	return s.events.FindHistory(ctx, strings.TrimSpace(trackingNumber), carrierCode)
}

// GetHealthStatus reports per-carrier health. Overall status is "healthy"
// when at least one carrier responds.
func (s *TrackingService) GetHealthStatus(ctx context.Context) *ports.HealthStatus {
	carriers := s.registry.HealthCheckAll(ctx)

	status := "unhealthy"
	for _, ok := range carriers {
		if ok {
			status = "healthy"
			break
		}
	}
	return &ports.HealthStatus{Status: status, Carriers: carriers}
}

// AvailableCarriers lists the carriers callers may track with.
func (s *TrackingService) AvailableCarriers(ctx context.Context) []domain.CarrierSummary {
	return s.registry.AvailableCarriers(ctx)
}
