package carrier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"github.com/Newton-b/shipsmart-sub002/internal/api/metrics"
	"github.com/Newton-b/shipsmart-sub002/internal/carrier/breaker"
	"github.com/Newton-b/shipsmart-sub002/internal/core/domain"
	"github.com/Newton-b/shipsmart-sub002/internal/infrastructure/httpclient"
)

// Ocean container references: 4-letter owner prefix + 7 digits (ISO 6346),
// plus 9-digit booking numbers.
var maerskDefaultPatterns = []string{
	`^[A-Z]{4}\d{7}$`,
	`^\d{9}$`,
}

// maerskStatusCodes maps DCSA-style equipment/transport event codes onto the
// shared enum.
var maerskStatusCodes = map[string]domain.TrackingStatus{
	"RECE": domain.StatusPending,        // booking received
	"CONF": domain.StatusPending,        // booking confirmed
	"GTIN": domain.StatusInTransit,      // gate in at origin terminal
	"LOAD": domain.StatusInTransit,      // loaded on vessel
	"DEPA": domain.StatusInTransit,      // vessel departed
	"ARRI": domain.StatusInTransit,      // vessel arrived
	"DISC": domain.StatusInTransit,      // discharged from vessel
	"GTOT": domain.StatusOutForDelivery, // gate out, on final leg
	"DLVR": domain.StatusDelivered,
	"RETU": domain.StatusReturned, // empty container returned
	"CANC": domain.StatusCancelled,
	"DTND": domain.StatusException, // detained / customs hold
}

// MaerskAdapter tracks ocean containers through a Maersk-style track and
// trace API. Authentication is a consumer-key header; lookups are plain
// query-string requests.
type MaerskAdapter struct {
	cfg      *domain.CarrierConfig
	client   *http.Client
	patterns []*regexp.Regexp
	breaker  *breaker.Breaker
	log      zerolog.Logger
}

// NewMaerskAdapter builds a Maersk adapter from its config.
func NewMaerskAdapter(cfg *domain.CarrierConfig, log zerolog.Logger) (*MaerskAdapter, error) {
	patterns, err := compilePatterns(cfg.TrackingPatterns, maerskDefaultPatterns)
	if err != nil {
		return nil, err
	}
	return &MaerskAdapter{
		cfg:      cfg,
		client:   httpclient.New(cfg.Timeout, log),
		patterns: patterns,
		breaker:  newAdapterBreaker(cfg.CarrierCode, log),
		log:      log,
	}, nil
}

func (a *MaerskAdapter) Code() string { return a.cfg.CarrierCode }
func (a *MaerskAdapter) Name() string { return a.cfg.CarrierName }

// ValidateTrackingNumber reports whether the number looks like a container
// or booking reference.
func (a *MaerskAdapter) ValidateTrackingNumber(trackingNumber string) bool {
	return matchAny(a.patterns, trackingNumber)
}

// Track fetches and normalizes the container event history for one reference.
func (a *MaerskAdapter) Track(ctx context.Context, trackingNumber string) (*domain.TrackingResponse, error) {
	if err := validateInput(trackingNumber, a.patterns); err != nil {
		return nil, err
	}
	if !a.cfg.HasCredentials() {
		metrics.CarrierCallsTotal.WithLabelValues(a.cfg.CarrierCode, "mock").Inc()
		return mockResponse(a.cfg, trackingNumber), nil
	}

	start := time.Now()
	var resp *domain.TrackingResponse
	err := guardedDo(a.breaker, a.cfg.CarrierCode, trackingNumber, func() error {
		var callErr error
		resp, callErr = a.track(ctx, trackingNumber)
		return callErr
	})
	metrics.CarrierCallDuration.WithLabelValues(a.cfg.CarrierCode).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CarrierCallsTotal.WithLabelValues(a.cfg.CarrierCode, callOutcome(err)).Inc()
		return nil, err
	}
	metrics.CarrierCallsTotal.WithLabelValues(a.cfg.CarrierCode, "success").Inc()
	return resp, nil
}

// TrackBatch tracks several references concurrently, dropping failed items.
func (a *MaerskAdapter) TrackBatch(ctx context.Context, trackingNumbers []string) ([]*domain.TrackingResponse, error) {
	return trackBatch(ctx, a, a.log, trackingNumbers)
}

// HealthCheck issues a lightweight GET against the events endpoint. Any
// authenticated response, including an empty result, counts as healthy.
func (a *MaerskAdapter) HealthCheck(ctx context.Context) bool {
	if !a.cfg.HasCredentials() {
		return true
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+"/track-and-trace/events?limit=1", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Consumer-Key", a.cfg.APIKey)
	httpResp, err := a.client.Do(req)
	if err != nil {
		a.log.Warn().Err(err).Str("carrier", a.cfg.CarrierCode).Msg("health check failed")
		return false
	}
	defer httpResp.Body.Close()
	return httpResp.StatusCode < http.StatusInternalServerError
}

// ── Maersk wire types ─────────────────────────────────────────────────────────

type maerskEvent struct {
	EventID          string `json:"eventID"`
	EventDateTime    string `json:"eventDateTime"`
	EventTypeCode    string `json:"eventTypeCode"`
	EventDescription string `json:"eventDescription"`
	Location         struct {
		CityName       string `json:"cityName"`
		CountryCode    string `json:"countryCode"`
		UNLocationCode string `json:"UNLocationCode"`
	} `json:"location"`
}

type maerskTrackResponse struct {
	Events []maerskEvent `json:"events"`
	ETA    string        `json:"estimatedTimeOfArrival"`
}

func (a *MaerskAdapter) track(ctx context.Context, trackingNumber string) (*domain.TrackingResponse, error) {
	q := url.Values{"equipmentReference": {trackingNumber}, "limit": {"100"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		a.cfg.BaseURL+"/track-and-trace/events?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Consumer-Key", a.cfg.APIKey)

	httpResp, err := a.client.Do(req)
	if err != nil {
		return nil, &domain.CarrierAPIError{CarrierCode: a.cfg.CarrierCode, TrackingNumber: trackingNumber, Err: err}
	}
	defer httpResp.Body.Close()

	switch {
	case httpResp.StatusCode == http.StatusTooManyRequests:
		return nil, &domain.RateLimitError{CarrierCode: a.cfg.CarrierCode, RetryAfter: retryAfter(httpResp)}
	case httpResp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("maersk: %s: %w", trackingNumber, domain.ErrTrackingNotFound)
	case httpResp.StatusCode != http.StatusOK:
		return nil, &domain.CarrierAPIError{
			CarrierCode:    a.cfg.CarrierCode,
			TrackingNumber: trackingNumber,
			StatusCode:     httpResp.StatusCode,
		}
	}

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &domain.CarrierAPIError{CarrierCode: a.cfg.CarrierCode, TrackingNumber: trackingNumber, Err: err}
	}

	var parsed maerskTrackResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &domain.CarrierAPIError{
			CarrierCode:    a.cfg.CarrierCode,
			TrackingNumber: trackingNumber,
			StatusCode:     httpResp.StatusCode,
			Err:            fmt.Errorf("parse response: %w", err),
		}
	}

	return a.mapResponse(trackingNumber, &parsed, body)
}

// mapResponse converts the container event list to the shared tracking model.
func (a *MaerskAdapter) mapResponse(trackingNumber string, parsed *maerskTrackResponse, raw []byte) (*domain.TrackingResponse, error) {
	resp := &domain.TrackingResponse{
		TrackingNumber: trackingNumber,
		CarrierCode:    a.cfg.CarrierCode,
		CarrierName:    a.cfg.CarrierName,
		Raw:            raw,
	}

	for _, ev := range parsed.Events {
		ts, err := time.Parse(time.RFC3339, ev.EventDateTime)
		if err != nil {
			a.log.Warn().Str("date", ev.EventDateTime).Msg("unparseable Maersk event timestamp")
			continue
		}
		var loc *domain.TrackingLocation
		if ev.Location.CityName != "" || ev.Location.CountryCode != "" {
			loc = &domain.TrackingLocation{
				City:    ev.Location.CityName,
				Country: ev.Location.CountryCode,
			}
		}
		resp.Events = append(resp.Events, domain.TrackingEvent{
			Status:          a.mapStatus(ev.EventTypeCode),
			Description:     ev.EventDescription,
			Location:        loc,
			Timestamp:       ts,
			ExternalEventID: ev.EventID,
		})
	}

	if eta, err := time.Parse(time.RFC3339, parsed.ETA); err == nil {
		resp.EstimatedDelivery = &eta
	}
	if len(resp.Events) == 0 {
		return nil, fmt.Errorf("maersk: %s: %w", trackingNumber, domain.ErrTrackingNotFound)
	}
	finalize(resp)
	return resp, nil
}

func (a *MaerskAdapter) mapStatus(code string) domain.TrackingStatus {
	if st, ok := maerskStatusCodes[code]; ok {
		return st
	}
	a.log.Warn().Str("carrier", a.cfg.CarrierCode).Str("code", code).Msg("unknown carrier status code")
	return domain.StatusPending
}
