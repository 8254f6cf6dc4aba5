package carrier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Newton-b/shipsmart-sub002/internal/api/metrics"
	"github.com/Newton-b/shipsmart-sub002/internal/carrier/breaker"
	"github.com/Newton-b/shipsmart-sub002/internal/core/domain"
	"github.com/Newton-b/shipsmart-sub002/internal/infrastructure/httpclient"
)

// FedEx issues purely numeric tracking numbers in a handful of lengths.
var fedexDefaultPatterns = []string{
	`^\d{12}$`,
	`^\d{14}$`,
	`^\d{15}$`,
	`^\d{20}$`,
	`^\d{22}$`,
}

// fedexStatusCodes maps FedEx scan event codes onto the shared enum.
var fedexStatusCodes = map[string]domain.TrackingStatus{
	"OC": domain.StatusPending, // order created
	"PU": domain.StatusInTransit,
	"AR": domain.StatusInTransit, // arrived at facility
	"DP": domain.StatusInTransit, // departed facility
	"IT": domain.StatusInTransit,
	"OD": domain.StatusOutForDelivery,
	"DL": domain.StatusDelivered,
	"DE": domain.StatusException, // delivery exception
	"SE": domain.StatusException, // shipment exception
	"RS": domain.StatusReturned,
	"CA": domain.StatusCancelled,
}

// FedExAdapter tracks parcels through the FedEx Track API using OAuth
// client-credentials authentication.
type FedExAdapter struct {
	cfg      *domain.CarrierConfig
	client   *http.Client
	patterns []*regexp.Regexp
	breaker  *breaker.Breaker
	tokens   *tokenSource
	log      zerolog.Logger
}

// NewFedExAdapter builds a FedEx adapter from its config.
func NewFedExAdapter(cfg *domain.CarrierConfig, log zerolog.Logger) (*FedExAdapter, error) {
	patterns, err := compilePatterns(cfg.TrackingPatterns, fedexDefaultPatterns)
	if err != nil {
		return nil, err
	}
	a := &FedExAdapter{
		cfg:      cfg,
		client:   httpclient.New(cfg.Timeout, log),
		patterns: patterns,
		breaker:  newAdapterBreaker(cfg.CarrierCode, log),
		log:      log,
	}
	a.tokens = newTokenSource(a.fetchToken)
	return a, nil
}

func (a *FedExAdapter) Code() string { return a.cfg.CarrierCode }
func (a *FedExAdapter) Name() string { return a.cfg.CarrierName }

// ValidateTrackingNumber reports whether the number looks like a FedEx one.
func (a *FedExAdapter) ValidateTrackingNumber(trackingNumber string) bool {
	return matchAny(a.patterns, trackingNumber)
}

// Track fetches and normalizes the FedEx tracking details for one number.
func (a *FedExAdapter) Track(ctx context.Context, trackingNumber string) (*domain.TrackingResponse, error) {
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

// TrackBatch tracks several numbers concurrently, dropping failed items.
func (a *FedExAdapter) TrackBatch(ctx context.Context, trackingNumbers []string) ([]*domain.TrackingResponse, error) {
	return trackBatch(ctx, a, a.log, trackingNumbers)
}

// HealthCheck performs the OAuth round trip as a liveness probe.
func (a *FedExAdapter) HealthCheck(ctx context.Context) bool {
	if !a.cfg.HasCredentials() {
		return true
	}
	_, _, err := a.fetchToken(ctx)
	if err != nil {
		a.log.Warn().Err(err).Str("carrier", a.cfg.CarrierCode).Msg("health check failed")
		return false
	}
	return true
}

// ── FedEx wire types ──────────────────────────────────────────────────────────

type fedexTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type fedexScanLocation struct {
	City                string `json:"city"`
	StateOrProvinceCode string `json:"stateOrProvinceCode"`
	CountryCode         string `json:"countryCode"`
	PostalCode          string `json:"postalCode"`
}

type fedexScanEvent struct {
	Date             string            `json:"date"` // RFC3339 with offset
	EventType        string            `json:"eventType"`
	EventDescription string            `json:"eventDescription"`
	ScanLocation     fedexScanLocation `json:"scanLocation"`
}

type fedexTrackResult struct {
	LatestStatusDetail struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"latestStatusDetail"`
	ScanEvents   []fedexScanEvent `json:"scanEvents"`
	DateAndTimes []struct {
		Type     string `json:"type"` // ESTIMATED_DELIVERY, ACTUAL_DELIVERY
		DateTime string `json:"dateTime"`
	} `json:"dateAndTimes"`
	Error struct {
		Code string `json:"code"`
	} `json:"error"`
}

type fedexTrackResponse struct {
	Output struct {
		CompleteTrackResults []struct {
			TrackingNumber string             `json:"trackingNumber"`
			TrackResults   []fedexTrackResult `json:"trackResults"`
		} `json:"completeTrackResults"`
	} `json:"output"`
}

// fetchToken performs the OAuth client-credentials exchange.
func (a *FedExAdapter) fetchToken(ctx context.Context) (string, time.Duration, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {a.cfg.APIKey},
		"client_secret": {a.cfg.APISecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.cfg.BaseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpResp, err := a.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("fedex token: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("fedex token: unexpected status %d", httpResp.StatusCode)
	}

	var tok fedexTokenResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&tok); err != nil {
		return "", 0, fmt.Errorf("fedex token: decode: %w", err)
	}
	ttl := time.Duration(tok.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	metrics.TokenRefreshTotal.WithLabelValues(a.cfg.CarrierCode).Inc()
	return tok.AccessToken, ttl, nil
}

func (a *FedExAdapter) track(ctx context.Context, trackingNumber string) (*domain.TrackingResponse, error) {
	token, err := a.tokens.get(ctx)
	if err != nil {
		return nil, &domain.CarrierAPIError{
			CarrierCode:    a.cfg.CarrierCode,
			TrackingNumber: trackingNumber,
			StatusCode:     http.StatusUnauthorized,
			Err:            err,
		}
	}

	payload, err := json.Marshal(map[string]any{
		"includeDetailedScans": true,
		"trackingInfo": []map[string]any{
			{"trackingNumberInfo": map[string]string{"trackingNumber": trackingNumber}},
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.cfg.BaseURL+"/track/v1/trackingnumbers", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := a.client.Do(req)
	if err != nil {
		return nil, &domain.CarrierAPIError{CarrierCode: a.cfg.CarrierCode, TrackingNumber: trackingNumber, Err: err}
	}
	defer httpResp.Body.Close()

	switch {
	case httpResp.StatusCode == http.StatusTooManyRequests:
		return nil, &domain.RateLimitError{CarrierCode: a.cfg.CarrierCode, RetryAfter: retryAfter(httpResp)}
	case httpResp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("fedex: %s: %w", trackingNumber, domain.ErrTrackingNotFound)
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

	var parsed fedexTrackResponse
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

// mapResponse converts the FedEx payload to the shared tracking model. When
// FedEx reports no discrete scan events, the latest status detail still
// drives CurrentStatus so a freshly created label is not reported as unknown.
func (a *FedExAdapter) mapResponse(trackingNumber string, parsed *fedexTrackResponse, raw []byte) (*domain.TrackingResponse, error) {
	resp := &domain.TrackingResponse{
		TrackingNumber: trackingNumber,
		CarrierCode:    a.cfg.CarrierCode,
		CarrierName:    a.cfg.CarrierName,
		Raw:            raw,
	}

	var latestCode string
	for _, complete := range parsed.Output.CompleteTrackResults {
		for _, result := range complete.TrackResults {
			if result.Error.Code != "" {
				return nil, fmt.Errorf("fedex: %s: %s: %w", trackingNumber, result.Error.Code, domain.ErrTrackingNotFound)
			}
			if result.LatestStatusDetail.Code != "" {
				latestCode = result.LatestStatusDetail.Code
			}
			for i, scan := range result.ScanEvents {
				ts, err := time.Parse(time.RFC3339, scan.Date)
				if err != nil {
					a.log.Warn().Str("date", scan.Date).Msg("unparseable FedEx scan timestamp")
					continue
				}
				resp.Events = append(resp.Events, domain.TrackingEvent{
					Status:          a.mapStatus(scan.EventType),
					Description:     scan.EventDescription,
					Location:        fedexLocation(scan.ScanLocation),
					Timestamp:       ts,
					ExternalEventID: fmt.Sprintf("%s-%d", scan.EventType, i),
				})
			}
			for _, dt := range result.DateAndTimes {
				ts, err := time.Parse(time.RFC3339, dt.DateTime)
				if err != nil {
					continue
				}
				switch dt.Type {
				case "ACTUAL_DELIVERY":
					resp.ActualDelivery = &ts
				case "ESTIMATED_DELIVERY":
					resp.EstimatedDelivery = &ts
				}
			}
		}
	}

	if len(resp.Events) == 0 && latestCode == "" {
		return nil, fmt.Errorf("fedex: %s: %w", trackingNumber, domain.ErrTrackingNotFound)
	}
	if len(resp.Events) == 0 {
		resp.CurrentStatus = a.mapStatus(latestCode)
	}
	finalize(resp)
	return resp, nil
}

func (a *FedExAdapter) mapStatus(code string) domain.TrackingStatus {
	if st, ok := fedexStatusCodes[code]; ok {
		return st
	}
	a.log.Warn().Str("carrier", a.cfg.CarrierCode).Str("code", code).Msg("unknown carrier status code")
	return domain.StatusPending
}

func fedexLocation(loc fedexScanLocation) *domain.TrackingLocation {
	if loc == (fedexScanLocation{}) {
		return nil
	}
	return &domain.TrackingLocation{
		City:       loc.City,
		State:      loc.StateOrProvinceCode,
		Country:    loc.CountryCode,
		PostalCode: loc.PostalCode,
	}
}
