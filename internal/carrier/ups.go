package carrier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Newton-b/shipsmart-sub002/internal/api/metrics"
	"github.com/Newton-b/shipsmart-sub002/internal/carrier/breaker"
	"github.com/Newton-b/shipsmart-sub002/internal/core/domain"
	"github.com/Newton-b/shipsmart-sub002/internal/infrastructure/httpclient"
)

// Default UPS tracking number formats: 1Z + 16 alphanumerics, plus the
// 10-digit "T" ground reference.
var upsDefaultPatterns = []string{
	`^1Z[0-9A-Z]{16}$`,
	`^T\d{10}$`,
}

// upsStatusCodes maps UPS activity status types onto the shared enum.
var upsStatusCodes = map[string]domain.TrackingStatus{
	"M":  domain.StatusPending,        // manifest / billing information received
	"P":  domain.StatusInTransit,      // pickup
	"I":  domain.StatusInTransit,      // in transit
	"O":  domain.StatusOutForDelivery, // out for delivery
	"D":  domain.StatusDelivered,
	"X":  domain.StatusException,
	"RS": domain.StatusReturned, // returned to shipper
	"MV": domain.StatusCancelled,
}

// UPSAdapter tracks parcels through the UPS Track API using OAuth
// client-credentials authentication.
type UPSAdapter struct {
	cfg      *domain.CarrierConfig
	client   *http.Client
	patterns []*regexp.Regexp
	breaker  *breaker.Breaker
	tokens   *tokenSource
	log      zerolog.Logger
}

// NewUPSAdapter builds a UPS adapter from its config.
func NewUPSAdapter(cfg *domain.CarrierConfig, log zerolog.Logger) (*UPSAdapter, error) {
	patterns, err := compilePatterns(cfg.TrackingPatterns, upsDefaultPatterns)
	if err != nil {
		return nil, err
	}
	a := &UPSAdapter{
		cfg:      cfg,
		client:   httpclient.New(cfg.Timeout, log),
		patterns: patterns,
		breaker:  newAdapterBreaker(cfg.CarrierCode, log),
		log:      log,
	}
	a.tokens = newTokenSource(a.fetchToken)
	return a, nil
}

func (a *UPSAdapter) Code() string { return a.cfg.CarrierCode }
func (a *UPSAdapter) Name() string { return a.cfg.CarrierName }

// ValidateTrackingNumber reports whether the number looks like a UPS one.
func (a *UPSAdapter) ValidateTrackingNumber(trackingNumber string) bool {
	return matchAny(a.patterns, trackingNumber)
}

// Track fetches and normalizes the UPS tracking details for one number.
func (a *UPSAdapter) Track(ctx context.Context, trackingNumber string) (*domain.TrackingResponse, error) {
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
func (a *UPSAdapter) TrackBatch(ctx context.Context, trackingNumbers []string) ([]*domain.TrackingResponse, error) {
	return trackBatch(ctx, a, a.log, trackingNumbers)
}

// HealthCheck performs the OAuth round trip as a liveness probe. Without
// credentials the adapter serves mock data and is always healthy.
func (a *UPSAdapter) HealthCheck(ctx context.Context) bool {
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

// ── UPS wire types ────────────────────────────────────────────────────────────

type upsTokenResponse struct {
	AccessToken string `json:"access_token"`
	// UPS returns expires_in as a string of seconds.
	ExpiresIn string `json:"expires_in"`
}

type upsAddress struct {
	City          string `json:"city"`
	StateProvince string `json:"stateProvince"`
	CountryCode   string `json:"countryCode"`
	PostalCode    string `json:"postalCode"`
}

type upsActivity struct {
	Status struct {
		Type        string `json:"type"`
		Description string `json:"description"`
		Code        string `json:"code"`
	} `json:"status"`
	Date     string `json:"date"` // YYYYMMDD
	Time     string `json:"time"` // HHMMSS
	Location struct {
		Address upsAddress `json:"address"`
	} `json:"location"`
}

type upsTrackResponse struct {
	TrackResponse struct {
		Shipment []struct {
			Package []struct {
				TrackingNumber string        `json:"trackingNumber"`
				Activity       []upsActivity `json:"activity"`
				DeliveryDate   []struct {
					Type string `json:"type"` // SDD, RDD, DEL
					Date string `json:"date"`
				} `json:"deliveryDate"`
			} `json:"package"`
		} `json:"shipment"`
	} `json:"trackResponse"`
}

// fetchToken performs the OAuth client-credentials exchange.
func (a *UPSAdapter) fetchToken(ctx context.Context) (string, time.Duration, error) {
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.cfg.BaseURL+"/security/v1/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, err
	}
	req.SetBasicAuth(a.cfg.APIKey, a.cfg.APISecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpResp, err := a.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("ups token: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("ups token: unexpected status %d", httpResp.StatusCode)
	}

	var tok upsTokenResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&tok); err != nil {
		return "", 0, fmt.Errorf("ups token: decode: %w", err)
	}
	secs, err := strconv.Atoi(tok.ExpiresIn)
	if err != nil || secs <= 0 {
		secs = 3600
	}
	metrics.TokenRefreshTotal.WithLabelValues(a.cfg.CarrierCode).Inc()
	return tok.AccessToken, time.Duration(secs) * time.Second, nil
}

func (a *UPSAdapter) track(ctx context.Context, trackingNumber string) (*domain.TrackingResponse, error) {
	token, err := a.tokens.get(ctx)
	if err != nil {
		return nil, &domain.CarrierAPIError{
			CarrierCode:    a.cfg.CarrierCode,
			TrackingNumber: trackingNumber,
			StatusCode:     http.StatusUnauthorized,
			Err:            err,
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		a.cfg.BaseURL+"/api/track/v1/details/"+url.PathEscape(trackingNumber), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("transId", trackingNumber)
	req.Header.Set("transactionSrc", "shipsmart")

	httpResp, err := a.client.Do(req)
	if err != nil {
		return nil, &domain.CarrierAPIError{CarrierCode: a.cfg.CarrierCode, TrackingNumber: trackingNumber, Err: err}
	}
	defer httpResp.Body.Close()

	switch {
	case httpResp.StatusCode == http.StatusTooManyRequests:
		return nil, &domain.RateLimitError{CarrierCode: a.cfg.CarrierCode, RetryAfter: retryAfter(httpResp)}
	case httpResp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("ups: %s: %w", trackingNumber, domain.ErrTrackingNotFound)
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

	var parsed upsTrackResponse
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

// mapResponse converts the UPS payload to the shared tracking model.
func (a *UPSAdapter) mapResponse(trackingNumber string, parsed *upsTrackResponse, raw []byte) (*domain.TrackingResponse, error) {
	resp := &domain.TrackingResponse{
		TrackingNumber: trackingNumber,
		CarrierCode:    a.cfg.CarrierCode,
		CarrierName:    a.cfg.CarrierName,
		Raw:            raw,
	}

	for _, shipment := range parsed.TrackResponse.Shipment {
		for _, pkg := range shipment.Package {
			for i, act := range pkg.Activity {
				ts, err := time.Parse("20060102 150405", act.Date+" "+act.Time)
				if err != nil {
					a.log.Warn().Str("date", act.Date).Str("time", act.Time).Msg("unparseable UPS activity timestamp")
					continue
				}
				resp.Events = append(resp.Events, domain.TrackingEvent{
					Status:          a.mapStatus(act.Status.Type),
					Description:     act.Status.Description,
					Location:        upsLocation(act.Location.Address),
					Timestamp:       ts,
					ExternalEventID: fmt.Sprintf("%s-%d", act.Status.Code, i),
				})
			}
			for _, dd := range pkg.DeliveryDate {
				ts, err := time.Parse("20060102", dd.Date)
				if err != nil {
					continue
				}
				switch dd.Type {
				case "DEL":
					resp.ActualDelivery = &ts
				case "SDD", "RDD":
					resp.EstimatedDelivery = &ts
				}
			}
		}
	}

	if len(resp.Events) == 0 {
		return nil, fmt.Errorf("ups: %s: %w", trackingNumber, domain.ErrTrackingNotFound)
	}
	finalize(resp)
	return resp, nil
}

func (a *UPSAdapter) mapStatus(code string) domain.TrackingStatus {
	if st, ok := upsStatusCodes[code]; ok {
		return st
	}
	a.log.Warn().Str("carrier", a.cfg.CarrierCode).Str("code", code).Msg("unknown carrier status code")
	return domain.StatusPending
}

func upsLocation(addr upsAddress) *domain.TrackingLocation {
	if addr == (upsAddress{}) {
		return nil
	}
	return &domain.TrackingLocation{
		City:       addr.City,
		State:      addr.StateProvince,
		Country:    addr.CountryCode,
		PostalCode: addr.PostalCode,
	}
}
