package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Newton-b/shipsmart-sub002/internal/core/domain"
	"github.com/Newton-b/shipsmart-sub002/internal/core/ports"
)

type stubTrackingService struct {
	trackFn   func(ctx context.Context, trackingNumber string, carrierCode *string) (*domain.TrackingResponse, error)
	batchFn   func(ctx context.Context, trackingNumbers []string, carrierCode *string) []ports.BatchTrackingItem
	latestFn  func(ctx context.Context, trackingNumber, carrierCode string) (*domain.PersistedTrackingEvent, error)
	historyFn func(ctx context.Context, trackingNumber, carrierCode string) ([]*domain.PersistedTrackingEvent, error)
}

func (s *stubTrackingService) TrackShipment(ctx context.Context, trackingNumber string, carrierCode *string) (*domain.TrackingResponse, error) {
	return s.trackFn(ctx, trackingNumber, carrierCode)
}

func (s *stubTrackingService) TrackBatchShipments(ctx context.Context, trackingNumbers []string, carrierCode *string) []ports.BatchTrackingItem {
	return s.batchFn(ctx, trackingNumbers, carrierCode)
}

func (s *stubTrackingService) GetLatestStatus(ctx context.Context, trackingNumber, carrierCode string) (*domain.PersistedTrackingEvent, error) {
	return s.latestFn(ctx, trackingNumber, carrierCode)
}

func (s *stubTrackingService) GetTrackingHistory(ctx context.Context, trackingNumber, carrierCode string) ([]*domain.PersistedTrackingEvent, error) {
	return s.historyFn(ctx, trackingNumber, carrierCode)
}

func (s *stubTrackingService) GetHealthStatus(ctx context.Context) *ports.HealthStatus {
	return &ports.HealthStatus{Status: "healthy", Carriers: map[string]bool{"UPS": true}}
}

func (s *stubTrackingService) AvailableCarriers(ctx context.Context) []domain.CarrierSummary {
	return []domain.CarrierSummary{{Code: "UPS", Name: "UPS", Type: domain.CarrierTypeParcel}}
}

func TestTrackingHandler_Get_Success(t *testing.T) {
	e := echo.New()
	stub := &stubTrackingService{
		trackFn: func(ctx context.Context, trackingNumber string, carrierCode *string) (*domain.TrackingResponse, error) {
			if trackingNumber != "1Z999AA10123456784" {
				t.Fatalf("unexpected number: %s", trackingNumber)
			}
			if carrierCode != nil {
				t.Fatalf("expected nil hint, got %s", *carrierCode)
			}
			return &domain.TrackingResponse{
				TrackingNumber: trackingNumber,
				CarrierCode:    "UPS",
				CurrentStatus:  domain.StatusInTransit,
				LastUpdated:    time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC),
			}, nil
		},
	}
	handler := NewTrackingHandler(stub)

	req := httptest.NewRequest(http.MethodGet, "/v1/tracking/1Z999AA10123456784", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("tracking_number")
	c.SetParamValues("1Z999AA10123456784")

	if err := handler.Get(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp["tracking_number"] != "1Z999AA10123456784" || resp["current_status"] != "in_transit" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}

func TestTrackingHandler_Get_CarrierHint(t *testing.T) {
	e := echo.New()
	stub := &stubTrackingService{
		trackFn: func(ctx context.Context, trackingNumber string, carrierCode *string) (*domain.TrackingResponse, error) {
			if carrierCode == nil || *carrierCode != "UPS" {
				t.Fatalf("hint not forwarded: %v", carrierCode)
			}
			return &domain.TrackingResponse{TrackingNumber: trackingNumber, CarrierCode: "UPS"}, nil
		},
	}
	handler := NewTrackingHandler(stub)

	req := httptest.NewRequest(http.MethodGet, "/v1/tracking/1Z999AA10123456784?carrier=UPS", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("tracking_number")
	c.SetParamValues("1Z999AA10123456784")

	if err := handler.Get(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
}

func TestTrackingHandler_Get_ErrorPropagates(t *testing.T) {
	e := echo.New()
	stub := &stubTrackingService{
		trackFn: func(ctx context.Context, trackingNumber string, carrierCode *string) (*domain.TrackingResponse, error) {
			return nil, domain.ErrCarrierDetectionFailed
		},
	}
	handler := NewTrackingHandler(stub)

	req := httptest.NewRequest(http.MethodGet, "/v1/tracking/XX", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("tracking_number")
	c.SetParamValues("XX")

	// Domain errors flow to the central error handler untouched.
	if err := handler.Get(c); err == nil {
		t.Fatalf("expected error to propagate")
	}
}

func TestTrackingHandler_Batch_Success(t *testing.T) {
	e := echo.New()
	e.Validator = NewValidator()
	stub := &stubTrackingService{
		batchFn: func(ctx context.Context, trackingNumbers []string, carrierCode *string) []ports.BatchTrackingItem {
			if len(trackingNumbers) != 2 {
				t.Fatalf("unexpected numbers: %v", trackingNumbers)
			}
			return []ports.BatchTrackingItem{
				{TrackingNumber: trackingNumbers[0], Status: ports.BatchItemOK, Response: &domain.TrackingResponse{TrackingNumber: trackingNumbers[0]}},
				{TrackingNumber: trackingNumbers[1], Status: ports.BatchItemError, Error: "no adapter for carrier"},
			}
		},
	}
	handler := NewTrackingHandler(stub)

	body := strings.NewReader(`{"tracking_numbers":["1Z999AA10123456784","XX-1"]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/tracking/batch", body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := handler.Batch(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp batchTrackingResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Total != 2 || len(resp.Results) != 2 {
		t.Fatalf("unexpected batch shape: %+v", resp)
	}
	if resp.Results[1].Status != ports.BatchItemError {
		t.Fatalf("expected second item to be error-shaped: %+v", resp.Results[1])
	}
}

func TestTrackingHandler_Batch_EmptyList(t *testing.T) {
	e := echo.New()
	e.Validator = NewValidator()
	handler := NewTrackingHandler(&stubTrackingService{})

	req := httptest.NewRequest(http.MethodPost, "/v1/tracking/batch", strings.NewReader(`{"tracking_numbers":[]}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := handler.Batch(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty batch, got %v", err)
	}
}
