package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/Newton-b/shipsmart-sub002/internal/core/domain"
)

func newTestContext() echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/tracking/1Z999", nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec)
}

func TestResolveError_DomainErrors(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"validation", &domain.ValidationError{Message: "tracking number is required"}, http.StatusBadRequest},
		{"carrier not found", fmt.Errorf("%w: DHL", domain.ErrCarrierNotFound), http.StatusNotFound},
		{"detection failed", fmt.Errorf("XX-1: %w", domain.ErrCarrierDetectionFailed), http.StatusUnprocessableEntity},
		{"tracking not found", fmt.Errorf("ups: %w", domain.ErrTrackingNotFound), http.StatusNotFound},
		{"rate limited", &domain.RateLimitError{CarrierCode: "UPS", RetryAfter: 30 * time.Second}, http.StatusTooManyRequests},
		{"carrier api error", &domain.CarrierAPIError{CarrierCode: "UPS", StatusCode: 502}, http.StatusBadGateway},
		{"circuit open", &domain.CarrierAPIError{CarrierCode: "UPS", StatusCode: 503, Err: domain.ErrCircuitOpen}, http.StatusBadGateway},
		{"echo error", echo.NewHTTPError(http.StatusMethodNotAllowed, "nope"), http.StatusMethodNotAllowed},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		code, msg := resolveError(tc.err, zerolog.Nop(), newTestContext())
		if code != tc.wantCode {
			t.Errorf("%s: code = %d, want %d", tc.name, code, tc.wantCode)
		}
		if msg == "" {
			t.Errorf("%s: empty message", tc.name)
		}
	}
}

func TestResolveError_UnknownErrorHidesCause(t *testing.T) {
	_, msg := resolveError(errors.New("password=hunter2 leaked"), zerolog.Nop(), newTestContext())
	if msg != "internal server error" {
		t.Errorf("internal details leaked: %q", msg)
	}
}
