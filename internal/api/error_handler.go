package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/Newton-b/shipsmart-sub002/internal/core/domain"
)

// errorResponse is the canonical error envelope for all API errors.
type errorResponse struct {
	Error string `json:"error"`
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps known domain errors to their appropriate HTTP status codes.
//   - Logs unexpected errors internally without leaking details to the client.
//   - Renders a consistent JSON envelope: {"error": "<message>"}.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, msg := resolveError(err, log, c)
		_ = c.JSON(code, errorResponse{Error: msg})
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, string) {
	// Echo's own errors (bind failures, 404 from router, etc.)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, fmt.Sprintf("%v", he.Message)
	}

	// Known domain errors → deterministic HTTP codes.
	var validationErr *domain.ValidationError
	var rateLimitErr *domain.RateLimitError
	var apiErr *domain.CarrierAPIError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, validationErr.Message
	case errors.Is(err, domain.ErrCarrierNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrCarrierDetectionFailed):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, domain.ErrTrackingNotFound):
		return http.StatusNotFound, "no tracking events found"
	case errors.As(err, &rateLimitErr):
		return http.StatusTooManyRequests, rateLimitErr.Error()
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, fmt.Sprintf("carrier %s unavailable", apiErr.CarrierCode)
	}

	// Unexpected error: log the real cause, return a generic message.
	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("unhandled error")

	return http.StatusInternalServerError, "internal server error"
}
