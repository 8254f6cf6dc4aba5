package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Newton-b/shipsmart-sub002/internal/core/ports"
)

// CarrierHandler handles HTTP requests for carrier discovery and health.
type CarrierHandler struct {
	service ports.TrackingService
}

func NewCarrierHandler(service ports.TrackingService) *CarrierHandler {
	return &CarrierHandler{service: service}
}

// List handles GET /v1/carriers.
func (h *CarrierHandler) List(c echo.Context) error {
	carriers := h.service.AvailableCarriers(c.Request().Context())

	return c.JSON(http.StatusOK, map[string]any{
		"total":    len(carriers),
		"carriers": carriers,
	})
}

// Health handles GET /v1/carriers/health.
//
// Reports per-carrier reachability. The endpoint answers 200 as long as at
// least one carrier is healthy; 503 when every carrier is down.
func (h *CarrierHandler) Health(c echo.Context) error {
	status := h.service.GetHealthStatus(c.Request().Context())

	httpStatus := http.StatusOK
	if status.Status != "healthy" {
		httpStatus = http.StatusServiceUnavailable
	}

	return c.JSON(httpStatus, status)
}
