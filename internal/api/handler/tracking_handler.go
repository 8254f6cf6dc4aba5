package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Newton-b/shipsmart-sub002/internal/core/ports"
)

// TrackingHandler handles HTTP requests for live tracking operations.
type TrackingHandler struct {
	service ports.TrackingService
}

func NewTrackingHandler(service ports.TrackingService) *TrackingHandler {
	return &TrackingHandler{service: service}
}

// --- Request / Response types ---

type batchTrackingRequest struct {
	TrackingNumbers []string `json:"tracking_numbers" validate:"required,min=1,max=50,dive,required"`
	Carrier         string   `json:"carrier"`
}

type batchTrackingResponse struct {
	Total   int                       `json:"total"`
	Results []ports.BatchTrackingItem `json:"results"`
}

// Get handles GET /v1/tracking/:tracking_number.
//
// An optional ?carrier= query parameter pins the carrier; without it the
// carrier is detected from the tracking-number format.
func (h *TrackingHandler) Get(c echo.Context) error {
	trackingNumber := c.Param("tracking_number")

	var carrierHint *string
	if carrier := c.QueryParam("carrier"); carrier != "" {
		carrierHint = &carrier
	}

	resp, err := h.service.TrackShipment(c.Request().Context(), trackingNumber, carrierHint)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}

// Batch handles POST /v1/tracking/batch.
//
// Each number is tracked independently; per-number failures come back as
// error-shaped entries so one bad number never fails the whole batch.
func (h *TrackingHandler) Batch(c echo.Context) error {
	var req batchTrackingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var carrierHint *string
	if req.Carrier != "" {
		carrierHint = &req.Carrier
	}

	results := h.service.TrackBatchShipments(c.Request().Context(), req.TrackingNumbers, carrierHint)

	return c.JSON(http.StatusOK, batchTrackingResponse{
		Total:   len(results),
		Results: results,
	})
}

// Latest handles GET /v1/tracking/:tracking_number/latest.
//
// Returns the persisted latest event without calling the carrier.
func (h *TrackingHandler) Latest(c echo.Context) error {
	trackingNumber := c.Param("tracking_number")
	carrier := c.QueryParam("carrier")

	event, err := h.service.GetLatestStatus(c.Request().Context(), trackingNumber, carrier)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, event)
}

// History handles GET /v1/tracking/:tracking_number/history.
//
// Returns all persisted events for the number, newest first.
func (h *TrackingHandler) History(c echo.Context) error {
	trackingNumber := c.Param("tracking_number")
	carrier := c.QueryParam("carrier")

	events, err := h.service.GetTrackingHistory(c.Request().Context(), trackingNumber, carrier)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"tracking_number": trackingNumber,
		"total":           len(events),
		"events":          events,
	})
}
