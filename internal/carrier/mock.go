package carrier

import (
	"fmt"
	"hash/fnv"
	"time"

	"github.com/Newton-b/shipsmart-sub002/internal/core/domain"
)

// mockBase anchors mock timelines so repeated calls return identical data.
var mockBase = time.Date(2025, time.January, 6, 8, 0, 0, 0, time.UTC)

var mockProgression = []struct {
	status      domain.TrackingStatus
	description string
}{
	{domain.StatusPending, "Shipment information received"},
	{domain.StatusInTransit, "Departed origin facility"},
	{domain.StatusInTransit, "Arrived at destination facility"},
	{domain.StatusOutForDelivery, "Out for delivery"},
	{domain.StatusDelivered, "Delivered"},
}

var mockCities = []domain.TrackingLocation{
	{City: "Memphis", State: "TN", Country: "US", PostalCode: "38118"},
	{City: "Louisville", State: "KY", Country: "US", PostalCode: "40209"},
	{City: "Rotterdam", Country: "NL", PostalCode: "3089"},
	{City: "Singapore", Country: "SG", PostalCode: "627753"},
	{City: "Atlanta", State: "GA", Country: "US", PostalCode: "30301"},
}

// mockResponse produces a deterministic, schema-valid tracking response for
// adapters running without credentials. The same tracking number always
// yields the same events, which keeps downstream integration tests runnable
// offline.
func mockResponse(cfg *domain.CarrierConfig, trackingNumber string) *domain.TrackingResponse {
	h := fnv.New32a()
	_, _ = h.Write([]byte(trackingNumber))
	seed := h.Sum32()

	// Between 2 and 5 progression steps, chosen by the number itself.
	steps := 2 + int(seed%4)
	start := mockBase.Add(time.Duration(seed%720) * time.Hour)

	events := make([]domain.TrackingEvent, 0, steps)
	for i := 0; i < steps; i++ {
		step := mockProgression[i]
		loc := mockCities[(int(seed)+i)%len(mockCities)]
		events = append(events, domain.TrackingEvent{
			Status:          step.status,
			Description:     step.description,
			Location:        &loc,
			Timestamp:       start.Add(time.Duration(i*9) * time.Hour),
			ExternalEventID: fmt.Sprintf("MOCK-%s-%d", cfg.CarrierCode, i+1),
		})
	}

	resp := &domain.TrackingResponse{
		TrackingNumber: trackingNumber,
		CarrierCode:    cfg.CarrierCode,
		CarrierName:    cfg.CarrierName,
		Events:         events,
	}
	if steps == len(mockProgression) {
		delivered := events[len(events)-1].Timestamp
		resp.ActualDelivery = &delivered
	} else {
		eta := start.Add(time.Duration(len(mockProgression)*9) * time.Hour)
		resp.EstimatedDelivery = &eta
	}
	finalize(resp)
	return resp
}
