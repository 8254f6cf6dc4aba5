package domain

import (
	"encoding/json"
	"time"
)

// TrackingStatus is the carrier-agnostic lifecycle state of a shipment.
// Every carrier's native status codes are mapped onto this set.
type TrackingStatus string

const (
	StatusPending        TrackingStatus = "pending"
	StatusInTransit      TrackingStatus = "in_transit"
	StatusOutForDelivery TrackingStatus = "out_for_delivery"
	StatusDelivered      TrackingStatus = "delivered"
	StatusException      TrackingStatus = "exception"
	StatusReturned       TrackingStatus = "returned"
	StatusCancelled      TrackingStatus = "cancelled"
	StatusUnknown        TrackingStatus = "unknown"
)

// TrackingLocation is a partial location disclosed by a carrier.
// Carriers rarely fill every field, so all of them are optional.
type TrackingLocation struct {
	City       string   `json:"city,omitempty" bson:"city,omitempty"`
	State      string   `json:"state,omitempty" bson:"state,omitempty"`
	Country    string   `json:"country,omitempty" bson:"country,omitempty"`
	PostalCode string   `json:"postal_code,omitempty" bson:"postal_code,omitempty"`
	Latitude   *float64 `json:"latitude,omitempty" bson:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty" bson:"longitude,omitempty"`
	Address    string   `json:"address,omitempty" bson:"address,omitempty"`
}

// TrackingEvent is one timestamped status change reported by a carrier.
type TrackingEvent struct {
	Status          TrackingStatus    `json:"status"`
	Description     string            `json:"description"`
	Location        *TrackingLocation `json:"location,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
	ExternalEventID string            `json:"external_event_id,omitempty"`
	Raw             json.RawMessage   `json:"raw,omitempty"`
}

// TrackingResponse is the normalized view of one shipment's tracking state.
// Events are ordered newest first; CurrentStatus always matches Events[0]
// when the list is non-empty.
type TrackingResponse struct {
	TrackingNumber    string            `json:"tracking_number"`
	CarrierCode       string            `json:"carrier_code"`
	CarrierName       string            `json:"carrier_name"`
	CurrentStatus     TrackingStatus    `json:"current_status"`
	Events            []TrackingEvent   `json:"events"`
	EstimatedDelivery *time.Time        `json:"estimated_delivery,omitempty"`
	ActualDelivery    *time.Time        `json:"actual_delivery,omitempty"`
	Origin            *TrackingLocation `json:"origin,omitempty"`
	Destination       *TrackingLocation `json:"destination,omitempty"`
	LastUpdated       time.Time         `json:"last_updated"`
	IsDelivered       bool              `json:"is_delivered"`
	Raw               json.RawMessage   `json:"raw,omitempty"`
}

// CarrierSummary is the lightweight carrier identity exposed to callers.
type CarrierSummary struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// PersistedTrackingEvent is one row of the append-only tracking history.
// At most one row per (tracking_number, carrier_code) pair carries
// IsLatest = true at any time.
type PersistedTrackingEvent struct {
	ID              string            `json:"id" bson:"_id,omitempty"`
	TrackingNumber  string            `json:"tracking_number" bson:"tracking_number"`
	CarrierCode     string            `json:"carrier_code" bson:"carrier_code"`
	Status          TrackingStatus    `json:"status" bson:"status"`
	Description     string            `json:"description" bson:"description"`
	Location        *TrackingLocation `json:"location,omitempty" bson:"location,omitempty"`
	EventTimestamp  time.Time         `json:"event_timestamp" bson:"event_timestamp"`
	ExternalEventID string            `json:"external_event_id,omitempty" bson:"external_event_id,omitempty"`
	IsLatest        bool              `json:"is_latest" bson:"is_latest"`
	RecordedAt      time.Time         `json:"recorded_at" bson:"recorded_at"`
}
