package carrier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Newton-b/shipsmart-sub002/internal/core/domain"
)

const fedexTestNumber = "123456789012"

func fedexTestConfig(baseURL string) *domain.CarrierConfig {
	return &domain.CarrierConfig{
		CarrierCode: "FEDEX",
		CarrierName: "FedEx",
		CarrierType: domain.CarrierTypeParcel,
		APIKey:      "client-id",
		APISecret:   "client-secret",
		BaseURL:     baseURL,
		Timeout:     2 * time.Second,
		Active:      true,
	}
}

const fedexTrackBody = `{
  "output": {
    "completeTrackResults": [{
      "trackingNumber": "123456789012",
      "trackResults": [{
        "latestStatusDetail": {"code": "DL", "description": "Delivered"},
        "scanEvents": [
          {"date": "2025-01-12T14:05:00-05:00", "eventType": "DL", "eventDescription": "Delivered",
           "scanLocation": {"city": "Atlanta", "stateOrProvinceCode": "GA", "countryCode": "US", "postalCode": "30301"}},
          {"date": "2025-01-12T08:10:00-05:00", "eventType": "OD", "eventDescription": "On FedEx vehicle for delivery",
           "scanLocation": {"city": "Atlanta", "stateOrProvinceCode": "GA", "countryCode": "US", "postalCode": "30301"}},
          {"date": "2025-01-10T21:00:00-05:00", "eventType": "PU", "eventDescription": "Picked up",
           "scanLocation": {"city": "Memphis", "stateOrProvinceCode": "TN", "countryCode": "US", "postalCode": "38118"}}
        ],
        "dateAndTimes": [
          {"type": "ACTUAL_DELIVERY", "dateTime": "2025-01-12T14:05:00-05:00"}
        ]
      }]
    }]
  }
}`

func newFedExTestServer(t *testing.T, tokenTTL int, trackBody string) (*httptest.Server, *int, *int) {
	t.Helper()
	tokenCalls, trackCalls := 0, 0
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse token form: %v", err)
		}
		if r.PostForm.Get("client_id") != "client-id" || r.PostForm.Get("client_secret") != "client-secret" {
			t.Errorf("unexpected token form: %v", r.PostForm)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-1", "expires_in": tokenTTL})
	})
	mux.HandleFunc("/track/v1/trackingnumbers", func(w http.ResponseWriter, r *http.Request) {
		trackCalls++
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("unexpected authorization header: %s", got)
		}
		var payload struct {
			TrackingInfo []struct {
				TrackingNumberInfo struct {
					TrackingNumber string `json:"trackingNumber"`
				} `json:"trackingNumberInfo"`
			} `json:"trackingInfo"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode track payload: %v", err)
		}
		if len(payload.TrackingInfo) != 1 || payload.TrackingInfo[0].TrackingNumberInfo.TrackingNumber != fedexTestNumber {
			t.Errorf("unexpected track payload: %+v", payload)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(trackBody))
	})
	return httptest.NewServer(mux), &tokenCalls, &trackCalls
}

func TestFedExAdapter_Track_Success(t *testing.T) {
	srv, _, _ := newFedExTestServer(t, 3600, fedexTrackBody)
	defer srv.Close()

	adapter, err := NewFedExAdapter(fedexTestConfig(srv.URL), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewFedExAdapter: %v", err)
	}

	resp, err := adapter.Track(context.Background(), fedexTestNumber)
	if err != nil {
		t.Fatalf("Track: %v", err)
	}

	if len(resp.Events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(resp.Events))
	}
	if resp.CurrentStatus != domain.StatusDelivered {
		t.Errorf("current status = %s", resp.CurrentStatus)
	}
	if !resp.IsDelivered {
		t.Errorf("delivered shipment not flagged")
	}
	if resp.ActualDelivery == nil {
		t.Errorf("expected actual delivery timestamp")
	}
	if resp.Events[2].Status != domain.StatusInTransit {
		t.Errorf("oldest event status = %s", resp.Events[2].Status)
	}
	if resp.Events[2].Location == nil || resp.Events[2].Location.City != "Memphis" {
		t.Errorf("unexpected oldest event location: %+v", resp.Events[2].Location)
	}
}

func TestFedExAdapter_TokenRefreshOnlyAfterExpiry(t *testing.T) {
	// TTL shorter than the refresh margin forces a refresh on every call.
	srv, tokenCalls, _ := newFedExTestServer(t, 10, fedexTrackBody)
	defer srv.Close()

	adapter, _ := NewFedExAdapter(fedexTestConfig(srv.URL), zerolog.Nop())

	for i := 0; i < 3; i++ {
		if _, err := adapter.Track(context.Background(), fedexTestNumber); err != nil {
			t.Fatalf("Track %d: %v", i, err)
		}
	}
	if *tokenCalls != 3 {
		t.Errorf("expected a refresh per call with expired tokens, got %d", *tokenCalls)
	}
}

func TestFedExAdapter_Track_NoScansUsesLatestStatus(t *testing.T) {
	body := `{"output":{"completeTrackResults":[{"trackingNumber":"123456789012",
	  "trackResults":[{"latestStatusDetail":{"code":"OC","description":"Label created"}}]}]}}`
	srv, _, _ := newFedExTestServer(t, 3600, body)
	defer srv.Close()

	adapter, _ := NewFedExAdapter(fedexTestConfig(srv.URL), zerolog.Nop())

	resp, err := adapter.Track(context.Background(), fedexTestNumber)
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if len(resp.Events) != 0 {
		t.Fatalf("expected no events, got %d", len(resp.Events))
	}
	if resp.CurrentStatus != domain.StatusPending {
		t.Errorf("current status = %s, want pending from latest status detail", resp.CurrentStatus)
	}
}

func TestFedExAdapter_Track_UpstreamErrorCode(t *testing.T) {
	body := `{"output":{"completeTrackResults":[{"trackingNumber":"123456789012",
	  "trackResults":[{"error":{"code":"TRACKING.TRACKINGNUMBER.NOTFOUND"}}]}]}}`
	srv, _, _ := newFedExTestServer(t, 3600, body)
	defer srv.Close()

	adapter, _ := NewFedExAdapter(fedexTestConfig(srv.URL), zerolog.Nop())

	_, err := adapter.Track(context.Background(), fedexTestNumber)
	if !errors.Is(err, domain.ErrTrackingNotFound) {
		t.Fatalf("expected ErrTrackingNotFound, got %v", err)
	}
}

func TestFedExAdapter_Track_TokenEndpointDown(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	adapter, _ := NewFedExAdapter(fedexTestConfig(srv.URL), zerolog.Nop())

	_, err := adapter.Track(context.Background(), fedexTestNumber)
	var apiErr *domain.CarrierAPIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected CarrierAPIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("status code = %d", apiErr.StatusCode)
	}
}

func TestFedExAdapter_ValidateTrackingNumber(t *testing.T) {
	adapter, _ := NewFedExAdapter(fedexTestConfig("http://localhost:0"), zerolog.Nop())

	// FedEx numbers are purely numeric: 12, 14, 15, 20 or 22 digits.
	cases := []struct {
		number string
		want   bool
	}{
		{"123456789012", true},
		{"12345678901234", true},
		{"123456789012345", true},
		{"12345678901234567890", true},
		{"1234567890123456789012", true},
		{"1234567890", false},
		{"1Z999AA10123456784", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := adapter.ValidateTrackingNumber(tc.number); got != tc.want {
			t.Errorf("ValidateTrackingNumber(%q) = %v, want %v", tc.number, got, tc.want)
		}
	}
}
