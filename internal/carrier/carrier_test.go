package carrier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Newton-b/shipsmart-sub002/internal/core/domain"
)

func TestTokenSource_CachesUntilExpiry(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	fetches := 0
	ts := newTokenSource(func(ctx context.Context) (string, time.Duration, error) {
		fetches++
		return fmt.Sprintf("tok-%d", fetches), time.Hour, nil
	})
	ts.now = func() time.Time { return now }

	tok, err := ts.get(context.Background())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if tok != "tok-1" {
		t.Errorf("token = %s", tok)
	}

	// Well within the TTL: cached token is reused.
	now = now.Add(30 * time.Minute)
	tok, _ = ts.get(context.Background())
	if tok != "tok-1" || fetches != 1 {
		t.Errorf("expected cached token, got %s after %d fetches", tok, fetches)
	}

	// Inside the expiry margin: refresh before the token dies mid-request.
	now = now.Add(30*time.Minute - 10*time.Second)
	tok, _ = ts.get(context.Background())
	if tok != "tok-2" || fetches != 2 {
		t.Errorf("expected refreshed token, got %s after %d fetches", tok, fetches)
	}
}

func TestTokenSource_FetchErrorPropagates(t *testing.T) {
	wantErr := errors.New("upstream down")
	ts := newTokenSource(func(ctx context.Context) (string, time.Duration, error) {
		return "", 0, wantErr
	})

	if _, err := ts.get(context.Background()); !errors.Is(err, wantErr) {
		t.Fatalf("expected fetch error, got %v", err)
	}
}

func TestTokenSource_ConcurrentCallersShareOneFetch(t *testing.T) {
	var mu sync.Mutex
	fetches := 0
	ts := newTokenSource(func(ctx context.Context) (string, time.Duration, error) {
		mu.Lock()
		fetches++
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		return "tok", time.Hour, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ts.get(context.Background()); err != nil {
				t.Errorf("get: %v", err)
			}
		}()
	}
	wg.Wait()

	if fetches != 1 {
		t.Errorf("expected a single collapsed fetch, got %d", fetches)
	}
}

type scriptedTracker struct {
	fail map[string]bool
}

func (s *scriptedTracker) Track(ctx context.Context, trackingNumber string) (*domain.TrackingResponse, error) {
	if s.fail[trackingNumber] {
		return nil, errors.New("boom")
	}
	return &domain.TrackingResponse{TrackingNumber: trackingNumber}, nil
}

func TestTrackBatch_DropsFailuresKeepsOrder(t *testing.T) {
	tracker := &scriptedTracker{fail: map[string]bool{"B": true}}

	results, err := trackBatch(context.Background(), tracker, zerolog.Nop(), []string{"A", "B", "C", "D"})
	if err != nil {
		t.Fatalf("trackBatch: %v", err)
	}

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, want := range []string{"A", "C", "D"} {
		if results[i].TrackingNumber != want {
			t.Errorf("result %d = %s, want %s", i, results[i].TrackingNumber, want)
		}
	}
}

func TestIsBreakerFailure(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transport error", &domain.CarrierAPIError{CarrierCode: "UPS", Err: errors.New("dial tcp")}, true},
		{"5xx", &domain.CarrierAPIError{CarrierCode: "UPS", StatusCode: 502}, true},
		{"4xx", &domain.CarrierAPIError{CarrierCode: "UPS", StatusCode: 403}, false},
		{"rate limited", &domain.RateLimitError{CarrierCode: "UPS"}, false},
		{"not found", fmt.Errorf("ups: %w", domain.ErrTrackingNotFound), false},
		{"validation", &domain.ValidationError{Message: "bad"}, true},
	}
	for _, tc := range cases {
		if got := isBreakerFailure(tc.err); got != tc.want {
			t.Errorf("%s: isBreakerFailure = %v, want %v", tc.name, got, tc.want)
		}
	}
}
