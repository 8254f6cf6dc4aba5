// Package carrier contains the per-carrier adapters that translate external
// tracking APIs into the shared tracking model. Each adapter owns its HTTP
// client, tracking-number patterns, status mapping table, and circuit breaker.
package carrier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/Newton-b/shipsmart-sub002/internal/api/metrics"
	"github.com/Newton-b/shipsmart-sub002/internal/carrier/breaker"
	"github.com/Newton-b/shipsmart-sub002/internal/core/domain"
)

// tokenExpiryMargin refreshes a token slightly before its real expiry so an
// in-flight call never rides a token that dies mid-request.
const tokenExpiryMargin = 30 * time.Second

// compilePatterns compiles the config's tracking-number patterns, falling
// back to the adapter's defaults when none are configured.
func compilePatterns(configured, defaults []string) ([]*regexp.Regexp, error) {
	raw := configured
	if len(raw) == 0 {
		raw = defaults
	}
	patterns := make([]*regexp.Regexp, 0, len(raw))
	for _, p := range raw {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("tracking pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}
	return patterns, nil
}

// matchAny reports whether the tracking number matches any compiled pattern.
func matchAny(patterns []*regexp.Regexp, trackingNumber string) bool {
	for _, re := range patterns {
		if re.MatchString(trackingNumber) {
			return true
		}
	}
	return false
}

// finalize sorts events newest first and derives the summary fields that
// must stay consistent with the event list.
func finalize(resp *domain.TrackingResponse) {
	sort.SliceStable(resp.Events, func(i, j int) bool {
		return resp.Events[i].Timestamp.After(resp.Events[j].Timestamp)
	})
	if len(resp.Events) > 0 {
		resp.CurrentStatus = resp.Events[0].Status
		resp.LastUpdated = resp.Events[0].Timestamp
	} else {
		if resp.CurrentStatus == "" {
			resp.CurrentStatus = domain.StatusPending
		}
		resp.LastUpdated = time.Now().UTC()
	}
	resp.IsDelivered = resp.CurrentStatus == domain.StatusDelivered
}

// newAdapterBreaker builds the breaker for one adapter, wiring transition
// observability into the logger and Prometheus.
func newAdapterBreaker(carrierCode string, log zerolog.Logger) *breaker.Breaker {
	return breaker.New(breaker.Config{
		OnStateChange: func(from, to breaker.State) {
			log.Warn().
				Str("carrier", carrierCode).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
			metrics.BreakerTransitionsTotal.WithLabelValues(carrierCode, to.String()).Inc()
		},
	})
}

// guardedDo runs call under the adapter's circuit breaker. An open breaker
// short-circuits into a 503-shaped CarrierAPIError without touching the
// network. The breaker counts transport errors and upstream 5xx as failures;
// not-found and rate-limit responses are upstream answers, not outages.
func guardedDo(b *breaker.Breaker, carrierCode, trackingNumber string, call func() error) error {
	if !b.Allow() {
		return &domain.CarrierAPIError{
			CarrierCode:    carrierCode,
			TrackingNumber: trackingNumber,
			StatusCode:     http.StatusServiceUnavailable,
			Err:            domain.ErrCircuitOpen,
		}
	}
	err := call()
	b.RecordResult(!isBreakerFailure(err))
	return err
}

// isBreakerFailure reports whether err should count against the breaker's
// error threshold.
func isBreakerFailure(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *domain.CarrierAPIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 0 || apiErr.StatusCode >= 500
	}
	var rlErr *domain.RateLimitError
	if errors.As(err, &rlErr) {
		return false
	}
	return !errors.Is(err, domain.ErrTrackingNotFound)
}

// callOutcome labels an adapter error for the call counter.
func callOutcome(err error) string {
	if err == nil {
		return "success"
	}
	var rl *domain.RateLimitError
	if errors.As(err, &rl) {
		return "rate_limited"
	}
	if errors.Is(err, domain.ErrCircuitOpen) {
		return "circuit_open"
	}
	return "error"
}

// retryAfter parses a Retry-After header in seconds; zero when absent.
func retryAfter(resp *http.Response) time.Duration {
	s := resp.Header.Get("Retry-After")
	if s == "" {
		return 0
	}
	secs, err := strconv.Atoi(s)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// validateInput applies the shared pre-flight checks every adapter performs
// before touching the network.
func validateInput(trackingNumber string, patterns []*regexp.Regexp) error {
	if trackingNumber == "" {
		return &domain.ValidationError{Message: "tracking number is required"}
	}
	if !matchAny(patterns, trackingNumber) {
		return &domain.ValidationError{Message: fmt.Sprintf("invalid tracking number format: %s", trackingNumber)}
	}
	return nil
}

// trackBatch fans out one Track call per number. A failing number is logged
// and dropped; result order follows the input order of the numbers that
// succeeded.
func trackBatch(ctx context.Context, a interface {
	Track(ctx context.Context, trackingNumber string) (*domain.TrackingResponse, error)
}, log zerolog.Logger, trackingNumbers []string) ([]*domain.TrackingResponse, error) {
	slots := make([]*domain.TrackingResponse, len(trackingNumbers))
	var wg sync.WaitGroup
	for i, num := range trackingNumbers {
		wg.Add(1)
		go func(i int, num string) {
			defer wg.Done()
			resp, err := a.Track(ctx, num)
			if err != nil {
				log.Warn().Err(err).Str("tracking_number", num).Msg("batch item failed, dropped from result")
				return
			}
			slots[i] = resp
		}(i, num)
	}
	wg.Wait()

	results := make([]*domain.TrackingResponse, 0, len(trackingNumbers))
	for _, r := range slots {
		if r != nil {
			results = append(results, r)
		}
	}
	return results, nil
}

// tokenSource caches a bearer token and refreshes it lazily when expired or
// absent. Concurrent refreshes collapse into a single upstream call via
// singleflight.
type tokenSource struct {
	mu        sync.RWMutex
	token     string
	expiresAt time.Time

	group singleflight.Group
	fetch func(ctx context.Context) (string, time.Duration, error)
	now   func() time.Time
}

func newTokenSource(fetch func(ctx context.Context) (string, time.Duration, error)) *tokenSource {
	return &tokenSource{fetch: fetch, now: time.Now}
}

// get returns a valid cached token, refreshing it first when needed.
func (t *tokenSource) get(ctx context.Context) (string, error) {
	t.mu.RLock()
	if t.token != "" && t.now().Add(tokenExpiryMargin).Before(t.expiresAt) {
		token := t.token
		t.mu.RUnlock()
		return token, nil
	}
	t.mu.RUnlock()

	v, err, _ := t.group.Do("token", func() (any, error) {
		t.mu.RLock()
		if t.token != "" && t.now().Add(tokenExpiryMargin).Before(t.expiresAt) {
			token := t.token
			t.mu.RUnlock()
			return token, nil
		}
		t.mu.RUnlock()

		token, ttl, err := t.fetch(ctx)
		if err != nil {
			return "", err
		}
		t.mu.Lock()
		t.token = token
		t.expiresAt = t.now().Add(ttl)
		t.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
