// Package httpclient builds the http.Client instances carrier adapters use
// for their outbound calls, with request/response logging on every round trip.
package httpclient

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// LoggingRoundTripper logs every outbound request with method, URL, status,
// and duration. Failures are logged at error level with the transport error.
type LoggingRoundTripper struct {
	// Proxied is the underlying RoundTripper that executes the request.
	Proxied http.RoundTripper
	Log     zerolog.Logger
}

// RoundTrip executes the request and logs the outcome.
func (lrt *LoggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	resp, err := lrt.Proxied.RoundTrip(req)
	duration := time.Since(start)

	if err != nil {
		lrt.Log.Error().
			Str("method", req.Method).
			Str("url", req.URL.String()).
			Dur("duration", duration).
			Err(err).
			Msg("carrier request failed")
		return nil, err
	}

	lrt.Log.Debug().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Int("status_code", resp.StatusCode).
		Dur("duration", duration).
		Msg("carrier request completed")

	return resp, nil
}

// New returns an http.Client with the logging transport and the given
// per-call timeout. A zero timeout leaves the client unbounded; carrier
// configs are expected to always provide one.
func New(timeout time.Duration, log zerolog.Logger) *http.Client {
	return &http.Client{
		Transport: &LoggingRoundTripper{
			Proxied: http.DefaultTransport,
			Log:     log,
		},
		Timeout: timeout,
	}
}
