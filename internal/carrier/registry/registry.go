// Package registry constructs and caches one carrier adapter per configured
// carrier, and resolves carriers by code or by tracking number format.
package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/Newton-b/shipsmart-sub002/internal/carrier"
	"github.com/Newton-b/shipsmart-sub002/internal/core/domain"
	"github.com/Newton-b/shipsmart-sub002/internal/core/ports"
)

// defaultCarriers is served by AvailableCarriers when the config store is
// unreachable, so callers are never fully blind to carrier identity.
var defaultCarriers = []domain.CarrierSummary{
	{Code: "UPS", Name: "UPS", Type: domain.CarrierTypeParcel},
	{Code: "FEDEX", Name: "FedEx", Type: domain.CarrierTypeParcel},
	{Code: "MAERSK", Name: "Maersk", Type: domain.CarrierTypeOcean},
}

// Registry holds the live adapter per carrier code. Safe for concurrent use;
// RefreshAdapter swaps a single entry without disturbing the others.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]ports.CarrierAdapter
	order    []string // registration order, drives detection priority

	configs  ports.CarrierConfigRepository
	validate *validator.Validate
	log      zerolog.Logger
}

// NewRegistry loads all active carrier configs and constructs one adapter
// per carrier. A carrier whose construction fails is logged and skipped; it
// never aborts startup.
func NewRegistry(ctx context.Context, configs ports.CarrierConfigRepository, log zerolog.Logger) (*Registry, error) {
	r := &Registry{
		adapters: make(map[string]ports.CarrierAdapter),
		configs:  configs,
		validate: validator.New(),
		log:      log,
	}

	active, err := configs.FindActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: load carrier configs: %w", err)
	}

	for _, cfg := range active {
		code := strings.ToUpper(cfg.CarrierCode)
		adapter, err := r.buildAdapter(cfg)
		if err != nil {
			log.Error().Err(err).Str("carrier", code).Msg("carrier adapter construction failed, skipping")
			continue
		}
		r.adapters[code] = adapter
		r.order = append(r.order, code)
		log.Info().Str("carrier", code).Str("type", cfg.CarrierType).Bool("live", cfg.HasCredentials()).Msg("carrier adapter registered")
	}

	return r, nil
}

// GetAdapter returns the adapter for the carrier code, case-insensitive.
func (r *Registry) GetAdapter(carrierCode string) (ports.CarrierAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, ok := r.adapters[strings.ToUpper(strings.TrimSpace(carrierCode))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrCarrierNotFound, carrierCode)
	}
	return adapter, nil
}

// DetectCarrier infers the carrier from the tracking number format. Carriers
// are tested in registration order and the first match wins; when two
// carriers' patterns overlap, the earlier-registered carrier is chosen.
func (r *Registry) DetectCarrier(trackingNumber string) (string, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(trackingNumber))
	if normalized == "" {
		return "", false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, code := range r.order {
		if r.adapters[code].ValidateTrackingNumber(normalized) {
			return code, true
		}
	}
	return "", false
}

// RefreshAdapter drops the cached adapter and rebuilds it from the current
// stored config. Used after credential rotation.
func (r *Registry) RefreshAdapter(ctx context.Context, carrierCode string) error {
	code := strings.ToUpper(strings.TrimSpace(carrierCode))

	cfg, err := r.configs.FindByCode(ctx, code)
	if err != nil {
		return fmt.Errorf("registry: refresh %s: %w", code, err)
	}
	adapter, err := r.buildAdapter(cfg)
	if err != nil {
		return fmt.Errorf("registry: refresh %s: %w", code, err)
	}

	r.mu.Lock()
	if _, existed := r.adapters[code]; !existed {
		r.order = append(r.order, code)
	}
	r.adapters[code] = adapter
	r.mu.Unlock()

	r.log.Info().Str("carrier", code).Msg("carrier adapter refreshed")
	return nil
}

// HealthCheckAll probes every adapter concurrently. One carrier's probe
// failure never affects another's result.
func (r *Registry) HealthCheckAll(ctx context.Context) map[string]bool {
	r.mu.RLock()
	snapshot := make(map[string]ports.CarrierAdapter, len(r.adapters))
	for code, a := range r.adapters {
		snapshot[code] = a
	}
	r.mu.RUnlock()

	results := make(map[string]bool, len(snapshot))
	var resultsMu sync.Mutex
	var wg sync.WaitGroup
	for code, adapter := range snapshot {
		wg.Add(1)
		go func(code string, adapter ports.CarrierAdapter) {
			defer wg.Done()
			healthy := adapter.HealthCheck(ctx)
			resultsMu.Lock()
			results[code] = healthy
			resultsMu.Unlock()
		}(code, adapter)
	}
	wg.Wait()
	return results
}

// AvailableCarriers lists active carriers from the config store, falling
// back to the static default list when the store is unreachable.
func (r *Registry) AvailableCarriers(ctx context.Context) []domain.CarrierSummary {
	active, err := r.configs.FindActive(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("carrier config store unreachable, serving static carrier list")
		return defaultCarriers
	}

	carriers := make([]domain.CarrierSummary, 0, len(active))
	for _, cfg := range active {
		carriers = append(carriers, domain.CarrierSummary{
			Code: strings.ToUpper(cfg.CarrierCode),
			Name: cfg.CarrierName,
			Type: cfg.CarrierType,
		})
	}
	return carriers
}

// buildAdapter validates the config and constructs the adapter implementation
// for its carrier code.
func (r *Registry) buildAdapter(cfg *domain.CarrierConfig) (ports.CarrierAdapter, error) {
	normalized := *cfg
	normalized.CarrierCode = strings.ToUpper(strings.TrimSpace(cfg.CarrierCode))

	if err := r.validate.Struct(&normalized); err != nil {
		return nil, fmt.Errorf("invalid carrier config: %w", err)
	}

	switch normalized.CarrierCode {
	case "UPS":
		return carrier.NewUPSAdapter(&normalized, r.log)
	case "FEDEX":
		return carrier.NewFedExAdapter(&normalized, r.log)
	case "MAERSK":
		return carrier.NewMaerskAdapter(&normalized, r.log)
	default:
		return nil, fmt.Errorf("unsupported carrier code %q", normalized.CarrierCode)
	}
}
