package domain

import "time"

// Carrier type labels used in CarrierConfig and CarrierSummary.
const (
	CarrierTypeParcel = "parcel"
	CarrierTypeOcean  = "ocean"
)

// CarrierConfig holds the credentials and tuning for one carrier integration.
// Rows are administered externally; the registry only reads them.
type CarrierConfig struct {
	ID                 string        `json:"id" bson:"_id,omitempty"`
	CarrierCode        string        `json:"carrier_code" bson:"carrier_code" validate:"required,alphanum,uppercase"`
	CarrierName        string        `json:"carrier_name" bson:"carrier_name" validate:"required"`
	CarrierType        string        `json:"carrier_type" bson:"carrier_type" validate:"required,oneof=parcel ocean"`
	APIKey             string        `json:"-" bson:"api_key"`
	APISecret          string        `json:"-" bson:"api_secret"`
	BaseURL            string        `json:"base_url" bson:"base_url" validate:"required,url"`
	Timeout            time.Duration `json:"timeout" bson:"timeout" validate:"min=0"`
	MaxRetries         int           `json:"max_retries" bson:"max_retries" validate:"min=0,max=10"`
	RateLimitPerMinute int           `json:"rate_limit_per_minute" bson:"rate_limit_per_minute" validate:"min=0"`
	TrackingPatterns   []string      `json:"tracking_patterns" bson:"tracking_patterns"`
	Active             bool          `json:"active" bson:"active"`
	ExpiresAt          *time.Time    `json:"expires_at,omitempty" bson:"expires_at,omitempty"`
}

// HasCredentials reports whether the config carries usable API credentials.
// Adapters without credentials serve deterministic mock responses instead of
// calling the live carrier API.
func (c *CarrierConfig) HasCredentials() bool {
	return c.APIKey != ""
}
