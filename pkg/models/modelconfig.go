package models

import (
	"fmt"
	"regexp"
	"time"
)

// Default hyperparameters applied when a model has no stored configuration
const (
	DefaultCustomSeasonalityPeriod       = 0.04167 // days, about one hour
	DefaultCustomSeasonalityFourierOrder = 4
	DefaultSeasonalityMode               = SeasonalityModeAdditive

	// MaxFourierOrder bounds every Fourier term count a model may be configured with
	MaxFourierOrder = 100
)

var modelNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateModelName checks that a name is usable as a registry key and artifact file name
func ValidateModelName(name string) error {
	if !modelNamePattern.MatchString(name) {
		return InvalidRequest(fmt.Sprintf("invalid model name %q: use letters, digits, '.', '_' or '-' (max 128, not starting with a symbol)", name))
	}
	return nil
}

// ModelConfig is the stored hyperparameter record of a model
type ModelConfig struct {
	Name                          string          `json:"name"`
	YearlySeasonality             Seasonality     `json:"yearly_seasonality"`
	WeeklySeasonality             Seasonality     `json:"weekly_seasonality"`
	DailySeasonality              Seasonality     `json:"daily_seasonality"`
	CustomSeasonalityPeriod       float64         `json:"custom_seasonality_period"`
	CustomSeasonalityFourierOrder int             `json:"custom_seasonality_fourier_order"`
	SeasonalityMode               SeasonalityMode `json:"seasonality_mode"`
	UpdatedAt                     time.Time       `json:"updated_at"`
}

// ModelConfigRequest is the body of a configuration upsert. Omitted fields take the
// defaults, so every upsert writes a complete row.
type ModelConfigRequest struct {
	YearlySeasonality             *Seasonality     `json:"yearly_seasonality,omitempty"`
	WeeklySeasonality             *Seasonality     `json:"weekly_seasonality,omitempty"`
	DailySeasonality              *Seasonality     `json:"daily_seasonality,omitempty"`
	CustomSeasonalityPeriod       *float64         `json:"custom_seasonality_period,omitempty"`
	CustomSeasonalityFourierOrder *int             `json:"custom_seasonality_fourier_order,omitempty"`
	SeasonalityMode               *SeasonalityMode `json:"seasonality_mode,omitempty"`
}

// Validate validates the upsert request
func (r *ModelConfigRequest) Validate() error {
	if r.CustomSeasonalityPeriod != nil && *r.CustomSeasonalityPeriod < 0 {
		return InvalidRequest("custom_seasonality_period must not be negative")
	}
	if r.CustomSeasonalityFourierOrder != nil {
		if o := *r.CustomSeasonalityFourierOrder; o < 0 || o > MaxFourierOrder {
			return InvalidRequest(fmt.Sprintf("custom_seasonality_fourier_order must be between 0 and %d", MaxFourierOrder))
		}
	}
	for _, f := range []struct {
		name string
		s    *Seasonality
	}{
		{"yearly_seasonality", r.YearlySeasonality},
		{"weekly_seasonality", r.WeeklySeasonality},
		{"daily_seasonality", r.DailySeasonality},
	} {
		if f.s != nil && f.s.Kind == SeasonalityFourier && (f.s.Terms <= 0 || f.s.Terms > MaxFourierOrder) {
			return InvalidRequest(fmt.Sprintf("%s term count must be between 1 and %d", f.name, MaxFourierOrder))
		}
	}
	return nil
}

// ToConfig builds the full record for name, filling omitted fields with defaults
func (r *ModelConfigRequest) ToConfig(name string) *ModelConfig {
	cfg := DefaultModelConfig(name)
	if r.YearlySeasonality != nil {
		cfg.YearlySeasonality = *r.YearlySeasonality
	}
	if r.WeeklySeasonality != nil {
		cfg.WeeklySeasonality = *r.WeeklySeasonality
	}
	if r.DailySeasonality != nil {
		cfg.DailySeasonality = *r.DailySeasonality
	}
	if r.CustomSeasonalityPeriod != nil {
		cfg.CustomSeasonalityPeriod = *r.CustomSeasonalityPeriod
	}
	if r.CustomSeasonalityFourierOrder != nil {
		cfg.CustomSeasonalityFourierOrder = *r.CustomSeasonalityFourierOrder
	}
	if r.SeasonalityMode != nil {
		cfg.SeasonalityMode = *r.SeasonalityMode
	}
	return cfg
}

// DefaultModelConfig returns the configuration a model behaves as when none is stored
func DefaultModelConfig(name string) *ModelConfig {
	return &ModelConfig{
		Name:                          name,
		YearlySeasonality:             Off,
		WeeklySeasonality:             On,
		DailySeasonality:              On,
		CustomSeasonalityPeriod:       DefaultCustomSeasonalityPeriod,
		CustomSeasonalityFourierOrder: DefaultCustomSeasonalityFourierOrder,
		SeasonalityMode:               DefaultSeasonalityMode,
	}
}

// ResolvedParams is the fully defaulted parameter set handed to training
type ResolvedParams struct {
	YearlySeasonality             Seasonality     `json:"yearly_seasonality"`
	WeeklySeasonality             Seasonality     `json:"weekly_seasonality"`
	DailySeasonality              Seasonality     `json:"daily_seasonality"`
	SeasonalityMode               SeasonalityMode `json:"seasonality_mode"`
	HasCustomSeasonality          bool            `json:"has_custom_seasonality"`
	CustomSeasonalityPeriod       float64         `json:"custom_seasonality_period"`
	CustomSeasonalityFourierOrder int             `json:"custom_seasonality_fourier_order"`
}

// String renders the parameters for training log lines
func (p ResolvedParams) String() string {
	return fmt.Sprintf("yearly=%s weekly=%s daily=%s mode=%s custom=%t period=%g order=%d",
		p.YearlySeasonality, p.WeeklySeasonality, p.DailySeasonality, p.SeasonalityMode,
		p.HasCustomSeasonality, p.CustomSeasonalityPeriod, p.CustomSeasonalityFourierOrder)
}

// ModelInfo is returned by the model detail endpoint
type ModelInfo struct {
	Name       string         `json:"name"`
	Configured bool           `json:"configured"`
	Trained    bool           `json:"trained"`
	Config     *ModelConfig   `json:"config,omitempty"`
	Resolved   ResolvedParams `json:"resolved"`
}
