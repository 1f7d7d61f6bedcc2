// Package params maps stored model configuration onto the parameters handed to training.
package params

import "github.com/seasonal/forecastd/pkg/models"

// Resolve returns the fully defaulted parameters for a stored configuration.
// A nil config yields the defaults. It never fails: unparseable seasonality values and
// unknown modes are carried through and rejected by the forecaster.
func Resolve(cfg *models.ModelConfig) models.ResolvedParams {
	if cfg == nil {
		cfg = models.DefaultModelConfig("")
	}

	p := models.ResolvedParams{
		YearlySeasonality:             cfg.YearlySeasonality,
		WeeklySeasonality:             cfg.WeeklySeasonality,
		DailySeasonality:              cfg.DailySeasonality,
		SeasonalityMode:               cfg.SeasonalityMode,
		CustomSeasonalityPeriod:       cfg.CustomSeasonalityPeriod,
		CustomSeasonalityFourierOrder: cfg.CustomSeasonalityFourierOrder,
	}
	p.HasCustomSeasonality = HasCustomSeasonality(p.CustomSeasonalityPeriod, p.CustomSeasonalityFourierOrder)
	return p
}

// ResolveStored resolves the raw string columns of a configuration row
func ResolveStored(yearly, weekly, daily, mode string, period float64, order int) models.ResolvedParams {
	return Resolve(&models.ModelConfig{
		YearlySeasonality:             models.ParseSeasonality(yearly),
		WeeklySeasonality:             models.ParseSeasonality(weekly),
		DailySeasonality:              models.ParseSeasonality(daily),
		SeasonalityMode:               models.SeasonalityMode(mode),
		CustomSeasonalityPeriod:       period,
		CustomSeasonalityFourierOrder: order,
	})
}

// HasCustomSeasonality reports whether a custom seasonality should be fitted
func HasCustomSeasonality(period float64, order int) bool {
	return period > 0 && order > 0
}
