package forecaster

import (
	"github.com/pkg/errors"

	"github.com/seasonal/forecastd/pkg/models"
)

// built-in seasonal periods in days with their default Fourier orders
var builtinSeasonalities = []struct {
	name         string
	period       float64
	defaultOrder int
}{
	{"yearly", 365.25, 10},
	{"weekly", 7, 3},
	{"daily", 1, 4},
}

const (
	sixHourPeriod = 0.25
	sixHourOrder  = 10
)

type seasonalitySpec struct {
	name   string
	period float64
	order  int
}

// seasonalitySpecs decides which seasonal components to fit for the given parameters
// and history span
func seasonalitySpecs(p models.ResolvedParams, spanDays float64) ([]seasonalitySpec, error) {
	settings := []models.Seasonality{p.YearlySeasonality, p.WeeklySeasonality, p.DailySeasonality}

	var specs []seasonalitySpec
	for i, b := range builtinSeasonalities {
		order, err := resolveOrder(settings[i], b.defaultOrder, b.period, spanDays)
		if err != nil {
			return nil, errors.Wrapf(err, "%s_seasonality", b.name)
		}
		if order > 0 {
			specs = append(specs, seasonalitySpec{name: b.name, period: b.period, order: order})
		}
	}

	specs = append(specs, seasonalitySpec{name: "six", period: sixHourPeriod, order: sixHourOrder})

	if p.HasCustomSeasonality {
		if p.CustomSeasonalityFourierOrder > models.MaxFourierOrder {
			return nil, errors.Errorf("custom_seasonality_fourier_order %d exceeds the limit of %d",
				p.CustomSeasonalityFourierOrder, models.MaxFourierOrder)
		}
		specs = append(specs, seasonalitySpec{
			name:   "custom",
			period: p.CustomSeasonalityPeriod,
			order:  p.CustomSeasonalityFourierOrder,
		})
	}
	return specs, nil
}

// resolveOrder returns the Fourier order for one setting, or 0 when it is disabled
func resolveOrder(s models.Seasonality, defaultOrder int, period, spanDays float64) (int, error) {
	switch s.Kind {
	case models.SeasonalityOff:
		return 0, nil
	case models.SeasonalityOn:
		return defaultOrder, nil
	case models.SeasonalityAuto:
		if spanDays >= 2*period {
			return defaultOrder, nil
		}
		return 0, nil
	case models.SeasonalityFourier:
		if s.Terms <= 0 {
			return 0, errors.Errorf("Fourier term count must be positive, got %d", s.Terms)
		}
		if s.Terms > models.MaxFourierOrder {
			return 0, errors.Errorf("Fourier term count %d exceeds the limit of %d", s.Terms, models.MaxFourierOrder)
		}
		return s.Terms, nil
	default:
		return 0, errors.Errorf("invalid value %q: expected True, False, auto or a term count", s.Raw)
	}
}
