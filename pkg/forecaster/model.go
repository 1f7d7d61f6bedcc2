package forecaster

import (
	"math"
	"time"

	"github.com/seasonal/forecastd/pkg/models"
)

// Fitting constants
const (
	MaxChangepoints       = 25
	ChangepointRange      = 0.8
	ChangepointPriorScale = 0.01
	SeasonalityPriorScale = 10.0
	IntervalWidth         = 0.8

	// ChangepointThreshold is the minimum |delta| for a changepoint to be reported
	ChangepointThreshold = 0.01

	// two-sided z-score for IntervalWidth
	intervalZ = 1.2815515655446004

	// penalty on intercept and base slope, only there to keep the system positive definite
	basePenalty = 1e-6
)

// Point is one observation of the series
type Point struct {
	T time.Time `json:"ds"`
	Y float64   `json:"y"`
}

// Seasonality is a fitted periodic component
type Seasonality struct {
	Name   string    `json:"name"`
	Period float64   `json:"period_days"`
	Order  int       `json:"fourier_order"`
	Coef   []float64 `json:"coefficients"`
}

// Model is a trained forecaster. Trend and seasonal coefficients are stored in scaled
// units: time is mapped to [0, 1] over the history, values are divided by YScale.
type Model struct {
	Params        models.ResolvedParams  `json:"params"`
	Mode          models.SeasonalityMode `json:"mode"`
	Start         time.Time              `json:"start"`
	End           time.Time              `json:"end"`
	YScale        float64                `json:"y_scale"`
	K             float64                `json:"k"`
	M             float64                `json:"m"`
	Changepoints  []float64              `json:"changepoints"`
	Deltas        []float64              `json:"deltas"`
	Seasonalities []Seasonality          `json:"seasonalities"`
	Sigma         float64                `json:"sigma"`
	History       []Point                `json:"history"`
}

// scaleTime maps t onto the model's [0, 1] history axis
func (m *Model) scaleTime(t time.Time) float64 {
	span := m.End.Sub(m.Start).Seconds()
	return t.Sub(m.Start).Seconds() / span
}

// unscaleTime is the inverse of scaleTime
func (m *Model) unscaleTime(s float64) time.Time {
	span := m.End.Sub(m.Start).Seconds()
	return m.Start.Add(time.Duration(s * span * float64(time.Second)))
}

// trendAt returns the scaled trend at scaled time t
func (m *Model) trendAt(t float64) float64 {
	g := m.K*t + m.M
	for j, s := range m.Changepoints {
		if t >= s {
			g += m.Deltas[j] * (t - s)
		}
	}
	return g
}

// ComponentNames returns the names of the fitted seasonal components in fit order
func (m *Model) ComponentNames() []string {
	names := make([]string, len(m.Seasonalities))
	for i, s := range m.Seasonalities {
		names[i] = s.Name
	}
	return names
}

// ChangepointTimes returns the times of trend changepoints whose rate change is at least threshold
func (m *Model) ChangepointTimes(threshold float64) []time.Time {
	var out []time.Time
	for j, s := range m.Changepoints {
		if math.Abs(m.Deltas[j]) >= threshold {
			out = append(out, m.unscaleTime(s))
		}
	}
	return out
}

// HistoryStart returns the first timestamp the model was trained on
func (m *Model) HistoryStart() time.Time {
	return m.Start
}

// epochDays is the absolute time axis used by the seasonal features
func epochDays(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(24*time.Hour)
}

// fourier fills dst with sin/cos pairs of orders 1..order for period (days) at day t
func fourier(dst []float64, t, period float64, order int) {
	for k := 1; k <= order; k++ {
		x := 2 * math.Pi * float64(k) * t / period
		dst[2*(k-1)] = math.Sin(x)
		dst[2*(k-1)+1] = math.Cos(x)
	}
}

// value evaluates the seasonality at day t in scaled units
func (s *Seasonality) value(t float64) float64 {
	v := 0.0
	for k := 1; k <= s.Order; k++ {
		x := 2 * math.Pi * float64(k) * t / s.Period
		v += s.Coef[2*(k-1)]*math.Sin(x) + s.Coef[2*(k-1)+1]*math.Cos(x)
	}
	return v
}
