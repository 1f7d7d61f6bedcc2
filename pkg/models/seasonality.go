package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// SeasonalityKind tags the variant held by a Seasonality
type SeasonalityKind int

const (
	SeasonalityOff SeasonalityKind = iota
	SeasonalityOn
	SeasonalityAuto
	SeasonalityFourier // explicit Fourier term count
	SeasonalityInvalid // unparseable stored value, rejected at fit time
)

// Seasonality is one of Off, On, Auto or FourierTerms(n).
// Stored values are strings ("False", "True", "auto", "<n>").
type Seasonality struct {
	Kind  SeasonalityKind
	Terms int
	Raw   string
}

var (
	Off  = Seasonality{Kind: SeasonalityOff}
	On   = Seasonality{Kind: SeasonalityOn}
	Auto = Seasonality{Kind: SeasonalityAuto}
)

// FourierTerms returns a seasonality with an explicit number of Fourier terms
func FourierTerms(n int) Seasonality {
	return Seasonality{Kind: SeasonalityFourier, Terms: n}
}

// ParseSeasonality converts a stored string into the tagged variant. It never fails:
// values that are not a recognised keyword or integer become SeasonalityInvalid and
// keep their raw text so the training step can report them.
func ParseSeasonality(s string) Seasonality {
	switch s {
	case "False":
		return Off
	case "True":
		return On
	case "auto":
		return Auto
	}
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return Seasonality{Kind: SeasonalityFourier, Terms: n, Raw: s}
	}
	return Seasonality{Kind: SeasonalityInvalid, Raw: s}
}

// String returns the storage form
func (s Seasonality) String() string {
	switch s.Kind {
	case SeasonalityOff:
		return "False"
	case SeasonalityOn:
		return "True"
	case SeasonalityAuto:
		return "auto"
	case SeasonalityFourier:
		return strconv.Itoa(s.Terms)
	default:
		return s.Raw
	}
}

// Equal compares two seasonalities by meaning, ignoring raw text of valid values
func (s Seasonality) Equal(o Seasonality) bool {
	if s.Kind != o.Kind {
		return false
	}
	switch s.Kind {
	case SeasonalityFourier:
		return s.Terms == o.Terms
	case SeasonalityInvalid:
		return s.Raw == o.Raw
	default:
		return true
	}
}

// MarshalJSON encodes Off/On as booleans, Auto as "auto" and term counts as numbers
func (s Seasonality) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case SeasonalityOff:
		return []byte("false"), nil
	case SeasonalityOn:
		return []byte("true"), nil
	case SeasonalityAuto:
		return []byte(`"auto"`), nil
	case SeasonalityFourier:
		return []byte(strconv.Itoa(s.Terms)), nil
	default:
		return json.Marshal(s.Raw)
	}
}

// UnmarshalJSON accepts booleans, numbers and the string forms
func (s *Seasonality) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case bool:
		if t {
			*s = On
		} else {
			*s = Off
		}
	case float64:
		if t <= 0 || t > MaxFourierOrder || t != math.Trunc(t) {
			return fmt.Errorf("seasonality term count must be an integer between 1 and %d, got %v", MaxFourierOrder, t)
		}
		*s = FourierTerms(int(t))
	case string:
		switch strings.ToLower(t) {
		case "false":
			*s = Off
		case "true":
			*s = On
		case "auto":
			*s = Auto
		default:
			parsed := ParseSeasonality(t)
			if parsed.Kind != SeasonalityFourier || parsed.Terms <= 0 || parsed.Terms > MaxFourierOrder {
				return fmt.Errorf("invalid seasonality %q: expected true, false, auto or a term count between 1 and %d", t, MaxFourierOrder)
			}
			*s = FourierTerms(parsed.Terms)
		}
	default:
		return fmt.Errorf("invalid seasonality value %s", string(data))
	}
	return nil
}

// SeasonalityMode selects how seasonal components combine with the trend
type SeasonalityMode string

const (
	SeasonalityModeAdditive       SeasonalityMode = "additive"
	SeasonalityModeMultiplicative SeasonalityMode = "multiplicative"
)

// IsValid reports whether the mode is one the forecaster understands
func (m SeasonalityMode) IsValid() bool {
	return m == SeasonalityModeAdditive || m == SeasonalityModeMultiplicative
}
