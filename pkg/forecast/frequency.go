package forecast

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/seasonal/forecastd/pkg/models"
)

// unit aliases accepted in frequency strings, pandas style
var frequencyUnits = map[string]time.Duration{
	"s":   time.Second,
	"S":   time.Second,
	"min": time.Minute,
	"T":   time.Minute,
	"h":   time.Hour,
	"H":   time.Hour,
	"D":   24 * time.Hour,
	"d":   24 * time.Hour,
	"W":   7 * 24 * time.Hour,
}

// ParseFrequency converts a frequency such as "h", "15min", "2H", "D" or a Go duration
// ("90s") into a positive step. Calendar-relative frequencies (months, years) are not
// supported since their step is not constant.
func ParseFrequency(freq string) (time.Duration, error) {
	freq = strings.TrimSpace(freq)
	if freq == "" {
		freq = models.DefaultForecastFreq
	}

	i := 0
	for i < len(freq) && freq[i] >= '0' && freq[i] <= '9' {
		i++
	}
	mult := 1
	if i > 0 {
		n, err := strconv.Atoi(freq[:i])
		if err != nil || n <= 0 {
			return 0, models.InvalidRequest(fmt.Sprintf("invalid frequency %q", freq))
		}
		mult = n
	}

	if unit, ok := frequencyUnits[freq[i:]]; ok {
		if int64(mult) > math.MaxInt64/int64(unit) {
			return 0, models.InvalidRequest(fmt.Sprintf("invalid frequency %q: step is too large", freq))
		}
		return time.Duration(mult) * unit, nil
	}

	d, err := time.ParseDuration(freq)
	if err != nil || d <= 0 {
		return 0, models.InvalidRequest(fmt.Sprintf("invalid frequency %q: use h, min, s, D, W with an optional count, or a duration like 30m", freq))
	}
	return d, nil
}

// maxHorizonYear is the last year a projected timestamp may fall in; later years do not
// fit the YYYY-MM-DD wire format
const maxHorizonYear = 9999

// FutureTimestamps returns n timestamps spaced step apart, the first at start. It
// fails when the horizon cannot be represented, so the result is always strictly
// increasing.
func FutureTimestamps(start time.Time, n int, step time.Duration) ([]time.Time, error) {
	if step <= 0 {
		return nil, models.InvalidRequest(fmt.Sprintf("frequency step must be positive, got %s", step))
	}
	if n <= 0 {
		return []time.Time{}, nil
	}
	if int64(n-1) > math.MaxInt64/int64(step) {
		return nil, models.InvalidRequest(fmt.Sprintf("%d periods of %s exceed the representable horizon", n, step))
	}
	if last := start.Add(time.Duration(n-1) * step); last.Year() > maxHorizonYear {
		return nil, models.InvalidRequest(fmt.Sprintf("forecast horizon ends after year %d", maxHorizonYear))
	}

	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.Add(time.Duration(i) * step)
	}
	return out, nil
}
