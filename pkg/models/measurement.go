package models

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Measurement is one timestamped scalar in a model's history
type Measurement struct {
	ModelName string    `json:"model_name"`
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Validate rejects rows that cannot be stored or trained on
func (m *Measurement) Validate() error {
	if m.ModelName == "" {
		return fmt.Errorf("model name is required")
	}
	if m.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	if math.IsNaN(m.Value) || math.IsInf(m.Value, 0) {
		return fmt.Errorf("value must be finite, got %v", m.Value)
	}
	return nil
}

// SortByTimestamp orders measurements by time, keeping insertion order for ties
func SortByTimestamp(ms []Measurement) {
	sort.SliceStable(ms, func(i, j int) bool {
		return ms[i].Timestamp.Before(ms[j].Timestamp)
	})
}

// MeasurementRequest is the body of a single measurement insert
type MeasurementRequest struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// Validate validates and converts the request
func (r *MeasurementRequest) Validate() (time.Time, error) {
	if r.Date == "" {
		return time.Time{}, InvalidRequest("date is required")
	}
	ts, err := ParseTimestamp(r.Date)
	if err != nil {
		return time.Time{}, InvalidRequest(err.Error())
	}
	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		return time.Time{}, InvalidRequest("value must be finite")
	}
	return ts, nil
}

// TimestampLayout is the wire format for timestamps in requests and responses
const TimestampLayout = "2006-01-02 15:04:05"

var timestampLayouts = []string{
	TimestampLayout,
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses the accepted timestamp forms. Zone-less values are UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q, expected YYYY-MM-DD HH:MM:SS", s)
}

// SeedRequest holds the parameters of the synthetic data generator
type SeedRequest struct {
	Days           int     `json:"days"`
	TrendFactor    float64 `json:"days_trend_factor"`
	OffHoursFactor float64 `json:"off_hours_factor"`
	Jitter         float64 `json:"jitter"`
}

// DefaultSeedRequest mirrors the defaults of the test-data endpoint
func DefaultSeedRequest() SeedRequest {
	return SeedRequest{Days: 14, TrendFactor: 1.1, OffHoursFactor: 0, Jitter: 0.05}
}

// Validate validates the seed request
func (r *SeedRequest) Validate() error {
	if r.Days < 2 || r.Days > 3660 {
		return InvalidRequest("days must be between 2 and 3660")
	}
	if r.Jitter < 0 || r.Jitter > 1 {
		return InvalidRequest("jitter must be between 0 and 1")
	}
	return nil
}
