package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeasonality(t *testing.T) {
	tests := []struct {
		in   string
		want Seasonality
		str  string
	}{
		{"False", Off, "False"},
		{"True", On, "True"},
		{"auto", Auto, "auto"},
		{"3", FourierTerms(3), "3"},
		{"20", FourierTerms(20), "20"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := ParseSeasonality(tt.in)
			assert.True(t, got.Equal(tt.want), "got %+v", got)
			assert.Equal(t, tt.str, got.String())
		})
	}
}

func TestParseSeasonalityNeverFails(t *testing.T) {
	for _, raw := range []string{"", "yes", "false", "AUTO", "3.5"} {
		got := ParseSeasonality(raw)
		assert.Equal(t, SeasonalityInvalid, got.Kind, raw)
		assert.Equal(t, raw, got.String(), "raw text is kept for the training error")
	}
}

func TestSeasonalityJSON(t *testing.T) {
	var req ModelConfigRequest
	body := `{"yearly_seasonality": false, "weekly_seasonality": "auto", "daily_seasonality": 7}`
	require.NoError(t, json.Unmarshal([]byte(body), &req))

	require.NotNil(t, req.YearlySeasonality)
	assert.Equal(t, SeasonalityOff, req.YearlySeasonality.Kind)
	assert.Equal(t, SeasonalityAuto, req.WeeklySeasonality.Kind)
	assert.True(t, req.DailySeasonality.Equal(FourierTerms(7)))

	out, err := json.Marshal(req.ToConfig("m"))
	require.NoError(t, err)
	assert.Contains(t, string(out), `"yearly_seasonality":false`)
	assert.Contains(t, string(out), `"weekly_seasonality":"auto"`)
	assert.Contains(t, string(out), `"daily_seasonality":7`)
}

func TestSeasonalityJSONStringForms(t *testing.T) {
	var s Seasonality
	require.NoError(t, json.Unmarshal([]byte(`"True"`), &s))
	assert.Equal(t, SeasonalityOn, s.Kind)
	require.NoError(t, json.Unmarshal([]byte(`"12"`), &s))
	assert.True(t, s.Equal(FourierTerms(12)))
}

func TestSeasonalityJSONRejectsGarbage(t *testing.T) {
	for _, body := range []string{`"sometimes"`, `0`, `-2`, `1.5`, `[1]`, `"0"`, `101`, `"101"`, `4611686018427387904`, `1e300`} {
		var s Seasonality
		assert.Error(t, json.Unmarshal([]byte(body), &s), body)
	}
}

func TestSeasonalityModeIsValid(t *testing.T) {
	assert.True(t, SeasonalityModeAdditive.IsValid())
	assert.True(t, SeasonalityModeMultiplicative.IsValid())
	assert.False(t, SeasonalityMode("Additive").IsValid())
	assert.False(t, SeasonalityMode("").IsValid())
}
