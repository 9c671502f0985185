package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "https://opendata.fmi.fi/wfs", cfg.FMIBaseURL)
	assert.Equal(t, "https://data.fmi.fi", cfg.FMITimeseriesURL)
	assert.Equal(t, 11, cfg.ForecastDays)
	assert.Equal(t, 12, cfg.HourlyHours)
	assert.Equal(t, 10*time.Minute, cfg.FetchInterval)
	assert.Equal(t, 10*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 3*time.Hour, cfg.DailyFreshness)
	assert.Equal(t, 90*time.Minute, cfg.HourlyFreshness)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Empty(t, cfg.FMIAPIKey)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("FORECAST_DAYS", "7")
	t.Setenv("FETCH_INTERVAL", "5m")
	t.Setenv("FMI_API_KEY", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 7, cfg.ForecastDays)
	assert.Equal(t, 5*time.Minute, cfg.FetchInterval)
	assert.Equal(t, "secret", cfg.FMIAPIKey)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("FETCH_INTERVAL", "often")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadIgnoresBadInt(t *testing.T) {
	t.Setenv("FORECAST_DAYS", "eleven")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 11, cfg.ForecastDays)
}
