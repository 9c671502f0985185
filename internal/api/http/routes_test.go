package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pkorhonen/ilmaris/internal/store"
	"github.com/pkorhonen/ilmaris/internal/weather"
)

type stubFetcher struct {
	daily  []weather.DailyForecast
	hourly []weather.HourlyForecast
}

func (f *stubFetcher) FetchForecast(ctx context.Context, lat, lon float64) ([]weather.DailyForecast, error) {
	return f.daily, nil
}

func (f *stubFetcher) FetchHourlyForecast(ctx context.Context, lat, lon float64, limit int) ([]weather.HourlyForecast, error) {
	return f.hourly, nil
}

func (f *stubFetcher) FetchUVForecast(ctx context.Context, lat, lon float64) ([]weather.UVPoint, error) {
	return nil, nil
}

func fptr(v float64) *float64 { return &v }

func newTestApp(t *testing.T, memStore *store.MemoryStore, fetcher weather.Fetcher) *fiber.App {
	t.Helper()
	app := fiber.New()
	svc := weather.NewService(memStore, fetcher, weather.DefaultServiceConfig(), zap.NewNop().Sugar())
	RegisterRoutes(app, svc, "", zap.NewNop().Sugar())
	return app
}

func TestWeatherEndpointValidation(t *testing.T) {
	app := newTestApp(t, store.NewMemoryStore(0), &stubFetcher{})

	cases := []struct {
		name string
		url  string
	}{
		{"missing both", "/api/v1/weather"},
		{"missing lon", "/api/v1/weather?lat=60.17"},
		{"non-numeric lat", "/api/v1/weather?lat=abc&lon=24.94"},
		{"lat out of range", "/api/v1/weather?lat=95&lon=24.94"},
		{"lon out of range", "/api/v1/weather?lat=60.17&lon=181"},
		{"city without geocoding configured", "/api/v1/weather?city=Helsinki"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.url, nil)
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestWeatherEndpointNotFound(t *testing.T) {
	// Empty store: no stations exist anywhere.
	app := newTestApp(t, store.NewMemoryStore(0), &stubFetcher{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/weather?lat=60.17&lon=24.94", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWeatherEndpointSuccess(t *testing.T) {
	ctx := context.Background()
	memStore := store.NewMemoryStore(0)
	require.NoError(t, memStore.UpsertStations(ctx, []weather.Station{
		{FMISID: 100971, Name: "Helsinki Kaisaniemi", Lat: 60.17523, Lon: 24.94459},
	}))
	require.NoError(t, memStore.UpsertObservations(ctx, []weather.Observation{
		{FMISID: 100971, ObservedAt: time.Now(), Temperature: fptr(-5.2), WindSpeed: fptr(6.0)},
	}))

	today := time.Now().UTC().Truncate(24 * time.Hour)
	fetcher := &stubFetcher{
		daily: []weather.DailyForecast{{
			GridLat: 60.17, GridLon: 24.94,
			Date: today, FetchedAt: time.Now(),
			TempAvg: fptr(-4), TempHigh: fptr(-2), TempLow: fptr(-7),
		}},
		hourly: []weather.HourlyForecast{{
			GridLat: 60.17, GridLon: 24.94,
			Time: time.Now().Truncate(time.Hour).Add(time.Hour), Temperature: fptr(-3.5),
		}},
	}
	app := newTestApp(t, memStore, fetcher)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/weather?lat=60.1732&lon=24.9419", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "public, max-age=300", resp.Header.Get(fiber.HeaderCacheControl))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var payload struct {
		Station struct {
			Name       string  `json:"name"`
			DistanceKM float64 `json:"distance_km"`
		} `json:"station"`
		Current struct {
			Temperature *float64 `json:"temperature"`
			FeelsLike   *float64 `json:"feels_like"`
		} `json:"current"`
		Hourly   []json.RawMessage `json:"hourly_forecast"`
		Forecast []json.RawMessage `json:"daily_forecast"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))

	assert.Equal(t, "Helsinki Kaisaniemi", payload.Station.Name)
	assert.Less(t, payload.Station.DistanceKM, 1.0)
	require.NotNil(t, payload.Current.Temperature)
	assert.InDelta(t, -5.2, *payload.Current.Temperature, 1e-9)
	require.NotNil(t, payload.Current.FeelsLike)
	assert.Less(t, *payload.Current.FeelsLike, *payload.Current.Temperature)
	assert.Len(t, payload.Hourly, 1)
	assert.Len(t, payload.Forecast, 1)
}

func TestFeelsLike(t *testing.T) {
	// Wind chill only applies at or below 10 C with wind at or above 4.8 km/h.
	warm := feelsLike(fptr(15), fptr(8))
	require.NotNil(t, warm)
	assert.InDelta(t, 15, *warm, 1e-9)

	calm := feelsLike(fptr(-5), fptr(1))
	require.NotNil(t, calm)
	assert.InDelta(t, -5, *calm, 1e-9)

	chilled := feelsLike(fptr(-5), fptr(10))
	require.NotNil(t, chilled)
	assert.Less(t, *chilled, -5.0)

	assert.Nil(t, feelsLike(nil, fptr(10)))

	noWind := feelsLike(fptr(-5), nil)
	require.NotNil(t, noWind)
	assert.InDelta(t, -5, *noWind, 1e-9)
}
