package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkorhonen/ilmaris/internal/weather"
)

func fptr(v float64) *float64 { return &v }

func TestNearestStation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)

	_, _, err := s.NearestStation(ctx, 60.17, 24.94)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.UpsertStations(ctx, []weather.Station{
		{FMISID: 100971, Name: "Helsinki Kaisaniemi", Lat: 60.17523, Lon: 24.94459},
		{FMISID: 101004, Name: "Vantaa Helsinki-Vantaan lentoasema", Lat: 60.32670, Lon: 24.95675},
		{FMISID: 101339, Name: "Oulu Vihreäsaari", Lat: 65.00640, Lon: 25.39321},
	}))

	st, dist, err := s.NearestStation(ctx, 60.1699, 24.9384)
	require.NoError(t, err)
	assert.Equal(t, 100971, st.FMISID)
	assert.Less(t, dist, 1.0)

	st, _, err = s.NearestStation(ctx, 65.0, 25.5)
	require.NoError(t, err)
	assert.Equal(t, 101339, st.FMISID)
}

func TestObservationUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)

	at := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	first := weather.Observation{FMISID: 100971, ObservedAt: at, Temperature: fptr(-5.2)}
	require.NoError(t, s.UpsertObservations(ctx, []weather.Observation{first}))

	// Same (station, time) key with a corrected value replaces the row.
	second := first
	second.Temperature = fptr(-5.4)
	require.NoError(t, s.UpsertObservations(ctx, []weather.Observation{second}))

	got, err := s.LatestObservation(ctx, 100971)
	require.NoError(t, err)
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, -5.4, *got.Temperature, 1e-9)
}

func TestLatestObservationPicksNewest(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)

	base := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	// Deliberately out of order.
	require.NoError(t, s.UpsertObservations(ctx, []weather.Observation{
		{FMISID: 100971, ObservedAt: base.Add(10 * time.Minute), Temperature: fptr(-5.0)},
		{FMISID: 100971, ObservedAt: base, Temperature: fptr(-5.2)},
		{FMISID: 100971, ObservedAt: base.Add(20 * time.Minute), Temperature: fptr(-4.8)},
	}))

	got, err := s.LatestObservation(ctx, 100971)
	require.NoError(t, err)
	assert.Equal(t, base.Add(20*time.Minute), got.ObservedAt)

	_, err = s.LatestObservation(ctx, 999999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestForecastRoundTripByGridCell(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)

	today := time.Now().UTC().Truncate(24 * time.Hour)
	batch := []weather.DailyForecast{
		{GridLat: 60.17, GridLon: 24.94, Date: today, FetchedAt: time.Now(), TempAvg: fptr(-5)},
		{GridLat: 60.17, GridLon: 24.94, Date: today.AddDate(0, 0, 1), FetchedAt: time.Now(), TempAvg: fptr(-3)},
		{GridLat: 60.17, GridLon: 24.94, Date: today.AddDate(0, 0, -1), FetchedAt: time.Now(), TempAvg: fptr(-7)},
	}
	require.NoError(t, s.UpsertForecasts(ctx, batch))

	// Unsnapped query coordinates resolve to the same cell.
	got, err := s.GetForecasts(ctx, 60.1732, 24.9419)
	require.NoError(t, err)
	require.Len(t, got, 2) // yesterday filtered out
	assert.Equal(t, today, got[0].Date)
	assert.Equal(t, today.AddDate(0, 0, 1), got[1].Date)

	// Re-upserting the same dates replaces rather than duplicates.
	batch[0].TempAvg = fptr(-4)
	require.NoError(t, s.UpsertForecasts(ctx, batch))
	got, err = s.GetForecasts(ctx, 60.17, 24.94)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDelta(t, -4, *got[0].TempAvg, 1e-9)

	// A different cell is empty.
	got, err = s.GetForecasts(ctx, 65.01, 25.39)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHourlyForecastLimitAndOrder(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)

	start := time.Now().Truncate(time.Hour).Add(time.Hour)
	var batch []weather.HourlyForecast
	for i := 0; i < 5; i++ {
		batch = append(batch, weather.HourlyForecast{
			GridLat:     60.17,
			GridLon:     24.94,
			Time:        start.Add(time.Duration(4-i) * time.Hour), // reversed insert order
			Temperature: fptr(float64(i)),
		})
	}
	require.NoError(t, s.UpsertHourlyForecasts(ctx, 60.17, 24.94, batch))

	got, err := s.GetHourlyForecasts(ctx, 60.17, 24.94, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, start, got[0].Time)
	assert.True(t, got[0].Time.Before(got[1].Time))
	assert.True(t, got[1].Time.Before(got[2].Time))
	assert.False(t, got[0].FetchedAt.IsZero())
}

func TestHourlyForecastRetentionPruning(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(3 * 24 * time.Hour)

	now := time.Now().Truncate(time.Hour)
	require.NoError(t, s.UpsertHourlyForecasts(ctx, 60.17, 24.94, []weather.HourlyForecast{
		{GridLat: 60.17, GridLon: 24.94, Time: now.Add(-4 * 24 * time.Hour), Temperature: fptr(1)},
		{GridLat: 60.17, GridLon: 24.94, Time: now.Add(time.Hour), Temperature: fptr(2)},
	}))

	s.mu.RLock()
	kept := len(s.hourly[cellKey(60.17, 24.94)])
	s.mu.RUnlock()
	assert.Equal(t, 1, kept)
}
