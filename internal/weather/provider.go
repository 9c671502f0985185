package weather

import (
	"context"
)

// Store is the contract the persisted store must satisfy. All upserts are
// idempotent on their natural key (station id, station+time, or grid
// cell+date/hour), so concurrent writers converge without in-process locking.
type Store interface {
	UpsertStations(ctx context.Context, stations []Station) error
	UpsertObservations(ctx context.Context, observations []Observation) error
	NearestStation(ctx context.Context, lat, lon float64) (Station, float64, error)
	LatestObservation(ctx context.Context, fmisid int) (Observation, error)

	GetForecasts(ctx context.Context, gridLat, gridLon float64) ([]DailyForecast, error)
	UpsertForecasts(ctx context.Context, forecasts []DailyForecast) error
	GetHourlyForecasts(ctx context.Context, gridLat, gridLon float64, limit int) ([]HourlyForecast, error)
	UpsertHourlyForecasts(ctx context.Context, gridLat, gridLon float64, hourly []HourlyForecast) error
}

// Fetcher abstracts the upstream forecast source (FMI open data WFS plus the
// apikey-gated UV timeseries endpoint).
type Fetcher interface {
	FetchForecast(ctx context.Context, lat, lon float64) ([]DailyForecast, error)
	FetchHourlyForecast(ctx context.Context, lat, lon float64, limit int) ([]HourlyForecast, error)
	FetchUVForecast(ctx context.Context, lat, lon float64) ([]UVPoint, error)
}
