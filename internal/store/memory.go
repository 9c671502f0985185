package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/pkorhonen/ilmaris/internal/weather"
)

var (
	// ErrNotFound is returned when no data exists for the requested key.
	ErrNotFound = errors.New("no weather data found")
)

// MemoryStore is a concurrency-safe in-memory implementation of
// weather.Store. It backs tests and the no-database development mode; the
// Postgres store is the production implementation.
type MemoryStore struct {
	mu sync.RWMutex

	stations     map[int]weather.Station
	observations map[int][]weather.Observation // per station, ascending by time
	daily        map[string][]weather.DailyForecast
	hourly       map[string][]weather.HourlyForecast

	hourlyRetention time.Duration
}

// NewMemoryStore creates an empty MemoryStore. Hourly forecasts older than
// hourlyRetention are pruned on upsert; zero disables pruning.
func NewMemoryStore(hourlyRetention time.Duration) *MemoryStore {
	return &MemoryStore{
		stations:        make(map[int]weather.Station),
		observations:    make(map[int][]weather.Observation),
		daily:           make(map[string][]weather.DailyForecast),
		hourly:          make(map[string][]weather.HourlyForecast),
		hourlyRetention: hourlyRetention,
	}
}

func cellKey(gridLat, gridLon float64) string {
	lat, lon := weather.SnapToGrid(gridLat, gridLon)
	return fmt.Sprintf("%.2f,%.2f", lat, lon)
}

// UpsertStations inserts or replaces stations keyed by id.
func (s *MemoryStore) UpsertStations(_ context.Context, stations []weather.Station) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, st := range stations {
		s.stations[st.FMISID] = st
	}
	return nil
}

// UpsertObservations inserts or replaces observations keyed by
// (station, time).
func (s *MemoryStore) UpsertObservations(_ context.Context, observations []weather.Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range observations {
		list := s.observations[o.FMISID]
		idx := slices.IndexFunc(list, func(e weather.Observation) bool {
			return e.ObservedAt.Equal(o.ObservedAt)
		})
		if idx >= 0 {
			list[idx] = o
		} else {
			list = append(list, o)
			slices.SortFunc(list, func(a, b weather.Observation) int {
				return a.ObservedAt.Compare(b.ObservedAt)
			})
		}
		s.observations[o.FMISID] = list
	}
	return nil
}

// NearestStation returns the station closest to (lat, lon) by haversine
// distance, in kilometers.
func (s *MemoryStore) NearestStation(_ context.Context, lat, lon float64) (weather.Station, float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best weather.Station
	bestDist := math.MaxFloat64
	for _, st := range s.stations {
		d := haversineKM(lat, lon, st.Lat, st.Lon)
		if d < bestDist {
			best = st
			bestDist = d
		}
	}
	if bestDist == math.MaxFloat64 {
		return weather.Station{}, 0, ErrNotFound
	}
	return best, bestDist, nil
}

// LatestObservation returns the most recent observation for a station.
func (s *MemoryStore) LatestObservation(_ context.Context, fmisid int) (weather.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.observations[fmisid]
	if len(list) == 0 {
		return weather.Observation{}, ErrNotFound
	}
	return list[len(list)-1], nil
}

// GetForecasts returns today-and-forward daily forecasts for a grid cell,
// ordered by date.
func (s *MemoryStore) GetForecasts(_ context.Context, gridLat, gridLon float64) ([]weather.DailyForecast, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	today := time.Now().UTC().Truncate(24 * time.Hour)
	var result []weather.DailyForecast
	for _, f := range s.daily[cellKey(gridLat, gridLon)] {
		if f.Date.Before(today) {
			continue
		}
		result = append(result, f)
	}
	slices.SortFunc(result, func(a, b weather.DailyForecast) int {
		return a.Date.Compare(b.Date)
	})
	return result, nil
}

// UpsertForecasts inserts or replaces daily forecasts keyed by
// (grid cell, date).
func (s *MemoryStore) UpsertForecasts(_ context.Context, forecasts []weather.DailyForecast) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range forecasts {
		key := cellKey(f.GridLat, f.GridLon)
		list := s.daily[key]
		idx := slices.IndexFunc(list, func(e weather.DailyForecast) bool {
			return e.Date.Equal(f.Date)
		})
		if idx >= 0 {
			list[idx] = f
		} else {
			list = append(list, f)
		}
		s.daily[key] = list
	}
	return nil
}

// GetHourlyForecasts returns hourly forecasts from the current hour forward,
// ordered by time and capped at limit.
func (s *MemoryStore) GetHourlyForecasts(_ context.Context, gridLat, gridLon float64, limit int) ([]weather.HourlyForecast, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 12
	}
	cutoff := time.Now().Truncate(time.Hour)
	var result []weather.HourlyForecast
	for _, h := range s.hourly[cellKey(gridLat, gridLon)] {
		if h.Time.Before(cutoff) {
			continue
		}
		result = append(result, h)
	}
	slices.SortFunc(result, func(a, b weather.HourlyForecast) int {
		return a.Time.Compare(b.Time)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// UpsertHourlyForecasts inserts or replaces hourly forecasts keyed by
// (grid cell, hour), then prunes entries older than the retention window.
func (s *MemoryStore) UpsertHourlyForecasts(_ context.Context, gridLat, gridLon float64, hourly []weather.HourlyForecast) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := cellKey(gridLat, gridLon)
	now := time.Now()
	list := s.hourly[key]
	for _, h := range hourly {
		if h.FetchedAt.IsZero() {
			h.FetchedAt = now
		}
		idx := slices.IndexFunc(list, func(e weather.HourlyForecast) bool {
			return e.Time.Equal(h.Time)
		})
		if idx >= 0 {
			list[idx] = h
		} else {
			list = append(list, h)
		}
	}

	if s.hourlyRetention > 0 {
		cutoff := now.Add(-s.hourlyRetention)
		list = slices.DeleteFunc(list, func(e weather.HourlyForecast) bool {
			return e.Time.Before(cutoff)
		})
	}
	s.hourly[key] = list
	return nil
}

// haversineKM is the great-circle distance between two coordinates.
func haversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKM = 6371.0

	rad := func(deg float64) float64 { return deg * math.Pi / 180.0 }
	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Asin(math.Sqrt(a))
}
