package weather

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/pkorhonen/ilmaris/internal/cache"
)

// resolveSource identifies which tier satisfied a forecast resolution. The
// three-tier lookup is an ordered sequence of named attempts rather than
// nested conditionals so each tier's freshness rule stays independently
// testable.
type resolveSource string

const (
	sourceCache    resolveSource = "cache"
	sourceStore    resolveSource = "store"
	sourceUpstream resolveSource = "upstream"
	sourceStale    resolveSource = "stale-store"
)

// ServiceConfig carries the serving-path tunables.
type ServiceConfig struct {
	// CacheTTL bounds how long resolved batches stay in the in-memory tier.
	CacheTTL time.Duration
	// DailyFreshness is the persisted-store freshness window for daily
	// forecast batches, judged by the batch's oldest FetchedAt.
	DailyFreshness time.Duration
	// HourlyFreshness is the analogous, shorter window for hourly batches.
	HourlyFreshness time.Duration
	// HourlyHorizon is how many hours of forecast a response carries.
	HourlyHorizon int
}

// DefaultServiceConfig mirrors the production defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		CacheTTL:        10 * time.Minute,
		DailyFreshness:  3 * time.Hour,
		HourlyFreshness: 90 * time.Minute,
		HourlyHorizon:   12,
	}
}

// Service orchestrates the read path: nearest station plus latest observation
// from the store, and grid-cell forecasts through the cache/store/upstream
// hierarchy.
type Service struct {
	store         Store
	fetcher       Fetcher
	cfg           ServiceConfig
	logger        *zap.SugaredLogger
	forecastCache *cache.Cache[[]DailyForecast]
	hourlyCache   *cache.Cache[[]HourlyForecast]
	uvCache       *cache.Cache[[]UVPoint]
}

// NewService creates a Service.
func NewService(store Store, fetcher Fetcher, cfg ServiceConfig, logger *zap.SugaredLogger) *Service {
	return &Service{
		store:         store,
		fetcher:       fetcher,
		cfg:           cfg,
		logger:        logger,
		forecastCache: cache.New[[]DailyForecast](cfg.CacheTTL),
		hourlyCache:   cache.New[[]HourlyForecast](cfg.CacheTTL),
		uvCache:       cache.New[[]UVPoint](cfg.CacheTTL),
	}
}

// GetWeather assembles the full response for a coordinate: nearest station
// conditions plus daily and hourly forecasts for the snapped grid cell.
// An unavailable hourly forecast degrades the response instead of failing it.
func (s *Service) GetWeather(ctx context.Context, lat, lon float64) (*WeatherResponse, error) {
	station, distKM, err := s.store.NearestStation(ctx, lat, lon)
	if err != nil {
		return nil, fmt.Errorf("nearest station: %w", err)
	}

	obs, err := s.store.LatestObservation(ctx, station.FMISID)
	if err != nil {
		return nil, fmt.Errorf("latest observation: %w", err)
	}

	gridLat, gridLon := SnapToGrid(lat, lon)
	forecast, err := s.resolveDaily(ctx, gridLat, gridLon)
	if err != nil {
		return nil, fmt.Errorf("forecast: %w", err)
	}

	hourly, err := s.resolveHourly(ctx, gridLat, gridLon, s.cfg.HourlyHorizon)
	if err != nil {
		s.logger.Warnw("hourly forecast unavailable", "error", err, "lat", gridLat, "lon", gridLon)
	}

	uvPoints := s.resolveUV(ctx, gridLat, gridLon)
	if len(uvPoints) > 0 {
		mergeUVIntoHourly(uvPoints, hourly)
		mergeUVIntoDaily(uvPoints, forecast)
		if err := s.store.UpsertHourlyForecasts(ctx, gridLat, gridLon, hourly); err != nil {
			s.logger.Warnw("failed to persist UV-enriched hourly forecasts", "error", err)
		}
		if err := s.store.UpsertForecasts(ctx, forecast); err != nil {
			s.logger.Warnw("failed to persist UV-enriched daily forecasts", "error", err)
		}
	}

	return &WeatherResponse{
		Current: CurrentWeather{
			Station:     station,
			DistanceKM:  distKM,
			Observation: obs,
		},
		Hourly:   hourly,
		Forecast: forecast,
	}, nil
}

// resolveDaily walks the tiers in order: in-memory cache, persisted store
// (freshness judged by the oldest FetchedAt in the batch), upstream fetch.
// Persistence of a fresh upstream batch is best-effort; a store failure must
// not cost the caller data we already hold.
func (s *Service) resolveDaily(ctx context.Context, gridLat, gridLon float64) ([]DailyForecast, error) {
	key := gridKey(gridLat, gridLon)

	if cached, ok := s.forecastCache.Get(key); ok && hasExpandedSchema(cached) {
		s.logger.Debugw("daily forecast resolved", "source", sourceCache, "cell", key)
		return cached, nil
	}

	persisted, err := s.store.GetForecasts(ctx, gridLat, gridLon)
	if err == nil && len(persisted) > 0 &&
		isBatchFresh(dailyFetchTimes(persisted), s.cfg.DailyFreshness) &&
		hasExpandedSchema(persisted) {
		s.forecastCache.Set(key, persisted)
		s.logger.Debugw("daily forecast resolved", "source", sourceStore, "cell", key)
		return persisted, nil
	}

	fetched, err := s.fetcher.FetchForecast(ctx, gridLat, gridLon)
	if err != nil {
		return nil, err
	}

	if storeErr := s.store.UpsertForecasts(ctx, fetched); storeErr != nil {
		s.logger.Warnw("failed to store daily forecasts", "error", storeErr, "cell", key)
	}
	s.forecastCache.Set(key, fetched)
	s.logger.Debugw("daily forecast resolved", "source", sourceUpstream, "cell", key)
	return fetched, nil
}

// resolveHourly is the hourly analogue with a shorter freshness window and a
// degraded-mode fallback: when the upstream fetch fails but a stale persisted
// batch exists, the stale batch is served rather than failing the request.
func (s *Service) resolveHourly(ctx context.Context, gridLat, gridLon float64, limit int) ([]HourlyForecast, error) {
	key := fmt.Sprintf("%s:%d", gridKey(gridLat, gridLon), limit)

	if cached, ok := s.hourlyCache.Get(key); ok {
		return cached, nil
	}

	persisted, storeErr := s.store.GetHourlyForecasts(ctx, gridLat, gridLon, limit)
	if storeErr == nil && len(persisted) > 0 && isBatchFresh(hourlyFetchTimes(persisted), s.cfg.HourlyFreshness) {
		s.hourlyCache.Set(key, persisted)
		return persisted, nil
	}

	fetched, err := s.fetcher.FetchHourlyForecast(ctx, gridLat, gridLon, limit)
	if err != nil {
		if len(persisted) > 0 {
			s.logger.Warnw("serving stale persisted hourly forecast",
				"source", sourceStale, "error", err, "lat", gridLat, "lon", gridLon)
			s.hourlyCache.Set(key, persisted)
			return persisted, nil
		}
		return nil, err
	}

	fetchedAt := time.Now()
	for i := range fetched {
		fetched[i].FetchedAt = fetchedAt
	}

	if upsertErr := s.store.UpsertHourlyForecasts(ctx, gridLat, gridLon, fetched); upsertErr != nil {
		s.logger.Warnw("failed to store hourly forecasts", "error", upsertErr, "cell", key)
	}
	s.hourlyCache.Set(key, fetched)
	return fetched, nil
}

// resolveUV returns UV points for the cell, or nil when the supplementary
// source is unconfigured or failing. A UV failure never fails the request.
func (s *Service) resolveUV(ctx context.Context, gridLat, gridLon float64) []UVPoint {
	key := "uv:" + gridKey(gridLat, gridLon)
	if cached, ok := s.uvCache.Get(key); ok {
		return cached
	}

	points, err := s.fetcher.FetchUVForecast(ctx, gridLat, gridLon)
	if err != nil {
		s.logger.Warnw("UV forecast fetch failed", "error", err)
		return nil
	}
	if len(points) > 0 {
		s.uvCache.Set(key, points)
	}
	return points
}

// SnapToGrid rounds a coordinate to the 0.01-degree lattice (roughly 1 km
// cells) shared by the cache and the store. Snapping an already-snapped
// coordinate is a no-op.
func SnapToGrid(lat, lon float64) (float64, float64) {
	return math.Round(lat*100) / 100, math.Round(lon*100) / 100
}

func gridKey(gridLat, gridLon float64) string {
	return fmt.Sprintf("%.2f,%.2f", gridLat, gridLon)
}

// isBatchFresh judges a batch by its oldest member: one stale row makes the
// whole batch stale. A zero FetchedAt anywhere means pre-tracking data and is
// treated as stale.
func isBatchFresh(fetchTimes []time.Time, window time.Duration) bool {
	if len(fetchTimes) == 0 {
		return false
	}
	oldest := fetchTimes[0]
	for _, t := range fetchTimes {
		if t.IsZero() {
			return false
		}
		if t.Before(oldest) {
			oldest = t
		}
	}
	return time.Since(oldest) < window
}

func dailyFetchTimes(forecasts []DailyForecast) []time.Time {
	ts := make([]time.Time, len(forecasts))
	for i, f := range forecasts {
		ts[i] = f.FetchedAt
	}
	return ts
}

func hourlyFetchTimes(hourly []HourlyForecast) []time.Time {
	ts := make([]time.Time, len(hourly))
	for i, h := range hourly {
		ts[i] = h.FetchedAt
	}
	return ts
}

// hasExpandedSchema guards against serving rows persisted by an older,
// narrower schema. TempAvg is derived from temperature and is present for any
// day with temperature data, so a batch where it is nil everywhere predates
// the expanded field set.
func hasExpandedSchema(forecasts []DailyForecast) bool {
	for _, f := range forecasts {
		if f.TempAvg != nil {
			return true
		}
	}
	return false
}

// mergeUVIntoHourly attaches UV samples to hourly records by truncating the
// sample time to its containing hour.
func mergeUVIntoHourly(points []UVPoint, hourly []HourlyForecast) {
	byHour := make(map[int64]float64, len(points))
	for _, p := range points {
		byHour[p.Time.Truncate(time.Hour).Unix()] = p.UVCumulated
	}
	for i := range hourly {
		if uv, ok := byHour[hourly[i].Time.Truncate(time.Hour).Unix()]; ok {
			v := uv
			hourly[i].UVCumulated = &v
		}
	}
}

// mergeUVIntoDaily averages all UV samples falling on each calendar date.
func mergeUVIntoDaily(points []UVPoint, forecasts []DailyForecast) {
	type acc struct {
		sum   float64
		count int
	}
	byDate := make(map[string]*acc)
	for _, p := range points {
		date := p.Time.UTC().Format("2006-01-02")
		a, ok := byDate[date]
		if !ok {
			a = &acc{}
			byDate[date] = a
		}
		a.sum += p.UVCumulated
		a.count++
	}
	for i := range forecasts {
		date := forecasts[i].Date.UTC().Format("2006-01-02")
		if a, ok := byDate[date]; ok && a.count > 0 {
			avg := a.sum / float64(a.count)
			forecasts[i].UVIndexAvg = &avg
		}
	}
}
