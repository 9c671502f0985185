package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pkorhonen/ilmaris/internal/weather"
)

// hourlyRetention is how long hourly forecast rows are kept past the time
// they represent. Observations are kept indefinitely for history.
const hourlyRetention = 3 * 24 * time.Hour

// PostgresStore is the gorm-backed production implementation of
// weather.Store. All writes upsert on the record's natural key, so concurrent
// writers are safe without additional locking.
type PostgresStore struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
}

type stationRecord struct {
	FMISID  int     `gorm:"column:fmisid;primaryKey"`
	Name    string  `gorm:"not null"`
	Lat     float64 `gorm:"not null"`
	Lon     float64 `gorm:"not null"`
	WMOCode string  `gorm:"column:wmo_code"`
}

func (stationRecord) TableName() string { return "stations" }

type observationRecord struct {
	FMISID          int       `gorm:"column:fmisid;primaryKey;autoIncrement:false"`
	ObservedAt      time.Time `gorm:"primaryKey"`
	Temperature     *float64
	WindSpeed       *float64
	WindGust        *float64
	WindDir         *float64
	Humidity        *float64
	DewPoint        *float64
	Pressure        *float64
	Precip1h        *float64 `gorm:"column:precip_1h"`
	PrecipIntensity *float64
	SnowDepth       *float64
	Visibility      *float64
	TotalCloudCover *float64
	WeatherCode     *float64
	Extra           []byte `gorm:"type:jsonb"`
}

func (observationRecord) TableName() string { return "observations" }

type dailyForecastRecord struct {
	GridLat   float64   `gorm:"primaryKey;autoIncrement:false"`
	GridLon   float64   `gorm:"primaryKey;autoIncrement:false"`
	Date      time.Time `gorm:"column:forecast_for;primaryKey"`
	FetchedAt time.Time `gorm:"not null"`

	TempHigh *float64
	TempLow  *float64
	TempAvg  *float64

	WindSpeedAvg *float64
	WindDirMean  *float64
	HumidityAvg  *float64
	PrecipSum    *float64
	Symbol       *string

	DewPointAvg                *float64
	FogIntensityAvg            *float64
	FrostProbabilityAvg        *float64
	SevereFrostProbabilityAvg  *float64
	GeopHeightAvg              *float64
	PressureAvg                *float64
	HighCloudCoverAvg          *float64
	LowCloudCoverAvg           *float64
	MediumCloudCoverAvg        *float64
	MiddleAndLowCloudCoverAvg  *float64
	TotalCloudCoverAvg         *float64
	GustMax                    *float64
	MaxWindSpeedMax            *float64
	PoPAvg                     *float64 `gorm:"column:pop_avg"`
	ProbabilityThunderstormAvg *float64
	PotentialPrecipFormMode    *float64
	PotentialPrecipTypeMode    *float64
	PrecipFormMode             *float64
	PrecipTypeMode             *float64
	RadiationGlobalAvg         *float64
	RadiationLWAvg             *float64 `gorm:"column:radiation_lw_avg"`
	WeatherNumberMode          *float64
	WeatherSymbol3Mode         *float64
	WindUMSAvg                 *float64 `gorm:"column:wind_ums_avg"`
	WindVMSAvg                 *float64 `gorm:"column:wind_vms_avg"`
	WindVectorMSAvg            *float64 `gorm:"column:wind_vector_ms_avg"`
	UVIndexAvg                 *float64 `gorm:"column:uv_index_avg"`
}

func (dailyForecastRecord) TableName() string { return "forecasts" }

type hourlyForecastRecord struct {
	GridLat      float64   `gorm:"primaryKey;autoIncrement:false"`
	GridLon      float64   `gorm:"primaryKey;autoIncrement:false"`
	ForecastTime time.Time `gorm:"primaryKey"`
	FetchedAt    time.Time `gorm:"not null"`

	Temperature *float64
	WindSpeed   *float64
	WindDir     *float64
	Humidity    *float64
	Precip1h    *float64 `gorm:"column:precip_1h"`
	Symbol      *string
	UVCumulated *float64 `gorm:"column:uv_cumulated"`
}

func (hourlyForecastRecord) TableName() string { return "hourly_forecasts" }

// NewPostgresStore connects to Postgres and migrates the schema.
func NewPostgresStore(dsn string, logger *zap.SugaredLogger) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := db.AutoMigrate(
		&stationRecord{},
		&observationRecord{},
		&dailyForecastRecord{},
		&hourlyForecastRecord{},
	); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &PostgresStore{db: db, logger: logger}, nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// UpsertStations inserts or updates stations keyed by id.
func (s *PostgresStore) UpsertStations(ctx context.Context, stations []weather.Station) error {
	if len(stations) == 0 {
		return nil
	}
	records := make([]stationRecord, 0, len(stations))
	for _, st := range stations {
		records = append(records, stationRecord{
			FMISID:  st.FMISID,
			Name:    st.Name,
			Lat:     st.Lat,
			Lon:     st.Lon,
			WMOCode: st.WMOCode,
		})
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "fmisid"}},
		UpdateAll: true,
	}).Create(&records).Error
	if err != nil {
		return fmt.Errorf("upsert stations: %w", err)
	}
	return nil
}

// UpsertObservations inserts or updates observations keyed by
// (station, time).
func (s *PostgresStore) UpsertObservations(ctx context.Context, observations []weather.Observation) error {
	if len(observations) == 0 {
		return nil
	}
	records := make([]observationRecord, 0, len(observations))
	for _, o := range observations {
		records = append(records, observationRecord{
			FMISID:          o.FMISID,
			ObservedAt:      o.ObservedAt,
			Temperature:     o.Temperature,
			WindSpeed:       o.WindSpeed,
			WindGust:        o.WindGust,
			WindDir:         o.WindDir,
			Humidity:        o.Humidity,
			DewPoint:        o.DewPoint,
			Pressure:        o.Pressure,
			Precip1h:        o.Precip1h,
			PrecipIntensity: o.PrecipIntensity,
			SnowDepth:       o.SnowDepth,
			Visibility:      o.Visibility,
			TotalCloudCover: o.TotalCloudCover,
			WeatherCode:     o.WeatherCode,
			Extra:           encodeExtras(o.Extra),
		})
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "fmisid"}, {Name: "observed_at"}},
		UpdateAll: true,
	}).CreateInBatches(&records, 500).Error
	if err != nil {
		return fmt.Errorf("upsert observations: %w", err)
	}
	return nil
}

// NearestStation finds the station closest to (lat, lon) by haversine
// distance, computed in SQL so only one row crosses the wire.
func (s *PostgresStore) NearestStation(ctx context.Context, lat, lon float64) (weather.Station, float64, error) {
	var row struct {
		stationRecord
		DistanceKM float64
	}

	// 6371 is the mean Earth radius in kilometers.
	const distanceExpr = `6371 * 2 * asin(sqrt(
		power(sin(radians(lat - ?) / 2), 2) +
		cos(radians(?)) * cos(radians(lat)) *
		power(sin(radians(lon - ?) / 2), 2)))`

	err := s.db.WithContext(ctx).
		Model(&stationRecord{}).
		Select("*, "+distanceExpr+" AS distance_km", lat, lat, lon).
		Order("distance_km").
		Limit(1).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return weather.Station{}, 0, ErrNotFound
	}
	if err != nil {
		return weather.Station{}, 0, fmt.Errorf("nearest station: %w", err)
	}

	return weather.Station{
		FMISID:  row.FMISID,
		Name:    row.Name,
		Lat:     row.Lat,
		Lon:     row.Lon,
		WMOCode: row.WMOCode,
	}, row.DistanceKM, nil
}

// LatestObservation returns a station's most recent observation.
func (s *PostgresStore) LatestObservation(ctx context.Context, fmisid int) (weather.Observation, error) {
	var rec observationRecord
	err := s.db.WithContext(ctx).
		Where("fmisid = ?", fmisid).
		Order("observed_at DESC").
		Limit(1).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return weather.Observation{}, ErrNotFound
	}
	if err != nil {
		return weather.Observation{}, fmt.Errorf("latest observation: %w", err)
	}

	return weather.Observation{
		FMISID:          rec.FMISID,
		ObservedAt:      rec.ObservedAt,
		Temperature:     rec.Temperature,
		WindSpeed:       rec.WindSpeed,
		WindGust:        rec.WindGust,
		WindDir:         rec.WindDir,
		Humidity:        rec.Humidity,
		DewPoint:        rec.DewPoint,
		Pressure:        rec.Pressure,
		Precip1h:        rec.Precip1h,
		PrecipIntensity: rec.PrecipIntensity,
		SnowDepth:       rec.SnowDepth,
		Visibility:      rec.Visibility,
		TotalCloudCover: rec.TotalCloudCover,
		WeatherCode:     rec.WeatherCode,
		Extra:           decodeExtras(rec.Extra),
	}, nil
}

// GetForecasts returns today-and-forward daily forecasts for a grid cell.
func (s *PostgresStore) GetForecasts(ctx context.Context, gridLat, gridLon float64) ([]weather.DailyForecast, error) {
	var records []dailyForecastRecord
	err := s.db.WithContext(ctx).
		Where("grid_lat = ? AND grid_lon = ? AND forecast_for >= CURRENT_DATE", gridLat, gridLon).
		Order("forecast_for").
		Limit(11).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("get forecasts: %w", err)
	}

	result := make([]weather.DailyForecast, 0, len(records))
	for _, rec := range records {
		result = append(result, rec.toDomain())
	}
	return result, nil
}

// UpsertForecasts inserts or updates daily forecasts keyed by
// (grid cell, date).
func (s *PostgresStore) UpsertForecasts(ctx context.Context, forecasts []weather.DailyForecast) error {
	if len(forecasts) == 0 {
		return nil
	}
	records := make([]dailyForecastRecord, 0, len(forecasts))
	for _, f := range forecasts {
		records = append(records, newDailyForecastRecord(f))
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "grid_lat"}, {Name: "grid_lon"}, {Name: "forecast_for"}},
		UpdateAll: true,
	}).Create(&records).Error
	if err != nil {
		return fmt.Errorf("upsert forecasts: %w", err)
	}
	return nil
}

// GetHourlyForecasts returns hourly forecasts for a grid cell from the
// current hour forward, capped at limit.
func (s *PostgresStore) GetHourlyForecasts(ctx context.Context, gridLat, gridLon float64, limit int) ([]weather.HourlyForecast, error) {
	if limit <= 0 {
		limit = 12
	}
	var records []hourlyForecastRecord
	err := s.db.WithContext(ctx).
		Where("grid_lat = ? AND grid_lon = ? AND forecast_time >= date_trunc('hour', NOW())", gridLat, gridLon).
		Order("forecast_time").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("get hourly forecasts: %w", err)
	}

	result := make([]weather.HourlyForecast, 0, len(records))
	for _, rec := range records {
		result = append(result, weather.HourlyForecast{
			GridLat:     rec.GridLat,
			GridLon:     rec.GridLon,
			Time:        rec.ForecastTime,
			FetchedAt:   rec.FetchedAt,
			Temperature: rec.Temperature,
			WindSpeed:   rec.WindSpeed,
			WindDir:     rec.WindDir,
			Humidity:    rec.Humidity,
			Precip1h:    rec.Precip1h,
			Symbol:      rec.Symbol,
			UVCumulated: rec.UVCumulated,
		})
	}
	return result, nil
}

// UpsertHourlyForecasts inserts or updates hourly forecasts keyed by
// (grid cell, hour), then prunes rows past the retention window. Hourly rows
// have no analytical value once the hour they represent is days gone.
func (s *PostgresStore) UpsertHourlyForecasts(ctx context.Context, gridLat, gridLon float64, hourly []weather.HourlyForecast) error {
	if len(hourly) == 0 {
		return nil
	}
	now := time.Now()
	records := make([]hourlyForecastRecord, 0, len(hourly))
	for _, h := range hourly {
		fetchedAt := h.FetchedAt
		if fetchedAt.IsZero() {
			fetchedAt = now
		}
		records = append(records, hourlyForecastRecord{
			GridLat:      gridLat,
			GridLon:      gridLon,
			ForecastTime: h.Time,
			FetchedAt:    fetchedAt,
			Temperature:  h.Temperature,
			WindSpeed:    h.WindSpeed,
			WindDir:      h.WindDir,
			Humidity:     h.Humidity,
			Precip1h:     h.Precip1h,
			Symbol:       h.Symbol,
			UVCumulated:  h.UVCumulated,
		})
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "grid_lat"}, {Name: "grid_lon"}, {Name: "forecast_time"}},
		UpdateAll: true,
	}).Create(&records).Error
	if err != nil {
		return fmt.Errorf("upsert hourly forecasts: %w", err)
	}

	if pruneErr := s.db.WithContext(ctx).
		Where("forecast_time < ?", now.Add(-hourlyRetention)).
		Delete(&hourlyForecastRecord{}).Error; pruneErr != nil {
		s.logger.Warnw("failed to prune old hourly forecasts", "error", pruneErr)
	}
	return nil
}

func newDailyForecastRecord(f weather.DailyForecast) dailyForecastRecord {
	return dailyForecastRecord{
		GridLat:   f.GridLat,
		GridLon:   f.GridLon,
		Date:      f.Date,
		FetchedAt: f.FetchedAt,

		TempHigh: f.TempHigh,
		TempLow:  f.TempLow,
		TempAvg:  f.TempAvg,

		WindSpeedAvg: f.WindSpeedAvg,
		WindDirMean:  f.WindDirMean,
		HumidityAvg:  f.HumidityAvg,
		PrecipSum:    f.PrecipSum,
		Symbol:       f.Symbol,

		DewPointAvg:                f.DewPointAvg,
		FogIntensityAvg:            f.FogIntensityAvg,
		FrostProbabilityAvg:        f.FrostProbabilityAvg,
		SevereFrostProbabilityAvg:  f.SevereFrostProbabilityAvg,
		GeopHeightAvg:              f.GeopHeightAvg,
		PressureAvg:                f.PressureAvg,
		HighCloudCoverAvg:          f.HighCloudCoverAvg,
		LowCloudCoverAvg:           f.LowCloudCoverAvg,
		MediumCloudCoverAvg:        f.MediumCloudCoverAvg,
		MiddleAndLowCloudCoverAvg:  f.MiddleAndLowCloudCoverAvg,
		TotalCloudCoverAvg:         f.TotalCloudCoverAvg,
		GustMax:                    f.GustMax,
		MaxWindSpeedMax:            f.MaxWindSpeedMax,
		PoPAvg:                     f.PoPAvg,
		ProbabilityThunderstormAvg: f.ProbabilityThunderstormAvg,
		PotentialPrecipFormMode:    f.PotentialPrecipFormMode,
		PotentialPrecipTypeMode:    f.PotentialPrecipTypeMode,
		PrecipFormMode:             f.PrecipFormMode,
		PrecipTypeMode:             f.PrecipTypeMode,
		RadiationGlobalAvg:         f.RadiationGlobalAvg,
		RadiationLWAvg:             f.RadiationLWAvg,
		WeatherNumberMode:          f.WeatherNumberMode,
		WeatherSymbol3Mode:         f.WeatherSymbol3Mode,
		WindUMSAvg:                 f.WindUMSAvg,
		WindVMSAvg:                 f.WindVMSAvg,
		WindVectorMSAvg:            f.WindVectorMSAvg,
		UVIndexAvg:                 f.UVIndexAvg,
	}
}

func (rec dailyForecastRecord) toDomain() weather.DailyForecast {
	return weather.DailyForecast{
		GridLat:   rec.GridLat,
		GridLon:   rec.GridLon,
		Date:      rec.Date,
		FetchedAt: rec.FetchedAt,

		TempHigh: rec.TempHigh,
		TempLow:  rec.TempLow,
		TempAvg:  rec.TempAvg,

		WindSpeedAvg: rec.WindSpeedAvg,
		WindDirMean:  rec.WindDirMean,
		HumidityAvg:  rec.HumidityAvg,
		PrecipSum:    rec.PrecipSum,
		Symbol:       rec.Symbol,

		DewPointAvg:                rec.DewPointAvg,
		FogIntensityAvg:            rec.FogIntensityAvg,
		FrostProbabilityAvg:        rec.FrostProbabilityAvg,
		SevereFrostProbabilityAvg:  rec.SevereFrostProbabilityAvg,
		GeopHeightAvg:              rec.GeopHeightAvg,
		PressureAvg:                rec.PressureAvg,
		HighCloudCoverAvg:          rec.HighCloudCoverAvg,
		LowCloudCoverAvg:           rec.LowCloudCoverAvg,
		MediumCloudCoverAvg:        rec.MediumCloudCoverAvg,
		MiddleAndLowCloudCoverAvg:  rec.MiddleAndLowCloudCoverAvg,
		TotalCloudCoverAvg:         rec.TotalCloudCoverAvg,
		GustMax:                    rec.GustMax,
		MaxWindSpeedMax:            rec.MaxWindSpeedMax,
		PoPAvg:                     rec.PoPAvg,
		ProbabilityThunderstormAvg: rec.ProbabilityThunderstormAvg,
		PotentialPrecipFormMode:    rec.PotentialPrecipFormMode,
		PotentialPrecipTypeMode:    rec.PotentialPrecipTypeMode,
		PrecipFormMode:             rec.PrecipFormMode,
		PrecipTypeMode:             rec.PrecipTypeMode,
		RadiationGlobalAvg:         rec.RadiationGlobalAvg,
		RadiationLWAvg:             rec.RadiationLWAvg,
		WeatherNumberMode:          rec.WeatherNumberMode,
		WeatherSymbol3Mode:         rec.WeatherSymbol3Mode,
		WindUMSAvg:                 rec.WindUMSAvg,
		WindVMSAvg:                 rec.WindVMSAvg,
		WindVectorMSAvg:            rec.WindVectorMSAvg,
		UVIndexAvg:                 rec.UVIndexAvg,
	}
}

func encodeExtras(params map[string]float64) []byte {
	if len(params) == 0 {
		return nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil
	}
	return b
}

func decodeExtras(raw []byte) map[string]float64 {
	if len(raw) == 0 {
		return nil
	}
	var result map[string]float64
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil
	}
	return result
}
