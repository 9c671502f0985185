package weather

import (
	"time"
)

// Station is a physical FMI observation station.
// Name is never empty: resolution falls back from the locale display name to
// the WMO code and finally to the numeric station id rendered as a string.
type Station struct {
	FMISID  int     `json:"fmisid"`
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	WMOCode string  `json:"wmo_code,omitempty"`
}

// Observation is one station's measurements at a single point in time.
// Every field is optional; a nil pointer means the upstream had no usable
// value (missing member or a NaN sentinel). Parameters outside the well-known
// set land in Extra so that upstream schema additions survive a round trip
// through the store without a deploy.
type Observation struct {
	FMISID          int                `json:"fmisid"`
	ObservedAt      time.Time          `json:"observed_at"`
	Temperature     *float64           `json:"temperature,omitempty"`
	WindSpeed       *float64           `json:"wind_speed,omitempty"`
	WindGust        *float64           `json:"wind_gust,omitempty"`
	WindDir         *float64           `json:"wind_direction,omitempty"`
	Humidity        *float64           `json:"humidity,omitempty"`
	DewPoint        *float64           `json:"dew_point,omitempty"`
	Pressure        *float64           `json:"pressure,omitempty"`
	Precip1h        *float64           `json:"precipitation_1h,omitempty"`
	PrecipIntensity *float64           `json:"precipitation_intensity,omitempty"`
	SnowDepth       *float64           `json:"snow_depth,omitempty"`
	Visibility      *float64           `json:"visibility,omitempty"`
	TotalCloudCover *float64           `json:"total_cloud_cover,omitempty"`
	WeatherCode     *float64           `json:"weather_code,omitempty"`
	Extra           map[string]float64 `json:"extra,omitempty"`
}

// HasAnyValue reports whether at least one field carries data. All-absent
// observations are synthetic noise and must never be stored or served.
func (o *Observation) HasAnyValue() bool {
	return o.Temperature != nil || o.WindSpeed != nil || o.WindGust != nil ||
		o.WindDir != nil || o.Humidity != nil || o.DewPoint != nil ||
		o.Pressure != nil || o.Precip1h != nil || o.PrecipIntensity != nil ||
		o.SnowDepth != nil || o.Visibility != nil || o.TotalCloudCover != nil ||
		o.WeatherCode != nil || len(o.Extra) > 0
}

// DailyForecast is one grid cell's aggregated forecast for a calendar date.
// FetchedAt anchors freshness: a batch of days is only as fresh as its oldest
// member.
type DailyForecast struct {
	GridLat   float64   `json:"grid_lat"`
	GridLon   float64   `json:"grid_lon"`
	Date      time.Time `json:"date"`
	FetchedAt time.Time `json:"fetched_at"`

	TempHigh *float64 `json:"temp_high,omitempty"`
	TempLow  *float64 `json:"temp_low,omitempty"`
	TempAvg  *float64 `json:"temp_avg,omitempty"`

	WindSpeedAvg *float64 `json:"wind_speed_avg,omitempty"`
	WindDirMean  *float64 `json:"wind_direction_mean,omitempty"`
	HumidityAvg  *float64 `json:"humidity_avg,omitempty"`
	PrecipSum    *float64 `json:"precipitation_sum,omitempty"`
	Symbol       *string  `json:"symbol,omitempty"`

	DewPointAvg                *float64 `json:"dew_point_avg,omitempty"`
	FogIntensityAvg            *float64 `json:"fog_intensity_avg,omitempty"`
	FrostProbabilityAvg        *float64 `json:"frost_probability_avg,omitempty"`
	SevereFrostProbabilityAvg  *float64 `json:"severe_frost_probability_avg,omitempty"`
	GeopHeightAvg              *float64 `json:"geop_height_avg,omitempty"`
	PressureAvg                *float64 `json:"pressure_avg,omitempty"`
	HighCloudCoverAvg          *float64 `json:"high_cloud_cover_avg,omitempty"`
	LowCloudCoverAvg           *float64 `json:"low_cloud_cover_avg,omitempty"`
	MediumCloudCoverAvg        *float64 `json:"medium_cloud_cover_avg,omitempty"`
	MiddleAndLowCloudCoverAvg  *float64 `json:"middle_and_low_cloud_cover_avg,omitempty"`
	TotalCloudCoverAvg         *float64 `json:"total_cloud_cover_avg,omitempty"`
	GustMax                    *float64 `json:"gust_max,omitempty"`
	MaxWindSpeedMax            *float64 `json:"max_wind_speed_max,omitempty"`
	PoPAvg                     *float64 `json:"pop_avg,omitempty"`
	ProbabilityThunderstormAvg *float64 `json:"probability_thunderstorm_avg,omitempty"`
	PotentialPrecipFormMode    *float64 `json:"potential_precipitation_form_mode,omitempty"`
	PotentialPrecipTypeMode    *float64 `json:"potential_precipitation_type_mode,omitempty"`
	PrecipFormMode             *float64 `json:"precipitation_form_mode,omitempty"`
	PrecipTypeMode             *float64 `json:"precipitation_type_mode,omitempty"`
	RadiationGlobalAvg         *float64 `json:"radiation_global_avg,omitempty"`
	RadiationLWAvg             *float64 `json:"radiation_lw_avg,omitempty"`
	WeatherNumberMode          *float64 `json:"weather_number_mode,omitempty"`
	WeatherSymbol3Mode         *float64 `json:"weather_symbol3_mode,omitempty"`
	WindUMSAvg                 *float64 `json:"wind_ums_avg,omitempty"`
	WindVMSAvg                 *float64 `json:"wind_vms_avg,omitempty"`
	WindVectorMSAvg            *float64 `json:"wind_vector_ms_avg,omitempty"`
	UVIndexAvg                 *float64 `json:"uv_index_avg,omitempty"`
}

// HourlyForecast is a near-passthrough of one forecast hour for a grid cell.
type HourlyForecast struct {
	GridLat     float64   `json:"grid_lat"`
	GridLon     float64   `json:"grid_lon"`
	Time        time.Time `json:"time"`
	FetchedAt   time.Time `json:"fetched_at"`
	Temperature *float64  `json:"temperature,omitempty"`
	WindSpeed   *float64  `json:"wind_speed,omitempty"`
	WindDir     *float64  `json:"wind_direction,omitempty"`
	Humidity    *float64  `json:"humidity,omitempty"`
	Precip1h    *float64  `json:"precipitation_1h,omitempty"`
	Symbol      *string   `json:"symbol,omitempty"`
	UVCumulated *float64  `json:"uv_cumulated,omitempty"`
}

// HasAnyValue reports whether the hourly entry carries any data at all.
func (h *HourlyForecast) HasAnyValue() bool {
	return h.Temperature != nil || h.WindSpeed != nil || h.WindDir != nil ||
		h.Humidity != nil || h.Precip1h != nil || h.Symbol != nil
}

// UVPoint is one sample from the supplementary UV timeseries source.
type UVPoint struct {
	Time        time.Time `json:"time"`
	UVCumulated float64   `json:"uv_cumulated"`
}

// CurrentWeather couples the nearest station with its latest observation.
type CurrentWeather struct {
	Station     Station     `json:"station"`
	DistanceKM  float64     `json:"distance_km"`
	Observation Observation `json:"observation"`
}

// WeatherResponse is the assembled answer to a coordinate query.
type WeatherResponse struct {
	Current  CurrentWeather   `json:"current"`
	Hourly   []HourlyForecast `json:"hourly"`
	Forecast []DailyForecast  `json:"forecast"`
}
