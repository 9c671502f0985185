package httpapi

import (
	"errors"
	"math"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/kelvins/geocoder"
	"go.uber.org/zap"

	"github.com/pkorhonen/ilmaris/internal/store"
	"github.com/pkorhonen/ilmaris/internal/weather"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app. geocoderKey may
// be empty, in which case the city/country query form is unavailable and
// callers must pass coordinates.
func RegisterRoutes(app *fiber.App, service *weather.Service, geocoderKey string, logger *zap.SugaredLogger) {
	if geocoderKey != "" {
		geocoder.ApiKey = geocoderKey
	}

	v1 := app.Group("/api/v1")

	v1.Get("/weather", func(c *fiber.Ctx) error {
		coords, err := parseCoordinateQuery(c, geocoderKey != "")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		result, err := service.GetWeather(c.Context(), *coords.Lat, *coords.Lon)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no weather data for requested location")
			}
			logger.Errorw("get weather failed", "error", err, "lat", *coords.Lat, "lon", *coords.Lon)
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch weather data")
		}

		c.Set(fiber.HeaderCacheControl, "public, max-age=300")
		return c.JSON(newWeatherJSON(result))
	})
}

// coordinateQuery holds the validated query parameters for the read endpoint.
type coordinateQuery struct {
	Lat *float64 `validate:"required,gte=-90,lte=90"`
	Lon *float64 `validate:"required,gte=-180,lte=180"`
}

// parseCoordinateQuery accepts either lat/lon directly or, when geocoding is
// configured, a city (and optional country) resolved to coordinates.
func parseCoordinateQuery(c *fiber.Ctx, geocodingEnabled bool) (coordinateQuery, error) {
	var q coordinateQuery

	latStr := c.Query("lat")
	lonStr := c.Query("lon")

	if latStr == "" && lonStr == "" && geocodingEnabled && c.Query("city") != "" {
		address := geocoder.Address{
			City:    c.Query("city"),
			Country: c.Query("country"),
		}
		loc, err := geocoder.Geocoding(address)
		if err != nil {
			return q, errors.New("could not resolve city to coordinates")
		}
		q.Lat = &loc.Latitude
		q.Lon = &loc.Longitude
		return q, validate.Struct(q)
	}

	if latStr != "" {
		lat, err := strconv.ParseFloat(latStr, 64)
		if err != nil {
			return q, errors.New("invalid lat parameter")
		}
		q.Lat = &lat
	}
	if lonStr != "" {
		lon, err := strconv.ParseFloat(lonStr, 64)
		if err != nil {
			return q, errors.New("invalid lon parameter")
		}
		q.Lon = &lon
	}

	if err := validate.Struct(q); err != nil {
		return q, errors.New("lat and lon query parameters are required and must be valid coordinates")
	}
	return q, nil
}

// weatherJSON is the wire shape of the read endpoint.
type weatherJSON struct {
	Station  stationJSON              `json:"station"`
	Current  currentJSON              `json:"current"`
	Hourly   []weather.HourlyForecast `json:"hourly_forecast"`
	Forecast []weather.DailyForecast  `json:"daily_forecast"`
}

type stationJSON struct {
	Name       string  `json:"name"`
	DistanceKM float64 `json:"distance_km"`
}

type currentJSON struct {
	weather.Observation
	FeelsLike *float64 `json:"feels_like,omitempty"`
}

func newWeatherJSON(result *weather.WeatherResponse) weatherJSON {
	return weatherJSON{
		Station: stationJSON{
			Name:       result.Current.Station.Name,
			DistanceKM: result.Current.DistanceKM,
		},
		Current: currentJSON{
			Observation: result.Current.Observation,
			FeelsLike: feelsLike(
				result.Current.Observation.Temperature,
				result.Current.Observation.WindSpeed,
			),
		},
		Hourly:   result.Hourly,
		Forecast: result.Forecast,
	}
}

// feelsLike is the standard wind chill formula, defined for temperatures at
// or below 10 degrees C and wind at or above 4.8 km/h; outside that range the
// plain temperature is returned.
func feelsLike(temp, wind *float64) *float64 {
	if temp == nil || wind == nil {
		return temp
	}
	t := *temp
	w := *wind * 3.6
	if t > 10 || w < 4.8 {
		return temp
	}
	fl := 13.12 + 0.6215*t - 11.37*math.Pow(w, 0.16) + 0.3965*t*math.Pow(w, 0.16)
	return &fl
}
