package fmi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/pkorhonen/ilmaris/internal/weather"
)

const (
	observationQueryID = "fmi::observations::weather::timevaluepair"
	forecastQueryID    = "fmi::forecast::edited::weather::scandinavia::point::timevaluepair"

	// FMI returns empty results without an explicit area filter; this bbox
	// covers Finland, where the observation network lives.
	observationBBox = "19,59,32,71"
)

// Client talks to the FMI open data WFS endpoint and, when an API key is
// configured, the separate UV timeseries endpoint.
type Client struct {
	baseURL       string
	apiKey        string
	timeseriesURL string
	forecastDays  int
	hourlyHours   int
	httpCfg       HTTPClientConfig
	circuit       *gobreaker.CircuitBreaker
	logger        *zap.SugaredLogger
}

// NewClient creates a Client. forecastDays and hourlyHours bound the stored
// query time windows; apiKey may be empty, which disables the UV source.
func NewClient(httpClient *http.Client, baseURL, apiKey, timeseriesURL string, forecastDays, hourlyHours int, logger *zap.SugaredLogger) *Client {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "fmi",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &Client{
		baseURL:       baseURL,
		apiKey:        apiKey,
		timeseriesURL: timeseriesURL,
		forecastDays:  forecastDays,
		hourlyHours:   hourlyHours,
		httpCfg: HTTPClientConfig{
			Client: httpClient,
			Backoff: BackoffConfig{
				MaxRetries:      3,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
		},
		circuit: cb,
		logger:  logger,
	}
}

// FetchObservations pulls the all-station observation stored query for the
// configured bounding box and parses it.
func (c *Client) FetchObservations(ctx context.Context) (*ObservationResult, error) {
	params := url.Values{
		"service":        {"WFS"},
		"version":        {"2.0.0"},
		"request":        {"getFeature"},
		"storedquery_id": {observationQueryID},
		"timestep":       {"10"},
		"maxlocations":   {"200"},
		"bbox":           {observationBBox},
	}

	data, err := c.fetch(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("fetch observations: %w", err)
	}
	return ParseObservations(data)
}

// FetchForecast pulls a multi-day point forecast for a grid coordinate and
// aggregates it to daily records.
func (c *Client) FetchForecast(ctx context.Context, lat, lon float64) ([]weather.DailyForecast, error) {
	start, end := forecastDaysWindowUTC(c.forecastDays)

	data, err := c.fetch(ctx, c.pointForecastParams(lat, lon, start, end))
	if err != nil {
		return nil, fmt.Errorf("fetch forecast: %w", err)
	}
	return ParseForecast(data, lat, lon)
}

// FetchHourlyForecast pulls a short-horizon point forecast and keeps it at
// hourly resolution.
func (c *Client) FetchHourlyForecast(ctx context.Context, lat, lon float64, limit int) ([]weather.HourlyForecast, error) {
	hours := limit
	if hours <= 0 {
		hours = c.hourlyHours
	}
	start, end := forecastHoursWindowUTC(hours)

	data, err := c.fetch(ctx, c.pointForecastParams(lat, lon, start, end))
	if err != nil {
		return nil, fmt.Errorf("fetch hourly forecast: %w", err)
	}
	return ParseHourlyForecast(data, lat, lon, hours)
}

// FetchUVForecast queries the apikey-gated UV timeseries endpoint. With no
// key configured the source is simply absent: no error, no data.
func (c *Client) FetchUVForecast(ctx context.Context, lat, lon float64) ([]weather.UVPoint, error) {
	if c.apiKey == "" {
		return nil, nil
	}

	start := time.Now().UTC().Truncate(time.Hour).Format(time.RFC3339)
	buildRequest := func() (*http.Request, error) {
		reqURL := fmt.Sprintf(
			"%s/fmi-apikey/%s/timeseries?param=epochtime,uvCumulated&producer=uv&format=json&latlon=%f,%f&timesteps=30&starttime=%s",
			c.timeseriesURL, c.apiKey, lat, lon, start,
		)
		return http.NewRequest(http.MethodGet, reqURL, nil)
	}

	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.circuit, buildRequest)
	if err != nil {
		return nil, fmt.Errorf("fetch UV forecast: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read UV response: %w", err)
	}

	var raw []struct {
		EpochTime   int64    `json:"epochtime"`
		UVCumulated *float64 `json:"uvCumulated"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		// A malformed UV body degrades to "no supplementary data" rather than
		// failing the request it was meant to enrich.
		c.logger.Warnw("failed to parse UV response", "error", err)
		return nil, nil
	}

	var points []weather.UVPoint
	for _, r := range raw {
		if r.UVCumulated == nil {
			continue
		}
		points = append(points, weather.UVPoint{
			Time:        time.Unix(r.EpochTime, 0).UTC(),
			UVCumulated: *r.UVCumulated,
		})
	}
	return points, nil
}

func (c *Client) pointForecastParams(lat, lon float64, start, end string) url.Values {
	return url.Values{
		"service":        {"WFS"},
		"version":        {"2.0.0"},
		"request":        {"getFeature"},
		"storedquery_id": {forecastQueryID},
		"latlon":         {fmt.Sprintf("%f,%f", lat, lon)},
		"timestep":       {"60"},
		"starttime":      {start},
		"endtime":        {end},
	}
}

// forecastDaysWindowUTC returns an inclusive window covering today plus the
// next days-1 days, anchored to the current hour.
func forecastDaysWindowUTC(days int) (start, end string) {
	if days < 1 {
		days = 1
	}
	startTime := time.Now().UTC().Truncate(time.Hour)
	endTime := startTime.AddDate(0, 0, days-1)
	return startTime.Format(time.RFC3339), endTime.Format(time.RFC3339)
}

// forecastHoursWindowUTC returns an inclusive window covering the current
// hour plus the next hours-1 hours.
func forecastHoursWindowUTC(hours int) (start, end string) {
	if hours < 1 {
		hours = 1
	}
	startTime := time.Now().UTC().Truncate(time.Hour)
	endTime := startTime.Add(time.Duration(hours-1) * time.Hour)
	return startTime.Format(time.RFC3339), endTime.Format(time.RFC3339)
}

func (c *Client) fetch(ctx context.Context, params url.Values) ([]byte, error) {
	buildRequest := func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	}

	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}
