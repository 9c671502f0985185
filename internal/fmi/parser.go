package fmi

import (
	"encoding/xml"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/pkorhonen/ilmaris/internal/common"
	"github.com/pkorhonen/ilmaris/internal/weather"
)

// WFS response mapping. encoding/xml matches on local element names here;
// the FMI namespaces are stable enough that we do not pin the full URIs.
type featureCollection struct {
	XMLName xml.Name `xml:"FeatureCollection"`
	Members []member `xml:"member"`
}

type member struct {
	Observation pointTimeSeries `xml:"PointTimeSeriesObservation"`
}

type pointTimeSeries struct {
	ObservedProperty  observedProperty  `xml:"observedProperty"`
	FeatureOfInterest featureOfInterest `xml:"featureOfInterest"`
	Result            tsResult          `xml:"result"`
}

type observedProperty struct {
	Href string `xml:"http://www.w3.org/1999/xlink href,attr"`
}

type featureOfInterest struct {
	Feature spatialFeature `xml:"SF_SpatialSamplingFeature"`
}

type spatialFeature struct {
	SampledFeature sampledFeature `xml:"sampledFeature"`
	Shape          shape          `xml:"shape"`
}

type sampledFeature struct {
	LocationCollection locationCollection `xml:"LocationCollection"`
}

type locationCollection struct {
	Members []locationMember `xml:"member"`
}

type locationMember struct {
	Location location `xml:"Location"`
}

type location struct {
	Identifier string    `xml:"identifier"`
	Names      []gmlName `xml:"name"`
}

type gmlName struct {
	CodeSpace string `xml:"codeSpace,attr"`
	Value     string `xml:",chardata"`
}

type shape struct {
	Point      gmlPoint   `xml:"Point"`
	MultiPoint multiPoint `xml:"MultiPoint"`
}

type gmlPoint struct {
	Name string `xml:"name"`
	Pos  string `xml:"pos"`
}

type multiPoint struct {
	Points []gmlPoint `xml:"pointMembers>Point"`
}

type tsResult struct {
	TimeSeries measurementTimeSeries `xml:"MeasurementTimeseries"`
}

type measurementTimeSeries struct {
	Points []measurementPoint `xml:"point"`
}

type measurementPoint struct {
	TVP timeValuePair `xml:"MeasurementTVP"`
}

type timeValuePair struct {
	Time  string `xml:"time"`
	Value string `xml:"value"`
}

// ObservationResult is the output of ParseObservations: station metadata plus
// per-(station, time) observation records, both deterministically ordered.
type ObservationResult struct {
	Stations     []weather.Station
	Observations []weather.Observation
}

// ParseObservations decodes an all-station WFS observation response. Each
// member carries one parameter's full timeseries for one station; samples are
// regrouped by (station, timestamp). Individual samples with an unparseable
// timestamp or a NaN value are skipped; an all-absent observation is dropped.
func ParseObservations(data []byte) (*ObservationResult, error) {
	var fc featureCollection
	if err := xml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("unmarshal WFS response: %w", err)
	}

	if len(fc.Members) == 0 {
		return &ObservationResult{}, nil
	}

	type obsKey struct {
		fmisid int
		t      time.Time
	}
	stations := make(map[int]*weather.Station)
	obs := make(map[obsKey]*weather.Observation)

	for _, m := range fc.Members {
		// Upstream casing has varied over the years; normalize before dispatch.
		param := strings.ToLower(extractParam(m.Observation.ObservedProperty.Href))
		st := extractStation(m.Observation)

		if _, ok := stations[st.FMISID]; !ok {
			stations[st.FMISID] = &st
		}

		for _, pt := range m.Observation.Result.TimeSeries.Points {
			t, err := time.Parse(time.RFC3339, pt.TVP.Time)
			if err != nil {
				continue
			}
			val := parseValue(pt.TVP.Value)

			key := obsKey{fmisid: st.FMISID, t: t}
			o, ok := obs[key]
			if !ok {
				o = &weather.Observation{FMISID: st.FMISID, ObservedAt: t}
				obs[key] = o
			}
			assignObservationParam(o, param, val)
		}
	}

	result := &ObservationResult{}
	for _, s := range stations {
		result.Stations = append(result.Stations, *s)
	}
	for _, o := range obs {
		if !o.HasAnyValue() {
			continue
		}
		result.Observations = append(result.Observations, *o)
	}

	// Upstream member order is not guaranteed; sort so downstream consumers
	// see a stable ordering.
	slices.SortFunc(result.Stations, func(a, b weather.Station) int {
		return a.FMISID - b.FMISID
	})
	slices.SortFunc(result.Observations, func(a, b weather.Observation) int {
		if c := a.ObservedAt.Compare(b.ObservedAt); c != 0 {
			return c
		}
		return a.FMISID - b.FMISID
	})

	return result, nil
}

// assignObservationParam dispatches a parameter to its typed field, covering
// the synonyms upstream has used across schema revisions. Anything unknown
// goes into the open Extra map so future parameters are not lost.
func assignObservationParam(o *weather.Observation, param string, val *float64) {
	switch param {
	case "temperature", "t2m":
		o.Temperature = val
	case "windspeedms", "ws_10min":
		o.WindSpeed = val
	case "windgust", "gustspeed", "maximumwind", "wg_10min":
		o.WindGust = val
	case "winddirection", "wd_10min":
		o.WindDir = val
	case "humidity", "rh":
		o.Humidity = val
	case "dewpoint", "td":
		o.DewPoint = val
	case "pressure", "p_sea":
		o.Pressure = val
	case "precipitation1h", "precipitationamount", "r_1h":
		o.Precip1h = val
	case "precipitationintensity", "ri_10min":
		o.PrecipIntensity = val
	case "snowdepth", "snow_aws":
		o.SnowDepth = val
	case "visibility", "vis":
		o.Visibility = val
	case "totalcloudcover", "cloudcover", "n_man":
		o.TotalCloudCover = val
	case "weather", "weathercode", "wawa":
		o.WeatherCode = val
	default:
		if val != nil {
			if o.Extra == nil {
				o.Extra = make(map[string]float64)
			}
			o.Extra[param] = *val
		}
	}
}

// ParseForecast decodes a point-forecast WFS response and collapses the
// hourly samples into one DailyForecast per UTC calendar date.
func ParseForecast(data []byte, gridLat, gridLon float64) ([]weather.DailyForecast, error) {
	var fc featureCollection
	if err := xml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("unmarshal WFS forecast: %w", err)
	}

	samples := collectSamples(fc)
	return aggregateDaily(gridLat, gridLon, samples), nil
}

// ParseHourlyForecast decodes a point-forecast WFS response into per-hour
// passthrough records, sorted by time and capped at limit.
func ParseHourlyForecast(data []byte, gridLat, gridLon float64, limit int) ([]weather.HourlyForecast, error) {
	var fc featureCollection
	if err := xml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("unmarshal WFS hourly forecast: %w", err)
	}

	byTime := make(map[time.Time]*weather.HourlyForecast)
	for param, entries := range collectSamples(fc) {
		for _, e := range entries {
			h, ok := byTime[e.t]
			if !ok {
				h = &weather.HourlyForecast{GridLat: gridLat, GridLon: gridLon, Time: e.t}
				byTime[e.t] = h
			}
			v := e.val
			switch param {
			case "temperature":
				h.Temperature = &v
			case "windspeedms":
				h.WindSpeed = &v
			case "winddirection":
				h.WindDir = &v
			case "humidity":
				h.Humidity = &v
			case "precipitation1h":
				h.Precip1h = &v
			case "weathersymbol3":
				s := strconv.Itoa(int(math.Round(v)))
				h.Symbol = &s
			}
		}
	}

	result := make([]weather.HourlyForecast, 0, len(byTime))
	for _, h := range byTime {
		if !h.HasAnyValue() {
			continue
		}
		result = append(result, *h)
	}
	slices.SortFunc(result, func(a, b weather.HourlyForecast) int {
		return a.Time.Compare(b.Time)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// sample is one (timestamp, value) pair of a parameter's timeseries. Absent
// values never become samples; absence stays explicit at the record level.
type sample struct {
	t   time.Time
	val float64
}

func collectSamples(fc featureCollection) map[string][]sample {
	samples := make(map[string][]sample)
	for _, m := range fc.Members {
		param := strings.ToLower(extractParam(m.Observation.ObservedProperty.Href))
		for _, pt := range m.Observation.Result.TimeSeries.Points {
			t, err := time.Parse(time.RFC3339, pt.TVP.Time)
			if err != nil {
				continue
			}
			val := parseValue(pt.TVP.Value)
			if val == nil {
				continue
			}
			samples[param] = append(samples[param], sample{t: t, val: *val})
		}
	}
	return samples
}

// extractParam pulls the parameter token out of an observedProperty href.
// Current responses carry a "param=" query fragment; older ones only had the
// parameter as the last path segment, so both forms are accepted.
func extractParam(href string) string {
	for _, part := range strings.Split(href, "&") {
		if strings.HasPrefix(part, "param=") {
			return strings.TrimPrefix(part, "param=")
		}
	}
	parts := strings.Split(href, "/")
	return parts[len(parts)-1]
}

// extractStation resolves station identity and position from a member's
// feature-of-interest block. Name preference order: a display-name codespace
// entry that is not purely numeric, any non-WMO metadata entry, the WMO code,
// the shape point's own name, and finally the numeric id as a string.
func extractStation(pts pointTimeSeries) weather.Station {
	var st weather.Station

	foi := pts.FeatureOfInterest.Feature
	for _, lm := range foi.SampledFeature.LocationCollection.Members {
		loc := lm.Location
		st.FMISID, _ = strconv.Atoi(loc.Identifier)

		var fallback string
		for _, n := range loc.Names {
			value := strings.TrimSpace(n.Value)
			if value == "" {
				continue
			}
			switch {
			case isNameCodeSpace(n.CodeSpace):
				// Upstream sometimes puts a numeric code where the display
				// name belongs; keep looking for a better candidate then.
				if st.Name == "" || common.IsDigits(st.Name) {
					st.Name = value
				}
			case isWMOCodeSpace(n.CodeSpace):
				st.WMOCode = value
				if fallback == "" {
					fallback = value
				}
			case fallback == "":
				fallback = value
			}
		}
		if st.Name == "" {
			st.Name = fallback
		}
	}

	pos := foi.Shape.Point.Pos
	if pos == "" && len(foi.Shape.MultiPoint.Points) > 0 {
		pos = foi.Shape.MultiPoint.Points[0].Pos
	}
	if st.Name == "" {
		st.Name = strings.TrimSpace(foi.Shape.Point.Name)
	}
	if st.Name == "" && len(foi.Shape.MultiPoint.Points) > 0 {
		st.Name = strings.TrimSpace(foi.Shape.MultiPoint.Points[0].Name)
	}
	if st.Name == "" && st.WMOCode != "" {
		st.Name = st.WMOCode
	}
	if st.Name == "" {
		st.Name = strconv.Itoa(st.FMISID)
	}

	st.Lat, st.Lon = parsePos(pos)
	return st
}

func isNameCodeSpace(codeSpace string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(codeSpace)), "/locationcode/name")
}

func isWMOCodeSpace(codeSpace string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(codeSpace)), "/locationcode/wmo")
}

// parsePos splits a GML "lat lon" position.
func parsePos(pos string) (float64, float64) {
	parts := strings.Fields(pos)
	if len(parts) != 2 {
		return 0, 0
	}
	lat, _ := strconv.ParseFloat(parts[0], 64)
	lon, _ := strconv.ParseFloat(parts[1], 64)
	return lat, lon
}

// parseValue turns a raw TVP value into a float, mapping the upstream "NaN"
// sentinel and anything unparseable to explicit absence, never zero.
func parseValue(s string) *float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return nil
	}
	return &v
}
