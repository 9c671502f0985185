package fmi

import (
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/pkorhonen/ilmaris/internal/weather"
)

// aggKind selects how a parameter's hourly samples collapse into one daily
// value. Getting the kind wrong silently corrupts the forecast: compass
// bearings cannot be averaged arithmetically and categorical codes cannot be
// averaged at all.
type aggKind int

const (
	aggMean aggKind = iota
	aggCircularMean
	aggSum
	aggMax
	aggMode
)

// dailyRule binds a forecast parameter to its aggregation kind and the
// DailyForecast field it fills. Adding a parameter is one registration here.
type dailyRule struct {
	kind   aggKind
	assign func(f *weather.DailyForecast, v float64)
}

var dailyRules = map[string]dailyRule{
	"windspeedms":            {aggMean, func(f *weather.DailyForecast, v float64) { f.WindSpeedAvg = &v }},
	"winddirection":          {aggCircularMean, func(f *weather.DailyForecast, v float64) { f.WindDirMean = &v }},
	"humidity":               {aggMean, func(f *weather.DailyForecast, v float64) { f.HumidityAvg = &v }},
	"precipitation1h":        {aggSum, func(f *weather.DailyForecast, v float64) { f.PrecipSum = &v }},
	"dewpoint":               {aggMean, func(f *weather.DailyForecast, v float64) { f.DewPointAvg = &v }},
	"fogintensity":           {aggMean, func(f *weather.DailyForecast, v float64) { f.FogIntensityAvg = &v }},
	"frostprobability":       {aggMean, func(f *weather.DailyForecast, v float64) { f.FrostProbabilityAvg = &v }},
	"severefrostprobability": {aggMean, func(f *weather.DailyForecast, v float64) { f.SevereFrostProbabilityAvg = &v }},
	"geopheight":             {aggMean, func(f *weather.DailyForecast, v float64) { f.GeopHeightAvg = &v }},
	"pressure":               {aggMean, func(f *weather.DailyForecast, v float64) { f.PressureAvg = &v }},
	"highcloudcover":         {aggMean, func(f *weather.DailyForecast, v float64) { f.HighCloudCoverAvg = &v }},
	"lowcloudcover":          {aggMean, func(f *weather.DailyForecast, v float64) { f.LowCloudCoverAvg = &v }},
	"mediumcloudcover":       {aggMean, func(f *weather.DailyForecast, v float64) { f.MediumCloudCoverAvg = &v }},
	"middleandlowcloudcover": {aggMean, func(f *weather.DailyForecast, v float64) { f.MiddleAndLowCloudCoverAvg = &v }},
	"totalcloudcover":        {aggMean, func(f *weather.DailyForecast, v float64) { f.TotalCloudCoverAvg = &v }},
	"hourlymaximumgust":      {aggMax, func(f *weather.DailyForecast, v float64) { f.GustMax = &v }},
	"hourlymaximumwindspeed": {aggMax, func(f *weather.DailyForecast, v float64) { f.MaxWindSpeedMax = &v }},
	"pop":                    {aggMean, func(f *weather.DailyForecast, v float64) { f.PoPAvg = &v }},
	"probabilitythunderstorm": {aggMean, func(f *weather.DailyForecast, v float64) {
		f.ProbabilityThunderstormAvg = &v
	}},
	"potentialprecipitationform": {aggMode, func(f *weather.DailyForecast, v float64) { f.PotentialPrecipFormMode = &v }},
	"potentialprecipitationtype": {aggMode, func(f *weather.DailyForecast, v float64) { f.PotentialPrecipTypeMode = &v }},
	"precipitationform":          {aggMode, func(f *weather.DailyForecast, v float64) { f.PrecipFormMode = &v }},
	"precipitationtype":          {aggMode, func(f *weather.DailyForecast, v float64) { f.PrecipTypeMode = &v }},
	"radiationglobal":            {aggMean, func(f *weather.DailyForecast, v float64) { f.RadiationGlobalAvg = &v }},
	"radiationlw":                {aggMean, func(f *weather.DailyForecast, v float64) { f.RadiationLWAvg = &v }},
	"weathernumber":              {aggMode, func(f *weather.DailyForecast, v float64) { f.WeatherNumberMode = &v }},
	"weathersymbol3":             {aggMode, func(f *weather.DailyForecast, v float64) { f.WeatherSymbol3Mode = &v }},
	"windums":                    {aggMean, func(f *weather.DailyForecast, v float64) { f.WindUMSAvg = &v }},
	"windvms":                    {aggMean, func(f *weather.DailyForecast, v float64) { f.WindVMSAvg = &v }},
	"windvectorms":               {aggMean, func(f *weather.DailyForecast, v float64) { f.WindVectorMSAvg = &v }},
}

// aggregateDaily buckets samples into UTC calendar days and applies the rule
// registry per parameter. Temperature is special-cased because it produces
// three values (high, low, avg); the weather symbol additionally yields the
// string Symbol for clients that want the code as text.
func aggregateDaily(gridLat, gridLon float64, samples map[string][]sample) []weather.DailyForecast {
	type dayBucket map[string][]float64
	days := make(map[string]dayBucket)

	for param, entries := range samples {
		for _, e := range entries {
			key := e.t.UTC().Format("2006-01-02")
			b, ok := days[key]
			if !ok {
				b = make(dayBucket)
				days[key] = b
			}
			b[param] = append(b[param], e.val)
		}
	}

	keys := make([]string, 0, len(days))
	for k := range days {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	now := time.Now()
	forecasts := make([]weather.DailyForecast, 0, len(keys))
	for _, k := range keys {
		b := days[k]
		date, _ := time.Parse("2006-01-02", k)

		f := weather.DailyForecast{
			GridLat:   gridLat,
			GridLon:   gridLon,
			Date:      date,
			FetchedAt: now,
		}

		if temps := b["temperature"]; len(temps) > 0 {
			hi := slices.Max(temps)
			lo := slices.Min(temps)
			f.TempHigh = &hi
			f.TempLow = &lo
			f.TempAvg = mean(temps)
		}

		for param, rule := range dailyRules {
			var v *float64
			switch rule.kind {
			case aggMean:
				v = mean(b[param])
			case aggCircularMean:
				v = circularMean(b[param])
			case aggSum:
				v = sum(b[param])
			case aggMax:
				v = maxOf(b[param])
			case aggMode:
				v = modeRounded(b[param])
			}
			if v != nil {
				rule.assign(&f, *v)
			}
		}

		if f.WeatherSymbol3Mode != nil {
			s := strconv.Itoa(int(math.Round(*f.WeatherSymbol3Mode)))
			f.Symbol = &s
		}

		forecasts = append(forecasts, f)
	}
	return forecasts
}

func mean(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	total := 0.0
	for _, v := range values {
		total += v
	}
	avg := total / float64(len(values))
	return &avg
}

func sum(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	total := 0.0
	for _, v := range values {
		total += v
	}
	return &total
}

func maxOf(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	m := slices.Max(values)
	return &m
}

// modeRounded returns the most frequent rounded-integer value. Ties break
// toward the smaller code so the result is deterministic.
func modeRounded(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	counts := make(map[int]int)
	bestKey := 0
	bestCount := 0
	for _, v := range values {
		key := int(math.Round(v))
		counts[key]++
		if counts[key] > bestCount || (counts[key] == bestCount && key < bestKey) {
			bestKey = key
			bestCount = counts[key]
		}
	}
	m := float64(bestKey)
	return &m
}

// circularMean averages compass bearings via unit-vector summation,
// normalized to [0, 360). An arithmetic mean is wrong for angles: 350 and 10
// must average to 0, not 180. A zero-length resultant has no defined angle.
func circularMean(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	var sinSum, cosSum float64
	for _, v := range values {
		rad := v * math.Pi / 180.0
		sinSum += math.Sin(rad)
		cosSum += math.Cos(rad)
	}
	if sinSum == 0 && cosSum == 0 {
		return nil
	}
	m := math.Atan2(sinSum, cosSum) * 180.0 / math.Pi
	if m < 0 {
		m += 360.0
	}
	return &m
}
