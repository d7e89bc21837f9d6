package environment

import (
	"context"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/jengzang/farm-advisory-backend-go/internal/upstream"
)

// Weather is the current-day climate summary used for form auto-fill
type Weather struct {
	TemperatureMax float64
	TemperatureMin float64
	RainfallMM     float64
	HumidityPct    float64
}

// AverageTemperature returns the mean of the daily extremes, rounded to 0.1
func (w Weather) AverageTemperature() float64 {
	return math.Round((w.TemperatureMax+w.TemperatureMin)/2*10) / 10
}

// fallbackWeather is used when the forecast service cannot be reached
var fallbackWeather = Weather{
	TemperatureMax: 28.0,
	TemperatureMin: 18.0,
	RainfallMM:     2.0,
	HumidityPct:    65.0,
}

const defaultHumidity = 70.0

type openMeteoResponse struct {
	Daily struct {
		Time             []string   `json:"time"`
		TemperatureMax   []*float64 `json:"temperature_2m_max"`
		TemperatureMin   []*float64 `json:"temperature_2m_min"`
		PrecipitationSum []*float64 `json:"precipitation_sum"`
		HumidityMean     []*float64 `json:"relative_humidity_2m_mean"`
	} `json:"daily"`
}

// WeatherClient fetches daily forecasts from Open-Meteo
type WeatherClient struct {
	baseURL string
	http    *upstream.Client
}

// NewWeatherClient creates a new Open-Meteo client
func NewWeatherClient(baseURL string, http *upstream.Client) *WeatherClient {
	return &WeatherClient{baseURL: strings.TrimRight(baseURL, "/"), http: http}
}

// Today returns today's forecast summary for a location
func (c *WeatherClient) Today(ctx context.Context, lat, lon float64) (Weather, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	q.Set("daily", "temperature_2m_max,temperature_2m_min,precipitation_sum,relative_humidity_2m_mean")
	q.Set("forecast_days", "1")
	q.Set("timezone", "auto")

	var resp openMeteoResponse
	if err := c.http.GetJSON(ctx, "weather forecast", c.baseURL+"/v1/forecast?"+q.Encode(), &resp); err != nil {
		return Weather{}, err
	}

	d := resp.Daily
	if len(d.Time) == 0 {
		return Weather{}, &upstream.NetworkError{Kind: upstream.BadResponse, Op: "weather forecast"}
	}
	return Weather{
		TemperatureMax: first(d.TemperatureMax, fallbackWeather.TemperatureMax),
		TemperatureMin: first(d.TemperatureMin, fallbackWeather.TemperatureMin),
		RainfallMM:     first(d.PrecipitationSum, 0),
		HumidityPct:    first(d.HumidityMean, defaultHumidity),
	}, nil
}

// first returns the first non-null value of a daily series
func first(series []*float64, def float64) float64 {
	if len(series) == 0 || series[0] == nil {
		return def
	}
	return *series[0]
}
