package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	apperrors "weathercollect/pkg/errors"
	"weathercollect/pkg/ratelimit"
	"weathercollect/pkg/weather"
)

const openWeatherBaseURL = "https://history.openweathermap.org/data/2.5/aggregated/year"

// OpenWeather fetches yearly climate aggregates from the OpenWeatherMap
// history API. The endpoint returns one statistical entry per calendar
// day, which the adapter projects onto the requested year.
type OpenWeather struct {
	apiKey  string
	baseURL string
	http    *httpClient
}

// NewOpenWeather creates an adapter using the given API key.
func NewOpenWeather(apiKey string, timeout time.Duration, limiter ratelimit.Limiter) *OpenWeather {
	return &OpenWeather{
		apiKey:  apiKey,
		baseURL: openWeatherBaseURL,
		http:    newHTTPClient("openweather", timeout, limiter),
	}
}

func (p *OpenWeather) Name() string {
	return "openweather"
}

func (p *OpenWeather) Fetch(ctx context.Context, city weather.City, year int) ([]weather.Record, error) {
	if p.apiKey == "" {
		return nil, apperrors.Permanent("openweather: API key is not configured")
	}
	if city.Latitude == 0 && city.Longitude == 0 {
		return nil, apperrors.Permanent("openweather: coordinates required for %s", city.Name)
	}

	params := url.Values{}
	params.Set("lat", fmt.Sprintf("%f", city.Latitude))
	params.Set("lon", fmt.Sprintf("%f", city.Longitude))
	params.Set("appid", p.apiKey)

	body, err := p.http.get(ctx, p.baseURL+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var payload struct {
		Result []struct {
			Month int `json:"month"`
			Day   int `json:"day"`
			Temp  struct {
				Mean float64 `json:"mean"`
				Max  float64 `json:"record_max"`
				Min  float64 `json:"record_min"`
			} `json:"temp"`
			Humidity struct {
				Mean float64 `json:"mean"`
			} `json:"humidity"`
			Precipitation struct {
				Mean float64 `json:"mean"`
			} `json:"precipitation"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperrors.Transient("openweather: failed to decode response: %v", err)
	}
	if len(payload.Result) == 0 {
		return nil, apperrors.Permanent("openweather: no aggregate data for %s", city.Name)
	}

	records := make([]weather.Record, 0, len(payload.Result))
	for _, day := range payload.Result {
		date := time.Date(year, time.Month(day.Month), day.Day, 0, 0, 0, 0, time.UTC)
		// Feb 29 aggregates are dropped for non-leap years
		if int(date.Month()) != day.Month {
			continue
		}
		records = append(records, weather.Record{
			Date:     date.Format("2006-01-02"),
			Temp:     kelvinToCelsius(day.Temp.Mean),
			TempMax:  kelvinToCelsius(day.Temp.Max),
			TempMin:  kelvinToCelsius(day.Temp.Min),
			Humidity: day.Humidity.Mean,
			Precip:   day.Precipitation.Mean,
		})
	}
	if len(records) == 0 {
		return nil, apperrors.Permanent("openweather: no valid data for %s/%d", city.Name, year)
	}
	return records, nil
}

func kelvinToCelsius(k float64) float64 {
	if k == 0 {
		return 0
	}
	return k - 273.15
}
