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

const visualCrossingBaseURL = "https://weather.visualcrossing.com/VisualCrossingWebServices/rest/services/timeline"

// VisualCrossing fetches a full year of daily history in one timeline
// request. It is the preferred provider because a single call covers a
// whole task.
type VisualCrossing struct {
	apiKey  string
	baseURL string
	http    *httpClient
}

// NewVisualCrossing creates an adapter using the given API key.
func NewVisualCrossing(apiKey string, timeout time.Duration, limiter ratelimit.Limiter) *VisualCrossing {
	return &VisualCrossing{
		apiKey:  apiKey,
		baseURL: visualCrossingBaseURL,
		http:    newHTTPClient("visualcrossing", timeout, limiter),
	}
}

func (p *VisualCrossing) Name() string {
	return "visualcrossing"
}

// Fetch requests the daily records for one (city, year). Coordinates are
// the primary location form; city name with a country suffix is the
// fallback handled by location().
func (p *VisualCrossing) Fetch(ctx context.Context, city weather.City, year int) ([]weather.Record, error) {
	if p.apiKey == "" {
		return nil, apperrors.Permanent("visualcrossing: API key is not configured")
	}

	params := url.Values{}
	params.Set("unitGroup", "metric")
	params.Set("key", p.apiKey)
	params.Set("include", "days")
	params.Set("elements", "datetime,temp,tempmax,tempmin,humidity,precip,solarenergy")
	params.Set("contentType", "json")

	requestURL := fmt.Sprintf("%s/%s/%d-01-01/%d-12-31?%s",
		p.baseURL, url.PathEscape(location(city)), year, year, params.Encode())

	body, err := p.http.get(ctx, requestURL)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Days []struct {
			Datetime    string   `json:"datetime"`
			Temp        *float64 `json:"temp"`
			TempMax     *float64 `json:"tempmax"`
			TempMin     *float64 `json:"tempmin"`
			Humidity    *float64 `json:"humidity"`
			Precip      *float64 `json:"precip"`
			SolarEnergy *float64 `json:"solarenergy"`
		} `json:"days"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperrors.Transient("visualcrossing: failed to decode response: %v", err)
	}
	if len(payload.Days) == 0 {
		return nil, apperrors.Permanent("visualcrossing: no daily data for %s/%d", city.Name, year)
	}

	records := make([]weather.Record, 0, len(payload.Days))
	for _, day := range payload.Days {
		// Days without a temperature reading carry no usable signal
		if day.Temp == nil {
			continue
		}
		records = append(records, weather.Record{
			Date:        day.Datetime,
			Temp:        *day.Temp,
			TempMax:     deref(day.TempMax),
			TempMin:     deref(day.TempMin),
			Humidity:    deref(day.Humidity),
			Precip:      deref(day.Precip),
			SolarEnergy: deref(day.SolarEnergy),
		})
	}
	if len(records) == 0 {
		return nil, apperrors.Permanent("visualcrossing: no valid temperature data for %s/%d", city.Name, year)
	}
	return records, nil
}

// location picks the most precise location string available: coordinates
// when the city carries them, otherwise the city name qualified with the
// country.
func location(city weather.City) string {
	if city.Latitude != 0 || city.Longitude != 0 {
		return fmt.Sprintf("%f,%f", city.Latitude, city.Longitude)
	}
	return city.Name + ",China"
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
