package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	apperrors "weathercollect/pkg/errors"
	"weathercollect/pkg/ratelimit"
	"weathercollect/pkg/weather"
)

const qweatherBaseURL = "https://api.qweather.com/v7/historical/weather"

// QWeather fetches daily history from the QWeather API. The endpoint
// serves one day per request, so a year costs up to 366 calls; the shared
// limiter paces them and a mid-year rate limit surfaces immediately so
// the dispatcher can fall back. QWeather is therefore last in the default
// priority order.
type QWeather struct {
	apiKey  string
	baseURL string
	http    *httpClient
}

// NewQWeather creates an adapter using the given API key.
func NewQWeather(apiKey string, timeout time.Duration, limiter ratelimit.Limiter) *QWeather {
	return &QWeather{
		apiKey:  apiKey,
		baseURL: qweatherBaseURL,
		http:    newHTTPClient("qweather", timeout, limiter),
	}
}

func (p *QWeather) Name() string {
	return "qweather"
}

func (p *QWeather) Fetch(ctx context.Context, city weather.City, year int) ([]weather.Record, error) {
	if p.apiKey == "" {
		return nil, apperrors.Permanent("qweather: API key is not configured")
	}
	if city.Latitude == 0 && city.Longitude == 0 {
		return nil, apperrors.Permanent("qweather: coordinates required for %s", city.Name)
	}

	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)

	var records []weather.Record
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		record, err := p.fetchDay(ctx, city, day)
		if err != nil {
			return nil, err
		}
		if record != nil {
			records = append(records, *record)
		}
	}
	if len(records) == 0 {
		return nil, apperrors.Permanent("qweather: no valid data for %s/%d", city.Name, year)
	}
	return records, nil
}

func (p *QWeather) fetchDay(ctx context.Context, city weather.City, day time.Time) (*weather.Record, error) {
	params := url.Values{}
	params.Set("location", fmt.Sprintf("%.2f,%.2f", city.Longitude, city.Latitude))
	params.Set("date", day.Format("20060102"))
	params.Set("key", p.apiKey)

	body, err := p.http.get(ctx, p.baseURL+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var payload struct {
		Code         string `json:"code"`
		WeatherDaily struct {
			Date     string `json:"date"`
			TempMax  string `json:"tempMax"`
			TempMin  string `json:"tempMin"`
			Humidity string `json:"humidity"`
			Precip   string `json:"precip"`
		} `json:"weatherDaily"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperrors.Transient("qweather: failed to decode response: %v", err)
	}

	// QWeather signals errors through the payload code, not HTTP status
	switch payload.Code {
	case "200":
	case "429":
		return nil, apperrors.RateLimited("qweather: request quota exceeded")
	case "404":
		// No data for this day, skip it
		return nil, nil
	default:
		return nil, apperrors.Permanent("qweather: API code %s for %s on %s",
			payload.Code, city.Name, day.Format("2006-01-02"))
	}

	tempMax := parseNumber(payload.WeatherDaily.TempMax)
	tempMin := parseNumber(payload.WeatherDaily.TempMin)
	return &weather.Record{
		Date:     day.Format("2006-01-02"),
		Temp:     (tempMax + tempMin) / 2,
		TempMax:  tempMax,
		TempMin:  tempMin,
		Humidity: parseNumber(payload.WeatherDaily.Humidity),
		Precip:   parseNumber(payload.WeatherDaily.Precip),
	}, nil
}

func parseNumber(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
