package providers

import (
	"fmt"
	"time"

	"weathercollect/pkg/apikeys"
	"weathercollect/pkg/logger"
	"weathercollect/pkg/ratelimit"
	"weathercollect/pkg/weather"
)

// Options controls adapter construction.
type Options struct {
	Timeout           time.Duration
	RequestsPerMinute int
	BurstSize         int
}

// Build constructs adapters in the given priority order, resolving each
// provider's API key through the key manager. Providers without a key are
// skipped with a warning; at least one adapter must survive.
func Build(priority []string, keys *apikeys.Manager, opts Options) ([]weather.ProviderAdapter, error) {
	log := logger.GetLogger()

	var adapters []weather.ProviderAdapter
	for _, name := range priority {
		cred, err := keys.Retrieve(name)
		if err != nil {
			log.WarnWithFields("Skipping provider without API key", map[string]interface{}{
				"provider": name,
			})
			continue
		}

		// Each adapter gets its own limiter so one provider's pacing
		// never starves another
		limiter := ratelimit.NewTokenBucket(opts.BurstSize, time.Minute/time.Duration(opts.RequestsPerMinute))

		var adapter weather.ProviderAdapter
		switch name {
		case "visualcrossing":
			adapter = NewVisualCrossing(cred.Key, opts.Timeout, limiter)
		case "openweather":
			adapter = NewOpenWeather(cred.Key, opts.Timeout, limiter)
		case "qweather":
			adapter = NewQWeather(cred.Key, opts.Timeout, limiter)
		default:
			return nil, fmt.Errorf("unknown provider: %s", name)
		}
		adapters = append(adapters, adapter)
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no providers available: no API keys configured for %v", priority)
	}
	return adapters, nil
}
