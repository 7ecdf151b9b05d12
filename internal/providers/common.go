// Package providers implements the weather.ProviderAdapter interface for
// each supported external API.
//
// Adapters perform exactly one HTTP attempt per Fetch call and classify
// failures through the pkg/errors taxonomy. Retrying, provider fallback,
// and cooldown tracking all belong to the dispatcher; layering a second
// retry loop here would multiply the request volume against APIs that are
// already rate limiting us.
package providers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	apperrors "weathercollect/pkg/errors"
	"weathercollect/pkg/ratelimit"
)

// httpClient wraps an HTTP client with a circuit breaker and client-side
// pacing shared by all requests to one provider.
type httpClient struct {
	name    string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
	limiter ratelimit.Limiter
}

func newHTTPClient(name string, timeout time.Duration, limiter ratelimit.Limiter) *httpClient {
	return &httpClient{
		name:   name,
		client: &http.Client{Timeout: timeout},
		circuit: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 5,
			Interval:    1 * time.Minute,
			Timeout:     2 * time.Minute,
		}),
		limiter: limiter,
	}
}

// get performs one GET against url and returns the response body on a 2xx
// status. Failures come back classified: 429 as rate_limited, 5xx and
// transport errors as transient, other 4xx as permanent. An open circuit
// reads as transient so the dispatcher backs off instead of writing the
// provider off entirely.
func (c *httpClient) get(ctx context.Context, url string) ([]byte, error) {
	if c.limiter != nil {
		c.limiter.Wait()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := c.circuit.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, apperrors.Permanent("%s: failed to build request: %v", c.name, err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, apperrors.Transient("%s: request failed: %v", c.name, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			// Drain so the connection can be reused
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			return nil, apperrors.FromStatusCode(resp.StatusCode, c.name)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, apperrors.Transient("%s: failed to read response: %v", c.name, err)
		}
		return body, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, apperrors.Transient("%s: circuit breaker open", c.name)
		}
		return nil, err
	}
	return result.([]byte), nil
}
