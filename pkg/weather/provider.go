package weather

import "context"

// ProviderAdapter abstracts one external weather API. Implementations must
// tolerate concurrent invocation from multiple workers and must not mutate
// shared state outside their own call.
//
// Fetch returns the daily records for one (city, year). Failures are
// classified through the pkg/errors taxonomy: rate_limited errors make the
// dispatcher flag the provider and fall back, transient errors are retried
// with backoff, permanent errors skip straight to the next provider.
type ProviderAdapter interface {
	Name() string
	Fetch(ctx context.Context, city City, year int) ([]Record, error)
}

// RecordWriter is the durable-storage collaborator invoked on each success.
// The dispatcher calls Write with the fetched records after a successful
// fetch and before the task is marked completed.
type RecordWriter interface {
	Write(city City, year int, records []Record) error
}
