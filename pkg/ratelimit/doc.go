// Package ratelimit provides client-side request pacing for weather provider
// APIs.
//
// This is distinct from the dispatcher's rate-limit fallback handling: the
// limiter here paces outbound calls so a provider's quota is not burned
// through in the first place, while the dispatcher reacts to 429 responses
// that slip through by flagging the provider and switching to another.
//
// Usage:
//
//	// burst of 10, then one request per second
//	limiter := ratelimit.NewTokenBucket(10, time.Second)
//
//	limiter.Wait() // block until a request is allowed
//	// proceed with request
package ratelimit
