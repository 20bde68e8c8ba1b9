package provider

import "fmt"

// RateLimitError marks a provider-side ban or throttle. The worker reacts
// with a long cooldown instead of the ordinary linear backoff. The original
// transport error is preserved as the cause.
type RateLimitError struct {
	Cause error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("provider rate limited: %v", e.Cause)
}

func (e *RateLimitError) Unwrap() error { return e.Cause }

// ValidationError marks a fetch whose rows failed validation (missing or
// future-dated rows). No rows from the batch are handed to the caller.
type ValidationError struct {
	Code   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid bar data for %s: %s", e.Code, e.Reason)
}
