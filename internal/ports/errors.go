package ports

import "errors"

// Standard application-level errors.
// Adapters wrap underlying infrastructure errors with these so callers can
// branch with errors.Is without knowing which library produced them.
var (
	// General Errors
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Exchange Specific Errors
	ErrExchangeUnavailable = errors.New("exchange API is unavailable")
	ErrConnectionFailed    = errors.New("failed to connect to the exchange")
	ErrRateLimited         = errors.New("API rate limit exceeded")
	ErrMalformedResponse   = errors.New("malformed response from exchange")
	ErrRetriesExhausted    = errors.New("retry attempts exhausted")

	// Database Specific Errors
	ErrStorage = errors.New("storage operation failed")

	// Pipeline Errors
	ErrOutOfOrderKlines = errors.New("klines out of order or duplicated within partition")
	ErrPartialRun       = errors.New("pipeline run finished with failed pairs")
)

// IsTransient reports whether err is worth retrying: network level failures
// and non-2xx answers from the exchange. Malformed payloads and cancellation
// are permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrContextCanceled) || errors.Is(err, ErrMalformedResponse) {
		return false
	}
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConnectionFailed) ||
		errors.Is(err, ErrExchangeUnavailable) ||
		errors.Is(err, ErrRateLimited)
}
