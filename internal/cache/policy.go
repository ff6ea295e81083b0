package cache

import (
	"net/http"
	"time"

	"billpoint/client/internal/api"
	"billpoint/client/internal/config"
)

// Policy is the retry policy applied to cache fetches. Retry semantics are
// data, not control flow: MaxRetries extra attempts after the first failure,
// a constant Delay between attempts, gated by Retryable.
type Policy struct {
	// MaxRetries is the number of extra attempts after a retryable failure
	// (0 = single attempt).
	MaxRetries int
	// Delay is the constant wait between attempts.
	Delay time.Duration
	// Retryable reports whether the error is worth another attempt.
	Retryable func(error) bool
}

// DefaultRetryable never retries 401 (session-ending) or 404 (stable
// absence); everything else, including transport failures and 5xx, is
// retryable.
func DefaultRetryable(err error) bool {
	switch api.StatusOf(err) {
	case http.StatusUnauthorized, http.StatusNotFound:
		return false
	default:
		return true
	}
}

// PolicyFromConfig builds the default policy: 2 extra attempts, 5s apart.
func PolicyFromConfig(cfg *config.Config) Policy {
	return Policy{
		MaxRetries: cfg.RetryMaxAttempts,
		Delay:      cfg.RetryDelayDuration(),
		Retryable:  DefaultRetryable,
	}
}
