package governor

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	DefaultMaxConcurrentRequests = 3
	DefaultMaxRequestsPerSecond  = 5
	DefaultRetryAttempts         = 2
	DefaultRetryDelay            = 1000 * time.Millisecond
)

// BackoffPolicy selects how the delay between retries grows.
type BackoffPolicy string

const (
	// BackoffLinear waits RetryDelay * attempt.
	BackoffLinear BackoffPolicy = "linear"
	// BackoffExponential waits RetryDelay * 2^(attempt-1).
	BackoffExponential BackoffPolicy = "exponential"
)

// ParseBackoffPolicy converts a configuration value into a BackoffPolicy.
// An empty value selects the linear policy.
func ParseBackoffPolicy(s string) (BackoffPolicy, error) {
	switch BackoffPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", BackoffLinear:
		return BackoffLinear, nil
	case BackoffExponential:
		return BackoffExponential, nil
	}
	return "", fmt.Errorf("[ParseBackoffPolicy] unknown backoff policy %q", s)
}

// Delay returns how long to wait before retrying after the given failed attempt
// (attempt >= 1). A positive max caps the result.
func (p BackoffPolicy) Delay(base time.Duration, attempt int, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		return 0
	}

	var d time.Duration
	switch p {
	case BackoffExponential:
		shift := attempt - 1
		if shift > 30 {
			shift = 30
		}
		if base > time.Duration(math.MaxInt64>>uint(shift)) {
			if max > 0 {
				return max
			}
			return time.Duration(math.MaxInt64)
		}
		d = base << uint(shift)
	default:
		d = base * time.Duration(attempt)
	}

	if max > 0 && d > max {
		return max
	}
	return d
}

// Config holds the governor's admission and retry ceilings.
type Config struct {
	MaxConcurrentRequests int
	MaxRequestsPerSecond  int
	RetryAttempts         int
	RetryDelay            time.Duration
	Backoff               BackoffPolicy
	MaxRetryDelay         time.Duration // 0 = uncapped
}

// DefaultConfig returns the default ceilings: 3 concurrent calls, 5 call starts
// per second, 2 retries with a linear 1s backoff.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentRequests: DefaultMaxConcurrentRequests,
		MaxRequestsPerSecond:  DefaultMaxRequestsPerSecond,
		RetryAttempts:         DefaultRetryAttempts,
		RetryDelay:            DefaultRetryDelay,
		Backoff:               BackoffLinear,
	}
}

// normalise replaces unusable values with defaults.
func (c Config) normalise() Config {
	if c.MaxConcurrentRequests <= 0 {
		c.MaxConcurrentRequests = DefaultMaxConcurrentRequests
	}
	if c.MaxRequestsPerSecond <= 0 {
		c.MaxRequestsPerSecond = DefaultMaxRequestsPerSecond
	}
	if c.RetryAttempts < 0 {
		c.RetryAttempts = 0
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.Backoff == "" {
		c.Backoff = BackoffLinear
	}
	return c
}
