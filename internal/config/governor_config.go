package config

import (
	"fmt"

	"github.com/jrsteele09/go-integration-hub/governor"
	apperrors "github.com/jrsteele09/go-integration-hub/internal/errors"
)

const (
	maxConcurrentVar = "MAX_CONCURRENT_REQUESTS"
	maxPerSecondVar  = "MAX_REQUESTS_PER_SECOND"
	retryAttemptsVar = "RETRY_ATTEMPTS"
	retryDelayVar    = "RETRY_DELAY"
	backoffPolicyVar = "BACKOFF_POLICY"
	maxRetryDelayVar = "MAX_RETRY_DELAY"
)

type GovernorConfig interface {
	GetGovernorConfig() (governor.Config, error)
}

type Governor struct {
	values values
}

var _ GovernorConfig = Governor{}

// GetGovernorConfig reads the request governor settings. Unset values take
// the governor defaults; malformed values are configuration errors.
func (g Governor) GetGovernorConfig() (governor.Config, error) {
	def := governor.DefaultConfig()
	cfg := def

	var err error
	if cfg.MaxConcurrentRequests, err = g.values.getInt(maxConcurrentVar, def.MaxConcurrentRequests); err != nil {
		return governor.Config{}, err
	}
	if cfg.MaxRequestsPerSecond, err = g.values.getInt(maxPerSecondVar, def.MaxRequestsPerSecond); err != nil {
		return governor.Config{}, err
	}
	if cfg.RetryAttempts, err = g.values.getInt(retryAttemptsVar, def.RetryAttempts); err != nil {
		return governor.Config{}, err
	}
	if cfg.RetryDelay, err = g.values.getDuration(retryDelayVar, def.RetryDelay); err != nil {
		return governor.Config{}, err
	}
	if cfg.MaxRetryDelay, err = g.values.getDuration(maxRetryDelayVar, def.MaxRetryDelay); err != nil {
		return governor.Config{}, err
	}
	if cfg.Backoff, err = governor.ParseBackoffPolicy(g.values.get(backoffPolicyVar, string(def.Backoff))); err != nil {
		return governor.Config{}, fmt.Errorf("%s: %v: %w", backoffPolicyVar, err, apperrors.ErrConfiguration)
	}
	return cfg, nil
}
