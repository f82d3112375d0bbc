package services

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-correlation-go/internal/cache"
	"github.com/irfndi/celebrum-correlation-go/internal/coingecko"
	"github.com/irfndi/celebrum-correlation-go/internal/config"
)

// Retry policy names.
const (
	PolicyMarketAPI         = "market_api"
	PolicyDatabaseOperation = "database_operation"
	PolicyRedisOperation    = "redis_operation"
)

// RetryPolicy defines retry behavior for an operation.
type RetryPolicy struct {
	MaxRetries    int           `json:"max_retries"`
	InitialDelay  time.Duration `json:"initial_delay"`
	MaxDelay      time.Duration `json:"max_delay"`
	BackoffFactor float64       `json:"backoff_factor"`
	JitterEnabled bool          `json:"jitter_enabled"`
	// Retryable decides whether an error is worth another attempt.
	// A nil predicate retries every error.
	Retryable func(error) bool `json:"-"`
}

func (p *RetryPolicy) shouldRetry(err error) bool {
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

// RetryPolicyFromConfig builds the market API policy from configuration.
func RetryPolicyFromConfig(cfg config.RetryConfig) *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:    cfg.MaxRetries,
		InitialDelay:  cfg.InitialDelay,
		MaxDelay:      cfg.MaxDelay,
		BackoffFactor: cfg.BackoffFactor,
		JitterEnabled: cfg.Jitter,
		Retryable:     coingecko.IsRetryable,
	}
}

// ErrorRecoveryManager runs operations under named retry policies.
type ErrorRecoveryManager struct {
	logger        *logrus.Logger
	retryPolicies map[string]*RetryPolicy
	mu            sync.RWMutex
	sleep         func(ctx context.Context, d time.Duration) error
}

// NewErrorRecoveryManager creates a manager seeded with DefaultRetryPolicies.
func NewErrorRecoveryManager(logger *logrus.Logger) *ErrorRecoveryManager {
	if logger == nil {
		logger = logrus.New()
	}
	return &ErrorRecoveryManager{
		logger:        logger,
		retryPolicies: DefaultRetryPolicies(),
		sleep:         sleepContext,
	}
}

// RegisterRetryPolicy registers or replaces a policy.
func (erm *ErrorRecoveryManager) RegisterRetryPolicy(name string, policy *RetryPolicy) {
	erm.mu.Lock()
	defer erm.mu.Unlock()
	erm.retryPolicies[name] = policy
}

// RetryPolicy returns the policy registered under name, or nil.
func (erm *ErrorRecoveryManager) RetryPolicy(name string) *RetryPolicy {
	erm.mu.RLock()
	defer erm.mu.RUnlock()
	return erm.retryPolicies[name]
}

// Retrier binds the named policy for callers outside this package.
func (erm *ErrorRecoveryManager) Retrier(name string) cache.Retrier {
	return func(ctx context.Context, op func(ctx context.Context) error) error {
		return erm.ExecuteWithRetry(ctx, name, op)
	}
}

// ExecuteWithRetry runs operation until it succeeds, returns a non-retryable
// error, exhausts the policy or ctx is done. Waits between attempts are
// interrupted by ctx.
func (erm *ErrorRecoveryManager) ExecuteWithRetry(
	ctx context.Context,
	operationName string,
	operation func(ctx context.Context) error,
) error {
	start := time.Now()

	retryPolicy := erm.RetryPolicy(operationName)
	if retryPolicy == nil {
		retryPolicy = &RetryPolicy{
			MaxRetries:    3,
			InitialDelay:  100 * time.Millisecond,
			MaxDelay:      5 * time.Second,
			BackoffFactor: 2.0,
			JitterEnabled: true,
		}
	}

	delay := retryPolicy.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= retryPolicy.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := operation(ctx)
		if err == nil {
			if attempt > 0 {
				erm.logger.WithFields(logrus.Fields{
					"operation": operationName,
					"attempts":  attempt + 1,
					"duration":  time.Since(start),
				}).Info("Operation recovered after retry")
			}
			return nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if !retryPolicy.shouldRetry(err) {
			erm.logger.WithFields(logrus.Fields{
				"operation": operationName,
				"attempt":   attempt + 1,
				"error":     err.Error(),
			}).Warn("Operation failed with non-retryable error")
			return err
		}
		if attempt == retryPolicy.MaxRetries {
			break
		}

		wait := erm.calculateDelay(delay, retryPolicy, err)
		erm.logger.WithFields(logrus.Fields{
			"operation": operationName,
			"attempt":   attempt + 1,
			"error":     err.Error(),
			"delay":     wait,
		}).Warn("Operation failed, retrying")

		if err := erm.sleep(ctx, wait); err != nil {
			return err
		}

		delay = time.Duration(float64(delay) * retryPolicy.BackoffFactor)
		if retryPolicy.MaxDelay > 0 && delay > retryPolicy.MaxDelay {
			delay = retryPolicy.MaxDelay
		}
	}

	erm.logger.WithFields(logrus.Fields{
		"operation": operationName,
		"attempts":  retryPolicy.MaxRetries + 1,
		"duration":  time.Since(start),
		"error":     lastErr.Error(),
	}).Error("Operation failed after all retries")

	return lastErr
}

// calculateDelay applies ±20% jitter and honors a server Retry-After hint,
// never exceeding MaxDelay.
func (erm *ErrorRecoveryManager) calculateDelay(baseDelay time.Duration, policy *RetryPolicy, err error) time.Duration {
	wait := baseDelay
	if policy.JitterEnabled {
		wait = time.Duration(float64(baseDelay) * (0.8 + 0.4*rand.Float64()))
	}

	var apiErr *coingecko.APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > wait {
		wait = apiErr.RetryAfter
	}

	if policy.MaxDelay > 0 && wait > policy.MaxDelay {
		wait = policy.MaxDelay
	}
	return wait
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// DefaultRetryPolicies returns the policies every manager starts with.
func DefaultRetryPolicies() map[string]*RetryPolicy {
	return map[string]*RetryPolicy{
		PolicyMarketAPI: {
			MaxRetries:    5,
			InitialDelay:  10 * time.Second,
			MaxDelay:      120 * time.Second,
			BackoffFactor: 2.0,
			JitterEnabled: true,
			Retryable:     coingecko.IsRetryable,
		},
		PolicyDatabaseOperation: {
			MaxRetries:    3,
			InitialDelay:  50 * time.Millisecond,
			MaxDelay:      2 * time.Second,
			BackoffFactor: 1.5,
			JitterEnabled: true,
		},
		PolicyRedisOperation: {
			MaxRetries:    2,
			InitialDelay:  25 * time.Millisecond,
			MaxDelay:      time.Second,
			BackoffFactor: 2.0,
			JitterEnabled: false,
		},
	}
}
