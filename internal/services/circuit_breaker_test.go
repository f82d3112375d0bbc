package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream failed")

func failing(context.Context) error    { return errUpstream }
func succeeding(context.Context) error { return nil }

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker("coingecko", CircuitBreakerConfig{}, nil)

	assert.Equal(t, 5, cb.config.FailureThreshold)
	assert.Equal(t, 1, cb.config.SuccessThreshold)
	assert.Equal(t, 5*time.Minute, cb.config.Timeout)
	assert.Equal(t, 1, cb.config.MaxRequests)
	assert.Equal(t, Closed, cb.GetState())
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker("coingecko", CircuitBreakerConfig{FailureThreshold: 3, Timeout: time.Minute}, quietLogger())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, failing), errUpstream)
		assert.Equal(t, Closed, cb.GetState())
	}
	assert.ErrorIs(t, cb.Execute(ctx, failing), errUpstream)
	assert.True(t, cb.IsOpen())

	called := false
	err := cb.Execute(ctx, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	stats := cb.GetStats()
	assert.EqualValues(t, 4, stats.TotalRequests)
	assert.EqualValues(t, 3, stats.FailedRequests)
	assert.EqualValues(t, 1, stats.RejectedRequests)
	assert.EqualValues(t, 1, stats.StateChanges)
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker("coingecko", CircuitBreakerConfig{FailureThreshold: 2}, quietLogger())
	ctx := context.Background()

	_ = cb.Execute(ctx, failing)
	require.NoError(t, cb.Execute(ctx, succeeding))
	_ = cb.Execute(ctx, failing)

	assert.Equal(t, Closed, cb.GetState())
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker("coingecko", CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          10 * time.Millisecond,
	}, quietLogger())
	ctx := context.Background()

	_ = cb.Execute(ctx, failing)
	require.True(t, cb.IsOpen())

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, cb.Execute(ctx, succeeding))
	assert.Equal(t, Closed, cb.GetState())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("coingecko", CircuitBreakerConfig{
		FailureThreshold: 1,
		Timeout:          10 * time.Millisecond,
	}, quietLogger())
	ctx := context.Background()

	_ = cb.Execute(ctx, failing)
	time.Sleep(20 * time.Millisecond)

	assert.ErrorIs(t, cb.Execute(ctx, failing), errUpstream)
	assert.True(t, cb.IsOpen())
	assert.ErrorIs(t, cb.Execute(ctx, succeeding), ErrCircuitOpen)
}

func TestCircuitBreaker_CancellationIsNotAFailure(t *testing.T) {
	cb := NewCircuitBreaker("coingecko", CircuitBreakerConfig{FailureThreshold: 1}, quietLogger())

	err := cb.Execute(context.Background(), func(context.Context) error {
		return context.Canceled
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Closed, cb.GetState())
	assert.Zero(t, cb.GetStats().FailedRequests)
}

func TestCircuitBreaker_IgnoresNonFailures(t *testing.T) {
	notFound := errors.New("coin not found")
	cb := NewCircuitBreaker("coingecko", CircuitBreakerConfig{
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return !errors.Is(err, notFound) },
	}, quietLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := cb.Execute(ctx, func(context.Context) error { return notFound })
		assert.ErrorIs(t, err, notFound)
	}
	assert.Equal(t, Closed, cb.GetState())
	assert.Zero(t, cb.GetStats().FailedRequests)

	assert.ErrorIs(t, cb.Execute(ctx, failing), errUpstream)
	assert.True(t, cb.IsOpen())
}

func TestCircuitBreakerState_String(t *testing.T) {
	assert.Equal(t, "closed", Closed.String())
	assert.Equal(t, "open", Open.String())
	assert.Equal(t, "half-open", HalfOpen.String())
	assert.Equal(t, "unknown", CircuitBreakerState(9).String())
}
