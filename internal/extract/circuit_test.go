package extract

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreakerLifecycle(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(CircuitConfig{FailureThreshold: 2, OpenTimeout: time.Minute})
	cb.now = func() time.Time { return now }

	assert.True(t, cb.Allow())
	cb.RecordFailure(errors.New("HTTP 429"))
	assert.Equal(t, CircuitClosed, cb.State())
	cb.RecordFailure(errors.New("HTTP 429"))
	assert.Equal(t, CircuitOpen, cb.State())
	assert.False(t, cb.Allow())

	stats := cb.Stats()
	assert.Equal(t, 1, stats.Trips)
	assert.Equal(t, "HTTP 429", stats.LastError)
	assert.Equal(t, now.Add(time.Minute), stats.RetryAt)

	now = now.Add(time.Minute)
	assert.True(t, cb.Allow(), "trial call after open timeout")
	assert.Equal(t, CircuitHalfOpen, cb.State())
	assert.False(t, cb.Allow(), "only one trial call at a time")

	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.State())
	assert.Zero(t, cb.Stats().Failures)
}

func TestCircuitBreakerTrialFailureReopens(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(CircuitConfig{FailureThreshold: 1, OpenTimeout: time.Second})
	cb.now = func() time.Time { return now }

	cb.RecordFailure(nil)
	now = now.Add(time.Second)
	assert.True(t, cb.Allow())
	cb.RecordFailure(nil)

	assert.Equal(t, CircuitOpen, cb.State())
	assert.False(t, cb.Allow())
	assert.Equal(t, now, cb.Stats().LastFailure)

	assert.Equal(t, 2, cb.Stats().Trips)

	cb.Reset()
	assert.True(t, cb.Allow())
	assert.Equal(t, CircuitClosed, cb.State())
	assert.True(t, cb.Stats().RetryAt.IsZero())
}

func TestCircuitConfigDefaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitConfig{})
	assert.Equal(t, DefaultCircuitConfig().FailureThreshold, cb.config.FailureThreshold)
	assert.Equal(t, 1, cb.config.HalfOpenMaxCalls)
}
