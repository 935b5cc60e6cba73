package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBreakerTripsAfterConsecutiveErrors(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxConsecutiveErrors: 3})

	for i := 0; i < 2; i++ {
		cb.OnError()
		require.NoError(t, cb.Allow())
	}
	cb.OnError()
	require.ErrorIs(t, cb.Allow(), ErrCircuitBreakerOpen)
	require.True(t, cb.Open())
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxConsecutiveErrors: 2})

	cb.OnError()
	cb.OnSuccess()
	cb.OnError()
	require.NoError(t, cb.Allow())
	require.Equal(t, int64(1), cb.ConsecutiveErrors())
}

func TestBreakerDisabledByZeroThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})

	for i := 0; i < 100; i++ {
		cb.OnError()
	}
	require.NoError(t, cb.Allow())
}

func TestBreakerCooldownAutoResumes(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxConsecutiveErrors: 1,
		Cooldown:             10 * time.Millisecond,
	})

	cb.OnError()
	require.ErrorIs(t, cb.Allow(), ErrCircuitBreakerOpen)

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, cb.Allow())
	require.False(t, cb.Open())
	require.Equal(t, int64(0), cb.ConsecutiveErrors())
}

func TestBreakerManualHaltAndResume(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxConsecutiveErrors: 5})

	cb.Halt()
	require.ErrorIs(t, cb.Allow(), ErrCircuitBreakerOpen)
	cb.Resume()
	require.NoError(t, cb.Allow())
}
