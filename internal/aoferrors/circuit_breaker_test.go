package aoferrors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker("executor", CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          time.Minute,
	}, nil)

	failing := func(context.Context) error { return errors.New("boom") }

	require.Error(t, cb.Execute(context.Background(), failing))
	assert.Equal(t, StateClosed, cb.State())

	require.Error(t, cb.Execute(context.Background(), failing))
	assert.Equal(t, StateOpen, cb.State())

	err := cb.Execute(context.Background(), func(context.Context) error {
		t.Fatal("fn must not run while circuit is open")
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, KindAdapterError, KindOf(err))
}

func TestCircuitBreaker_HalfOpenRecoversToClosed(t *testing.T) {
	cb := NewCircuitBreaker("executor", CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          time.Millisecond,
	}, nil)

	require.Error(t, cb.Execute(context.Background(), func(context.Context) error {
		return errors.New("boom")
	}))
	assert.Equal(t, StateOpen, cb.State())

	time.Sleep(5 * time.Millisecond)

	require.NoError(t, cb.Execute(context.Background(), func(context.Context) error {
		return nil
	}))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("executor", CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          time.Millisecond,
	}, nil)

	require.Error(t, cb.Execute(context.Background(), func(context.Context) error {
		return errors.New("boom")
	}))
	time.Sleep(5 * time.Millisecond)

	require.Error(t, cb.Execute(context.Background(), func(context.Context) error {
		return errors.New("still failing")
	}))
	assert.Equal(t, StateOpen, cb.State())
}
