package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy() Policy {
	return Policy{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  2.0,
	}
}

func TestPolicy_Backoff(t *testing.T) {
	policy := Policy{
		InitialBackoff: time.Second,
		MaxBackoff:     10 * time.Second,
		BackoffFactor:  2.0,
	}

	tests := []struct {
		name     string
		attempt  int
		expected time.Duration
	}{
		{name: "First attempt", attempt: 0, expected: time.Second},
		{name: "Second attempt", attempt: 1, expected: 2 * time.Second},
		{name: "Third attempt", attempt: 2, expected: 4 * time.Second},
		{name: "Capped at max backoff", attempt: 5, expected: 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, policy.Backoff(tt.attempt))
		})
	}
}

func TestPolicy_BackoffDefaultFactor(t *testing.T) {
	policy := Policy{InitialBackoff: time.Second, MaxBackoff: 10 * time.Second}
	assert.Equal(t, time.Second, policy.Backoff(0))
	assert.Equal(t, 4*time.Second, policy.Backoff(2))
}

func TestPolicy_BackoffJitterStaysUnderMax(t *testing.T) {
	policy := DefaultPolicy()
	for attempt := 0; attempt < 10; attempt++ {
		backoff := policy.Backoff(attempt)
		assert.LessOrEqual(t, backoff, policy.MaxBackoff)
		assert.Greater(t, backoff, time.Duration(0))
	}
}

func TestDo_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	retries := 0
	policy := testPolicy()
	policy.OnRetry = func(attempt int, backoff time.Duration, err error) {
		retries++
	}

	err := Do(context.Background(), policy, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("broker unavailable")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, retries)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	cause := errors.New("broker unavailable")

	err := Do(context.Background(), testPolicy(), func(ctx context.Context) error {
		calls++
		return cause
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentErrorStops(t *testing.T) {
	calls := 0

	err := Do(context.Background(), testPolicy(), func(ctx context.Context) error {
		calls++
		return &PermanentError{Err: errors.New("bad credentials")}
	})

	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, testPolicy(), func(ctx context.Context) error {
		calls++
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}

func TestErrorTypes(t *testing.T) {
	cause := errors.New("timeout")

	assert.False(t, IsPermanent(cause))
	assert.Nil(t, Permanent(nil))

	permanent := Permanent(cause)
	assert.True(t, IsPermanent(permanent))
	assert.True(t, IsPermanent(fmt.Errorf("dial: %w", permanent)))
	assert.ErrorIs(t, permanent, cause)
	assert.Contains(t, permanent.Error(), "permanent error")
}
