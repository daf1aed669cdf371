package retry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritas-eu/orchestrator-core/core"
	"github.com/veritas-eu/orchestrator-core/retry"
)

func cfg(strategy core.RetryStrategy) core.RetryConfig {
	return core.RetryConfig{
		Strategy:    strategy,
		BaseDelayMs: 10,
		Factor:      2.0,
		MaxDelayMs:  1000,
		Jitter:      0,
	}
}

func TestDelay_Exponential_Grows(t *testing.T) {
	c := cfg(core.RetryExponential)
	d1 := retry.Delay(1, c)
	d2 := retry.Delay(2, c)
	d3 := retry.Delay(3, c)
	assert.LessOrEqual(t, d1, d2)
	assert.LessOrEqual(t, d2, d3)
}

func TestDelay_CappedAtMaxDelay(t *testing.T) {
	c := cfg(core.RetryExponential)
	d := retry.Delay(50, c)
	assert.LessOrEqual(t, d.Milliseconds(), int64(c.MaxDelayMs))
}

func TestDelay_Constant(t *testing.T) {
	c := cfg(core.RetryConstant)
	assert.Equal(t, retry.Delay(1, c), retry.Delay(5, c))
}

func TestShouldRetry_PermanentErrorNeverRetries(t *testing.T) {
	err := core.NewCoreError("op", core.KindPermanent, core.ErrSchemaViolation)
	assert.False(t, retry.ShouldRetry(1, 5, err))
}

func TestShouldRetry_TransientWithinBudget(t *testing.T) {
	err := core.NewCoreError("op", core.KindTransient, core.ErrTimeout)
	assert.True(t, retry.ShouldRetry(1, 3, err))
	assert.False(t, retry.ShouldRetry(3, 3, err))
}

func TestDo_AttemptsNeverExceedMaxRetriesPlusOne(t *testing.T) {
	count := 0
	err := retry.Do(context.Background(), cfg(core.RetryConstant), 2, func(attempt int) error {
		count++
		return core.NewCoreError("op", core.KindTransient, core.ErrTimeout)
	})
	require.Error(t, err)
	assert.Equal(t, 3, count) // maxRetries(2) + 1
}

func TestDo_SucceedsWithoutExhaustingBudget(t *testing.T) {
	count := 0
	err := retry.Do(context.Background(), cfg(core.RetryConstant), 3, func(attempt int) error {
		count++
		if attempt < 2 {
			return core.NewCoreError("op", core.KindTransient, core.ErrTimeout)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestDo_PermanentErrorStopsImmediately(t *testing.T) {
	count := 0
	err := retry.Do(context.Background(), cfg(core.RetryConstant), 5, func(attempt int) error {
		count++
		return core.NewCoreError("op", core.KindPermanent, core.ErrSchemaViolation)
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrSchemaViolation))
	assert.Equal(t, 1, count)
}
