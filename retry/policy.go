// Package retry implements RetryPolicy (C7): delay calculation for the
// exponential/linear/constant/fibonacci strategies plus retry accounting.
// The backoff-with-jitter shape is grounded on resilience/retry.go's
// Retry() loop, generalized from a single hardcoded exponential strategy
// to the four strategies the contract names.
package retry

import (
	"errors"
	"math"
	"time"

	"github.com/veritas-eu/orchestrator-core/core"
)

// Delay computes the backoff duration for the given 1-based attempt number
// under policy, subject to policy.MaxDelayMs and jitter.
func Delay(attempt int, policy core.RetryConfig) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := time.Duration(policy.BaseDelayMs) * time.Millisecond
	maxDelay := time.Duration(policy.MaxDelayMs) * time.Millisecond

	var raw time.Duration
	switch policy.Strategy {
	case core.RetryExponential:
		raw = exponential(base, policy.Factor, attempt, maxDelay)
	case core.RetryLinear:
		raw = base * time.Duration(attempt)
	case core.RetryConstant:
		raw = base
	case core.RetryFibonacci:
		raw = base * time.Duration(fibonacci(attempt))
	default:
		raw = exponential(base, policy.Factor, attempt, maxDelay)
	}

	if raw > maxDelay {
		raw = maxDelay
	}
	return applyJitter(raw, policy.Jitter, attempt)
}

// exponential computes base * factor^(attempt-1), capped early to avoid
// overflow on large attempt counts — the teacher's calculateBackoff caps
// the shift at 30; here we clamp the resulting duration directly.
func exponential(base time.Duration, factor float64, attempt int, cap time.Duration) time.Duration {
	if attempt > 62 {
		return cap
	}
	mult := math.Pow(factor, float64(attempt-1))
	d := time.Duration(float64(base) * mult)
	if d <= 0 || d > cap {
		return cap
	}
	return d
}

func fibonacci(n int) int64 {
	if n <= 1 {
		return 1
	}
	var a, b int64 = 1, 1
	for i := 2; i < n; i++ {
		a, b = b, a+b
	}
	return b
}

// applyJitter adds up to ±jitterFraction of raw, varying deterministically
// by attempt (sine-based, as in resilience/retry.go) so repeated calls with
// the same attempt number are reproducible in tests.
func applyJitter(raw time.Duration, jitterFraction float64, attempt int) time.Duration {
	if jitterFraction <= 0 {
		return raw
	}
	jitter := time.Duration(float64(raw) * jitterFraction * math.Sin(float64(attempt)))
	result := raw + jitter
	if result < 0 {
		return 0
	}
	return result
}

// ShouldRetry reports whether another attempt should be made: true iff err
// is transient and attempt is still within the configured budget.
func ShouldRetry(attempt, maxRetries int, err error) bool {
	if err == nil {
		return false
	}
	var ce *core.CoreError
	transient := core.IsTransient(err) || (errors.As(err, &ce) && ce.Kind == core.KindTransient)
	if !transient {
		return false
	}
	return attempt < maxRetries
}
