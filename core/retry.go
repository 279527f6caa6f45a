package core

import (
	"context"
	"time"
)

const (
	DefaultRetryAttempts   = 6
	DefaultRetryBaseDelay  = time.Second
	DefaultRetryMultiplier = 2.0
)

// RetryPolicy bounds the attempts made for one adapter call. Every failed
// retryable attempt is followed by a backoff wait, the last one included, so
// the default policy waits 1,2,4,8,16,32s before the final error surfaces.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	Retryable   func(error) bool
	// Sleep waits for delay or until ctx is done.
	Sleep func(ctx context.Context, delay time.Duration) error
	// OnRetry observes each failed retryable attempt before its wait.
	OnRetry func(attempt int, delay time.Duration, err error)
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultRetryAttempts,
		BaseDelay:   DefaultRetryBaseDelay,
		Multiplier:  DefaultRetryMultiplier,
		Retryable:   IsTransient,
		Sleep:       waitWithContext,
	}
}

// Delay returns the wait that follows failed attempt n (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	delay := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		delay *= multiplier
	}
	return time.Duration(delay)
}

// WithOnRetry returns a copy of p that also reports to hook.
func (p RetryPolicy) WithOnRetry(hook func(attempt int, delay time.Duration, err error)) RetryPolicy {
	previous := p.OnRetry
	p.OnRetry = func(attempt int, delay time.Duration, err error) {
		if previous != nil {
			previous(attempt, delay, err)
		}
		if hook != nil {
			hook(attempt, delay, err)
		}
	}
	return p
}

// Retry runs call under policy. Non-retryable errors return immediately; when
// attempts run out the last error is returned unchanged.
func Retry[T any](ctx context.Context, policy RetryPolicy, call func(context.Context) (T, error)) (T, error) {
	var zero T
	if ctx == nil {
		ctx = context.Background()
	}
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	retryable := policy.Retryable
	if retryable == nil {
		retryable = IsTransient
	}
	sleep := policy.Sleep
	if sleep == nil {
		sleep = waitWithContext
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := call(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !retryable(err) {
			return zero, err
		}
		delay := policy.Delay(attempt)
		if policy.OnRetry != nil {
			policy.OnRetry(attempt, delay, err)
		}
		if waitErr := sleep(ctx, delay); waitErr != nil {
			return zero, lastErr
		}
	}
	return zero, lastErr
}

// RetryErr is Retry for calls without a result value.
func RetryErr(ctx context.Context, policy RetryPolicy, call func(context.Context) error) error {
	_, err := Retry(ctx, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, call(ctx)
	})
	return err
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
