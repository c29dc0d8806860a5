package rateshop

import (
	"context"
	"sync"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// RetryPolicy re-invokes an operation with exponential backoff when it
// fails with a retryable error. It classifies every failure: timeouts,
// network failures and carrier HTTP 429/500/503 are retryable; validation
// and mapping errors fail fast. A terminal failure is never swallowed —
// it propagates together with the attempt count.
//
// The delay before retry attempt n is baseDelay * 2^(n-1), so with
// baseDelay=1s the waits are 1s, 2s, 4s, ... The operation can be
// canceled via context during waits.
type RetryPolicy struct {
	name       Name
	clock      clockz.Clock
	baseDelay  time.Duration
	maxRetries int
	mu         sync.RWMutex
}

// NewRetryPolicy creates a RetryPolicy allowing up to maxRetries retries
// beyond the first attempt.
func NewRetryPolicy(name Name, maxRetries int, baseDelay time.Duration) *RetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &RetryPolicy{
		name:       name,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
	}
}

// Do runs op, retrying on retryable failures. It returns the number of
// attempts made (at least 1) and the final error, nil on success.
func (p *RetryPolicy) Do(ctx context.Context, op func(context.Context) error) (int, error) {
	p.mu.RLock()
	maxRetries := p.maxRetries
	delay := p.baseDelay
	clock := p.getClock()
	p.mu.RUnlock()

	maxAttempts := maxRetries + 1
	attempts := 0

	for {
		attempts++
		capitan.Info(ctx, SignalRetryAttemptStart,
			FieldName.Field(string(p.name)),
			FieldAttempt.Field(attempts),
			FieldMaxAttempts.Field(maxAttempts),
		)

		err := op(ctx)
		if err == nil {
			return attempts, nil
		}

		capitan.Warn(ctx, SignalRetryAttemptFail,
			FieldName.Field(string(p.name)),
			FieldAttempt.Field(attempts),
			FieldMaxAttempts.Field(maxAttempts),
			FieldError.Field(err.Error()),
		)

		if !IsRetryable(err) || attempts >= maxAttempts {
			if attempts >= maxAttempts && IsRetryable(err) {
				capitan.Error(ctx, SignalRetryExhausted,
					FieldName.Field(string(p.name)),
					FieldMaxAttempts.Field(maxAttempts),
					FieldError.Field(err.Error()),
				)
			}
			return attempts, err
		}

		if ctx.Err() != nil {
			return attempts, ctx.Err()
		}

		nextDelay := delay * 2
		capitan.Info(ctx, SignalRetryWaiting,
			FieldName.Field(string(p.name)),
			FieldAttempt.Field(attempts),
			FieldDelay.Field(delay.Seconds()),
			FieldNextDelay.Field(nextDelay.Seconds()),
			FieldTimestamp.Field(float64(time.Now().Unix())),
		)

		select {
		case <-clock.After(delay):
			delay = nextDelay // Exponential backoff
		case <-ctx.Done():
			return attempts, ctx.Err()
		}
	}
}

// SetMaxRetries updates the retry bound.
func (p *RetryPolicy) SetMaxRetries(n int) *RetryPolicy {
	if n < 0 {
		n = 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.maxRetries = n
	return p
}

// SetBaseDelay updates the base delay duration.
func (p *RetryPolicy) SetBaseDelay(d time.Duration) *RetryPolicy {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.baseDelay = d
	return p
}

// GetMaxRetries returns the current retry bound.
func (p *RetryPolicy) GetMaxRetries() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.maxRetries
}

// GetBaseDelay returns the current base delay setting.
func (p *RetryPolicy) GetBaseDelay() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.baseDelay
}

// Name returns the name of this policy.
func (p *RetryPolicy) Name() Name {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.name
}

// WithClock sets a custom clock for testing.
func (p *RetryPolicy) WithClock(clock clockz.Clock) *RetryPolicy {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clock = clock
	return p
}

// getClock returns the clock to use.
func (p *RetryPolicy) getClock() clockz.Clock {
	if p.clock == nil {
		return clockz.RealClock
	}
	return p.clock
}
