// Package retry defines the retry policy for persistence writes.
package retry

import (
	"context"
)

// Policy defines how many times a failed write is attempted again. Retries
// run back to back.
type Policy struct {
	MaxRetries int `json:"max_retries"`
}

// ImmediateRetryPolicy retries exactly once with no delay.
func ImmediateRetryPolicy() Policy {
	return Policy{MaxRetries: 1}
}

// Executor provides retry execution functionality.
type Executor struct {
	policy Policy
}

// NewExecutor creates a new retry executor with the given policy.
func NewExecutor(policy Policy) *Executor {
	return &Executor{policy: policy}
}

// RetryableFunc is a function that can be retried. attempt starts at 0.
type RetryableFunc func(ctx context.Context, attempt int) error

// Execute runs fn until it succeeds or the policy is exhausted, returning the
// number of attempts made and the last error.
func (e *Executor) Execute(ctx context.Context, fn RetryableFunc) (int, error) {
	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= e.policy.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempts, err
		}

		attempts++
		err := fn(ctx, attempt)
		if err == nil {
			return attempts, nil
		}
		lastErr = err
	}

	return attempts, lastErr
}
