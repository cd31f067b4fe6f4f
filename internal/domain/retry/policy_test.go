package retry_test

import (
	"context"
	"errors"
	"testing"

	"jan-server/services/chat-api/internal/domain/retry"
)

func TestExecutor_Execute(t *testing.T) {
	t.Run("succeeds on first attempt", func(t *testing.T) {
		executor := retry.NewExecutor(retry.ImmediateRetryPolicy())

		callCount := 0
		attempts, err := executor.Execute(context.Background(), func(ctx context.Context, attempt int) error {
			callCount++
			return nil
		})

		if err != nil {
			t.Errorf("Expected no error, got %v", err)
		}
		if callCount != 1 || attempts != 1 {
			t.Errorf("Expected 1 call, got %d (attempts %d)", callCount, attempts)
		}
	})

	t.Run("retries exactly once", func(t *testing.T) {
		writeErr := errors.New("connection reset")
		executor := retry.NewExecutor(retry.ImmediateRetryPolicy())

		var seen []int
		attempts, err := executor.Execute(context.Background(), func(ctx context.Context, attempt int) error {
			seen = append(seen, attempt)
			return writeErr
		})

		if !errors.Is(err, writeErr) {
			t.Errorf("Expected %v, got %v", writeErr, err)
		}
		if attempts != 2 || len(seen) != 2 || seen[0] != 0 || seen[1] != 1 {
			t.Errorf("Expected attempts [0 1], got %v", seen)
		}
	})

	t.Run("second attempt succeeds", func(t *testing.T) {
		executor := retry.NewExecutor(retry.ImmediateRetryPolicy())

		attempts, err := executor.Execute(context.Background(), func(ctx context.Context, attempt int) error {
			if attempt == 0 {
				return errors.New("transient")
			}
			return nil
		})

		if err != nil {
			t.Errorf("Expected no error, got %v", err)
		}
		if attempts != 2 {
			t.Errorf("Expected 2 attempts, got %d", attempts)
		}
	})

	t.Run("zero retries makes a single attempt", func(t *testing.T) {
		executor := retry.NewExecutor(retry.Policy{})

		attempts, err := executor.Execute(context.Background(), func(ctx context.Context, attempt int) error {
			return errors.New("boom")
		})

		if err == nil || attempts != 1 {
			t.Errorf("Expected one failed attempt, got %d (%v)", attempts, err)
		}
	})

	t.Run("respects cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		executor := retry.NewExecutor(retry.ImmediateRetryPolicy())
		attempts, err := executor.Execute(ctx, func(ctx context.Context, attempt int) error {
			return nil
		})

		if !errors.Is(err, context.Canceled) || attempts != 0 {
			t.Errorf("Expected context.Canceled with no attempts, got %v (%d)", err, attempts)
		}
	})
}
