package service

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrRetriesExhausted = errors.New("retries exhausted")

// RetryExhaustedError is the terminal failure of retryBounded; it matches both
// ErrRetriesExhausted and the last attempt's error.
type RetryExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() []error {
	return []error{ErrRetriesExhausted, e.Last}
}

// retryBounded calls fn until it succeeds, fails with a non-retryable error, or attempts run out.
func retryBounded(
	ctx context.Context,
	attempts int,
	delay time.Duration,
	retryable func(error) bool,
	fn func(attempt int) error,
) error {
	if attempts < 1 {
		attempts = 1
	}
	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		last = err
		if attempt == attempts || delay <= 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return &RetryExhaustedError{Attempts: attempts, Last: last}
}
