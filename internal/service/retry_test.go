package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errCollision = errors.New("collision")

func isCollision(err error) bool { return errors.Is(err, errCollision) }

func TestRetryBoundedSucceedsAfterRetries(t *testing.T) {
	calls := 0
	err := retryBounded(context.Background(), 5, 0, isCollision, func(attempt int) error {
		calls++
		if attempt < 3 {
			return errCollision
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryBoundedExhausts(t *testing.T) {
	calls := 0
	err := retryBounded(context.Background(), 4, 0, isCollision, func(int) error {
		calls++
		return errCollision
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, errCollision)

	var exhausted *RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 4, exhausted.Attempts)
}

func TestRetryBoundedStopsOnOtherErrors(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := retryBounded(context.Background(), 5, 0, isCollision, func(int) error {
		calls++
		return boom
	})
	assert.Same(t, boom, err)
	assert.Equal(t, 1, calls)
}

func TestRetryBoundedHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := retryBounded(ctx, 5, time.Hour, isCollision, func(int) error {
		calls++
		cancel()
		return errCollision
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestNumberGeneratorShape(t *testing.T) {
	gen := NewNumberGenerator("AGR")
	now := time.UnixMilli(1714550400000)

	first := gen(now)
	second := gen(now)
	assert.Regexp(t, `^AGR1714550400000-[0-9a-z]{6}$`, first)
	assert.Regexp(t, `^AGR1714550400000-[0-9a-z]{6}$`, second)
}
