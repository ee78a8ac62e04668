package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRetry_SucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), zerolog.Nop(), "op", func() error {
		calls++
		return nil
	}, 3, time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), zerolog.Nop(), "op", func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, 5, time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_ExhaustsAndWrapsLastError(t *testing.T) {
	wantErr := errors.New("persistent")
	calls := 0
	err := WithRetry(context.Background(), zerolog.Nop(), "myop", func() error {
		calls++
		return wantErr
	}, 3, time.Millisecond)

	require.Error(t, err)
	assert.ErrorIs(t, err, wantErr)
	assert.Contains(t, err.Error(), "myop failed after 3 attempts")
	assert.Equal(t, 3, calls)
}

func TestWithRetry_StopsImmediatelyOnContextCanceledError(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), zerolog.Nop(), "op", func() error {
		calls++
		return context.Canceled
	}, 5, time.Millisecond)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_CtxCancelledDuringBackoffReturnsCtxErr(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := WithRetry(ctx, zerolog.Nop(), "op", func() error {
		calls++
		if calls == 1 {
			cancel()
		}
		return errors.New("fail")
	}, 5, time.Hour)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
