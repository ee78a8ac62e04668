package floodwait

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/gotd/td/bin"
	"github.com/gotd/td/tgerr"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floodWaitErr(seconds int) error {
	return tgerr.New(420, "FLOOD_WAIT_"+strconv.Itoa(seconds))
}

func TestHandler_PassesThroughSuccessWithoutRetry(t *testing.T) {
	h := New(zerolog.Nop(), 3, nil)
	calls := 0
	inv := h.Handle(invokerFunc(func(ctx context.Context, input bin.Encoder, output bin.Decoder) error {
		calls++
		return nil
	}))

	err := inv.Invoke(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestHandler_PassesThroughNonFloodWaitError(t *testing.T) {
	h := New(zerolog.Nop(), 3, nil)
	wantErr := errors.New("boom")
	calls := 0
	inv := h.Handle(invokerFunc(func(ctx context.Context, input bin.Encoder, output bin.Decoder) error {
		calls++
		return wantErr
	}))

	err := inv.Invoke(context.Background(), nil, nil)
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 1, calls)
}

func TestHandler_RetriesOnFloodWaitThenSucceeds(t *testing.T) {
	h := New(zerolog.Nop(), 3, nil)
	calls := 0
	inv := h.Handle(invokerFunc(func(ctx context.Context, input bin.Encoder, output bin.Decoder) error {
		calls++
		if calls < 3 {
			return floodWaitErr(0)
		}
		return nil
	}))

	err := inv.Invoke(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestHandler_GivesUpAfterMaxRetries(t *testing.T) {
	h := New(zerolog.Nop(), 2, nil)
	calls := 0
	inv := h.Handle(invokerFunc(func(ctx context.Context, input bin.Encoder, output bin.Decoder) error {
		calls++
		return floodWaitErr(0)
	}))

	err := inv.Invoke(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Equal(t, 3, calls) // initial attempt + 2 retries, then exhausted
}

func TestHandler_NonPositiveMaxRetriesDefaultsToFive(t *testing.T) {
	h := New(zerolog.Nop(), 0, nil)
	assert.Equal(t, 5, h.MaxRetries)
}

func TestHandler_SleepReturnsCtxErrWhenCancelled(t *testing.T) {
	h := New(zerolog.Nop(), 5, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	inv := h.Handle(invokerFunc(func(ctx context.Context, input bin.Encoder, output bin.Decoder) error {
		calls++
		return floodWaitErr(5)
	}))

	err := inv.Invoke(ctx, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
