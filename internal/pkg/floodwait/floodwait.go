// Package floodwait implements the engine's rate-limit handler (spec §4.2).
// The Python original monkey-patched every bound method on a live Pyrogram
// client object at runtime; gotd/td exposes the same "wrap every RPC" idea
// as a first-class telegram.Middleware, so the patcher becomes one.
package floodwait

import (
	"context"
	"time"

	"github.com/gotd/td/bin"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/rs/zerolog"
)

// segments is how many evenly-spaced progress ticks a wait longer than
// longWaitThreshold is split into, matching the original's twenty-segment
// progress display.
const (
	segments          = 20
	longWaitThreshold = 10 * time.Second
)

// ProgressFunc is notified of each tick of a long wait: percent complete and
// seconds remaining. The UI adapter wires this to a progress bar; tests and
// non-interactive runs can pass nil.
type ProgressFunc func(percent float64, remaining time.Duration)

// Handler is a telegram.Middleware that retries any RPC hitting a server
// FLOOD_WAIT, sleeping the server-specified duration (never longer), with
// progress reported for waits exceeding longWaitThreshold. Lazy iterators
// (paginated history reads) are not wrapped at the call site that spawns
// them, but every individual page request beneath them passes back through
// this middleware like any other RPC.
type Handler struct {
	Log        zerolog.Logger
	MaxRetries int
	OnProgress ProgressFunc
}

// New builds a Handler with the given retry ceiling.
func New(log zerolog.Logger, maxRetries int, onProgress ProgressFunc) *Handler {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &Handler{Log: log, MaxRetries: maxRetries, OnProgress: onProgress}
}

// Handle implements telegram.Middleware. next is the next invoker in the
// chain (ultimately the raw MTProto round trip).
func (h *Handler) Handle(next tg.Invoker) tg.Invoker {
	return invokerFunc(func(ctx context.Context, input bin.Encoder, output bin.Decoder) error {
		var attempt int
		for {
			err := next.Invoke(ctx, input, output)
			if err == nil {
				return nil
			}

			fw, ok := tgerr.As(err)
			if !ok || fw.Type != "FLOOD_WAIT" {
				return err
			}
			wait := time.Duration(fw.Argument) * time.Second

			attempt++
			if attempt > h.MaxRetries {
				h.Log.Error().Dur("wait", wait).Int("attempts", attempt).Msg("flood wait retry budget exhausted")
				return err
			}

			h.Log.Warn().Dur("wait", wait).Int("attempt", attempt).Msg("flood wait, sleeping")
			if err := h.sleep(ctx, wait); err != nil {
				return err
			}
		}
	})
}

func (h *Handler) sleep(ctx context.Context, wait time.Duration) error {
	if wait <= longWaitThreshold || h.OnProgress == nil {
		select {
		case <-time.After(wait):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	segmentDur := wait / segments
	remaining := wait
	for i := 1; i <= segments; i++ {
		select {
		case <-time.After(segmentDur):
		case <-ctx.Done():
			return ctx.Err()
		}
		remaining -= segmentDur
		if remaining < 0 {
			remaining = 0
		}
		h.OnProgress(float64(i)/segments*100, remaining)
	}
	return nil
}

type invokerFunc func(ctx context.Context, input bin.Encoder, output bin.Decoder) error

func (f invokerFunc) Invoke(ctx context.Context, input bin.Encoder, output bin.Decoder) error {
	return f(ctx, input, output)
}
