package videohelper

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHelper_DimensionsAlwaysUnavailable(t *testing.T) {
	h := New()
	w, ht, ok := h.Dimensions("clip.mp4")
	assert.False(t, ok)
	assert.Zero(t, w)
	assert.Zero(t, ht)
}

func TestHelper_DurationAlwaysUnavailable(t *testing.T) {
	h := New()
	secs, ok := h.Duration("clip.mp4")
	assert.False(t, ok)
	assert.Zero(t, secs)
}

func TestHelper_ThumbnailAlwaysUnavailable(t *testing.T) {
	h := New()
	path, w, ht, dur, ok := h.Thumbnail("clip.mp4")
	assert.False(t, ok)
	assert.Empty(t, path)
	assert.Zero(t, w)
	assert.Zero(t, ht)
	assert.Zero(t, dur)
}

func TestHelper_MarksPathAsProbedAcrossMethods(t *testing.T) {
	h := New()
	_, _, _ = h.Duration("clip.mp4")

	h.mu.Lock()
	probed := h.cache["clip.mp4"]
	h.mu.Unlock()
	assert.True(t, probed)
}
