// Package videohelper provides a degrading domain.VideoHelper: video
// thumbnail extraction itself is out of scope (spec.md §1 Non-goals), but the
// upload worker still needs something to call and fail gracefully against.
// No file is ever probed; every lookup reports unavailable.
package videohelper

import "sync"

// Helper records each path it is asked about and always reports
// "unavailable"; the record is never read back, so asking twice does the same
// work twice. It exists so callers never need a nil check, only the ok-bool
// every method already returns. A real ffmpeg-backed implementation can
// satisfy the same domain.VideoHelper interface without touching the upload
// worker.
type Helper struct {
	mu    sync.Mutex
	cache map[string]bool // path -> asked about (write-only)
}

func New() *Helper {
	return &Helper{cache: make(map[string]bool)}
}

func (h *Helper) Dimensions(path string) (w, height int, ok bool) {
	h.markProbed(path)
	return 0, 0, false
}

func (h *Helper) Duration(path string) (seconds int, ok bool) {
	h.markProbed(path)
	return 0, false
}

func (h *Helper) Thumbnail(path string) (thumbPath string, w, height, durationSec int, ok bool) {
	h.markProbed(path)
	return "", 0, 0, 0, false
}

func (h *Helper) markProbed(path string) {
	h.mu.Lock()
	h.cache[path] = true
	h.mu.Unlock()
}
