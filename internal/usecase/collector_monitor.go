package usecase

import (
	"sort"
	"sync"
	"time"

	"tgforward/internal/domain"
)

// albumDebounce is the window a real-time album buffer stays open waiting for
// further members before it is sorted and emitted (spec.md §4.4.2).
const albumDebounce = time.Second

// Two independent bounds exist on purpose: processedCap/processedKeepRecent
// bound the "already emitted" set so a long-running monitor never grows it
// without limit (the redesign fix spec.md §4.4.2 calls for); the live buffer
// map in pending is bounded separately by album lifetime, so an eviction of
// an old processed-id can never make an in-flight album's lock disappear.
const (
	processedCap        = 1000
	processedKeepRecent = 500
)

type pendingAlbum struct {
	mu      sync.Mutex
	members []domain.Message
	timer   *time.Timer
}

// MonitorCollector assembles a live incoming-message stream into MediaGroups,
// grounded on tg_manager/core/monitor.py's per-album asyncio.Lock + one-second
// window, translated to a per-album mutex plus time.AfterFunc.
type MonitorCollector struct {
	mu        sync.Mutex
	pending   map[string]*pendingAlbum
	processed map[string]int64
	seq       int64

	source domain.ChannelRef
	emit   func(domain.MediaGroup)
}

func NewMonitorCollector(source domain.ChannelRef, emit func(domain.MediaGroup)) *MonitorCollector {
	return &MonitorCollector{
		pending:   make(map[string]*pendingAlbum),
		processed: make(map[string]int64),
		source:    source,
		emit:      emit,
	}
}

// Handle is the per-message callback registered with domain.RemoteAPI.Subscribe.
func (c *MonitorCollector) Handle(msg domain.Message) {
	if msg.AlbumID == "" {
		c.emit(domain.MediaGroup{Source: c.source, Messages: []domain.Message{msg}, Caption: msg.Caption})
		return
	}

	c.mu.Lock()
	if _, done := c.processed[msg.AlbumID]; done {
		c.mu.Unlock()
		// The album already flushed; this straggler missed its window. Emit
		// it as its own one-message group rather than dropping it — the
		// history store still guards against delivering it twice.
		c.emit(domain.MediaGroup{Source: c.source, AlbumID: msg.AlbumID, Messages: []domain.Message{msg}, Caption: msg.Caption})
		return
	}
	p, exists := c.pending[msg.AlbumID]
	if !exists {
		p = &pendingAlbum{}
		c.pending[msg.AlbumID] = p
		albumID := msg.AlbumID
		p.timer = time.AfterFunc(albumDebounce, func() { c.flush(albumID) })
	}
	c.mu.Unlock()

	p.mu.Lock()
	p.members = append(p.members, msg)
	p.mu.Unlock()
}

func (c *MonitorCollector) flush(albumID string) {
	c.mu.Lock()
	p, ok := c.pending[albumID]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.pending, albumID)
	c.markProcessed(albumID)
	c.mu.Unlock()

	p.mu.Lock()
	members := make([]domain.Message, len(p.members))
	copy(members, p.members)
	p.mu.Unlock()

	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	c.emit(domain.MediaGroup{
		Source:   c.source,
		AlbumID:  albumID,
		Messages: members,
		Caption:  ExtractAlbumCaption(members),
	})
}

func (c *MonitorCollector) markProcessed(albumID string) {
	c.seq++
	c.processed[albumID] = c.seq
	if len(c.processed) <= processedCap {
		return
	}

	type entry struct {
		id  string
		seq int64
	}
	all := make([]entry, 0, len(c.processed))
	for id, seq := range c.processed {
		all = append(all, entry{id, seq})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seq > all[j].seq })

	kept := make(map[string]int64, processedKeepRecent)
	for _, e := range all[:processedKeepRecent] {
		kept[e.id] = e.seq
	}
	c.processed = kept
}

// Drain flushes every in-flight album immediately instead of waiting out its
// debounce timer, used on graceful monitor shutdown (spec.md §4.6).
func (c *MonitorCollector) Drain() {
	c.mu.Lock()
	ids := make([]string, 0, len(c.pending))
	for id, p := range c.pending {
		p.timer.Stop()
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		c.flush(id)
	}
}
