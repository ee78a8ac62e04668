package usecase

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"tgforward/internal/domain"
)

// Monitor runs the real-time pipeline for channel pairs, grounded on
// tg_manager/core/monitor.py's MessageHandler registration and stop_event
// driven shutdown, translated to gotd/td's UpdateDispatcher subscription.
type Monitor struct {
	Remote   domain.RemoteAPI
	Pipeline *Pipeline

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

func NewMonitor(remote domain.RemoteAPI, pipeline *Pipeline) *Monitor {
	return &Monitor{Remote: remote, Pipeline: pipeline, active: make(map[string]context.CancelFunc)}
}

// subscriptionIdentity is (sourceCanonical, sortedTargets) — spec.md §4.6's
// rule that restarting an identical monitor is a no-op.
func subscriptionIdentity(source string, targets []string) string {
	sorted := append([]string(nil), targets...)
	sort.Strings(sorted)
	return source + "|" + strings.Join(sorted, ",")
}

// Start begins monitoring one source/targets pair. It blocks until ctx ends,
// the duration bound elapses, or the pipeline returns. Restarting an already
// active (source, targets) identity is a no-op that returns immediately.
func (m *Monitor) Start(ctx context.Context, task *domain.Task, pair domain.ChannelPair, source domain.ChannelRef, targets []domain.ChannelRef, duration string) error {
	targetInputs := make([]string, len(targets))
	for i, t := range targets {
		targetInputs[i] = t.Input
	}
	identity := subscriptionIdentity(source.Input, targetInputs)

	m.mu.Lock()
	if _, exists := m.active[identity]; exists {
		m.mu.Unlock()
		return nil
	}
	subCtx, cancel := context.WithCancel(ctx)
	m.active[identity] = cancel
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.active, identity)
		m.mu.Unlock()
	}()

	if duration != "" {
		deadline, err := parseMonitorDeadline(duration)
		if err != nil {
			cancel()
			return err
		}
		if !deadline.After(time.Now()) {
			cancel()
			return fmt.Errorf("usecase: monitor duration %q is in the past", duration)
		}
		timer := time.AfterFunc(time.Until(deadline), cancel)
		defer timer.Stop()
	}

	raw := make(chan domain.MediaGroup, 16)
	collector := NewMonitorCollector(source, func(g domain.MediaGroup) {
		select {
		case raw <- g:
		case <-subCtx.Done():
		}
	})

	unsubscribe, err := m.Remote.Subscribe(subCtx, source, collector.Handle)
	if err != nil {
		close(raw)
		return err
	}

	go func() {
		<-subCtx.Done()
		unsubscribe()
		collector.Drain()
		close(raw)
	}()

	return m.Pipeline.Run(subCtx, task, pair, targets, raw)
}

// Stop cancels an active monitor by (source, targets) identity; a no-op if
// no such monitor is running (spec.md §4.6 "Graceful stop").
func (m *Monitor) Stop(source string, targets []string) {
	identity := subscriptionIdentity(source, targets)
	m.mu.Lock()
	cancel, ok := m.active[identity]
	m.mu.Unlock()
	if ok {
		cancel()
	}
}

// parseMonitorDeadline parses the YYYY-M-D-H duration-bound format.
func parseMonitorDeadline(s string) (time.Time, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 4 {
		return time.Time{}, fmt.Errorf("usecase: invalid duration %q, want YYYY-M-D-H", s)
	}
	nums := make([]int, 4)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return time.Time{}, fmt.Errorf("usecase: invalid duration %q: %w", s, err)
		}
		nums[i] = n
	}
	return time.Date(nums[0], time.Month(nums[1]), nums[2], nums[3], 0, 0, 0, time.Local), nil
}
