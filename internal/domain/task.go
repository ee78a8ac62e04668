package domain

import (
	"context"
	"sync"
	"sync/atomic"
)

// CancelToken is a one-way cancellation flag shared between a Task and the
// goroutines running it. Unlike a bare context.CancelFunc it can be inspected
// (IsCancelled) without a select, which the pipeline's tight inner loops want.
type CancelToken struct {
	cancelled atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewCancelToken derives a token from parent; cancelling the token cancels
// the derived context, and cancelling parent cancels the token.
func NewCancelToken(parent context.Context) *CancelToken {
	ctx, cancel := context.WithCancel(parent)
	return &CancelToken{ctx: ctx, cancel: cancel}
}

func (t *CancelToken) Cancel() {
	t.cancelled.Store(true)
	t.cancel()
}

func (t *CancelToken) IsCancelled() bool {
	return t.cancelled.Load() || t.ctx.Err() != nil
}

// Context returns a context cancelled when the token is cancelled, suitable
// for passing to RemoteAPI calls.
func (t *CancelToken) Context() context.Context {
	return t.ctx
}

// PauseToken gates a goroutine between running and paused. Resume is
// idempotent; WaitIfPaused blocks until Resume or the supplied context ends.
type PauseToken struct {
	mu     sync.Mutex
	paused bool
	resume chan struct{}
}

func NewPauseToken() *PauseToken {
	return &PauseToken{resume: make(chan struct{})}
}

func (p *PauseToken) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		p.paused = true
		p.resume = make(chan struct{})
	}
}

func (p *PauseToken) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		p.paused = false
		close(p.resume)
	}
}

func (p *PauseToken) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// WaitIfPaused blocks while paused. Returns ctx.Err() if ctx ends first.
func (p *PauseToken) WaitIfPaused(ctx context.Context) error {
	p.mu.Lock()
	ch := p.resume
	paused := p.paused
	p.mu.Unlock()
	if !paused {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Task is one running operation (download/upload/forward/monitor) tracked by
// the controller for cancellation, pausing, and status reporting.
type Task struct {
	ID     string
	Kind   TaskKind
	Cancel *CancelToken
	Pause  *PauseToken

	mu     sync.Mutex
	status TaskStatus
	stats  Stats
	err    error
}

func NewTask(id string, kind TaskKind, parent context.Context) *Task {
	return &Task{
		ID:     id,
		Kind:   kind,
		Cancel: NewCancelToken(parent),
		Pause:  NewPauseToken(),
		status: StatusPending,
	}
}

func (t *Task) SetStatus(s TaskStatus) {
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
}

func (t *Task) Status() TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *Task) SetErr(err error) {
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
}

func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Task) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

func (t *Task) AddStats(delta Stats) {
	t.mu.Lock()
	t.stats.TotalMessages += delta.TotalMessages
	t.stats.Forwarded += delta.Forwarded
	t.stats.DownloadedUploaded += delta.DownloadedUploaded
	t.stats.Skipped += delta.Skipped
	t.stats.Filtered += delta.Filtered
	t.stats.Failed += delta.Failed
	t.mu.Unlock()
}

// Gate blocks if the task is paused and returns ErrTaskCancelled if cancelled.
// Call at every loop iteration boundary (per message, per album) so pause and
// cancel take effect promptly without polling.
func (t *Task) Gate(ctx context.Context) error {
	if t.Cancel.IsCancelled() {
		return ErrTaskCancelled
	}
	if err := t.Pause.WaitIfPaused(ctx); err != nil {
		return err
	}
	if t.Cancel.IsCancelled() {
		return ErrTaskCancelled
	}
	return nil
}
