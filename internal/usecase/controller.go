package usecase

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"

	"tgforward/internal/domain"
)

// Controller tracks every Task the engine has started, giving the CLI a
// single place to list/cancel/pause running operations (spec.md §4.7).
type Controller struct {
	mu    sync.Mutex
	tasks map[string]*domain.Task
}

func NewController() *Controller {
	return &Controller{tasks: make(map[string]*domain.Task)}
}

// NewTask creates and registers a Task of the given kind, deriving its
// cancellation from parent.
func (c *Controller) NewTask(parent context.Context, kind domain.TaskKind) *domain.Task {
	task := domain.NewTask(newTaskID(), kind, parent)
	c.mu.Lock()
	c.tasks[task.ID] = task
	c.mu.Unlock()
	return task
}

func (c *Controller) Get(id string) (*domain.Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tasks[id]
	return t, ok
}

func (c *Controller) List() []*domain.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*domain.Task, 0, len(c.tasks))
	for _, t := range c.tasks {
		out = append(out, t)
	}
	return out
}

func (c *Controller) Cancel(id string) bool {
	t, ok := c.Get(id)
	if !ok {
		return false
	}
	t.Cancel.Cancel()
	t.SetStatus(domain.StatusCancelled)
	return true
}

func (c *Controller) Pause(id string) bool {
	t, ok := c.Get(id)
	if !ok {
		return false
	}
	t.Pause.Pause()
	t.SetStatus(domain.StatusPaused)
	return true
}

func (c *Controller) Resume(id string) bool {
	t, ok := c.Get(id)
	if !ok {
		return false
	}
	t.Pause.Resume()
	t.SetStatus(domain.StatusRunning)
	return true
}

func newTaskID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
