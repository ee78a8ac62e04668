package usecase

import (
	"context"
	"testing"

	"tgforward/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_NewTaskRegistersAndIsRetrievable(t *testing.T) {
	c := NewController()
	task := c.NewTask(context.Background(), domain.TaskDownload)

	got, ok := c.Get(task.ID)
	require.True(t, ok)
	assert.Same(t, task, got)
	assert.Equal(t, domain.TaskDownload, got.Kind)
}

func TestController_GetUnknownIDReturnsFalse(t *testing.T) {
	c := NewController()
	_, ok := c.Get("does-not-exist")
	assert.False(t, ok)
}

func TestController_ListReturnsAllRegisteredTasks(t *testing.T) {
	c := NewController()
	a := c.NewTask(context.Background(), domain.TaskDownload)
	b := c.NewTask(context.Background(), domain.TaskUpload)

	list := c.List()
	assert.Len(t, list, 2)
	ids := []string{list[0].ID, list[1].ID}
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)
}

func TestController_CancelMarksTaskCancelledAndStopsGate(t *testing.T) {
	c := NewController()
	task := c.NewTask(context.Background(), domain.TaskForward)

	ok := c.Cancel(task.ID)
	require.True(t, ok)
	assert.Equal(t, domain.StatusCancelled, task.Status())
	assert.True(t, task.Cancel.IsCancelled())
	assert.ErrorIs(t, task.Gate(context.Background()), domain.ErrTaskCancelled)
}

func TestController_CancelUnknownIDReturnsFalse(t *testing.T) {
	c := NewController()
	assert.False(t, c.Cancel("nope"))
}

func TestController_PauseThenResume(t *testing.T) {
	c := NewController()
	task := c.NewTask(context.Background(), domain.TaskMonitor)

	require.True(t, c.Pause(task.ID))
	assert.Equal(t, domain.StatusPaused, task.Status())
	assert.True(t, task.Pause.IsPaused())

	require.True(t, c.Resume(task.ID))
	assert.Equal(t, domain.StatusRunning, task.Status())
	assert.False(t, task.Pause.IsPaused())
}

func TestController_NewTaskIDsAreUnique(t *testing.T) {
	c := NewController()
	a := c.NewTask(context.Background(), domain.TaskDownload)
	b := c.NewTask(context.Background(), domain.TaskDownload)
	assert.NotEqual(t, a.ID, b.ID)
}
