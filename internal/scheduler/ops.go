package scheduler

import (
	"context"
	"time"

	"postpilot/internal/store"
	logx "postpilot/pkg/logx"
)

// Manual operator actions. They share the engine mutex with poll cycles so
// an operator call never interleaves with in-cycle mutation of the same task.

// Cancel moves a scheduled|retrying task to cancelled. Any other state is a
// no-op returning the unchanged task; an in-flight dispatch is never preempted.
func (e *Engine) Cancel(ctx context.Context, id string) (store.PublishTask, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, err := e.store.GetTask(ctx, id)
	if err != nil {
		return store.PublishTask{}, err
	}
	if t.Status != store.TaskScheduled && t.Status != store.TaskRetrying {
		return t, nil
	}

	cancelled := store.TaskCancelled
	completedAt := e.now()
	t, err = e.store.UpdateTask(ctx, id, store.TaskUpdate{Status: &cancelled, CompletedAt: &completedAt})
	if err != nil {
		return store.PublishTask{}, err
	}
	e.appendLog(ctx, id, store.LogInfo, "task cancelled by operator")
	e.log.Info("task cancelled", logx.String("task", id))
	return t, nil
}

// Retry resets a task from any state back to scheduled with a fresh retry
// budget.
func (e *Engine) Retry(ctx context.Context, id string) (store.PublishTask, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reschedule(ctx, id, nil)
}

// ExecuteNow is Retry plus forcing publishAt into the past so the next poll
// cycle treats the task as due immediately.
func (e *Engine) ExecuteNow(ctx context.Context, id string) (store.PublishTask, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	past := e.now().Add(-time.Second)
	return e.reschedule(ctx, id, &past)
}

func (e *Engine) reschedule(ctx context.Context, id string, publishAt *time.Time) (store.PublishTask, error) {
	if _, err := e.store.GetTask(ctx, id); err != nil {
		return store.PublishTask{}, err
	}

	scheduled := store.TaskScheduled
	zero := 0
	clear := ""
	t, err := e.store.UpdateTask(ctx, id, store.TaskUpdate{
		Status:           &scheduled,
		PublishAt:        publishAt,
		RetryCount:       &zero,
		ErrorMessage:     &clear,
		ClearCompletedAt: true,
	})
	if err != nil {
		return store.PublishTask{}, err
	}
	e.appendLog(ctx, id, store.LogInfo, "task rescheduled by operator")
	e.log.Info("task rescheduled", logx.String("task", id))
	return t, nil
}
