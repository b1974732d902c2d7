package task

import (
	"time"

	"github.com/mpeeters/tasknest/internal/domain/base"
	"github.com/mpeeters/tasknest/internal/event"
)

// Event topics published by efforts.
const (
	TopicEffortStart = "effort.start"
	TopicEffortStop  = "effort.stop"
	TopicEffortTask  = "effort.task"
)

// Effort is a tracked stretch of time spent on a task. It is a plain
// change-tracked object: efforts do not nest. A zero stop time means the
// effort is still being tracked.
type Effort struct {
	base.Object

	task  *Task
	start time.Time
	stop  time.Time
}

// NewEffort creates an effort for task (which may be nil for untracked
// time) starting at start.
func NewEffort(bus *event.Bus, task *Task, start, stop time.Time) *Effort {
	e := &Effort{task: task, start: start, stop: stop}
	e.Object = base.NewObject(bus, e)
	return e
}

// Task returns the task the effort was spent on, nil for untracked time.
func (e *Effort) Task() *Task { return e.task }

// SetTask reassigns the effort to another task.
func (e *Effort) SetTask(task *Task, batch *event.Batch) {
	if task == e.task {
		return
	}
	batch, flush := event.Ensure(e.Bus(), batch)
	defer flush()
	e.task = task
	batch.Add(TopicEffortTask, e, task)
	e.MarkDirty(false, batch)
}

// Start returns when the effort started.
func (e *Effort) Start() time.Time { return e.start }

// SetStart changes the start timestamp.
func (e *Effort) SetStart(start time.Time, batch *event.Batch) {
	if start.Equal(e.start) {
		return
	}
	batch, flush := event.Ensure(e.Bus(), batch)
	defer flush()
	e.start = start
	batch.Add(TopicEffortStart, e, start)
	e.MarkDirty(false, batch)
}

// Stop returns when the effort stopped; zero while still tracking.
func (e *Effort) Stop() time.Time { return e.stop }

// SetStop changes the stop timestamp.
func (e *Effort) SetStop(stop time.Time, batch *event.Batch) {
	if stop.Equal(e.stop) {
		return
	}
	batch, flush := event.Ensure(e.Bus(), batch)
	defer flush()
	e.stop = stop
	batch.Add(TopicEffortStop, e, stop)
	e.MarkDirty(false, batch)
}

// IsBeingTracked reports whether the effort has no stop time yet.
func (e *Effort) IsBeingTracked() bool { return e.stop.IsZero() }

// Duration returns the tracked duration; for a running effort it is the
// time elapsed until now.
func (e *Effort) Duration(now time.Time) time.Duration {
	stop := e.stop
	if stop.IsZero() {
		stop = now
	}
	return stop.Sub(e.start)
}
