// Package task implements the concrete domain entities (tasks, efforts,
// notes, attachments) and the containers that own them, including the
// snapshot/restore support the sync protocol uses to roll back an
// interrupted session.
package task

import (
	"time"

	"github.com/mpeeters/tasknest/internal/domain/base"
	"github.com/mpeeters/tasknest/internal/domain/date"
	"github.com/mpeeters/tasknest/internal/event"
)

// Event topics published by tasks.
const (
	TopicPlannedStart = "task.plannedStartDateTime"
	TopicDue          = "task.dueDateTime"
	TopicCompletion   = "task.completionDateTime"
	TopicReminder     = "task.reminder"
	TopicPriority     = "task.priority"
	TopicRecurrence   = "task.recurrence"
	TopicFee          = "task.fee"
	TopicAttachment   = "task.attachment"
)

// Attachment is a reference to an external resource attached to a task.
type Attachment struct {
	Location string
}

// Task is a categorizable composite object with scheduling state. All
// date/time attributes use the zero time.Time for "not set".
type Task struct {
	base.Categorizable

	plannedStart time.Time
	due          time.Time
	completion   time.Time
	reminder     time.Time
	priority     int
	recurrence   *date.Recurrence
	hourlyFee    float64
	fixedFee     float64
	attachments  []Attachment
}

// NewTask creates a root task with the given subject.
func NewTask(bus *event.Bus, subject string) *Task {
	t := &Task{}
	t.Categorizable = base.NewCategorizable(bus, t)
	t.SetSubject(subject, nil)
	return t
}

// NewChild creates a subtask linked under this task.
func (t *Task) NewChild(subject string, batch *event.Batch) *Task {
	child := NewTask(t.Bus(), subject)
	// Linking a fresh child cannot cycle.
	_ = t.AddChild(child, batch)
	return child
}

// PlannedStartDateTime returns when work on the task is planned to start.
func (t *Task) PlannedStartDateTime() time.Time { return t.plannedStart }

// SetPlannedStartDateTime changes the planned start.
func (t *Task) SetPlannedStartDateTime(value time.Time, batch *event.Batch) {
	t.setDateTime(&t.plannedStart, value, TopicPlannedStart, batch)
}

// DueDateTime returns the deadline.
func (t *Task) DueDateTime() time.Time { return t.due }

// SetDueDateTime changes the deadline.
func (t *Task) SetDueDateTime(value time.Time, batch *event.Batch) {
	t.setDateTime(&t.due, value, TopicDue, batch)
}

// CompletionDateTime returns when the task was completed, zero when open.
func (t *Task) CompletionDateTime() time.Time { return t.completion }

// SetCompletionDateTime changes the completion timestamp.
func (t *Task) SetCompletionDateTime(value time.Time, batch *event.Batch) {
	t.setDateTime(&t.completion, value, TopicCompletion, batch)
}

// Reminder returns the reminder timestamp, zero when unset.
func (t *Task) Reminder() time.Time { return t.reminder }

// SetReminder changes the reminder timestamp.
func (t *Task) SetReminder(value time.Time, batch *event.Batch) {
	t.setDateTime(&t.reminder, value, TopicReminder, batch)
}

func (t *Task) setDateTime(field *time.Time, value time.Time, topic string, batch *event.Batch) {
	if field.Equal(value) {
		return
	}
	batch, flush := event.Ensure(t.Bus(), batch)
	defer flush()
	*field = value
	batch.Add(topic, t, value)
	t.MarkDirty(false, batch)
}

// Completed reports whether the task has a completion timestamp.
func (t *Task) Completed() bool { return !t.completion.IsZero() }

// Overdue reports whether the task's deadline has passed without it being
// completed.
func (t *Task) Overdue(now time.Time) bool {
	return !t.due.IsZero() && now.After(t.due) && !t.Completed()
}

// Priority returns the task priority; higher is more important.
func (t *Task) Priority() int { return t.priority }

// SetPriority changes the priority.
func (t *Task) SetPriority(priority int, batch *event.Batch) {
	if priority == t.priority {
		return
	}
	batch, flush := event.Ensure(t.Bus(), batch)
	defer flush()
	t.priority = priority
	batch.Add(TopicPriority, t, priority)
	t.MarkDirty(false, batch)
}

// Recurrence returns the recurrence rule, nil when the task does not
// recur.
func (t *Task) Recurrence() *date.Recurrence { return t.recurrence }

// SetRecurrence changes the recurrence rule.
func (t *Task) SetRecurrence(recurrence *date.Recurrence, batch *event.Batch) {
	batch, flush := event.Ensure(t.Bus(), batch)
	defer flush()
	t.recurrence = recurrence
	batch.Add(TopicRecurrence, t, recurrence)
	t.MarkDirty(false, batch)
}

// Complete marks the task done at now. A recurring task reschedules its
// planned start and due dates to the next occurrence instead of
// completing.
func (t *Task) Complete(now time.Time, batch *event.Batch) {
	batch, flush := event.Ensure(t.Bus(), batch)
	defer flush()
	if t.recurrence != nil && t.recurrence.Unit != date.UnitNone {
		t.SetPlannedStartDateTime(t.recurrence.NextDateTime(t.plannedStart), batch)
		t.SetDueDateTime(t.recurrence.Next(t.due), batch)
		return
	}
	t.SetCompletionDateTime(now, batch)
}

// HourlyFee returns the fee charged per hour of effort.
func (t *Task) HourlyFee() float64 { return t.hourlyFee }

// SetHourlyFee changes the hourly fee.
func (t *Task) SetHourlyFee(fee float64, batch *event.Batch) {
	t.setFee(&t.hourlyFee, fee, batch)
}

// FixedFee returns the one-off fee for the task.
func (t *Task) FixedFee() float64 { return t.fixedFee }

// SetFixedFee changes the fixed fee.
func (t *Task) SetFixedFee(fee float64, batch *event.Batch) {
	t.setFee(&t.fixedFee, fee, batch)
}

func (t *Task) setFee(field *float64, fee float64, batch *event.Batch) {
	if fee == *field {
		return
	}
	batch, flush := event.Ensure(t.Bus(), batch)
	defer flush()
	*field = fee
	batch.Add(TopicFee, t, fee)
	t.MarkDirty(false, batch)
}

// Attachments returns the task's attachments.
func (t *Task) Attachments() []Attachment {
	result := make([]Attachment, len(t.attachments))
	copy(result, t.attachments)
	return result
}

// AddAttachment attaches an external resource.
func (t *Task) AddAttachment(attachment Attachment, batch *event.Batch) {
	batch, flush := event.Ensure(t.Bus(), batch)
	defer flush()
	t.attachments = append(t.attachments, attachment)
	batch.Add(TopicAttachment, t, attachment)
	t.MarkDirty(false, batch)
}

// RemoveAttachment detaches a resource by location; unknown locations are
// ignored.
func (t *Task) RemoveAttachment(location string, batch *event.Batch) {
	for i, attachment := range t.attachments {
		if attachment.Location == location {
			batch, flush := event.Ensure(t.Bus(), batch)
			defer flush()
			t.attachments = append(t.attachments[:i:i], t.attachments[i+1:]...)
			batch.Add(TopicAttachment, t, attachment)
			t.MarkDirty(false, batch)
			return
		}
	}
}
