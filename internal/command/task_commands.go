package command

import (
	"fmt"

	"github.com/mpeeters/tasknest/internal/domain/base"
	"github.com/mpeeters/tasknest/internal/domain/task"
	"github.com/mpeeters/tasknest/internal/event"
)

// NewTaskCommand creates a task, optionally as a child of an existing one.
type NewTaskCommand struct {
	doc      *task.Document
	subject  string
	parentID string
	created  *task.Task
}

// NewTask returns a command that creates a task with the given subject.
// parentID may be ""; a non-empty parentID that no longer resolves when
// the command runs makes the task a root instead.
func NewTask(doc *task.Document, subject, parentID string) *NewTaskCommand {
	return &NewTaskCommand{doc: doc, subject: subject, parentID: parentID}
}

// Do creates the task and adds it to the document.
func (c *NewTaskCommand) Do() error {
	c.created = task.NewTask(c.doc.Bus(), c.subject)
	c.add()
	return nil
}

// Undo removes the created task again. It keeps its reference so a redo
// restores the very same object.
func (c *NewTaskCommand) Undo() error {
	if c.created == nil {
		return nil
	}
	batch := event.NewBatch(c.doc.Bus())
	defer batch.Flush()
	if parent := c.created.Parent(); parent != nil {
		if parentTask, ok := parent.(*task.Task); ok {
			parentTask.RemoveChild(c.created, batch)
		}
	}
	c.doc.Tasks.Remove(batch, c.created)
	return nil
}

// Redo re-adds the task created by the first run.
func (c *NewTaskCommand) Redo() error {
	if c.created == nil {
		return c.Do()
	}
	c.add()
	return nil
}

func (c *NewTaskCommand) add() {
	batch := event.NewBatch(c.doc.Bus())
	defer batch.Flush()
	if parent := c.doc.Tasks.ByID(c.parentID); parent != nil {
		_ = parent.AddChild(c.created, batch)
	}
	c.doc.Tasks.Add(batch, c.created)
}

// Task returns the created task, nil before the first run.
func (c *NewTaskCommand) Task() *task.Task { return c.created }

// Description implements Command.
func (c *NewTaskCommand) Description() string {
	return fmt.Sprintf("New task %q", c.subject)
}

// DeleteTasksCommand marks tasks (and their subtasks) deleted and removes
// them from the document. Undo restores them with their prior statuses.
type DeleteTasksCommand struct {
	doc      *task.Document
	ids      []string
	deleted  []*task.Task
	statuses map[string]base.Status
}

// DeleteTasks returns a command deleting the given tasks.
func DeleteTasks(doc *task.Document, tasks ...*task.Task) *DeleteTasksCommand {
	c := &DeleteTasksCommand{doc: doc}
	for _, t := range tasks {
		c.ids = append(c.ids, t.ID())
	}
	return c
}

// Do resolves the targets by id; tasks that vanished since the command was
// built are skipped.
func (c *DeleteTasksCommand) Do() error {
	c.deleted = nil
	c.statuses = make(map[string]base.Status)
	batch := event.NewBatch(c.doc.Bus())
	defer batch.Flush()
	for _, id := range c.ids {
		t := c.doc.Tasks.ByID(id)
		if t == nil {
			continue
		}
		c.deleted = append(c.deleted, t)
		c.statuses[t.ID()] = t.Status()
		for _, child := range t.Children(true) {
			c.statuses[child.ID()] = child.Status()
		}
		t.MarkDeleted(batch)
		c.doc.Tasks.Remove(batch, t)
	}
	return nil
}

// Undo re-adds the deleted tasks and restores their lifecycle statuses.
func (c *DeleteTasksCommand) Undo() error {
	batch := event.NewBatch(c.doc.Bus())
	defer batch.Flush()
	for _, t := range c.deleted {
		c.doc.Tasks.Add(batch, t)
		c.restoreStatus(t, batch)
		for _, child := range t.Children(true) {
			c.restoreStatus(child, batch)
		}
	}
	return nil
}

func (c *DeleteTasksCommand) restoreStatus(item base.Item, batch *event.Batch) {
	status, ok := c.statuses[item.ID()]
	if !ok {
		return
	}
	switch status {
	case base.StatusNone:
		item.CleanDirty(batch)
	case base.StatusNew:
		item.MarkNew(batch)
	case base.StatusChanged:
		item.CleanDirty(batch)
		item.MarkDirty(true, batch)
	case base.StatusDeleted:
		item.MarkDeleted(batch)
	}
}

// Redo deletes the same tasks again.
func (c *DeleteTasksCommand) Redo() error { return c.Do() }

// Description implements Command.
func (c *DeleteTasksCommand) Description() string {
	if len(c.ids) == 1 {
		return "Delete task"
	}
	return fmt.Sprintf("Delete %d tasks", len(c.ids))
}

// EditSubjectCommand renames any document entity.
type EditSubjectCommand struct {
	doc     *task.Document
	id      string
	old     string
	subject string
}

// EditSubject returns a command renaming item to subject.
func EditSubject(doc *task.Document, item base.Item, subject string) *EditSubjectCommand {
	return &EditSubjectCommand{
		doc:     doc,
		id:      item.ID(),
		old:     item.Subject(false),
		subject: subject,
	}
}

// Do applies the new subject; a vanished target is a no-op.
func (c *EditSubjectCommand) Do() error {
	return c.set(c.subject)
}

// Undo restores the previous subject.
func (c *EditSubjectCommand) Undo() error {
	return c.set(c.old)
}

// Redo re-applies the new subject.
func (c *EditSubjectCommand) Redo() error { return c.Do() }

func (c *EditSubjectCommand) set(subject string) error {
	item := resolve(c.doc, c.id)
	if item == nil {
		return nil
	}
	batch := event.NewBatch(c.doc.Bus())
	defer batch.Flush()
	type subjectSetter interface {
		SetSubject(subject string, batch *event.Batch)
	}
	if setter, ok := item.(subjectSetter); ok {
		setter.SetSubject(subject, batch)
	}
	return nil
}

// Description implements Command.
func (c *EditSubjectCommand) Description() string {
	return fmt.Sprintf("Edit subject of %q", c.old)
}

// resolve finds an entity by id across all document containers.
func resolve(doc *task.Document, id string) base.Item {
	if t := doc.Tasks.ByID(id); t != nil {
		return t
	}
	if cat := doc.Categories.ByID(id); cat != nil {
		return cat
	}
	if n := doc.Notes.ByID(id); n != nil {
		return n
	}
	if e := doc.Efforts.ByID(id); e != nil {
		return e
	}
	return nil
}
