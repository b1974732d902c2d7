package task

import (
	"github.com/mpeeters/tasknest/internal/domain/base"
	"github.com/mpeeters/tasknest/internal/domain/category"
	"github.com/mpeeters/tasknest/internal/event"
)

// Event topics published by the containers.
const (
	TopicTaskAdded       = "tasklist.add"
	TopicTaskRemoved     = "tasklist.remove"
	TopicCategoryAdded   = "categorylist.add"
	TopicCategoryRemoved = "categorylist.remove"
	TopicEffortAdded     = "effortlist.add"
	TopicEffortRemoved   = "effortlist.remove"
	TopicNoteAdded       = "notecontainer.add"
	TopicNoteRemoved     = "notecontainer.remove"
)

// TaskList owns every task of a document, subtasks included. Adding or
// removing a task keeps the category back-references of the task and its
// descendants consistent.
type TaskList struct {
	bus   *event.Bus
	items []*Task
	byID  map[string]*Task
}

// NewTaskList creates an empty task list.
func NewTaskList(bus *event.Bus) *TaskList {
	return &TaskList{bus: bus, byID: make(map[string]*Task)}
}

// Len returns the number of tasks held.
func (l *TaskList) Len() int { return len(l.items) }

// ByID returns the task with the given id, nil when absent.
func (l *TaskList) ByID(id string) *Task { return l.byID[id] }

// Contains reports whether t is held by this list.
func (l *TaskList) Contains(t *Task) bool {
	return t != nil && l.byID[t.ID()] == t
}

// All returns every task in insertion order.
func (l *TaskList) All() []*Task {
	result := make([]*Task, len(l.items))
	copy(result, l.items)
	return result
}

// Roots returns the tasks without a parent, in insertion order.
func (l *TaskList) Roots() []*Task {
	var roots []*Task
	for _, t := range l.items {
		if t.Parent() == nil {
			roots = append(roots, t)
		}
	}
	return roots
}

// AllSorted returns every task with parents preceding their children, the
// order the sync protocol requires when transmitting a full dataset.
func (l *TaskList) AllSorted() []*Task {
	var result []*Task
	var walk func(t *Task)
	walk = func(t *Task) {
		result = append(result, t)
		for _, child := range t.Children(false) {
			if childTask, ok := child.(*Task); ok && l.Contains(childTask) {
				walk(childTask)
			}
		}
	}
	for _, root := range l.Roots() {
		walk(root)
	}
	return result
}

// Add inserts the given tasks and their descendants, registering category
// membership on the category side.
func (l *TaskList) Add(batch *event.Batch, tasks ...*Task) {
	batch, flush := event.Ensure(l.bus, batch)
	defer flush()
	for _, t := range tasks {
		l.addOne(batch, t)
		for _, child := range t.Children(true) {
			if childTask, ok := child.(*Task); ok {
				l.addOne(batch, childTask)
			}
		}
	}
}

func (l *TaskList) addOne(batch *event.Batch, t *Task) {
	if l.Contains(t) {
		return
	}
	l.items = append(l.items, t)
	l.byID[t.ID()] = t
	for _, item := range t.Categories(false, false) {
		if cat, ok := item.(*category.Category); ok {
			cat.AddCategorizable(batch, t)
		}
	}
	batch.Add(TopicTaskAdded, t, nil)
}

// Remove removes the given tasks and their descendants, forgetting their
// category membership on the category side. The tasks keep their own
// category references so an undo can re-add them unchanged.
func (l *TaskList) Remove(batch *event.Batch, tasks ...*Task) {
	batch, flush := event.Ensure(l.bus, batch)
	defer flush()
	for _, t := range tasks {
		for _, child := range t.Children(true) {
			if childTask, ok := child.(*Task); ok {
				l.removeOne(batch, childTask)
			}
		}
		l.removeOne(batch, t)
	}
}

func (l *TaskList) removeOne(batch *event.Batch, t *Task) {
	if !l.Contains(t) {
		return
	}
	for i, existing := range l.items {
		if existing == t {
			l.items = append(l.items[:i:i], l.items[i+1:]...)
			break
		}
	}
	delete(l.byID, t.ID())
	for _, item := range t.Categories(false, false) {
		if cat, ok := item.(*category.Category); ok {
			cat.RemoveCategorizable(batch, t)
		}
	}
	batch.Add(TopicTaskRemoved, t, nil)
}

// Clear drops every task without publishing per-task events. Used when a
// document is replaced wholesale (full-from-device sync, file close).
func (l *TaskList) Clear() {
	l.items = nil
	l.byID = make(map[string]*Task)
}

// CategoryList owns every category of a document, subcategories included.
type CategoryList struct {
	bus   *event.Bus
	items []*category.Category
	byID  map[string]*category.Category
}

// NewCategoryList creates an empty category list.
func NewCategoryList(bus *event.Bus) *CategoryList {
	return &CategoryList{bus: bus, byID: make(map[string]*category.Category)}
}

// Len returns the number of categories held.
func (l *CategoryList) Len() int { return len(l.items) }

// ByID returns the category with the given id, nil when absent.
func (l *CategoryList) ByID(id string) *category.Category { return l.byID[id] }

// Contains reports whether c is held by this list.
func (l *CategoryList) Contains(c *category.Category) bool {
	return c != nil && l.byID[c.ID()] == c
}

// All returns every category in insertion order.
func (l *CategoryList) All() []*category.Category {
	result := make([]*category.Category, len(l.items))
	copy(result, l.items)
	return result
}

// Roots returns the categories without a parent.
func (l *CategoryList) Roots() []*category.Category {
	var roots []*category.Category
	for _, c := range l.items {
		if c.Parent() == nil {
			roots = append(roots, c)
		}
	}
	return roots
}

// AllSorted returns every category with parents preceding children.
func (l *CategoryList) AllSorted() []*category.Category {
	var result []*category.Category
	var walk func(c *category.Category)
	walk = func(c *category.Category) {
		result = append(result, c)
		for _, child := range c.Children(false) {
			if childCat, ok := child.(*category.Category); ok && l.Contains(childCat) {
				walk(childCat)
			}
		}
	}
	for _, root := range l.Roots() {
		walk(root)
	}
	return result
}

// Add inserts the given categories and their descendants.
func (l *CategoryList) Add(batch *event.Batch, categories ...*category.Category) {
	batch, flush := event.Ensure(l.bus, batch)
	defer flush()
	for _, c := range categories {
		l.addOne(batch, c)
		for _, child := range c.Children(true) {
			if childCat, ok := child.(*category.Category); ok {
				l.addOne(batch, childCat)
			}
		}
	}
}

func (l *CategoryList) addOne(batch *event.Batch, c *category.Category) {
	if l.Contains(c) {
		return
	}
	l.items = append(l.items, c)
	l.byID[c.ID()] = c
	batch.Add(TopicCategoryAdded, c, nil)
}

// Remove removes the given categories and their descendants, detaching
// them from their members.
func (l *CategoryList) Remove(batch *event.Batch, categories ...*category.Category) {
	batch, flush := event.Ensure(l.bus, batch)
	defer flush()
	for _, c := range categories {
		for _, child := range c.Children(true) {
			if childCat, ok := child.(*category.Category); ok {
				l.removeOne(batch, childCat)
			}
		}
		l.removeOne(batch, c)
	}
}

func (l *CategoryList) removeOne(batch *event.Batch, c *category.Category) {
	if !l.Contains(c) {
		return
	}
	for i, existing := range l.items {
		if existing == c {
			l.items = append(l.items[:i:i], l.items[i+1:]...)
			break
		}
	}
	delete(l.byID, c.ID())
	for _, member := range c.Categorizables() {
		if categorizable, ok := member.(interface {
			RemoveCategory(batch *event.Batch, categories ...base.Item)
		}); ok {
			categorizable.RemoveCategory(batch, c)
		}
	}
	batch.Add(TopicCategoryRemoved, c, nil)
}

// Clear drops every category without per-category events.
func (l *CategoryList) Clear() {
	l.items = nil
	l.byID = make(map[string]*category.Category)
}

// EffortList owns every effort of a document.
type EffortList struct {
	bus   *event.Bus
	items []*Effort
	byID  map[string]*Effort
}

// NewEffortList creates an empty effort list.
func NewEffortList(bus *event.Bus) *EffortList {
	return &EffortList{bus: bus, byID: make(map[string]*Effort)}
}

// Len returns the number of efforts held.
func (l *EffortList) Len() int { return len(l.items) }

// ByID returns the effort with the given id, nil when absent.
func (l *EffortList) ByID(id string) *Effort { return l.byID[id] }

// Contains reports whether e is held by this list.
func (l *EffortList) Contains(e *Effort) bool {
	return e != nil && l.byID[e.ID()] == e
}

// All returns every effort in insertion order.
func (l *EffortList) All() []*Effort {
	result := make([]*Effort, len(l.items))
	copy(result, l.items)
	return result
}

// ForTask returns the efforts booked on the given task.
func (l *EffortList) ForTask(t *Task) []*Effort {
	var result []*Effort
	for _, e := range l.items {
		if e.Task() == t {
			result = append(result, e)
		}
	}
	return result
}

// Add inserts the given efforts.
func (l *EffortList) Add(batch *event.Batch, efforts ...*Effort) {
	batch, flush := event.Ensure(l.bus, batch)
	defer flush()
	for _, e := range efforts {
		if l.Contains(e) {
			continue
		}
		l.items = append(l.items, e)
		l.byID[e.ID()] = e
		batch.Add(TopicEffortAdded, e, nil)
	}
}

// Remove removes the given efforts.
func (l *EffortList) Remove(batch *event.Batch, efforts ...*Effort) {
	batch, flush := event.Ensure(l.bus, batch)
	defer flush()
	for _, e := range efforts {
		if !l.Contains(e) {
			continue
		}
		for i, existing := range l.items {
			if existing == e {
				l.items = append(l.items[:i:i], l.items[i+1:]...)
				break
			}
		}
		delete(l.byID, e.ID())
		batch.Add(TopicEffortRemoved, e, nil)
	}
}

// Clear drops every effort without per-effort events.
func (l *EffortList) Clear() {
	l.items = nil
	l.byID = make(map[string]*Effort)
}

// NoteContainer owns every note of a document, subnotes included.
type NoteContainer struct {
	bus   *event.Bus
	items []*Note
	byID  map[string]*Note
}

// NewNoteContainer creates an empty note container.
func NewNoteContainer(bus *event.Bus) *NoteContainer {
	return &NoteContainer{bus: bus, byID: make(map[string]*Note)}
}

// Len returns the number of notes held.
func (l *NoteContainer) Len() int { return len(l.items) }

// ByID returns the note with the given id, nil when absent.
func (l *NoteContainer) ByID(id string) *Note { return l.byID[id] }

// Contains reports whether n is held by this container.
func (l *NoteContainer) Contains(n *Note) bool {
	return n != nil && l.byID[n.ID()] == n
}

// All returns every note in insertion order.
func (l *NoteContainer) All() []*Note {
	result := make([]*Note, len(l.items))
	copy(result, l.items)
	return result
}

// Roots returns the notes without a parent.
func (l *NoteContainer) Roots() []*Note {
	var roots []*Note
	for _, n := range l.items {
		if n.Parent() == nil {
			roots = append(roots, n)
		}
	}
	return roots
}

// Add inserts the given notes and their descendants, registering category
// membership on the category side.
func (l *NoteContainer) Add(batch *event.Batch, notes ...*Note) {
	batch, flush := event.Ensure(l.bus, batch)
	defer flush()
	for _, n := range notes {
		l.addOne(batch, n)
		for _, child := range n.Children(true) {
			if childNote, ok := child.(*Note); ok {
				l.addOne(batch, childNote)
			}
		}
	}
}

func (l *NoteContainer) addOne(batch *event.Batch, n *Note) {
	if l.Contains(n) {
		return
	}
	l.items = append(l.items, n)
	l.byID[n.ID()] = n
	for _, item := range n.Categories(false, false) {
		if cat, ok := item.(*category.Category); ok {
			cat.AddCategorizable(batch, n)
		}
	}
	batch.Add(TopicNoteAdded, n, nil)
}

// Remove removes the given notes and their descendants.
func (l *NoteContainer) Remove(batch *event.Batch, notes ...*Note) {
	batch, flush := event.Ensure(l.bus, batch)
	defer flush()
	for _, n := range notes {
		for _, child := range n.Children(true) {
			if childNote, ok := child.(*Note); ok {
				l.removeOne(batch, childNote)
			}
		}
		l.removeOne(batch, n)
	}
}

func (l *NoteContainer) removeOne(batch *event.Batch, n *Note) {
	if !l.Contains(n) {
		return
	}
	for i, existing := range l.items {
		if existing == n {
			l.items = append(l.items[:i:i], l.items[i+1:]...)
			break
		}
	}
	delete(l.byID, n.ID())
	for _, item := range n.Categories(false, false) {
		if cat, ok := item.(*category.Category); ok {
			cat.RemoveCategorizable(batch, n)
		}
	}
	batch.Add(TopicNoteRemoved, n, nil)
}

// Clear drops every note without per-note events.
func (l *NoteContainer) Clear() {
	l.items = nil
	l.byID = make(map[string]*Note)
}
