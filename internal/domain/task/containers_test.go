package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpeeters/tasknest/internal/domain/category"
	"github.com/mpeeters/tasknest/internal/event"
)

func TestTaskListAddIncludesDescendants(t *testing.T) {
	bus := event.NewBus()
	list := NewTaskList(bus)
	parent := NewTask(bus, "parent")
	child := parent.NewChild("child", nil)

	list.Add(nil, parent)

	assert.Equal(t, 2, list.Len())
	assert.True(t, list.Contains(parent))
	assert.True(t, list.Contains(child))
	assert.Same(t, child, list.ByID(child.ID()))

	// Re-adding is a no-op.
	list.Add(nil, parent)
	assert.Equal(t, 2, list.Len())
}

func TestTaskListAddRegistersCategoryMembership(t *testing.T) {
	bus := event.NewBus()
	list := NewTaskList(bus)
	cat := category.New(bus, "work")
	tk := NewTask(bus, "task")
	tk.AddCategory(nil, cat)

	list.Add(nil, tk)
	assert.True(t, cat.HasCategorizable(tk))

	list.Remove(nil, tk)
	assert.False(t, cat.HasCategorizable(tk))
	assert.True(t, tk.HasCategory(cat),
		"the task keeps its own reference so undo can restore it")
}

func TestTaskListRootsAndAllSorted(t *testing.T) {
	bus := event.NewBus()
	list := NewTaskList(bus)
	a := NewTask(bus, "a")
	b := NewTask(bus, "b")
	aa := a.NewChild("aa", nil)
	aab := aa.NewChild("aab", nil)
	// Insert out of hierarchy order on purpose.
	list.Add(nil, b)
	list.Add(nil, a)

	roots := list.Roots()
	require.Len(t, roots, 2)
	assert.Same(t, b, roots[0])
	assert.Same(t, a, roots[1])

	sorted := list.AllSorted()
	require.Len(t, sorted, 4)
	assert.Same(t, b, sorted[0])
	assert.Same(t, a, sorted[1])
	assert.Same(t, aa, sorted[2])
	assert.Same(t, aab, sorted[3])
}

func TestTaskListRemoveIncludesDescendants(t *testing.T) {
	bus := event.NewBus()
	list := NewTaskList(bus)
	parent := NewTask(bus, "parent")
	child := parent.NewChild("child", nil)
	list.Add(nil, parent)

	var removed int
	bus.Subscribe(TopicTaskRemoved, func(ev event.Event) { removed += len(ev.Sources) })
	list.Remove(nil, parent)

	assert.Zero(t, list.Len())
	assert.Equal(t, 2, removed)
	assert.Nil(t, list.ByID(child.ID()))
}

func TestCategoryListRemoveDetachesMembers(t *testing.T) {
	bus := event.NewBus()
	categories := NewCategoryList(bus)
	cat := category.New(bus, "doomed")
	categories.Add(nil, cat)

	tk := NewTask(bus, "member")
	tk.AddCategory(nil, cat)
	cat.AddCategorizable(nil, tk)

	categories.Remove(nil, cat)

	assert.False(t, tk.HasCategory(cat), "members are detached on both sides")
	assert.Zero(t, categories.Len())
}

func TestEffortListForTask(t *testing.T) {
	bus := event.NewBus()
	efforts := NewEffortList(bus)
	a := NewTask(bus, "a")
	b := NewTask(bus, "b")
	e1 := NewEffort(bus, a, localDate(2026, 5, 1), localDate(2026, 5, 1).Add(1e9))
	e2 := NewEffort(bus, b, localDate(2026, 5, 2), localDate(2026, 5, 2).Add(1e9))
	e3 := NewEffort(bus, a, localDate(2026, 5, 3), localDate(2026, 5, 3).Add(1e9))
	efforts.Add(nil, e1, e2, e3)

	forA := efforts.ForTask(a)
	require.Len(t, forA, 2)
	assert.Same(t, e1, forA[0])
	assert.Same(t, e3, forA[1])

	efforts.Remove(nil, e1)
	assert.Len(t, efforts.ForTask(a), 1)
}

func TestClearPublishesNothing(t *testing.T) {
	bus := event.NewBus()
	list := NewTaskList(bus)
	list.Add(nil, NewTask(bus, "gone"))

	var events int
	bus.Subscribe(TopicTaskRemoved, func(event.Event) { events++ })
	list.Clear()

	assert.Zero(t, list.Len())
	assert.Zero(t, events)
}

func TestDocumentDirtyAndCleanAll(t *testing.T) {
	bus := event.NewBus()
	doc := NewDocument(bus)
	assert.False(t, doc.IsDirty())

	tk := NewTask(bus, "fresh")
	doc.Tasks.Add(nil, tk)
	assert.True(t, doc.IsDirty(), "a NEW task dirties the document")

	doc.CleanAll(nil)
	assert.False(t, doc.IsDirty())

	tk.SetSubject("renamed", nil)
	assert.True(t, doc.IsDirty())

	tk.MarkDeleted(nil)
	doc.CleanAll(nil)
	assert.False(t, doc.Tasks.Contains(tk), "deleted tasks are purged on clean")
}

func TestDocumentClear(t *testing.T) {
	bus := event.NewBus()
	doc := NewDocument(bus)
	doc.Tasks.Add(nil, NewTask(bus, "t"))
	doc.Categories.Add(nil, category.New(bus, "c"))
	doc.Notes.Add(nil, NewNote(bus, "n"))

	var cleared int
	bus.Subscribe(TopicDocumentCleared, func(event.Event) { cleared++ })
	doc.Clear(nil)

	assert.Zero(t, doc.Tasks.Len())
	assert.Zero(t, doc.Categories.Len())
	assert.Zero(t, doc.Notes.Len())
	assert.Zero(t, doc.Efforts.Len())
	assert.Equal(t, 1, cleared)
}
