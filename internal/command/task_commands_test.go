package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpeeters/tasknest/internal/domain/base"
	"github.com/mpeeters/tasknest/internal/domain/task"
	"github.com/mpeeters/tasknest/internal/event"
)

func newTestDocument() *task.Document {
	return task.NewDocument(event.NewBus())
}

func TestNewTaskCommand(t *testing.T) {
	doc := newTestDocument()
	h := NewHistory(0)
	cmd := NewTask(doc, "buy milk", "")

	require.NoError(t, h.Execute(cmd))
	created := cmd.Task()
	require.NotNil(t, created)
	assert.True(t, doc.Tasks.Contains(created))
	assert.Equal(t, `New task "buy milk"`, cmd.Description())

	require.NoError(t, h.Undo())
	assert.False(t, doc.Tasks.Contains(created))

	require.NoError(t, h.Redo())
	assert.Same(t, created, doc.Tasks.ByID(created.ID()),
		"redo restores the same object")
}

func TestNewTaskCommandWithParent(t *testing.T) {
	doc := newTestDocument()
	parent := task.NewTask(doc.Bus(), "parent")
	doc.Tasks.Add(nil, parent)
	h := NewHistory(0)
	cmd := NewTask(doc, "child", parent.ID())

	require.NoError(t, h.Execute(cmd))
	assert.Same(t, parent, cmd.Task().Parent())

	require.NoError(t, h.Undo())
	assert.Nil(t, cmd.Task().Parent())
	assert.Len(t, parent.Children(false), 0)

	require.NoError(t, h.Redo())
	assert.Same(t, parent, cmd.Task().Parent())
}

func TestNewTaskCommandVanishedParentFallsBackToRoot(t *testing.T) {
	doc := newTestDocument()
	parent := task.NewTask(doc.Bus(), "parent")
	doc.Tasks.Add(nil, parent)
	cmd := NewTask(doc, "orphan", parent.ID())
	doc.Tasks.Remove(nil, parent)

	require.NoError(t, cmd.Do())
	assert.Nil(t, cmd.Task().Parent())
	assert.True(t, doc.Tasks.Contains(cmd.Task()))
}

func TestDeleteTasksCommandRestoresStatuses(t *testing.T) {
	doc := newTestDocument()
	parent := task.NewTask(doc.Bus(), "parent")
	child := parent.NewChild("child", nil)
	doc.Tasks.Add(nil, parent)
	parent.CleanDirty(nil)
	child.CleanDirty(nil)
	child.MarkDirty(true, nil)

	h := NewHistory(0)
	cmd := DeleteTasks(doc, parent)
	require.NoError(t, h.Execute(cmd))
	assert.False(t, doc.Tasks.Contains(parent))
	assert.False(t, doc.Tasks.Contains(child))
	assert.True(t, parent.IsDeleted())

	require.NoError(t, h.Undo())
	assert.True(t, doc.Tasks.Contains(parent))
	assert.True(t, doc.Tasks.Contains(child))
	assert.Equal(t, base.StatusNone, parent.Status())
	assert.Equal(t, base.StatusChanged, child.Status())

	require.NoError(t, h.Redo())
	assert.False(t, doc.Tasks.Contains(parent))
}

func TestDeleteTasksCommandSkipsVanished(t *testing.T) {
	doc := newTestDocument()
	tk := task.NewTask(doc.Bus(), "going")
	doc.Tasks.Add(nil, tk)
	cmd := DeleteTasks(doc, tk)
	doc.Tasks.Remove(nil, tk)

	require.NoError(t, cmd.Do())
	require.NoError(t, cmd.Undo())
	assert.False(t, doc.Tasks.Contains(tk))
}

func TestDeleteTasksDescription(t *testing.T) {
	doc := newTestDocument()
	a := task.NewTask(doc.Bus(), "a")
	b := task.NewTask(doc.Bus(), "b")
	doc.Tasks.Add(nil, a, b)

	assert.Equal(t, "Delete task", DeleteTasks(doc, a).Description())
	assert.Equal(t, "Delete 2 tasks", DeleteTasks(doc, a, b).Description())
}

func TestEditSubjectCommand(t *testing.T) {
	doc := newTestDocument()
	tk := task.NewTask(doc.Bus(), "old name")
	doc.Tasks.Add(nil, tk)
	h := NewHistory(0)
	cmd := EditSubject(doc, tk, "new name")

	require.NoError(t, h.Execute(cmd))
	assert.Equal(t, "new name", tk.Subject(false))

	require.NoError(t, h.Undo())
	assert.Equal(t, "old name", tk.Subject(false))

	require.NoError(t, h.Redo())
	assert.Equal(t, "new name", tk.Subject(false))
	assert.Equal(t, `Edit subject of "old name"`, cmd.Description())
}

func TestEditSubjectCommandVanishedTargetIsNoOp(t *testing.T) {
	doc := newTestDocument()
	tk := task.NewTask(doc.Bus(), "gone")
	doc.Tasks.Add(nil, tk)
	cmd := EditSubject(doc, tk, "renamed")
	doc.Tasks.Remove(nil, tk)

	require.NoError(t, cmd.Do())
	assert.Equal(t, "gone", tk.Subject(false), "vanished targets are left alone")
}

func TestEditSubjectCommandRenamesCategories(t *testing.T) {
	doc := newTestDocument()
	cat := newCategory(doc, "old")
	cmd := EditSubject(doc, cat, "new")

	require.NoError(t, cmd.Do())
	assert.Equal(t, "new", cat.Subject(false))
}
