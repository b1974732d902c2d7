package command

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCommand counts invocations and can be made to fail per method.
type fakeCommand struct {
	name               string
	did, undid, redid  int
	doErr, undoErr     error
	redoErr            error
}

func (c *fakeCommand) Do() error {
	c.did++
	return c.doErr
}

func (c *fakeCommand) Undo() error {
	c.undid++
	return c.undoErr
}

func (c *fakeCommand) Redo() error {
	c.redid++
	return c.redoErr
}

func (c *fakeCommand) Description() string { return c.name }

func TestExecuteUndoRedoRoundTrip(t *testing.T) {
	h := NewHistory(0)
	cmd := &fakeCommand{name: "change"}

	require.NoError(t, h.Execute(cmd))
	assert.Equal(t, 1, cmd.did)
	assert.True(t, h.CanUndo())
	assert.False(t, h.CanRedo())
	assert.Equal(t, "change", h.UndoDescription())

	require.NoError(t, h.Undo())
	assert.Equal(t, 1, cmd.undid)
	assert.False(t, h.CanUndo())
	assert.True(t, h.CanRedo())
	assert.Equal(t, "change", h.RedoDescription())

	require.NoError(t, h.Redo())
	assert.Equal(t, 1, cmd.redid)
	assert.True(t, h.CanUndo())
	assert.False(t, h.CanRedo())
}

func TestUndoRedoOnEmptyStacks(t *testing.T) {
	h := NewHistory(0)
	assert.ErrorIs(t, h.Undo(), ErrNothingToUndo)
	assert.ErrorIs(t, h.Redo(), ErrNothingToRedo)
	assert.Empty(t, h.UndoDescription())
	assert.Empty(t, h.RedoDescription())
}

func TestFailedExecuteIsNotRecorded(t *testing.T) {
	h := NewHistory(0)
	boom := errors.New("boom")
	require.ErrorIs(t, h.Execute(&fakeCommand{doErr: boom}), boom)
	assert.False(t, h.CanUndo())
}

func TestExecuteDiscardsRedoStack(t *testing.T) {
	h := NewHistory(0)
	first := &fakeCommand{name: "first"}
	require.NoError(t, h.Execute(first))
	require.NoError(t, h.Undo())
	require.True(t, h.CanRedo())

	require.NoError(t, h.Execute(&fakeCommand{name: "second"}))
	assert.False(t, h.CanRedo())
	assert.Equal(t, "second", h.UndoDescription())
}

func TestFailedUndoRestoresStack(t *testing.T) {
	h := NewHistory(0)
	boom := errors.New("boom")
	cmd := &fakeCommand{name: "fragile", undoErr: boom}
	require.NoError(t, h.Execute(cmd))

	assert.ErrorIs(t, h.Undo(), boom)
	assert.True(t, h.CanUndo(), "the failed command stays undoable")
	assert.False(t, h.CanRedo())
}

func TestMaxEntriesDropsOldest(t *testing.T) {
	h := NewHistory(3)
	for i := 0; i < 5; i++ {
		require.NoError(t, h.Execute(&fakeCommand{name: fmt.Sprintf("cmd %d", i)}))
	}

	// Only the newest three survive.
	assert.Equal(t, "cmd 4", h.UndoDescription())
	require.NoError(t, h.Undo())
	require.NoError(t, h.Undo())
	require.NoError(t, h.Undo())
	assert.ErrorIs(t, h.Undo(), ErrNothingToUndo)
}

func TestClearDropsBothStacks(t *testing.T) {
	h := NewHistory(0)
	require.NoError(t, h.Execute(&fakeCommand{}))
	require.NoError(t, h.Execute(&fakeCommand{}))
	require.NoError(t, h.Undo())

	h.Clear()

	assert.False(t, h.CanUndo())
	assert.False(t, h.CanRedo())
}
