// Package command implements undoable operations on a document and the
// history that tracks them. Commands capture the state they need for undo
// when they first run; targets are re-resolved by id on every run, so a
// command whose objects have vanished degrades to a no-op instead of
// corrupting the document.
package command

import (
	"errors"
	"sync"
)

// Common errors for history operations.
var (
	ErrNothingToUndo = errors.New("command: nothing to undo")
	ErrNothingToRedo = errors.New("command: nothing to redo")
)

// Command is an operation on the document that can be undone and redone.
// Redo is distinct from Do: a redo must reuse the objects created by the
// first run so references recorded by later commands stay valid.
type Command interface {
	// Do performs the command.
	Do() error

	// Undo reverses the command.
	Undo() error

	// Redo performs the command again after an undo.
	Redo() error

	// Description returns a human-readable description of the command.
	Description() string
}

// History manages the undo and redo stacks for a document.
type History struct {
	mu sync.Mutex

	done   []Command
	undone []Command

	maxEntries int
}

// NewHistory creates a history keeping at most maxEntries undoable
// commands; older ones are dropped. maxEntries <= 0 selects the default.
func NewHistory(maxEntries int) *History {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &History{maxEntries: maxEntries}
}

// Execute runs cmd and pushes it onto the undo stack. Executing a new
// command discards the redo stack. A failed command is not recorded.
func (h *History) Execute(cmd Command) error {
	if err := cmd.Do(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.done = append(h.done, cmd)
	h.undone = nil
	if len(h.done) > h.maxEntries {
		excess := len(h.done) - h.maxEntries
		h.done = h.done[excess:]
	}
	return nil
}

// Undo reverses the most recent command. The lock is not held while the
// command runs; commands publish events and handlers may inspect history.
func (h *History) Undo() error {
	h.mu.Lock()
	if len(h.done) == 0 {
		h.mu.Unlock()
		return ErrNothingToUndo
	}
	cmd := h.done[len(h.done)-1]
	h.done = h.done[:len(h.done)-1]
	h.mu.Unlock()

	if err := cmd.Undo(); err != nil {
		h.mu.Lock()
		h.done = append(h.done, cmd)
		h.mu.Unlock()
		return err
	}

	h.mu.Lock()
	h.undone = append(h.undone, cmd)
	h.mu.Unlock()
	return nil
}

// Redo re-applies the most recently undone command.
func (h *History) Redo() error {
	h.mu.Lock()
	if len(h.undone) == 0 {
		h.mu.Unlock()
		return ErrNothingToRedo
	}
	cmd := h.undone[len(h.undone)-1]
	h.undone = h.undone[:len(h.undone)-1]
	h.mu.Unlock()

	if err := cmd.Redo(); err != nil {
		h.mu.Lock()
		h.undone = append(h.undone, cmd)
		h.mu.Unlock()
		return err
	}

	h.mu.Lock()
	h.done = append(h.done, cmd)
	h.mu.Unlock()
	return nil
}

// Clear drops both stacks. Called when the document is replaced
// wholesale, for example after a full-from-device sync or a file load.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.done = nil
	h.undone = nil
}

// CanUndo reports whether there is a command to undo.
func (h *History) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.done) > 0
}

// CanRedo reports whether there is a command to redo.
func (h *History) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undone) > 0
}

// UndoDescription returns the description of the command Undo would
// reverse, "" when there is none.
func (h *History) UndoDescription() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.done) == 0 {
		return ""
	}
	return h.done[len(h.done)-1].Description()
}

// RedoDescription returns the description of the command Redo would
// re-apply, "" when there is none.
func (h *History) RedoDescription() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.undone) == 0 {
		return ""
	}
	return h.undone[len(h.undone)-1].Description()
}
