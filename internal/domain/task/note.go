package task

import (
	"github.com/mpeeters/tasknest/internal/domain/base"
	"github.com/mpeeters/tasknest/internal/event"
)

// Note is a free-form categorizable composite object. Notes nest like
// tasks and share the same category membership semantics.
type Note struct {
	base.Categorizable
}

// NewNote creates a root note with the given subject.
func NewNote(bus *event.Bus, subject string) *Note {
	n := &Note{}
	n.Categorizable = base.NewCategorizable(bus, n)
	n.SetSubject(subject, nil)
	return n
}

// NewChild creates a subnote linked under this note.
func (n *Note) NewChild(subject string, batch *event.Batch) *Note {
	child := NewNote(n.Bus(), subject)
	_ = n.AddChild(child, batch)
	return child
}
