package task

import (
	"github.com/google/uuid"

	"github.com/mpeeters/tasknest/internal/domain/base"
	"github.com/mpeeters/tasknest/internal/event"
)

// Event topics published by documents.
const (
	TopicDocumentCleared = "document.clear"
	TopicDocumentGUID    = "document.guid"
)

// Document bundles the containers making up one task file, identified by a
// durable GUID that sync partners use to recognize it across sessions.
type Document struct {
	bus  *event.Bus
	guid string

	Tasks      *TaskList
	Categories *CategoryList
	Efforts    *EffortList
	Notes      *NoteContainer
}

// NewDocument creates an empty document with a fresh GUID.
func NewDocument(bus *event.Bus) *Document {
	return &Document{
		bus:        bus,
		guid:       uuid.NewString(),
		Tasks:      NewTaskList(bus),
		Categories: NewCategoryList(bus),
		Efforts:    NewEffortList(bus),
		Notes:      NewNoteContainer(bus),
	}
}

// Bus returns the event bus all document entities publish on.
func (d *Document) Bus() *event.Bus { return d.bus }

// GUID returns the document identity.
func (d *Document) GUID() string { return d.guid }

// SetGUID overrides the document identity. The persistence layer calls
// this when loading; a full-from-desktop sync sends it to the device.
func (d *Document) SetGUID(guid string, batch *event.Batch) {
	if guid == d.guid {
		return
	}
	batch, flush := event.Ensure(d.bus, batch)
	defer flush()
	d.guid = guid
	batch.Add(TopicDocumentGUID, d, guid)
}

// Clear empties every container without per-item events and publishes a
// single cleared notification. Used when the document is replaced
// wholesale, as in a full-from-device sync.
func (d *Document) Clear(batch *event.Batch) {
	batch, flush := event.Ensure(d.bus, batch)
	defer flush()
	d.Tasks.Clear()
	d.Categories.Clear()
	d.Efforts.Clear()
	d.Notes.Clear()
	batch.Add(TopicDocumentCleared, d, nil)
}

// IsDirty reports whether any entity departed from status NONE since the
// last save.
func (d *Document) IsDirty() bool {
	for _, t := range d.Tasks.All() {
		if t.Status() != base.StatusNone {
			return true
		}
	}
	for _, c := range d.Categories.All() {
		if c.Status() != base.StatusNone {
			return true
		}
	}
	for _, e := range d.Efforts.All() {
		if e.Status() != base.StatusNone {
			return true
		}
	}
	for _, n := range d.Notes.All() {
		if n.Status() != base.StatusNone {
			return true
		}
	}
	return false
}

// CleanAll resets every entity to status NONE after a successful save or
// two-way sync, dropping entities that were marked deleted.
func (d *Document) CleanAll(batch *event.Batch) {
	batch, flush := event.Ensure(d.bus, batch)
	defer flush()
	for _, t := range d.Tasks.All() {
		if t.IsDeleted() {
			d.Tasks.Remove(batch, t)
			continue
		}
		t.CleanDirty(batch)
	}
	for _, c := range d.Categories.All() {
		if c.IsDeleted() {
			d.Categories.Remove(batch, c)
			continue
		}
		c.CleanDirty(batch)
	}
	for _, e := range d.Efforts.All() {
		if e.IsDeleted() {
			d.Efforts.Remove(batch, e)
			continue
		}
		e.CleanDirty(batch)
	}
	for _, n := range d.Notes.All() {
		if n.IsDeleted() {
			d.Notes.Remove(batch, n)
			continue
		}
		n.CleanDirty(batch)
	}
}
