// Package base provides the building blocks shared by every domain entity:
// change-tracked lifecycle status, attribute setters that publish change
// events only on real changes, the composite parent/child tree with
// recursive appearance inheritance, and category membership.
package base

import (
	"time"

	"github.com/google/uuid"

	"github.com/mpeeters/tasknest/internal/event"
)

// Status is the persistence lifecycle state of a domain object. It drives
// incremental save and device sync: NEW and CHANGED objects are written
// out, DELETED objects are purged, and a successful save resets everything
// to NONE.
type Status int

const (
	StatusNone Status = iota
	StatusNew
	StatusChanged
	StatusDeleted
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusNone:
		return "none"
	case StatusNew:
		return "new"
	case StatusChanged:
		return "changed"
	case StatusDeleted:
		return "deleted"
	}
	return "unknown"
}

// Event topics published by the base layer.
const (
	TopicMarkDeleted     = "object.markdeleted"
	TopicMarkNotDeleted  = "object.marknotdeleted"
	TopicSubject         = "object.subject"
	TopicDescription     = "object.description"
	TopicAppearance      = "object.appearance"
	TopicOrdering        = "object.ordering"
	TopicExpansion       = "object.expansion"
	TopicChildAdded      = "object.child.add"
	TopicChildRemoved    = "object.child.remove"
	TopicCategoryAdded   = "categorizable.category.add"
	TopicCategoryRemoved = "categorizable.category.remove"
)

// Item is the interface every domain entity presents to the rest of the
// system. Non-composite entities (efforts) ignore the recursive flags and
// report no parent or children.
type Item interface {
	ID() string
	Status() Status
	IsNew() bool
	IsModified() bool
	IsDeleted() bool
	MarkNew(batch *event.Batch)
	MarkDirty(force bool, batch *event.Batch)
	MarkDeleted(batch *event.Batch)
	CleanDirty(batch *event.Batch)

	CreationDateTime() time.Time
	ModificationDateTime() time.Time
	Subject(recursive bool) string
	Description() string
	ForegroundColor(recursive bool) string
	BackgroundColor(recursive bool) string
	Font(recursive bool) string
	Icon(recursive bool) string
	SelectedIcon(recursive bool) string
	Ordering() int64

	Parent() Item
	SetParent(parent Item)
	Children(recursive bool) []Item
}

// Object is the change-tracked core embedded by every entity. The self
// reference is the concrete entity; it is used as the event source so that
// observers see tasks and categories, not embedded base structs.
type Object struct {
	bus  *event.Bus
	self Item

	id           string
	status       Status
	creation     time.Time
	modification time.Time

	subject      string
	description  string
	fgColor      string
	bgColor      string
	font         string
	icon         string
	selectedIcon string
	ordering     int64
}

// NewObject creates a change-tracked object with a fresh id and status NEW.
func NewObject(bus *event.Bus, self Item) Object {
	return Object{
		bus:      bus,
		self:     self,
		id:       uuid.NewString(),
		status:   StatusNew,
		creation: time.Now(),
	}
}

// Bus returns the document bus this object publishes on.
func (o *Object) Bus() *event.Bus { return o.bus }

// ID returns the durable identifier. It survives save/load cycles.
func (o *Object) ID() string { return o.id }

// SetID overrides the generated identifier. Used by the persistence layer
// when reloading a file; never call it on an object that is already held
// in a container.
func (o *Object) SetID(id string) { o.id = id }

// Status returns the current lifecycle status.
func (o *Object) Status() Status { return o.status }

// IsNew reports whether the object was created since the last save.
func (o *Object) IsNew() bool { return o.status == StatusNew }

// IsModified reports whether the object changed since the last save.
func (o *Object) IsModified() bool { return o.status == StatusChanged }

// IsDeleted reports whether the object is marked deleted.
func (o *Object) IsDeleted() bool { return o.status == StatusDeleted }

// MarkNew resets the object to status NEW, clearing any prior status.
func (o *Object) MarkNew(batch *event.Batch) {
	batch, flush := event.Ensure(o.bus, batch)
	defer flush()
	old := o.status
	o.status = StatusNew
	if old != StatusNew {
		batch.Add(TopicMarkNotDeleted, o.self, o.status)
	}
}

// MarkDirty transitions to CHANGED. Without force it is a no-op unless the
// status is NONE: an object that is already NEW or CHANGED stays as it is
// (no redundant notifications), and a DELETED status is never silently
// overwritten. With force the transition always happens and is always
// notified.
func (o *Object) MarkDirty(force bool, batch *event.Batch) {
	if o.status != StatusNone && !force {
		return
	}
	batch, flush := event.Ensure(o.bus, batch)
	defer flush()
	old := o.status
	o.status = StatusChanged
	if old != o.status || force {
		batch.Add(TopicMarkNotDeleted, o.self, o.status)
	}
}

// MarkDeleted transitions to DELETED.
func (o *Object) MarkDeleted(batch *event.Batch) {
	batch, flush := event.Ensure(o.bus, batch)
	defer flush()
	old := o.status
	o.status = StatusDeleted
	if old != StatusDeleted {
		batch.Add(TopicMarkDeleted, o.self, o.status)
	}
}

// CleanDirty resets the status to NONE after a successful persistence
// round-trip.
func (o *Object) CleanDirty(batch *event.Batch) {
	batch, flush := event.Ensure(o.bus, batch)
	defer flush()
	old := o.status
	o.status = StatusNone
	if old != StatusNone {
		batch.Add(TopicMarkNotDeleted, o.self, o.status)
	}
}

// CreationDateTime returns when the object was created.
func (o *Object) CreationDateTime() time.Time { return o.creation }

// SetCreationDateTime overrides the creation timestamp (persistence only).
func (o *Object) SetCreationDateTime(t time.Time) { o.creation = t }

// ModificationDateTime returns the time of the last attribute change.
func (o *Object) ModificationDateTime() time.Time { return o.modification }

// SetModificationDateTime overrides the modification timestamp. The
// persistence layer calls this last when loading, to undo the bumps made
// by the setters.
func (o *Object) SetModificationDateTime(t time.Time) { o.modification = t }

// touched records an attribute change: bumps the modification time and
// marks the object dirty.
func (o *Object) touched(batch *event.Batch) {
	o.modification = time.Now()
	o.MarkDirty(false, batch)
}

// Subject returns the subject. The recursive flag exists so that
// non-composite objects satisfy Item; it is ignored here.
func (o *Object) Subject(recursive bool) string { return o.subject }

// SetSubject changes the subject, publishing only when the value differs.
func (o *Object) SetSubject(subject string, batch *event.Batch) {
	if subject == o.subject {
		return
	}
	batch, flush := event.Ensure(o.bus, batch)
	defer flush()
	o.subject = subject
	o.hooks().subjectChangedEvent(batch, subject)
	o.touched(batch)
}

// Description returns the description.
func (o *Object) Description() string { return o.description }

// SetDescription changes the description, publishing only on real change.
func (o *Object) SetDescription(description string, batch *event.Batch) {
	if description == o.description {
		return
	}
	batch, flush := event.Ensure(o.bus, batch)
	defer flush()
	o.description = description
	batch.Add(TopicDescription, o.self, description)
	o.touched(batch)
}

// ForegroundColor returns the explicit foreground color, "" when unset.
// The recursive flag is ignored for plain objects.
func (o *Object) ForegroundColor(recursive bool) string { return o.fgColor }

// SetForegroundColor changes the foreground color.
func (o *Object) SetForegroundColor(color string, batch *event.Batch) {
	o.setAppearance(&o.fgColor, color, batch)
}

// BackgroundColor returns the explicit background color, "" when unset.
func (o *Object) BackgroundColor(recursive bool) string { return o.bgColor }

// SetBackgroundColor changes the background color.
func (o *Object) SetBackgroundColor(color string, batch *event.Batch) {
	o.setAppearance(&o.bgColor, color, batch)
}

// Font returns the explicit font descriptor, "" when unset.
func (o *Object) Font(recursive bool) string { return o.font }

// SetFont changes the font descriptor.
func (o *Object) SetFont(font string, batch *event.Batch) {
	o.setAppearance(&o.font, font, batch)
}

// Icon returns the explicit icon name, "" when unset.
func (o *Object) Icon(recursive bool) string { return o.icon }

// SetIcon changes the icon name.
func (o *Object) SetIcon(icon string, batch *event.Batch) {
	o.setAppearance(&o.icon, icon, batch)
}

// SelectedIcon returns the explicit selected-icon name, "" when unset.
func (o *Object) SelectedIcon(recursive bool) string { return o.selectedIcon }

// SetSelectedIcon changes the selected-icon name.
func (o *Object) SetSelectedIcon(icon string, batch *event.Batch) {
	o.setAppearance(&o.selectedIcon, icon, batch)
}

func (o *Object) setAppearance(field *string, value string, batch *event.Batch) {
	if value == *field {
		return
	}
	batch, flush := event.Ensure(o.bus, batch)
	defer flush()
	*field = value
	o.hooks().appearanceChangedEvent(batch)
	o.touched(batch)
}

// eventHooks are the subclass-supplied event-construction hooks: the
// setters funnel change annotations through them so that composite types
// can extend a notification to cover their children without re-publishing.
type eventHooks interface {
	subjectChangedEvent(batch *event.Batch, subject string)
	appearanceChangedEvent(batch *event.Batch)
}

// hooks resolves the outermost implementation of the event hooks via the
// self reference, emulating virtual dispatch across embedded types.
func (o *Object) hooks() eventHooks {
	if h, ok := o.self.(eventHooks); ok {
		return h
	}
	return o
}

// subjectChangedEvent annotates the batch with a subject change for this
// object.
func (o *Object) subjectChangedEvent(batch *event.Batch, subject string) {
	batch.Add(TopicSubject, o.self, subject)
}

// appearanceChangedEvent annotates the batch with an appearance change for
// this object. Composite objects extend this to include their children.
func (o *Object) appearanceChangedEvent(batch *event.Batch) {
	batch.Add(TopicAppearance, o.self, nil)
}

// Ordering returns the integer ordering key used for manual sorting.
func (o *Object) Ordering() int64 { return o.ordering }

// SetOrdering changes the ordering key.
func (o *Object) SetOrdering(ordering int64, batch *event.Batch) {
	if ordering == o.ordering {
		return
	}
	batch, flush := event.Ensure(o.bus, batch)
	defer flush()
	o.ordering = ordering
	batch.Add(TopicOrdering, o.self, ordering)
	o.touched(batch)
}

// Parent returns nil: plain objects do not participate in a tree.
func (o *Object) Parent() Item { return nil }

// SetParent is a no-op for plain objects.
func (o *Object) SetParent(parent Item) {}

// Children returns nil: plain objects have no children.
func (o *Object) Children(recursive bool) []Item { return nil }
