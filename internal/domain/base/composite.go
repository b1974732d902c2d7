package base

import (
	"errors"

	"golang.org/x/exp/maps"

	"github.com/mpeeters/tasknest/internal/event"
)

// ErrWouldCycle is returned by AddChild when linking would make an object
// an ancestor of itself. The object graph is kept acyclic by construction;
// the recursive attribute walks rely on it.
var ErrWouldCycle = errors.New("base: child is an ancestor of its parent")

// CompositeObject is a change-tracked object participating in a
// parent/child tree. Appearance attributes fall back to the nearest
// ancestor with an explicit value when queried recursively, and the
// lifecycle mark operations cascade to all descendants, batched into a
// single notification.
type CompositeObject struct {
	Object

	parent   Item
	children []Item

	// Expansion state is stored per context. A context is an opaque
	// string identifying a view; the same object may be expanded in one
	// view and collapsed in another.
	expandedContexts map[string]struct{}
}

// NewCompositeObject creates a composite object with no parent or children.
func NewCompositeObject(bus *event.Bus, self Item) CompositeObject {
	return CompositeObject{
		Object:           NewObject(bus, self),
		expandedContexts: make(map[string]struct{}),
	}
}

// Parent returns the parent item, nil for roots.
func (c *CompositeObject) Parent() Item { return c.parent }

// SetParent sets the back-reference to the parent. It does not touch the
// parent's child list; use AddChild/RemoveChild for two-sided linking.
func (c *CompositeObject) SetParent(parent Item) { c.parent = parent }

// Children returns the direct children, or every descendant depth-first
// when recursive is true. The returned slice is a copy.
func (c *CompositeObject) Children(recursive bool) []Item {
	result := make([]Item, 0, len(c.children))
	for _, child := range c.children {
		result = append(result, child)
		if recursive {
			result = append(result, child.Children(true)...)
		}
	}
	return result
}

// AddChild links child under this object, keeping both sides consistent.
// It refuses to create a cycle.
func (c *CompositeObject) AddChild(child Item, batch *event.Batch) error {
	for ancestor := c.self; ancestor != nil; ancestor = ancestor.Parent() {
		if ancestor == child {
			return ErrWouldCycle
		}
	}
	for _, existing := range c.children {
		if existing == child {
			return nil
		}
	}
	batch, flush := event.Ensure(c.bus, batch)
	defer flush()
	c.children = append(c.children, child)
	child.SetParent(c.self)
	batch.Add(TopicChildAdded, c.self, child)
	c.touched(batch)
	return nil
}

// RemoveChild unlinks child. Unknown children are ignored.
func (c *CompositeObject) RemoveChild(child Item, batch *event.Batch) {
	for i, existing := range c.children {
		if existing == child {
			batch, flush := event.Ensure(c.bus, batch)
			defer flush()
			c.children = append(c.children[:i:i], c.children[i+1:]...)
			child.SetParent(nil)
			batch.Add(TopicChildRemoved, c.self, child)
			c.touched(batch)
			return
		}
	}
}

// HasLiveChildren reports whether any direct child is not marked deleted.
// It decides between the plural and singular icon variants.
func (c *CompositeObject) HasLiveChildren() bool {
	for _, child := range c.children {
		if !child.IsDeleted() {
			return true
		}
	}
	return false
}

// Subject returns the subject; with recursive set, ancestors' subjects are
// prepended ("parent -> child") for list-mode display.
func (c *CompositeObject) Subject(recursive bool) string {
	subject := c.Object.Subject(false)
	if recursive && c.parent != nil {
		subject = c.parent.Subject(true) + " -> " + subject
	}
	return subject
}

// subjectChangedEvent includes all children: their recursive subject
// display changes when an ancestor is renamed.
func (c *CompositeObject) subjectChangedEvent(batch *event.Batch, subject string) {
	c.Object.subjectChangedEvent(batch, subject)
	for _, child := range c.children {
		batch.Add(TopicSubject, child, child.Subject(false))
	}
}

// appearanceChangedEvent includes all children, which most of the time
// inherit the changed appearance.
func (c *CompositeObject) appearanceChangedEvent(batch *event.Batch) {
	c.Object.appearanceChangedEvent(batch)
	for _, child := range c.children {
		batch.Add(TopicAppearance, child, nil)
	}
}

// ForegroundColor returns the explicit color, or with recursive set the
// nearest ancestor's explicit color when this object has none.
func (c *CompositeObject) ForegroundColor(recursive bool) string {
	color := c.Object.ForegroundColor(false)
	if color == "" && recursive && c.parent != nil {
		return c.parent.ForegroundColor(true)
	}
	return color
}

// BackgroundColor is the background counterpart of ForegroundColor.
func (c *CompositeObject) BackgroundColor(recursive bool) string {
	color := c.Object.BackgroundColor(false)
	if color == "" && recursive && c.parent != nil {
		return c.parent.BackgroundColor(true)
	}
	return color
}

// Font returns the explicit font, falling back to ancestors recursively.
func (c *CompositeObject) Font(recursive bool) string {
	font := c.Object.Font(false)
	if font == "" && recursive && c.parent != nil {
		return c.parent.Font(true)
	}
	return font
}

// Icon returns the icon name. When queried recursively the value is
// inherited from ancestors if unset, and mapped to its plural or singular
// variant depending on whether the object has non-deleted children.
func (c *CompositeObject) Icon(recursive bool) string {
	icon := c.Object.Icon(false)
	if !recursive {
		return icon
	}
	if icon == "" && c.parent != nil {
		icon = c.parent.Icon(true)
	}
	return c.pluralOrSingularIcon(icon, c.Object.Icon(false) == "")
}

// SelectedIcon is the selection-state counterpart of Icon.
func (c *CompositeObject) SelectedIcon(recursive bool) string {
	icon := c.Object.SelectedIcon(false)
	if !recursive {
		return icon
	}
	if icon == "" && c.parent != nil {
		icon = c.parent.SelectedIcon(true)
	}
	return c.pluralOrSingularIcon(icon, c.Object.SelectedIcon(false) == "")
}

// pluralOrSingularIcon maps icon through the plural table when the object
// has non-deleted children, else through the singular table. Icons the
// user set explicitly (native == false) are only remapped when the object
// actually has children; inherited ("native") icons always are.
func (c *CompositeObject) pluralOrSingularIcon(icon string, native bool) string {
	hasChildren := c.HasLiveChildren()
	mapping := singularIcon
	if hasChildren {
		mapping = pluralIcon
	}
	if native || hasChildren {
		if mapped, ok := mapping[icon]; ok {
			return mapped
		}
	}
	return icon
}

// IsExpanded reports whether the object is expanded in the given context.
func (c *CompositeObject) IsExpanded(context string) bool {
	_, ok := c.expandedContexts[context]
	return ok
}

// ExpandedContexts returns the contexts in which the object is expanded,
// in no particular order.
func (c *CompositeObject) ExpandedContexts() []string {
	return maps.Keys(c.expandedContexts)
}

// Expand expands or collapses the object in the given context, publishing
// an expansion event only when the state actually changes.
func (c *CompositeObject) Expand(expand bool, context string, batch *event.Batch) {
	if expand == c.IsExpanded(context) {
		return
	}
	batch, flush := event.Ensure(c.bus, batch)
	defer flush()
	if expand {
		c.expandedContexts[context] = struct{}{}
	} else {
		delete(c.expandedContexts, context)
	}
	batch.Add(TopicExpansion, c.self, expand)
}

// MarkDeleted marks this object and every descendant deleted, batched into
// one notification.
func (c *CompositeObject) MarkDeleted(batch *event.Batch) {
	batch, flush := event.Ensure(c.bus, batch)
	defer flush()
	c.Object.MarkDeleted(batch)
	for _, child := range c.children {
		child.MarkDeleted(batch)
	}
}

// MarkNew marks this object and every descendant new.
func (c *CompositeObject) MarkNew(batch *event.Batch) {
	batch, flush := event.Ensure(c.bus, batch)
	defer flush()
	c.Object.MarkNew(batch)
	for _, child := range c.children {
		child.MarkNew(batch)
	}
}

// MarkDirty marks this object and every descendant changed.
func (c *CompositeObject) MarkDirty(force bool, batch *event.Batch) {
	batch, flush := event.Ensure(c.bus, batch)
	defer flush()
	c.Object.MarkDirty(force, batch)
	for _, child := range c.children {
		child.MarkDirty(force, batch)
	}
}

// CleanDirty resets this object and every descendant to status NONE.
func (c *CompositeObject) CleanDirty(batch *event.Batch) {
	batch, flush := event.Ensure(c.bus, batch)
	defer flush()
	c.Object.CleanDirty(batch)
	for _, child := range c.children {
		child.CleanDirty(batch)
	}
}
