// Package category implements the category side of the many-to-many
// relation between categorizable objects (tasks, notes) and categories.
// Categories form a tree of their own; a category may declare its
// subcategories mutually exclusive, which the ToggleCategory command uses
// to displace conflicting memberships.
package category

import (
	"github.com/mpeeters/tasknest/internal/domain/base"
	"github.com/mpeeters/tasknest/internal/event"
)

// Event topics published by categories.
const (
	TopicCategorizableAdded   = "category.categorizable.add"
	TopicCategorizableRemoved = "category.categorizable.remove"
	TopicExclusivityChanged   = "category.exclusiveSubcategories"
)

// Category is a composite object that categorizable items can belong to.
// It carries its own appearance attributes, which members without explicit
// overrides inherit.
type Category struct {
	base.CompositeObject

	categorizables         []base.Item
	exclusiveSubcategories bool
}

// New creates a root category with the given subject.
func New(bus *event.Bus, subject string) *Category {
	c := &Category{}
	c.CompositeObject = base.NewCompositeObject(bus, c)
	c.SetSubject(subject, nil)
	return c
}

// NewChild creates a subcategory linked under this category.
func (c *Category) NewChild(subject string, batch *event.Batch) *Category {
	child := New(c.Bus(), subject)
	// Linking a fresh child cannot cycle.
	_ = c.AddChild(child, batch)
	return child
}

// HasExclusiveSubcategories reports whether this category's children are
// mutually exclusive among each other.
func (c *Category) HasExclusiveSubcategories() bool {
	return c.exclusiveSubcategories
}

// MakeSubcategoriesExclusive flags or unflags the children as mutually
// exclusive.
func (c *Category) MakeSubcategoriesExclusive(exclusive bool, batch *event.Batch) {
	if exclusive == c.exclusiveSubcategories {
		return
	}
	batch, flush := event.Ensure(c.Bus(), batch)
	defer flush()
	c.exclusiveSubcategories = exclusive
	batch.Add(TopicExclusivityChanged, c, exclusive)
	c.MarkDirty(false, batch)
}

// IsMutualExclusive reports whether this category competes with its
// siblings, i.e. whether its parent declared its children exclusive.
func (c *Category) IsMutualExclusive() bool {
	if parent, ok := c.Parent().(*Category); ok {
		return parent.HasExclusiveSubcategories()
	}
	return false
}

// Siblings returns the other children of this category's parent; with
// recursive set, their descendants are included. Root categories have no
// siblings.
func (c *Category) Siblings(recursive bool) []*Category {
	parent, ok := c.Parent().(*Category)
	if !ok {
		return nil
	}
	var siblings []*Category
	for _, child := range parent.Children(false) {
		if child == base.Item(c) {
			continue
		}
		if sibling, ok := child.(*Category); ok {
			siblings = append(siblings, sibling)
			if recursive {
				for _, descendant := range sibling.Children(true) {
					if category, ok := descendant.(*Category); ok {
						siblings = append(siblings, category)
					}
				}
			}
		}
	}
	return siblings
}

// Categorizables returns the items directly belonging to this category.
func (c *Category) Categorizables() []base.Item {
	result := make([]base.Item, len(c.categorizables))
	copy(result, c.categorizables)
	return result
}

// HasCategorizable reports whether item belongs to this category.
func (c *Category) HasCategorizable(item base.Item) bool {
	for _, existing := range c.categorizables {
		if existing == item {
			return true
		}
	}
	return false
}

// AddCategorizable records item as a member. Membership is kept on both
// sides; callers use the linking helpers in the command package or the
// containers, which update the categorizable too.
func (c *Category) AddCategorizable(batch *event.Batch, items ...base.Item) {
	added := false
	batch, flush := event.Ensure(c.Bus(), batch)
	defer flush()
	for _, item := range items {
		if c.HasCategorizable(item) {
			continue
		}
		c.categorizables = append(c.categorizables, item)
		batch.Add(TopicCategorizableAdded, c, item)
		added = true
	}
	if added {
		c.MarkDirty(false, batch)
	}
}

// RemoveCategorizable forgets item's membership.
func (c *Category) RemoveCategorizable(batch *event.Batch, items ...base.Item) {
	removed := false
	batch, flush := event.Ensure(c.Bus(), batch)
	defer flush()
	for _, item := range items {
		for i, existing := range c.categorizables {
			if existing == item {
				c.categorizables = append(c.categorizables[:i:i], c.categorizables[i+1:]...)
				batch.Add(TopicCategorizableRemoved, c, item)
				removed = true
				break
			}
		}
	}
	if removed {
		c.MarkDirty(false, batch)
	}
}
