package command

import (
	"fmt"

	"github.com/mpeeters/tasknest/internal/domain/base"
	"github.com/mpeeters/tasknest/internal/domain/category"
	"github.com/mpeeters/tasknest/internal/domain/task"
	"github.com/mpeeters/tasknest/internal/event"
)

// Categorizable is what the category commands need from a target: tasks
// and notes both qualify.
type Categorizable interface {
	base.Item
	HasCategory(category base.Item) bool
	AddCategory(batch *event.Batch, categories ...base.Item)
	RemoveCategory(batch *event.Batch, categories ...base.Item)
}

// ToggleCategoryCommand toggles membership of a selection of items in one
// category. Toggling a mutually exclusive category on displaces the
// conflicting memberships and remembers them, so toggling back off
// restores them. Undo and redo both re-toggle: the operation is its own
// inverse once the displaced categories are recorded.
type ToggleCategoryCommand struct {
	doc        *task.Document
	categoryID string
	itemIDs    []string

	// previous maps item id to the ids of the categories this command
	// displaced, in displacement order.
	previous map[string][]string
}

// ToggleCategory returns a command toggling cat on the given items. A
// mixed selection (some items in cat, some not) is narrowed to the items
// not yet in it, so the command only adds.
func ToggleCategory(doc *task.Document, cat *category.Category, items ...Categorizable) *ToggleCategoryCommand {
	c := &ToggleCategoryCommand{
		doc:        doc,
		categoryID: cat.ID(),
		previous:   make(map[string][]string),
	}
	var notInCategory []string
	for _, item := range items {
		if !item.HasCategory(cat) {
			notInCategory = append(notInCategory, item.ID())
		}
		c.itemIDs = append(c.itemIDs, item.ID())
	}
	if 0 < len(notInCategory) && len(notInCategory) < len(items) {
		c.itemIDs = notInCategory
	}
	return c
}

// Do toggles every resolvable target; vanished items and a vanished
// category make this a no-op for the affected targets.
func (c *ToggleCategoryCommand) Do() error {
	return c.toggle()
}

// Undo toggles the targets back, restoring displaced memberships.
func (c *ToggleCategoryCommand) Undo() error {
	return c.toggle()
}

// Redo toggles again, displacing the same memberships as the first run.
func (c *ToggleCategoryCommand) Redo() error {
	return c.toggle()
}

func (c *ToggleCategoryCommand) toggle() error {
	cat := c.doc.Categories.ByID(c.categoryID)
	if cat == nil {
		return nil
	}
	batch := event.NewBatch(c.doc.Bus())
	defer batch.Flush()
	for _, id := range c.itemIDs {
		item := c.resolveCategorizable(id)
		if item == nil {
			continue
		}
		if item.HasCategory(cat) {
			c.unlink(cat, item, batch)
			c.relinkPrevious(item, batch)
		} else {
			c.link(cat, item, batch)
			c.unlinkPrevious(cat, item, batch)
		}
	}
	return nil
}

// unlinkPrevious removes item from any category that is mutually
// exclusive with cat. When cat competes with its siblings, membership in
// the non-exclusive parent counts as the conflicting membership; otherwise
// the recursive siblings are searched. A category with exclusive
// subcategories additionally displaces membership in its children.
func (c *ToggleCategoryCommand) unlinkPrevious(cat *category.Category, item Categorizable, batch *event.Batch) {
	if cat.IsMutualExclusive() {
		parent, _ := cat.Parent().(*category.Category)
		if parent != nil && item.HasCategory(parent) && !parent.IsMutualExclusive() {
			c.unlinkPreviousCategory(parent, item, batch)
		} else {
			c.unlinkPreviousExclusive(cat.Siblings(true), item, batch)
		}
	}
	if cat.HasExclusiveSubcategories() {
		var children []*category.Category
		for _, child := range cat.Children(false) {
			if childCat, ok := child.(*category.Category); ok {
				children = append(children, childCat)
			}
		}
		c.unlinkPreviousExclusive(children, item, batch)
	}
}

// unlinkPreviousExclusive finds the categories among candidates that item
// belongs to and removes it from them.
func (c *ToggleCategoryCommand) unlinkPreviousExclusive(candidates []*category.Category, item Categorizable, batch *event.Batch) {
	for _, candidate := range candidates {
		if candidate.HasCategorizable(item) {
			c.unlinkPreviousCategory(candidate, item, batch)
		}
	}
}

// unlinkPreviousCategory removes item from cat, remembering the
// membership so a later un-toggle can restore it.
func (c *ToggleCategoryCommand) unlinkPreviousCategory(cat *category.Category, item Categorizable, batch *event.Batch) {
	c.unlink(cat, item, batch)
	c.previous[item.ID()] = append(c.previous[item.ID()], cat.ID())
}

// relinkPrevious re-adds item to the categories this command displaced.
func (c *ToggleCategoryCommand) relinkPrevious(item Categorizable, batch *event.Batch) {
	for _, id := range c.previous[item.ID()] {
		if cat := c.doc.Categories.ByID(id); cat != nil {
			c.link(cat, item, batch)
		}
	}
	delete(c.previous, item.ID())
}

func (c *ToggleCategoryCommand) link(cat *category.Category, item Categorizable, batch *event.Batch) {
	cat.AddCategorizable(batch, item)
	item.AddCategory(batch, cat)
}

func (c *ToggleCategoryCommand) unlink(cat *category.Category, item Categorizable, batch *event.Batch) {
	cat.RemoveCategorizable(batch, item)
	item.RemoveCategory(batch, cat)
}

func (c *ToggleCategoryCommand) resolveCategorizable(id string) Categorizable {
	if t := c.doc.Tasks.ByID(id); t != nil {
		return t
	}
	if n := c.doc.Notes.ByID(id); n != nil {
		return n
	}
	return nil
}

// Description implements Command.
func (c *ToggleCategoryCommand) Description() string {
	if cat := c.doc.Categories.ByID(c.categoryID); cat != nil {
		return fmt.Sprintf("Toggle category %q", cat.Subject(false))
	}
	return "Toggle category"
}
