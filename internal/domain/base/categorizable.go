package base

import (
	"github.com/mpeeters/tasknest/internal/event"
)

// Categorizable is a composite object that can belong to categories.
// Tasks and notes embed it. Category membership contributes to the
// object's effective appearance: when the object has no explicit color,
// font or icon of its own, its categories are consulted before falling
// back to the ancestor chain.
type Categorizable struct {
	CompositeObject

	categories []Item
}

// NewCategorizable creates a categorizable composite object.
func NewCategorizable(bus *event.Bus, self Item) Categorizable {
	return Categorizable{CompositeObject: NewCompositeObject(bus, self)}
}

// Categories returns this object's categories. With recursive and upwards
// set, ancestors' categories are unioned in; with recursive set and
// upwards unset, descendants' categories are. The two recursive modes are
// never combined. The result preserves first-seen order.
func (c *Categorizable) Categories(recursive, upwards bool) []Item {
	result := make([]Item, 0, len(c.categories))
	seen := make(map[Item]struct{}, len(c.categories))
	add := func(categories []Item) {
		for _, category := range categories {
			if _, ok := seen[category]; !ok {
				seen[category] = struct{}{}
				result = append(result, category)
			}
		}
	}
	add(c.categories)
	if recursive && upwards && c.parent != nil {
		if parent, ok := c.parent.(categorized); ok {
			add(parent.Categories(true, true))
		}
	} else if recursive && !upwards {
		for _, child := range c.Children(true) {
			if childCat, ok := child.(categorized); ok {
				add(childCat.Categories(false, false))
			}
		}
	}
	return result
}

// HasCategory reports direct membership in category.
func (c *Categorizable) HasCategory(category Item) bool {
	for _, existing := range c.categories {
		if existing == category {
			return true
		}
	}
	return false
}

// AddCategory adds the given categories, skipping ones already present.
// An appearance event is published only when a new category carries
// appearance attributes this object does not explicitly override.
func (c *Categorizable) AddCategory(batch *event.Batch, categories ...Item) {
	added := make([]Item, 0, len(categories))
	for _, category := range categories {
		if !c.HasCategory(category) {
			added = append(added, category)
		}
	}
	if len(added) == 0 {
		return
	}
	batch, flush := event.Ensure(c.bus, batch)
	defer flush()
	c.categories = append(c.categories, added...)
	c.categoryEvent(batch, TopicCategoryAdded, added)
	c.touched(batch)
}

// RemoveCategory removes the given categories; absent ones are ignored.
func (c *Categorizable) RemoveCategory(batch *event.Batch, categories ...Item) {
	removed := make([]Item, 0, len(categories))
	for _, category := range categories {
		for i, existing := range c.categories {
			if existing == category {
				c.categories = append(c.categories[:i:i], c.categories[i+1:]...)
				removed = append(removed, category)
				break
			}
		}
	}
	if len(removed) == 0 {
		return
	}
	batch, flush := event.Ensure(c.bus, batch)
	defer flush()
	c.categoryEvent(batch, TopicCategoryRemoved, removed)
	c.touched(batch)
}

// SetCategories replaces the whole membership set.
func (c *Categorizable) SetCategories(batch *event.Batch, categories []Item) {
	batch, flush := event.Ensure(c.bus, batch)
	defer flush()
	current := make([]Item, len(c.categories))
	copy(current, c.categories)
	for _, category := range current {
		keep := false
		for _, wanted := range categories {
			if wanted == category {
				keep = true
				break
			}
		}
		if !keep {
			c.RemoveCategory(batch, category)
		}
	}
	c.AddCategory(batch, categories...)
}

// categoryEvent annotates the batch with a membership change for this
// object and, transitively, its children (their effective categories
// change too), plus an appearance event when the categories affect it.
func (c *Categorizable) categoryEvent(batch *event.Batch, topic string, categories []Item) {
	for _, category := range categories {
		batch.Add(topic, c.self, category)
		for _, child := range c.Children(true) {
			batch.Add(topic, child, category)
		}
	}
	if c.categoriesChangeAppearance(categories) {
		c.hooks().appearanceChangedEvent(batch)
	}
}

// categoriesChangeAppearance reports whether the given categories carry an
// appearance attribute for which this object has no explicit override.
func (c *Categorizable) categoriesChangeAppearance(categories []Item) bool {
	anyHas := func(get func(Item) string) bool {
		for _, category := range categories {
			if get(category) != "" {
				return true
			}
		}
		return false
	}
	if c.Object.ForegroundColor(false) == "" && anyHas(func(i Item) string { return i.ForegroundColor(true) }) {
		return true
	}
	if c.Object.BackgroundColor(false) == "" && anyHas(func(i Item) string { return i.BackgroundColor(true) }) {
		return true
	}
	if c.Object.Font(false) == "" && anyHas(func(i Item) string { return i.Font(true) }) {
		return true
	}
	if c.Object.Icon(false) == "" && anyHas(func(i Item) string { return i.Icon(true) }) {
		return true
	}
	return false
}

// categorized is the capability interface other categorizables are
// recognized by during recursive walks.
type categorized interface {
	Categories(recursive, upwards bool) []Item
	categoryForegroundColor() string
	categoryBackgroundColor() string
	categoryFont() string
	categoryIcon() string
	categorySelectedIcon() string
}

// ForegroundColor prefers, in order: the explicit color, a color from the
// categories (own or inherited through an ancestor's categories), the
// ancestor chain.
func (c *Categorizable) ForegroundColor(recursive bool) string {
	own := c.Object.ForegroundColor(false)
	if own != "" || !recursive {
		return own
	}
	if color := c.categoryForegroundColor(); color != "" {
		return color
	}
	return c.CompositeObject.ForegroundColor(true)
}

// BackgroundColor is the background counterpart of ForegroundColor.
func (c *Categorizable) BackgroundColor(recursive bool) string {
	own := c.Object.BackgroundColor(false)
	if own != "" || !recursive {
		return own
	}
	if color := c.categoryBackgroundColor(); color != "" {
		return color
	}
	return c.CompositeObject.BackgroundColor(true)
}

// Font prefers explicit font, then category font, then ancestors.
func (c *Categorizable) Font(recursive bool) string {
	own := c.Object.Font(false)
	if own != "" || !recursive {
		return own
	}
	if font := c.categoryFont(); font != "" {
		return font
	}
	return c.CompositeObject.Font(true)
}

// Icon prefers explicit icon, then category icon, then the composite
// fallback (ancestors plus plural/singular mapping).
func (c *Categorizable) Icon(recursive bool) string {
	icon := c.Object.Icon(false)
	if icon == "" && recursive {
		if icon = c.categoryIcon(); icon == "" {
			icon = c.CompositeObject.Icon(true)
		}
	}
	return icon
}

// SelectedIcon is the selection-state counterpart of Icon.
func (c *Categorizable) SelectedIcon(recursive bool) string {
	icon := c.Object.SelectedIcon(false)
	if icon == "" && recursive {
		if icon = c.categorySelectedIcon(); icon == "" {
			icon = c.CompositeObject.SelectedIcon(true)
		}
	}
	return icon
}

// categoryForegroundColor returns the first category color, consulting the
// parent's categories when this object's own categories have none.
func (c *Categorizable) categoryForegroundColor() string {
	return c.categoryAttribute(
		func(category Item) string { return category.ForegroundColor(true) },
		func(parent categorized) string { return parent.categoryForegroundColor() },
	)
}

func (c *Categorizable) categoryBackgroundColor() string {
	return c.categoryAttribute(
		func(category Item) string { return category.BackgroundColor(true) },
		func(parent categorized) string { return parent.categoryBackgroundColor() },
	)
}

func (c *Categorizable) categoryFont() string {
	return c.categoryAttribute(
		func(category Item) string { return category.Font(true) },
		func(parent categorized) string { return parent.categoryFont() },
	)
}

func (c *Categorizable) categoryIcon() string {
	return c.categoryAttribute(
		func(category Item) string { return category.Icon(true) },
		func(parent categorized) string { return parent.categoryIcon() },
	)
}

func (c *Categorizable) categorySelectedIcon() string {
	return c.categoryAttribute(
		func(category Item) string { return category.SelectedIcon(true) },
		func(parent categorized) string { return parent.categorySelectedIcon() },
	)
}

// categoryAttribute returns the first non-empty value among this object's
// categories, in membership order, walking up to the parent's categories
// when there is none here.
func (c *Categorizable) categoryAttribute(fromCategory func(Item) string, fromParent func(categorized) string) string {
	for _, category := range c.categories {
		if value := fromCategory(category); value != "" {
			return value
		}
	}
	if parent, ok := c.parent.(categorized); ok {
		return fromParent(parent)
	}
	return ""
}
