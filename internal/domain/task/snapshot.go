package task

import (
	"time"

	"github.com/mpeeters/tasknest/internal/domain/base"
	"github.com/mpeeters/tasknest/internal/domain/category"
	"github.com/mpeeters/tasknest/internal/domain/date"
	"github.com/mpeeters/tasknest/internal/event"
)

// Snapshot is a deep copy of a document's state, taken before a sync
// session mutates it. Restoring an interrupted session rebuilds the
// entities from these records; entity identity is not preserved across a
// restore, only ids and attribute values are.
type Snapshot struct {
	guid       string
	categories []categoryState
	tasks      []taskState
	notes      []noteState
	efforts    []effortState
}

type objectState struct {
	id           string
	status       base.Status
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
	parentID     string
	expanded     []string
}

type categoryState struct {
	objectState
	exclusiveSubcategories bool
}

type taskState struct {
	objectState
	categoryIDs  []string
	plannedStart time.Time
	due          time.Time
	completion   time.Time
	reminder     time.Time
	priority     int
	recurrence   *date.Recurrence
	hourlyFee    float64
	fixedFee     float64
	attachments  []Attachment
}

type noteState struct {
	objectState
	categoryIDs []string
}

type effortState struct {
	id           string
	status       base.Status
	creation     time.Time
	modification time.Time
	description  string
	taskID       string
	start        time.Time
	stop         time.Time
}

// TakeSnapshot captures the full state of doc. Entities are recorded with
// parents before children so a restore can relink the trees in one pass.
func TakeSnapshot(doc *Document) *Snapshot {
	s := &Snapshot{guid: doc.GUID()}
	for _, c := range doc.Categories.AllSorted() {
		s.categories = append(s.categories, categoryState{
			objectState:            captureObject(c),
			exclusiveSubcategories: c.HasExclusiveSubcategories(),
		})
	}
	for _, t := range doc.Tasks.AllSorted() {
		s.tasks = append(s.tasks, taskState{
			objectState:  captureObject(t),
			categoryIDs:  categoryIDs(t.Categories(false, false)),
			plannedStart: t.PlannedStartDateTime(),
			due:          t.DueDateTime(),
			completion:   t.CompletionDateTime(),
			reminder:     t.Reminder(),
			priority:     t.Priority(),
			recurrence:   t.Recurrence().Copy(),
			hourlyFee:    t.HourlyFee(),
			fixedFee:     t.FixedFee(),
			attachments:  t.Attachments(),
		})
	}
	for _, n := range noteSorted(doc.Notes) {
		s.notes = append(s.notes, noteState{
			objectState: captureObject(n),
			categoryIDs: categoryIDs(n.Categories(false, false)),
		})
	}
	for _, e := range doc.Efforts.All() {
		state := effortState{
			id:           e.ID(),
			status:       e.Status(),
			creation:     e.CreationDateTime(),
			modification: e.ModificationDateTime(),
			description:  e.Description(),
			start:        e.Start(),
			stop:         e.Stop(),
		}
		if e.Task() != nil {
			state.taskID = e.Task().ID()
		}
		s.efforts = append(s.efforts, state)
	}
	return s
}

func captureObject(item base.Item) objectState {
	state := objectState{
		id:           item.ID(),
		status:       item.Status(),
		creation:     item.CreationDateTime(),
		modification: item.ModificationDateTime(),
		subject:      item.Subject(false),
		description:  item.Description(),
		fgColor:      item.ForegroundColor(false),
		bgColor:      item.BackgroundColor(false),
		font:         item.Font(false),
		icon:         item.Icon(false),
		selectedIcon: item.SelectedIcon(false),
		ordering:     item.Ordering(),
	}
	if parent := item.Parent(); parent != nil {
		state.parentID = parent.ID()
	}
	if expandable, ok := item.(interface{ ExpandedContexts() []string }); ok {
		state.expanded = expandable.ExpandedContexts()
	}
	return state
}

func categoryIDs(categories []base.Item) []string {
	ids := make([]string, 0, len(categories))
	for _, c := range categories {
		ids = append(ids, c.ID())
	}
	return ids
}

// noteSorted returns the notes with parents preceding children.
func noteSorted(container *NoteContainer) []*Note {
	var result []*Note
	var walk func(n *Note)
	walk = func(n *Note) {
		result = append(result, n)
		for _, child := range n.Children(false) {
			if childNote, ok := child.(*Note); ok && container.Contains(childNote) {
				walk(childNote)
			}
		}
	}
	for _, root := range container.Roots() {
		walk(root)
	}
	return result
}

// RestoreInto throws away doc's current contents and rebuilds them from
// the snapshot. All notifications of the rebuild are flushed as one batch.
func (s *Snapshot) RestoreInto(doc *Document) {
	bus := doc.Bus()
	batch := event.NewBatch(bus)
	defer batch.Flush()

	doc.Clear(batch)
	doc.SetGUID(s.guid, batch)

	categories := make(map[string]*category.Category, len(s.categories))
	for i := range s.categories {
		state := &s.categories[i]
		c := category.New(bus, state.subject)
		restoreObject(&c.CompositeObject.Object, c, &state.objectState, batch)
		c.MakeSubcategoriesExclusive(state.exclusiveSubcategories, batch)
		if parent := categories[state.parentID]; parent != nil {
			_ = parent.AddChild(c, batch)
		}
		categories[state.id] = c
	}
	for i := range s.categories {
		if c := categories[s.categories[i].id]; c.Parent() == nil {
			doc.Categories.Add(batch, c)
		}
	}

	tasks := make(map[string]*Task, len(s.tasks))
	for i := range s.tasks {
		state := &s.tasks[i]
		t := NewTask(bus, state.subject)
		restoreObject(&t.Categorizable.CompositeObject.Object, t, &state.objectState, batch)
		t.SetPlannedStartDateTime(state.plannedStart, batch)
		t.SetDueDateTime(state.due, batch)
		t.SetCompletionDateTime(state.completion, batch)
		t.SetReminder(state.reminder, batch)
		t.SetPriority(state.priority, batch)
		if state.recurrence != nil {
			t.SetRecurrence(state.recurrence.Copy(), batch)
		}
		t.SetHourlyFee(state.hourlyFee, batch)
		t.SetFixedFee(state.fixedFee, batch)
		for _, attachment := range state.attachments {
			t.AddAttachment(attachment, batch)
		}
		relinkCategories(t, state.categoryIDs, categories, batch)
		if parent := tasks[state.parentID]; parent != nil {
			_ = parent.AddChild(t, batch)
		}
		tasks[state.id] = t
	}
	for i := range s.tasks {
		if t := tasks[s.tasks[i].id]; t.Parent() == nil {
			doc.Tasks.Add(batch, t)
		}
	}

	notes := make(map[string]*Note, len(s.notes))
	for i := range s.notes {
		state := &s.notes[i]
		n := NewNote(bus, state.subject)
		restoreObject(&n.Categorizable.CompositeObject.Object, n, &state.objectState, batch)
		relinkCategories(n, state.categoryIDs, categories, batch)
		if parent := notes[state.parentID]; parent != nil {
			_ = parent.AddChild(n, batch)
		}
		notes[state.id] = n
	}
	for i := range s.notes {
		if n := notes[s.notes[i].id]; n.Parent() == nil {
			doc.Notes.Add(batch, n)
		}
	}

	for i := range s.efforts {
		state := &s.efforts[i]
		e := NewEffort(bus, tasks[state.taskID], state.start, state.stop)
		e.SetID(state.id)
		e.SetDescription(state.description, batch)
		e.SetCreationDateTime(state.creation)
		applyStatus(e, state.status, batch)
		e.SetModificationDateTime(state.modification)
		doc.Efforts.Add(batch, e)
	}

	// Statuses last: the rebuild itself marked everything dirty, and the
	// cascading mark operations of a parent are overridden by the child's
	// own recorded status (children follow parents in the records).
	for i := range s.categories {
		state := &s.categories[i]
		applyStatus(categories[state.id], state.status, batch)
		categories[state.id].SetModificationDateTime(state.modification)
	}
	for i := range s.tasks {
		state := &s.tasks[i]
		applyStatus(tasks[state.id], state.status, batch)
		tasks[state.id].SetModificationDateTime(state.modification)
	}
	for i := range s.notes {
		state := &s.notes[i]
		applyStatus(notes[state.id], state.status, batch)
		notes[state.id].SetModificationDateTime(state.modification)
	}
}

// restoreObject replays the shared attributes onto a freshly built entity.
// Status and modification time are restored later, once linking is done.
func restoreObject(obj *base.Object, item base.Item, state *objectState, batch *event.Batch) {
	obj.SetID(state.id)
	obj.SetCreationDateTime(state.creation)
	obj.SetDescription(state.description, batch)
	obj.SetForegroundColor(state.fgColor, batch)
	obj.SetBackgroundColor(state.bgColor, batch)
	obj.SetFont(state.font, batch)
	obj.SetIcon(state.icon, batch)
	obj.SetSelectedIcon(state.selectedIcon, batch)
	obj.SetOrdering(state.ordering, batch)
	if expandable, ok := item.(interface {
		Expand(expand bool, context string, batch *event.Batch)
	}); ok {
		for _, context := range state.expanded {
			expandable.Expand(true, context, batch)
		}
	}
}

func relinkCategories(c interface {
	AddCategory(batch *event.Batch, categories ...base.Item)
}, ids []string, categories map[string]*category.Category, batch *event.Batch) {
	for _, id := range ids {
		if cat := categories[id]; cat != nil {
			c.AddCategory(batch, cat)
		}
	}
}

// applyStatus replays a recorded lifecycle status onto a rebuilt entity.
func applyStatus(item base.Item, status base.Status, batch *event.Batch) {
	switch status {
	case base.StatusNone:
		item.CleanDirty(batch)
	case base.StatusNew:
		item.MarkNew(batch)
	case base.StatusChanged:
		item.CleanDirty(batch)
		item.MarkDirty(true, batch)
	case base.StatusDeleted:
		item.MarkDeleted(batch)
	}
}
