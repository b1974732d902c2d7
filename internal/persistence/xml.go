// Package persistence reads and writes the task file and implements the
// one-way exporters (iCalendar, Todo.txt, CSV, HTML). The XML task file
// is the durable format and must round-trip every domain attribute; the
// exporters are lossy by design.
package persistence

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mpeeters/tasknest/internal/domain/base"
	"github.com/mpeeters/tasknest/internal/domain/category"
	"github.com/mpeeters/tasknest/internal/domain/date"
	"github.com/mpeeters/tasknest/internal/domain/task"
	"github.com/mpeeters/tasknest/internal/event"
)

// formatVersion is bumped whenever the file format changes
// incompatibly. Readers refuse files written by a newer version.
const formatVersion = 1

// ErrFormatTooNew is returned when a file was written by a newer format
// version than this reader supports. It is distinct from parse errors so
// callers can tell "upgrade needed" from "file corrupt".
var ErrFormatTooNew = errors.New("persistence: file format too new")

const xmlTimeLayout = "2006-01-02 15:04:05"

type xmlFile struct {
	XMLName    xml.Name      `xml:"taskfile"`
	Format     int           `xml:"format,attr"`
	GUID       string        `xml:"guid,attr"`
	Categories []xmlCategory `xml:"category"`
	Tasks      []xmlTask     `xml:"task"`
	Notes      []xmlNote     `xml:"note"`
	Efforts    []xmlEffort   `xml:"effort"`
}

// xmlObject carries the attributes shared by every entity.
type xmlObject struct {
	ID           string         `xml:"id,attr"`
	Subject      string         `xml:"subject,attr"`
	Description  string         `xml:"description,omitempty"`
	FgColor      string         `xml:"fgColor,attr,omitempty"`
	BgColor      string         `xml:"bgColor,attr,omitempty"`
	Font         string         `xml:"font,attr,omitempty"`
	Icon         string         `xml:"icon,attr,omitempty"`
	SelectedIcon string         `xml:"selectedIcon,attr,omitempty"`
	Ordering     int64          `xml:"ordering,attr,omitempty"`
	Creation     string         `xml:"creationDateTime,attr,omitempty"`
	Modification string         `xml:"modificationDateTime,attr,omitempty"`
	Expansions   []xmlExpansion `xml:"expansion"`
}

type xmlExpansion struct {
	Context string `xml:"context,attr"`
}

type xmlCategory struct {
	xmlObject
	Exclusive      bool          `xml:"exclusiveSubcategories,attr,omitempty"`
	Categorizables string        `xml:"categorizables,attr,omitempty"`
	Children       []xmlCategory `xml:"category"`
}

type xmlRecurrence struct {
	Unit              string `xml:"unit,attr"`
	Amount            int    `xml:"amount,attr,omitempty"`
	SameWeekday       bool   `xml:"sameWeekday,attr,omitempty"`
	Max               int    `xml:"max,attr,omitempty"`
	Count             int    `xml:"count,attr,omitempty"`
	Stop              string `xml:"stop,attr,omitempty"`
	BasedOnCompletion bool   `xml:"basedOnCompletion,attr,omitempty"`
}

type xmlAttachment struct {
	Location string `xml:"location,attr"`
}

type xmlTask struct {
	xmlObject
	PlannedStart string          `xml:"plannedStartDateTime,attr,omitempty"`
	Due          string          `xml:"dueDateTime,attr,omitempty"`
	Completion   string          `xml:"completionDateTime,attr,omitempty"`
	Reminder     string          `xml:"reminder,attr,omitempty"`
	Priority     int             `xml:"priority,attr,omitempty"`
	HourlyFee    float64         `xml:"hourlyFee,attr,omitempty"`
	FixedFee     float64         `xml:"fixedFee,attr,omitempty"`
	Recurrence   *xmlRecurrence  `xml:"recurrence"`
	Attachments  []xmlAttachment `xml:"attachment"`
	Children     []xmlTask       `xml:"task"`
}

type xmlNote struct {
	xmlObject
	Children []xmlNote `xml:"note"`
}

type xmlEffort struct {
	ID          string `xml:"id,attr"`
	Subject     string `xml:"subject,attr"`
	Task        string `xml:"task,attr,omitempty"`
	Start       string `xml:"start,attr,omitempty"`
	Stop        string `xml:"stop,attr,omitempty"`
	Description string `xml:"description,omitempty"`
	Creation    string `xml:"creationDateTime,attr,omitempty"`
	Modified    string `xml:"modificationDateTime,attr,omitempty"`
}

// WriteXML writes doc as a task file. Lifecycle statuses are not stored;
// loading a file yields clean objects.
func WriteXML(w io.Writer, doc *task.Document) error {
	file := xmlFile{Format: formatVersion, GUID: doc.GUID()}
	for _, c := range doc.Categories.Roots() {
		file.Categories = append(file.Categories, marshalCategory(c))
	}
	for _, t := range doc.Tasks.Roots() {
		file.Tasks = append(file.Tasks, marshalTask(t))
	}
	for _, n := range doc.Notes.Roots() {
		file.Notes = append(file.Notes, marshalNote(n))
	}
	for _, e := range doc.Efforts.All() {
		file.Efforts = append(file.Efforts, marshalEffort(e))
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("writing task file: %w", err)
	}
	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")
	if err := encoder.Encode(file); err != nil {
		return fmt.Errorf("writing task file: %w", err)
	}
	return nil
}

func marshalObject(item base.Item) xmlObject {
	obj := xmlObject{
		ID:           item.ID(),
		Subject:      item.Subject(false),
		Description:  item.Description(),
		FgColor:      item.ForegroundColor(false),
		BgColor:      item.BackgroundColor(false),
		Font:         item.Font(false),
		Icon:         item.Icon(false),
		SelectedIcon: item.SelectedIcon(false),
		Ordering:     item.Ordering(),
		Creation:     formatTime(item.CreationDateTime()),
		Modification: formatTime(item.ModificationDateTime()),
	}
	if expandable, ok := item.(interface{ ExpandedContexts() []string }); ok {
		for _, context := range expandable.ExpandedContexts() {
			obj.Expansions = append(obj.Expansions, xmlExpansion{Context: context})
		}
	}
	return obj
}

func marshalCategory(c *category.Category) xmlCategory {
	out := xmlCategory{
		xmlObject: marshalObject(c),
		Exclusive: c.HasExclusiveSubcategories(),
	}
	var refs []string
	for _, member := range c.Categorizables() {
		refs = append(refs, member.ID())
	}
	out.Categorizables = strings.Join(refs, " ")
	for _, child := range c.Children(false) {
		if childCat, ok := child.(*category.Category); ok {
			out.Children = append(out.Children, marshalCategory(childCat))
		}
	}
	return out
}

func marshalTask(t *task.Task) xmlTask {
	out := xmlTask{
		xmlObject:    marshalObject(t),
		PlannedStart: formatTime(t.PlannedStartDateTime()),
		Due:          formatTime(t.DueDateTime()),
		Completion:   formatTime(t.CompletionDateTime()),
		Reminder:     formatTime(t.Reminder()),
		Priority:     t.Priority(),
		HourlyFee:    t.HourlyFee(),
		FixedFee:     t.FixedFee(),
	}
	if r := t.Recurrence(); r != nil && r.Unit != date.UnitNone {
		out.Recurrence = &xmlRecurrence{
			Unit:              r.Unit,
			Amount:            r.Amount,
			SameWeekday:       r.SameWeekday,
			Max:               r.Max,
			Count:             r.Count,
			Stop:              formatTime(r.StopDateTime),
			BasedOnCompletion: r.BasedOnCompletion,
		}
	}
	for _, attachment := range t.Attachments() {
		out.Attachments = append(out.Attachments, xmlAttachment{Location: attachment.Location})
	}
	for _, child := range t.Children(false) {
		if childTask, ok := child.(*task.Task); ok {
			out.Children = append(out.Children, marshalTask(childTask))
		}
	}
	return out
}

func marshalNote(n *task.Note) xmlNote {
	out := xmlNote{xmlObject: marshalObject(n)}
	for _, child := range n.Children(false) {
		if childNote, ok := child.(*task.Note); ok {
			out.Children = append(out.Children, marshalNote(childNote))
		}
	}
	return out
}

func marshalEffort(e *task.Effort) xmlEffort {
	out := xmlEffort{
		ID:          e.ID(),
		Subject:     e.Subject(false),
		Start:       formatTime(e.Start()),
		Stop:        formatTime(e.Stop()),
		Description: e.Description(),
		Creation:    formatTime(e.CreationDateTime()),
		Modified:    formatTime(e.ModificationDateTime()),
	}
	if e.Task() != nil {
		out.Task = e.Task().ID()
	}
	return out
}

// ReadXML parses a task file into a fresh document on bus. A file
// written by a newer format version fails with ErrFormatTooNew.
func ReadXML(r io.Reader, bus *event.Bus) (*task.Document, error) {
	var file xmlFile
	if err := xml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("parsing task file: %w", err)
	}
	if file.Format > formatVersion {
		return nil, fmt.Errorf("%w: file version %d, supported up to %d",
			ErrFormatTooNew, file.Format, formatVersion)
	}

	doc := task.NewDocument(bus)
	batch := event.NewBatch(bus)

	if file.GUID != "" {
		doc.SetGUID(file.GUID, batch)
	}

	loader := &xmlLoader{
		bus:           bus,
		batch:         batch,
		refs:          make(map[*category.Category][]string),
		items:         make(map[string]base.Item),
		modifications: make(map[base.Item]time.Time),
	}
	for _, xc := range file.Categories {
		doc.Categories.Add(batch, loader.category(xc, nil))
	}
	for _, xt := range file.Tasks {
		doc.Tasks.Add(batch, loader.task(xt, nil))
	}
	for _, xn := range file.Notes {
		doc.Notes.Add(batch, loader.note(xn, nil))
	}
	for _, xe := range file.Efforts {
		doc.Efforts.Add(batch, loader.effort(xe))
	}
	loader.relink()
	if loader.err != nil {
		return nil, fmt.Errorf("parsing task file: %w", loader.err)
	}

	// Loading leaves everything pristine.
	doc.CleanAll(batch)
	loader.restoreModificationTimes()
	batch.Flush()
	return doc, nil
}

// xmlLoader tracks the id maps needed to restore the category relation
// and the modification times clobbered by the setters.
type xmlLoader struct {
	bus   *event.Bus
	batch *event.Batch

	categories    []*category.Category
	refs          map[*category.Category][]string
	items         map[string]base.Item
	modifications map[base.Item]time.Time
	err           error
}

// time parses a timestamp attribute, recording the first failure so the
// load fails instead of silently dropping the value.
func (l *xmlLoader) time(s string) time.Time {
	t, err := parseTime(s)
	if err != nil && l.err == nil {
		l.err = err
	}
	return t
}

func (l *xmlLoader) register(item base.Item, obj xmlObject) {
	l.items[obj.ID] = item
	if modification := l.time(obj.Modification); !modification.IsZero() {
		l.modifications[item] = modification
	}
}

func (l *xmlLoader) loadObject(item base.Item, obj xmlObject) {
	type objectSetters interface {
		SetID(id string)
		SetCreationDateTime(t time.Time)
		SetSubject(subject string, batch *event.Batch)
		SetDescription(description string, batch *event.Batch)
		SetForegroundColor(color string, batch *event.Batch)
		SetBackgroundColor(color string, batch *event.Batch)
		SetFont(font string, batch *event.Batch)
		SetIcon(icon string, batch *event.Batch)
		SetSelectedIcon(icon string, batch *event.Batch)
		SetOrdering(ordering int64, batch *event.Batch)
	}
	setters := item.(objectSetters)
	setters.SetID(obj.ID)
	setters.SetSubject(obj.Subject, l.batch)
	setters.SetDescription(obj.Description, l.batch)
	setters.SetForegroundColor(obj.FgColor, l.batch)
	setters.SetBackgroundColor(obj.BgColor, l.batch)
	setters.SetFont(obj.Font, l.batch)
	setters.SetIcon(obj.Icon, l.batch)
	setters.SetSelectedIcon(obj.SelectedIcon, l.batch)
	setters.SetOrdering(obj.Ordering, l.batch)
	if creation := l.time(obj.Creation); !creation.IsZero() {
		setters.SetCreationDateTime(creation)
	}
	if expandable, ok := item.(interface {
		Expand(expand bool, context string, batch *event.Batch)
	}); ok {
		for _, expansion := range obj.Expansions {
			expandable.Expand(true, expansion.Context, l.batch)
		}
	}
	l.register(item, obj)
}

func (l *xmlLoader) category(xc xmlCategory, parent *category.Category) *category.Category {
	c := category.New(l.bus, xc.Subject)
	l.loadObject(c, xc.xmlObject)
	c.MakeSubcategoriesExclusive(xc.Exclusive, l.batch)
	if xc.Categorizables != "" {
		l.refs[c] = strings.Fields(xc.Categorizables)
	}
	l.categories = append(l.categories, c)
	if parent != nil {
		_ = parent.AddChild(c, l.batch)
	}
	for _, child := range xc.Children {
		l.category(child, c)
	}
	return c
}

func (l *xmlLoader) task(xt xmlTask, parent *task.Task) *task.Task {
	t := task.NewTask(l.bus, xt.Subject)
	l.loadObject(t, xt.xmlObject)
	t.SetPlannedStartDateTime(l.time(xt.PlannedStart), l.batch)
	t.SetDueDateTime(l.time(xt.Due), l.batch)
	t.SetCompletionDateTime(l.time(xt.Completion), l.batch)
	t.SetReminder(l.time(xt.Reminder), l.batch)
	t.SetPriority(xt.Priority, l.batch)
	t.SetHourlyFee(xt.HourlyFee, l.batch)
	t.SetFixedFee(xt.FixedFee, l.batch)
	if xt.Recurrence != nil {
		r := date.NewRecurrence(xt.Recurrence.Unit, xt.Recurrence.Amount)
		r.SameWeekday = xt.Recurrence.SameWeekday
		r.Max = xt.Recurrence.Max
		r.Count = xt.Recurrence.Count
		r.StopDateTime = l.time(xt.Recurrence.Stop)
		r.BasedOnCompletion = xt.Recurrence.BasedOnCompletion
		t.SetRecurrence(r, l.batch)
	}
	for _, attachment := range xt.Attachments {
		t.AddAttachment(task.Attachment{Location: attachment.Location}, l.batch)
	}
	if parent != nil {
		_ = parent.AddChild(t, l.batch)
	}
	for _, child := range xt.Children {
		l.task(child, t)
	}
	return t
}

func (l *xmlLoader) note(xn xmlNote, parent *task.Note) *task.Note {
	n := task.NewNote(l.bus, xn.Subject)
	l.loadObject(n, xn.xmlObject)
	if parent != nil {
		_ = parent.AddChild(n, l.batch)
	}
	for _, child := range xn.Children {
		l.note(child, n)
	}
	return n
}

func (l *xmlLoader) effort(xe xmlEffort) *task.Effort {
	var owner *task.Task
	if xe.Task != "" {
		owner, _ = l.items[xe.Task].(*task.Task)
	}
	e := task.NewEffort(l.bus, owner, l.time(xe.Start), l.time(xe.Stop))
	e.SetID(xe.ID)
	e.SetSubject(xe.Subject, l.batch)
	e.SetDescription(xe.Description, l.batch)
	if creation := l.time(xe.Creation); !creation.IsZero() {
		e.SetCreationDateTime(creation)
	}
	if modified := l.time(xe.Modified); !modified.IsZero() {
		l.modifications[e] = modified
	}
	l.items[xe.ID] = e
	return e
}

// relink restores the category relation on both sides from the id
// references stored on the category elements.
func (l *xmlLoader) relink() {
	for _, c := range l.categories {
		for _, id := range l.refs[c] {
			item, ok := l.items[id]
			if !ok {
				continue
			}
			c.AddCategorizable(l.batch, item)
			if member, isMember := item.(interface {
				AddCategory(batch *event.Batch, categories ...base.Item)
			}); isMember {
				member.AddCategory(l.batch, c)
			}
		}
	}
}

// restoreModificationTimes runs last: every setter above bumped the
// modification time, which must reflect the file, not the load.
func (l *xmlLoader) restoreModificationTimes() {
	type modifiable interface {
		SetModificationDateTime(t time.Time)
	}
	for item, modification := range l.modifications {
		item.(modifiable).SetModificationDateTime(modification)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(xmlTimeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(xmlTimeLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}
