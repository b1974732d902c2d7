package base

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpeeters/tasknest/internal/event"
)

// testObject is a minimal concrete entity for exercising the base layer.
type testObject struct {
	Object
}

func newTestObject(bus *event.Bus) *testObject {
	o := &testObject{}
	o.Object = NewObject(bus, o)
	return o
}

// recordEvents subscribes to the given topics and returns the slice the
// received events accumulate into.
func recordEvents(bus *event.Bus, topics ...string) *[]event.Event {
	var events []event.Event
	for _, topic := range topics {
		bus.Subscribe(topic, func(ev event.Event) { events = append(events, ev) })
	}
	return &events
}

func TestNewObjectStartsNew(t *testing.T) {
	o := newTestObject(event.NewBus())

	assert.NotEmpty(t, o.ID())
	assert.True(t, o.IsNew())
	assert.False(t, o.IsModified())
	assert.False(t, o.IsDeleted())
	assert.False(t, o.CreationDateTime().IsZero())
}

func TestSetSubjectPublishesOnChangeOnly(t *testing.T) {
	bus := event.NewBus()
	o := newTestObject(bus)
	events := recordEvents(bus, TopicSubject)

	o.SetSubject("laundry", nil)
	require.Len(t, *events, 1)
	assert.Equal(t, "laundry", (*events)[0].Value(o))

	// Setting the same value again is a no-op.
	o.SetSubject("laundry", nil)
	assert.Len(t, *events, 1)
	assert.Equal(t, "laundry", o.Subject(false))
}

func TestSetterBumpsModificationAndMarksDirty(t *testing.T) {
	bus := event.NewBus()
	o := newTestObject(bus)
	o.CleanDirty(nil)
	before := o.ModificationDateTime()

	o.SetDescription("explain", nil)

	assert.True(t, o.IsModified())
	assert.True(t, o.ModificationDateTime().After(before) || before.IsZero())
}

func TestMarkDirtyDoesNotOverrideOtherStatuses(t *testing.T) {
	bus := event.NewBus()
	o := newTestObject(bus)

	// NEW survives a non-forced MarkDirty.
	o.MarkDirty(false, nil)
	assert.True(t, o.IsNew())

	// DELETED survives too.
	o.MarkDeleted(nil)
	o.MarkDirty(false, nil)
	assert.True(t, o.IsDeleted())

	// Forced transition always wins.
	events := recordEvents(bus, TopicMarkNotDeleted)
	o.MarkDirty(true, nil)
	assert.True(t, o.IsModified())
	assert.Len(t, *events, 1)
}

func TestStatusLifecycleEvents(t *testing.T) {
	bus := event.NewBus()
	o := newTestObject(bus)
	deleted := recordEvents(bus, TopicMarkDeleted)
	notDeleted := recordEvents(bus, TopicMarkNotDeleted)

	o.MarkDeleted(nil)
	assert.Len(t, *deleted, 1)

	// Deleting again publishes nothing new.
	o.MarkDeleted(nil)
	assert.Len(t, *deleted, 1)

	o.CleanDirty(nil)
	assert.Equal(t, StatusNone, o.Status())
	assert.Len(t, *notDeleted, 1)
}

func TestAppearanceSettersShareOneTopic(t *testing.T) {
	bus := event.NewBus()
	o := newTestObject(bus)
	events := recordEvents(bus, TopicAppearance)

	o.SetForegroundColor("red", nil)
	o.SetBackgroundColor("white", nil)
	o.SetFont("mono", nil)
	o.SetIcon("folder", nil)
	o.SetSelectedIcon("folder_open", nil)
	assert.Len(t, *events, 5)

	// Unchanged values publish nothing.
	o.SetForegroundColor("red", nil)
	assert.Len(t, *events, 5)

	assert.Equal(t, "red", o.ForegroundColor(false))
	assert.Equal(t, "white", o.BackgroundColor(false))
	assert.Equal(t, "mono", o.Font(false))
	assert.Equal(t, "folder", o.Icon(false))
	assert.Equal(t, "folder_open", o.SelectedIcon(false))
}

func TestSetOrdering(t *testing.T) {
	bus := event.NewBus()
	o := newTestObject(bus)
	events := recordEvents(bus, TopicOrdering)

	o.SetOrdering(7, nil)
	assert.EqualValues(t, 7, o.Ordering())
	require.Len(t, *events, 1)
	assert.EqualValues(t, 7, (*events)[0].Value(o))

	o.SetOrdering(7, nil)
	assert.Len(t, *events, 1)
}

func TestPersistenceSettersDoNotPublish(t *testing.T) {
	bus := event.NewBus()
	o := newTestObject(bus)
	events := recordEvents(bus, TopicSubject, TopicMarkNotDeleted)

	o.SetID("fixed-id")
	stamp := time.Date(2020, 1, 2, 3, 4, 5, 0, time.Local)
	o.SetCreationDateTime(stamp)
	o.SetModificationDateTime(stamp)

	assert.Equal(t, "fixed-id", o.ID())
	assert.Equal(t, stamp, o.CreationDateTime())
	assert.Equal(t, stamp, o.ModificationDateTime())
	assert.Empty(t, *events)
}
