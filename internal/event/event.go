package event

// SourceValue is one (source, value) pair carried by an Event. Source is
// the domain object the change happened on; Value is the new value, or nil
// for events that only signal "something about this object changed".
type SourceValue struct {
	Source any
	Value  any
}

// Event is a notification for a single topic. One event may carry several
// sources: cascading operations (marking a whole subtree deleted, setting
// many attributes from a deserialized record) batch all affected objects
// into one event so observers see a single notification instead of N.
type Event struct {
	Topic   string
	Sources []SourceValue
}

// AddSource appends a (source, value) pair. The first value is kept per
// source and duplicates of the same source are allowed; observers that
// care should deduplicate by identity.
func (e *Event) AddSource(source, value any) {
	e.Sources = append(e.Sources, SourceValue{Source: source, Value: value})
}

// HasSource reports whether the event carries the given source.
func (e *Event) HasSource(source any) bool {
	for _, sv := range e.Sources {
		if sv.Source == source {
			return true
		}
	}
	return false
}

// Value returns the value recorded for the given source, or nil.
func (e *Event) Value(source any) any {
	for _, sv := range e.Sources {
		if sv.Source == source {
			return sv.Value
		}
	}
	return nil
}

// Batch accumulates events across a nested mutation so that one
// externally-visible operation publishes at most one event per topic.
// Mutating operations accept a *Batch; passing nil makes the operation
// publish on its own. Use Ensure at the top of such operations:
//
//	batch, flush := event.Ensure(bus, batch)
//	defer flush()
//
// Flush publishes the accumulated events in first-touched topic order and
// is a no-op on second call, so only the outermost caller actually sends.
type Batch struct {
	bus     *Bus
	order   []string
	events  map[string]*Event
	flushed bool
}

// NewBatch creates an empty batch bound to bus.
func NewBatch(bus *Bus) *Batch {
	return &Batch{bus: bus, events: make(map[string]*Event)}
}

// Ensure returns batch unchanged with a no-op flush when batch is non-nil,
// or a fresh batch with a real flush when it is nil. This lets nested
// mutations share the caller's batch while top-level calls publish once.
func Ensure(bus *Bus, batch *Batch) (*Batch, func()) {
	if batch != nil {
		return batch, func() {}
	}
	b := NewBatch(bus)
	return b, b.Flush
}

// Add records a (source, value) pair under topic.
func (b *Batch) Add(topic string, source, value any) {
	ev, ok := b.events[topic]
	if !ok {
		ev = &Event{Topic: topic}
		b.events[topic] = ev
		b.order = append(b.order, topic)
	}
	ev.AddSource(source, value)
}

// Flush publishes every accumulated event, one per topic, in the order the
// topics were first touched. Subsequent calls do nothing.
func (b *Batch) Flush() {
	if b.flushed {
		return
	}
	b.flushed = true
	for _, topic := range b.order {
		b.bus.Publish(*b.events[topic])
	}
}
