// Package event implements the per-document publish/subscribe bus that the
// domain model, command layer and sync protocol use to keep derived state
// consistent. Delivery is synchronous, on the publishing goroutine, in
// subscription order. Handler panics are captured per handler so one broken
// observer cannot take the bus down for the rest.
package event

import (
	"fmt"
	"sync"
)

// Handler receives a published event.
type Handler func(Event)

// ErrorHook is called when a handler panics during delivery. Delivery
// continues with the remaining handlers.
type ErrorHook func(topic string, recovered any)

// Subscription is the handle returned by Subscribe, used to unsubscribe.
type Subscription struct {
	id      uint64
	topic   string
	source  any
	handler Handler
}

// Bus routes events by topic string. The zero value is not usable; create
// one with NewBus. A Bus belongs to a single document so that two open
// documents never observe each other's changes.
type Bus struct {
	mu      sync.Mutex
	nextID  uint64
	subs    map[string][]*Subscription
	errHook ErrorHook
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]*Subscription)}
}

// SetErrorHook installs the hook invoked when a handler panics. Passing nil
// restores the default, which swallows the panic silently.
func (b *Bus) SetErrorHook(hook ErrorHook) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errHook = hook
}

// Subscribe registers handler for every event published under topic.
// Subscribing to a topic nobody publishes is legal.
func (b *Bus) Subscribe(topic string, handler Handler) *Subscription {
	return b.subscribe(topic, nil, handler)
}

// SubscribeSource registers handler for events under topic that carry the
// given source. Source matching uses interface identity, so subscribe with
// the same pointer the domain object publishes itself as.
func (b *Bus) SubscribeSource(topic string, source any, handler Handler) *Subscription {
	return b.subscribe(topic, source, handler)
}

func (b *Bus) subscribe(topic string, source any, handler Handler) *Subscription {
	if handler == nil {
		panic("event: nil handler")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &Subscription{id: b.nextID, topic: topic, source: source, handler: handler}
	b.subs[topic] = append(b.subs[topic], sub)
	return sub
}

// Unsubscribe removes a subscription. Unknown subscriptions are ignored.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[sub.topic]
	for i, s := range list {
		if s.id == sub.id {
			b.subs[sub.topic] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Publish delivers ev to every matching subscriber, in subscription order,
// on the calling goroutine. Publishing with no subscribers is a no-op.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	list := b.subs[ev.Topic]
	snapshot := make([]*Subscription, len(list))
	copy(snapshot, list)
	hook := b.errHook
	b.mu.Unlock()

	for _, sub := range snapshot {
		if sub.source != nil && !ev.HasSource(sub.source) {
			continue
		}
		b.deliver(sub, ev, hook)
	}
}

func (b *Bus) deliver(sub *Subscription, ev Event, hook ErrorHook) {
	defer func() {
		if r := recover(); r != nil {
			if hook != nil {
				hook(ev.Topic, r)
			}
		}
	}()
	sub.handler(ev)
}

// Topic builds a dotted topic string from parts, e.g. Topic("object",
// "subject") == "object.subject".
func Topic(parts ...string) string {
	topic := ""
	for i, p := range parts {
		if i > 0 {
			topic += "."
		}
		topic += p
	}
	return topic
}

// String implements fmt.Stringer for debugging.
func (s *Subscription) String() string {
	return fmt.Sprintf("subscription %d on %q", s.id, s.topic)
}
