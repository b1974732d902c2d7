package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversInSubscriptionOrder(t *testing.T) {
	bus := NewBus()
	var order []int
	bus.Subscribe("topic", func(Event) { order = append(order, 1) })
	bus.Subscribe("topic", func(Event) { order = append(order, 2) })
	bus.Subscribe("topic", func(Event) { order = append(order, 3) })

	bus.Publish(Event{Topic: "topic"})

	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestPublishWithoutSubscribersIsNoOp(t *testing.T) {
	bus := NewBus()
	bus.Publish(Event{Topic: "nobody"})
}

func TestSubscribeSourceFiltersByIdentity(t *testing.T) {
	bus := NewBus()
	type obj struct{ name string }
	mine, theirs := &obj{"mine"}, &obj{"theirs"}

	var got int
	bus.SubscribeSource("topic", mine, func(Event) { got++ })

	ev := Event{Topic: "topic"}
	ev.AddSource(theirs, nil)
	bus.Publish(ev)
	assert.Equal(t, 0, got)

	ev.AddSource(mine, "value")
	bus.Publish(ev)
	assert.Equal(t, 1, got)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()
	var got int
	sub := bus.Subscribe("topic", func(Event) { got++ })

	bus.Publish(Event{Topic: "topic"})
	bus.Unsubscribe(sub)
	bus.Publish(Event{Topic: "topic"})

	assert.Equal(t, 1, got)
}

func TestHandlerPanicDoesNotStopDelivery(t *testing.T) {
	bus := NewBus()
	var recovered any
	bus.SetErrorHook(func(topic string, r any) { recovered = r })

	var delivered bool
	bus.Subscribe("topic", func(Event) { panic("boom") })
	bus.Subscribe("topic", func(Event) { delivered = true })

	bus.Publish(Event{Topic: "topic"})

	assert.True(t, delivered)
	assert.Equal(t, "boom", recovered)
}

func TestEventValueBySource(t *testing.T) {
	src := &struct{}{}
	ev := Event{Topic: "topic"}
	ev.AddSource(src, 42)

	assert.True(t, ev.HasSource(src))
	assert.Equal(t, 42, ev.Value(src))
	assert.Nil(t, ev.Value(&struct{}{}))
}

func TestBatchCoalescesPerTopic(t *testing.T) {
	bus := NewBus()
	var events []Event
	bus.Subscribe("a", func(ev Event) { events = append(events, ev) })
	bus.Subscribe("b", func(ev Event) { events = append(events, ev) })

	src1, src2 := &struct{}{}, &struct{}{}
	batch := NewBatch(bus)
	batch.Add("a", src1, nil)
	batch.Add("b", src1, nil)
	batch.Add("a", src2, nil)
	require.Empty(t, events, "nothing published before flush")

	batch.Flush()

	require.Len(t, events, 2)
	assert.Equal(t, "a", events[0].Topic)
	assert.Len(t, events[0].Sources, 2)
	assert.Equal(t, "b", events[1].Topic)

	batch.Flush()
	assert.Len(t, events, 2, "second flush publishes nothing")
}

func TestEnsureReusesCallersBatch(t *testing.T) {
	bus := NewBus()
	outer := NewBatch(bus)

	inner, flush := Ensure(bus, outer)
	assert.Same(t, outer, inner)

	var published int
	bus.Subscribe("topic", func(Event) { published++ })
	inner.Add("topic", &struct{}{}, nil)
	flush()
	assert.Equal(t, 0, published, "inner flush must not publish the outer batch")

	outer.Flush()
	assert.Equal(t, 1, published)
}

func TestEnsureCreatesBatchWhenNil(t *testing.T) {
	bus := NewBus()
	var published int
	bus.Subscribe("topic", func(Event) { published++ })

	batch, flush := Ensure(bus, nil)
	require.NotNil(t, batch)
	batch.Add("topic", &struct{}{}, nil)
	flush()

	assert.Equal(t, 1, published)
}

func TestTopicJoinsParts(t *testing.T) {
	assert.Equal(t, "object.subject", Topic("object", "subject"))
	assert.Equal(t, "single", Topic("single"))
}
