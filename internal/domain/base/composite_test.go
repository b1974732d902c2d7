package base

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpeeters/tasknest/internal/event"
)

type testComposite struct {
	CompositeObject
}

func newTestComposite(bus *event.Bus, subject string) *testComposite {
	c := &testComposite{}
	c.CompositeObject = NewCompositeObject(bus, c)
	c.SetSubject(subject, nil)
	return c
}

func TestAddChildLinksBothSides(t *testing.T) {
	bus := event.NewBus()
	parent := newTestComposite(bus, "parent")
	child := newTestComposite(bus, "child")

	require.NoError(t, parent.AddChild(child, nil))

	assert.Same(t, parent, child.Parent())
	require.Len(t, parent.Children(false), 1)
	assert.Same(t, child, parent.Children(false)[0])

	// Adding twice is a no-op.
	require.NoError(t, parent.AddChild(child, nil))
	assert.Len(t, parent.Children(false), 1)
}

func TestAddChildRefusesCycle(t *testing.T) {
	bus := event.NewBus()
	a := newTestComposite(bus, "a")
	b := newTestComposite(bus, "b")
	c := newTestComposite(bus, "c")
	require.NoError(t, a.AddChild(b, nil))
	require.NoError(t, b.AddChild(c, nil))

	assert.ErrorIs(t, c.AddChild(a, nil), ErrWouldCycle)
	assert.ErrorIs(t, a.AddChild(a, nil), ErrWouldCycle)
}

func TestRemoveChildUnlinks(t *testing.T) {
	bus := event.NewBus()
	parent := newTestComposite(bus, "parent")
	child := newTestComposite(bus, "child")
	require.NoError(t, parent.AddChild(child, nil))

	parent.RemoveChild(child, nil)

	assert.Nil(t, child.Parent())
	assert.Empty(t, parent.Children(false))

	// Removing an unknown child is ignored.
	parent.RemoveChild(child, nil)
}

func TestChildrenRecursiveIsDepthFirst(t *testing.T) {
	bus := event.NewBus()
	root := newTestComposite(bus, "root")
	a := newTestComposite(bus, "a")
	aa := newTestComposite(bus, "aa")
	b := newTestComposite(bus, "b")
	require.NoError(t, root.AddChild(a, nil))
	require.NoError(t, a.AddChild(aa, nil))
	require.NoError(t, root.AddChild(b, nil))

	children := root.Children(true)
	require.Len(t, children, 3)
	assert.Same(t, a, children[0])
	assert.Same(t, aa, children[1])
	assert.Same(t, b, children[2])
}

func TestRecursiveSubjectPrependsAncestors(t *testing.T) {
	bus := event.NewBus()
	grandparent := newTestComposite(bus, "home")
	parent := newTestComposite(bus, "garden")
	child := newTestComposite(bus, "mow lawn")
	require.NoError(t, grandparent.AddChild(parent, nil))
	require.NoError(t, parent.AddChild(child, nil))

	assert.Equal(t, "mow lawn", child.Subject(false))
	assert.Equal(t, "home -> garden -> mow lawn", child.Subject(true))
}

func TestSubjectChangeNotifiesChildren(t *testing.T) {
	bus := event.NewBus()
	parent := newTestComposite(bus, "parent")
	child := newTestComposite(bus, "child")
	require.NoError(t, parent.AddChild(child, nil))
	events := recordEvents(bus, TopicSubject)

	parent.SetSubject("renamed", nil)

	require.Len(t, *events, 1)
	assert.True(t, (*events)[0].HasSource(parent))
	assert.True(t, (*events)[0].HasSource(child), "child display subject changed too")
}

func TestAppearanceFallsBackToAncestors(t *testing.T) {
	bus := event.NewBus()
	parent := newTestComposite(bus, "parent")
	child := newTestComposite(bus, "child")
	require.NoError(t, parent.AddChild(child, nil))

	parent.SetForegroundColor("blue", nil)

	assert.Equal(t, "", child.ForegroundColor(false))
	assert.Equal(t, "blue", child.ForegroundColor(true))

	child.SetForegroundColor("green", nil)
	assert.Equal(t, "green", child.ForegroundColor(true), "own value wins")
}

func TestMarkDeletedCascadesInOneEvent(t *testing.T) {
	bus := event.NewBus()
	parent := newTestComposite(bus, "parent")
	child := newTestComposite(bus, "child")
	grandchild := newTestComposite(bus, "grandchild")
	require.NoError(t, parent.AddChild(child, nil))
	require.NoError(t, child.AddChild(grandchild, nil))
	events := recordEvents(bus, TopicMarkDeleted)

	parent.MarkDeleted(nil)

	assert.True(t, parent.IsDeleted())
	assert.True(t, child.IsDeleted())
	assert.True(t, grandchild.IsDeleted())
	require.Len(t, *events, 1, "whole cascade is one notification")
	assert.True(t, (*events)[0].HasSource(parent))
	assert.True(t, (*events)[0].HasSource(child))
	assert.True(t, (*events)[0].HasSource(grandchild))
}

func TestCleanDirtyCascades(t *testing.T) {
	bus := event.NewBus()
	parent := newTestComposite(bus, "parent")
	child := newTestComposite(bus, "child")
	require.NoError(t, parent.AddChild(child, nil))

	parent.CleanDirty(nil)

	assert.Equal(t, StatusNone, parent.Status())
	assert.Equal(t, StatusNone, child.Status())
}

func TestExpandPerContext(t *testing.T) {
	bus := event.NewBus()
	c := newTestComposite(bus, "c")
	events := recordEvents(bus, TopicExpansion)

	c.Expand(true, "tree", nil)
	assert.True(t, c.IsExpanded("tree"))
	assert.False(t, c.IsExpanded("list"))
	assert.Len(t, *events, 1)

	// Expanding an expanded context publishes nothing.
	c.Expand(true, "tree", nil)
	assert.Len(t, *events, 1)

	c.Expand(false, "tree", nil)
	assert.False(t, c.IsExpanded("tree"))
	assert.Len(t, *events, 2)
}

func TestHasLiveChildrenIgnoresDeleted(t *testing.T) {
	bus := event.NewBus()
	parent := newTestComposite(bus, "parent")
	child := newTestComposite(bus, "child")
	require.NoError(t, parent.AddChild(child, nil))

	assert.True(t, parent.HasLiveChildren())
	child.MarkDeleted(nil)
	assert.False(t, parent.HasLiveChildren())
}
