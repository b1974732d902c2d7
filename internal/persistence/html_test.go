package persistence

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpeeters/tasknest/internal/domain/task"
	"github.com/mpeeters/tasknest/internal/event"
)

func TestHTMLExport(t *testing.T) {
	bus := event.NewBus()
	doc := task.NewDocument(bus)
	pending := task.NewTask(bus, "pending <task>")
	done := task.NewTask(bus, "done")
	done.SetCompletionDateTime(time.Date(2026, time.August, 10, 12, 0, 0, 0, time.Local), nil)
	doc.Tasks.Add(nil, pending, done)

	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, doc, "My tasks"))
	out := buf.String()

	assert.Contains(t, out, "<title>My tasks</title>")
	assert.Contains(t, out, "pending &lt;task&gt;", "subjects are escaped")
	assert.Contains(t, out, `class="completed"`)
	assert.Contains(t, out, "2026-08-10")
}

func TestHTMLExportDefaultTitle(t *testing.T) {
	doc := task.NewDocument(event.NewBus())
	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, doc, ""))
	assert.Contains(t, buf.String(), "<title>Tasks</title>")
}
