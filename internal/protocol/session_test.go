package protocol

import (
	"bytes"
	"crypto/sha1"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpeeters/tasknest/internal/domain/date"
	"github.com/mpeeters/tasknest/internal/domain/task"
	"github.com/mpeeters/tasknest/internal/event"
)

// deviceConn plays the device side of a session: it reads what the
// session wrote into the buffer and feeds replies through Receive.
type deviceConn struct {
	t      *testing.T
	s      *Session
	out    *bytes.Buffer
	secret string
}

func newDevice(t *testing.T, doc *task.Document, cfg Config) *deviceConn {
	t.Helper()
	out := &bytes.Buffer{}
	s, err := NewSession(out, doc, cfg)
	require.NoError(t, err)
	return &deviceConn{t: t, s: s, out: out, secret: cfg.Secret}
}

func (d *deviceConn) read(format string) any {
	d.t.Helper()
	item := MustParse(format)
	item.Start()
	for {
		n, ok := item.Expect()
		if !ok {
			break
		}
		chunk := d.out.Next(n)
		require.Len(d.t, chunk, n, "session wrote fewer bytes than the device expects")
		require.NoError(d.t, item.Feed(chunk))
	}
	return item.Value()
}

func (d *deviceConn) readRaw(n int) []byte {
	d.t.Helper()
	chunk := d.out.Next(n)
	require.Len(d.t, chunk, n)
	return append([]byte(nil), chunk...)
}

func (d *deviceConn) send(format string, values ...any) {
	d.t.Helper()
	var buf bytes.Buffer
	require.NoError(d.t, MustParse(format).Pack(&buf, values...))
	require.NoError(d.t, d.s.Receive(buf.Bytes()))
}

func (d *deviceConn) authenticate() {
	d.t.Helper()
	challenge := d.readRaw(challengeSize)
	digest := sha1.Sum(append(append([]byte(nil), challenge...), []byte(d.secret)...))
	d.send("20b", digest[:])
	require.Equal(d.t, 1, d.read("i"), "authentication accepted")
}

// handshakeV5 accepts the announced version, authenticates and walks the
// preamble up to the point where the device reports its change counts.
func (d *deviceConn) handshakeV5(name string) {
	d.t.Helper()
	require.Equal(d.t, Version, d.read("i"))
	d.send("i", 1)
	d.authenticate()
	d.send("s", name)
	assert.NotEmpty(d.t, d.read("s"), "document GUID")
	d.send("i", 1)
	d.read("z") // task file name
	d.send("i", 1)
	d.read("ii") // working day hours
	d.send("i", 1)
}

func TestSessionAnnouncesHighestVersion(t *testing.T) {
	doc := task.NewDocument(event.NewBus())
	d := newDevice(t, doc, Config{Secret: "sesame"})

	assert.Equal(t, Version, d.read("i"))
	assert.False(t, d.s.Done())
}

func TestVersionNegotiationWalksDownward(t *testing.T) {
	doc := task.NewDocument(event.NewBus())
	d := newDevice(t, doc, Config{Secret: "sesame"})

	require.Equal(t, 5, d.read("i"))
	d.send("i", 0)
	require.Equal(t, 4, d.read("i"))
	d.send("i", 0)
	require.Equal(t, 3, d.read("i"))
	d.send("i", 1)

	// Acceptance moves straight to the password challenge.
	challenge := d.readRaw(challengeSize)
	assert.Len(t, challenge, challengeSize)
}

func TestVersionNegotiationExhausted(t *testing.T) {
	doc := task.NewDocument(event.NewBus())
	d := newDevice(t, doc, Config{Secret: "sesame"})

	for version := 5; version >= 1; version-- {
		require.Equal(t, version, d.read("i"))
		d.send("i", 0)
	}

	// Nothing lower to offer; the session idles until the device hangs up.
	assert.Zero(t, d.out.Len())
	assert.False(t, d.s.Done())
}

func TestAuthenticationRetriesOnBadDigest(t *testing.T) {
	doc := task.NewDocument(event.NewBus())
	d := newDevice(t, doc, Config{Secret: "sesame"})

	require.Equal(t, 5, d.read("i"))
	d.send("i", 1)

	d.readRaw(challengeSize)
	bogus := make([]byte, 20)
	d.send("20b", bogus)
	require.Equal(t, 0, d.read("i"), "bad digest is rejected")

	// A fresh challenge follows instead of a dropped connection.
	challenge := d.readRaw(challengeSize)
	digest := sha1.Sum(append(append([]byte(nil), challenge...), []byte("sesame")...))

	// Feed the reply in two chunks; Receive buffers partial packets.
	var buf bytes.Buffer
	require.NoError(t, MustParse("20b").Pack(&buf, digest[:]))
	raw := buf.Bytes()
	require.NoError(t, d.s.Receive(raw[:7]))
	require.Zero(t, d.out.Len(), "no reply on a partial digest")
	require.NoError(t, d.s.Receive(raw[7:]))

	assert.Equal(t, 1, d.read("i"))
}

func TestTwoWaySyncAppliesDeviceChanges(t *testing.T) {
	doc := task.NewDocument(event.NewBus())
	cfg := Config{Secret: "sesame", DayStartHour: 8, DayEndHour: 18, TaskFileName: "tasks.tsk"}
	d := newDevice(t, doc, cfg)
	d.handshakeV5("iPhone")
	assert.Equal(t, "iPhone", d.s.DeviceName())

	// One new category, one new task, one deletion of a task the desktop
	// never had.
	d.send("iiiiiiiii", 1, 1, 1, 0, 0, 0, 0, 0, 0)

	d.send("sz", "Errands", nil)
	catID := d.read("s").(string)
	require.NotEmpty(t, catID)

	due := time.Date(2026, time.September, 1, 18, 0, 0, 0, time.Local)
	d.send("ssffffiiiiiz[s]",
		"Buy milk", "semi-skimmed",
		time.Time{}, due, time.Time{}, time.Time{},
		1, 0, 0, 0, 0,
		nil, []string{catID})
	taskID := d.read("s").(string)
	require.NotEmpty(t, taskID)

	d.send("s", "never-heard-of-it")
	assert.Equal(t, "", d.read("s"), "unknown deletions acknowledge empty")

	// The desktop pushes its state back: the category and task that just
	// arrived, no efforts.
	counts := d.read("iii").([]any)
	require.Equal(t, []any{1, 1, 0}, counts)

	catRow := d.read("ssz").([]any)
	assert.Equal(t, "Errands", catRow[0])
	assert.Equal(t, catID, catRow[1])
	assert.Nil(t, catRow[2])
	d.send("i", 1)

	taskRow := d.read("sssffffziiiii[s]").([]any)
	assert.Equal(t, "Buy milk", taskRow[0])
	assert.Equal(t, taskID, taskRow[1])
	assert.Equal(t, "semi-skimmed", taskRow[2])
	assert.Equal(t, due, taskRow[4])
	assert.Equal(t, 1, taskRow[8], "priority")
	assert.Equal(t, []any{catID}, taskRow[13])
	d.send("i", 1)

	require.True(t, d.s.Done())

	created := doc.Tasks.ByID(taskID)
	require.NotNil(t, created)
	assert.Equal(t, "Buy milk", created.Subject(false))
	assert.Equal(t, due, created.DueDateTime())
	cat := doc.Categories.ByID(catID)
	require.NotNil(t, cat)
	assert.True(t, created.HasCategory(cat))
	assert.True(t, cat.HasCategorizable(created))

	// The sync committed; losing the connection now changes nothing.
	d.s.HandleClose()
	assert.NotNil(t, doc.Tasks.ByID(taskID))
}

func TestTwoWaySyncPushesRecurrenceAndEfforts(t *testing.T) {
	bus := event.NewBus()
	doc := task.NewDocument(bus)
	chores := task.NewTask(bus, "chores")
	chores.SetPriority(3, nil)
	chores.SetRecurrence(date.NewRecurrence(date.UnitWeekly, 1), nil)
	doc.Tasks.Add(nil, chores)
	start := time.Date(2026, time.August, 20, 9, 0, 0, 0, time.Local)
	stop := start.Add(time.Hour)
	effort := task.NewEffort(bus, chores, start, stop)
	doc.Efforts.Add(nil, effort)

	d := newDevice(t, doc, Config{Secret: "sesame", SyncCompleted: true})
	d.handshakeV5("iPhone")
	d.send("iiiiiiiii", 0, 0, 0, 0, 0, 0, 0, 0, 0)

	require.Equal(t, []any{0, 1, 1}, d.read("iii").([]any))

	taskRow := d.read("sssffffziiiii[s]").([]any)
	assert.Equal(t, "chores", taskRow[0])
	assert.Equal(t, 3, taskRow[8])
	assert.Equal(t, 1, taskRow[9], "has recurrence")
	assert.Equal(t, 1, taskRow[10], "weekly period")
	d.send("i", 1)

	effortRow := d.read("ssztt").([]any)
	assert.Equal(t, effort.ID(), effortRow[0])
	assert.Equal(t, chores.ID(), effortRow[2])
	assert.Equal(t, start, effortRow[3])
	assert.Equal(t, stop, effortRow[4])
	d.send("i", 1)

	assert.True(t, d.s.Done())
}

func TestFullFromDeviceReplacesDocument(t *testing.T) {
	bus := event.NewBus()
	doc := task.NewDocument(bus)
	old := task.NewTask(bus, "stale")
	doc.Tasks.Add(nil, old)

	cfg := Config{
		Secret:         "sesame",
		ChooseSyncType: func(string) SyncType { return SyncFullFromDevice },
	}
	d := newDevice(t, doc, cfg)

	// Negotiate down to version 3.
	require.Equal(t, 5, d.read("i"))
	d.send("i", 0)
	require.Equal(t, 4, d.read("i"))
	d.send("i", 0)
	require.Equal(t, 3, d.read("i"))
	d.send("i", 1)
	d.authenticate()
	d.send("s", "old iPhone")

	// Pre-v4 devices announce their stored GUID and get the direction.
	d.send("z", nil)
	require.Equal(t, int(SyncFullFromDevice), d.read("i"))

	d.send("ii", 1, 1)
	d.send("sz", "Inbox", nil)
	catID := d.read("s").(string)

	d.send("ssddd[s]",
		"Call dentist", "",
		time.Time{}, time.Time{}, time.Time{},
		[]string{catID})
	taskID := d.read("s").(string)

	// GUID handoff commits the sync.
	assert.NotEmpty(t, d.read("s"))
	d.send("i", 1)
	require.True(t, d.s.Done())

	assert.Nil(t, doc.Tasks.ByID(old.ID()), "previous contents are replaced")
	created := doc.Tasks.ByID(taskID)
	require.NotNil(t, created)
	assert.Equal(t, "Call dentist", created.Subject(false))
	cat := doc.Categories.ByID(catID)
	require.NotNil(t, cat)
	assert.True(t, created.HasCategory(cat))
}

func TestInterruptedSessionRollsBack(t *testing.T) {
	bus := event.NewBus()
	doc := task.NewDocument(bus)
	keep := task.NewTask(bus, "keep")
	doc.Tasks.Add(nil, keep)

	d := newDevice(t, doc, Config{Secret: "sesame"})
	d.handshakeV5("iPhone")

	d.send("iiiiiiiii", 0, 1, 0, 0, 0, 0, 0, 0, 0)
	d.send("ssffffiiiiiz[s]",
		"intruder", "",
		time.Time{}, time.Time{}, time.Time{}, time.Time{},
		0, 0, 0, 0, 0,
		nil, []string{})
	intruderID := d.read("s").(string)
	require.NotNil(t, doc.Tasks.ByID(intruderID))

	// The connection drops before the exchange commits.
	d.s.HandleClose()

	assert.Nil(t, doc.Tasks.ByID(intruderID))
	require.NotNil(t, doc.Tasks.ByID(keep.ID()))
	assert.Equal(t, "keep", doc.Tasks.ByID(keep.ID()).Subject(false))
}
