package protocol

import (
	"bytes"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"fmt"
	"io"
	"time"

	"github.com/golang/glog"

	"github.com/mpeeters/tasknest/internal/domain/category"
	"github.com/mpeeters/tasknest/internal/domain/date"
	"github.com/mpeeters/tasknest/internal/domain/task"
	"github.com/mpeeters/tasknest/internal/event"
)

// Version is the highest protocol version this side speaks. Negotiation
// walks downward from it until the device accepts.
const Version = 5

// challengeSize is the number of random bytes hashed with the shared
// secret during authentication.
const challengeSize = 512

// SyncType is the direction of a synchronization session.
type SyncType int

const (
	// SyncTwoWay merges changes from both sides.
	SyncTwoWay SyncType = iota
	// SyncFullFromDesktop replaces the device contents with ours.
	SyncFullFromDesktop
	// SyncFullFromDevice replaces our contents with the device's.
	SyncFullFromDevice
)

// Config carries the settings a session needs. The zero value is usable
// for tests; a real server fills it from the settings store.
type Config struct {
	// Secret is the shared sync password.
	Secret string

	// SyncCompleted includes completed tasks in the exchange.
	SyncCompleted bool

	// DayStartHour and DayEndHour anchor date-only values received from
	// old protocol versions to working hours.
	DayStartHour int
	DayEndHour   int

	// TaskFileName is the bare name of the synchronized file, "" when
	// the document was never saved.
	TaskFileName string

	// ChooseSyncType decides the direction for a pre-v4 device
	// announcing deviceGUID ("" on first sync). Nil selects two-way for
	// a matching GUID and full-from-desktop otherwise.
	ChooseSyncType func(deviceGUID string) SyncType
}

// Session is one device synchronization conversation. It consumes bytes
// through Receive and writes responses directly; the caller owns the
// socket and must serialize Receive with all other document access.
//
// A snapshot of the document is taken at session start. Until the
// exchange reaches its commit point, any connection loss rolls the
// document back to it.
type Session struct {
	w   io.Writer
	doc *task.Document
	cfg Config

	version int

	buffer []byte
	item   Item
	count  int

	// onValue and onFinished belong to the current state; entering a
	// state through expect replaces them.
	onValue    func(value any) error
	onFinished func() error

	snapshot        *task.Snapshot
	rollbackOnClose bool
	done            bool

	deviceName string
	challenge  []byte

	newCategoriesCount      int
	newTasksCount           int
	deletedTasksCount       int
	modifiedTasksCount      int
	deletedCategoriesCount  int
	modifiedCategoriesCount int
	newEffortsCount         int
	modifiedEffortsCount    int
	deletedEffortsCount     int

	categoryMap map[string]*category.Category
	taskMap     map[string]*task.Task
	effortMap   map[string]*task.Effort

	sendCategories []*category.Category
	sendTasks      []*task.Task
	sendEfforts    []*task.Effort
	sendTotal      int
	sendCount      int
}

// NewSession starts a session on w for doc. The protocol version
// announcement is written immediately.
func NewSession(w io.Writer, doc *task.Document, cfg Config) (*Session, error) {
	s := &Session{
		w:               w,
		doc:             doc,
		cfg:             cfg,
		rollbackOnClose: true,
	}
	s.snapshot = task.TakeSnapshot(doc)
	if err := s.enterInitial(Version); err != nil {
		return nil, err
	}
	return s, nil
}

// DeviceName returns the name the device announced, "" before it did.
func (s *Session) DeviceName() string { return s.deviceName }

// Done reports whether the exchange finished and the connection should be
// closed.
func (s *Session) Done() bool { return s.done }

// HandleClose reacts to the connection going away. Unless the session
// passed its commit point, the document is rolled back to the snapshot
// taken at session start.
func (s *Session) HandleClose() {
	if s.rollbackOnClose {
		glog.Warningf("sync: session with %q interrupted, rolling back", s.deviceName)
		s.snapshot.RestoreInto(s.doc)
	}
}

// Receive feeds bytes from the connection into the state machine.
func (s *Session) Receive(data []byte) error {
	s.buffer = append(s.buffer, data...)
	for s.item != nil {
		n, ok := s.item.Expect()
		if !ok {
			return fmt.Errorf("protocol: item complete but not consumed")
		}
		if len(s.buffer) < n {
			return nil
		}
		chunk := s.buffer[:n]
		s.buffer = append([]byte(nil), s.buffer[n:]...)
		if err := s.item.Feed(chunk); err != nil {
			return err
		}
		if _, more := s.item.Expect(); more {
			continue
		}
		value := s.item.Value()
		s.count--
		if s.count > 0 {
			s.item.Start()
		}
		if err := s.onValue(value); err != nil {
			return err
		}
		// The handler may have moved to another state; s.count is then
		// the new state's and the old finisher must not run.
		if s.count == 0 && s.onFinished != nil {
			finished := s.onFinished
			s.onFinished = nil
			if err := finished(); err != nil {
				return err
			}
		}
	}
	return nil
}

// expect arms the state machine for count values of the given format.
// With count zero the finisher runs immediately, mirroring an exchange
// the device announced as empty.
func (s *Session) expect(format string, count int, onValue func(any) error, onFinished func() error) error {
	if count == 0 {
		s.item = nil
		s.onValue = nil
		s.onFinished = nil
		if onFinished != nil {
			return onFinished()
		}
		return nil
	}
	s.item = MustParse(format)
	s.item.Start()
	s.count = count
	s.onValue = onValue
	s.onFinished = onFinished
	return nil
}

func (s *Session) send(format string, values ...any) error {
	var buf bytes.Buffer
	if err := MustParse(format).Pack(&buf, values...); err != nil {
		return err
	}
	if _, err := s.w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("writing to device: %w", err)
	}
	return nil
}

func (s *Session) finishClean() error {
	glog.V(1).Infof("sync: finished with %q (version %d)", s.deviceName, s.version)
	s.rollbackOnClose = false
	s.done = true
	s.item = nil
	return nil
}

// Version negotiation. The device echoes 1 for a version it accepts and
// 0 otherwise; each rejection retries one version lower.

func (s *Session) enterInitial(version int) error {
	s.version = version
	if err := s.expect("i", 1, s.onVersionReply, nil); err != nil {
		return err
	}
	return s.send("i", version)
}

func (s *Session) onVersionReply(value any) error {
	if asInt(value) != 0 {
		glog.V(1).Infof("sync: negotiated protocol version %d", s.version)
		return s.enterPassword()
	}
	if s.version == 1 {
		// Nothing lower to offer. The device closes the connection.
		glog.Warning("sync: device rejected every protocol version")
		s.item = nil
		return nil
	}
	glog.V(1).Infof("sync: version %d rejected, offering %d", s.version, s.version-1)
	return s.enterInitial(s.version - 1)
}

// Authentication: a challenge of random bytes goes out, the SHA-1 digest
// of challenge plus shared secret comes back. A mismatch re-issues a
// fresh challenge rather than dropping the connection.

func (s *Session) enterPassword() error {
	s.challenge = make([]byte, challengeSize)
	if _, err := rand.Read(s.challenge); err != nil {
		return fmt.Errorf("generating challenge: %w", err)
	}
	if err := s.expect("20b", 1, s.onPasswordDigest, nil); err != nil {
		return err
	}
	if _, err := s.w.Write(s.challenge); err != nil {
		return fmt.Errorf("writing to device: %w", err)
	}
	return nil
}

func (s *Session) onPasswordDigest(value any) error {
	digest := sha1.Sum(append(append([]byte(nil), s.challenge...), []byte(s.cfg.Secret)...))
	if subtle.ConstantTimeCompare(digest[:], value.([]byte)) == 1 {
		glog.V(1).Info("sync: device authenticated")
		if err := s.send("i", 1); err != nil {
			return err
		}
		return s.enterDeviceName()
	}
	glog.Warning("sync: authentication failed, re-issuing challenge")
	if err := s.send("i", 0); err != nil {
		return err
	}
	return s.enterPassword()
}

func (s *Session) enterDeviceName() error {
	return s.expect("s", 1, func(value any) error {
		s.deviceName = value.(string)
		glog.V(1).Infof("sync: device name %q", s.deviceName)
		return s.enterGUID()
	}, nil)
}

// GUID exchange. From version 4 on, the desktop sends its GUID and the
// direction is always two-way followed by a full push. Older versions
// send their stored GUID (empty on first sync) and receive the chosen
// direction.

func (s *Session) enterGUID() error {
	if s.version >= 4 {
		if err := s.expect("i", 1, func(any) error {
			return s.enterTaskFileName()
		}, nil); err != nil {
			return err
		}
		return s.send("s", s.doc.GUID())
	}
	return s.expect("z", 1, s.onDeviceGUID, nil)
}

func (s *Session) onDeviceGUID(value any) error {
	deviceGUID := optString(value)
	syncType := s.chooseSyncType(deviceGUID)
	glog.V(1).Infof("sync: device GUID %q, direction %d", deviceGUID, syncType)
	if err := s.send("i", int(syncType)); err != nil {
		return err
	}
	switch syncType {
	case SyncTwoWay:
		return s.enterTwoWay()
	case SyncFullFromDesktop:
		return s.enterFullFromDesktop()
	case SyncFullFromDevice:
		return s.enterFullFromDevice()
	}
	// The device cancels by closing the connection.
	s.item = nil
	return nil
}

func (s *Session) chooseSyncType(deviceGUID string) SyncType {
	if s.cfg.ChooseSyncType != nil {
		return s.cfg.ChooseSyncType(deviceGUID)
	}
	if deviceGUID == s.doc.GUID() {
		return SyncTwoWay
	}
	return SyncFullFromDesktop
}

func (s *Session) enterTaskFileName() error {
	if err := s.expect("i", 1, func(any) error {
		if s.version < 5 {
			return s.enterTwoWay()
		}
		return s.enterDayHours()
	}, nil); err != nil {
		return err
	}
	var name any
	if s.cfg.TaskFileName != "" {
		name = s.cfg.TaskFileName
	}
	return s.send("z", name)
}

func (s *Session) enterDayHours() error {
	if err := s.expect("i", 1, func(any) error {
		return s.enterTwoWay()
	}, nil); err != nil {
		return err
	}
	return s.send("ii", s.cfg.DayStartHour, s.cfg.DayEndHour)
}

// Two-way synchronization: the device announces how many objects of each
// kind it changed, then streams them kind by kind. From version 5 on,
// each object is acknowledged with its desktop id, or an empty string
// when the desktop no longer knows it.

func (s *Session) enterTwoWay() error {
	s.categoryMap = make(map[string]*category.Category)
	for _, c := range s.doc.Categories.All() {
		s.categoryMap[c.ID()] = c
	}
	s.taskMap = make(map[string]*task.Task)
	for _, t := range s.doc.Tasks.All() {
		s.taskMap[t.ID()] = t
	}
	s.effortMap = make(map[string]*task.Effort)
	for _, e := range s.doc.Efforts.All() {
		s.effortMap[e.ID()] = e
	}

	format := "iiiiiiiii"
	if s.version < 3 {
		format = "iiii"
	} else if s.version < 4 {
		format = "iiiiii"
	}
	return s.expect(format, 1, s.onTwoWayCounts, nil)
}

func (s *Session) onTwoWayCounts(value any) error {
	counts := value.([]any)
	s.newCategoriesCount = asInt(counts[0])
	s.newTasksCount = asInt(counts[1])
	s.deletedTasksCount = asInt(counts[2])
	s.modifiedTasksCount = asInt(counts[3])
	if s.version >= 3 {
		s.deletedCategoriesCount = asInt(counts[4])
		s.modifiedCategoriesCount = asInt(counts[5])
	}
	if s.version >= 4 {
		s.newEffortsCount = asInt(counts[6])
		s.modifiedEffortsCount = asInt(counts[7])
		s.deletedEffortsCount = asInt(counts[8])
	}
	glog.V(1).Infof("sync: device reports %d/%d/%d new/deleted/modified tasks, %d/%d/%d categories, %d/%d/%d efforts",
		s.newTasksCount, s.deletedTasksCount, s.modifiedTasksCount,
		s.newCategoriesCount, s.deletedCategoriesCount, s.modifiedCategoriesCount,
		s.newEffortsCount, s.deletedEffortsCount, s.modifiedEffortsCount)
	return s.enterTwoWayNewCategories()
}

func (s *Session) enterTwoWayNewCategories() error {
	format := "sz"
	if s.version < 3 {
		format = "s"
	}
	return s.expect(format, s.newCategoriesCount, s.onNewCategory, func() error {
		if s.version < 3 {
			return s.enterTwoWayNewTasks()
		}
		return s.enterTwoWayDeletedCategories()
	})
}

func (s *Session) onNewCategory(value any) error {
	var name, parentID string
	if s.version < 3 {
		name = value.(string)
	} else {
		args := value.([]any)
		name = args[0].(string)
		parentID = optString(args[1])
	}
	batch := event.NewBatch(s.doc.Bus())
	var c *category.Category
	if parent := s.categoryMap[parentID]; parent != nil {
		c = parent.NewChild(name, batch)
	} else {
		c = category.New(s.doc.Bus(), name)
	}
	s.doc.Categories.Add(batch, c)
	batch.Flush()
	s.categoryMap[c.ID()] = c
	glog.V(2).Infof("sync: new category %s", c.ID())
	return s.send("s", c.ID())
}

func (s *Session) enterTwoWayDeletedCategories() error {
	return s.expect("s", s.deletedCategoriesCount, s.onDeletedCategory, func() error {
		return s.enterTwoWayModifiedCategories()
	})
}

func (s *Session) onDeletedCategory(value any) error {
	id := value.(string)
	c, ok := s.categoryMap[id]
	if !ok {
		// Already deleted on the desktop.
		if s.version >= 5 {
			return s.send("s", "")
		}
		return nil
	}
	delete(s.categoryMap, id)
	batch := event.NewBatch(s.doc.Bus())
	c.MarkDeleted(batch)
	s.doc.Categories.Remove(batch, c)
	batch.Flush()
	glog.V(2).Infof("sync: deleted category %s", id)
	if s.version >= 5 {
		return s.send("s", id)
	}
	return nil
}

func (s *Session) enterTwoWayModifiedCategories() error {
	return s.expect("ss", s.modifiedCategoriesCount, s.onModifiedCategory, func() error {
		return s.enterTwoWayNewTasks()
	})
}

func (s *Session) onModifiedCategory(value any) error {
	args := value.([]any)
	name := args[0].(string)
	id := args[1].(string)
	c, ok := s.categoryMap[id]
	if !ok {
		if s.version >= 5 {
			return s.send("s", "")
		}
		return nil
	}
	batch := event.NewBatch(s.doc.Bus())
	c.SetSubject(name, batch)
	batch.Flush()
	glog.V(2).Infof("sync: modified category %s", id)
	if s.version >= 5 {
		return s.send("s", id)
	}
	return nil
}

func (s *Session) enterTwoWayNewTasks() error {
	format := "ssffffiiiiiz[s]"
	if s.version < 4 {
		format = "ssddd[s]"
	} else if s.version < 5 {
		format = "ssddfz[s]"
	}
	return s.expect(format, s.newTasksCount, s.onNewTask, func() error {
		return s.enterTwoWayDeletedTasks()
	})
}

func (s *Session) onNewTask(value any) error {
	args := value.([]any)
	subject := args[0].(string)
	description := args[1].(string)

	batch := event.NewBatch(s.doc.Bus())
	t := task.NewTask(s.doc.Bus(), subject)
	t.SetDescription(description, batch)

	var categoryIDs []string
	switch {
	case s.version < 4:
		t.SetPlannedStartDateTime(s.anchorDate(asTime(args[2]), s.cfg.DayStartHour), batch)
		t.SetDueDateTime(s.anchorDate(asTime(args[3]), s.cfg.DayEndHour), batch)
		t.SetCompletionDateTime(s.anchorDate(asTime(args[4]), 0), batch)
		categoryIDs = asStrings(args[5])
	case s.version < 5:
		t.SetPlannedStartDateTime(s.anchorDate(asTime(args[2]), s.cfg.DayStartHour), batch)
		t.SetDueDateTime(s.anchorDate(asTime(args[3]), s.cfg.DayEndHour), batch)
		t.SetCompletionDateTime(asTime(args[4]), batch)
		if parent := s.taskMap[optString(args[5])]; parent != nil {
			_ = parent.AddChild(t, batch)
		}
		categoryIDs = asStrings(args[6])
	default:
		t.SetPlannedStartDateTime(asTime(args[2]), batch)
		t.SetDueDateTime(asTime(args[3]), batch)
		t.SetCompletionDateTime(asTime(args[4]), batch)
		t.SetReminder(asTime(args[5]), batch)
		t.SetPriority(asInt(args[6]), batch)
		if recurrence := decodeRecurrence(args[7:11]); recurrence != nil {
			t.SetRecurrence(recurrence, batch)
		}
		if parent := s.taskMap[optString(args[11])]; parent != nil {
			_ = parent.AddChild(t, batch)
		}
		categoryIDs = asStrings(args[12])
	}

	for _, id := range categoryIDs {
		if c := s.categoryMap[id]; c != nil {
			c.AddCategorizable(batch, t)
			t.AddCategory(batch, c)
		}
	}
	s.doc.Tasks.Add(batch, t)
	batch.Flush()
	s.taskMap[t.ID()] = t
	glog.V(2).Infof("sync: new task %s", t.ID())
	return s.send("s", t.ID())
}

func (s *Session) enterTwoWayDeletedTasks() error {
	return s.expect("s", s.deletedTasksCount, s.onDeletedTask, func() error {
		return s.enterTwoWayModifiedTasks()
	})
}

func (s *Session) onDeletedTask(value any) error {
	id := value.(string)
	t, ok := s.taskMap[id]
	if !ok {
		if s.version >= 5 {
			return s.send("s", "")
		}
		return nil
	}
	delete(s.taskMap, id)
	batch := event.NewBatch(s.doc.Bus())
	t.MarkDeleted(batch)
	s.doc.Tasks.Remove(batch, t)
	batch.Flush()
	glog.V(2).Infof("sync: deleted task %s", id)
	if s.version >= 5 {
		return s.send("s", id)
	}
	return nil
}

func (s *Session) enterTwoWayModifiedTasks() error {
	format := "sssffffiiiii[s]"
	if s.version < 2 {
		format = "sssddd"
	} else if s.version < 5 {
		format = "sssddd[s]"
	}
	return s.expect(format, s.modifiedTasksCount, s.onModifiedTask, func() error {
		glog.V(1).Info("sync: end of incoming changes")
		if s.version < 4 {
			return s.enterFullFromDesktop()
		}
		return s.enterTwoWayNewEfforts()
	})
}

func (s *Session) onModifiedTask(value any) error {
	args := value.([]any)
	subject := args[0].(string)
	id := args[1].(string)
	description := args[2].(string)

	t, ok := s.taskMap[id]
	if !ok {
		if s.version >= 5 {
			return s.send("s", "")
		}
		return nil
	}

	batch := event.NewBatch(s.doc.Bus())
	t.SetSubject(subject, batch)
	t.SetDescription(description, batch)
	if s.version < 5 {
		t.SetPlannedStartDateTime(s.anchorDate(asTime(args[3]), s.cfg.DayStartHour), batch)
		t.SetDueDateTime(s.anchorDate(asTime(args[4]), s.cfg.DayEndHour), batch)
		t.SetCompletionDateTime(s.anchorDate(asTime(args[5]), 0), batch)
		if s.version >= 2 {
			s.setCategories(t, asStrings(args[6]), batch)
		}
	} else {
		t.SetPlannedStartDateTime(asTime(args[3]), batch)
		t.SetDueDateTime(asTime(args[4]), batch)
		t.SetCompletionDateTime(asTime(args[5]), batch)
		t.SetReminder(asTime(args[6]), batch)
		t.SetPriority(asInt(args[7]), batch)
		t.SetRecurrence(decodeRecurrence(args[8:12]), batch)
		s.setCategories(t, asStrings(args[12]), batch)
	}
	batch.Flush()
	glog.V(2).Infof("sync: modified task %s", id)
	if s.version >= 5 {
		return s.send("s", id)
	}
	return nil
}

// setCategories reconciles t's membership with the ids the device sent,
// keeping both sides of the relation consistent. Unknown ids are dropped.
func (s *Session) setCategories(t *task.Task, ids []string, batch *event.Batch) {
	wanted := make(map[string]*category.Category, len(ids))
	for _, id := range ids {
		if c := s.categoryMap[id]; c != nil {
			wanted[id] = c
		}
	}
	for _, existing := range t.Categories(false, false) {
		if _, keep := wanted[existing.ID()]; keep {
			delete(wanted, existing.ID())
			continue
		}
		if c, ok := existing.(*category.Category); ok {
			c.RemoveCategorizable(batch, t)
		}
		t.RemoveCategory(batch, existing)
	}
	for _, c := range wanted {
		c.AddCategorizable(batch, t)
		t.AddCategory(batch, c)
	}
}

func (s *Session) enterTwoWayNewEfforts() error {
	return s.expect("sztt", s.newEffortsCount, s.onNewEffort, func() error {
		return s.enterTwoWayModifiedEfforts()
	})
}

func (s *Session) onNewEffort(value any) error {
	args := value.([]any)
	subject := args[0].(string)
	taskID := optString(args[1])

	var owner *task.Task
	if taskID != "" {
		if owner = s.taskMap[taskID]; owner == nil {
			glog.Warningf("sync: no task %s for new effort", taskID)
		}
	}
	batch := event.NewBatch(s.doc.Bus())
	e := task.NewEffort(s.doc.Bus(), owner, asTime(args[2]), asTime(args[3]))
	e.SetSubject(subject, batch)
	s.doc.Efforts.Add(batch, e)
	batch.Flush()
	s.effortMap[e.ID()] = e
	glog.V(2).Infof("sync: new effort %s", e.ID())
	return s.send("s", e.ID())
}

func (s *Session) enterTwoWayModifiedEfforts() error {
	// The device cannot delete efforts, so modifications end the
	// incoming stream.
	return s.expect("sstt", s.modifiedEffortsCount, s.onModifiedEffort, func() error {
		return s.enterFullFromDesktop()
	})
}

func (s *Session) onModifiedEffort(value any) error {
	args := value.([]any)
	id := args[0].(string)
	e, ok := s.effortMap[id]
	if !ok {
		if s.version >= 5 {
			return s.send("s", "")
		}
		return nil
	}
	batch := event.NewBatch(s.doc.Bus())
	e.SetSubject(args[1].(string), batch)
	e.SetStart(asTime(args[2]), batch)
	e.SetStop(asTime(args[3]), batch)
	batch.Flush()
	glog.V(2).Infof("sync: modified effort %s", id)
	if s.version >= 5 {
		return s.send("s", id)
	}
	return nil
}

// Full push to the device: counts first, then every category, task and
// effort, each acknowledged individually.

func (s *Session) enterFullFromDesktop() error {
	glog.V(1).Info("sync: pushing full document to device")
	s.sendCategories = nil
	for _, c := range s.doc.Categories.AllSorted() {
		if !c.IsDeleted() {
			s.sendCategories = append(s.sendCategories, c)
		}
	}
	s.sendTasks = nil
	s.sendEfforts = nil
	if s.version >= 4 {
		for _, t := range s.doc.Tasks.AllSorted() {
			if t.IsDeleted() || (t.Completed() && !s.cfg.SyncCompleted) {
				continue
			}
			s.sendTasks = append(s.sendTasks, t)
		}
		for _, e := range s.doc.Efforts.All() {
			owner := e.Task()
			if owner != nil && (owner.IsDeleted() || (owner.Completed() && !s.cfg.SyncCompleted)) {
				continue
			}
			s.sendEfforts = append(s.sendEfforts, e)
		}
	} else {
		for _, t := range s.doc.Tasks.All() {
			if s.isTaskEligible(t) {
				s.sendTasks = append(s.sendTasks, t)
			}
		}
	}

	s.sendCount = 0
	if s.version >= 4 {
		s.sendTotal = len(s.sendCategories) + len(s.sendTasks) + len(s.sendEfforts)
		if err := s.send("iii", len(s.sendCategories), len(s.sendTasks), len(s.sendEfforts)); err != nil {
			return err
		}
	} else {
		s.sendTotal = len(s.sendCategories) + len(s.sendTasks)
		if err := s.send("ii", len(s.sendCategories), len(s.sendTasks)); err != nil {
			return err
		}
	}
	return s.enterFullFromDesktopCategories()
}

// isTaskEligible decides whether a task is worth sending to a pre-v4
// device: leaves, reminders, overdue tasks and members of a category
// named "iPhone" qualify.
func (s *Session) isTaskEligible(t *task.Task) bool {
	if t.Completed() && !s.cfg.SyncCompleted {
		return false
	}
	if t.IsDeleted() {
		return false
	}
	if len(t.Children(false)) == 0 {
		return true
	}
	if !t.Reminder().IsZero() {
		return true
	}
	if t.Overdue(time.Now()) {
		return true
	}
	for _, c := range t.Categories(false, false) {
		if c.Subject(false) == "iPhone" {
			return true
		}
	}
	return false
}

func (s *Session) enterFullFromDesktopCategories() error {
	glog.V(1).Infof("sync: sending %d categories", len(s.sendCategories))
	if err := s.expect("i", len(s.sendCategories), s.onPushAck(s.sendNextCategory), func() error {
		return s.enterFullFromDesktopTasks()
	}); err != nil {
		return err
	}
	if len(s.sendCategories) > 0 {
		return s.sendNextCategory()
	}
	return nil
}

// onPushAck counts an acknowledgement and sends the next object.
func (s *Session) onPushAck(sendNext func() error) func(any) error {
	return func(any) error {
		s.sendCount++
		return sendNext()
	}
}

func (s *Session) sendNextCategory() error {
	if len(s.sendCategories) == 0 {
		return nil
	}
	c := s.sendCategories[0]
	s.sendCategories = s.sendCategories[1:]
	var parentID any
	if c.Parent() != nil {
		parentID = c.Parent().ID()
	}
	glog.V(2).Infof("sync: send category %s", c.ID())
	return s.send("ssz", c.Subject(false), c.ID(), parentID)
}

func (s *Session) enterFullFromDesktopTasks() error {
	glog.V(1).Infof("sync: sending %d tasks", len(s.sendTasks))
	if err := s.expect("i", len(s.sendTasks), s.onPushAck(s.sendNextTask), func() error {
		if s.version >= 4 {
			return s.enterFullFromDesktopEfforts()
		}
		return s.enterSendGUID()
	}); err != nil {
		return err
	}
	if len(s.sendTasks) > 0 {
		return s.sendNextTask()
	}
	return nil
}

func (s *Session) sendNextTask() error {
	if len(s.sendTasks) == 0 {
		return nil
	}
	t := s.sendTasks[0]
	s.sendTasks = s.sendTasks[1:]
	glog.V(2).Infof("sync: send task %s", t.ID())

	categoryIDs := make([]string, 0)
	for _, c := range t.Categories(false, false) {
		categoryIDs = append(categoryIDs, c.ID())
	}
	var parentID any
	if t.Parent() != nil {
		parentID = t.Parent().ID()
	}

	switch {
	case s.version < 4:
		return s.send("sssddd[s]",
			t.Subject(false), t.ID(), t.Description(),
			t.PlannedStartDateTime(), t.DueDateTime(), t.CompletionDateTime(),
			categoryIDs)
	case s.version < 5:
		return s.send("sssdddz[s]",
			t.Subject(false), t.ID(), t.Description(),
			t.PlannedStartDateTime(), t.DueDateTime(), t.CompletionDateTime(),
			parentID, categoryIDs)
	default:
		hasRecurrence, recPeriod, recRepeat, recSameWeekday := encodeRecurrence(t.Recurrence())
		return s.send("sssffffziiiii[s]",
			t.Subject(false), t.ID(), t.Description(),
			t.PlannedStartDateTime(), t.DueDateTime(), t.CompletionDateTime(), t.Reminder(),
			parentID,
			t.Priority(), hasRecurrence, recPeriod, recRepeat, recSameWeekday,
			categoryIDs)
	}
}

func (s *Session) enterFullFromDesktopEfforts() error {
	glog.V(1).Infof("sync: sending %d efforts", len(s.sendEfforts))
	if err := s.expect("i", len(s.sendEfforts), s.onPushAck(s.sendNextEffort), func() error {
		if s.version < 5 {
			return s.enterSendGUID()
		}
		return s.finishClean()
	}); err != nil {
		return err
	}
	if len(s.sendEfforts) > 0 {
		return s.sendNextEffort()
	}
	return nil
}

func (s *Session) sendNextEffort() error {
	if len(s.sendEfforts) == 0 {
		return nil
	}
	e := s.sendEfforts[0]
	s.sendEfforts = s.sendEfforts[1:]
	var taskID any
	if e.Task() != nil {
		taskID = e.Task().ID()
	}
	glog.V(2).Infof("sync: send effort %s", e.ID())
	return s.send("ssztt", e.ID(), e.Subject(false), taskID, e.Start(), e.Stop())
}

// Full replace from the device: the document is cleared, then categories
// and tasks stream in.

func (s *Session) enterFullFromDevice() error {
	glog.V(1).Info("sync: replacing document with device contents")
	batch := event.NewBatch(s.doc.Bus())
	s.doc.Clear(batch)
	batch.Flush()
	s.categoryMap = make(map[string]*category.Category)
	return s.expect("ii", 1, s.onDeviceCounts, nil)
}

func (s *Session) onDeviceCounts(value any) error {
	counts := value.([]any)
	s.newCategoriesCount = asInt(counts[0])
	s.newTasksCount = asInt(counts[1])
	glog.V(1).Infof("sync: device sends %d categories, %d tasks", s.newCategoriesCount, s.newTasksCount)
	return s.enterFullFromDeviceCategories()
}

func (s *Session) enterFullFromDeviceCategories() error {
	format := "sz"
	if s.version < 3 {
		format = "s"
	}
	return s.expect(format, s.newCategoriesCount, s.onNewCategory, func() error {
		return s.enterFullFromDeviceTasks()
	})
}

func (s *Session) enterFullFromDeviceTasks() error {
	return s.expect("ssddd[s]", s.newTasksCount, s.onDeviceTask, func() error {
		return s.enterSendGUID()
	})
}

func (s *Session) onDeviceTask(value any) error {
	args := value.([]any)
	batch := event.NewBatch(s.doc.Bus())
	t := task.NewTask(s.doc.Bus(), args[0].(string))
	t.SetDescription(args[1].(string), batch)
	t.SetPlannedStartDateTime(asTime(args[2]), batch)
	t.SetDueDateTime(asTime(args[3]), batch)
	t.SetCompletionDateTime(asTime(args[4]), batch)
	for _, id := range asStrings(args[5]) {
		if c := s.categoryMap[id]; c != nil {
			c.AddCategorizable(batch, t)
			t.AddCategory(batch, c)
		}
	}
	s.doc.Tasks.Add(batch, t)
	batch.Flush()
	glog.V(2).Infof("sync: new task %s from device", t.ID())
	return s.send("s", t.ID())
}

// enterSendGUID transmits the document GUID so the device can recognize
// this file next time. Once it is sent the sync is committed: a
// connection loss no longer rolls back.

func (s *Session) enterSendGUID() error {
	s.rollbackOnClose = false
	if err := s.expect("i", 1, func(any) error {
		return nil
	}, s.finishClean); err != nil {
		return err
	}
	return s.send("s", s.doc.GUID())
}

// anchorDate moves a date-only value received from an old device to the
// given working hour. The zero time passes through.
func (s *Session) anchorDate(day time.Time, hour int) time.Time {
	if day.IsZero() {
		return day
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, day.Location())
}

// decodeRecurrence builds a recurrence from the wire fields
// (hasRecurrence, period, repeat, sameWeekday); nil when absent.
func decodeRecurrence(args []any) *date.Recurrence {
	if asInt(args[0]) == 0 {
		return nil
	}
	units := []string{date.UnitDaily, date.UnitWeekly, date.UnitMonthly, date.UnitYearly}
	period := asInt(args[1])
	if period < 0 || period >= len(units) {
		return nil
	}
	r := date.NewRecurrence(units[period], asInt(args[2]))
	r.SameWeekday = asInt(args[3]) != 0
	return r
}

// encodeRecurrence is the inverse of decodeRecurrence.
func encodeRecurrence(r *date.Recurrence) (hasRecurrence, period, repeat, sameWeekday int) {
	if r == nil || r.Unit == date.UnitNone {
		return 0, 0, 0, 0
	}
	switch r.Unit {
	case date.UnitWeekly:
		period = 1
	case date.UnitMonthly:
		period = 2
	case date.UnitYearly:
		period = 3
	}
	if r.SameWeekday {
		sameWeekday = 1
	}
	return 1, period, r.Amount, sameWeekday
}

func asInt(v any) int { return v.(int) }

func asTime(v any) time.Time { return v.(time.Time) }

func optString(v any) string {
	if v == nil {
		return ""
	}
	return v.(string)
}

func asStrings(v any) []string {
	elements := v.([]any)
	result := make([]string, 0, len(elements))
	for _, element := range elements {
		result = append(result, element.(string))
	}
	return result
}
