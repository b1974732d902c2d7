// Package autosave periodically writes the task file back to disk while
// the document has unsaved changes.
package autosave

import (
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/mpeeters/tasknest/internal/domain/task"
)

// defaultInterval is used when the configured interval is missing or
// nonsensical.
const defaultInterval = 5 * time.Minute

// Status describes the most recent save attempt.
type Status struct {
	LastSave time.Time
	Err      error
}

// Saver runs the autosave loop. The document is not safe for concurrent
// use, so every dirty check and save runs through the run function,
// which must serialize it with all other document access.
type Saver struct {
	doc      *task.Document
	interval time.Duration
	run      func(func())
	save     func() error

	triggerCh chan struct{}
	stopCh    chan struct{}

	mu      sync.Mutex
	running bool
	status  Status
}

// New creates a Saver. save writes the task file; run serializes access
// to doc (typically the sync server's serial runner).
func New(doc *task.Document, interval time.Duration, run func(func()), save func() error) *Saver {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Saver{
		doc:       doc,
		interval:  interval,
		run:       run,
		save:      save,
		triggerCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
}

// Start launches the autosave goroutine. Starting twice is a no-op.
func (s *Saver) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	go s.loop()
}

// Stop halts the autosave goroutine. A save already in flight finishes.
func (s *Saver) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	close(s.stopCh)
	s.running = false
}

// SaveNow requests an immediate save check without waiting for the next
// tick. It never blocks; a request already pending is enough.
func (s *Saver) SaveNow() {
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

// LastStatus returns the outcome of the most recent save attempt.
func (s *Saver) LastStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Saver) loop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.saveIfDirty()
		case <-s.triggerCh:
			s.saveIfDirty()
		}
	}
}

// saveIfDirty writes the task file when the document has changes.
func (s *Saver) saveIfDirty() {
	var saved bool
	var err error
	s.run(func() {
		if !s.doc.IsDirty() {
			return
		}
		saved = true
		if err = s.save(); err == nil {
			// A saved document is a clean document.
			s.doc.CleanAll(nil)
		}
	})
	if !saved {
		return
	}

	s.mu.Lock()
	s.status.Err = err
	if err == nil {
		s.status.LastSave = time.Now()
	}
	s.mu.Unlock()

	if err != nil {
		glog.Errorf("autosave: %v", err)
		return
	}
	glog.V(1).Info("autosave: task file written")
}
