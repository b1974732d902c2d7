// Command tasknestd serves a task file to handheld devices over the
// binary sync protocol. It loads the task file, listens on the first
// free port in the device scan range, applies device changes, and
// writes the file back after each completed sync.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/golang/glog"

	"github.com/mpeeters/tasknest/internal/autosave"
	"github.com/mpeeters/tasknest/internal/config"
	"github.com/mpeeters/tasknest/internal/credential"
	"github.com/mpeeters/tasknest/internal/domain/task"
	"github.com/mpeeters/tasknest/internal/event"
	"github.com/mpeeters/tasknest/internal/persistence"
	"github.com/mpeeters/tasknest/internal/protocol"
	"github.com/mpeeters/tasknest/internal/store"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigPath(), "configuration file")
	taskFile := flag.String("file", "", "task file to serve (overrides the configured path)")
	flag.Parse()
	defer glog.Flush()

	if err := run(*configPath, *taskFile); err != nil {
		glog.Errorf("tasknestd: %v", err)
		glog.Flush()
		os.Exit(1)
	}
}

func run(configPath, taskFile string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if taskFile == "" {
		taskFile = cfg.File.Path
	}
	if taskFile == "" {
		return errors.New("no task file: pass -file or set file.path in the config")
	}
	if !cfg.Sync.Enabled {
		return errors.New("sync is disabled in the config")
	}

	secret, err := credential.SyncPassword()
	if err != nil {
		return fmt.Errorf("reading sync password: %w", err)
	}
	if secret == "" {
		return errors.New("no sync password set: store one under " + credential.SyncPasswordKey)
	}

	bus := event.NewBus()
	bus.SetErrorHook(func(topic string, recovered any) {
		glog.Errorf("event handler for %q panicked: %v", topic, recovered)
	})

	doc, err := loadDocument(taskFile, bus)
	if err != nil {
		return err
	}

	db, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	runner := protocol.NewSerialRunner()
	defer runner.Close()

	protoCfg := protocol.Config{
		Secret:        secret,
		SyncCompleted: cfg.Sync.SyncCompleted,
		DayStartHour:  cfg.Sync.DayStartHour,
		DayEndHour:    cfg.Sync.DayEndHour,
		TaskFileName:  taskFileStem(taskFile),
	}

	// Saving after every completed session keeps the file current even
	// if the process dies between syncs.
	recorder := &savingRecorder{
		db:     db,
		runner: runner,
		save: func() {
			if err := saveDocument(taskFile, doc); err != nil {
				glog.Errorf("saving %s: %v", taskFile, err)
			}
		},
	}
	acceptor, err := protocol.Listen(doc, protoCfg, runner, recorder)
	if err != nil {
		return err
	}

	if cfg.File.AutoSave {
		saver := autosave.New(doc,
			time.Duration(cfg.File.AutoSaveIntervalSec)*time.Second,
			runner.Do,
			func() error { return saveDocument(taskFile, doc) })
		saver.Start()
		defer saver.Stop()
	}

	done := make(chan error, 1)
	go func() { done <- acceptor.Serve() }()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-signals:
		glog.Infof("received %s, shutting down", sig)
		if err := acceptor.Close(); err != nil {
			glog.Warningf("closing listener: %v", err)
		}
		<-done
	case err := <-done:
		if err != nil {
			return err
		}
	}

	var saveErr error
	runner.Do(func() { saveErr = saveDocument(taskFile, doc) })
	return saveErr
}

// savingRecorder journals sessions to the store and writes the task
// file back after each completed sync.
type savingRecorder struct {
	db     *store.SQLiteStore
	runner *protocol.SerialRunner
	save   func()
}

func (r *savingRecorder) RecordSession(deviceName string, version int, outcome string, when time.Time) error {
	if outcome == "completed" {
		r.runner.Do(r.save)
	}
	return r.db.RecordSession(deviceName, version, outcome, when)
}

// taskFileStem is the task file name as shown on the device, without
// directory or extension.
func taskFileStem(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func loadDocument(path string, bus *event.Bus) (*task.Document, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		glog.Infof("task file %s does not exist yet, starting empty", path)
		return task.NewDocument(bus), nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	doc, err := persistence.ReadXML(f, bus)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	glog.Infof("loaded %s: %d tasks, %d categories, %d notes, %d efforts",
		path, doc.Tasks.Len(), doc.Categories.Len(), doc.Notes.Len(), doc.Efforts.Len())
	return doc, nil
}

// saveDocument writes atomically via a temp file rename.
func saveDocument(path string, doc *task.Document) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tasknest-*.xml")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := persistence.WriteXML(tmp, doc); err != nil {
		tmp.Close()
		return fmt.Errorf("saving %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	glog.V(1).Infof("saved %s", path)
	return nil
}
