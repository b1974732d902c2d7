package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// UpsertDevice inserts or updates a device by name.
func (s *SQLiteStore) UpsertDevice(ctx context.Context, device Device) error {
	if strings.TrimSpace(device.Name) == "" {
		return fmt.Errorf("device name must not be empty")
	}
	now := time.Now().UTC()
	if device.FirstSeen.IsZero() {
		device.FirstSeen = now
	}
	if device.LastSync.IsZero() {
		device.LastSync = now
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO devices (name, guid, protocol_version, first_seen, last_sync)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			guid = excluded.guid,
			protocol_version = excluded.protocol_version,
			last_sync = excluded.last_sync`,
		device.Name, device.GUID, device.ProtocolVersion,
		device.FirstSeen.UTC(), device.LastSync.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upserting device %s: %w", device.Name, err)
	}
	return nil
}

// GetDevices retrieves all known devices, most recently synced first.
func (s *SQLiteStore) GetDevices(ctx context.Context) ([]Device, error) {
	var devices []Device
	err := s.db.SelectContext(ctx, &devices,
		"SELECT * FROM devices ORDER BY last_sync DESC")
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	return devices, nil
}

// GetDeviceByName retrieves a single device, nil when unknown.
func (s *SQLiteStore) GetDeviceByName(ctx context.Context, name string) (*Device, error) {
	var device Device
	err := s.db.GetContext(ctx, &device,
		"SELECT * FROM devices WHERE name = ?", name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying device %s: %w", name, err)
	}
	return &device, nil
}

// DeleteDevice removes a device from the registry.
func (s *SQLiteStore) DeleteDevice(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM devices WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("deleting device %s: %w", name, err)
	}
	return nil
}

// InsertSession appends a session to the journal. Generates an id when
// empty.
func (s *SQLiteStore) InsertSession(ctx context.Context, session Session) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if session.FinishedAt.IsZero() {
		session.FinishedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, device_name, version, outcome, finished_at)
		VALUES (?, ?, ?, ?, ?)`,
		session.ID, session.DeviceName, session.Version, session.Outcome,
		session.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// GetSessions retrieves sessions matching the filter, newest first.
func (s *SQLiteStore) GetSessions(ctx context.Context, opts SessionFilter) ([]Session, error) {
	var conditions []string
	var args []interface{}

	if opts.DeviceName != nil {
		conditions = append(conditions, "device_name = ?")
		args = append(args, *opts.DeviceName)
	}
	if opts.Outcome != nil {
		conditions = append(conditions, "outcome = ?")
		args = append(args, *opts.Outcome)
	}

	query := "SELECT * FROM sessions"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY finished_at DESC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	var sessions []Session
	if err := s.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	return sessions, nil
}

// RecordSession implements the sync server's session recorder: it
// journals the session and, on a completed sync, bumps the device's
// last-sync time and negotiated version.
func (s *SQLiteStore) RecordSession(deviceName string, version int, outcome string, when time.Time) error {
	ctx := context.Background()
	if err := s.InsertSession(ctx, Session{
		DeviceName: deviceName,
		Version:    version,
		Outcome:    outcome,
		FinishedAt: when,
	}); err != nil {
		return err
	}
	if outcome != "completed" || deviceName == "" {
		return nil
	}
	device, err := s.GetDeviceByName(ctx, deviceName)
	if err != nil {
		return err
	}
	if device == nil {
		device = &Device{Name: deviceName, FirstSeen: when}
	}
	device.ProtocolVersion = version
	device.LastSync = when
	return s.UpsertDevice(ctx, *device)
}
