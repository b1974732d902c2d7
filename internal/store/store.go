// Package store persists what must survive process restarts but does not
// belong in the task file: the registry of devices that ever synced with
// this desktop and the journal of sync sessions.
package store

import (
	"context"
	"time"
)

// Device is a sync partner known to this desktop.
type Device struct {
	Name            string    `db:"name"`
	GUID            string    `db:"guid"`
	ProtocolVersion int       `db:"protocol_version"`
	FirstSeen       time.Time `db:"first_seen"`
	LastSync        time.Time `db:"last_sync"`
}

// Session is one recorded synchronization attempt.
type Session struct {
	ID         string    `db:"id"`
	DeviceName string    `db:"device_name"`
	Version    int       `db:"version"`
	Outcome    string    `db:"outcome"`
	FinishedAt time.Time `db:"finished_at"`
}

// SessionFilter controls filtering and pagination for session queries.
type SessionFilter struct {
	DeviceName *string
	Outcome    *string
	Limit      int
}

// Store defines the persistence interface for devices and sync sessions.
type Store interface {
	UpsertDevice(ctx context.Context, device Device) error
	GetDevices(ctx context.Context) ([]Device, error)
	GetDeviceByName(ctx context.Context, name string) (*Device, error)
	DeleteDevice(ctx context.Context, name string) error

	InsertSession(ctx context.Context, session Session) error
	GetSessions(ctx context.Context, opts SessionFilter) ([]Session, error)

	Close() error
}
