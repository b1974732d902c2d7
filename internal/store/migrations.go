package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS devices (
	name             TEXT PRIMARY KEY,
	guid             TEXT NOT NULL DEFAULT '',
	protocol_version INTEGER NOT NULL DEFAULT 0,
	first_seen       DATETIME NOT NULL,
	last_sync        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	device_name TEXT NOT NULL,
	version     INTEGER NOT NULL,
	outcome     TEXT NOT NULL,
	finished_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_device ON sessions(device_name);
CREATE INDEX IF NOT EXISTS idx_sessions_finished ON sessions(finished_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_sessions_outcome ON sessions(outcome);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
