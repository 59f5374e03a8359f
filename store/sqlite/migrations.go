package sqlite

// Migrations are applied in order inside Migrate. Every statement is
// idempotent so re-running a partially applied set is safe.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS transit_users (
		id         TEXT PRIMARY KEY,
		email      TEXT NOT NULL UNIQUE,
		name       TEXT NOT NULL DEFAULT '',
		role       TEXT NOT NULL DEFAULT 'passenger',
		balance    INTEGER NOT NULL DEFAULT 0,
		currency   TEXT NOT NULL DEFAULT 'zar',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS transit_cards (
		id         TEXT PRIMARY KEY,
		token      TEXT NOT NULL UNIQUE,
		user_id    TEXT NOT NULL REFERENCES transit_users (id),
		label      TEXT NOT NULL DEFAULT '',
		linked     INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS transit_agencies (
		id         TEXT PRIMARY KEY,
		code       TEXT NOT NULL UNIQUE,
		name       TEXT NOT NULL,
		email      TEXT NOT NULL DEFAULT '',
		phone      TEXT NOT NULL DEFAULT '',
		active     INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS transit_trips (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL REFERENCES transit_users (id),
		agency_id  TEXT NOT NULL REFERENCES transit_agencies (id),
		card_token TEXT NOT NULL,
		reference  TEXT NOT NULL,
		start_lat  REAL NOT NULL,
		start_lng  REAL NOT NULL,
		start_time TIMESTAMP NOT NULL,
		end_lat    REAL,
		end_lng    REAL,
		end_time   TIMESTAMP,
		fare       INTEGER NOT NULL DEFAULT 0,
		currency   TEXT NOT NULL DEFAULT 'zar',
		status     TEXT NOT NULL,
		version    INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,

	// The single-active-trip guarantee per (user, card).
	`CREATE UNIQUE INDEX IF NOT EXISTS transit_trips_active_key
		ON transit_trips (user_id, card_token)
		WHERE status = 'in_progress'`,

	`CREATE INDEX IF NOT EXISTS transit_trips_agency_idx
		ON transit_trips (agency_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS transit_transactions (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL REFERENCES transit_users (id),
		agency_id  TEXT,
		amount     INTEGER NOT NULL,
		currency   TEXT NOT NULL DEFAULT 'zar',
		type       TEXT NOT NULL,
		status     TEXT NOT NULL,
		reference  TEXT NOT NULL UNIQUE,
		meta       TEXT,
		settled    INTEGER NOT NULL DEFAULT 0,
		settled_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS transit_transactions_user_idx
		ON transit_transactions (user_id, created_at)`,
}
