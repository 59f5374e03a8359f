package postgres

// Migrations are applied in order inside Migrate. Every statement is
// idempotent so re-running a partially applied set is safe.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS transit_users (
		id         TEXT PRIMARY KEY,
		email      TEXT NOT NULL,
		name       TEXT NOT NULL DEFAULT '',
		role       TEXT NOT NULL DEFAULT 'passenger',
		balance    BIGINT NOT NULL DEFAULT 0,
		currency   TEXT NOT NULL DEFAULT 'zar',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT transit_users_email_key UNIQUE (email)
	)`,

	`CREATE TABLE IF NOT EXISTS transit_cards (
		id         TEXT PRIMARY KEY,
		token      TEXT NOT NULL,
		user_id    TEXT NOT NULL REFERENCES transit_users (id),
		label      TEXT NOT NULL DEFAULT '',
		linked     BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT transit_cards_token_key UNIQUE (token)
	)`,

	`CREATE TABLE IF NOT EXISTS transit_agencies (
		id         TEXT PRIMARY KEY,
		code       TEXT NOT NULL,
		name       TEXT NOT NULL,
		email      TEXT NOT NULL DEFAULT '',
		phone      TEXT NOT NULL DEFAULT '',
		active     BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT transit_agencies_code_key UNIQUE (code)
	)`,

	`CREATE TABLE IF NOT EXISTS transit_trips (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL REFERENCES transit_users (id),
		agency_id  TEXT NOT NULL REFERENCES transit_agencies (id),
		card_token TEXT NOT NULL,
		reference  TEXT NOT NULL,
		start_lat  DOUBLE PRECISION NOT NULL,
		start_lng  DOUBLE PRECISION NOT NULL,
		start_time TIMESTAMPTZ NOT NULL,
		end_lat    DOUBLE PRECISION,
		end_lng    DOUBLE PRECISION,
		end_time   TIMESTAMPTZ,
		fare       BIGINT NOT NULL DEFAULT 0,
		currency   TEXT NOT NULL DEFAULT 'zar',
		status     TEXT NOT NULL,
		version    BIGINT NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,

	// The single-active-trip guarantee per (user, card). Concurrent
	// tap-ins race on this index and exactly one wins.
	`CREATE UNIQUE INDEX IF NOT EXISTS transit_trips_active_key
		ON transit_trips (user_id, card_token)
		WHERE status = 'in_progress'`,

	`CREATE INDEX IF NOT EXISTS transit_trips_agency_idx
		ON transit_trips (agency_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS transit_transactions (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL REFERENCES transit_users (id),
		agency_id  TEXT,
		amount     BIGINT NOT NULL,
		currency   TEXT NOT NULL DEFAULT 'zar',
		type       TEXT NOT NULL,
		status     TEXT NOT NULL,
		reference  TEXT NOT NULL,
		meta       JSONB,
		settled    BOOLEAN NOT NULL DEFAULT FALSE,
		settled_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT transit_transactions_reference_key UNIQUE (reference)
	)`,

	`CREATE INDEX IF NOT EXISTS transit_transactions_user_idx
		ON transit_transactions (user_id, created_at)`,

	`CREATE INDEX IF NOT EXISTS transit_transactions_unsettled_idx
		ON transit_transactions (agency_id)
		WHERE type = 'fare' AND settled = FALSE`,
}
