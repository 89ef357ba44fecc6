// Package storage provides the keyword registry and slot persistence on SQLite or PostgreSQL.
package storage

// Schema definitions for the registry database. Timestamps are Unix seconds.
const (
	// SQLiteSchemaV1 is the initial SQLite schema
	SQLiteSchemaV1 = `
CREATE TABLE IF NOT EXISTS keywords (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	slot_type TEXT NOT NULL DEFAULT 'coupang',
	keyword TEXT NOT NULL,
	link_url TEXT NOT NULL,
	slot_count INTEGER NOT NULL DEFAULT 1,
	current_rank INTEGER,
	last_check_date INTEGER,
	claimed_until INTEGER,
	attempts INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_keywords_lookup ON keywords(keyword, link_url);
CREATE INDEX IF NOT EXISTS idx_keywords_claim ON keywords(slot_type, claimed_until);

CREATE TABLE IF NOT EXISTS slots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	customer_id TEXT NOT NULL,
	customer_name TEXT NOT NULL DEFAULT '',
	slot_type TEXT NOT NULL DEFAULT 'coupang',
	slot_count INTEGER NOT NULL,
	payment_amount INTEGER NOT NULL DEFAULT 0,
	usage_days INTEGER NOT NULL,
	memo TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'active',
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_slots_customer ON slots(customer_id);

CREATE TABLE IF NOT EXISTS slot_status (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	slot_id INTEGER,
	customer_id TEXT NOT NULL,
	customer_name TEXT NOT NULL DEFAULT '',
	distributor TEXT NOT NULL DEFAULT '',
	work_group TEXT NOT NULL DEFAULT '',
	keyword TEXT NOT NULL,
	link_url TEXT NOT NULL,
	memo TEXT NOT NULL DEFAULT '',
	equipment_group TEXT NOT NULL DEFAULT '',
	current_rank INTEGER,
	start_rank INTEGER,
	slot_count INTEGER NOT NULL DEFAULT 1,
	usage_days INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'active',
	slot_type TEXT NOT NULL DEFAULT 'coupang',
	created_at INTEGER NOT NULL,
	last_check_date INTEGER
);

CREATE INDEX IF NOT EXISTS idx_slot_status_customer ON slot_status(customer_id);
CREATE INDEX IF NOT EXISTS idx_slot_status_lookup ON slot_status(keyword, link_url);

CREATE TABLE IF NOT EXISTS rank_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	slot_status_id INTEGER NOT NULL,
	keyword TEXT NOT NULL,
	link_url TEXT NOT NULL,
	current_rank INTEGER,
	start_rank INTEGER,
	check_date INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rank_history_slot_status ON rank_history(slot_status_id);

CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	applied_at INTEGER NOT NULL
);
`

	// PostgresSchemaV1 is the initial PostgreSQL schema
	PostgresSchemaV1 = `
CREATE TABLE IF NOT EXISTS keywords (
	id BIGSERIAL PRIMARY KEY,
	slot_type TEXT NOT NULL DEFAULT 'coupang',
	keyword TEXT NOT NULL,
	link_url TEXT NOT NULL,
	slot_count INTEGER NOT NULL DEFAULT 1,
	current_rank INTEGER,
	last_check_date BIGINT,
	claimed_until BIGINT,
	attempts INTEGER NOT NULL DEFAULT 0,
	created_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_keywords_lookup ON keywords(keyword, link_url);
CREATE INDEX IF NOT EXISTS idx_keywords_claim ON keywords(slot_type, claimed_until);

CREATE TABLE IF NOT EXISTS slots (
	id BIGSERIAL PRIMARY KEY,
	customer_id TEXT NOT NULL,
	customer_name TEXT NOT NULL DEFAULT '',
	slot_type TEXT NOT NULL DEFAULT 'coupang',
	slot_count INTEGER NOT NULL,
	payment_amount BIGINT NOT NULL DEFAULT 0,
	usage_days INTEGER NOT NULL,
	memo TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'active',
	created_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_slots_customer ON slots(customer_id);

CREATE TABLE IF NOT EXISTS slot_status (
	id BIGSERIAL PRIMARY KEY,
	slot_id BIGINT,
	customer_id TEXT NOT NULL,
	customer_name TEXT NOT NULL DEFAULT '',
	distributor TEXT NOT NULL DEFAULT '',
	work_group TEXT NOT NULL DEFAULT '',
	keyword TEXT NOT NULL,
	link_url TEXT NOT NULL,
	memo TEXT NOT NULL DEFAULT '',
	equipment_group TEXT NOT NULL DEFAULT '',
	current_rank INTEGER,
	start_rank INTEGER,
	slot_count INTEGER NOT NULL DEFAULT 1,
	usage_days INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'active',
	slot_type TEXT NOT NULL DEFAULT 'coupang',
	created_at BIGINT NOT NULL,
	last_check_date BIGINT
);

CREATE INDEX IF NOT EXISTS idx_slot_status_customer ON slot_status(customer_id);
CREATE INDEX IF NOT EXISTS idx_slot_status_lookup ON slot_status(keyword, link_url);

CREATE TABLE IF NOT EXISTS rank_history (
	id BIGSERIAL PRIMARY KEY,
	slot_status_id BIGINT NOT NULL,
	keyword TEXT NOT NULL,
	link_url TEXT NOT NULL,
	current_rank INTEGER,
	start_rank INTEGER,
	check_date BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rank_history_slot_status ON rank_history(slot_status_id);

CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	applied_at BIGINT NOT NULL
);
`
)

// Migration is one schema step
type Migration struct {
	Version int
	SQL     string
}

// Migrations holds the ordered migrations for each supported driver
var Migrations = map[string][]Migration{
	DriverSQLite: {
		{Version: 1, SQL: SQLiteSchemaV1},
	},
	DriverPostgres: {
		{Version: 1, SQL: PostgresSchemaV1},
	},
}
