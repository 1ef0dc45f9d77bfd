package storage

// Migration represents a database migration
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// GetSQLiteMigrations returns SQLite migration scripts
func GetSQLiteMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create accounts table",
			SQL: `
				CREATE TABLE IF NOT EXISTS accounts (
					id TEXT PRIMARY KEY,
					nonce TEXT NOT NULL,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				);
			`,
		},
		{
			Version:     "002",
			Description: "Create events table",
			SQL: `
				CREATE TABLE IF NOT EXISTS events (
					id TEXT PRIMARY KEY,
					cover TEXT NOT NULL DEFAULT '',
					title TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					body TEXT NOT NULL DEFAULT '',
					host_address_or_ens TEXT NOT NULL,
					host_avatar_url TEXT NOT NULL DEFAULT '',
					managers TEXT NOT NULL DEFAULT '[]', -- JSON
					timezone TEXT NOT NULL,
					allow_list TEXT NOT NULL, -- JSON
					is_canceled BOOLEAN NOT NULL DEFAULT FALSE,
					start_at DATETIME NOT NULL,
					end_at DATETIME NOT NULL,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_events_host ON events(host_address_or_ens);
				CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at);
			`,
		},
		{
			Version:     "003",
			Description: "Create tickets table with one-live-ticket index",
			SQL: `
				CREATE TABLE IF NOT EXISTS tickets (
					id TEXT PRIMARY KEY,
					account TEXT NOT NULL,
					event_id TEXT NOT NULL,
					nonce TEXT NOT NULL,
					signature TEXT NOT NULL,
					ens TEXT NOT NULL DEFAULT '',
					nft TEXT, -- JSON, NULL for ENS tickets
					invalidated BOOLEAN NOT NULL DEFAULT FALSE,
					created_at DATETIME NOT NULL,
					verified_at DATETIME,
					invalidated_at DATETIME,
					event_title TEXT NOT NULL DEFAULT '',
					event_host TEXT NOT NULL DEFAULT '',
					event_host_avatar TEXT NOT NULL DEFAULT '',
					event_timezone TEXT NOT NULL DEFAULT '',
					event_start_at DATETIME,
					event_end_at DATETIME
				);

				CREATE INDEX IF NOT EXISTS idx_tickets_account ON tickets(account, created_at);
				CREATE INDEX IF NOT EXISTS idx_tickets_event ON tickets(event_id);
				-- at most one live ticket per (account, event)
				CREATE UNIQUE INDEX IF NOT EXISTS idx_tickets_one_live
					ON tickets(account, event_id) WHERE invalidated = FALSE;
			`,
		},
		{
			Version:     "004",
			Description: "Create usage counters table",
			SQL: `
				CREATE TABLE IF NOT EXISTS usage_counters (
					event_id TEXT NOT NULL,
					token_key TEXT NOT NULL,
					token_type TEXT NOT NULL,
					total_usage_count INTEGER NOT NULL,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL,
					PRIMARY KEY (event_id, token_key)
				);
			`,
		},
		{
			Version:     "005",
			Description: "Create ledger tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS issuance_logs (
					id TEXT PRIMARY KEY,
					event_id TEXT NOT NULL,
					account TEXT NOT NULL,
					ticket_id TEXT NOT NULL,
					ens TEXT NOT NULL DEFAULT '',
					nft TEXT,
					created_at DATETIME NOT NULL
				);

				CREATE TABLE IF NOT EXISTS verification_logs (
					id TEXT PRIMARY KEY,
					event_id TEXT NOT NULL,
					account TEXT NOT NULL,
					verifier TEXT NOT NULL,
					ticket_id TEXT NOT NULL,
					ens TEXT NOT NULL DEFAULT '',
					nft TEXT,
					total_usage_count INTEGER NOT NULL,
					created_at DATETIME NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_issuance_logs_event ON issuance_logs(event_id, created_at);
				CREATE INDEX IF NOT EXISTS idx_verification_logs_event ON verification_logs(event_id, created_at);
			`,
		},
	}
}

// GetPostgresMigrations returns PostgreSQL migration scripts
func GetPostgresMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create accounts table",
			SQL: `
				CREATE TABLE IF NOT EXISTS accounts (
					id TEXT PRIMARY KEY,
					nonce TEXT NOT NULL,
					created_at TIMESTAMPTZ NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL
				);
			`,
		},
		{
			Version:     "002",
			Description: "Create events table",
			SQL: `
				CREATE TABLE IF NOT EXISTS events (
					id TEXT PRIMARY KEY,
					cover TEXT NOT NULL DEFAULT '',
					title TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					body TEXT NOT NULL DEFAULT '',
					host_address_or_ens TEXT NOT NULL,
					host_avatar_url TEXT NOT NULL DEFAULT '',
					managers JSONB NOT NULL DEFAULT '[]',
					timezone TEXT NOT NULL,
					allow_list JSONB NOT NULL,
					is_canceled BOOLEAN NOT NULL DEFAULT FALSE,
					start_at TIMESTAMPTZ NOT NULL,
					end_at TIMESTAMPTZ NOT NULL,
					created_at TIMESTAMPTZ NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_events_host ON events(host_address_or_ens);
				CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at);
			`,
		},
		{
			Version:     "003",
			Description: "Create tickets table with one-live-ticket index",
			SQL: `
				CREATE TABLE IF NOT EXISTS tickets (
					id TEXT PRIMARY KEY,
					account TEXT NOT NULL,
					event_id TEXT NOT NULL,
					nonce TEXT NOT NULL,
					signature TEXT NOT NULL,
					ens TEXT NOT NULL DEFAULT '',
					nft JSONB,
					invalidated BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMPTZ NOT NULL,
					verified_at TIMESTAMPTZ,
					invalidated_at TIMESTAMPTZ,
					event_title TEXT NOT NULL DEFAULT '',
					event_host TEXT NOT NULL DEFAULT '',
					event_host_avatar TEXT NOT NULL DEFAULT '',
					event_timezone TEXT NOT NULL DEFAULT '',
					event_start_at TIMESTAMPTZ,
					event_end_at TIMESTAMPTZ
				);

				CREATE INDEX IF NOT EXISTS idx_tickets_account ON tickets(account, created_at);
				CREATE INDEX IF NOT EXISTS idx_tickets_event ON tickets(event_id);
				CREATE UNIQUE INDEX IF NOT EXISTS idx_tickets_one_live
					ON tickets(account, event_id) WHERE NOT invalidated;
			`,
		},
		{
			Version:     "004",
			Description: "Create usage counters table",
			SQL: `
				CREATE TABLE IF NOT EXISTS usage_counters (
					event_id TEXT NOT NULL,
					token_key TEXT NOT NULL,
					token_type TEXT NOT NULL,
					total_usage_count BIGINT NOT NULL,
					created_at TIMESTAMPTZ NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL,
					PRIMARY KEY (event_id, token_key)
				);
			`,
		},
		{
			Version:     "005",
			Description: "Create ledger tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS issuance_logs (
					id TEXT PRIMARY KEY,
					event_id TEXT NOT NULL,
					account TEXT NOT NULL,
					ticket_id TEXT NOT NULL,
					ens TEXT NOT NULL DEFAULT '',
					nft JSONB,
					created_at TIMESTAMPTZ NOT NULL
				);

				CREATE TABLE IF NOT EXISTS verification_logs (
					id TEXT PRIMARY KEY,
					event_id TEXT NOT NULL,
					account TEXT NOT NULL,
					verifier TEXT NOT NULL,
					ticket_id TEXT NOT NULL,
					ens TEXT NOT NULL DEFAULT '',
					nft JSONB,
					total_usage_count BIGINT NOT NULL,
					created_at TIMESTAMPTZ NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_issuance_logs_event ON issuance_logs(event_id, created_at);
				CREATE INDEX IF NOT EXISTS idx_verification_logs_event ON verification_logs(event_id, created_at);
			`,
		},
	}
}
