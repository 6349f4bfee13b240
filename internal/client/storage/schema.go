package storage

// Schema definitions for the local SQLite store.
//
// Migrations are an ordered, additive chain: a store created at any
// historical version upgrades in place when opened by a newer build.
// Never edit a released migration; append a new one.

const (
	createSchemaMigrationsTableSQL = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`

	getCurrentVersionSQL = `
		SELECT COALESCE(MAX(version), 0) FROM schema_migrations;
	`

	insertMigrationSQL = `
		INSERT INTO schema_migrations (version) VALUES (?);
	`

	createInterviewsTableSQL = `
		CREATE TABLE IF NOT EXISTS interviews (
			id TEXT PRIMARY KEY,
			protocol_id TEXT NOT NULL,
			sync_status TEXT NOT NULL DEFAULT 'pending',
			last_updated TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			offline_created BOOLEAN NOT NULL DEFAULT 0,
			data BLOB
		);
	`

	createProtocolsTableSQL = `
		CREATE TABLE IF NOT EXISTS protocols (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			cached_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			data BLOB NOT NULL
		);
	`

	createAssetsTableSQL = `
		CREATE TABLE IF NOT EXISTS assets (
			key TEXT PRIMARY KEY,
			asset_id TEXT NOT NULL,
			protocol_id TEXT NOT NULL,
			cached_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			blob BLOB NOT NULL
		);
	`

	createSettingsTableSQL = `
		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`

	createSyncQueueTableSQL = `
		CREATE TABLE IF NOT EXISTS sync_queue (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			interview_id TEXT NOT NULL,
			operation TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			payload BLOB
		);
	`

	createConflictsTableSQL = `
		CREATE TABLE IF NOT EXISTS conflicts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			interview_id TEXT NOT NULL,
			detected_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			resolved_at TIMESTAMP,
			local_data BLOB NOT NULL,
			server_data BLOB NOT NULL
		);
	`

	createErrorLogsTableSQL = `
		CREATE TABLE IF NOT EXISTS error_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			operation TEXT NOT NULL,
			error TEXT NOT NULL,
			context BLOB
		);
	`

	createInterviewsSyncStatusIndexSQL = `
		CREATE INDEX IF NOT EXISTS idx_interviews_sync_status ON interviews(sync_status);
	`

	createInterviewsProtocolIndexSQL = `
		CREATE INDEX IF NOT EXISTS idx_interviews_protocol_id ON interviews(protocol_id);
	`

	createAssetsProtocolIndexSQL = `
		CREATE INDEX IF NOT EXISTS idx_assets_protocol_id ON assets(protocol_id);
	`

	createSyncQueueInterviewIndexSQL = `
		CREATE INDEX IF NOT EXISTS idx_sync_queue_interview_id ON sync_queue(interview_id, id);
	`

	createConflictsInterviewIndexSQL = `
		CREATE INDEX IF NOT EXISTS idx_conflicts_interview_id ON conflicts(interview_id);
	`

	createConflictsResolvedIndexSQL = `
		CREATE INDEX IF NOT EXISTS idx_conflicts_resolved_at ON conflicts(resolved_at);
	`
)

type migration struct {
	version int
	sql     []string
}

// migrations is the full ordered chain. CurrentSchemaVersion is the
// version of the last entry.
var migrations = []migration{
	{
		version: 1,
		sql: []string{
			createInterviewsTableSQL,
			createProtocolsTableSQL,
			createAssetsTableSQL,
			createSettingsTableSQL,
			createInterviewsSyncStatusIndexSQL,
			createInterviewsProtocolIndexSQL,
			createAssetsProtocolIndexSQL,
		},
	},
	{
		version: 2,
		sql: []string{
			createSyncQueueTableSQL,
			createConflictsTableSQL,
			createSyncQueueInterviewIndexSQL,
			createConflictsInterviewIndexSQL,
			createConflictsResolvedIndexSQL,
		},
	},
	{
		version: 3,
		sql: []string{
			createErrorLogsTableSQL,
		},
	},
}

// CurrentSchemaVersion is the schema version a freshly opened store ends
// up at.
const CurrentSchemaVersion = 3
