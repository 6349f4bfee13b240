package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Register SQLite driver for database/sql
	_ "modernc.org/sqlite"
)

const (
	// errorLogCeiling is the maximum number of error log rows kept.
	// When exceeded, the oldest errorLogEvictBatch rows are removed in
	// one batch. Amortized eviction, not strict LRU.
	errorLogCeiling    = 100
	errorLogEvictBatch = 50

	// SettingInitialized is set once the store has been opened and
	// migrated at least once on this device.
	SettingInitialized = "initialized"
)

// SQLite is the Store implementation backed by a single on-device
// SQLite database. It is safe for use from multiple processes sharing
// the same database file; SQLite's own locking is the only
// cross-process mutual-exclusion boundary.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

// Open opens or creates the store at path and brings it to the current
// schema version. It fails fast with ErrStorageUnavailable when the
// database location cannot be used, rather than failing later on first
// access.
func Open(path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty database path", ErrStorageUnavailable)
	}
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return nil, fmt.Errorf("%w: directory %s does not exist", ErrStorageUnavailable, dir)
		}
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?cache=shared&mode=rwc&_journal_mode=WAL", path))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	// SQLite works best with a single connection per process.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err = db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	s := &SQLite{db: db}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := s.PutSetting(context.Background(), SettingInitialized, time.Now().Format(time.RFC3339)); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// migrate applies every migration newer than the store's recorded
// version, in order, inside one transaction. Opening a store created by
// an older build upgrades it without touching existing rows.
func (s *SQLite) migrate() error {
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, createSchemaMigrationsTableSQL); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	var currentVersion int
	if err := tx.QueryRowContext(ctx, getCurrentVersionSQL).Scan(&currentVersion); err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	for _, m := range migrations {
		if currentVersion >= m.version {
			continue
		}
		for _, statement := range m.sql {
			if _, err := tx.ExecContext(ctx, statement); err != nil {
				return fmt.Errorf("failed to execute migration %d: %w", m.version, err)
			}
		}
		if _, err := tx.ExecContext(ctx, insertMigrationSQL, m.version); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration transaction: %w", err)
	}

	return nil
}

func (s *SQLite) Close() error {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
	}
	return nil
}

// withTx runs fn inside a transaction. Commit/abort failures are
// classified and logged like any other store failure, so callers see
// ErrTransactionAborted on concurrency aborts.
func (s *SQLite) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.fail(op, err)
	}
	defer func() {
		// nolint:errcheck // Rollback after Commit is expected to fail
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return s.fail(op, err)
	}

	if err := tx.Commit(); err != nil {
		return s.fail(op, err)
	}

	return nil
}

func checkRowsAffected(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInterview(scanner rowScanner) (*Interview, error) {
	iv := &Interview{}
	err := scanner.Scan(
		&iv.ID, &iv.ProtocolID, &iv.SyncStatus,
		&iv.LastUpdated, &iv.OfflineCreated, &iv.Data,
	)
	if err != nil {
		return nil, err
	}
	return iv, nil
}

func scanConflict(scanner rowScanner) (*Conflict, error) {
	c := &Conflict{}
	var resolvedAt sql.NullTime
	err := scanner.Scan(
		&c.ID, &c.InterviewID, &c.DetectedAt, &resolvedAt,
		&c.LocalData, &c.ServerData,
	)
	if err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		c.ResolvedAt = &t
	}
	return c, nil
}

// --- Interviews ---

func (s *SQLite) CreateInterview(ctx context.Context, iv *Interview) error {
	if iv.LastUpdated.IsZero() {
		iv.LastUpdated = time.Now()
	}
	if iv.SyncStatus == "" {
		iv.SyncStatus = SyncStatusPending
	}

	query := `
		INSERT INTO interviews (id, protocol_id, sync_status, last_updated, offline_created, data)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		iv.ID, iv.ProtocolID, iv.SyncStatus, iv.LastUpdated, iv.OfflineCreated, iv.Data,
	)
	if err != nil {
		return s.fail("create interview", err)
	}
	return nil
}

func (s *SQLite) GetInterview(ctx context.Context, id string) (*Interview, error) {
	query := `
		SELECT id, protocol_id, sync_status, last_updated, offline_created, data
		FROM interviews
		WHERE id = ?
	`
	iv, err := scanInterview(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: interview %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, s.fail("get interview", err)
	}
	return iv, nil
}

func (s *SQLite) UpdateInterview(ctx context.Context, iv *Interview) error {
	iv.LastUpdated = time.Now()

	query := `
		UPDATE interviews
		SET protocol_id = ?, sync_status = ?, last_updated = ?, offline_created = ?, data = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		iv.ProtocolID, iv.SyncStatus, iv.LastUpdated, iv.OfflineCreated, iv.Data, iv.ID,
	)
	if err != nil {
		return s.fail("update interview", err)
	}
	return checkRowsAffected(result, iv.ID)
}

func (s *SQLite) UpdateInterviewStatus(ctx context.Context, id string, status SyncStatus) error {
	query := `UPDATE interviews SET sync_status = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return s.fail("update interview status", err)
	}
	return checkRowsAffected(result, id)
}

func (s *SQLite) ListInterviews(ctx context.Context, filters InterviewFilters) ([]*Interview, error) {
	query := `
		SELECT id, protocol_id, sync_status, last_updated, offline_created, data
		FROM interviews
		WHERE 1=1
	`
	args := []any{}

	if filters.SyncStatus != nil {
		query += " AND sync_status = ?"
		args = append(args, *filters.SyncStatus)
	}
	if filters.ProtocolID != nil {
		query += " AND protocol_id = ?"
		args = append(args, *filters.ProtocolID)
	}

	query += " ORDER BY last_updated DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.fail("list interviews", err)
	}
	defer rows.Close()

	var interviews []*Interview
	for rows.Next() {
		iv, err := scanInterview(rows)
		if err != nil {
			return nil, s.fail("list interviews", err)
		}
		interviews = append(interviews, iv)
	}
	if err = rows.Err(); err != nil {
		return nil, s.fail("list interviews", err)
	}

	return interviews, nil
}

func (s *SQLite) DeleteInterview(ctx context.Context, id string) error {
	return s.withTx(ctx, "delete interview", func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM interviews WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if err := checkRowsAffected(result, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM sync_queue WHERE interview_id = ?`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM conflicts WHERE interview_id = ?`, id); err != nil {
			return err
		}
		return nil
	})
}

func (s *SQLite) CreateInterviewEnqueued(ctx context.Context, iv *Interview, item *QueueItem) error {
	if iv.LastUpdated.IsZero() {
		iv.LastUpdated = time.Now()
	}
	if iv.SyncStatus == "" {
		iv.SyncStatus = SyncStatusPending
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}

	return s.withTx(ctx, "create interview", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO interviews (id, protocol_id, sync_status, last_updated, offline_created, data)
			VALUES (?, ?, ?, ?, ?, ?)`,
			iv.ID, iv.ProtocolID, iv.SyncStatus, iv.LastUpdated, iv.OfflineCreated, iv.Data,
		); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, `
			INSERT INTO sync_queue (interview_id, operation, created_at, payload)
			VALUES (?, ?, ?, ?)`,
			item.InterviewID, item.Operation, item.CreatedAt, item.Payload,
		)
		if err != nil {
			return err
		}
		id, err := result.LastInsertId()
		if err != nil {
			return err
		}
		item.ID = id
		return nil
	})
}

// --- Protocols ---

func (s *SQLite) PutProtocol(ctx context.Context, p *Protocol) error {
	if p.CachedAt.IsZero() {
		p.CachedAt = time.Now()
	}

	// Re-caching supersedes the previous copy.
	query := `
		INSERT INTO protocols (id, name, cached_at, data)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, cached_at = excluded.cached_at, data = excluded.data
	`
	_, err := s.db.ExecContext(ctx, query, p.ID, p.Name, p.CachedAt, p.Data)
	if err != nil {
		return s.fail("put protocol", err)
	}
	return nil
}

func (s *SQLite) GetProtocol(ctx context.Context, id string) (*Protocol, error) {
	query := `SELECT id, name, cached_at, data FROM protocols WHERE id = ?`

	p := &Protocol{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Name, &p.CachedAt, &p.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: protocol %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, s.fail("get protocol", err)
	}
	return p, nil
}

func (s *SQLite) ListProtocols(ctx context.Context) ([]*Protocol, error) {
	query := `SELECT id, name, cached_at, data FROM protocols ORDER BY cached_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, s.fail("list protocols", err)
	}
	defer rows.Close()

	var protocols []*Protocol
	for rows.Next() {
		p := &Protocol{}
		if err := rows.Scan(&p.ID, &p.Name, &p.CachedAt, &p.Data); err != nil {
			return nil, s.fail("list protocols", err)
		}
		protocols = append(protocols, p)
	}
	if err = rows.Err(); err != nil {
		return nil, s.fail("list protocols", err)
	}

	return protocols, nil
}

func (s *SQLite) DeleteProtocol(ctx context.Context, id string) error {
	return s.withTx(ctx, "delete protocol", func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM protocols WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if err := checkRowsAffected(result, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM assets WHERE protocol_id = ?`, id); err != nil {
			return err
		}
		return nil
	})
}

// --- Assets ---

// AssetKey builds the composite cache key for an asset.
func AssetKey(protocolID, assetID string) string {
	return protocolID + "/" + assetID
}

func (s *SQLite) PutAsset(ctx context.Context, a *Asset) error {
	if a.Key == "" {
		a.Key = AssetKey(a.ProtocolID, a.AssetID)
	}
	if a.CachedAt.IsZero() {
		a.CachedAt = time.Now()
	}

	// At most one cached copy per asset per protocol.
	query := `
		INSERT INTO assets (key, asset_id, protocol_id, cached_at, blob)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET cached_at = excluded.cached_at, blob = excluded.blob
	`
	_, err := s.db.ExecContext(ctx, query, a.Key, a.AssetID, a.ProtocolID, a.CachedAt, a.Blob)
	if err != nil {
		return s.fail("put asset", err)
	}
	return nil
}

func (s *SQLite) GetAsset(ctx context.Context, protocolID, assetID string) (*Asset, error) {
	query := `SELECT key, asset_id, protocol_id, cached_at, blob FROM assets WHERE key = ?`

	a := &Asset{}
	err := s.db.QueryRowContext(ctx, query, AssetKey(protocolID, assetID)).
		Scan(&a.Key, &a.AssetID, &a.ProtocolID, &a.CachedAt, &a.Blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: asset %s", ErrNotFound, AssetKey(protocolID, assetID))
	}
	if err != nil {
		return nil, s.fail("get asset", err)
	}
	return a, nil
}

func (s *SQLite) HasAsset(ctx context.Context, protocolID, assetID string) (bool, error) {
	query := `SELECT COUNT(*) FROM assets WHERE key = ?`

	var count int
	if err := s.db.QueryRowContext(ctx, query, AssetKey(protocolID, assetID)).Scan(&count); err != nil {
		return false, s.fail("check asset", err)
	}
	return count > 0, nil
}

func (s *SQLite) CountAssets(ctx context.Context, protocolID string) (int, error) {
	query := `SELECT COUNT(*) FROM assets WHERE protocol_id = ?`

	var count int
	if err := s.db.QueryRowContext(ctx, query, protocolID).Scan(&count); err != nil {
		return 0, s.fail("count assets", err)
	}
	return count, nil
}

func (s *SQLite) DeleteAsset(ctx context.Context, protocolID, assetID string) error {
	query := `DELETE FROM assets WHERE key = ?`

	if _, err := s.db.ExecContext(ctx, query, AssetKey(protocolID, assetID)); err != nil {
		return s.fail("delete asset", err)
	}
	return nil
}

func (s *SQLite) DeleteAssetsByProtocol(ctx context.Context, protocolID string) error {
	query := `DELETE FROM assets WHERE protocol_id = ?`

	if _, err := s.db.ExecContext(ctx, query, protocolID); err != nil {
		return s.fail("delete protocol assets", err)
	}
	return nil
}

// --- Sync queue ---

func (s *SQLite) AppendQueueItem(ctx context.Context, item *QueueItem) error {
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO sync_queue (interview_id, operation, created_at, payload)
		VALUES (?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		item.InterviewID, item.Operation, item.CreatedAt, item.Payload,
	)
	if err != nil {
		return s.fail("append queue item", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return s.fail("append queue item", err)
	}
	item.ID = id
	return nil
}

// QueueItems returns the replay log for one interview in creation
// order. Later items may depend on earlier ones; never reorder.
func (s *SQLite) QueueItems(ctx context.Context, interviewID string) ([]*QueueItem, error) {
	query := `
		SELECT id, interview_id, operation, created_at, payload
		FROM sync_queue
		WHERE interview_id = ?
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, interviewID)
	if err != nil {
		return nil, s.fail("list queue items", err)
	}
	defer rows.Close()

	var items []*QueueItem
	for rows.Next() {
		item := &QueueItem{}
		if err := rows.Scan(&item.ID, &item.InterviewID, &item.Operation, &item.CreatedAt, &item.Payload); err != nil {
			return nil, s.fail("list queue items", err)
		}
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return nil, s.fail("list queue items", err)
	}

	return items, nil
}

func (s *SQLite) DeleteQueueItem(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id)
	if err != nil {
		return s.fail("delete queue item", err)
	}
	return checkRowsAffected(result, fmt.Sprintf("queue item %d", id))
}

func (s *SQLite) PendingQueueInterviews(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT interview_id FROM sync_queue ORDER BY interview_id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, s.fail("list pending interviews", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, s.fail("list pending interviews", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, s.fail("list pending interviews", err)
	}

	return ids, nil
}

// --- Conflicts ---

func (s *SQLite) CreateConflict(ctx context.Context, c *Conflict) error {
	if c.DetectedAt.IsZero() {
		c.DetectedAt = time.Now()
	}

	query := `
		INSERT INTO conflicts (interview_id, detected_at, resolved_at, local_data, server_data)
		VALUES (?, ?, NULL, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		c.InterviewID, c.DetectedAt, c.LocalData, c.ServerData,
	)
	if err != nil {
		return s.fail("create conflict", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return s.fail("create conflict", err)
	}
	c.ID = id
	return nil
}

func (s *SQLite) GetConflict(ctx context.Context, id int64) (*Conflict, error) {
	query := `
		SELECT id, interview_id, detected_at, resolved_at, local_data, server_data
		FROM conflicts
		WHERE id = ?
	`
	c, err := scanConflict(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: conflict %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, s.fail("get conflict", err)
	}
	return c, nil
}

func (s *SQLite) UnresolvedConflicts(ctx context.Context) ([]*Conflict, error) {
	query := `
		SELECT id, interview_id, detected_at, resolved_at, local_data, server_data
		FROM conflicts
		WHERE resolved_at IS NULL
		ORDER BY detected_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, s.fail("list unresolved conflicts", err)
	}
	defer rows.Close()

	var conflicts []*Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, s.fail("list unresolved conflicts", err)
		}
		conflicts = append(conflicts, c)
	}
	if err = rows.Err(); err != nil {
		return nil, s.fail("list unresolved conflicts", err)
	}

	return conflicts, nil
}

func (s *SQLite) MarkConflictResolved(ctx context.Context, id int64, chosenData []byte, newStatus SyncStatus) error {
	return s.withTx(ctx, "resolve conflict", func(tx *sql.Tx) error {
		var interviewID string
		err := tx.QueryRowContext(ctx,
			`SELECT interview_id FROM conflicts WHERE id = ? AND resolved_at IS NULL`, id,
		).Scan(&interviewID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: unresolved conflict %d", ErrNotFound, id)
		}
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE conflicts SET resolved_at = ? WHERE id = ?`, time.Now(), id,
		); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx,
			`UPDATE interviews SET data = ?, sync_status = ?, last_updated = ? WHERE id = ?`,
			chosenData, newStatus, time.Now(), interviewID,
		)
		if err != nil {
			return err
		}
		return checkRowsAffected(result, interviewID)
	})
}

// --- ID remapping ---

// RemapInterviewID rewrites the temporary offline id to the permanent
// server id across every table that references interviews. Atomic so a
// concurrent reader never sees a half-remapped interview.
func (s *SQLite) RemapInterviewID(ctx context.Context, tempID, realID string) error {
	return s.withTx(ctx, "remap interview id", func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE interviews SET id = ? WHERE id = ?`, realID, tempID,
		)
		if err != nil {
			return err
		}
		if err := checkRowsAffected(result, tempID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE sync_queue SET interview_id = ? WHERE interview_id = ?`, realID, tempID,
		); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE conflicts SET interview_id = ? WHERE interview_id = ?`, realID, tempID,
		); err != nil {
			return err
		}
		return nil
	})
}

// --- Settings ---

func (s *SQLite) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: setting %s", ErrNotFound, key)
	}
	if err != nil {
		return "", s.fail("get setting", err)
	}
	return value, nil
}

func (s *SQLite) PutSetting(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`
	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return s.fail("put setting", err)
	}
	return nil
}

// --- Error log ---

// appendErrorLog writes one entry and evicts the oldest batch once the
// ceiling is exceeded. Called from the failure path, so it must never
// call fail itself.
func (s *SQLite) appendErrorLog(operation, message string, contextData []byte) error {
	ctx := context.Background()

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO error_logs (timestamp, operation, error, context) VALUES (?, ?, ?, ?)`,
		time.Now(), operation, message, contextData,
	); err != nil {
		return err
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM error_logs`).Scan(&count); err != nil {
		return err
	}
	if count <= errorLogCeiling {
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM error_logs WHERE id IN (
			SELECT id FROM error_logs ORDER BY id ASC LIMIT ?
		)`, errorLogEvictBatch,
	)
	return err
}

func (s *SQLite) ListErrorLogs(ctx context.Context) ([]*ErrorLogEntry, error) {
	query := `SELECT id, timestamp, operation, error, context FROM error_logs ORDER BY id DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list error logs: %w", err)
	}
	defer rows.Close()

	var entries []*ErrorLogEntry
	for rows.Next() {
		e := &ErrorLogEntry{}
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Operation, &e.Error, &e.Context); err != nil {
			return nil, fmt.Errorf("failed to scan error log entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating error logs: %w", err)
	}

	return entries, nil
}
