package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate runs database migrations
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	schema := `
	-- State snapshots
	CREATE TABLE IF NOT EXISTS state_snapshots (
		id TEXT PRIMARY KEY,
		version INTEGER NOT NULL UNIQUE,
		payload TEXT NOT NULL,
		created_at TEXT DEFAULT (datetime('now'))
	);

	-- Oracle reports, accepted and rejected
	CREATE TABLE IF NOT EXISTS reports (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		version INTEGER NOT NULL DEFAULT 0,
		report_timestamp INTEGER NOT NULL,
		hash TEXT NOT NULL,
		payload TEXT NOT NULL,
		result TEXT,
		status TEXT NOT NULL,
		error_code TEXT,
		error_message TEXT,
		submitted_by TEXT,
		created_at TEXT DEFAULT (datetime('now'))
	);

	-- Events
	CREATE TABLE IF NOT EXISTS events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		version INTEGER NOT NULL,
		event_index INTEGER NOT NULL,
		operation TEXT NOT NULL,
		report_id TEXT REFERENCES reports(id),
		name TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at TEXT DEFAULT (datetime('now')),
		UNIQUE(version, event_index)
	);

	-- API keys
	CREATE TABLE IF NOT EXISTS api_keys (
		id TEXT PRIMARY KEY,
		key_hash TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		scopes TEXT,
		created_at TEXT DEFAULT (datetime('now')),
		last_used_at TEXT,
		revoked_at TEXT
	);

	-- Indexes
	CREATE INDEX IF NOT EXISTS idx_reports_status ON reports(status);
	CREATE INDEX IF NOT EXISTS idx_reports_hash ON reports(hash);
	CREATE INDEX IF NOT EXISTS idx_events_name ON events(name);
	CREATE INDEX IF NOT EXISTS idx_events_report ON events(report_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.logger.Info("database migrations complete")
	return nil
}

// SaveCommit writes a snapshot, its report and its events atomically
func (s *SQLiteStore) SaveCommit(ctx context.Context, c *Commit) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM state_snapshots WHERE version = ?", int64(c.Snapshot.Version)).Scan(&exists); err != nil {
		return err
	}
	if exists > 0 {
		return ErrVersionExists
	}

	if c.Snapshot.ID == "" {
		c.Snapshot.ID = generateID()
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO state_snapshots (id, version, payload, created_at) VALUES (?, ?, ?, datetime('now'))",
		c.Snapshot.ID, int64(c.Snapshot.Version), string(c.Snapshot.Payload),
	)
	if err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}

	var reportID sql.NullString
	if c.Report != nil {
		if err := fillReportDefaults(c.Report); err != nil {
			return err
		}
		if err := insertReportSQLite(ctx, tx, c.Report); err != nil {
			return err
		}
		reportID = sql.NullString{String: c.Report.ID, Valid: true}
	}

	for i := range c.Events {
		e := &c.Events[i]
		if e.ID == "" {
			e.ID = generateID()
		}
		e.Version = c.Snapshot.Version
		if reportID.Valid {
			e.ReportID = reportID.String
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO events (id, version, event_index, operation, report_id, name, payload, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, datetime('now'))
		`, e.ID, int64(e.Version), e.Seq, e.Operation, reportID, e.Name, string(e.Payload))
		if err != nil {
			return fmt.Errorf("inserting event %s: %w", e.Name, err)
		}
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM state_snapshots WHERE version <= ?", int64(c.Snapshot.Version)-snapshotRetention)
	if err != nil {
		return fmt.Errorf("pruning snapshots: %w", err)
	}

	return tx.Commit()
}

func insertReportSQLite(ctx context.Context, tx *sql.Tx, r *Report) error {
	query := `
		INSERT INTO reports (id, version, report_timestamp, hash, payload, result, status, error_code, error_message, submitted_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
	`
	_, err := tx.ExecContext(ctx, query, r.ID, int64(r.Version), int64(r.ReportTimestamp), r.Hash, string(r.Payload),
		nullString(string(r.Result)), r.Status, nullString(r.ErrorCode), nullString(r.ErrorMessage), nullString(r.SubmittedBy))
	if err != nil {
		return fmt.Errorf("inserting report: %w", err)
	}
	return nil
}

// LatestSnapshot returns the snapshot with the highest version
func (s *SQLiteStore) LatestSnapshot(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	var version int64
	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, version, payload, created_at FROM state_snapshots ORDER BY version DESC LIMIT 1",
	).Scan(&snap.ID, &version, &payload, &snap.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	snap.Version = uint64(version)
	snap.Payload = []byte(payload)
	return &snap, nil
}

// RecordReport stores a report outside of a state commit, used for rejections
func (s *SQLiteStore) RecordReport(ctx context.Context, r *Report) error {
	if err := fillReportDefaults(r); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := insertReportSQLite(ctx, tx, r); err != nil {
		return err
	}
	return tx.Commit()
}

const sqliteReportColumns = `seq, id, version, report_timestamp, hash, payload, result, status, error_code, error_message, submitted_by, created_at`

func scanSQLiteReport(row interface{ Scan(...any) error }) (*Report, int64, error) {
	var (
		r                                  Report
		seq, version, ts                   int64
		payload                            string
		result, code, message, submittedBy sql.NullString
	)
	err := row.Scan(&seq, &r.ID, &version, &ts, &r.Hash, &payload, &result, &r.Status, &code, &message, &submittedBy, &r.CreatedAt)
	if err != nil {
		return nil, 0, err
	}
	r.Version = uint64(version)
	r.ReportTimestamp = uint64(ts)
	r.Payload = []byte(payload)
	if result.Valid {
		r.Result = []byte(result.String)
	}
	r.ErrorCode = code.String
	r.ErrorMessage = message.String
	r.SubmittedBy = submittedBy.String
	return &r, seq, nil
}

// GetReport retrieves a report by id
func (s *SQLiteStore) GetReport(ctx context.Context, id string) (*Report, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+sqliteReportColumns+" FROM reports WHERE id = ?", id)
	r, _, err := scanSQLiteReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// ListReports lists reports newest first with cursor-based pagination
func (s *SQLiteStore) ListReports(ctx context.Context, filter ReportFilter, pagination PaginationParams) (*PaginatedResult[Report], error) {
	cursor, err := parseCursor(pagination.Cursor)
	if err != nil {
		return nil, err
	}
	limit := pageLimit(pagination.Limit)

	var where []string
	var args []any
	if cursor > 0 {
		where = append(where, "seq < ?")
		args = append(args, cursor)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	query := "SELECT " + sqliteReportColumns + " FROM reports"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq DESC LIMIT ?"
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []Report
	var seqs []int64
	for rows.Next() {
		r, seq, err := scanSQLiteReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *r)
		seqs = append(seqs, seq)
	}

	hasMore := len(reports) > limit
	var nextCursor string
	if hasMore {
		reports = reports[:limit]
		nextCursor = strconv.FormatInt(seqs[limit-1], 10)
	}

	return &PaginatedResult[Report]{
		Data:       reports,
		HasMore:    hasMore,
		NextCursor: nextCursor,
	}, rows.Err()
}

// ListEvents lists events newest first with cursor-based pagination
func (s *SQLiteStore) ListEvents(ctx context.Context, filter EventFilter, pagination PaginationParams) (*PaginatedResult[Event], error) {
	cursor, err := parseCursor(pagination.Cursor)
	if err != nil {
		return nil, err
	}
	limit := pageLimit(pagination.Limit)

	var where []string
	var args []any
	if cursor > 0 {
		where = append(where, "seq < ?")
		args = append(args, cursor)
	}
	if filter.Name != "" {
		where = append(where, "name = ?")
		args = append(args, filter.Name)
	}
	if filter.ReportID != "" {
		where = append(where, "report_id = ?")
		args = append(args, filter.ReportID)
	}
	query := "SELECT seq, id, version, event_index, operation, report_id, name, payload, created_at FROM events"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq DESC LIMIT ?"
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	var seqs []int64
	for rows.Next() {
		var (
			e            Event
			seq, version int64
			reportID     sql.NullString
			payload      string
		)
		if err := rows.Scan(&seq, &e.ID, &version, &e.Seq, &e.Operation, &reportID, &e.Name, &payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Version = uint64(version)
		e.ReportID = reportID.String
		e.Payload = []byte(payload)
		events = append(events, e)
		seqs = append(seqs, seq)
	}

	hasMore := len(events) > limit
	var nextCursor string
	if hasMore {
		events = events[:limit]
		nextCursor = strconv.FormatInt(seqs[limit-1], 10)
	}

	return &PaginatedResult[Event]{
		Data:       events,
		HasMore:    hasMore,
		NextCursor: nextCursor,
	}, rows.Err()
}

// CreateAPIKey creates a new API key
func (s *SQLiteStore) CreateAPIKey(ctx context.Context, name string, roles []string) (string, error) {
	key := generateAPIKey()
	hash := hashAPIKey(key)
	id := generateID()
	_, err := s.db.ExecContext(ctx, "INSERT INTO api_keys (id, key_hash, name, scopes, created_at) VALUES (?, ?, ?, ?, datetime('now'))", id, hash, name, string(encodeRoles(roles)))
	if err != nil {
		return "", err
	}
	return key, nil
}

// ValidateAPIKey validates an API key
func (s *SQLiteStore) ValidateAPIKey(ctx context.Context, key string) (*APIKey, error) {
	hash := hashAPIKey(key)
	var ak APIKey
	var scopes sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT id, key_hash, name, scopes, created_at FROM api_keys WHERE key_hash = ? AND revoked_at IS NULL", hash).Scan(
		&ak.ID, &ak.KeyHash, &ak.Name, &scopes, &ak.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	ak.Roles = decodeRoles([]byte(scopes.String))
	// Update last used
	_, _ = s.db.ExecContext(ctx, "UPDATE api_keys SET last_used_at = datetime('now') WHERE id = ?", ak.ID)
	return &ak, nil
}

// ListAPIKeys lists all API keys
func (s *SQLiteStore) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, scopes, created_at, last_used_at FROM api_keys WHERE revoked_at IS NULL ORDER BY created_at")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		var k APIKey
		var scopes, lastUsed sql.NullString
		if err := rows.Scan(&k.ID, &k.Name, &scopes, &k.CreatedAt, &lastUsed); err != nil {
			return nil, err
		}
		k.Roles = decodeRoles([]byte(scopes.String))
		if lastUsed.Valid {
			k.LastUsedAt = lastUsed.String
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// RevokeAPIKey revokes an API key
func (s *SQLiteStore) RevokeAPIKey(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE api_keys SET revoked_at = datetime('now') WHERE id = ? AND revoked_at IS NULL", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
