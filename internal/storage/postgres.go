package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new Postgres store
func NewPostgresStore(url string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate runs database migrations
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := `
	-- State snapshots
	CREATE TABLE IF NOT EXISTS state_snapshots (
		id UUID PRIMARY KEY,
		version BIGINT NOT NULL UNIQUE,
		payload JSONB NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW()
	);

	-- Oracle reports, accepted and rejected
	CREATE TABLE IF NOT EXISTS reports (
		seq BIGSERIAL PRIMARY KEY,
		id UUID NOT NULL UNIQUE,
		version BIGINT NOT NULL DEFAULT 0,
		report_timestamp BIGINT NOT NULL,
		hash TEXT NOT NULL,
		payload JSONB NOT NULL,
		result JSONB,
		status TEXT NOT NULL,
		error_code TEXT,
		error_message TEXT,
		submitted_by TEXT,
		created_at TIMESTAMPTZ DEFAULT NOW()
	);

	-- Events
	CREATE TABLE IF NOT EXISTS events (
		seq BIGSERIAL PRIMARY KEY,
		id UUID NOT NULL UNIQUE,
		version BIGINT NOT NULL,
		event_index INTEGER NOT NULL,
		operation TEXT NOT NULL,
		report_id UUID REFERENCES reports(id),
		name TEXT NOT NULL,
		payload JSONB NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		UNIQUE(version, event_index)
	);

	-- API keys
	CREATE TABLE IF NOT EXISTS api_keys (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		key_hash TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		scopes JSONB,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		last_used_at TIMESTAMPTZ,
		revoked_at TIMESTAMPTZ
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
func (s *PostgresStore) SaveCommit(ctx context.Context, c *Commit) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if c.Snapshot.ID == "" {
		c.Snapshot.ID = generateID()
	}
	res, err := tx.ExecContext(ctx,
		"INSERT INTO state_snapshots (id, version, payload) VALUES ($1, $2, $3) ON CONFLICT (version) DO NOTHING",
		c.Snapshot.ID, int64(c.Snapshot.Version), c.Snapshot.Payload,
	)
	if err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrVersionExists
	}

	var reportID sql.NullString
	if c.Report != nil {
		if err := fillReportDefaults(c.Report); err != nil {
			return err
		}
		if err := insertReportPostgres(ctx, tx, c.Report); err != nil {
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
			INSERT INTO events (id, version, event_index, operation, report_id, name, payload)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, e.ID, int64(e.Version), e.Seq, e.Operation, reportID, e.Name, e.Payload)
		if err != nil {
			return fmt.Errorf("inserting event %s: %w", e.Name, err)
		}
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM state_snapshots WHERE version <= $1", int64(c.Snapshot.Version)-snapshotRetention)
	if err != nil {
		return fmt.Errorf("pruning snapshots: %w", err)
	}

	return tx.Commit()
}

func insertReportPostgres(ctx context.Context, tx *sql.Tx, r *Report) error {
	var result any
	if len(r.Result) > 0 {
		result = r.Result
	}
	query := `
		INSERT INTO reports (id, version, report_timestamp, hash, payload, result, status, error_code, error_message, submitted_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := tx.ExecContext(ctx, query, r.ID, int64(r.Version), int64(r.ReportTimestamp), r.Hash, r.Payload,
		result, r.Status, nullString(r.ErrorCode), nullString(r.ErrorMessage), nullString(r.SubmittedBy))
	if err != nil {
		return fmt.Errorf("inserting report: %w", err)
	}
	return nil
}

// LatestSnapshot returns the snapshot with the highest version
func (s *PostgresStore) LatestSnapshot(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	var version int64
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx,
		"SELECT id, version, payload, created_at FROM state_snapshots ORDER BY version DESC LIMIT 1",
	).Scan(&snap.ID, &version, &snap.Payload, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	snap.Version = uint64(version)
	snap.CreatedAt = createdAt.Format("2006-01-02 15:04:05")
	return &snap, nil
}

// RecordReport stores a report outside of a state commit, used for rejections
func (s *PostgresStore) RecordReport(ctx context.Context, r *Report) error {
	if err := fillReportDefaults(r); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := insertReportPostgres(ctx, tx, r); err != nil {
		return err
	}
	return tx.Commit()
}

const postgresReportColumns = `seq, id, version, report_timestamp, hash, payload, result, status, error_code, error_message, submitted_by, created_at`

func scanPostgresReport(row interface{ Scan(...any) error }) (*Report, int64, error) {
	var (
		r                          Report
		seq, version, ts           int64
		code, message, submittedBy sql.NullString
		createdAt                  time.Time
	)
	err := row.Scan(&seq, &r.ID, &version, &ts, &r.Hash, &r.Payload, &r.Result, &r.Status, &code, &message, &submittedBy, &createdAt)
	if err != nil {
		return nil, 0, err
	}
	r.Version = uint64(version)
	r.ReportTimestamp = uint64(ts)
	r.ErrorCode = code.String
	r.ErrorMessage = message.String
	r.SubmittedBy = submittedBy.String
	r.CreatedAt = createdAt.Format("2006-01-02 15:04:05")
	return &r, seq, nil
}

// GetReport retrieves a report by id
func (s *PostgresStore) GetReport(ctx context.Context, id string) (*Report, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+postgresReportColumns+" FROM reports WHERE id::text = $1", id)
	r, _, err := scanPostgresReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// where builds a WHERE clause with numbered placeholders
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, strings.Replace(clause, "?", "$"+strconv.Itoa(len(w.args)), 1))
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func (w *where) limit(n int) string {
	w.args = append(w.args, n)
	return " LIMIT $" + strconv.Itoa(len(w.args))
}

// ListReports lists reports newest first with cursor-based pagination
func (s *PostgresStore) ListReports(ctx context.Context, filter ReportFilter, pagination PaginationParams) (*PaginatedResult[Report], error) {
	cursor, err := parseCursor(pagination.Cursor)
	if err != nil {
		return nil, err
	}
	limit := pageLimit(pagination.Limit)

	var w where
	if cursor > 0 {
		w.add("seq < ?", cursor)
	}
	if filter.Status != "" {
		w.add("status = ?", filter.Status)
	}
	query := "SELECT " + postgresReportColumns + " FROM reports" + w.String() + " ORDER BY seq DESC"
	query += w.limit(limit + 1)

	rows, err := s.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []Report
	var seqs []int64
	for rows.Next() {
		r, seq, err := scanPostgresReport(rows)
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
func (s *PostgresStore) ListEvents(ctx context.Context, filter EventFilter, pagination PaginationParams) (*PaginatedResult[Event], error) {
	cursor, err := parseCursor(pagination.Cursor)
	if err != nil {
		return nil, err
	}
	limit := pageLimit(pagination.Limit)

	var w where
	if cursor > 0 {
		w.add("seq < ?", cursor)
	}
	if filter.Name != "" {
		w.add("name = ?", filter.Name)
	}
	if filter.ReportID != "" {
		w.add("report_id::text = ?", filter.ReportID)
	}
	query := "SELECT seq, id, version, event_index, operation, report_id, name, payload, created_at FROM events" + w.String() + " ORDER BY seq DESC"
	query += w.limit(limit + 1)

	rows, err := s.db.QueryContext(ctx, query, w.args...)
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
			createdAt    time.Time
		)
		if err := rows.Scan(&seq, &e.ID, &version, &e.Seq, &e.Operation, &reportID, &e.Name, &e.Payload, &createdAt); err != nil {
			return nil, err
		}
		e.Version = uint64(version)
		e.ReportID = reportID.String
		e.CreatedAt = createdAt.Format("2006-01-02 15:04:05")
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
func (s *PostgresStore) CreateAPIKey(ctx context.Context, name string, roles []string) (string, error) {
	key := generateAPIKey()
	hash := hashAPIKey(key)
	id := generateID()
	_, err := s.db.ExecContext(ctx, "INSERT INTO api_keys (id, key_hash, name, scopes) VALUES ($1, $2, $3, $4)", id, hash, name, encodeRoles(roles))
	if err != nil {
		return "", err
	}
	return key, nil
}

// ValidateAPIKey validates an API key
func (s *PostgresStore) ValidateAPIKey(ctx context.Context, key string) (*APIKey, error) {
	hash := hashAPIKey(key)
	var ak APIKey
	var createdAt time.Time
	var scopes []byte
	err := s.db.QueryRowContext(ctx, "SELECT id, key_hash, name, scopes, created_at FROM api_keys WHERE key_hash = $1 AND revoked_at IS NULL", hash).Scan(
		&ak.ID, &ak.KeyHash, &ak.Name, &scopes, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	ak.Roles = decodeRoles(scopes)
	ak.CreatedAt = createdAt.Format("2006-01-02 15:04:05")
	// Update last used
	_, _ = s.db.ExecContext(ctx, "UPDATE api_keys SET last_used_at = NOW() WHERE id = $1", ak.ID)
	return &ak, nil
}

// ListAPIKeys lists all API keys
func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, scopes, created_at, last_used_at FROM api_keys WHERE revoked_at IS NULL ORDER BY created_at")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		var k APIKey
		var createdAt time.Time
		var lastUsed sql.NullTime
		var scopes []byte
		if err := rows.Scan(&k.ID, &k.Name, &scopes, &createdAt, &lastUsed); err != nil {
			return nil, err
		}
		k.Roles = decodeRoles(scopes)
		k.CreatedAt = createdAt.Format("2006-01-02 15:04:05")
		if lastUsed.Valid {
			k.LastUsedAt = lastUsed.Time.Format("2006-01-02 15:04:05")
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// RevokeAPIKey revokes an API key
func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE api_keys SET revoked_at = NOW() WHERE id::text = $1 AND revoked_at IS NULL", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
