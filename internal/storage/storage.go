package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pendergraft/poolkeeper/internal/config"
)

// StateStore persists committed engine state.
type StateStore interface {
	SaveCommit(ctx context.Context, c *Commit) error
	LatestSnapshot(ctx context.Context) (*Snapshot, error)
}

// ReportStore handles oracle report history
type ReportStore interface {
	RecordReport(ctx context.Context, r *Report) error
	GetReport(ctx context.Context, id string) (*Report, error)
	ListReports(ctx context.Context, filter ReportFilter, pagination PaginationParams) (*PaginatedResult[Report], error)
}

// EventStore handles emitted events
type EventStore interface {
	ListEvents(ctx context.Context, filter EventFilter, pagination PaginationParams) (*PaginatedResult[Event], error)
}

// APIKeyStore handles API key operations
type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, name string, roles []string) (key string, err error)
	ValidateAPIKey(ctx context.Context, key string) (*APIKey, error)
	ListAPIKeys(ctx context.Context) ([]APIKey, error)
	RevokeAPIKey(ctx context.Context, id string) error
}

// Store combines all storage interfaces with lifecycle methods.
// Domain services define their own minimal interfaces based on their actual usage.
type Store interface {
	StateStore
	ReportStore
	EventStore
	APIKeyStore

	// Lifecycle
	Close() error
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
}

// Report statuses
const (
	ReportAccepted = "accepted"
	ReportRejected = "rejected"
)

// snapshotRetention is how many state snapshots are kept.
const snapshotRetention = 64

// Snapshot is a serialized engine state at a version
type Snapshot struct {
	ID        string
	Version   uint64
	Payload   []byte
	CreatedAt string
}

// Report is a submitted oracle report and its outcome
type Report struct {
	ID              string
	Version         uint64 // state version the report produced, 0 when rejected
	ReportTimestamp uint64
	Hash            string
	Payload         []byte
	Result          []byte
	Status          string
	ErrorCode       string
	ErrorMessage    string
	SubmittedBy     string
	CreatedAt       string
}

// Event is one event emitted by a committed operation
type Event struct {
	ID        string
	Version   uint64
	Seq       int
	Operation string
	ReportID  string
	Name      string
	Payload   []byte
	CreatedAt string
}

// Commit is everything written for one accepted state change. It is
// applied in a single transaction.
type Commit struct {
	Snapshot Snapshot
	Report   *Report
	Events   []Event
}

// APIKey represents an API key
type APIKey struct {
	ID         string
	Name       string
	KeyHash    string
	Roles      []string
	CreatedAt  string
	LastUsedAt string
	RevokedAt  string
}

// ReportFilter contains filter options for listing reports
type ReportFilter struct {
	Status string
}

// EventFilter contains filter options for listing events
type EventFilter struct {
	Name     string
	ReportID string
}

// PaginationParams contains pagination options
type PaginationParams struct {
	Limit  int
	Cursor string
}

// PaginatedResult contains paginated results
type PaginatedResult[T any] struct {
	Data       []T
	HasMore    bool
	NextCursor string
	PrevCursor string
}

// New creates a new store based on configuration
func New(cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "sqlite":
		return NewSQLiteStore(cfg.SQLite.Path, logger)
	case "postgres":
		return NewPostgresStore(cfg.Postgres.URL, logger)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
