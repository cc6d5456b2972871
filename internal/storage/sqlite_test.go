package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"log/slog"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "poolkeeper-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	dbPath := filepath.Join(tmpDir, "test.db")
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := NewSQLiteStore(dbPath, logger)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return store
}

func TestSQLiteStore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("LatestSnapshotEmpty", func(t *testing.T) {
		_, err := store.LatestSnapshot(ctx)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("LatestSnapshot() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("SaveCommitWithReport", func(t *testing.T) {
		c := &Commit{
			Snapshot: Snapshot{Version: 1, Payload: []byte(`{"version":1}`)},
			Report: &Report{
				Version:         1,
				ReportTimestamp: 1700000000,
				Payload:         []byte(`{"clValidators":3}`),
				Result:          []byte(`{"postTotalShares":"1"}`),
				Status:          ReportAccepted,
				SubmittedBy:     "oracle-key",
			},
			Events: []Event{
				{Seq: 0, Operation: "handleOracleReport", Name: "CLValidatorsUpdated", Payload: []byte(`{}`)},
				{Seq: 1, Operation: "handleOracleReport", Name: "TokenRebased", Payload: []byte(`{}`)},
			},
		}
		if err := store.SaveCommit(ctx, c); err != nil {
			t.Fatalf("SaveCommit() error = %v", err)
		}
		if c.Report.ID == "" || c.Report.Hash == "" {
			t.Fatal("SaveCommit() did not assign report id and hash")
		}

		snap, err := store.LatestSnapshot(ctx)
		if err != nil {
			t.Fatalf("LatestSnapshot() error = %v", err)
		}
		if snap.Version != 1 || string(snap.Payload) != `{"version":1}` {
			t.Errorf("LatestSnapshot() = %d %s", snap.Version, snap.Payload)
		}

		got, err := store.GetReport(ctx, c.Report.ID)
		if err != nil {
			t.Fatalf("GetReport() error = %v", err)
		}
		if got.Status != ReportAccepted || got.ReportTimestamp != 1700000000 || got.SubmittedBy != "oracle-key" {
			t.Errorf("GetReport() = %+v", got)
		}
		if string(got.Result) != `{"postTotalShares":"1"}` {
			t.Errorf("GetReport().Result = %s", got.Result)
		}

		events, err := store.ListEvents(ctx, EventFilter{ReportID: c.Report.ID}, PaginationParams{Limit: 10})
		if err != nil {
			t.Fatalf("ListEvents() error = %v", err)
		}
		if len(events.Data) != 2 {
			t.Fatalf("ListEvents() returned %d events, want 2", len(events.Data))
		}
		if events.Data[0].Name != "TokenRebased" {
			t.Errorf("ListEvents()[0].Name = %s, want newest first", events.Data[0].Name)
		}
	})

	t.Run("SaveCommitDuplicateVersion", func(t *testing.T) {
		err := store.SaveCommit(ctx, &Commit{Snapshot: Snapshot{Version: 1, Payload: []byte(`{}`)}})
		if !errors.Is(err, ErrVersionExists) {
			t.Errorf("SaveCommit() error = %v, want ErrVersionExists", err)
		}
	})

	t.Run("RecordRejectedReport", func(t *testing.T) {
		r := &Report{
			ReportTimestamp: 1700003600,
			Payload:         []byte(`{"clValidators":1}`),
			Status:          ReportRejected,
			ErrorCode:       "REPORTED_LESS_VALIDATORS",
			ErrorMessage:    "REPORTED_LESS_VALIDATORS",
		}
		if err := store.RecordReport(ctx, r); err != nil {
			t.Fatalf("RecordReport() error = %v", err)
		}
		got, err := store.GetReport(ctx, r.ID)
		if err != nil {
			t.Fatalf("GetReport() error = %v", err)
		}
		if got.ErrorCode != "REPORTED_LESS_VALIDATORS" || got.Version != 0 || got.Result != nil {
			t.Errorf("GetReport() = %+v", got)
		}
	})

	t.Run("RecordReportWithoutPayload", func(t *testing.T) {
		if err := store.RecordReport(ctx, &Report{Status: ReportRejected}); !errors.Is(err, ErrReportRequired) {
			t.Errorf("RecordReport() error = %v, want ErrReportRequired", err)
		}
	})

	t.Run("ListReportsByStatus", func(t *testing.T) {
		result, err := store.ListReports(ctx, ReportFilter{Status: ReportRejected}, PaginationParams{Limit: 10})
		if err != nil {
			t.Fatalf("ListReports() error = %v", err)
		}
		if len(result.Data) != 1 || result.Data[0].Status != ReportRejected {
			t.Errorf("ListReports() = %+v", result.Data)
		}
	})

	t.Run("GetReportNotFound", func(t *testing.T) {
		_, err := store.GetReport(ctx, "missing")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("GetReport() error = %v, want ErrNotFound", err)
		}
	})
}

func TestListReportsPagination(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		r := &Report{ReportTimestamp: uint64(1000 + i), Payload: []byte(`{}`), Status: ReportRejected}
		if err := store.RecordReport(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	page1, err := store.ListReports(ctx, ReportFilter{}, PaginationParams{Limit: 3})
	if err != nil {
		t.Fatalf("ListReports() error = %v", err)
	}
	if len(page1.Data) != 3 || !page1.HasMore || page1.NextCursor == "" {
		t.Fatalf("page1 = %d items, hasMore=%v, cursor=%q", len(page1.Data), page1.HasMore, page1.NextCursor)
	}
	if page1.Data[0].ReportTimestamp != 1004 {
		t.Errorf("page1[0].ReportTimestamp = %d, want 1004", page1.Data[0].ReportTimestamp)
	}

	page2, err := store.ListReports(ctx, ReportFilter{}, PaginationParams{Limit: 3, Cursor: page1.NextCursor})
	if err != nil {
		t.Fatalf("ListReports() error = %v", err)
	}
	if len(page2.Data) != 2 || page2.HasMore {
		t.Errorf("page2 = %d items, hasMore=%v", len(page2.Data), page2.HasMore)
	}
	if page2.Data[1].ReportTimestamp != 1000 {
		t.Errorf("page2[1].ReportTimestamp = %d, want 1000", page2.Data[1].ReportTimestamp)
	}

	if _, err := store.ListReports(ctx, ReportFilter{}, PaginationParams{Cursor: "abc"}); !errors.Is(err, ErrInvalidCursor) {
		t.Errorf("ListReports() with bad cursor error = %v, want ErrInvalidCursor", err)
	}
}

func TestSnapshotRetention(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for v := uint64(1); v <= snapshotRetention+5; v++ {
		if err := store.SaveCommit(ctx, &Commit{Snapshot: Snapshot{Version: v, Payload: []byte(`{}`)}}); err != nil {
			t.Fatalf("SaveCommit(%d) error = %v", v, err)
		}
	}

	var count int
	if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM state_snapshots").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != snapshotRetention {
		t.Errorf("kept %d snapshots, want %d", count, snapshotRetention)
	}

	snap, err := store.LatestSnapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Version != snapshotRetention+5 {
		t.Errorf("LatestSnapshot().Version = %d", snap.Version)
	}
}

func TestAPIKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("CreateAndValidateAPIKey", func(t *testing.T) {
		key, err := store.CreateAPIKey(ctx, "test-key", []string{"oracle", "governance"})
		if err != nil {
			t.Fatalf("CreateAPIKey() error = %v", err)
		}

		if key == "" {
			t.Fatal("CreateAPIKey() returned empty key")
		}

		apiKey, err := store.ValidateAPIKey(ctx, key)
		if err != nil {
			t.Fatalf("ValidateAPIKey() error = %v", err)
		}

		if apiKey.Name != "test-key" {
			t.Errorf("ValidateAPIKey().Name = %v, want test-key", apiKey.Name)
		}
		if len(apiKey.Roles) != 2 || apiKey.Roles[0] != "oracle" || apiKey.Roles[1] != "governance" {
			t.Errorf("ValidateAPIKey().Roles = %v", apiKey.Roles)
		}
	})

	t.Run("InvalidAPIKey", func(t *testing.T) {
		_, err := store.ValidateAPIKey(ctx, "invalid-key")
		if err == nil {
			t.Error("ValidateAPIKey() should return error for invalid key")
		}
	})

	t.Run("ListAndRevokeAPIKey", func(t *testing.T) {
		key, err := store.CreateAPIKey(ctx, "to-revoke", nil)
		if err != nil {
			t.Fatal(err)
		}
		keys, err := store.ListAPIKeys(ctx)
		if err != nil {
			t.Fatalf("ListAPIKeys() error = %v", err)
		}
		var id string
		for _, k := range keys {
			if k.Name == "to-revoke" {
				id = k.ID
			}
		}
		if id == "" {
			t.Fatal("ListAPIKeys() did not return created key")
		}

		if err := store.RevokeAPIKey(ctx, id); err != nil {
			t.Fatalf("RevokeAPIKey() error = %v", err)
		}
		if _, err := store.ValidateAPIKey(ctx, key); !errors.Is(err, ErrNotFound) {
			t.Errorf("ValidateAPIKey() after revoke error = %v, want ErrNotFound", err)
		}
		if err := store.RevokeAPIKey(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Errorf("RevokeAPIKey() twice error = %v, want ErrNotFound", err)
		}
	})
}
