package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"sitecloner/internal/config"
	"sitecloner/pkg/types"
)

func openTestStore(t *testing.T) *SQLWriter {
	t.Helper()
	store, err := NewSQLWriter(config.SQLConfig{
		Driver:      DriverSQLite,
		DSN:         filepath.Join(t.TempDir(), "db", "records.db"),
		AutoMigrate: true,
	})
	if err != nil {
		t.Fatalf("NewSQLWriter: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteRecordLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTestStore(t)
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	run := Run{ID: NewRunID(), BaseURL: "https://example.com/", StartedAt: start}

	if err := store.BeginRun(ctx, run); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	records := []types.SiteRecord{
		{URL: "https://example.com/", LocalPath: "example.com/index.html", Kind: types.KindHTML, Depth: 0, FetchedAt: start, Title: "Home"},
		{URL: "https://example.com/style.css", LocalPath: "example.com/style.css", Kind: types.KindCSS, Depth: 0, FetchedAt: start.Add(time.Second)},
	}
	for _, rec := range records {
		if err := store.SaveRecord(ctx, run.ID, rec); err != nil {
			t.Fatalf("SaveRecord: %v", err)
		}
	}
	// Upsert keeps a single row per url.
	updated := records[0]
	updated.Title = "Welcome"
	if err := store.SaveRecord(ctx, run.ID, updated); err != nil {
		t.Fatalf("SaveRecord update: %v", err)
	}

	got, err := store.ListRecords(ctx, run.ID)
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].Title != "Welcome" || got[0].Kind != types.KindHTML || got[1].LocalPath != "example.com/style.css" {
		t.Fatalf("unexpected records: %+v", got)
	}
	if !got[1].FetchedAt.Equal(start.Add(time.Second)) {
		t.Fatalf("timestamp not preserved: %v", got[1].FetchedAt)
	}

	run.FinishedAt = start.Add(5 * time.Second)
	run.Saved, run.Failed, run.Skipped = 2, 1, 3
	if err := store.FinishRun(ctx, run); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	stored, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if stored.Saved != 2 || stored.Failed != 1 || stored.Skipped != 3 || !stored.FinishedAt.Equal(run.FinishedAt) {
		t.Fatalf("unexpected run: %+v", stored)
	}
}

func TestGetRunMissing(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	if _, err := store.GetRun(context.Background(), "nope"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestRecordsAreScopedByRun(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTestStore(t)
	rec := types.SiteRecord{URL: "https://example.com/", LocalPath: "example.com/index.html", Kind: types.KindHTML, FetchedAt: time.Now()}
	first, second := NewRunID(), NewRunID()
	if first == second {
		t.Fatal("run ids must be unique")
	}
	if err := store.SaveRecord(ctx, first, rec); err != nil {
		t.Fatalf("SaveRecord: %v", err)
	}
	got, err := store.ListRecords(ctx, second)
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("records leaked across runs: %+v", got)
	}
}

func TestNewSQLWriterValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewSQLWriter(config.SQLConfig{Driver: DriverSQLite}); err == nil {
		t.Fatal("expected missing dsn to fail")
	}
	if _, err := NewSQLWriter(config.SQLConfig{Driver: "mysql", DSN: "x"}); err == nil {
		t.Fatal("expected unsupported driver to fail")
	}
}

func TestRebind(t *testing.T) {
	t.Parallel()

	pg := &SQLWriter{driver: DriverPostgres}
	lite := &SQLWriter{driver: DriverSQLite}
	query := "SELECT 1 WHERE a = $1 AND b = $2"
	if pg.rebind(query) != query {
		t.Fatal("postgres queries must not change")
	}
	if got := lite.rebind(query); got != "SELECT 1 WHERE a = ? AND b = ?" {
		t.Fatalf("unexpected sqlite query %q", got)
	}
}

func TestIsUndefinedTableErr(t *testing.T) {
	t.Parallel()

	if !isUndefinedTableErr(errors.New("SQL logic error: no such table: site_records (1)")) {
		t.Fatal("sqlite message not recognised")
	}
	if !isUndefinedTableErr(errors.New(`pq: relation "site_records" does not exist`)) {
		t.Fatal("postgres message not recognised")
	}
	if isUndefinedTableErr(errors.New("disk full")) {
		t.Fatal("unexpected match")
	}
}

func TestParseTime(t *testing.T) {
	t.Parallel()

	want := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for _, v := range []any{want, "2024-05-01T10:00:00Z", []byte("2024-05-01 10:00:00+00:00")} {
		got, err := parseTime(v)
		if err != nil || !got.Equal(want) {
			t.Fatalf("parseTime(%v) = %v, %v", v, got, err)
		}
	}
	if _, err := parseTime(42); err == nil {
		t.Fatal("expected unsupported type to fail")
	}
}
