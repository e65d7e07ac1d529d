package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sitecloner/pkg/types"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("crawl run not found")

// ListRecords returns the records stored for runID ordered by fetch time.
func (s *SQLWriter) ListRecords(ctx context.Context, runID string) ([]types.SiteRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sql store not initialised")
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`
        SELECT url, local_path, kind, depth, fetched_at, title
        FROM site_records
        WHERE run_id = $1
        ORDER BY fetched_at, url`), runID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []types.SiteRecord
	for rows.Next() {
		var (
			rec       types.SiteRecord
			kind      string
			fetchedAt any
			title     sql.NullString
		)
		if err := rows.Scan(&rec.URL, &rec.LocalPath, &kind, &rec.Depth, &fetchedAt, &title); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Kind = types.Kind(kind)
		if rec.FetchedAt, err = parseTime(fetchedAt); err != nil {
			return nil, fmt.Errorf("record %s: %w", rec.URL, err)
		}
		rec.Title = title.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// GetRun loads a crawl run by id.
func (s *SQLWriter) GetRun(ctx context.Context, id string) (Run, error) {
	if s == nil || s.db == nil {
		return Run{}, fmt.Errorf("sql store not initialised")
	}
	var (
		run        Run
		startedAt  any
		finishedAt any
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`
        SELECT id, base_url, started_at, finished_at, saved, failed, skipped
        FROM crawl_runs
        WHERE id = $1`), id).
		Scan(&run.ID, &run.BaseURL, &startedAt, &finishedAt, &run.Saved, &run.Failed, &run.Skipped)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run: %w", err)
	}
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return Run{}, err
	}
	if finishedAt != nil {
		if run.FinishedAt, err = parseTime(finishedAt); err != nil {
			return Run{}, err
		}
	}
	return run, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// parseTime accepts the representations drivers return for timestamp
// columns.
func parseTime(v any) (time.Time, error) {
	var s string
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		s = t
	case []byte:
		s = string(t)
	case nil:
		return time.Time{}, nil
	default:
		return time.Time{}, fmt.Errorf("unsupported time value %T", v)
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable time %q", s)
}
