package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mnemon-ai/mnemon/internal/store"
)

// RecordRun appends a consolidation audit record.
func (db *DB) RecordRun(ctx context.Context, run *store.ConsolidationRun) error {
	ids, err := json.Marshal(run.CommitIDs)
	if err != nil {
		return fmt.Errorf("marshal commit ids: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO consolidation_runs (run_id, started_at, duration_ms, evaluated,
			promoted, expired, cooled, threshold, commit_ids, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.RunID, run.StartedAt, run.DurationMS, run.Evaluated,
		run.Promoted, run.Expired, run.Cooled, run.Threshold, string(ids), run.Error)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// ListRuns returns consolidation records, newest first.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]store.ConsolidationRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, `
		SELECT run_id, started_at, duration_ms, evaluated, promoted, expired, cooled,
			threshold, commit_ids, error
		FROM consolidation_runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []store.ConsolidationRun
	for rows.Next() {
		var r store.ConsolidationRun
		var ids string
		if err := rows.Scan(&r.RunID, &r.StartedAt, &r.DurationMS, &r.Evaluated,
			&r.Promoted, &r.Expired, &r.Cooled, &r.Threshold, &ids, &r.Error); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if err := json.Unmarshal([]byte(ids), &r.CommitIDs); err != nil {
			return nil, fmt.Errorf("unmarshal commit ids: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
