package database

import (
	"context"
	"fmt"
	"time"
)

// PurgeFinishedJobs deletes done and failed jobs that finished before the
// retention window. Transcripts go with them via ON DELETE CASCADE.
func (db *DB) PurgeFinishedJobs(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `
		DELETE FROM jobs
		WHERE state IN ('done', 'failed')
		  AND finished_at < now() - $1::interval
	`, retention.String())
	if err != nil {
		return 0, fmt.Errorf("purge finished jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// StuckJobs returns jobs sitting in a non-terminal state with no update
// for longer than olderThan. These are usually casualties of a crash
// mid-pipeline: the queue entry died with the process but the row kept
// its in-flight state.
func (db *DB) StuckJobs(ctx context.Context, olderThan time.Duration) ([]JobRow, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, state, audio_key, source, language, model,
			gap_threshold, duration, error,
			created_at, updated_at, started_at, finished_at
		FROM jobs
		WHERE state NOT IN ('done', 'failed')
		  AND updated_at < now() - $1::interval
		ORDER BY updated_at
	`, olderThan.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []JobRow
	for rows.Next() {
		var j JobRow
		var language, model, jobErr *string
		if err := rows.Scan(
			&j.ID, &j.State, &j.AudioKey, &j.Source, &language, &model,
			&j.GapThreshold, &j.Duration, &jobErr,
			&j.CreatedAt, &j.UpdatedAt, &j.StartedAt, &j.FinishedAt,
		); err != nil {
			return nil, err
		}
		if language != nil {
			j.Language = *language
		}
		if model != nil {
			j.Model = *model
		}
		if jobErr != nil {
			j.Error = *jobErr
		}
		result = append(result, j)
	}
	return result, rows.Err()
}

// FailStuckJobs marks stuck jobs as failed so they stop counting as
// in-flight. Returns the number of jobs updated.
func (db *DB) FailStuckJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE jobs SET
			state = 'failed',
			error = 'stalled: no progress before process restart',
			updated_at = now(),
			finished_at = now()
		WHERE state NOT IN ('done', 'failed')
		  AND updated_at < now() - $1::interval
	`, olderThan.String())
	if err != nil {
		return 0, fmt.Errorf("fail stuck jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// TableCounts returns row counts for the given tables.
func (db *DB) TableCounts(ctx context.Context, tables ...string) (map[string]int64, error) {
	counts := make(map[string]int64, len(tables))
	for _, t := range tables {
		var n int64
		if err := db.Pool.QueryRow(ctx, "SELECT count(*) FROM "+t).Scan(&n); err != nil {
			return counts, fmt.Errorf("count %s: %w", t, err)
		}
		counts[t] = n
	}
	return counts, nil
}
