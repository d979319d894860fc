package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Job lifecycle states. A job moves through the processing states in
// order and terminates in either done or failed.
const (
	JobStateReceived       = "received"
	JobStateTranscribing   = "transcribing"
	JobStateAligning       = "aligning"
	JobStateDiarizing      = "diarizing"
	JobStatePostProcessing = "post-processing"
	JobStateDone           = "done"
	JobStateFailed         = "failed"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// JobRow is a transcription job as stored.
type JobRow struct {
	ID           int64      `json:"id"`
	State        string     `json:"state"`
	AudioKey     string     `json:"audio_key"`
	Source       string     `json:"source"` // "upload", "watch", "mqtt", "reprocess"
	Language     string     `json:"language,omitempty"`
	Model        string     `json:"model,omitempty"`
	GapThreshold *float32   `json:"gap_threshold,omitempty"`
	Duration     *float32   `json:"duration,omitempty"`
	Error        string     `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// JobFilter specifies filters for listing jobs.
type JobFilter struct {
	States      []string
	Sources     []string
	StartTime   *time.Time
	EndTime     *time.Time
	MinDuration *float64 // seconds of audio
	Limit       int
	Offset      int
}

// InsertJob creates a new job in the received state and returns its ID.
func (db *DB) InsertJob(ctx context.Context, audioKey, source, language, model string, gapThreshold *float32) (int64, error) {
	var id int64
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO jobs (state, audio_key, source, language, model, gap_threshold)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, JobStateReceived, audioKey, source, pqString(language), pqString(model), gapThreshold).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert job: %w", err)
	}
	return id, nil
}

// GetJob returns a single job by ID.
func (db *DB) GetJob(ctx context.Context, id int64) (*JobRow, error) {
	var j JobRow
	var language, model, jobErr *string
	err := db.Pool.QueryRow(ctx, `
		SELECT id, state, audio_key, source, language, model,
			gap_threshold, duration, error,
			created_at, updated_at, started_at, finished_at
		FROM jobs
		WHERE id = $1
	`, id).Scan(
		&j.ID, &j.State, &j.AudioKey, &j.Source, &language, &model,
		&j.GapThreshold, &j.Duration, &jobErr,
		&j.CreatedAt, &j.UpdatedAt, &j.StartedAt, &j.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
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
	return &j, nil
}

// UpdateJobState advances a job to a new state. The first processing
// state stamps started_at; terminal states stamp finished_at.
func (db *DB) UpdateJobState(ctx context.Context, id int64, state string) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE jobs SET
			state = $2,
			updated_at = now(),
			started_at = CASE WHEN $2 = 'transcribing' AND started_at IS NULL THEN now() ELSE started_at END,
			finished_at = CASE WHEN $2 IN ('done', 'failed') THEN now() ELSE finished_at END
		WHERE id = $1
	`, id, state)
	if err != nil {
		return fmt.Errorf("update job state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FailJob marks a job failed and records the error message.
func (db *DB) FailJob(ctx context.Context, id int64, msg string) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE jobs SET state = $2, error = $3, updated_at = now(), finished_at = now()
		WHERE id = $1
	`, id, JobStateFailed, msg)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

// SetJobDuration records the audio duration discovered during processing.
func (db *DB) SetJobDuration(ctx context.Context, id int64, seconds float32) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE jobs SET duration = $2, updated_at = now() WHERE id = $1
	`, id, seconds)
	return err
}

// ListJobs returns jobs matching the filter, newest first, plus the total count.
func (db *DB) ListJobs(ctx context.Context, filter JobFilter) ([]JobRow, int, error) {
	qb := newQueryBuilder()
	if len(filter.States) > 0 {
		qb.Add("state = ANY(%s)", filter.States)
	}
	if len(filter.Sources) > 0 {
		qb.Add("source = ANY(%s)", filter.Sources)
	}
	if filter.StartTime != nil {
		qb.Add("created_at >= %s", *filter.StartTime)
	}
	if filter.EndTime != nil {
		qb.Add("created_at < %s", *filter.EndTime)
	}
	if filter.MinDuration != nil {
		qb.Add("duration >= %s", *filter.MinDuration)
	}
	whereClause := qb.WhereClause()

	var total int
	if err := db.Pool.QueryRow(ctx, "SELECT count(*) FROM jobs"+whereClause, qb.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := fmt.Sprintf(`
		SELECT id, state, audio_key, source, language, model,
			gap_threshold, duration, error,
			created_at, updated_at, started_at, finished_at
		FROM jobs
		%s
		ORDER BY created_at DESC
		LIMIT %d OFFSET %d
	`, whereClause, limit, filter.Offset)

	rows, err := db.Pool.Query(ctx, query, qb.Args()...)
	if err != nil {
		return nil, 0, err
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
			return nil, 0, err
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
	if result == nil {
		result = []JobRow{}
	}
	return result, total, rows.Err()
}

// CountJobsByState returns job counts per state for health and stats.
func (db *DB) CountJobsByState(ctx context.Context) (map[string]int, error) {
	rows, err := db.Pool.Query(ctx, `SELECT state, count(*) FROM jobs GROUP BY state`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		counts[state] = n
	}
	return counts, rows.Err()
}
