package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// TranscriptRow is the input for inserting an assembled transcript.
type TranscriptRow struct {
	JobID            int64
	Text             string          // formatted transcript, one utterance per line
	Utterances       json.RawMessage // assembled utterance list
	Language         string
	Model            string
	WordCount        int
	UtteranceCount   int
	SpeakerCount     int
	UnknownWordCount int
	DurationMs       int // wall-clock processing time
}

// TranscriptAPI is the transcript representation for API responses.
type TranscriptAPI struct {
	ID               int64           `json:"id"`
	JobID            int64           `json:"job_id"`
	Text             string          `json:"text"`
	Utterances       json.RawMessage `json:"utterances,omitempty"`
	Language         string          `json:"language,omitempty"`
	Model            string          `json:"model,omitempty"`
	WordCount        int             `json:"word_count"`
	UtteranceCount   int             `json:"utterance_count"`
	SpeakerCount     int             `json:"speaker_count"`
	UnknownWordCount int             `json:"unknown_word_count"`
	DurationMs       int             `json:"duration_ms"`
	CreatedAt        time.Time       `json:"created_at"`
}

// TranscriptSearchFilter specifies filters for full-text search.
type TranscriptSearchFilter struct {
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
	Offset    int
}

// TranscriptSearchHit is a search result with relevance score and job context.
type TranscriptSearchHit struct {
	TranscriptAPI
	Rank        float32   `json:"rank"`
	JobAudioKey string    `json:"audio_key"`
	JobCreated  time.Time `json:"job_created_at"`
}

// InsertTranscript stores an assembled transcript for a job.
// A re-run replaces the previous transcript for the same job.
func (db *DB) InsertTranscript(ctx context.Context, row *TranscriptRow) (int64, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM transcripts WHERE job_id = $1`, row.JobID); err != nil {
		return 0, fmt.Errorf("clear previous transcript: %w", err)
	}

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO transcripts (
			job_id, text, utterances, language, model,
			word_count, utterance_count, speaker_count, unknown_word_count, duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`,
		row.JobID, row.Text, row.Utterances, pqString(row.Language), pqString(row.Model),
		row.WordCount, row.UtteranceCount, row.SpeakerCount, row.UnknownWordCount, row.DurationMs,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert transcript: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return id, nil
}

// GetTranscriptByJob returns the transcript for a job.
func (db *DB) GetTranscriptByJob(ctx context.Context, jobID int64) (*TranscriptAPI, error) {
	var t TranscriptAPI
	var language, model *string
	err := db.Pool.QueryRow(ctx, `
		SELECT id, job_id, text, utterances, language, model,
			word_count, utterance_count, speaker_count, unknown_word_count,
			duration_ms, created_at
		FROM transcripts
		WHERE job_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, jobID).Scan(
		&t.ID, &t.JobID, &t.Text, &t.Utterances, &language, &model,
		&t.WordCount, &t.UtteranceCount, &t.SpeakerCount, &t.UnknownWordCount,
		&t.DurationMs, &t.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if language != nil {
		t.Language = *language
	}
	if model != nil {
		t.Model = *model
	}
	return &t, nil
}

// SearchTranscripts performs full-text search across transcripts with job context.
func (db *DB) SearchTranscripts(ctx context.Context, query string, filter TranscriptSearchFilter) ([]TranscriptSearchHit, int, error) {
	qb := newQueryBuilder()
	qb.Add("t.search_vector @@ plainto_tsquery('english', %s)", query)

	if filter.StartTime != nil {
		qb.Add("t.created_at >= %s", *filter.StartTime)
	}
	if filter.EndTime != nil {
		qb.Add("t.created_at < %s", *filter.EndTime)
	}

	whereClause := qb.WhereClause()
	fromClause := "FROM transcripts t JOIN jobs j ON j.id = t.job_id"

	var total int
	countQuery := "SELECT count(*) " + fromClause + whereClause
	if err := db.Pool.QueryRow(ctx, countQuery, qb.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset

	rankExpr := fmt.Sprintf("ts_rank(t.search_vector, plainto_tsquery('english', $%d))", qb.argIdx)
	qb.args = append(qb.args, query)
	qb.argIdx++

	dataQuery := fmt.Sprintf(`
		SELECT t.id, t.job_id, t.text, t.language, t.model,
			t.word_count, t.utterance_count, t.speaker_count, t.unknown_word_count,
			t.duration_ms, t.created_at,
			%s AS rank,
			j.audio_key, j.created_at
		%s%s
		ORDER BY rank DESC
		LIMIT %d OFFSET %d
	`, rankExpr, fromClause, whereClause, limit, offset)

	rows, err := db.Pool.Query(ctx, dataQuery, qb.Args()...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var hits []TranscriptSearchHit
	for rows.Next() {
		var h TranscriptSearchHit
		var language, model *string
		if err := rows.Scan(
			&h.ID, &h.JobID, &h.Text, &language, &model,
			&h.WordCount, &h.UtteranceCount, &h.SpeakerCount, &h.UnknownWordCount,
			&h.DurationMs, &h.CreatedAt,
			&h.Rank,
			&h.JobAudioKey, &h.JobCreated,
		); err != nil {
			return nil, 0, err
		}
		if language != nil {
			h.Language = *language
		}
		if model != nil {
			h.Model = *model
		}
		hits = append(hits, h)
	}
	if hits == nil {
		hits = []TranscriptSearchHit{}
	}
	return hits, total, rows.Err()
}
