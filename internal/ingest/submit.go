package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/dt-engine/internal/database"
	"github.com/snarg/dt-engine/internal/storage"
	"github.com/snarg/dt-engine/internal/transcribe"
)

// SubmitOptions carries per-job overrides supplied at intake.
type SubmitOptions struct {
	Language     string
	GapThreshold float64
	Source       string // "upload", "watch", "mqtt", "reprocess"
}

// Submitter is the single entry point for new jobs. Every intake path
// (HTTP upload, drop-directory watcher, MQTT) funnels through here:
// store the audio, create the job row, enqueue, announce.
type Submitter struct {
	db    *database.DB
	store storage.Store
	pool  *transcribe.WorkerPool
	bus   *EventBus
	log   zerolog.Logger
}

// NewSubmitter creates a job submitter.
func NewSubmitter(db *database.DB, store storage.Store, pool *transcribe.WorkerPool, bus *EventBus, log zerolog.Logger) *Submitter {
	return &Submitter{
		db:    db,
		store: store,
		pool:  pool,
		bus:   bus,
		log:   log.With().Str("component", "submitter").Logger(),
	}
}

// Submit stores audio data and creates a job for it. The flat signature
// implements the api.JobSubmitter interface.
func (s *Submitter) Submit(ctx context.Context, filename string, data []byte, language string, gapThreshold float64, source string) (*database.JobRow, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty audio payload")
	}

	key := audioKey(filename)
	if err := s.store.Save(ctx, key, data, contentTypeForExt(filepath.Ext(filename))); err != nil {
		return nil, fmt.Errorf("store audio: %w", err)
	}

	return s.SubmitKey(ctx, key, language, gapThreshold, source)
}

// SubmitPath creates a job for an audio file already on local disk.
func (s *Submitter) SubmitPath(ctx context.Context, path string, opts SubmitOptions) (*database.JobRow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	return s.Submit(ctx, filepath.Base(path), data, opts.Language, opts.GapThreshold, opts.Source)
}

// SubmitKey creates a job for audio already present in the store.
func (s *Submitter) SubmitKey(ctx context.Context, key, language string, gapThreshold float64, source string) (*database.JobRow, error) {
	if !s.store.Exists(ctx, key) {
		return nil, fmt.Errorf("audio key %q not found in store", key)
	}

	var gap *float32
	if gapThreshold > 0 {
		g := float32(gapThreshold)
		gap = &g
	}

	id, err := s.db.InsertJob(ctx, key, source, language, "", gap)
	if err != nil {
		return nil, err
	}

	ok := s.pool.Enqueue(transcribe.Job{
		JobID:        id,
		AudioKey:     key,
		Language:     language,
		GapThreshold: gapThreshold,
	})
	if !ok {
		if err := s.db.FailJob(ctx, id, "queue full"); err != nil {
			s.log.Error().Err(err).Int64("job_id", id).Msg("failed to mark rejected job")
		}
		return nil, fmt.Errorf("queue full")
	}

	s.bus.Publish(EventData{
		Type:  "job_received",
		JobID: id,
		Payload: map[string]any{
			"job_id":    id,
			"audio_key": key,
			"source":    source,
		},
	})

	s.log.Info().Int64("job_id", id).Str("key", key).Str("source", source).Msg("job submitted")
	return s.db.GetJob(ctx, id)
}

// audioKey builds a store key for uploaded audio. The nanosecond prefix
// keeps same-named uploads from colliding.
func audioKey(filename string) string {
	base := filepath.Base(filename)
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	now := time.Now().UTC()
	return fmt.Sprintf("audio/%s/%d-%s", now.Format("2006-01-02"), now.UnixNano(), base)
}

func contentTypeForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".flac":
		return "audio/flac"
	case ".ogg", ".opus":
		return "audio/ogg"
	case ".m4a":
		return "audio/mp4"
	default:
		return "application/octet-stream"
	}
}
