// Package transcribe runs the job pipeline: transcription, alignment,
// diarization, and utterance assembly, feeding results to the database
// and artifact store.
package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/dt-engine/internal/asr"
	"github.com/snarg/dt-engine/internal/assemble"
	"github.com/snarg/dt-engine/internal/database"
	"github.com/snarg/dt-engine/internal/metrics"
	"github.com/snarg/dt-engine/internal/storage"
)

// Job is a unit of work enqueued for the pipeline.
type Job struct {
	JobID        int64
	AudioKey     string
	Language     string  // overrides the pool default when set
	GapThreshold float64 // overrides the pool default when > 0
}

// QueueStats reports the current state of the job queue.
type QueueStats struct {
	Pending   int   `json:"pending"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// EventPublishFunc is a callback for publishing SSE events.
type EventPublishFunc func(eventType string, jobID int64, payload map[string]any)

// StatePublishFunc is a callback for publishing job state transitions
// (e.g. to MQTT).
type StatePublishFunc func(jobID int64, state string)

// WorkerPoolOptions configures the pipeline worker pool.
type WorkerPoolOptions struct {
	DB           *database.DB
	Store        storage.Store
	ASR          *asr.Client
	Model        string
	GapThreshold float64
	Workers      int
	QueueSize    int
	PublishEvent EventPublishFunc
	PublishState StatePublishFunc
	Log          zerolog.Logger
}

// WorkerPool manages pipeline workers.
type WorkerPool struct {
	jobs   chan Job
	db     *database.DB
	store  storage.Store
	asr    *asr.Client
	opts   WorkerPoolOptions
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stopMu  sync.RWMutex
	stopped bool

	completed atomic.Int64
	failed    atomic.Int64
}

// NewWorkerPool creates a new pipeline worker pool.
func NewWorkerPool(opts WorkerPoolOptions) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		jobs:   make(chan Job, opts.QueueSize),
		db:     opts.DB,
		store:  opts.Store,
		asr:    opts.ASR,
		opts:   opts,
		log:    opts.Log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start() {
	for i := 0; i < wp.opts.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
	wp.log.Info().Int("workers", wp.opts.Workers).Int("queue_size", wp.opts.QueueSize).Msg("worker pool started")
}

// Stop signals workers to drain and waits for completion. Safe to call more
// than once; concurrent Enqueue calls return false instead of racing the
// channel close.
func (wp *WorkerPool) Stop() {
	wp.stopMu.Lock()
	if wp.stopped {
		wp.stopMu.Unlock()
		return
	}
	wp.stopped = true
	close(wp.jobs)
	wp.stopMu.Unlock()

	wp.wg.Wait()
	wp.cancel()
	wp.log.Info().
		Int64("completed", wp.completed.Load()).
		Int64("failed", wp.failed.Load()).
		Msg("worker pool stopped")
}

// Enqueue adds a job to the queue. Returns false if the queue is full or the
// pool has been stopped.
func (wp *WorkerPool) Enqueue(j Job) bool {
	wp.stopMu.RLock()
	defer wp.stopMu.RUnlock()
	if wp.stopped {
		return false
	}
	select {
	case wp.jobs <- j:
		return true
	default:
		return false
	}
}

// Stats returns current queue statistics.
func (wp *WorkerPool) Stats() QueueStats {
	return QueueStats{
		Pending:   len(wp.jobs),
		Completed: wp.completed.Load(),
		Failed:    wp.failed.Load(),
	}
}

// PendingJobCount returns the queue depth for the metrics collector.
func (wp *WorkerPool) PendingJobCount() int { return len(wp.jobs) }

// Model returns the configured ASR model name.
func (wp *WorkerPool) Model() string { return wp.opts.Model }

// Workers returns the number of worker goroutines.
func (wp *WorkerPool) Workers() int { return wp.opts.Workers }

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()
	log := wp.log.With().Int("worker", id).Logger()

	for job := range wp.jobs {
		if err := wp.processJob(log, job); err != nil {
			wp.failed.Add(1)
			metrics.JobsTotal.WithLabelValues("failed").Inc()
			log.Warn().Err(err).Int64("job_id", job.JobID).Msg("job failed")

			if dbErr := wp.db.FailJob(wp.ctx, job.JobID, err.Error()); dbErr != nil {
				log.Error().Err(dbErr).Int64("job_id", job.JobID).Msg("failed to record job failure")
			}
			wp.notifyState(job.JobID, database.JobStateFailed)
			wp.notifyEvent("job_failed", job.JobID, map[string]any{
				"job_id": job.JobID,
				"error":  err.Error(),
			})
		} else {
			wp.completed.Add(1)
			metrics.JobsTotal.WithLabelValues("done").Inc()
		}
	}
}

func (wp *WorkerPool) processJob(log zerolog.Logger, job Job) error {
	start := time.Now()
	ctx := wp.ctx

	audioPath, cleanup, err := wp.materializeAudio(ctx, job.AudioKey)
	if err != nil {
		return fmt.Errorf("materialize audio: %w", err)
	}
	defer cleanup()

	// Transcribe
	if err := wp.setState(ctx, job.JobID, database.JobStateTranscribing); err != nil {
		return err
	}
	stageStart := time.Now()
	transcription, err := wp.asr.Transcribe(ctx, audioPath)
	if err != nil {
		return fmt.Errorf("transcribe: %w", err)
	}
	metrics.StageDuration.WithLabelValues("transcribe").Observe(time.Since(stageStart).Seconds())

	if n := len(transcription.Segments); n > 0 {
		if err := wp.db.SetJobDuration(ctx, job.JobID, float32(transcription.Segments[n-1].End)); err != nil {
			log.Warn().Err(err).Int64("job_id", job.JobID).Msg("failed to record duration")
		}
	}

	// Align
	if err := wp.setState(ctx, job.JobID, database.JobStateAligning); err != nil {
		return err
	}
	stageStart = time.Now()
	alignment, err := wp.asr.Align(ctx, audioPath, transcription.Segments)
	if err != nil {
		return fmt.Errorf("align: %w", err)
	}
	metrics.StageDuration.WithLabelValues("align").Observe(time.Since(stageStart).Seconds())

	// Diarize
	if err := wp.setState(ctx, job.JobID, database.JobStateDiarizing); err != nil {
		return err
	}
	stageStart = time.Now()
	diarization, err := wp.asr.Diarize(ctx, audioPath)
	if err != nil {
		return fmt.Errorf("diarize: %w", err)
	}
	metrics.StageDuration.WithLabelValues("diarize").Observe(time.Since(stageStart).Seconds())

	// Assemble
	if err := wp.setState(ctx, job.JobID, database.JobStatePostProcessing); err != nil {
		return err
	}
	stageStart = time.Now()
	gap := job.GapThreshold
	if gap <= 0 {
		gap = wp.opts.GapThreshold
	}
	utterances, err := assemble.Assemble(alignment, diarization, gap)
	if err != nil {
		return fmt.Errorf("assemble: %w", err)
	}
	text := assemble.FormatTranscript(utterances)
	metrics.StageDuration.WithLabelValues("assemble").Observe(time.Since(stageStart).Seconds())

	wordCount, speakerCount, unknownWords := transcriptStats(utterances)
	metrics.WordsAssembledTotal.Add(float64(wordCount))
	metrics.UnknownSpeakerWordsTotal.Add(float64(unknownWords))

	utterancesJSON, err := json.Marshal(utterances)
	if err != nil {
		return fmt.Errorf("marshal utterances: %w", err)
	}

	durationMs := int(time.Since(start).Milliseconds())

	row := &database.TranscriptRow{
		JobID:            job.JobID,
		Text:             text,
		Utterances:       utterancesJSON,
		Language:         job.Language,
		Model:            wp.opts.Model,
		WordCount:        wordCount,
		UtteranceCount:   len(utterances),
		SpeakerCount:     speakerCount,
		UnknownWordCount: unknownWords,
		DurationMs:       durationMs,
	}
	if _, err := wp.db.InsertTranscript(ctx, row); err != nil {
		return fmt.Errorf("db insert: %w", err)
	}

	// Store the rendered transcript alongside the audio.
	if key := transcriptKey(job.AudioKey); key != "" {
		if err := wp.store.Save(ctx, key, []byte(text), "text/plain; charset=utf-8"); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to store transcript artifact")
		}
	}

	if err := wp.setState(ctx, job.JobID, database.JobStateDone); err != nil {
		return err
	}

	wp.notifyEvent("transcript", job.JobID, map[string]any{
		"job_id":      job.JobID,
		"utterances":  len(utterances),
		"words":       wordCount,
		"speakers":    speakerCount,
		"duration_ms": durationMs,
	})

	log.Debug().
		Int64("job_id", job.JobID).
		Int("utterances", len(utterances)).
		Int("words", wordCount).
		Int("duration_ms", durationMs).
		Msg("job complete")

	return nil
}

// setState persists a state transition and fans it out to subscribers.
func (wp *WorkerPool) setState(ctx context.Context, jobID int64, state string) error {
	if err := wp.db.UpdateJobState(ctx, jobID, state); err != nil {
		return fmt.Errorf("update state %s: %w", state, err)
	}
	wp.notifyState(jobID, state)
	wp.notifyEvent("job_state", jobID, map[string]any{
		"job_id": jobID,
		"state":  state,
	})
	return nil
}

func (wp *WorkerPool) notifyState(jobID int64, state string) {
	if wp.opts.PublishState != nil {
		wp.opts.PublishState(jobID, state)
	}
}

func (wp *WorkerPool) notifyEvent(eventType string, jobID int64, payload map[string]any) {
	if wp.opts.PublishEvent != nil {
		wp.opts.PublishEvent(eventType, jobID, payload)
	}
}

// materializeAudio makes the audio for key available as a local file.
// For local stores this is the stored path itself; otherwise the object
// is copied to a temp file that cleanup removes.
func (wp *WorkerPool) materializeAudio(ctx context.Context, key string) (string, func(), error) {
	if path := wp.store.LocalPath(key); path != "" {
		return path, func() {}, nil
	}

	rc, err := wp.store.Open(ctx, key)
	if err != nil {
		return "", nil, err
	}
	defer rc.Close()

	tmp, err := os.CreateTemp("", "dt-audio-*"+filepath.Ext(key))
	if err != nil {
		return "", nil, err
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, rc); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", nil, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", nil, err
	}
	return tmpPath, func() { os.Remove(tmpPath) }, nil
}

// transcriptKey maps an audio key to the key for its rendered transcript.
func transcriptKey(audioKey string) string {
	rest := strings.TrimPrefix(audioKey, "audio/")
	if rest == "" {
		return ""
	}
	ext := filepath.Ext(rest)
	return "transcripts/" + strings.TrimSuffix(rest, ext) + ".txt"
}

func transcriptStats(utterances []assemble.Utterance) (words, speakers, unknown int) {
	seen := make(map[string]struct{})
	for _, u := range utterances {
		n := len(strings.Fields(u.Text))
		words += n
		if u.Speaker == assemble.UnknownSpeaker {
			unknown += n
			continue
		}
		if _, ok := seen[u.Speaker]; !ok {
			seen[u.Speaker] = struct{}{}
		}
	}
	return words, len(seen), unknown
}
