package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/snarg/dt-engine/internal/database"
	"github.com/snarg/dt-engine/internal/storage"
	"github.com/snarg/dt-engine/internal/transcribe"
)

// JobSubmitter accepts new audio and turns it into a queued job.
// The ingest side implements this.
type JobSubmitter interface {
	Submit(ctx context.Context, filename string, data []byte, language string, gapThreshold float64, source string) (*database.JobRow, error)
	SubmitKey(ctx context.Context, key, language string, gapThreshold float64, source string) (*database.JobRow, error)
}

// QueueStatsSource exposes worker pool statistics.
type QueueStatsSource interface {
	Stats() transcribe.QueueStats
}

// JobsHandler serves the job API: submission, status, transcripts, search.
type JobsHandler struct {
	db        *database.DB
	store     storage.Store
	submitter JobSubmitter
	queue     QueueStatsSource
	log       zerolog.Logger
}

// NewJobsHandler creates the job API handler.
func NewJobsHandler(db *database.DB, store storage.Store, submitter JobSubmitter, queue QueueStatsSource, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		db:        db,
		store:     store,
		submitter: submitter,
		queue:     queue,
		log:       log.With().Str("handler", "jobs").Logger(),
	}
}

// Routes registers job routes on the given router.
func (h *JobsHandler) Routes(r chi.Router) {
	r.Post("/jobs", h.SubmitJob)
	r.Get("/jobs", h.ListJobs)
	r.Get("/jobs/{id}", h.GetJob)
	r.Get("/jobs/{id}/transcript", h.GetTranscript)
	r.Get("/jobs/{id}/audio", h.GetAudio)
	r.Get("/search", h.Search)
	r.Get("/queue", h.QueueStats)
}

// SubmitJob handles POST /api/v1/jobs.
// Accepts a multipart form with a "file" audio field and optional
// "language" and "gap_threshold" fields.
func (h *JobsHandler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(256 << 20); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid multipart form", err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "failed to read audio file")
		return
	}

	language := r.FormValue("language")
	var gap float64
	if v := r.FormValue("gap_threshold"); v != "" {
		g, err := strconv.ParseFloat(v, 64)
		if err != nil || g <= 0 {
			WriteError(w, http.StatusBadRequest, "gap_threshold must be a positive number")
			return
		}
		gap = g
	}

	job, err := h.submitter.Submit(r.Context(), header.Filename, data, language, gap, "upload")
	if err != nil {
		if strings.Contains(err.Error(), "queue full") {
			WriteError(w, http.StatusServiceUnavailable, "queue full")
			return
		}
		h.log.Error().Err(err).Str("filename", header.Filename).Msg("job submission failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusCreated, job)
}

// ListJobs handles GET /api/v1/jobs.
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r)

	filter := database.JobFilter{
		States:  QueryStringList(r, "state"),
		Sources: QueryStringList(r, "source"),
		Limit:   p.Limit,
		Offset:  p.Offset,
	}
	if t, ok := QueryTime(r, "start_time"); ok {
		filter.StartTime = &t
	}
	if t, ok := QueryTime(r, "end_time"); ok {
		filter.EndTime = &t
	}
	if d, ok := QueryFloat(r, "min_duration"); ok {
		filter.MinDuration = &d
	}

	jobs, total, err := h.db.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("list jobs failed")
		WriteError(w, http.StatusInternalServerError, "query failed")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"jobs":   jobs,
		"total":  total,
		"limit":  p.Limit,
		"offset": p.Offset,
	})
}

// GetJob handles GET /api/v1/jobs/{id}.
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	job, err := h.db.GetJob(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Int64("job_id", id).Msg("get job failed")
		WriteError(w, http.StatusInternalServerError, "query failed")
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

// GetTranscript handles GET /api/v1/jobs/{id}/transcript.
// ?format=text returns the rendered transcript as text/plain; the
// default (json) returns the transcript row with utterances.
func (h *JobsHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	t, err := h.db.GetTranscriptByJob(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "transcript not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Int64("job_id", id).Msg("get transcript failed")
		WriteError(w, http.StatusInternalServerError, "query failed")
		return
	}

	format, _ := QueryString(r, "format")
	switch format {
	case "", "json":
		WriteJSON(w, http.StatusOK, t)
	case "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, t.Text)
		if !strings.HasSuffix(t.Text, "\n") && t.Text != "" {
			io.WriteString(w, "\n")
		}
	default:
		WriteError(w, http.StatusBadRequest, "format must be json or text")
	}
}

// GetAudio handles GET /api/v1/jobs/{id}/audio.
// Redirects to a presigned URL when the store supports it, otherwise
// streams the audio directly.
func (h *JobsHandler) GetAudio(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	job, err := h.db.GetJob(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "query failed")
		return
	}

	if url, err := h.store.URL(r.Context(), job.AudioKey); err == nil && url != "" {
		http.Redirect(w, r, url, http.StatusTemporaryRedirect)
		return
	}

	rc, err := h.store.Open(r.Context(), job.AudioKey)
	if err != nil {
		WriteError(w, http.StatusNotFound, "audio not found")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	io.Copy(w, rc)
}

// Search handles GET /api/v1/search — full-text search over transcripts.
func (h *JobsHandler) Search(w http.ResponseWriter, r *http.Request) {
	q, ok := QueryString(r, "q")
	if !ok {
		WriteError(w, http.StatusBadRequest, "missing query parameter: q")
		return
	}

	p := ParsePagination(r)

	filter := database.TranscriptSearchFilter{
		Limit:  p.Limit,
		Offset: p.Offset,
	}
	if t, ok := QueryTime(r, "start_time"); ok {
		filter.StartTime = &t
	}
	if t, ok := QueryTime(r, "end_time"); ok {
		filter.EndTime = &t
	}

	hits, total, err := h.db.SearchTranscripts(r.Context(), q, filter)
	if err != nil {
		h.log.Error().Err(err).Str("q", q).Msg("search failed")
		WriteError(w, http.StatusInternalServerError, "search failed")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"hits":   hits,
		"total":  total,
		"limit":  p.Limit,
		"offset": p.Offset,
	})
}

// Reprocess handles POST /api/v1/jobs/{id}/reprocess.
// Creates a fresh job over the stored audio of an existing one, with
// optional new "language" and "gap_threshold" overrides in the JSON body.
func (h *JobsHandler) Reprocess(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	job, err := h.db.GetJob(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "query failed")
		return
	}

	var req struct {
		Language     string  `json:"language"`
		GapThreshold float64 `json:"gap_threshold"`
	}
	if r.Body != nil && r.ContentLength > 0 {
		if err := DecodeJSON(r, &req); err != nil {
			WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
			return
		}
	}
	if req.GapThreshold < 0 {
		WriteError(w, http.StatusBadRequest, "gap_threshold must be a positive number")
		return
	}
	if req.Language == "" {
		req.Language = job.Language
	}

	newJob, err := h.submitter.SubmitKey(r.Context(), job.AudioKey, req.Language, req.GapThreshold, "reprocess")
	if err != nil {
		if strings.Contains(err.Error(), "queue full") {
			WriteError(w, http.StatusServiceUnavailable, "queue full")
			return
		}
		h.log.Error().Err(err).Int64("job_id", id).Msg("reprocess failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusCreated, newJob)
}

// QueueStats handles GET /api/v1/queue.
func (h *JobsHandler) QueueStats(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		WriteError(w, http.StatusServiceUnavailable, "queue not available")
		return
	}
	WriteJSON(w, http.StatusOK, h.queue.Stats())
}
