package transcribe

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/dt-engine/internal/assemble"
)

func newTestPool(workers, queueSize int) *WorkerPool {
	return NewWorkerPool(WorkerPoolOptions{
		Workers:      workers,
		QueueSize:    queueSize,
		GapThreshold: 0.8,
		Log:          zerolog.Nop(),
	})
}

func TestNewWorkerPool(t *testing.T) {
	wp := newTestPool(4, 100)
	if wp == nil {
		t.Fatal("NewWorkerPool returned nil")
	}
	if cap(wp.jobs) != 100 {
		t.Errorf("queue capacity = %d, want 100", cap(wp.jobs))
	}
}

func TestWorkerPool_EnqueueBeforeStart(t *testing.T) {
	wp := newTestPool(2, 5)
	// Enqueue should work even before Start() — it just buffers
	ok := wp.Enqueue(Job{JobID: 1})
	if !ok {
		t.Error("Enqueue should return true when queue has space")
	}
}

func TestWorkerPool_EnqueueFull(t *testing.T) {
	wp := newTestPool(0, 2) // 0 workers = nobody draining

	wp.Enqueue(Job{JobID: 1})
	wp.Enqueue(Job{JobID: 2})

	// Queue is full (cap=2), third enqueue should return false
	ok := wp.Enqueue(Job{JobID: 3})
	if ok {
		t.Error("Enqueue should return false when queue is full")
	}
}

func TestWorkerPool_EnqueueAfterStop(t *testing.T) {
	wp := newTestPool(1, 10)
	wp.Start()
	wp.Stop()

	ok := wp.Enqueue(Job{JobID: 1})
	if ok {
		t.Error("Enqueue should return false after Stop()")
	}
}

func TestWorkerPool_StopTwice(t *testing.T) {
	wp := newTestPool(1, 10)
	wp.Start()
	wp.Stop()
	wp.Stop() // second Stop must not close the channel again
}

func TestWorkerPool_Stats(t *testing.T) {
	wp := newTestPool(0, 10) // 0 workers so nothing drains

	wp.Enqueue(Job{JobID: 1})
	wp.Enqueue(Job{JobID: 2})

	stats := wp.Stats()
	if stats.Pending != 2 {
		t.Errorf("Pending = %d, want 2", stats.Pending)
	}
	if stats.Completed != 0 {
		t.Errorf("Completed = %d, want 0", stats.Completed)
	}
	if stats.Failed != 0 {
		t.Errorf("Failed = %d, want 0", stats.Failed)
	}
}

func TestWorkerPool_StopDrains(t *testing.T) {
	wp := newTestPool(2, 10)
	wp.Start()

	// Stop should return (not hang) even with no jobs
	done := make(chan struct{})
	go func() {
		wp.Stop()
		close(done)
	}()

	select {
	case <-done:
		// OK
	case <-time.After(5 * time.Second):
		t.Fatal("Stop() did not return within 5 seconds")
	}
}

func TestWorkerPool_Workers(t *testing.T) {
	wp := newTestPool(4, 10)
	if wp.Workers() != 4 {
		t.Errorf("Workers = %d, want 4", wp.Workers())
	}
}

// ── transcriptKey ────────────────────────────────────────────────────

func TestTranscriptKey(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"audio_prefix_swapped", "audio/2026-08-24/call.wav", "transcripts/2026-08-24/call.txt"},
		{"no_prefix", "2026-08-24/call.mp3", "transcripts/2026-08-24/call.txt"},
		{"no_extension", "audio/raw", "transcripts/raw.txt"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := transcriptKey(tt.in); got != tt.want {
				t.Errorf("transcriptKey(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// ── transcriptStats ──────────────────────────────────────────────────

func TestTranscriptStats(t *testing.T) {
	utterances := []assemble.Utterance{
		{Speaker: "SPEAKER_00", Text: "hello there"},
		{Speaker: "SPEAKER_01", Text: "hi"},
		{Speaker: assemble.UnknownSpeaker, Text: "mumble mumble"},
		{Speaker: "SPEAKER_00", Text: "bye"},
	}

	words, speakers, unknown := transcriptStats(utterances)
	if words != 6 {
		t.Errorf("words = %d, want 6", words)
	}
	if speakers != 2 {
		t.Errorf("speakers = %d, want 2", speakers)
	}
	if unknown != 2 {
		t.Errorf("unknown = %d, want 2", unknown)
	}
}
