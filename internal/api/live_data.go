package api

// LiveDataSource provides real-time data from the ingest side to the API layer.
// The event bus and watcher implement this — no circular imports since api
// owns the interface.
type LiveDataSource interface {
	// Subscribe returns a channel that receives SSE events matching the filter,
	// and a cancel function to unsubscribe.
	Subscribe(filter EventFilter) (<-chan SSEEvent, func())

	// ReplaySince returns buffered events since the given event ID (for Last-Event-ID recovery).
	ReplaySince(lastEventID string, filter EventFilter) []SSEEvent

	// WatcherStatus returns the drop-directory watcher status, or nil if not active.
	WatcherStatus() *WatcherStatusData
}

// WatcherStatusData represents the status of the drop-directory watcher.
type WatcherStatusData struct {
	Status         string `json:"status"` // "watching", "backfilling", "stopped"
	WatchDir       string `json:"watch_dir"`
	FilesProcessed int64  `json:"files_processed"`
	FilesSkipped   int64  `json:"files_skipped"`
}

// EventFilter specifies which events an SSE subscriber wants to receive.
type EventFilter struct {
	Types []string
	Jobs  []int64
}

// SSEEvent represents a server-sent event ready for transmission.
type SSEEvent struct {
	ID        string `json:"event_id"`
	Type      string `json:"event_type"`
	Timestamp string `json:"timestamp"`
	JobID     int64  `json:"job_id,omitempty"`
	Data      []byte `json:"-"` // pre-serialized JSON payload
}
