package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// stubLiveSource replays a fixed backlog and then delivers the live slice
// over a channel that closes once drained, so StreamEvents returns.
type stubLiveSource struct {
	replay []SSEEvent
	live   []SSEEvent
}

func (s *stubLiveSource) Subscribe(filter EventFilter) (<-chan SSEEvent, func()) {
	ch := make(chan SSEEvent, len(s.live))
	for _, e := range s.live {
		ch <- e
	}
	close(ch)
	return ch, func() {}
}

func (s *stubLiveSource) ReplaySince(lastEventID string, filter EventFilter) []SSEEvent {
	return s.replay
}

func (s *stubLiveSource) WatcherStatus() *WatcherStatusData { return nil }

func TestStreamEvents_ReconnectDedup(t *testing.T) {
	// evt-2 sits in both the replay backlog and the live channel, as happens
	// when it is published while a reconnecting client is replaying. It must
	// be delivered exactly once.
	src := &stubLiveSource{
		replay: []SSEEvent{
			{ID: "evt-2", Type: "job_state", Data: []byte(`{"job_id":2}`)},
		},
		live: []SSEEvent{
			{ID: "evt-2", Type: "job_state", Data: []byte(`{"job_id":2}`)},
			{ID: "evt-3", Type: "job_state", Data: []byte(`{"job_id":3}`)},
		},
	}

	h := NewEventsHandler(src)
	req := httptest.NewRequest(http.MethodGet, "/events/stream", nil)
	req.Header.Set("Last-Event-ID", "evt-1")
	rec := httptest.NewRecorder()

	h.StreamEvents(rec, req)

	body := rec.Body.String()
	if got := strings.Count(body, "id: evt-2\n"); got != 1 {
		t.Errorf("evt-2 delivered %d times, want exactly once\nbody:\n%s", got, body)
	}
	if !strings.Contains(body, "id: evt-3\n") {
		t.Errorf("evt-3 missing from stream\nbody:\n%s", body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
}

func TestStreamEvents_NoLastEventID(t *testing.T) {
	src := &stubLiveSource{
		replay: []SSEEvent{{ID: "evt-1", Type: "job_state", Data: []byte(`{}`)}},
		live:   []SSEEvent{{ID: "evt-4", Type: "job_state", Data: []byte(`{}`)}},
	}

	h := NewEventsHandler(src)
	req := httptest.NewRequest(http.MethodGet, "/events/stream", nil)
	rec := httptest.NewRecorder()

	h.StreamEvents(rec, req)

	body := rec.Body.String()
	if strings.Contains(body, "id: evt-1\n") {
		t.Error("backlog replayed without Last-Event-ID")
	}
	if !strings.Contains(body, "id: evt-4\n") {
		t.Errorf("live event missing\nbody:\n%s", body)
	}
}

func TestStreamEvents_NilSource(t *testing.T) {
	h := NewEventsHandler(nil)
	req := httptest.NewRequest(http.MethodGet, "/events/stream", nil)
	rec := httptest.NewRecorder()

	h.StreamEvents(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
