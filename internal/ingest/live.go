package ingest

import "github.com/snarg/dt-engine/internal/api"

// LiveData bundles the event bus and the optional drop-directory watcher
// behind the api.LiveDataSource interface.
type LiveData struct {
	Bus     *EventBus
	Watcher *FileWatcher // nil when the watcher is disabled
}

func (l *LiveData) Subscribe(filter api.EventFilter) (<-chan api.SSEEvent, func()) {
	return l.Bus.Subscribe(filter)
}

func (l *LiveData) ReplaySince(lastEventID string, filter api.EventFilter) []api.SSEEvent {
	return l.Bus.ReplaySince(lastEventID, filter)
}

func (l *LiveData) WatcherStatus() *api.WatcherStatusData {
	if l.Watcher == nil {
		return nil
	}
	return l.Watcher.Status()
}
