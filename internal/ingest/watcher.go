package ingest

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/snarg/dt-engine/internal/api"
)

// audioExts is the set of file extensions the watcher will pick up.
var audioExts = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".flac": true,
	".ogg":  true,
	".opus": true,
	".m4a":  true,
}

// FileWatcher monitors a drop directory for new audio files and submits
// them as jobs. This provides an alternative to HTTP upload for users
// who batch-copy recordings onto the host.
type FileWatcher struct {
	submitter *Submitter
	watchDir  string
	backfill  bool
	log       zerolog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	watcher *fsnotify.Watcher

	// Debounce: coalesce rapid Create+Write events on the same file.
	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer

	// Files handed to the submitter already; guards against the backfill
	// pass and fsnotify racing on the same file.
	seenMu sync.Mutex
	seen   map[string]struct{}

	// Stats
	filesProcessed atomic.Int64
	filesSkipped   atomic.Int64
	status         atomic.Value // string: "starting", "backfilling", "watching", "stopped"
}

// NewFileWatcher creates a drop-directory watcher. Jobs are submitted
// through the given Submitter with source "watch".
func NewFileWatcher(submitter *Submitter, watchDir string, backfill bool, log zerolog.Logger) *FileWatcher {
	ctx, cancel := context.WithCancel(context.Background())
	fw := &FileWatcher{
		submitter:      submitter,
		watchDir:       watchDir,
		backfill:       backfill,
		log:            log.With().Str("component", "watcher").Logger(),
		ctx:            ctx,
		cancel:         cancel,
		debounceTimers: make(map[string]*time.Timer),
		seen:           make(map[string]struct{}),
	}
	fw.status.Store("starting")
	return fw
}

// Start initializes the fsnotify watcher, adds all existing directories,
// and begins watching for new files. If backfill is enabled, existing
// audio files are submitted in a background goroutine.
func (fw *FileWatcher) Start() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	fw.watcher = w

	// Walk the directory tree and add all directories to fsnotify.
	dirCount := 0
	err = filepath.WalkDir(fw.watchDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			fw.log.Warn().Err(err).Str("path", path).Msg("error walking directory")
			return nil // continue walking
		}
		if d.IsDir() {
			if addErr := w.Add(path); addErr != nil {
				fw.log.Warn().Err(addErr).Str("path", path).Msg("failed to watch directory")
			} else {
				dirCount++
			}
		}
		return nil
	})
	if err != nil {
		w.Close()
		return err
	}

	fw.log.Info().
		Int("directories", dirCount).
		Str("watch_dir", fw.watchDir).
		Msg("file watcher initialized")

	go fw.watchLoop()

	if fw.backfill {
		go fw.runBackfill()
	} else {
		fw.status.Store("watching")
	}

	return nil
}

// Stop closes the fsnotify watcher and cancels any in-flight processing.
func (fw *FileWatcher) Stop() {
	fw.status.Store("stopped")
	fw.cancel()
	if fw.watcher != nil {
		fw.watcher.Close()
	}
	fw.log.Info().
		Int64("files_processed", fw.filesProcessed.Load()).
		Int64("files_skipped", fw.filesSkipped.Load()).
		Msg("file watcher stopped")
}

// Status returns the current watcher status for the health endpoint.
func (fw *FileWatcher) Status() *api.WatcherStatusData {
	s, _ := fw.status.Load().(string)
	return &api.WatcherStatusData{
		Status:         s,
		WatchDir:       fw.watchDir,
		FilesProcessed: fw.filesProcessed.Load(),
		FilesSkipped:   fw.filesSkipped.Load(),
	}
}

// watchLoop is the main event loop that processes fsnotify events.
func (fw *FileWatcher) watchLoop() {
	for {
		select {
		case <-fw.ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}

			// New directory: add it to the watch set so we catch files
			// dropped into freshly created subdirectories.
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if err := fw.watcher.Add(event.Name); err != nil {
					fw.log.Warn().Err(err).Str("path", event.Name).Msg("failed to watch new directory")
				} else {
					fw.log.Debug().Str("path", event.Name).Msg("watching new directory")
				}
				continue
			}

			if !isAudioFile(event.Name) {
				continue
			}

			fw.scheduleProcess(event.Name)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// scheduleProcess debounces file processing by 500ms. This coalesces
// rapid Create+Write events and ensures the file is fully written before
// reading.
func (fw *FileWatcher) scheduleProcess(path string) {
	fw.debounceMu.Lock()
	defer fw.debounceMu.Unlock()

	if t, ok := fw.debounceTimers[path]; ok {
		t.Reset(500 * time.Millisecond)
		return
	}

	fw.debounceTimers[path] = time.AfterFunc(500*time.Millisecond, func() {
		fw.debounceMu.Lock()
		delete(fw.debounceTimers, path)
		fw.debounceMu.Unlock()

		fw.processAudioFile(path)
	})
}

// processAudioFile submits a dropped audio file as a job. A file path is
// submitted at most once per process lifetime.
func (fw *FileWatcher) processAudioFile(path string) {
	fw.seenMu.Lock()
	if _, dup := fw.seen[path]; dup {
		fw.seenMu.Unlock()
		fw.filesSkipped.Add(1)
		return
	}
	fw.seen[path] = struct{}{}
	fw.seenMu.Unlock()

	if _, err := fw.submitter.SubmitPath(fw.ctx, path, SubmitOptions{Source: "watch"}); err != nil {
		fw.log.Warn().Err(err).Str("path", path).Msg("failed to submit watched file")
		fw.filesSkipped.Add(1)
		return
	}

	fw.filesProcessed.Add(1)
}

// runBackfill submits audio files already present in the watch directory,
// oldest first by modification time.
func (fw *FileWatcher) runBackfill() {
	fw.status.Store("backfilling")
	start := time.Now()

	type fileEntry struct {
		path    string
		modTime time.Time
	}
	var files []fileEntry

	_ = filepath.WalkDir(fw.watchDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !isAudioFile(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, fileEntry{path: path, modTime: info.ModTime()})
		return nil
	})

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})

	fw.log.Info().Int("files", len(files)).Msg("backfill starting")

	for _, f := range files {
		select {
		case <-fw.ctx.Done():
			fw.log.Info().Int64("processed", fw.filesProcessed.Load()).Msg("backfill interrupted by shutdown")
			return
		default:
		}
		fw.processAudioFile(f.path)
	}

	fw.status.Store("watching")
	fw.log.Info().
		Int64("processed", fw.filesProcessed.Load()).
		Dur("elapsed", time.Since(start)).
		Msg("backfill complete")
}

func isAudioFile(path string) bool {
	return audioExts[strings.ToLower(filepath.Ext(path))]
}
