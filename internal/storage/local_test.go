package storage

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"
)

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())

	t.Run("save_and_open", func(t *testing.T) {
		key := "audio/2026-01-02/123-test.wav"
		if err := store.Save(ctx, key, []byte("riff data"), "audio/wav"); err != nil {
			t.Fatalf("Save: %v", err)
		}

		rc, err := store.Open(ctx, key)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if string(data) != "riff data" {
			t.Errorf("read back %q, want %q", data, "riff data")
		}
	})

	t.Run("local_path_for_existing", func(t *testing.T) {
		key := "transcripts/2026-01-02/123-test.txt"
		if err := store.Save(ctx, key, []byte("hello"), "text/plain"); err != nil {
			t.Fatalf("Save: %v", err)
		}
		path := store.LocalPath(key)
		if path == "" {
			t.Fatal("expected a local path for stored artifact")
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("stat %s: %v", path, err)
		}
	})

	t.Run("local_path_missing_is_empty", func(t *testing.T) {
		if p := store.LocalPath("audio/nope.wav"); p != "" {
			t.Errorf("expected empty path, got %q", p)
		}
	})

	t.Run("exists", func(t *testing.T) {
		key := "audio/2026-01-02/exists.wav"
		if store.Exists(ctx, key) {
			t.Error("Exists should be false before save")
		}
		if err := store.Save(ctx, key, []byte("x"), "audio/wav"); err != nil {
			t.Fatalf("Save: %v", err)
		}
		if !store.Exists(ctx, key) {
			t.Error("Exists should be true after save")
		}
	})

	t.Run("url_empty_for_local", func(t *testing.T) {
		url, err := store.URL(ctx, "audio/whatever.wav")
		if err != nil || url != "" {
			t.Errorf("got (%q, %v), want empty URL and nil error", url, err)
		}
	})

	t.Run("no_temp_files_left_behind", func(t *testing.T) {
		key := "audio/2026-01-03/clean.wav"
		if err := store.Save(ctx, key, []byte("x"), "audio/wav"); err != nil {
			t.Fatalf("Save: %v", err)
		}
		entries, err := os.ReadDir(store.Dir() + "/audio/2026-01-03")
		if err != nil {
			t.Fatalf("readdir: %v", err)
		}
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), ".artifact-") {
				t.Errorf("leftover temp file %s", e.Name())
			}
		}
	})
}
