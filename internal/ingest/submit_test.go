package ingest

import (
	"strings"
	"testing"
)

func TestAudioKey(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		wantBase string
	}{
		{"plain", "meeting.wav", "meeting.wav"},
		{"strips_directories", "/tmp/drop/meeting.wav", "meeting.wav"},
		{"sanitizes_odd_characters", "my meeting (final).wav", "my_meeting__final_.wav"},
		{"keeps_dots_dashes_underscores", "2026-01-02_call.v2.mp3", "2026-01-02_call.v2.mp3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := audioKey(tt.filename)
			if !strings.HasPrefix(key, "audio/") {
				t.Errorf("key %q missing audio/ prefix", key)
			}
			if !strings.HasSuffix(key, "-"+tt.wantBase) {
				t.Errorf("key %q, want suffix -%s", key, tt.wantBase)
			}
		})
	}

	t.Run("same_name_does_not_collide", func(t *testing.T) {
		if audioKey("a.wav") == audioKey("a.wav") {
			t.Error("two keys for the same filename should differ")
		}
	})
}

func TestContentTypeForExt(t *testing.T) {
	tests := []struct {
		ext  string
		want string
	}{
		{".wav", "audio/wav"},
		{".WAV", "audio/wav"},
		{".mp3", "audio/mpeg"},
		{".flac", "audio/flac"},
		{".ogg", "audio/ogg"},
		{".opus", "audio/ogg"},
		{".m4a", "audio/mp4"},
		{".xyz", "application/octet-stream"},
		{"", "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := contentTypeForExt(tt.ext); got != tt.want {
			t.Errorf("contentTypeForExt(%q) = %q, want %q", tt.ext, got, tt.want)
		}
	}
}

func TestIsAudioFile(t *testing.T) {
	for _, path := range []string{"a.wav", "b.MP3", "/drop/sub/c.flac", "d.opus"} {
		if !isAudioFile(path) {
			t.Errorf("isAudioFile(%q) = false, want true", path)
		}
	}
	for _, path := range []string{"notes.txt", "a.wav.part", "archive.zip", "noext"} {
		if isAudioFile(path) {
			t.Errorf("isAudioFile(%q) = true, want false", path)
		}
	}
}
