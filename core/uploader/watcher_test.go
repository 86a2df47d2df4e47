package uploader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGuessMetadata(t *testing.T) {
	tests := []struct {
		filename   string
		wantTitle  string
		wantArtist string
	}{
		{"The Beatles - Yesterday.mp3", "Yesterday", "The Beatles"},
		{"Yesterday.flac", "Yesterday", ""},
		{"AC-DC - Back In Black.m4a", "Back In Black", "AC-DC"},
		{"Artist - Title - Subtitle.ogg", "Title - Subtitle", "Artist"},
		{"  spaced  .wav", "spaced", ""},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			title, artist := GuessMetadata(tt.filename)
			if title != tt.wantTitle || artist != tt.wantArtist {
				t.Fatalf("GuessMetadata(%q) = %q/%q, want %q/%q",
					tt.filename, title, artist, tt.wantTitle, tt.wantArtist)
			}
		})
	}
}

func TestIsAudioPath(t *testing.T) {
	for path, want := range map[string]bool{
		"song.mp3":        true,
		"song.FLAC":       true,
		"dir/track.ogg":   true,
		"notes.txt":       false,
		"cover.jpg":       false,
		"noextension":     false,
		"archive.mp3.bak": false,
	} {
		if got := IsAudioPath(path); got != want {
			t.Errorf("IsAudioPath(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestWatcherHandlesBurstsConcurrently(t *testing.T) {
	dir := t.TempDir()
	q := NewQueue(newStubWorker(), 1)
	defer q.Close()
	q.Pause() // keep enqueued items from dispatching

	w := NewWatcher(q, dir)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start watcher: %v", err)
	}

	const n = 4
	for i := 0; i < n; i++ {
		name := filepath.Join(dir, fmt.Sprintf("Artist - Song %d.mp3", i))
		if err := os.WriteFile(name, []byte("audio"), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	// Settle waits run per file; a burst must not be serialized at
	// settleDelay each, so all items appear well before n*settleDelay.
	deadline := time.Now().Add(3 * settleDelay)
	for {
		got := len(q.Snapshot().Items)
		if got == n {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("only %d of %d dropped files enqueued within %v", got, n, 3*settleDelay)
		}
		time.Sleep(10 * time.Millisecond)
	}

	for _, it := range q.Snapshot().Items {
		if it.Artist != "Artist" {
			t.Errorf("item %s artist = %q, want guessed from filename", it.ID, it.Artist)
		}
	}
}
