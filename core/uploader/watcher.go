package uploader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"EchoVault/logger"
)

// audioExtensions are the payload types the inbox accepts.
var audioExtensions = map[string]struct{}{
	".mp3":  {},
	".flac": {},
	".wav":  {},
	".m4a":  {},
	".aac":  {},
	".ogg":  {},
}

// settleDelay gives the writing process time to finish before we enqueue a
// freshly created file.
const settleDelay = 500 * time.Millisecond

// IsAudioPath reports whether the path carries a supported audio extension.
func IsAudioPath(path string) bool {
	_, ok := audioExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Watcher monitors an inbox directory and enqueues audio files dropped into
// it, with metadata guessed from the filename.
type Watcher struct {
	queue *Queue
	dir   string
}

// NewWatcher creates a watcher feeding the given queue.
func NewWatcher(queue *Queue, dir string) *Watcher {
	return &Watcher{queue: queue, dir: dir}
}

// Start begins watching. It returns once the watch is established; events
// are handled on a background goroutine until the context is canceled.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("create inbox dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch inbox dir: %w", err)
	}

	logger.Info("watching inbox directory", logger.String("dir", w.dir))

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				// The settle wait must not stall the event loop, or a
				// burst of dropped files is serialized at settleDelay each.
				go w.handleFile(event.Name)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("inbox watcher error", logger.ErrorField(err))
			}
		}
	}()

	return nil
}

func (w *Watcher) handleFile(path string) {
	if !IsAudioPath(path) {
		return
	}

	// Let the writer finish; a Create event fires on open, not close.
	time.Sleep(settleDelay)

	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Size() == 0 {
		return
	}

	title, artist := GuessMetadata(filepath.Base(path))
	id := w.queue.Add(path, title, artist, "", nil)
	logger.Info("inbox file enqueued",
		logger.String("itemId", id),
		logger.String("file", path),
		logger.String("title", title),
		logger.String("artist", artist))
}

// GuessMetadata derives title and artist from an "Artist - Title.ext"
// filename. Without a separator the whole stem becomes the title.
func GuessMetadata(filename string) (title, artist string) {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	if before, after, found := strings.Cut(stem, " - "); found {
		artist = strings.TrimSpace(before)
		title = strings.TrimSpace(after)
	} else {
		title = strings.TrimSpace(stem)
	}
	if title == "" {
		title = stem
	}
	return title, artist
}
