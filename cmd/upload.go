package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"EchoVault/core/uploader"
	"EchoVault/db"
	"EchoVault/logger"
	"EchoVault/model"

	"github.com/spf13/cobra"
)

var (
	uploadArtist string
	uploadAlbum  string
	uploadGenres []string
)

var uploadCmd = &cobra.Command{
	Use:   "upload [files or directories...]",
	Short: "Upload audio files to the EchoVault server",
	Long: `Queues the given audio files (directories are walked) and uploads them
with bounded concurrency and automatic retry. Interrupted runs leave a queue
snapshot in Redis and resume where they left off.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runUpload(args)
	},
}

func init() {
	uploadCmd.Flags().StringVar(&uploadArtist, "artist", "", "artist for all files (overrides filename guess)")
	uploadCmd.Flags().StringVar(&uploadAlbum, "album", "", "album for all files")
	uploadCmd.Flags().StringSliceVar(&uploadGenres, "genres", nil, "genres for all files")
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(args []string) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client := uploader.NewClient(cfg.UploadEndpoint, cfg.UploadToken)
	worker := uploader.NewWorker(client, cfg.RetryAttempts, cfg.RetryBaseDelay)
	queue := uploader.NewQueue(worker, cfg.MaxConcurrent)
	defer queue.Close()

	// Queue persistence is best effort. Without Redis the upload still runs;
	// it just cannot resume after a crash.
	var store uploader.SnapshotStore
	if err := db.ConnectRedis(cfg); err != nil {
		logger.Warn("Redis unavailable, queue will not survive a restart", logger.ErrorField(err))
	} else {
		defer db.CloseRedis()
		redisStore := uploader.NewRedisStore(db.RedisClient)
		store = redisStore

		if persisted, err := redisStore.Load(ctx); err != nil {
			logger.Warn("failed to load persisted queue", logger.ErrorField(err))
		} else if persisted != nil && len(persisted.Items) > 0 {
			queue.Restore(persisted.Items)
			fmt.Printf("Restored %d items from a previous run\n", len(persisted.Items))
			// Restored failures stay failed until retried; a new run is
			// the retry.
			if n := queue.RetryAllFailed(); n > 0 {
				fmt.Printf("Retrying %d previously failed uploads\n", n)
			}
		}

		unsubscribe := queue.Subscribe(uploader.NewPersistObserver(store))
		defer unsubscribe()
	}

	defer queue.Subscribe(printProgress)()

	enqueued := 0
	for _, arg := range args {
		enqueued += enqueuePath(queue, arg)
	}
	if enqueued == 0 && len(queue.Snapshot().Items) == 0 {
		fmt.Println("No audio files found")
		return
	}
	fmt.Printf("Queued %d files, uploading with %d workers\n", enqueued, cfg.MaxConcurrent)

	if err := queue.Wait(ctx); err != nil {
		fmt.Println("\nInterrupted; pending items were saved and will resume next run")
		return
	}

	printSummary(queue.Snapshot())
}

// enqueuePath queues one file, or every audio file under a directory.
func enqueuePath(queue *uploader.Queue, path string) int {
	info, err := os.Stat(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "skipping %s: %v\n", path, err)
		return 0
	}

	if !info.IsDir() {
		if !uploader.IsAudioPath(path) {
			fmt.Fprintf(os.Stderr, "skipping %s: not a supported audio file\n", path)
			return 0
		}
		enqueueFile(queue, path)
		return 1
	}

	count := 0
	filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || !uploader.IsAudioPath(p) {
			return nil
		}
		enqueueFile(queue, p)
		count++
		return nil
	})
	return count
}

func enqueueFile(queue *uploader.Queue, path string) {
	title, artist := uploader.GuessMetadata(filepath.Base(path))
	if uploadArtist != "" {
		artist = uploadArtist
	}
	queue.Add(path, title, artist, uploadAlbum, model.NormalizeGenres(uploadGenres))
}

// printProgress renders one line per queue mutation.
func printProgress(snap model.QueueSnapshot) {
	for _, it := range snap.Items {
		if it.Status == model.StatusUploading {
			fmt.Printf("\r[%d/%d active] %s - %s: %.0f%%   ",
				snap.ActiveCount, snap.MaxConcurrent, it.Artist, it.Title, it.Progress)
			return
		}
	}
}

func printSummary(snap model.QueueSnapshot) {
	var complete, failed, duplicates int
	for _, it := range snap.Items {
		switch {
		case it.Duplicate:
			duplicates++
		case it.Status == model.StatusComplete:
			complete++
		case it.Status == model.StatusFailed:
			failed++
		}
	}

	fmt.Printf("\nDone: %d uploaded, %d duplicates skipped, %d failed\n", complete, duplicates, failed)
	for _, it := range snap.Items {
		if it.Status == model.StatusFailed && !it.Duplicate {
			fmt.Printf("  failed: %s (%s)\n", it.FilePath, it.Error)
		}
	}
}
