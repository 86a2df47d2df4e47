package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"EchoVault/core/uploader"
	"EchoVault/db"
	"EchoVault/logger"

	"github.com/spf13/cobra"
)

var watchDir string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch an inbox directory and upload files dropped into it",
	Long: `Monitors a directory and queues every audio file that appears in it.
Title and artist are guessed from "Artist - Title.ext" filenames. Runs until
interrupted.`,
	Run: func(cmd *cobra.Command, args []string) {
		runWatch()
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchDir, "dir", "", "inbox directory (defaults to INBOX_DIR)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dir := watchDir
	if dir == "" {
		dir = cfg.InboxDir
	}

	client := uploader.NewClient(cfg.UploadEndpoint, cfg.UploadToken)
	worker := uploader.NewWorker(client, cfg.RetryAttempts, cfg.RetryBaseDelay)
	queue := uploader.NewQueue(worker, cfg.MaxConcurrent)
	defer queue.Close()

	if err := db.ConnectRedis(cfg); err != nil {
		logger.Warn("Redis unavailable, queue will not survive a restart", logger.ErrorField(err))
	} else {
		defer db.CloseRedis()
		store := uploader.NewRedisStore(db.RedisClient)

		if persisted, err := store.Load(ctx); err != nil {
			logger.Warn("failed to load persisted queue", logger.ErrorField(err))
		} else if persisted != nil && len(persisted.Items) > 0 {
			queue.Restore(persisted.Items)
			fmt.Printf("Restored %d items from a previous run\n", len(persisted.Items))
			if n := queue.RetryAllFailed(); n > 0 {
				fmt.Printf("Retrying %d previously failed uploads\n", n)
			}
		}

		defer queue.Subscribe(uploader.NewPersistObserver(store))()
	}

	watcher := uploader.NewWatcher(queue, dir)
	if err := watcher.Start(ctx); err != nil {
		logger.Fatal("failed to start inbox watcher", logger.ErrorField(err))
	}

	// A watch session runs for days; drop completed items periodically so
	// the queue does not grow without bound.
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := queue.ClearCompleted(); n > 0 {
					logger.Info("cleared completed uploads", logger.Int("count", n))
				}
			}
		}
	}()

	fmt.Printf("Watching %s, drop audio files to upload them (Ctrl-C to stop)\n", dir)
	<-ctx.Done()

	printSummary(queue.Snapshot())
}
