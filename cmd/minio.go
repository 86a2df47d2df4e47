package cmd

import (
	"context"
	"fmt"
	"time"

	"EchoVault/logger"
	"EchoVault/storage"

	"github.com/spf13/cobra"
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "Test the MinIO connection",
	Long:  `Connects to MinIO, ensures the configured bucket exists and runs a health check.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Testing MinIO at %s, bucket %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		store, err := storage.NewMinioStore(cfg)
		if err != nil {
			logger.Fatal("failed to initialize MinIO", logger.ErrorField(err))
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := store.HealthCheck(ctx); err != nil {
			logger.Fatal("MinIO health check failed", logger.ErrorField(err))
		}
		fmt.Println("MinIO connection healthy")
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)
}
