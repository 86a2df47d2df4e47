package cmd

import (
	"fmt"

	"EchoVault/db"
	"EchoVault/logger"

	"github.com/spf13/cobra"
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Test the Redis connection",
	Long:  `Connects to Redis and performs a basic set/get/del round trip.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Testing Redis at %s:%s, DB %d\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)

		if err := db.ConnectRedis(cfg); err != nil {
			logger.Fatal("failed to connect to Redis", logger.ErrorField(err))
		}
		fmt.Println("Connected to Redis")

		if err := db.TestRedis(); err != nil {
			logger.Fatal("Redis round trip failed", logger.ErrorField(err))
		}
		fmt.Println("Redis round trip succeeded")

		if err := db.CloseRedis(); err != nil {
			logger.Warn("error closing Redis connection", logger.ErrorField(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
