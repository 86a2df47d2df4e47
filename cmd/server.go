package cmd

import (
	"EchoVault/logger"
	"EchoVault/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the EchoVault API server",
	Long:  `Starts the HTTP server: authentication, song uploads with duplicate detection, streaming and the library event feed.`,
	Run: func(cmd *cobra.Command, args []string) {
		logger.Info("starting EchoVault server")
		server.Start(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
