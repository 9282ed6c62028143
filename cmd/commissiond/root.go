package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "commissiond",
	Short: "Commission marketplace API server",
	Long: `commissiond serves the commission marketplace HTTP API.

Configuration is read from the environment (and a .env file when present).
STORE_DRIVER selects the MongoDB or PostgreSQL backend.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}
