package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cscsync",
	Short: "Quiz progress synchronization",
	Long: "cscsync keeps per-question quiz counters in a local store and merges them into\n" +
		"an authoritative server aggregate. `serve` runs the server; the other commands\n" +
		"drive the client engine.",
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Server database DSN (overrides DB_DSN env var)")
	rootCmd.PersistentFlags().String("local", "", "Path to the client SQLite store (overrides CSCS_LOCAL_DB env var)")
	rootCmd.PersistentFlags().String("server", "", "Sync server URL (overrides CSCS_SERVER_URL env var)")
	rootCmd.PersistentFlags().String("identity", "", "Learner identity sent in the platform header (overrides CSCS_IDENTITY env var)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(answerCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(flushCmd)
	rootCmd.AddCommand(todayCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}

// flagOr returns the named string flag when set, otherwise fallback.
func flagOr(cmd *cobra.Command, name, fallback string) string {
	if v, _ := cmd.Flags().GetString(name); v != "" {
		return v
	}
	return fallback
}
