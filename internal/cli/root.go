package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	dbPath  string
	logMode string
)

var rootCmd = &cobra.Command{
	Use:   "cohort",
	Short: "Cohort - a self-hosted A/B experiment engine",
	Long: `Cohort assigns site visitors to experiment groups, records goal
conversions, and reports conversion and engagement statistics.
Single Go binary, embedded SQLite.`,
	RunE: runServe, // Default action is to start the server
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", getEnvOrDefault("COHORT_DB_PATH", "./cohort.db"), "database path")
	rootCmd.PersistentFlags().StringVar(&logMode, "log", getEnvOrDefault("COHORT_LOG", "prod"), "log mode (prod or dev)")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
