package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Show the admin API URL with access token",
	Long: `Show the admin API URL with the running server's access token.

Use this when you've scrolled past the startup message or need to
share the admin link.

Example:
  cohort token`,
	RunE: runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	tokenFile := getTokenFilePath()

	data, err := os.ReadFile(tokenFile)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no server running. Start with: cohort serve")
		}
		return fmt.Errorf("failed to read token file: %w", err)
	}

	token := string(data)
	if token == "" {
		return fmt.Errorf("token file is empty. Restart the server with: cohort serve")
	}

	serverURL := "http://localhost:8080"
	if p := os.Getenv("COHORT_PORT"); p != "" {
		serverURL = "http://localhost:" + p
	}

	fmt.Printf("Admin API: %s/api/experiments?token=%s\n", serverURL, token)
	return nil
}
