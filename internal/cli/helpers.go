package cli

import (
	"fmt"
	"path/filepath"

	"github.com/cohort-run/cohort/internal/store"
)

// withStore opens the database, executes the function, and handles cleanup.
func withStore(fn func(*store.SQLiteStore) error) error {
	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	return fn(s)
}

// getTokenFilePath returns the path to the token file, stored alongside
// the database.
func getTokenFilePath() string {
	dir := filepath.Dir(dbPath)
	return filepath.Join(dir, ".cohort-token")
}
