package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/cohort-run/cohort/internal/store"
)

// SetupTestStore creates a test database and returns the store with a cleanup function.
// Uses t.TempDir() for automatic cleanup on test completion.
func SetupTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := tmpDir + "/test.db"

	s, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})

	return s
}

// EnabledExperiment creates an experiment and moves it to the enabled
// state so assignment works.
func EnabledExperiment(t *testing.T, s *store.SQLiteStore, name string) *store.Experiment {
	t.Helper()

	ctx := context.Background()
	if _, err := s.CreateExperiment(ctx, name); err != nil {
		t.Fatalf("failed to create experiment: %v", err)
	}
	exp, err := s.SetExperimentState(ctx, name, store.StateEnabled)
	if err != nil {
		t.Fatalf("failed to enable experiment: %v", err)
	}
	return exp
}

// Date builds a UTC calendar date for test fixtures.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
