// Package activity exposes per-visitor engagement scores supplied by the
// external activity tracker. The engine only ever reads from it; the
// SQLite-backed implementation in internal/store doubles as the local
// landing table for tracker imports.
package activity

import (
	"context"
	"time"

	"github.com/cohort-run/cohort/internal/identity"
)

// Source yields every visitor's summed engagement score for one calendar
// date, keyed by identity ref. Visitors without activity are simply absent
// from the map; aggregation treats them as scoring zero.
type Source interface {
	VisitorScores(ctx context.Context, date time.Time) (map[string]float64, error)
}

// Recorder is the write side used when importing tracker data.
type Recorder interface {
	InsertActivityScore(ctx context.Context, visitor identity.Identity, date time.Time, score float64) error
}
