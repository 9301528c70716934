package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cohort-run/cohort/internal/stats"
	"github.com/cohort-run/cohort/internal/store"

	"go.uber.org/zap"
)

// ActivityData is the read-time view of a persisted engagement report.
// Improvement is derived on read, and only when the control score is
// positive.
type ActivityData struct {
	ControlGroupSize int      `json:"control_group_size"`
	TestGroupSize    int      `json:"test_group_size"`
	ControlScore     *float64 `json:"control_group_score"`
	TestScore        *float64 `json:"test_group_score"`
	Improvement      *float64 `json:"test_group_improvement"`
	Confidence       *float64 `json:"confidence"`
}

// DailyEntry merges one date's engagement and conversion views. Activity
// is nil when no report was persisted for that date (a gap, not a fault).
type DailyEntry struct {
	Date       time.Time       `json:"date"`
	Activity   *ActivityData   `json:"activity_data"`
	Conversion *ConversionData `json:"conversion_data"`
}

// Builder orchestrates the aggregation engine and the confidence
// calculator into persisted engagement snapshots and on-demand conversion
// snapshots.
type Builder struct {
	store  store.Store
	engine *Engine
	log    *zap.SugaredLogger
	built  func() // optional counter hook
}

// Option configures a Builder.
type Option func(*Builder)

// WithBuildHook registers a callback invoked per persisted daily report.
func WithBuildHook(fn func()) Option {
	return func(b *Builder) { b.built = fn }
}

func NewBuilder(st store.Store, engine *Engine, log *zap.SugaredLogger, opts ...Option) *Builder {
	b := &Builder{store: st, engine: engine, log: log}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildDailyEngagement computes and upserts the engagement report for one
// date. Re-running with unchanged underlying data stores an identical row.
func (b *Builder) BuildDailyEngagement(ctx context.Context, exp *store.Experiment, date time.Time) (*store.DailyEngagementReport, error) {
	summary, err := b.engine.Engagement(ctx, exp, date)
	if err != nil {
		return nil, err
	}

	report := &store.DailyEngagementReport{
		ExperimentID:     exp.ID,
		Date:             store.DateOf(date),
		ControlGroupSize: summary.Control.Size,
		TestGroupSize:    summary.Test.Size,
		Confidence:       stats.ConfidenceMeans(summary.Control, summary.Test),
	}
	if summary.Control.Size > 0 {
		mean := summary.Control.Mean
		report.ControlScore = &mean
	}
	if summary.Test.Size > 0 {
		mean := summary.Test.Mean
		report.TestScore = &mean
	}

	if err := b.store.UpsertDailyEngagementReport(ctx, report); err != nil {
		return nil, err
	}
	if b.built != nil {
		b.built()
	}
	return report, nil
}

// ConversionSnapshot computes the transient conversion report for one
// date. Nothing is persisted; the caller always sees the latest records.
func (b *Builder) ConversionSnapshot(ctx context.Context, exp *store.Experiment, date time.Time) (*ConversionData, error) {
	return b.engine.Conversion(ctx, exp, date)
}

// TimeSeries returns one entry per date in [start, end], newest first.
// A missing engagement report is logged and rendered as a nil activity
// section; conversion data is recomputed for every date.
func (b *Builder) TimeSeries(ctx context.Context, exp *store.Experiment, start, end time.Time) ([]DailyEntry, error) {
	start = store.DateOf(start)
	end = store.DateOf(end)
	if end.Before(start) {
		return nil, fmt.Errorf("end date %s before start date %s", end.Format("2006-01-02"), start.Format("2006-01-02"))
	}

	var entries []DailyEntry
	for date := end; !date.Before(start); date = date.AddDate(0, 0, -1) {
		entry := DailyEntry{Date: date}

		stored, err := b.store.GetDailyEngagementReport(ctx, exp.ID, date)
		switch {
		case errors.Is(err, store.ErrNotFound):
			b.log.Warnw("no engagement report", "experiment", exp.Name, "date", date.Format("2006-01-02"))
		case err != nil:
			return nil, err
		default:
			entry.Activity = activityData(stored)
		}

		conversion, err := b.engine.Conversion(ctx, exp, date)
		if err != nil {
			return nil, err
		}
		entry.Conversion = conversion

		entries = append(entries, entry)
	}
	return entries, nil
}

func activityData(report *store.DailyEngagementReport) *ActivityData {
	data := &ActivityData{
		ControlGroupSize: report.ControlGroupSize,
		TestGroupSize:    report.TestGroupSize,
		ControlScore:     report.ControlScore,
		TestScore:        report.TestScore,
		Confidence:       report.Confidence,
	}
	if report.ControlScore != nil && report.TestScore != nil && *report.ControlScore > 0 {
		data.Improvement = stats.Improvement(*report.ControlScore, *report.TestScore)
	}
	return data
}

// RunDaily builds the engagement report for the date for every experiment
// whose report window covers it. Per-experiment failures are logged and
// skipped so one bad experiment cannot starve the rest of the batch.
func (b *Builder) RunDaily(ctx context.Context, date time.Time) error {
	experiments, err := b.store.ListExperiments(ctx)
	if err != nil {
		return fmt.Errorf("list experiments: %w", err)
	}

	date = store.DateOf(date)
	for _, exp := range experiments {
		start, end, ok := exp.ReportWindow(date.AddDate(0, 0, 1))
		if !ok || date.Before(start) || date.After(end) {
			continue
		}
		if _, err := b.BuildDailyEngagement(ctx, exp, date); err != nil {
			b.log.Errorw("daily engagement build failed",
				"experiment", exp.Name, "date", date.Format("2006-01-02"), "error", err)
			continue
		}
		b.log.Infow("daily engagement report built",
			"experiment", exp.Name, "date", date.Format("2006-01-02"))
	}
	return nil
}
