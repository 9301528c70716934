// Package report turns participants, goal records, and activity scores
// into per-day control/test comparisons. Conversion data is always
// computed on demand so it reflects the latest records; engagement data
// is computed by the daily batch and persisted (see builder.go).
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/cohort-run/cohort/internal/activity"
	"github.com/cohort-run/cohort/internal/stats"
	"github.com/cohort-run/cohort/internal/store"
)

// GoalData is one goal type's control/test comparison. Improvement and
// confidence are nil when not computable.
type GoalData struct {
	ControlCount int      `json:"control_count"`
	TestCount    int      `json:"test_count"`
	ControlRate  float64  `json:"control_rate"`
	TestRate     float64  `json:"test_rate"`
	Improvement  *float64 `json:"improvement"`
	Confidence   *float64 `json:"confidence"`
}

// ConversionData is the transient daily conversion report: per-goal-type
// rows plus an aggregate totals row.
type ConversionData struct {
	ControlGroupSize int                 `json:"control_group_size"`
	TestGroupSize    int                 `json:"test_group_size"`
	GoalTypes        map[string]GoalData `json:"goal_types"`
	Totals           GoalData            `json:"totals"`
}

// EngagementSummary carries each group's activity-score distribution for
// one date, sized by the cumulative cohort.
type EngagementSummary struct {
	Control stats.MeanSummary
	Test    stats.MeanSummary
}

// Engine reduces raw records into group summaries for one experiment and
// one calendar date.
type Engine struct {
	store  store.Store
	source activity.Source
}

func NewEngine(st store.Store, source activity.Source) *Engine {
	return &Engine{store: st, source: source}
}

// Conversion aggregates cumulative-to-date goal records for the cohort
// enrolled on or before the date. Rates are "conversions so far over
// participants so far", so they pair with the cumulative group sizes.
func (e *Engine) Conversion(ctx context.Context, exp *store.Experiment, date time.Time) (*ConversionData, error) {
	sizes, err := e.store.GroupSizes(ctx, exp.ID, date)
	if err != nil {
		return nil, fmt.Errorf("group sizes: %w", err)
	}

	counts, err := e.store.ConversionCounts(ctx, exp.ID, date)
	if err != nil {
		return nil, fmt.Errorf("conversion counts: %w", err)
	}

	type pair struct{ control, test int }
	byGoal := make(map[string]pair)
	var totals pair
	for _, c := range counts {
		p := byGoal[c.GoalType]
		if c.Group == store.GroupTest {
			p.test += c.Count
			totals.test += c.Count
		} else {
			p.control += c.Count
			totals.control += c.Count
		}
		byGoal[c.GoalType] = p
	}

	data := &ConversionData{
		ControlGroupSize: sizes.Control,
		TestGroupSize:    sizes.Test,
		GoalTypes:        make(map[string]GoalData, len(byGoal)),
		Totals:           goalData(totals.control, totals.test, sizes),
	}
	for name, p := range byGoal {
		data.GoalTypes[name] = goalData(p.control, p.test, sizes)
	}
	return data, nil
}

func goalData(controlCount, testCount int, sizes store.GroupSizes) GoalData {
	d := GoalData{
		ControlCount: controlCount,
		TestCount:    testCount,
	}
	if sizes.Control > 0 {
		d.ControlRate = float64(controlCount) / float64(sizes.Control)
	}
	if sizes.Test > 0 {
		d.TestRate = float64(testCount) / float64(sizes.Test)
	}
	d.Improvement = stats.Improvement(d.ControlRate, d.TestRate)
	d.Confidence = stats.ConfidenceProportions(controlCount, sizes.Control, testCount, sizes.Test)
	return d
}

// Engagement reduces the cohort's activity scores for the date into per
// group size, mean, and sample variance. Cohort members without any
// activity that day score zero, so group sizes stay cumulative.
func (e *Engine) Engagement(ctx context.Context, exp *store.Experiment, date time.Time) (*EngagementSummary, error) {
	members, err := e.store.CohortMembers(ctx, exp.ID, date)
	if err != nil {
		return nil, fmt.Errorf("cohort members: %w", err)
	}

	scores, err := e.source.VisitorScores(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("visitor scores: %w", err)
	}

	var control, test welford
	for _, m := range members {
		score := scores[m.Visitor.Ref()]
		if m.Group == store.GroupTest {
			test.add(score)
		} else {
			control.add(score)
		}
	}

	return &EngagementSummary{
		Control: control.summary(),
		Test:    test.summary(),
	}, nil
}

// welford accumulates mean and sample variance in one pass.
type welford struct {
	n    int
	mean float64
	m2   float64
}

func (w *welford) add(x float64) {
	w.n++
	delta := x - w.mean
	w.mean += delta / float64(w.n)
	w.m2 += delta * (x - w.mean)
}

func (w *welford) summary() stats.MeanSummary {
	s := stats.MeanSummary{Size: w.n, Mean: w.mean}
	if w.n > 1 {
		s.Variance = w.m2 / float64(w.n-1)
	}
	return s
}
