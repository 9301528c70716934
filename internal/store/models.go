package store

import (
	"fmt"
	"time"

	"github.com/cohort-run/cohort/internal/identity"
)

// ExperimentState is the lifecycle state of an experiment.
type ExperimentState int

const (
	// StateDisabled experiments refuse assignment.
	StateDisabled ExperimentState = 0
	// StateEnabled experiments assign visitors to control/test groups.
	StateEnabled ExperimentState = 1
	// StatePromoted experiments are concluded: the winning test behavior
	// applies to all traffic and no further participants are created.
	StatePromoted ExperimentState = 2
)

func (s ExperimentState) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateEnabled:
		return "enabled"
	case StatePromoted:
		return "promoted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ParseState maps a state name to its ExperimentState.
func ParseState(name string) (ExperimentState, error) {
	switch name {
	case "disabled":
		return StateDisabled, nil
	case "enabled":
		return StateEnabled, nil
	case "promoted":
		return StatePromoted, nil
	default:
		return 0, fmt.Errorf("unknown experiment state %q", name)
	}
}

// Group is a participant's experiment arm.
type Group int

const (
	GroupControl Group = 0
	GroupTest    Group = 1
)

func (g Group) String() string {
	if g == GroupTest {
		return "test"
	}
	return "control"
}

type Experiment struct {
	ID        int64
	Name      string
	State     ExperimentState
	StartDate *time.Time // stamped when the experiment first becomes enabled
	EndDate   *time.Time // stamped when the experiment leaves the enabled state
	CreatedAt time.Time
}

// ReportWindow returns the inclusive date range for which reports are
// meaningful: [start_date, min(end_date, yesterday)]. ok is false when the
// experiment never started or the window is empty.
func (e *Experiment) ReportWindow(today time.Time) (start, end time.Time, ok bool) {
	if e.StartDate == nil {
		return time.Time{}, time.Time{}, false
	}
	start = DateOf(*e.StartDate)
	end = DateOf(today).AddDate(0, 0, -1)
	if e.EndDate != nil && DateOf(*e.EndDate).Before(end) {
		end = DateOf(*e.EndDate)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

type AnonymousVisitor struct {
	ID             string
	ConfirmedHuman bool
	CreatedAt      time.Time
}

// Participant binds one visitor identity to one experiment's group.
// Created once, never mutated, never deleted.
type Participant struct {
	ID             int64
	ExperimentID   int64
	Visitor        identity.Identity
	Group          Group
	EnrollmentDate time.Time
}

type GoalType struct {
	ID   int64
	Name string
}

// GoalRecord is an append-only conversion event for one enrollment.
type GoalRecord struct {
	ID           int64
	ExperimentID int64
	GoalTypeID   int64
	GoalType     string
	Visitor      identity.Identity
	CreatedAt    time.Time
}

// DailyEngagementReport is the persisted per-day engagement snapshot.
// Scores and confidence are nil when not computable for that day.
type DailyEngagementReport struct {
	ID               int64
	ExperimentID     int64
	Date             time.Time
	ControlGroupSize int
	TestGroupSize    int
	ControlScore     *float64
	TestScore        *float64
	Confidence       *float64
}

// GroupSizes is the cumulative cohort size per group as of a date.
type GroupSizes struct {
	Control int
	Test    int
}

// ConversionCount is a cumulative-to-date record count for one goal type
// in one group.
type ConversionCount struct {
	GoalType string
	Group    Group
	Count    int
}

// CohortMember is a participant projected to what aggregation needs.
type CohortMember struct {
	Visitor identity.Identity
	Group   Group
}

// DateOf truncates a time to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
