package store

import (
	"context"
	"time"

	"github.com/cohort-run/cohort/internal/identity"
)

// Store defines the persistence operations of the experiment engine.
type Store interface {
	// Experiment operations
	CreateExperiment(ctx context.Context, name string) (*Experiment, error)
	GetExperiment(ctx context.Context, name string) (*Experiment, error)
	ListExperiments(ctx context.Context) ([]*Experiment, error)
	SetExperimentState(ctx context.Context, name string, state ExperimentState) (*Experiment, error)

	// Visitor operations
	EnsureAnonymousVisitor(ctx context.Context, id string) error
	GetAnonymousVisitor(ctx context.Context, id string) (*AnonymousVisitor, error)
	ConfirmHuman(ctx context.Context, id string) error

	// Participant operations. CreateParticipant is an atomic
	// insert-if-absent: on a concurrent duplicate it returns the winning
	// row with created=false.
	GetParticipant(ctx context.Context, experimentID int64, visitor identity.Identity) (*Participant, error)
	CreateParticipant(ctx context.Context, experimentID int64, visitor identity.Identity, group Group, enrollment time.Time) (*Participant, bool, error)
	ActiveEnrollments(ctx context.Context, visitor identity.Identity) ([]*Participant, error)

	// Goal operations
	CreateGoalType(ctx context.Context, name string) (*GoalType, error)
	GetGoalType(ctx context.Context, name string) (*GoalType, error)
	ListGoalTypes(ctx context.Context) ([]*GoalType, error)
	InsertGoalRecord(ctx context.Context, experimentID, goalTypeID int64, visitor identity.Identity, at time.Time) error
	GoalRecords(ctx context.Context, experimentID int64) ([]*GoalRecord, error)

	// Aggregation reads, all bounded to one experiment and cumulative to
	// the given date.
	GroupSizes(ctx context.Context, experimentID int64, date time.Time) (GroupSizes, error)
	ConversionCounts(ctx context.Context, experimentID int64, date time.Time) ([]ConversionCount, error)
	CohortMembers(ctx context.Context, experimentID int64, date time.Time) ([]CohortMember, error)

	// Activity score operations. Scores arrive from an external tracker
	// and feed engagement aggregation.
	InsertActivityScore(ctx context.Context, visitor identity.Identity, date time.Time, score float64) error
	VisitorScores(ctx context.Context, date time.Time) (map[string]float64, error)

	// Report operations
	UpsertDailyEngagementReport(ctx context.Context, report *DailyEngagementReport) error
	GetDailyEngagementReport(ctx context.Context, experimentID int64, date time.Time) (*DailyEngagementReport, error)

	// Lifecycle
	Close() error
}
