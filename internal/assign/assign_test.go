package assign_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cohort-run/cohort/internal/analytics"
	"github.com/cohort-run/cohort/internal/assign"
	"github.com/cohort-run/cohort/internal/goals"
	"github.com/cohort-run/cohort/internal/identity"
	"github.com/cohort-run/cohort/internal/logger"
	"github.com/cohort-run/cohort/internal/store"
	"github.com/cohort-run/cohort/internal/testutil"
)

func newService(t *testing.T, s store.Store, opts ...assign.Option) *assign.Service {
	t.Helper()
	forwarder := analytics.New(analytics.NopSink{}, 8, logger.Nop())
	t.Cleanup(forwarder.Close)
	return assign.NewService(s, forwarder, logger.Nop(), opts...)
}

func TestAssign_StableAcrossCalls(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()
	exp := testutil.EnabledExperiment(t, s, "signup-flow")
	svc := newService(t, s)
	visitor := identity.Authenticated("user-1")

	group, created, err := svc.Assign(ctx, exp, visitor, "127.0.0.1")
	if err != nil {
		t.Fatalf("failed to assign: %v", err)
	}
	if !created {
		t.Error("first assignment should create the participant")
	}

	for i := 0; i < 5; i++ {
		again, created, err := svc.Assign(ctx, exp, visitor, "127.0.0.1")
		if err != nil {
			t.Fatalf("failed to re-assign: %v", err)
		}
		if created {
			t.Error("repeat assignment should not create")
		}
		if again != group {
			t.Fatalf("group changed between calls: %s vs %s", again, group)
		}
	}
}

func TestAssign_ConcurrentFirstVisits(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()
	exp := testutil.EnabledExperiment(t, s, "signup-flow")
	svc := newService(t, s)
	visitor := identity.Authenticated("user-1")

	const n = 16
	groups := make([]store.Group, n)
	createdCount := 0

	var wg sync.WaitGroup
	var mu sync.Mutex
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			group, created, err := svc.Assign(ctx, exp, visitor, "127.0.0.1")
			if err != nil {
				t.Errorf("assign failed: %v", err)
				return
			}
			mu.Lock()
			groups[i] = group
			if created {
				createdCount++
			}
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	if createdCount != 1 {
		t.Errorf("expected exactly 1 creation, got %d", createdCount)
	}
	for i := 1; i < n; i++ {
		if groups[i] != groups[0] {
			t.Fatalf("concurrent calls observed different groups: %v", groups)
		}
	}
}

func TestAssign_DisabledExperiment(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()
	svc := newService(t, s)

	exp, err := s.CreateExperiment(ctx, "signup-flow")
	if err != nil {
		t.Fatal(err)
	}

	_, _, err = svc.Assign(ctx, exp, identity.Authenticated("user-1"), "")
	if !errors.Is(err, assign.ErrNotEligible) {
		t.Errorf("expected ErrNotEligible for disabled experiment, got %v", err)
	}
}

func TestAssign_PromotedExperiment(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()
	testutil.EnabledExperiment(t, s, "signup-flow")
	exp, err := s.SetExperimentState(ctx, "signup-flow", store.StatePromoted)
	if err != nil {
		t.Fatal(err)
	}
	svc := newService(t, s)
	visitor := identity.Authenticated("user-1")

	group, created, err := svc.Assign(ctx, exp, visitor, "")
	if err != nil {
		t.Fatalf("failed to assign: %v", err)
	}
	if group != store.GroupTest {
		t.Errorf("promoted experiment should answer test, got %s", group)
	}
	if created {
		t.Error("promoted experiment should not create participants")
	}

	// No participant row may exist afterwards.
	if _, err := s.GetParticipant(ctx, exp.ID, visitor); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected no participant row, got err %v", err)
	}
}

func TestAssign_UnconfirmedAnonymousVisitor(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()
	exp := testutil.EnabledExperiment(t, s, "signup-flow")
	svc := newService(t, s)

	if err := s.EnsureAnonymousVisitor(ctx, "vid-1"); err != nil {
		t.Fatal(err)
	}

	_, _, err := svc.Assign(ctx, exp, identity.Anonymous("vid-1"), "")
	if !errors.Is(err, assign.ErrNotEligible) {
		t.Errorf("expected ErrNotEligible for unconfirmed visitor, got %v", err)
	}

	// After confirming the visitor, assignment works.
	if err := s.ConfirmHuman(ctx, "vid-1"); err != nil {
		t.Fatal(err)
	}
	_, created, err := svc.Assign(ctx, exp, identity.Anonymous("vid-1"), "")
	if err != nil {
		t.Fatalf("failed to assign confirmed visitor: %v", err)
	}
	if !created {
		t.Error("confirmed visitor's first assignment should create")
	}
}

func TestAssign_ZeroVisitor(t *testing.T) {
	s := testutil.SetupTestStore(t)
	exp := testutil.EnabledExperiment(t, s, "signup-flow")
	svc := newService(t, s)

	_, _, err := svc.Assign(context.Background(), exp, identity.Identity{}, "")
	if !errors.Is(err, assign.ErrNotEligible) {
		t.Errorf("expected ErrNotEligible for zero visitor, got %v", err)
	}
}

func TestAssign_ChooserControlsNewGroups(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()
	exp := testutil.EnabledExperiment(t, s, "signup-flow")
	svc := newService(t, s, assign.WithChooser(func() store.Group { return store.GroupControl }))

	group, _, err := svc.Assign(ctx, exp, identity.Authenticated("user-1"), "")
	if err != nil {
		t.Fatal(err)
	}
	if group != store.GroupControl {
		t.Errorf("expected the chooser's group, got %s", group)
	}
}

// Goal recording is driven by the same enrollments assignment creates, so
// the end-to-end pairing lives here.
func TestAssignThenRecordGoal(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()
	exp := testutil.EnabledExperiment(t, s, "signup-flow")
	svc := newService(t, s)
	visitor := identity.Authenticated("user-1")

	if _, _, err := svc.Assign(ctx, exp, visitor, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateGoalType(ctx, "purchase"); err != nil {
		t.Fatal(err)
	}

	forwarder := analytics.New(analytics.NopSink{}, 8, logger.Nop())
	t.Cleanup(forwarder.Close)
	recorder := goals.NewRecorder(s, forwarder, logger.Nop())

	if err := recorder.Record(ctx, "purchase", visitor, ""); err != nil {
		t.Fatalf("failed to record goal: %v", err)
	}

	records, err := s.GoalRecords(ctx, exp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 goal record, got %d", len(records))
	}
}
