// Package goals records conversion events. Recording is append-only and
// forgiving: unknown goal names are reported to the caller as
// ErrUnknownGoalType so the HTTP layer can log and still answer the
// tracking pixel with success.
package goals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cohort-run/cohort/internal/analytics"
	"github.com/cohort-run/cohort/internal/identity"
	"github.com/cohort-run/cohort/internal/store"

	"go.uber.org/zap"
)

// ErrUnknownGoalType means the goal name is not in the registry.
var ErrUnknownGoalType = errors.New("unknown goal type")

type Recorder struct {
	store     store.Store
	forwarder *analytics.Forwarder
	log       *zap.SugaredLogger
	recorded  func(goalType string) // optional counter hook
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithRecordHook registers a callback invoked per persisted record batch.
func WithRecordHook(fn func(goalType string)) Option {
	return func(r *Recorder) { r.recorded = fn }
}

func NewRecorder(st store.Store, forwarder *analytics.Forwarder, log *zap.SugaredLogger, opts ...Option) *Recorder {
	r := &Recorder{store: st, forwarder: forwarder, log: log}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record writes one goal record per active enrollment of the visitor.
// A visitor with no enrollment is a no-op, not an error. The remoteAddr
// only feeds the best-effort analytics notification.
func (r *Recorder) Record(ctx context.Context, goalName string, visitor identity.Identity, remoteAddr string) error {
	goalType, err := r.store.GetGoalType(ctx, goalName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %q", ErrUnknownGoalType, goalName)
		}
		return fmt.Errorf("look up goal type: %w", err)
	}

	if visitor.IsZero() {
		return nil
	}

	enrollments, err := r.store.ActiveEnrollments(ctx, visitor)
	if err != nil {
		return fmt.Errorf("list enrollments: %w", err)
	}
	if len(enrollments) == 0 {
		return nil
	}

	now := time.Now()
	for _, enrollment := range enrollments {
		if err := r.store.InsertGoalRecord(ctx, enrollment.ExperimentID, goalType.ID, visitor, now); err != nil {
			return fmt.Errorf("insert goal record: %w", err)
		}
	}

	if r.recorded != nil {
		r.recorded(goalType.Name)
	}
	r.forwarder.GoalRecorded(goalType.Name, visitor.Ref(), remoteAddr)
	return nil
}
