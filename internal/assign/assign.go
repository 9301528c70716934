// Package assign binds visitors to experiment groups. The binding is
// permanent: once a visitor has a group for an experiment, every later
// call returns that group, and concurrent first visits resolve to a
// single durable row through the store's insert-if-absent.
package assign

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/cohort-run/cohort/internal/analytics"
	"github.com/cohort-run/cohort/internal/identity"
	"github.com/cohort-run/cohort/internal/store"

	"go.uber.org/zap"
)

// ErrNotEligible means the visitor does not participate: the experiment is
// disabled, or the visitor has not been confirmed human. Callers fall back
// to non-participating behavior, never an error page.
var ErrNotEligible = errors.New("not eligible for assignment")

// Chooser picks the group for a brand-new participant.
type Chooser func() store.Group

// UniformChooser is the default 50/50 split.
func UniformChooser() store.Group {
	return store.Group(rand.Intn(2))
}

// Service implements get-or-create group assignment.
type Service struct {
	store     store.Store
	choose    Chooser
	forwarder *analytics.Forwarder
	log       *zap.SugaredLogger
	enrolled  func(group store.Group) // optional counter hook
}

// Option configures a Service.
type Option func(*Service)

// WithChooser overrides the default uniform split.
func WithChooser(choose Chooser) Option {
	return func(s *Service) { s.choose = choose }
}

// WithEnrollHook registers a callback invoked on first-time creation.
func WithEnrollHook(fn func(group store.Group)) Option {
	return func(s *Service) { s.enrolled = fn }
}

func NewService(st store.Store, forwarder *analytics.Forwarder, log *zap.SugaredLogger, opts ...Option) *Service {
	s := &Service{
		store:     st,
		choose:    UniformChooser,
		forwarder: forwarder,
		log:       log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Assign returns the visitor's permanent group for the experiment,
// creating the participant exactly once.
//
// Promoted experiments answer with the winning (test) behavior without
// persisting anything; disabled experiments and unconfirmed anonymous
// visitors are refused with ErrNotEligible. The remoteAddr only feeds the
// best-effort analytics notification.
func (s *Service) Assign(ctx context.Context, exp *store.Experiment, visitor identity.Identity, remoteAddr string) (store.Group, bool, error) {
	switch exp.State {
	case store.StatePromoted:
		// Concluded experiment: the winner applies to all traffic and no
		// participant rows are created, ever.
		return store.GroupTest, false, nil
	case store.StateEnabled:
	default:
		return 0, false, ErrNotEligible
	}

	if visitor.IsZero() {
		return 0, false, ErrNotEligible
	}

	if id, ok := visitor.AnonymousID(); ok {
		av, err := s.store.GetAnonymousVisitor(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return 0, false, ErrNotEligible
			}
			return 0, false, fmt.Errorf("look up anonymous visitor: %w", err)
		}
		// Bots never consume an assignment slot.
		if !av.ConfirmedHuman {
			return 0, false, ErrNotEligible
		}
	}

	if existing, err := s.store.GetParticipant(ctx, exp.ID, visitor); err == nil {
		return existing.Group, false, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return 0, false, fmt.Errorf("look up participant: %w", err)
	}

	// Insert-if-absent: when two first visits race, exactly one insert
	// lands and both calls observe the same stored group.
	participant, created, err := s.store.CreateParticipant(ctx, exp.ID, visitor, s.choose(), time.Now())
	if err != nil {
		return 0, false, fmt.Errorf("create participant: %w", err)
	}

	if created {
		if s.enrolled != nil {
			s.enrolled(participant.Group)
		}
		s.forwarder.Enrolled(exp.Name, participant.Group.String(), visitor.Ref(), remoteAddr)
	}
	return participant.Group, created, nil
}
