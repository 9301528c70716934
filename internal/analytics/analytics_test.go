package analytics_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cohort-run/cohort/internal/analytics"
	"github.com/cohort-run/cohort/internal/logger"
)

// captureSink records delivered events and can be made to block.
type captureSink struct {
	mu      sync.Mutex
	events  []analytics.Event
	release chan struct{} // when non-nil, Deliver waits on it
}

func (s *captureSink) Deliver(ctx context.Context, event analytics.Event) error {
	if s.release != nil {
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) delivered() []analytics.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]analytics.Event(nil), s.events...)
}

func TestForwarder_DeliversQueuedEvents(t *testing.T) {
	sink := &captureSink{}
	f := analytics.New(sink, 8, logger.Nop())

	f.Enrolled("signup-flow", "test", "user:u1", "127.0.0.1")
	f.GoalRecorded("purchase", "user:u1", "127.0.0.1")
	f.Close()

	events := sink.delivered()
	if len(events) != 2 {
		t.Fatalf("expected 2 delivered events, got %d", len(events))
	}

	if events[0].Name != analytics.EventEnrolled {
		t.Errorf("first event = %q, want %q", events[0].Name, analytics.EventEnrolled)
	}
	if events[0].Experiment != "signup-flow" || events[0].Group != "test" {
		t.Errorf("enrollment event fields wrong: %+v", events[0])
	}
	if events[0].Timestamp.IsZero() {
		t.Error("event timestamp should be stamped")
	}

	if events[1].Name != analytics.EventGoalRecorded {
		t.Errorf("second event = %q, want %q", events[1].Name, analytics.EventGoalRecorded)
	}
	if events[1].GoalType != "purchase" {
		t.Errorf("goal event fields wrong: %+v", events[1])
	}
}

func TestForwarder_DropsWhenFull(t *testing.T) {
	release := make(chan struct{})
	sink := &captureSink{release: release}

	dropped := 0
	var mu sync.Mutex
	f := analytics.New(sink, 1, logger.Nop(), analytics.WithDropHook(func() {
		mu.Lock()
		dropped++
		mu.Unlock()
	}))

	// The worker blocks on the first delivery; the buffer holds one more.
	// Everything past that is dropped without blocking the caller.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			f.GoalRecorded("purchase", "user:u1", "")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit blocked; it must never block the caller")
	}

	close(release)
	f.Close()

	mu.Lock()
	defer mu.Unlock()
	if dropped == 0 {
		t.Error("expected drops with a full queue")
	}
	if got := len(sink.delivered()); got+dropped != 5 {
		t.Errorf("delivered %d + dropped %d != 5 emitted", got, dropped)
	}
}

func TestForwarder_CloseIsIdempotent(t *testing.T) {
	f := analytics.New(analytics.NopSink{}, 4, logger.Nop())
	f.Close()
	f.Close()
}
