// Package analytics forwards enrollment and goal events to an external
// tracker. Delivery is strictly best-effort: events are queued on a
// bounded channel, dropped when the queue is full, and failures are
// logged and ignored. Nothing here may block or fail the caller.
package analytics

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// EventEnrolled is emitted once per first-time assignment.
	EventEnrolled = "Enrolled In Experiment"
	// EventGoalRecorded is emitted once per recorded goal call.
	EventGoalRecorded = "Goal Recorded"
)

// Event is one tracker notification.
type Event struct {
	Name       string    `json:"event"`
	Experiment string    `json:"experiment,omitempty"`
	Group      string    `json:"group,omitempty"`
	GoalType   string    `json:"goal_type,omitempty"`
	VisitorRef string    `json:"distinct_id,omitempty"`
	RemoteAddr string    `json:"ip,omitempty"`
	Timestamp  time.Time `json:"time"`
}

// Sink delivers one event to the external tracker.
type Sink interface {
	Deliver(ctx context.Context, event Event) error
}

// Forwarder drains a bounded inbox into a sink on a background goroutine.
type Forwarder struct {
	sink    Sink
	inbox   chan Event
	log     *zap.SugaredLogger
	dropped func() // optional counter hook

	closeOnce sync.Once
	done      chan struct{}
}

// Option configures a Forwarder.
type Option func(*Forwarder)

// WithDropHook registers a callback invoked when an event is dropped.
func WithDropHook(fn func()) Option {
	return func(f *Forwarder) { f.dropped = fn }
}

// New starts a forwarder with the given buffer size.
func New(sink Sink, buffer int, log *zap.SugaredLogger, opts ...Option) *Forwarder {
	if buffer <= 0 {
		buffer = 64
	}
	f := &Forwarder{
		sink:  sink,
		inbox: make(chan Event, buffer),
		log:   log,
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	go f.run()
	return f
}

func (f *Forwarder) run() {
	defer close(f.done)
	for event := range f.inbox {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := f.sink.Deliver(ctx, event); err != nil {
			f.log.Debugw("analytics delivery failed", "event", event.Name, "error", err)
		}
		cancel()
	}
}

// Enrolled queues an enrollment notification.
func (f *Forwarder) Enrolled(experiment, group, visitorRef, remoteAddr string) {
	f.emit(Event{
		Name:       EventEnrolled,
		Experiment: experiment,
		Group:      group,
		VisitorRef: visitorRef,
		RemoteAddr: remoteAddr,
	})
}

// GoalRecorded queues a goal notification.
func (f *Forwarder) GoalRecorded(goalType, visitorRef, remoteAddr string) {
	f.emit(Event{
		Name:       EventGoalRecorded,
		GoalType:   goalType,
		VisitorRef: visitorRef,
		RemoteAddr: remoteAddr,
	})
}

// emit never blocks: a full inbox drops the event.
func (f *Forwarder) emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case f.inbox <- event:
	default:
		if f.dropped != nil {
			f.dropped()
		}
		f.log.Debugw("analytics event dropped", "event", event.Name)
	}
}

// Close stops accepting events and waits for the queue to drain.
func (f *Forwarder) Close() {
	f.closeOnce.Do(func() {
		close(f.inbox)
	})
	<-f.done
}
