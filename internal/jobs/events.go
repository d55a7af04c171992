package jobs

import (
	"context"
	"sync"
	"time"

	"dualmind/internal/domain"
)

// EventType classifies messages emitted during job execution.
type EventType string

const (
	EventTypeStatus   EventType = "status"
	EventTypeStage    EventType = "stage"
	EventTypeProgress EventType = "progress"
	EventTypeLog      EventType = "log"
)

// Event is a sequenced payload consumed by UI subscribers.
type Event struct {
	Seq        int64            `json:"seq"`
	Timestamp  time.Time        `json:"timestamp"`
	JobID      string           `json:"jobId"`
	Kind       domain.JobKind   `json:"kind,omitempty"`
	Type       EventType        `json:"type"`
	Status     domain.JobStatus `json:"status,omitempty"`
	Stage      string           `json:"stage,omitempty"`
	StageIndex int              `json:"stageIndex"`
	Fraction   float64          `json:"fraction"`
	Overall    float64          `json:"overall"`
	Message    string           `json:"message,omitempty"`
	Error      *domain.JobError `json:"error,omitempty"`
	// Job is a snapshot attached to terminal status events.
	Job *domain.Job `json:"job,omitempty"`
}

// Terminal reports whether the event closes its job's stream.
func (e Event) Terminal() bool {
	return e.Type == EventTypeStatus && e.Status.IsTerminal()
}

// Progress converts the event into the listener-facing progress shape.
func (e Event) Progress() domain.ProgressEvent {
	return domain.ProgressEvent{
		JobID:      e.JobID,
		Stage:      e.Stage,
		StageIndex: e.StageIndex,
		Fraction:   e.Fraction,
		Overall:    e.Overall,
		Message:    e.Message,
	}
}

// EventBus stores recent events and provides incremental reads.
// A progress event replaces an undelivered progress tail of the same job
// and stage. History of the newest job is never trimmed, and neither is the
// terminal event of a job that still has followers.
type EventBus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
	changed   chan struct{}
	followers map[string]int
}

// NewEventBus creates a bounded in-memory event buffer.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &EventBus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
		changed:   make(chan struct{}),
		followers: make(map[string]int),
	}
}

// Publish appends one event and assigns sequence and timestamp.
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if n := len(b.events); n > 0 && coalesces(b.events[n-1], event) {
		b.events[n-1] = event
	} else {
		b.events = append(b.events, event)
		b.trim(event.JobID)
	}

	close(b.changed)
	b.changed = make(chan struct{})
	return event
}

// trim drops the oldest events of jobs other than keep once over capacity.
func (b *EventBus) trim(keep string) {
	excess := len(b.events) - b.maxEvents
	if excess <= 0 {
		return
	}

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		pinned := event.Terminal() && b.followers[event.JobID] > 0
		if excess > 0 && event.JobID != keep && !pinned {
			excess--
			continue
		}
		out = append(out, event)
	}
	b.events = out
}

func coalesces(tail, next Event) bool {
	return next.Type == EventTypeProgress &&
		tail.Type == EventTypeProgress &&
		tail.JobID == next.JobID &&
		tail.StageIndex == next.StageIndex
}

// Since returns events with sequence strictly greater than seq.
func (b *EventBus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}

// Changed returns a channel closed on the next Publish.
func (b *EventBus) Changed() <-chan struct{} {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.changed
}

// Follow delivers events of jobID in publication order until deliver
// returns false, the job's terminal event has been delivered, or ctx ends.
func (b *EventBus) Follow(ctx context.Context, jobID string, deliver func(Event) bool) {
	defer b.watch(jobID)()
	b.follow(ctx, jobID, deliver)
}

// FollowAsync registers a follower of jobID before returning and runs Follow
// on a new goroutine. The returned channel closes when it ends.
func (b *EventBus) FollowAsync(ctx context.Context, jobID string, deliver func(Event) bool) <-chan struct{} {
	unwatch := b.watch(jobID)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer unwatch()
		b.follow(ctx, jobID, deliver)
	}()
	return done
}

// watch pins jobID's terminal event until the returned func is called.
func (b *EventBus) watch(jobID string) func() {
	b.mu.Lock()
	b.followers[jobID]++
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if b.followers[jobID]--; b.followers[jobID] <= 0 {
				delete(b.followers, jobID)
			}
		})
	}
}

func (b *EventBus) follow(ctx context.Context, jobID string, deliver func(Event) bool) {
	var cursor int64
	for {
		wait := b.Changed()
		for _, event := range b.Since(cursor) {
			cursor = event.Seq
			if event.JobID != jobID {
				continue
			}
			if !deliver(event) || event.Terminal() {
				return
			}
		}

		select {
		case <-wait:
		case <-ctx.Done():
			return
		}
	}
}
