// Package progress delivers live pipeline events to per-job subscribers.
//
// The bus is broadcast, not competing-consumer: every subscriber for a job id
// receives an independent copy of every event published after it subscribed.
// Publishing never blocks; a subscriber whose buffer is full loses that event
// while everyone else still receives it. Events are ephemeral — there is no
// replay for late subscribers.
package progress

import (
	"sync"
	"sync/atomic"
	"time"

	"autosub/internal/queue"
)

// EventType tags the well-defined points at which the runner publishes.
type EventType string

const (
	EventStageStarted   EventType = "stage_started"
	EventProgress       EventType = "progress"
	EventStageCompleted EventType = "stage_completed"
	EventTerminal       EventType = "terminal"
)

// Event is an ephemeral progress notification for one job.
type Event struct {
	Type       EventType    `json:"type"`
	JobID      string       `json:"job_id"`
	BatchID    string       `json:"batch_id,omitempty"`
	Status     queue.Status `json:"status"`
	Stage      string       `json:"stage,omitempty"`
	Step       int          `json:"step"`
	TotalSteps int          `json:"total_steps"`
	Percent    float64      `json:"percent"`
	ETASeconds float64      `json:"eta_seconds,omitempty"`
	Message    string       `json:"message,omitempty"`
	Timestamp  time.Time    `json:"ts"`
}

const defaultSubscriberBuffer = 32

// Subscription is one subscriber's view of a job's event stream. Events()
// closes once the job retires and the buffer drains, or when the subscriber
// calls Close.
type Subscription struct {
	jobID   string
	dropped atomic.Uint64

	mu     sync.Mutex
	ch     chan Event
	closed bool

	detach func(*Subscription)
}

// Events returns the receive side of the subscription.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Dropped reports how many events this subscriber lost to a full buffer.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// JobID returns the job this subscription follows.
func (s *Subscription) JobID() string {
	return s.jobID
}

// send delivers without blocking. Full buffers and closed subscriptions count
// as drops for this subscriber only.
func (s *Subscription) send(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.ch <- ev:
	default:
		s.dropped.Add(1)
	}
}

// closeOnce closes the channel at most once, racing Close and Retire safely.
func (s *Subscription) closeOnce() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Close detaches the subscription and closes its channel. Safe to call more
// than once and concurrently with publishes.
func (s *Subscription) Close() {
	if s.detach != nil {
		s.detach(s)
	}
	s.closeOnce()
}

// Bus is the per-job publish/subscribe registry.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string][]*Subscription
	bufSize int
}

// NewBus constructs a bus. bufSize bounds each subscriber's backlog; zero or
// negative uses the default.
func NewBus(bufSize int) *Bus {
	if bufSize <= 0 {
		bufSize = defaultSubscriberBuffer
	}
	return &Bus{
		subs:    make(map[string][]*Subscription),
		bufSize: bufSize,
	}
}

// Subscribe registers a new subscriber for the job id. The caller owns the
// returned subscription and must Close it (retirement also closes it).
func (b *Bus) Subscribe(jobID string) *Subscription {
	sub := &Subscription{
		jobID: jobID,
		ch:    make(chan Event, b.bufSize),
	}
	sub.detach = func(s *Subscription) {
		b.mu.Lock()
		defer b.mu.Unlock()
		current := b.subs[jobID]
		remaining := current[:0]
		for _, candidate := range current {
			if candidate != s {
				remaining = append(remaining, candidate)
			}
		}
		if len(remaining) == 0 {
			delete(b.subs, jobID)
		} else {
			b.subs[jobID] = remaining
		}
	}

	b.mu.Lock()
	b.subs[jobID] = append(b.subs[jobID], sub)
	b.mu.Unlock()
	return sub
}

// Publish delivers the event to every current subscriber of its job id
// without blocking the caller. Subscribers that cannot keep up lose the event
// individually.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	subs := b.subs[ev.JobID]
	targets := make([]*Subscription, len(subs))
	copy(targets, subs)
	b.mu.RUnlock()

	for _, sub := range targets {
		sub.send(ev)
	}
}

// Retire closes every subscription for the job. Buffered events stay readable
// until the subscriber drains its channel; new subscribers for the id get a
// fresh (empty) stream.
func (b *Bus) Retire(jobID string) {
	b.mu.Lock()
	subs := b.subs[jobID]
	delete(b.subs, jobID)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.closeOnce()
	}
}

// SubscriberCount reports how many subscribers currently follow the job.
func (b *Bus) SubscriberCount(jobID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[jobID])
}
