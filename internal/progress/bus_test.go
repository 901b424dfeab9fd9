package progress_test

import (
	"fmt"
	"testing"
	"time"

	"autosub/internal/progress"
	"autosub/internal/queue"
)

func publishN(bus *progress.Bus, jobID string, count int) {
	for i := 0; i < count; i++ {
		bus.Publish(progress.Event{
			Type:    progress.EventProgress,
			JobID:   jobID,
			Status:  queue.StatusProcessing,
			Step:    i,
			Message: fmt.Sprintf("event %d", i),
		})
	}
}

func TestBroadcastDeliversIndependentCopies(t *testing.T) {
	bus := progress.NewBus(8)
	subA := bus.Subscribe("job-1")
	subB := bus.Subscribe("job-1")
	other := bus.Subscribe("job-2")
	defer subA.Close()
	defer subB.Close()
	defer other.Close()

	publishN(bus, "job-1", 3)
	bus.Retire("job-1")

	for name, sub := range map[string]*progress.Subscription{"A": subA, "B": subB} {
		var got []int
		for ev := range sub.Events() {
			got = append(got, ev.Step)
		}
		if len(got) != 3 {
			t.Fatalf("subscriber %s received %d events, want 3", name, len(got))
		}
		for i, step := range got {
			if step != i {
				t.Fatalf("subscriber %s got out-of-order step %d at position %d", name, step, i)
			}
		}
	}

	select {
	case ev := <-other.Events():
		t.Fatalf("job-2 subscriber received foreign event %+v", ev)
	default:
	}
}

func TestSlowSubscriberDropsWithoutBlockingOthers(t *testing.T) {
	bus := progress.NewBus(2)
	slow := bus.Subscribe("job-1")
	fast := bus.Subscribe("job-1")
	defer slow.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		publishN(bus, "job-1", 10)
	}()

	// The fast subscriber drains as events arrive; the slow one never reads.
	received := 0
	deadline := time.After(2 * time.Second)
	for received < 10 {
		select {
		case <-fast.Events():
			received++
		case <-deadline:
			t.Fatalf("fast subscriber stalled after %d events", received)
		}
	}
	<-done
	fast.Close()

	if slow.Dropped() == 0 {
		t.Fatal("slow subscriber should have dropped events")
	}
	if fast.Dropped() != 0 {
		t.Fatalf("fast subscriber dropped %d events, want 0", fast.Dropped())
	}
}

func TestRetireClosesSubscriptionsAfterDrain(t *testing.T) {
	bus := progress.NewBus(8)
	sub := bus.Subscribe("job-1")

	publishN(bus, "job-1", 2)
	bus.Publish(progress.Event{
		Type:   progress.EventTerminal,
		JobID:  "job-1",
		Status: queue.StatusCompleted,
	})
	bus.Retire("job-1")

	var events []progress.Event
	for ev := range sub.Events() {
		events = append(events, ev)
	}
	if len(events) != 3 {
		t.Fatalf("drained %d events, want 3", len(events))
	}
	if events[2].Type != progress.EventTerminal {
		t.Fatalf("last event type = %s, want terminal", events[2].Type)
	}
	if bus.SubscriberCount("job-1") != 0 {
		t.Fatal("retired job should have no subscribers")
	}
}

func TestCloseDetachesSubscriber(t *testing.T) {
	bus := progress.NewBus(8)
	sub := bus.Subscribe("job-1")
	if bus.SubscriberCount("job-1") != 1 {
		t.Fatal("expected one subscriber")
	}
	sub.Close()
	sub.Close()
	if bus.SubscriberCount("job-1") != 0 {
		t.Fatal("closed subscriber should be detached")
	}
	// Publishing after close must not panic or misdeliver.
	publishN(bus, "job-1", 1)
}

func TestPublishStampsTimestamp(t *testing.T) {
	bus := progress.NewBus(1)
	sub := bus.Subscribe("job-1")
	defer sub.Close()

	bus.Publish(progress.Event{Type: progress.EventStageStarted, JobID: "job-1"})
	select {
	case ev := <-sub.Events():
		if ev.Timestamp.IsZero() {
			t.Fatal("published event should carry a timestamp")
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}
