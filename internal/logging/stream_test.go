package logging

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestStreamHubPublishAndTail(t *testing.T) {
	hub := NewStreamHub(4)
	for i := 0; i < 6; i++ {
		hub.Publish(LogEvent{Message: "m", Level: "INFO"})
	}
	events, next := hub.Tail(10)
	if len(events) != 4 {
		t.Fatalf("expected buffer capped at 4, got %d", len(events))
	}
	if next != 6 {
		t.Fatalf("expected next sequence 6, got %d", next)
	}
	if events[0].Sequence != 3 {
		t.Fatalf("expected oldest retained sequence 3, got %d", events[0].Sequence)
	}
}

func TestStreamHubFetchSince(t *testing.T) {
	hub := NewStreamHub(16)
	for i := 0; i < 5; i++ {
		hub.Publish(LogEvent{Message: "m"})
	}
	events, next, err := hub.Fetch(context.Background(), 2, 10, false)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events after seq 2, got %d", len(events))
	}
	if events[0].Sequence != 3 || next != 5 {
		t.Fatalf("unexpected window: first=%d next=%d", events[0].Sequence, next)
	}
}

func TestStreamHubFetchWaitWakesOnPublish(t *testing.T) {
	hub := NewStreamHub(16)
	done := make(chan []LogEvent, 1)
	go func() {
		events, _, _ := hub.Fetch(context.Background(), 0, 10, true)
		done <- events
	}()
	time.Sleep(20 * time.Millisecond)
	hub.Publish(LogEvent{Message: "wake"})
	select {
	case events := <-done:
		if len(events) != 1 || events[0].Message != "wake" {
			t.Fatalf("unexpected events: %+v", events)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Fetch did not wake on publish")
	}
}

func TestStreamHubFetchHonorsContextCancel(t *testing.T) {
	hub := NewStreamHub(16)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, _, err := hub.Fetch(ctx, 0, 10, true)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected context error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Fetch did not observe cancellation")
	}
}

type recordingSink struct {
	mu     sync.Mutex
	events []LogEvent
}

func (s *recordingSink) Append(evt LogEvent) {
	s.mu.Lock()
	s.events = append(s.events, evt)
	s.mu.Unlock()
}

func TestStreamHubSinkReceivesEvents(t *testing.T) {
	hub := NewStreamHub(16)
	sink := &recordingSink{}
	hub.AddSink(sink)
	hub.Publish(LogEvent{Message: "persisted"})

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.events) != 1 || sink.events[0].Message != "persisted" {
		t.Fatalf("sink did not receive event: %+v", sink.events)
	}
}

func TestStreamHandlerLiftsIdentityFields(t *testing.T) {
	hub := NewStreamHub(16)
	base := slog.NewTextHandler(discardWriter{}, nil)
	handler := NewStreamHandler(base, hub)

	logger := slog.New(handler).With(slog.String(FieldJobID, "job-42"))
	logger.Info("test message",
		slog.String(FieldStage, "transcribe"),
		slog.String(FieldComponent, "runner"),
		slog.String("extra", "value"),
	)

	events, _ := hub.Tail(10)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	evt := events[0]
	if evt.JobID != "job-42" {
		t.Fatalf("expected job id from WithAttrs, got %q", evt.JobID)
	}
	if evt.Stage != "transcribe" || evt.Component != "runner" {
		t.Fatalf("expected lifted identity fields, got %+v", evt)
	}
	if evt.Fields["extra"] != "value" {
		t.Fatalf("expected extra field retained, got %+v", evt.Fields)
	}
	if _, ok := evt.Fields[FieldJobID]; ok {
		t.Fatalf("identity fields should be lifted out of the fields map, got %+v", evt.Fields)
	}
}

func TestStreamHandlerEnabledIgnoresConsoleLevel(t *testing.T) {
	hub := NewStreamHub(16)
	base := slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	handler := NewStreamHandler(base, hub)

	logger := slog.New(handler)
	logger.Debug("captured anyway")

	events, _ := hub.Tail(10)
	if len(events) != 1 {
		t.Fatalf("expected hub to capture debug record, got %d", len(events))
	}
}
