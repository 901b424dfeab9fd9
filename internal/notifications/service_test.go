package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"autosub/internal/config"
	"autosub/internal/notifications"
	"autosub/internal/queue"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyJobCompleted(context.Background(), &queue.Job{SourceFilename: "movie.mkv"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

type captured struct {
	title    string
	tags     string
	priority string
	body     string
	calls    int
}

func captureServer(t *testing.T, got *captured) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		got.calls++
		got.title = r.Header.Get("Title")
		got.tags = r.Header.Get("Tags")
		got.priority = r.Header.Get("Priority")
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		got.body = string(body)
		_ = r.Body.Close()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestNotifyJobFailedFormatsPayload(t *testing.T) {
	var got captured
	server := captureServer(t, &got)

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.RequestTimeout = 5
	cfg.Notifications.JobFailures = true

	job := &queue.Job{
		SourceFilename: "movie.mkv",
		ErrorMessage:   "model load failed",
		Retryable:      true,
	}
	if err := notifications.NewService(&cfg).NotifyJobFailed(context.Background(), job); err != nil {
		t.Fatalf("notification returned error: %v", err)
	}

	if got.title != "Autosub - Job Failed" {
		t.Errorf("title = %q", got.title)
	}
	if got.body != "Job failed: movie.mkv\nmodel load failed\nRetry is available" {
		t.Errorf("body = %q", got.body)
	}
	if got.tags != "autosub,job,failed" {
		t.Errorf("tags = %q", got.tags)
	}
	if got.priority != "high" {
		t.Errorf("priority = %q", got.priority)
	}
}

func TestNotifyJobFailedSuppressedByConfig(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected call for suppressed notification: %s", r.URL.String())
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.JobFailures = false

	svc := notifications.NewService(&cfg)
	if err := svc.NotifyJobFailed(context.Background(), &queue.Job{SourceFilename: "x.mkv"}); err != nil {
		t.Fatalf("suppressed notification returned error: %v", err)
	}
}

func TestNotifyBatchFinishedVariants(t *testing.T) {
	cases := []struct {
		name        string
		batch       queue.Batch
		expectTitle string
	}{
		{
			name:        "completed",
			batch:       queue.Batch{ID: "b1", Name: "movie night", Status: queue.BatchCompleted, TotalJobs: 3, CompletedJobs: 3},
			expectTitle: "Autosub - Batch Complete",
		},
		{
			name:        "partial",
			batch:       queue.Batch{ID: "b2", Status: queue.BatchPartial, TotalJobs: 3, CompletedJobs: 2, FailedJobs: 1},
			expectTitle: "Autosub - Batch Finished (partial)",
		},
		{
			name:        "failed",
			batch:       queue.Batch{ID: "b3", Status: queue.BatchFailed, TotalJobs: 2, FailedJobs: 2},
			expectTitle: "Autosub - Batch Failed",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got captured
			server := captureServer(t, &got)

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.BatchCompletion = true

			if err := notifications.NewService(&cfg).NotifyBatchFinished(context.Background(), &tc.batch); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}
			if got.title != tc.expectTitle {
				t.Errorf("title = %q, want %q", got.title, tc.expectTitle)
			}
			if got.calls != 1 {
				t.Errorf("calls = %d", got.calls)
			}
		})
	}
}
