package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"autosub/internal/config"
	"autosub/internal/queue"
)

const userAgent = "Autosub-Go/0.1.0"

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	NotifyJobCompleted(ctx context.Context, job *queue.Job) error
	NotifyJobFailed(ctx context.Context, job *queue.Job) error
	NotifyBatchFinished(ctx context.Context, batch *queue.Batch) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:        topic,
		client:          &http.Client{Timeout: timeout},
		jobFailures:     cfg.Notifications.JobFailures,
		batchCompletion: cfg.Notifications.BatchCompletion,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint        string
	client          *http.Client
	jobFailures     bool
	batchCompletion bool
}

func (n *ntfyService) NotifyJobCompleted(ctx context.Context, job *queue.Job) error {
	if job == nil {
		return nil
	}
	message := fmt.Sprintf("Subtitles ready: %s", job.SourceFilename)
	if len(job.State.SubtitlePaths) > 0 {
		formats := make([]string, 0, len(job.State.SubtitlePaths))
		for format := range job.State.SubtitlePaths {
			formats = append(formats, format)
		}
		message = fmt.Sprintf("%s (%s)", message, strings.Join(formats, ", "))
	}
	data := payload{
		title:   "Autosub - Job Complete",
		message: message,
		tags:    []string{"autosub", "job", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, job *queue.Job) error {
	if job == nil || !n.jobFailures {
		return nil
	}
	message := fmt.Sprintf("Job failed: %s", job.SourceFilename)
	if job.ErrorMessage != "" {
		message = fmt.Sprintf("%s\n%s", message, strings.TrimSpace(job.ErrorMessage))
	}
	if job.Retryable {
		message += "\nRetry is available"
	}
	data := payload{
		title:    "Autosub - Job Failed",
		message:  message,
		tags:     []string{"autosub", "job", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyBatchFinished(ctx context.Context, batch *queue.Batch) error {
	if batch == nil || !n.batchCompletion {
		return nil
	}
	name := strings.TrimSpace(batch.Name)
	if name == "" {
		name = batch.ID
	}
	var title, message string
	switch batch.Status {
	case queue.BatchCompleted:
		title = "Autosub - Batch Complete"
		message = fmt.Sprintf("Batch %s: all %d jobs completed", name, batch.TotalJobs)
	case queue.BatchFailed:
		title = "Autosub - Batch Failed"
		message = fmt.Sprintf("Batch %s: all %d jobs failed", name, batch.TotalJobs)
	default:
		title = "Autosub - Batch Finished (partial)"
		message = fmt.Sprintf("Batch %s: %d completed, %d failed of %d jobs",
			name, batch.CompletedJobs, batch.FailedJobs, batch.TotalJobs)
	}
	data := payload{
		title:   title,
		message: message,
		tags:    []string{"autosub", "batch", string(batch.Status)},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Autosub - Test",
		message:  "Notification system test",
		tags:     []string{"autosub", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyJobCompleted(context.Context, *queue.Job) error    { return nil }
func (noopService) NotifyJobFailed(context.Context, *queue.Job) error       { return nil }
func (noopService) NotifyBatchFinished(context.Context, *queue.Batch) error { return nil }
func (noopService) TestNotification(context.Context) error                  { return nil }
