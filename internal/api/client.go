package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Client talks to a running daemon over HTTP. It is the only transport the
// CLI uses.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a client for the daemon at bind (host:port or full URL).
func NewClient(bind string) *Client {
	base := strings.TrimSpace(bind)
	if base == "" {
		base = "127.0.0.1:7621"
	}
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		baseURL:    strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Ping reports whether the daemon is reachable.
func (c *Client) Ping(ctx context.Context) bool {
	var resp StatusResponse
	return c.do(ctx, http.MethodGet, "/api/status", nil, &resp) == nil
}

// SubmitJob creates a single job.
func (c *Client) SubmitJob(ctx context.Context, req SubmitJobRequest) (*JobView, error) {
	var view JobView
	if err := c.do(ctx, http.MethodPost, "/api/jobs", req, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// SubmitBatch creates a batch of jobs.
func (c *Client) SubmitBatch(ctx context.Context, req SubmitBatchRequest) (*BatchView, error) {
	var view BatchView
	if err := c.do(ctx, http.MethodPost, "/api/batches", req, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// ListJobs fetches jobs, optionally filtered by status names and batch id.
func (c *Client) ListJobs(ctx context.Context, statuses []string, batchID string, limit int) ([]JobView, error) {
	query := url.Values{}
	for _, status := range statuses {
		query.Add("status", status)
	}
	if batchID != "" {
		query.Set("batch", batchID)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/jobs"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var resp JobListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// GetJob fetches one job by id.
func (c *Client) GetJob(ctx context.Context, id string) (*JobView, error) {
	var view JobView
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// CancelJob requests cancellation of one job.
func (c *Client) CancelJob(ctx context.Context, id string) (CancelResponse, error) {
	var resp CancelResponse
	err := c.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(id)+"/cancel", nil, &resp)
	return resp, err
}

// RetryJob re-queues a failed or cancelled job.
func (c *Client) RetryJob(ctx context.Context, id string) (RetryResponse, error) {
	var resp RetryResponse
	err := c.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(id)+"/retry", nil, &resp)
	return resp, err
}

// DeleteJob removes a terminal job.
func (c *Client) DeleteJob(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/jobs/"+url.PathEscape(id), nil, nil)
}

// ListBatches fetches batch summaries.
func (c *Client) ListBatches(ctx context.Context) ([]BatchView, error) {
	var resp BatchListResponse
	if err := c.do(ctx, http.MethodGet, "/api/batches", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Batches, nil
}

// GetBatch fetches one batch with its member jobs.
func (c *Client) GetBatch(ctx context.Context, id string) (*BatchView, error) {
	var view BatchView
	if err := c.do(ctx, http.MethodGet, "/api/batches/"+url.PathEscape(id), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// CancelBatch fans cancellation out to every non-terminal member.
func (c *Client) CancelBatch(ctx context.Context, id string) (CancelResponse, error) {
	var resp CancelResponse
	err := c.do(ctx, http.MethodPost, "/api/batches/"+url.PathEscape(id)+"/cancel", nil, &resp)
	return resp, err
}

// RetryBatch re-queues the failed members of a batch.
func (c *Client) RetryBatch(ctx context.Context, id string) (RetryResponse, error) {
	var resp RetryResponse
	err := c.do(ctx, http.MethodPost, "/api/batches/"+url.PathEscape(id)+"/retry", nil, &resp)
	return resp, err
}

// DeleteBatch removes a terminal batch and its members.
func (c *Client) DeleteBatch(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/batches/"+url.PathEscape(id), nil, nil)
}

// Status fetches the daemon status snapshot.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &resp)
	return resp, err
}

// Health fetches the daemon health report.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var resp HealthResponse
	err := c.do(ctx, http.MethodGet, "/api/health", nil, &resp)
	return resp, err
}

// Logs fetches buffered log events after the given cursor.
func (c *Client) Logs(ctx context.Context, since uint64, limit int) (LogsResponse, error) {
	query := url.Values{}
	if since > 0 {
		query.Set("since", strconv.FormatUint(since, 10))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/logs"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var resp LogsResponse
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	return resp, err
}

// WatchFrame is one message from a progress socket.
type WatchFrame = wsMessage

// WatchJob opens the job progress socket and invokes handle for every frame
// until the stream ends or ctx is cancelled.
func (c *Client) WatchJob(ctx context.Context, id string, handle func(WatchFrame) error) error {
	return c.watch(ctx, "/ws/jobs/"+url.PathEscape(id), handle)
}

// WatchBatch opens the batch progress socket.
func (c *Client) WatchBatch(ctx context.Context, id string, handle func(WatchFrame) error) error {
	return c.watch(ctx, "/ws/batches/"+url.PathEscape(id), handle)
}

func (c *Client) watch(ctx context.Context, path string, handle func(WatchFrame) error) error {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + path
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			if apiErr := decodeError(resp); apiErr != nil {
				return apiErr
			}
		}
		return fmt.Errorf("connect %s: %w", path, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		var frame WatchFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read %s: %w", path, err)
		}
		if err := handle(frame); err != nil {
			return err
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		if apiErr := decodeError(resp); apiErr != nil {
			return apiErr
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// APIError carries the daemon's error envelope together with the HTTP status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

func decodeError(resp *http.Response) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil
	}
	var envelope ErrorResponse
	if json.Unmarshal(data, &envelope) == nil && envelope.Error != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: envelope.Error}
	}
	if len(bytes.TrimSpace(data)) > 0 {
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}
	return nil
}
