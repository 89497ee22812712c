// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package synthesis implements the client for the image-synthesis backend.
//
// The backend exposes three endpoints: POST /prompt accepts a workflow graph
// and returns a prompt id, GET /history/{id} reports the job's status and
// outputs, and GET /view serves a produced image. The client owns all timing
// and transient retry policy so callers reason only in terms of outcomes.
package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdiddy/image-tree/internal/httputil"
	"github.com/pdiddy/image-tree/internal/jobspec"
	"github.com/pdiddy/image-tree/internal/logging"
	"github.com/pdiddy/image-tree/internal/metrics"
	"github.com/pdiddy/image-tree/pkg/types"
)

// Defaults applied when the config leaves a field zero.
const (
	DefaultBaseURL      = "http://localhost:8000"
	DefaultPollInterval = 2 * time.Second
	DefaultPollTimeout  = 5 * time.Minute
	defaultHTTPTimeout  = 60 * time.Second
)

// State is the backend's view of a job.
type State string

const (
	StatePending   State = "pending"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// JobStatus is one status observation.
type JobStatus struct {
	State State

	// Message carries the backend's execution error when State is failed.
	Message string
}

// Client talks to one synthesis backend. It is safe for concurrent use.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	userAgent    string
	maxRetries   int
	pollInterval time.Duration
	pollTimeout  time.Duration
	clientID     string
	logger       *zap.Logger
}

// New returns a Client for cfg. A nil logger disables logging.
func New(cfg types.SynthesisConfig, logger *zap.Logger) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	budget := cfg.PollTimeout
	if budget <= 0 {
		budget = DefaultPollTimeout
	}
	return &Client{
		baseURL:      base,
		httpClient:   &http.Client{Timeout: timeout},
		userAgent:    cfg.UserAgent,
		maxRetries:   cfg.MaxRetries,
		pollInterval: interval,
		pollTimeout:  budget,
		clientID:     "image-tree-" + uuid.NewString(),
		logger:       logging.OrNop(logger),
	}
}

// PollTimeout returns the configured default poll budget.
func (c *Client) PollTimeout() time.Duration { return c.pollTimeout }

type submitRequest struct {
	Prompt   map[string]jobspec.Node `json:"prompt"`
	ClientID string                  `json:"client_id"`
}

type submitResponse struct {
	PromptID string `json:"prompt_id"`
}

// Submit sends spec to the backend and returns the backend job id.
func (c *Client) Submit(ctx context.Context, spec jobspec.Spec) (string, error) {
	body, err := json.Marshal(submitRequest{Prompt: spec.Graph, ClientID: c.clientID})
	if err != nil {
		return "", fmt.Errorf("%w: encoding workflow: %v", types.ErrConfiguration, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/prompt", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrConfiguration, err)
	}
	req.Header.Set("Content-Type", "application/json")

	data, status, err := c.do(ctx, req)
	metrics.BackendRequests.WithLabelValues("submit", metrics.Result(err)).Inc()
	if err != nil {
		return "", err
	}

	if status != http.StatusOK {
		return "", classifyStatus("submit", status, data)
	}

	var out submitResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("%w: decoding submit response: %v", types.ErrBackendRejected, err)
	}
	if out.PromptID == "" {
		return "", fmt.Errorf("%w: submit response has no prompt_id: %s", types.ErrBackendRejected, truncate(data))
	}

	c.logger.Debug("job submitted", zap.String(logging.FieldBackendJobID, out.PromptID), zap.Int64("seed", spec.Seed))
	return out.PromptID, nil
}

// history is the subset of a /history/{id} entry the client reads.
type history struct {
	Status struct {
		StatusStr string            `json:"status_str"`
		Completed bool              `json:"completed"`
		Messages  []json.RawMessage `json:"messages"`
	} `json:"status"`
	Outputs map[string]struct {
		Images []imageRef `json:"images"`
	} `json:"outputs"`
}

type imageRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// Status performs a single status check for jobID.
func (c *Client) Status(ctx context.Context, jobID string) (JobStatus, error) {
	h, found, err := c.history(ctx, jobID)
	metrics.BackendRequests.WithLabelValues("status", metrics.Result(err)).Inc()
	if err != nil {
		return JobStatus{}, err
	}
	if !found {
		return JobStatus{State: StatePending}, nil
	}
	if h.Status.StatusStr == "error" {
		return JobStatus{State: StateFailed, Message: executionError(h.Status.Messages)}, nil
	}
	if h.Status.Completed {
		return JobStatus{State: StateCompleted}, nil
	}
	return JobStatus{State: StatePending}, nil
}

// Poll checks jobID every poll interval until it leaves the pending state or
// timeout elapses. A non-positive timeout uses the configured budget.
//
// A failed job is returned with an error wrapping types.ErrBackendFailed. An
// elapsed budget returns types.ErrTimedOut. Cancellation of ctx returns
// ctx.Err().
func (c *Client) Poll(ctx context.Context, jobID string, timeout time.Duration) (JobStatus, error) {
	if timeout <= 0 {
		timeout = c.pollTimeout
	}
	deadline := time.Now().Add(timeout)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		st, err := c.Status(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return JobStatus{}, ctx.Err()
			}
			return JobStatus{}, err
		}
		switch st.State {
		case StateCompleted:
			return st, nil
		case StateFailed:
			return st, fmt.Errorf("%w: %s", types.ErrBackendFailed, st.Message)
		}

		if !time.Now().Before(deadline) {
			return st, fmt.Errorf("%w: job %s still pending after %s", types.ErrTimedOut, jobID, timeout)
		}

		select {
		case <-ctx.Done():
			return JobStatus{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Fetch downloads the first image output of a completed job.
func (c *Client) Fetch(ctx context.Context, jobID string) ([]byte, error) {
	data, err := c.fetch(ctx, jobID)
	metrics.BackendRequests.WithLabelValues("fetch", metrics.Result(err)).Inc()
	return data, err
}

func (c *Client) fetch(ctx context.Context, jobID string) ([]byte, error) {
	h, found, err := c.history(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !found || !h.Status.Completed {
		return nil, fmt.Errorf("%w: job %s is not completed", types.ErrArtifactMissing, jobID)
	}

	img, ok := firstImage(h)
	if !ok {
		return nil, fmt.Errorf("%w: job %s has no image output", types.ErrArtifactMissing, jobID)
	}

	q := url.Values{}
	q.Set("filename", img.Filename)
	q.Set("subfolder", img.Subfolder)
	q.Set("type", img.Type)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/view?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrConfiguration, err)
	}

	data, status, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusOK:
	case status == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s purged before retrieval", types.ErrArtifactMissing, img.Filename)
	default:
		return nil, classifyStatus("view", status, data)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", types.ErrArtifactMissing, img.Filename)
	}
	return data, nil
}

func (c *Client) history(ctx context.Context, jobID string) (history, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/history/"+url.PathEscape(jobID), nil)
	if err != nil {
		return history{}, false, fmt.Errorf("%w: %v", types.ErrConfiguration, err)
	}
	data, status, err := c.do(ctx, req)
	if err != nil {
		return history{}, false, err
	}
	if status != http.StatusOK {
		return history{}, false, classifyStatus("history", status, data)
	}

	var entries map[string]history
	if err := json.Unmarshal(data, &entries); err != nil {
		return history{}, false, fmt.Errorf("%w: decoding history: %v", types.ErrBackendUnavailable, err)
	}
	h, ok := entries[jobID]
	return h, ok, nil
}

// do sends req with transient retries and returns the body and status.
// Exhausted network failures become ErrBackendUnavailable.
func (c *Client) do(ctx context.Context, req *http.Request) ([]byte, int, error) {
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := httputil.DoWithRetry(ctx, c.httpClient, req, c.maxRetries)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, fmt.Errorf("%w: %v", types.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, fmt.Errorf("%w: reading response: %v", types.ErrBackendUnavailable, err)
	}
	return data, resp.StatusCode, nil
}

// classifyStatus maps a non-200 status to an error kind. Transient statuses
// that survived the retry budget and server errors are unavailable; any
// other 4xx is a permanent rejection.
func classifyStatus(op string, status int, body []byte) error {
	if httputil.Retryable(status) || status >= 500 {
		return fmt.Errorf("%w: %s returned HTTP %d", types.ErrBackendUnavailable, op, status)
	}
	return fmt.Errorf("%w: %s returned HTTP %d: %s", types.ErrBackendRejected, op, status, truncate(body))
}

// executionError extracts "Type: message" from the history status messages,
// which are [event, payload] pairs.
func executionError(messages []json.RawMessage) string {
	for _, raw := range messages {
		var pair []json.RawMessage
		if err := json.Unmarshal(raw, &pair); err != nil || len(pair) < 2 {
			continue
		}
		var event string
		if err := json.Unmarshal(pair[0], &event); err != nil || event != "execution_error" {
			continue
		}
		var payload struct {
			ExceptionType    string `json:"exception_type"`
			ExceptionMessage string `json:"exception_message"`
		}
		if err := json.Unmarshal(pair[1], &payload); err != nil {
			continue
		}
		typ, msg := payload.ExceptionType, payload.ExceptionMessage
		if typ == "" {
			typ = "Error"
		}
		if msg == "" {
			msg = "Unknown"
		}
		return typ + ": " + msg
	}
	return "Unknown error"
}

// firstImage returns the save node's first image, falling back to the first
// image of any output in node id order.
func firstImage(h history) (imageRef, bool) {
	if out, ok := h.Outputs[jobspec.NodeSave]; ok && len(out.Images) > 0 {
		return out.Images[0], true
	}
	ids := make([]string, 0, len(h.Outputs))
	for id := range h.Outputs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if imgs := h.Outputs[id].Images; len(imgs) > 0 {
			return imgs[0], true
		}
	}
	return imageRef{}, false
}

func truncate(b []byte) string {
	const limit = 300
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
