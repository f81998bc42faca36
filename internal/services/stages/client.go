package stages

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"medcast/internal/run"
)

const defaultStageTimeout = 2 * time.Minute

// ExecutionError is the typed failure returned when a stage invocation does
// not produce a usable artifact.
type ExecutionError struct {
	Stage      run.Stage
	HTTPStatus int
	Body       string
	Err        error
}

func (e *ExecutionError) Error() string {
	if e.HTTPStatus > 0 {
		return fmt.Sprintf("stage %s: http %d: %s", e.Stage, e.HTTPStatus, strings.TrimSpace(e.Body))
	}
	if e.Err != nil {
		return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("stage %s failed", e.Stage)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Request carries everything a stage invocation needs. The client selects
// which upstream artifacts each stage receives per its contract.
type Request struct {
	OwnerID          string
	RunID            string
	RetrievalIndexID string
	Parameters       json.RawMessage
	Artifacts        run.Artifacts
}

// Client invokes stage services.
type Client struct {
	baseURL    string
	endpoints  map[run.Stage]string
	httpClient *http.Client
	timeout    time.Duration
	retry      RetryPolicy
}

// Option customizes the stage client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout bounds each invocation attempt.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithRetryPolicy installs the retry policy applied to transient failures.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Client) {
		c.retry = policy
	}
}

// WithEndpoint overrides the URL for a single stage.
func WithEndpoint(stage run.Stage, url string) Option {
	return func(c *Client) {
		url = strings.TrimSpace(url)
		if url == "" {
			return
		}
		if c.endpoints == nil {
			c.endpoints = make(map[run.Stage]string)
		}
		c.endpoints[stage] = url
	}
}

// NewClient constructs a stage client. Stages are invoked at
// <baseURL>/<stage-name> unless an endpoint override is installed.
func NewClient(baseURL string, opts ...Option) *Client {
	client := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{},
		timeout:    defaultStageTimeout,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Invoke calls one stage and returns its opaque artifact. Retries follow the
// installed policy; context cancellation aborts immediately.
func (c *Client) Invoke(ctx context.Context, stage run.Stage, req Request) (json.RawMessage, error) {
	if _, ok := stage.Index(); !ok {
		return nil, &ExecutionError{Stage: stage, Err: fmt.Errorf("unknown stage %q", stage)}
	}
	endpoint, err := c.endpointFor(stage)
	if err != nil {
		return nil, &ExecutionError{Stage: stage, Err: err}
	}
	payload, err := buildPayload(stage, req)
	if err != nil {
		return nil, &ExecutionError{Stage: stage, Err: err}
	}

	var lastErr error
	attempts := c.retry.attempts()
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.retry.backoff(attempt - 1)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		artifact, err := c.invokeOnce(ctx, stage, endpoint, payload)
		if err == nil {
			return artifact, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, err
		}

		var execErr *ExecutionError
		if !errors.As(err, &execErr) || !c.retry.shouldRetry(execErr.HTTPStatus) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) invokeOnce(ctx context.Context, stage run.Stage, endpoint string, payload []byte) (json.RawMessage, error) {
	attemptCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &ExecutionError{Stage: stage, Err: fmt.Errorf("build request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &ExecutionError{Stage: stage, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ExecutionError{Stage: stage, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &ExecutionError{Stage: stage, HTTPStatus: resp.StatusCode, Body: string(body)}
	}

	var parsed map[string]json.RawMessage
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &ExecutionError{Stage: stage, Err: fmt.Errorf("decode response: %w", err)}
	}
	artifact, ok := parsed[stage.OutputField()]
	if !ok || len(artifact) == 0 {
		return nil, &ExecutionError{Stage: stage, Err: fmt.Errorf("response missing %q field", stage.OutputField())}
	}
	return artifact, nil
}

func (c *Client) endpointFor(stage run.Stage) (string, error) {
	if url, ok := c.endpoints[stage]; ok {
		return url, nil
	}
	if c.baseURL == "" {
		return "", fmt.Errorf("no endpoint configured for stage %s", stage)
	}
	return c.baseURL + "/" + string(stage), nil
}

// buildPayload assembles the stage request body. Every stage receives the
// run identity and the nullable retrieval index reference; upstream
// artifacts are forwarded verbatim per each stage's contract.
func buildPayload(stage run.Stage, req Request) ([]byte, error) {
	body := map[string]any{
		"ownerId":          req.OwnerID,
		"runId":            req.RunID,
		"retrievalIndexId": nullableID(req.RetrievalIndexID),
	}

	switch stage {
	case run.StageDocumentOverview:
		// Index reference only.
	case run.StageContentMapping:
		body["overview"] = req.Artifacts.Overview
	case run.StageOutlineGeneration:
		body["overview"] = req.Artifacts.Overview
		body["contentMap"] = req.Artifacts.ContentMap
		if len(req.Parameters) > 0 {
			body["runParameters"] = req.Parameters
		}
	case run.StageScriptFinalization:
		body["outline"] = req.Artifacts.Outline
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return encoded, nil
}

func nullableID(id string) any {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	return id
}
