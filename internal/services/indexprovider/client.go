package indexprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultHTTPTimeout = 30 * time.Second

// ProviderError is the typed failure returned for any index provider call.
type ProviderError struct {
	Operation  string
	StatusCode int
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("index provider: %s: http %d: %s", e.Operation, e.StatusCode, strings.TrimSpace(e.Body))
	}
	if e.Err != nil {
		return fmt.Sprintf("index provider: %s: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("index provider: %s failed", e.Operation)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Client calls the retrieval index provider API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option customizes the index provider client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout overrides the request timeout on the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient constructs an index provider client. An empty base URL produces
// a client whose calls fail with a configuration ProviderError; callers that
// want retrieval augmentation disabled simply leave the base URL unset.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	client := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Enabled reports whether the client has a provider endpoint configured.
func (c *Client) Enabled() bool {
	return c.baseURL != ""
}

type createIndexRequest struct {
	Name string `json:"name"`
}

type createIndexResponse struct {
	IndexID string `json:"indexId"`
}

// CreateIndex provisions an ephemeral index and returns its identifier.
func (c *Client) CreateIndex(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", &ProviderError{Operation: "create index", Err: errors.New("index name required")}
	}
	if !c.Enabled() {
		return "", &ProviderError{Operation: "create index", Err: errors.New("provider base url not configured")}
	}

	body, err := c.post(ctx, "create index", c.baseURL+"/indexes", createIndexRequest{Name: name})
	if err != nil {
		return "", err
	}

	var parsed createIndexResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &ProviderError{Operation: "create index", Err: fmt.Errorf("decode response: %w", err)}
	}
	if strings.TrimSpace(parsed.IndexID) == "" {
		return "", &ProviderError{Operation: "create index", Err: errors.New("provider returned empty index id")}
	}
	return parsed.IndexID, nil
}

type attachFilesRequest struct {
	FileIDs []string `json:"fileIds"`
}

// AttachFiles attaches source file references to an index. An empty file set
// is a successful no-op.
func (c *Client) AttachFiles(ctx context.Context, indexID string, fileRefs []string) error {
	if len(fileRefs) == 0 {
		return nil
	}
	indexID = strings.TrimSpace(indexID)
	if indexID == "" {
		return &ProviderError{Operation: "attach files", Err: errors.New("index id required")}
	}
	if !c.Enabled() {
		return &ProviderError{Operation: "attach files", Err: errors.New("provider base url not configured")}
	}

	endpoint, err := url.JoinPath(c.baseURL, "indexes", indexID, "files", "batch")
	if err != nil {
		return &ProviderError{Operation: "attach files", Err: fmt.Errorf("build url: %w", err)}
	}
	_, err = c.post(ctx, "attach files", endpoint, attachFilesRequest{FileIDs: fileRefs})
	return err
}

// Expiry computes the timestamp after which a run's index is eligible for
// garbage collection by the external reaper.
func Expiry(now time.Time, retentionDays int) time.Time {
	if retentionDays < 1 {
		retentionDays = 1
	}
	return now.UTC().AddDate(0, 0, retentionDays)
}

func (c *Client) post(ctx context.Context, operation, endpoint string, payload any) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, &ProviderError{Operation: operation, Err: fmt.Errorf("encode request: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, &ProviderError{Operation: operation, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ProviderError{Operation: operation, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{Operation: operation, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &ProviderError{Operation: operation, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
