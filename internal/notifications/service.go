package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"medcast/internal/config"
)

const userAgent = "Medcast/0.1.0"

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	NotifyRunReady(ctx context.Context, runID, title string, queuePosition int) error
	NotifyRunFailed(ctx context.Context, runID, title, message string) error
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
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		runReady:  cfg.Notifications.RunReady,
		runErrors: cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	runReady  bool
	runErrors bool
}

func (n *ntfyService) NotifyRunReady(ctx context.Context, runID, title string, queuePosition int) error {
	if !n.runReady {
		return nil
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = runID
	}
	message := fmt.Sprintf("Script ready: %s", title)
	if queuePosition > 0 {
		message = fmt.Sprintf("%s\nRender queue position: %d", message, queuePosition)
	}
	data := payload{
		title:    "Medcast - Script Ready",
		message:  message,
		tags:     []string{"medcast", "run", "ready"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRunFailed(ctx context.Context, runID, title, message string) error {
	if !n.runErrors {
		return nil
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = runID
	}
	message = strings.TrimSpace(message)
	if message == "" {
		message = "unknown error"
	}
	data := payload{
		title:    "Medcast - Run Failed",
		message:  fmt.Sprintf("Run failed: %s\n%s", title, message),
		tags:     []string{"medcast", "run", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Medcast - Test",
		message:  "Notification system test",
		tags:     []string{"medcast", "test"},
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

func (noopService) NotifyRunReady(context.Context, string, string, int) error     { return nil }
func (noopService) NotifyRunFailed(context.Context, string, string, string) error { return nil }
func (noopService) TestNotification(context.Context) error                        { return nil }
