package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"docsorter/internal/config"
)

const userAgent = "docsorter/0.1"

// Service defines the notification surface used by the sorter runtime.
type Service interface {
	NotifyDocumentSorted(ctx context.Context, name, destination string) error
	NotifyDocumentFailed(ctx context.Context, name, stage string, err error) error
	NotifyRunSummary(ctx context.Context, summary Summary) error
	TestNotification(ctx context.Context) error
	Enabled() bool
}

// Summary is the per-run outcome count sent at shutdown.
type Summary struct {
	Processed int
	Skipped   int
	Failed    int
	Deferred  int
	Duration  time.Duration
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg config.Notifications) Service {
	topic := strings.TrimSpace(cfg.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:     topic,
		client:       &http.Client{Timeout: timeout},
		notifySorted: cfg.NotifySorted,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint     string
	client       *http.Client
	notifySorted bool
}

func (n *ntfyService) Enabled() bool { return true }

func (n *ntfyService) NotifyDocumentSorted(ctx context.Context, name, destination string) error {
	if !n.notifySorted {
		return nil
	}
	data := payload{
		title:    "docsorter - Sorted",
		message:  fmt.Sprintf("%s\n→ %s", strings.TrimSpace(name), strings.TrimSpace(destination)),
		tags:     []string{"docsorter", "sorted"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyDocumentFailed(ctx context.Context, name, stage string, err error) error {
	var builder strings.Builder
	fmt.Fprintf(&builder, "%s stayed in the inbox", strings.TrimSpace(name))
	if stage = strings.TrimSpace(stage); stage != "" {
		fmt.Fprintf(&builder, " (failed at %s)", stage)
	}
	if err != nil {
		fmt.Fprintf(&builder, "\n%v", err)
	}
	data := payload{
		title:    "docsorter - Document Failed",
		message:  builder.String(),
		tags:     []string{"docsorter", "error", "warning"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRunSummary(ctx context.Context, summary Summary) error {
	message := fmt.Sprintf("Sorted %d, skipped %d, failed %d, deferred %d",
		summary.Processed, summary.Skipped, summary.Failed, summary.Deferred)
	if summary.Duration > 0 {
		message += fmt.Sprintf(" in %s", summary.Duration.Round(time.Second))
	}
	data := payload{
		title:   "docsorter - Run Complete",
		message: message,
		tags:    []string{"docsorter", "summary"},
	}
	if summary.Failed > 0 {
		data.priority = "high"
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "docsorter - Test",
		message:  "Notification system test",
		tags:     []string{"docsorter", "test"},
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

func (noopService) Enabled() bool                                                     { return false }
func (noopService) NotifyDocumentSorted(context.Context, string, string) error        { return nil }
func (noopService) NotifyDocumentFailed(context.Context, string, string, error) error { return nil }
func (noopService) NotifyRunSummary(context.Context, Summary) error                   { return nil }
func (noopService) TestNotification(context.Context) error                            { return nil }
