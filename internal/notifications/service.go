package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"streamlapse/internal/config"
)

const userAgent = "Streamlapse/0.1.0"

// Service defines the notification surface exposed to workflow components.
type Service interface {
	NotifyStreamDiscovered(ctx context.Context, title, videoID string) error
	NotifyDownloadCompleted(ctx context.Context, title string) error
	NotifyUploadCompleted(ctx context.Context, title, watchURL string) error
	NotifyReviewRequired(ctx context.Context, title, reason string) error
	NotifyPassCompleted(ctx context.Context, processed, failed int, duration time.Duration) error
	NotifyError(ctx context.Context, err error, context string) error
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
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled:  cfg.Notifications,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  config.Notifications
}

func (n *ntfyService) NotifyStreamDiscovered(ctx context.Context, title, videoID string) error {
	if !n.enabled.Discovery {
		return nil
	}
	data := payload{
		title:   "Streamlapse - Stream Found",
		message: fmt.Sprintf("New completed stream: %s (%s)", strings.TrimSpace(title), strings.TrimSpace(videoID)),
		tags:    []string{"streamlapse", "discovery"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyDownloadCompleted(ctx context.Context, title string) error {
	if !n.enabled.Download {
		return nil
	}
	data := payload{
		title:   "Streamlapse - Download Complete",
		message: fmt.Sprintf("Downloaded: %s", strings.TrimSpace(title)),
		tags:    []string{"streamlapse", "download", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyUploadCompleted(ctx context.Context, title, watchURL string) error {
	if !n.enabled.Upload {
		return nil
	}
	message := fmt.Sprintf("Timelapse published: %s", strings.TrimSpace(title))
	if watchURL = strings.TrimSpace(watchURL); watchURL != "" {
		message = fmt.Sprintf("%s\n%s", message, watchURL)
	}
	data := payload{
		title:    "Streamlapse - Published",
		message:  message,
		tags:     []string{"streamlapse", "upload", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyReviewRequired(ctx context.Context, title, reason string) error {
	if !n.enabled.Review {
		return nil
	}
	data := payload{
		title:   "Streamlapse - Review Required",
		message: fmt.Sprintf("Stream needs attention: %s\n%s", strings.TrimSpace(title), strings.TrimSpace(reason)),
		tags:    []string{"streamlapse", "review"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyPassCompleted(ctx context.Context, processed, failed int, duration time.Duration) error {
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}

	var title, message string
	if failed == 0 {
		title = "Streamlapse - Pass Complete"
		message = fmt.Sprintf("Processing pass complete: %d streams in %s", processed, duration)
	} else {
		title = "Streamlapse - Pass Complete (with errors)"
		message = fmt.Sprintf("Processing pass complete: %d succeeded, %d failed in %s", processed, failed, duration)
	}

	data := payload{
		title:   title,
		message: message,
		tags:    []string{"streamlapse", "pass", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.enabled.Errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Streamlapse - Error",
		message:  builder.String(),
		tags:     []string{"streamlapse", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Streamlapse - Test",
		message:  "Notification system test",
		tags:     []string{"streamlapse", "test"},
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

func (noopService) NotifyStreamDiscovered(context.Context, string, string) error       { return nil }
func (noopService) NotifyDownloadCompleted(context.Context, string) error              { return nil }
func (noopService) NotifyUploadCompleted(context.Context, string, string) error        { return nil }
func (noopService) NotifyReviewRequired(context.Context, string, string) error         { return nil }
func (noopService) NotifyPassCompleted(context.Context, int, int, time.Duration) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error                   { return nil }
func (noopService) TestNotification(context.Context) error                             { return nil }
