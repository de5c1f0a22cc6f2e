package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"streamlapse/internal/config"
	"streamlapse/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyDownloadCompleted(context.Background(), "Example Stream"); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		send           func(svc notifications.Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "stream discovered",
			send: func(svc notifications.Service) error {
				return svc.NotifyStreamDiscovered(context.Background(), "Morning Storm Watch", "abc123")
			},
			expectTitle:   "Streamlapse - Stream Found",
			expectMessage: "New completed stream: Morning Storm Watch (abc123)",
			expectTags:    "streamlapse,discovery",
		},
		{
			name: "download completed",
			send: func(svc notifications.Service) error {
				return svc.NotifyDownloadCompleted(context.Background(), "Morning Storm Watch")
			},
			expectTitle:   "Streamlapse - Download Complete",
			expectMessage: "Downloaded: Morning Storm Watch",
			expectTags:    "streamlapse,download,completed",
		},
		{
			name: "upload completed",
			send: func(svc notifications.Service) error {
				return svc.NotifyUploadCompleted(context.Background(), "Morning Storm Watch", "https://youtu.be/xyz")
			},
			expectTitle:    "Streamlapse - Published",
			expectMessage:  "Timelapse published: Morning Storm Watch\nhttps://youtu.be/xyz",
			expectTags:     "streamlapse,upload,completed",
			expectPriority: "high",
		},
		{
			name: "review required",
			send: func(svc notifications.Service) error {
				return svc.NotifyReviewRequired(context.Background(), "Morning Storm Watch", "upload retries exhausted")
			},
			expectTitle:   "Streamlapse - Review Required",
			expectMessage: "Stream needs attention: Morning Storm Watch\nupload retries exhausted",
			expectTags:    "streamlapse,review",
		},
		{
			name: "error",
			send: func(svc notifications.Service) error {
				return svc.NotifyError(context.Background(), errors.New("download stalled"), "fetch")
			},
			expectTitle:    "Streamlapse - Error",
			expectMessage:  "Error with fetch: download stalled",
			expectTags:     "streamlapse,error,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Fatalf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Fatalf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5
			cfg.Notifications.Discovery = true
			cfg.Notifications.Download = true
			cfg.Notifications.Upload = true
			cfg.Notifications.Review = true
			cfg.Notifications.Errors = true

			svc := notifications.NewService(&cfg)
			if err := tc.send(svc); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceSkipsDisabledCategories(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected call for disabled category: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Discovery = false
	cfg.Notifications.Download = false
	cfg.Notifications.Upload = false
	cfg.Notifications.Review = false
	cfg.Notifications.Errors = false

	svc := notifications.NewService(&cfg)
	if err := svc.NotifyStreamDiscovered(context.Background(), "t", "v"); err != nil {
		t.Fatalf("disabled discovery notification errored: %v", err)
	}
	if err := svc.NotifyDownloadCompleted(context.Background(), "t"); err != nil {
		t.Fatalf("disabled download notification errored: %v", err)
	}
	if err := svc.NotifyError(context.Background(), errors.New("boom"), "fetch"); err != nil {
		t.Fatalf("disabled error notification errored: %v", err)
	}
}
