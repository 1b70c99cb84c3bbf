package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bitplane/yt-mpv/internal/config"
	"github.com/bitplane/yt-mpv/internal/notifications"
)

func TestNewServiceReturnsNoopWhenNothingEnabled(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.Desktop = false
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventArchiveCompleted, notifications.Payload{"url": "https://example.com/"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:  "archive completed",
			event: notifications.EventArchiveCompleted,
			payload: notifications.Payload{
				"url":       "https://example.com/watch?v=abc",
				"remoteURL": "https://archive.org/details/yt-mpv-alice-12345678",
			},
			expectTitle:   "yt-mpv - Archived",
			expectMessage: "📦 Archived: https://example.com/watch?v=abc\nhttps://archive.org/details/yt-mpv-alice-12345678",
			expectTags:    "yt-mpv,archive,completed",
		},
		{
			name:  "archive failed",
			event: notifications.EventArchiveFailed,
			payload: notifications.Payload{
				"url":    "https://example.com/watch?v=abc",
				"reason": "quota exceeded",
			},
			expectTitle:    "yt-mpv - Archive Failed",
			expectMessage:  "❌ Archive failed: https://example.com/watch?v=abc\nquota exceeded",
			expectTags:     "yt-mpv,archive,error",
			expectPriority: "high",
		},
		{
			name:           "already archived",
			event:          notifications.EventAlreadyArchived,
			payload:        notifications.Payload{"url": "https://example.com/a"},
			expectTitle:    "yt-mpv - Already Archived",
			expectMessage:  "Already archived: https://example.com/a",
			expectTags:     "yt-mpv,archive,skipped",
			expectPriority: "low",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var gotTitle, gotTags, gotPriority, gotBody string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				body, _ := io.ReadAll(r.Body)
				gotBody = string(body)
				gotTitle = r.Header.Get("Title")
				gotTags = r.Header.Get("Tags")
				gotPriority = r.Header.Get("Priority")
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.Desktop = false
			cfg.Notifications.NtfyTopic = server.URL
			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("Publish failed: %v", err)
			}
			if gotTitle != tc.expectTitle {
				t.Fatalf("title = %q, want %q", gotTitle, tc.expectTitle)
			}
			if gotBody != tc.expectMessage {
				t.Fatalf("message = %q, want %q", gotBody, tc.expectMessage)
			}
			if gotTags != tc.expectTags {
				t.Fatalf("tags = %q, want %q", gotTags, tc.expectTags)
			}
			if gotPriority != tc.expectPriority {
				t.Fatalf("priority = %q, want %q", gotPriority, tc.expectPriority)
			}
		})
	}
}

func TestNtfyServiceReportsServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic disabled", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.Desktop = false
	cfg.Notifications.NtfyTopic = server.URL
	err := notifications.NewService(&cfg).Publish(context.Background(), notifications.EventTest, nil)
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}
