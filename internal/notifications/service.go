package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/bitplane/yt-mpv/internal/config"
)

const userAgent = "yt-mpv/0.4.0"

// Event names a notification-worthy moment in the archive lifecycle.
type Event string

const (
	EventArchiveStarted   Event = "archive_started"
	EventArchiveCompleted Event = "archive_completed"
	EventAlreadyArchived  Event = "already_archived"
	EventArchiveFailed    Event = "archive_failed"
	EventPlaybackFailed   Event = "playback_failed"
	EventTest             Event = "test"
)

// Payload carries event fields keyed by name.
type Payload map[string]any

func (p Payload) text(key string) string {
	if p == nil {
		return ""
	}
	value, ok := p[key]
	if !ok || value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

// Service publishes events to the user.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds the notifiers enabled in cfg. Desktop notifications go
// through notify-send; ntfy is used when a topic URL is configured. With
// neither enabled a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var services []Service
	if cfg.Notifications.Desktop {
		if binary := strings.TrimSpace(cfg.Notifications.NotifySendBinary); binary != "" {
			services = append(services, &desktopService{binary: binary, timeout: timeout, run: runCommand})
		}
	}
	if topic := strings.TrimSpace(cfg.Notifications.NtfyTopic); topic != "" {
		services = append(services, &ntfyService{
			endpoint: topic,
			client:   &http.Client{Timeout: timeout},
		})
	}

	switch len(services) {
	case 0:
		return noopService{}
	case 1:
		return services[0]
	default:
		return multiService(services)
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

func render(event Event, payload Payload) (message, bool) {
	url := payload.text("url")
	switch event {
	case EventArchiveStarted:
		return message{
			title: "yt-mpv - Archiving",
			body:  fmt.Sprintf("Archiving: %s", url),
			tags:  []string{"yt-mpv", "archive", "started"},
		}, true
	case EventArchiveCompleted:
		body := fmt.Sprintf("📦 Archived: %s", url)
		if remote := payload.text("remoteURL"); remote != "" {
			body = fmt.Sprintf("%s\n%s", body, remote)
		}
		return message{
			title: "yt-mpv - Archived",
			body:  body,
			tags:  []string{"yt-mpv", "archive", "completed"},
		}, true
	case EventAlreadyArchived:
		body := fmt.Sprintf("Already archived: %s", url)
		if remote := payload.text("remoteURL"); remote != "" {
			body = fmt.Sprintf("%s\n%s", body, remote)
		}
		return message{
			title:    "yt-mpv - Already Archived",
			body:     body,
			tags:     []string{"yt-mpv", "archive", "skipped"},
			priority: "low",
		}, true
	case EventArchiveFailed:
		reason := payload.text("reason")
		if reason == "" {
			reason = "unknown"
		}
		return message{
			title:    "yt-mpv - Archive Failed",
			body:     fmt.Sprintf("❌ Archive failed: %s\n%s", url, reason),
			tags:     []string{"yt-mpv", "archive", "error"},
			priority: "high",
		}, true
	case EventPlaybackFailed:
		return message{
			title:    "yt-mpv - Playback Failed",
			body:     fmt.Sprintf("❌ Could not start player: %s", payload.text("reason")),
			tags:     []string{"yt-mpv", "player", "error"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "yt-mpv - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"yt-mpv", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	data, ok := render(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
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

type desktopService struct {
	binary  string
	timeout time.Duration
	run     func(ctx context.Context, binary string, args ...string) error
}

func (d *desktopService) Publish(ctx context.Context, event Event, payload Payload) error {
	data, ok := render(event, payload)
	if !ok {
		return nil
	}
	args := []string{"--app-name=yt-mpv"}
	switch data.priority {
	case "high":
		args = append(args, "--urgency=critical")
	case "low":
		args = append(args, "--urgency=low")
	}
	args = append(args, data.title, data.body)

	runCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.run(runCtx, d.binary, args...); err != nil {
		return fmt.Errorf("send desktop notification: %w", err)
	}
	return nil
}

func runCommand(ctx context.Context, binary string, args ...string) error {
	return exec.CommandContext(ctx, binary, args...).Run() //nolint:gosec
}

type multiService []Service

func (m multiService) Publish(ctx context.Context, event Event, payload Payload) error {
	var result *multierror.Error
	for _, svc := range m {
		if err := svc.Publish(ctx, event, payload); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
