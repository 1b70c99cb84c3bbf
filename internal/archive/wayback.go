package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bitplane/yt-mpv/internal/config"
	"github.com/bitplane/yt-mpv/internal/logging"
	"github.com/bitplane/yt-mpv/internal/uri"
)

const backendWayback = "wayback"

// Wayback captures pages through Save Page Now and looks them up with the
// availability API.
type Wayback struct {
	client          HTTPDoer
	logger          *slog.Logger
	accessKey       string
	secretKey       string
	baseURL         string
	availabilityURL string
	pollInterval    time.Duration
	pollTimeout     time.Duration
	requestTimeout  time.Duration
}

var _ Archiver = (*Wayback)(nil)

// WaybackOption configures the Wayback backend.
type WaybackOption func(*Wayback)

// WithWaybackHTTPClient overrides the HTTP client.
func WithWaybackHTTPClient(client HTTPDoer) WaybackOption {
	return func(w *Wayback) {
		if client != nil {
			w.client = client
		}
	}
}

// WithPollInterval overrides the capture status polling interval.
func WithPollInterval(interval time.Duration) WaybackOption {
	return func(w *Wayback) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

// NewWayback constructs the Save Page Now backend.
func NewWayback(cfg *config.Config, logger *slog.Logger, opts ...WaybackOption) (*Wayback, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	w := &Wayback{
		client:          http.DefaultClient,
		logger:          logging.NewComponentLogger(logger, backendWayback),
		accessKey:       cfg.InternetArchive.AccessKey,
		secretKey:       cfg.InternetArchive.SecretKey,
		baseURL:         strings.TrimRight(cfg.Wayback.BaseURL, "/"),
		availabilityURL: cfg.Wayback.AvailabilityURL,
		pollInterval:    time.Duration(cfg.Wayback.PollInterval) * time.Second,
		pollTimeout:     time.Duration(cfg.Wayback.PollTimeout) * time.Second,
		requestTimeout:  time.Duration(cfg.Wayback.RequestTimeout) * time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.pollInterval <= 0 {
		w.pollInterval = 5 * time.Second
	}
	return w, nil
}

// Name implements Archiver.
func (w *Wayback) Name() string { return backendWayback }

// RemoteURL implements Archiver.
func (w *Wayback) RemoteURL(remoteID string) string {
	if remoteID == "" {
		return ""
	}
	return w.baseURL + "/web/" + remoteID
}

type availabilityResponse struct {
	ArchivedSnapshots struct {
		Closest *struct {
			Available bool   `json:"available"`
			URL       string `json:"url"`
			Timestamp string `json:"timestamp"`
			Status    string `json:"status"`
		} `json:"closest"`
	} `json:"archived_snapshots"`
}

// Query reports the closest existing snapshot of url.
func (w *Wayback) Query(ctx context.Context, target uri.CanonicalURL) (string, bool, error) {
	endpoint := w.availabilityURL + "?url=" + url.QueryEscape(string(target))
	var payload availabilityResponse
	if err := w.getJSON(ctx, endpoint, "availability lookup", &payload); err != nil {
		return "", false, err
	}
	closest := payload.ArchivedSnapshots.Closest
	if closest == nil || !closest.Available || closest.Timestamp == "" {
		return "", false, nil
	}
	return closest.Timestamp + "/" + string(target), true, nil
}

type saveResponse struct {
	URL       string `json:"url"`
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	StatusExt string `json:"status_ext"`
	Message   string `json:"message"`
}

type saveStatus struct {
	Status      string `json:"status"`
	StatusExt   string `json:"status_ext"`
	Message     string `json:"message"`
	Timestamp   string `json:"timestamp"`
	OriginalURL string `json:"original_url"`
}

// Submit returns the closest existing snapshot when there is one. Otherwise
// it requests a capture and waits for the job to finish. A failed lookup
// does not prevent the capture.
func (w *Wayback) Submit(ctx context.Context, target uri.CanonicalURL) (string, error) {
	logger := logging.WithContext(ctx, w.logger)
	existing, found, err := w.Query(ctx, target)
	switch {
	case err != nil && ctx.Err() != nil:
		return "", ctx.Err()
	case err != nil:
		logger.Debug("snapshot lookup failed; capturing anyway", logging.Error(err))
	case found:
		logger.Info("snapshot already exists", logging.String("remote_id", existing))
		return existing, nil
	}

	job, err := w.startCapture(ctx, target)
	if err != nil {
		return "", err
	}
	logger.Info("capture queued", logging.String("job_id", job))

	pollCtx := ctx
	if w.pollTimeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, w.pollTimeout)
		defer cancel()
	}
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-pollCtx.Done():
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", transient(w.Name(), Timeout, "capture did not finish in time", pollCtx.Err())
		case <-ticker.C:
		}

		var status saveStatus
		if err := w.getJSON(pollCtx, w.baseURL+"/save/status/"+url.PathEscape(job), "capture status", &status); err != nil {
			var te *TransientError
			if errors.As(err, &te) && te.Kind != RateLimited && pollCtx.Err() == nil {
				logger.Debug("capture status poll failed", logging.Error(err))
				continue
			}
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", err
		}
		switch status.Status {
		case "success":
			original := status.OriginalURL
			if original == "" {
				original = string(target)
			}
			return status.Timestamp + "/" + original, nil
		case "error":
			return "", captureError(w.Name(), status.StatusExt, status.Message)
		default:
			logger.Debug("capture pending", logging.String("job_id", job))
		}
	}
}

func (w *Wayback) startCapture(ctx context.Context, target uri.CanonicalURL) (string, error) {
	reqCtx := ctx
	if w.requestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, w.requestTimeout)
		defer cancel()
	}
	form := url.Values{"url": {string(target)}}
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, w.baseURL+"/save", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build capture request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w.authorize(req)

	resp, err := w.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", transportError(w.Name(), "capture request", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", responseError(w.Name(), "capture request", resp)
	}
	var payload saveResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", transient(w.Name(), Network, "decode capture response", err)
	}
	if payload.Status == "error" {
		return "", captureError(w.Name(), payload.StatusExt, payload.Message)
	}
	if payload.JobID == "" {
		return "", transient(w.Name(), Network, "capture response has no job id", nil)
	}
	return payload.JobID, nil
}

func (w *Wayback) getJSON(ctx context.Context, endpoint, action string, out any) error {
	reqCtx := ctx
	if w.requestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, w.requestTimeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", action, err)
	}
	w.authorize(req)

	resp, err := w.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return transportError(w.Name(), action, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return responseError(w.Name(), action, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return transient(w.Name(), Network, "decode "+action, err)
	}
	return nil
}

func (w *Wayback) authorize(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if w.accessKey != "" && w.secretKey != "" {
		req.Header.Set("Authorization", lowAuthorization(w.accessKey, w.secretKey))
	}
}

// captureError maps a Save Page Now status_ext code onto the taxonomy.
func captureError(backend, code, message string) error {
	cause := errors.New(strings.TrimSpace(code + " " + message))
	lower := strings.ToLower(code)
	switch {
	case strings.Contains(lower, "invalid-url"), strings.Contains(lower, "invalid-host"), strings.Contains(lower, "not-found"):
		return permanent(backend, InvalidURL, "", cause)
	case strings.Contains(lower, "too-many-daily-captures"):
		return permanent(backend, QuotaExceeded, "", cause)
	case strings.Contains(lower, "user-session-limit"), strings.Contains(lower, "too-many-requests"), strings.Contains(lower, "capture-limit"):
		return transient(backend, RateLimited, "", cause)
	case strings.Contains(lower, "blocked"), strings.Contains(lower, "no-access"), strings.Contains(lower, "forbidden"), strings.Contains(lower, "filesize-limit"):
		return permanent(backend, Rejected, "", cause)
	case strings.Contains(lower, "timeout"):
		return transient(backend, Timeout, "", cause)
	default:
		return transient(backend, Network, "", cause)
	}
}
