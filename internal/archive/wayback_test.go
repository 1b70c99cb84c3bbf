package archive_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bitplane/yt-mpv/internal/archive"
	"github.com/bitplane/yt-mpv/internal/logging"
	"github.com/bitplane/yt-mpv/internal/testsupport"
)

func newWayback(t *testing.T, handler http.Handler) (*archive.Wayback, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := testsupport.NewConfig(t, testsupport.WithCredentials("access", "secret"))
	cfg.Wayback.BaseURL = srv.URL
	cfg.Wayback.AvailabilityURL = srv.URL + "/available"
	cfg.Wayback.PollTimeout = 5
	w, err := archive.NewWayback(cfg, logging.NewNop(), archive.WithPollInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWayback: %v", err)
	}
	return w, srv
}

func TestWaybackSubmitPollsUntilSuccess(t *testing.T) {
	var polls atomic.Int32
	var gotURL, gotAuth atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("/save", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotURL.Store(r.PostForm.Get("url"))
		gotAuth.Store(r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"url":"`+r.PostForm.Get("url")+`","job_id":"job-1"}`)
	})
	mux.HandleFunc("/save/status/job-1", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) < 3 {
			_, _ = io.WriteString(w, `{"status":"pending"}`)
			return
		}
		_, _ = io.WriteString(w, `{"status":"success","timestamp":"20240102030405","original_url":"https://www.youtube.com/watch?v=abc123"}`)
	})
	w, srv := newWayback(t, mux)

	id, err := w.Submit(context.Background(), mediaURL)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if id != "20240102030405/https://www.youtube.com/watch?v=abc123" {
		t.Fatalf("remote id = %q", id)
	}
	if polls.Load() != 3 {
		t.Fatalf("expected 3 polls, got %d", polls.Load())
	}
	if gotURL.Load() != string(mediaURL) {
		t.Fatalf("capture url = %v", gotURL.Load())
	}
	if gotAuth.Load() != "LOW access:secret" {
		t.Fatalf("authorization = %v", gotAuth.Load())
	}
	if got := w.RemoteURL(id); got != srv.URL+"/web/"+id {
		t.Fatalf("RemoteURL = %q", got)
	}
}

func TestWaybackSubmitReusesExistingSnapshot(t *testing.T) {
	var captures atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/available", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"archived_snapshots":{"closest":{"available":true,"timestamp":"20230101000000","status":"200"}}}`)
	})
	mux.HandleFunc("/save", func(w http.ResponseWriter, r *http.Request) {
		captures.Add(1)
		_, _ = io.WriteString(w, `{"job_id":"job-9"}`)
	})
	w, _ := newWayback(t, mux)

	id, err := w.Submit(context.Background(), mediaURL)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if id != "20230101000000/"+string(mediaURL) {
		t.Fatalf("remote id = %q", id)
	}
	if captures.Load() != 0 {
		t.Fatalf("expected no capture request, got %d", captures.Load())
	}
}

func TestWaybackSubmitCapturesWhenNoSnapshot(t *testing.T) {
	var captures atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/available", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"archived_snapshots":{}}`)
	})
	mux.HandleFunc("/save", func(w http.ResponseWriter, r *http.Request) {
		captures.Add(1)
		_, _ = io.WriteString(w, `{"job_id":"job-3"}`)
	})
	mux.HandleFunc("/save/status/job-3", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"success","timestamp":"20240102030405"}`)
	})
	w, _ := newWayback(t, mux)

	id, err := w.Submit(context.Background(), mediaURL)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if id != "20240102030405/"+string(mediaURL) || captures.Load() != 1 {
		t.Fatalf("remote id = %q after %d capture(s)", id, captures.Load())
	}
}

func TestWaybackSubmitCaptureError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/save", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"job_id":"job-2"}`)
	})
	mux.HandleFunc("/save/status/job-2", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"error","status_ext":"error:too-many-daily-captures","message":"daily limit"}`)
	})
	w, _ := newWayback(t, mux)

	_, err := w.Submit(context.Background(), mediaURL)
	var perm *archive.PermanentError
	if !errors.As(err, &perm) || perm.Kind != archive.QuotaExceeded {
		t.Fatalf("expected quota error, got %v", err)
	}
}

func TestWaybackSubmitRateLimited(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/save", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	w, _ := newWayback(t, mux)

	_, err := w.Submit(context.Background(), mediaURL)
	var te *archive.TransientError
	if !errors.As(err, &te) || te.Kind != archive.RateLimited {
		t.Fatalf("expected rate limited error, got %v", err)
	}
	if te.RetryAfter != time.Minute {
		t.Fatalf("RetryAfter = %v", te.RetryAfter)
	}
}

func TestWaybackQuery(t *testing.T) {
	var available atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("/available", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("url") != string(mediaURL) {
			http.Error(w, "wrong url", http.StatusBadRequest)
			return
		}
		if !available.Load() {
			_, _ = io.WriteString(w, `{"archived_snapshots":{}}`)
			return
		}
		_, _ = io.WriteString(w, `{"archived_snapshots":{"closest":{"available":true,"url":"http://web.archive.org/web/20240102030405/x","timestamp":"20240102030405","status":"200"}}}`)
	})
	w, _ := newWayback(t, mux)

	if _, found, err := w.Query(context.Background(), mediaURL); err != nil || found {
		t.Fatalf("expected no snapshot, got found=%v err=%v", found, err)
	}
	available.Store(true)
	id, found, err := w.Query(context.Background(), mediaURL)
	if err != nil || !found {
		t.Fatalf("expected snapshot, got found=%v err=%v", found, err)
	}
	if id != "20240102030405/"+string(mediaURL) {
		t.Fatalf("remote id = %q", id)
	}
}

func TestWaybackQueryServerError(t *testing.T) {
	w, _ := newWayback(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	_, _, err := w.Query(context.Background(), mediaURL)
	var te *archive.TransientError
	if !errors.As(err, &te) || te.Kind != archive.Network {
		t.Fatalf("expected transient network error, got %v", err)
	}
}
