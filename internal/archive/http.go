package archive

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HTTPDoer describes the HTTP client used by the archive backends.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

const maxErrorBody = 64 * 1024

// s3Error is the XML error document returned by the archive.org S3 API.
type s3Error struct {
	XMLName xml.Name `xml:"Error"`
	Code    string   `xml:"Code"`
	Message string   `xml:"Message"`
}

// spnError is the JSON error document returned by Save Page Now.
type spnError struct {
	Status    string `json:"status"`
	StatusExt string `json:"status_ext"`
	Message   string `json:"message"`
}

// transportError classifies a failed round trip.
func transportError(backend, action string, err error) error {
	if isTimeout(err) {
		return transient(backend, Timeout, action, err)
	}
	return transient(backend, Network, action, err)
}

// responseError reads resp's body and classifies a non-success status.
// The body is consumed but not closed.
func responseError(backend, action string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	code, message := decodeErrorBody(body)
	return classifyStatus(backend, action, resp.StatusCode, code, message, retryAfter(resp.Header.Get("Retry-After")))
}

func decodeErrorBody(body []byte) (code, message string) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "", ""
	}
	if strings.HasPrefix(trimmed, "<") {
		var doc s3Error
		if err := xml.Unmarshal(body, &doc); err == nil && doc.Code != "" {
			return doc.Code, doc.Message
		}
	}
	if strings.HasPrefix(trimmed, "{") {
		var doc spnError
		if err := json.Unmarshal(body, &doc); err == nil && (doc.StatusExt != "" || doc.Message != "") {
			return doc.StatusExt, doc.Message
		}
	}
	if len(trimmed) > 200 {
		trimmed = trimmed[:200]
	}
	return "", trimmed
}

func classifyStatus(backend, action string, status int, code, message string, wait time.Duration) error {
	detail := fmt.Sprintf("%s returned %d", action, status)
	if code != "" {
		detail += " " + code
	}
	if message != "" {
		detail += ": " + message
	}
	cause := errors.New(detail)
	lowerCode := strings.ToLower(code)

	switch {
	case lowerCode == "slowdown" || status == http.StatusTooManyRequests:
		err := transient(backend, RateLimited, "", cause)
		err.RetryAfter = wait
		return err
	case lowerCode == "quotaexceeded" || strings.Contains(lowerCode, "too-many-daily-captures") || status == http.StatusInsufficientStorage:
		return permanent(backend, QuotaExceeded, "", cause)
	case strings.Contains(lowerCode, "invalid-url") || strings.Contains(lowerCode, "invalid_url") ||
		lowerCode == "invalidargument":
		return permanent(backend, InvalidURL, "", cause)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return transient(backend, Timeout, "", cause)
	case status >= 500:
		return transient(backend, Network, "", cause)
	case status == http.StatusBadRequest || status == http.StatusNotFound || status == http.StatusUnprocessableEntity:
		if strings.Contains(strings.ToLower(message), "url") {
			return permanent(backend, InvalidURL, "", cause)
		}
		return permanent(backend, Rejected, "", cause)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return permanent(backend, Rejected, "", cause)
	case status >= 400:
		return permanent(backend, Rejected, "", cause)
	default:
		return transient(backend, Network, "", cause)
	}
}

func retryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if wait := time.Until(at); wait > 0 {
			return wait
		}
	}
	return 0
}

func lowAuthorization(access, secret string) string {
	return fmt.Sprintf("LOW %s:%s", access, secret)
}
