package ledger

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/bitplane/yt-mpv/internal/uri"
)

// timestampLayout has fixed-width fractional seconds so stored values sort lexically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// decodeError marks a stored row that cannot be turned back into a Record.
type decodeError struct {
	field string
	value string
}

func (e *decodeError) Error() string {
	return fmt.Sprintf("decode %s: unexpected value %q", e.field, e.value)
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		url            string
		statusRaw      string
		attempts       int
		lastAttemptRaw sql.NullString
		remoteID       sql.NullString
		lastError      sql.NullString
		owner          sql.NullString
		createdRaw     string
		updatedRaw     string
	)
	if err := scanner.Scan(
		&url,
		&statusRaw,
		&attempts,
		&lastAttemptRaw,
		&remoteID,
		&lastError,
		&owner,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	status, ok := ParseStatus(statusRaw)
	if !ok {
		return nil, &decodeError{field: "status", value: statusRaw}
	}
	record := &Record{
		URL:       uri.CanonicalURL(url),
		Status:    status,
		Attempts:  attempts,
		RemoteID:  remoteID.String,
		LastError: lastError.String,
		Owner:     owner.String,
	}
	var err error
	if record.LastAttemptAt, err = parseTimeString("last_attempt_at", lastAttemptRaw.String); err != nil {
		return nil, err
	}
	if record.CreatedAt, err = parseTimeString("created_at", createdRaw); err != nil {
		return nil, err
	}
	if record.UpdatedAt, err = parseTimeString("updated_at", updatedRaw); err != nil {
		return nil, err
	}
	return record, nil
}

func parseTimeString(field, value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, &decodeError{field: field, value: value}
	}
	return parsed.UTC(), nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return value.UTC().Format(timestampLayout)
}
