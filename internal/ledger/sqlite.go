package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bitplane/yt-mpv/internal/uri"
)

// SQLiteStore persists archive records in a WAL-mode SQLite database.
// Writers from any process serialize on BEGIN IMMEDIATE; readers never block.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
	busyTimeoutMillis       = 5000
)

const recordColumns = "url, status, attempts, last_attempt_at, remote_id, last_error, owner, created_at, updated_at"

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// OpenSQLite opens or creates the ledger database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, unavailable("open", errors.New("ledger path required"))
	}
	// busy_timeout comes first so the WAL switch itself waits on concurrent openers.
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path, busyTimeoutMillis)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, unavailable("open", fmt.Errorf("open sqlite db: %w", err))
	}

	store := &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		if errors.Is(err, ErrSchemaMismatch) {
			return nil, corrupt("open", err)
		}
		return nil, unavailable("open", err)
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the record for url, or nil when none exists.
func (s *SQLiteStore) Get(ctx context.Context, url uri.CanonicalURL) (*Record, error) {
	ctx = ensureContext(ctx)
	var record *Record
	err := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM archive_records WHERE url = ?", string(url))
		var scanErr error
		record, scanErr = scanRecord(row)
		if errors.Is(scanErr, sql.ErrNoRows) {
			record = nil
			return nil
		}
		return scanErr
	})
	if err != nil {
		return nil, classify("get", err)
	}
	return record, nil
}

// Upsert atomically reads the current record, applies mutate and writes the result.
func (s *SQLiteStore) Upsert(ctx context.Context, url uri.CanonicalURL, mutate Mutator) (Record, error) {
	ctx = ensureContext(ctx)
	var (
		result    Record
		mutateErr error
	)
	err := retryOnBusy(ctx, func() error {
		mutateErr = nil
		return s.immediate(ctx, func(conn *sql.Conn) error {
			row := conn.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM archive_records WHERE url = ?", string(url))
			current, err := scanRecord(row)
			if errors.Is(err, sql.ErrNoRows) {
				current = nil
			} else if err != nil {
				return err
			}

			var input *Record
			if current != nil {
				cp := *current
				input = &cp
			}
			next, err := mutate(input)
			if err != nil {
				mutateErr = err
				return err
			}
			if err := validateUpdate(current, next); err != nil {
				mutateErr = err
				return err
			}
			next = finalize(url, current, next, s.now())

			_, err = conn.ExecContext(ctx,
				`INSERT INTO archive_records (`+recordColumns+`)
                VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
                ON CONFLICT(url) DO UPDATE SET
                    status = excluded.status,
                    attempts = excluded.attempts,
                    last_attempt_at = excluded.last_attempt_at,
                    remote_id = excluded.remote_id,
                    last_error = excluded.last_error,
                    owner = excluded.owner,
                    updated_at = excluded.updated_at`,
				string(next.URL),
				string(next.Status),
				next.Attempts,
				nullableTime(next.LastAttemptAt),
				nullableString(next.RemoteID),
				nullableString(next.LastError),
				nullableString(next.Owner),
				next.CreatedAt.UTC().Format(timestampLayout),
				next.UpdatedAt.UTC().Format(timestampLayout),
			)
			if err != nil {
				return fmt.Errorf("write record: %w", err)
			}
			result = next
			return nil
		})
	})
	if mutateErr != nil {
		return Record{}, mutateErr
	}
	if err != nil {
		return Record{}, classify("upsert", err)
	}
	return result, nil
}

// List returns every record, most recently updated first.
func (s *SQLiteStore) List(ctx context.Context) ([]Record, error) {
	ctx = ensureContext(ctx)
	var records []Record
	err := retryOnBusy(ctx, func() error {
		records = records[:0]
		rows, err := s.db.QueryContext(ctx, "SELECT "+recordColumns+" FROM archive_records ORDER BY updated_at DESC, url")
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			record, err := scanRecord(rows)
			if err != nil {
				return err
			}
			records = append(records, *record)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, classify("list", err)
	}
	return records, nil
}

// CheckHealth runs SQLite's integrity check.
func (s *SQLiteStore) CheckHealth(ctx context.Context) error {
	ctx = ensureContext(ctx)
	var result string
	if err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return classify("health", err)
	}
	if result != "ok" {
		return corrupt("health", fmt.Errorf("integrity check: %s", result))
	}
	return nil
}

// immediate runs fn inside BEGIN IMMEDIATE on a dedicated connection and
// commits when fn succeeds.
func (s *SQLiteStore) immediate(ctx context.Context, fn func(conn *sql.Conn) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	if err := fn(conn); err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return err
	}
	committed = true
	return nil
}

// classify maps driver errors onto the ledger taxonomy. Decoding problems are
// corruption; everything else means the store could not be reached.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ledgerErr *Error
	if errors.As(err, &ledgerErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var decodeErr *decodeError
	if errors.As(err, &decodeErr) {
		return corrupt(op, err)
	}
	msg := err.Error()
	if strings.Contains(msg, "SQLITE_CORRUPT") || strings.Contains(msg, "malformed") || strings.Contains(msg, "SQLITE_NOTADB") {
		return corrupt(op, err)
	}
	return unavailable(op, err)
}
