package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/bitplane/yt-mpv/internal/uri"
)

const boltSchemaVersion = 1

var (
	boltBucketMetadata = []byte("metadata")
	boltBucketRecords  = []byte("records")
	boltKeyVersion     = []byte("version")
)

// BoltStore keeps archive records as JSON values in a bbolt file. The file
// is opened for each operation: bbolt holds an exclusive flock while a
// writable handle is open, so keeping it open would block every other
// handler process for the lifetime of this one.
type BoltStore struct {
	path        string
	lockTimeout time.Duration
	now         func() time.Time
}

var _ Store = (*BoltStore)(nil)

type boltRecord struct {
	URL           string    `json:"url"`
	Status        Status    `json:"status"`
	Attempts      int       `json:"attempts"`
	LastAttemptAt time.Time `json:"last_attempt_at,omitempty"`
	RemoteID      string    `json:"remote_id,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
	Owner         string    `json:"owner,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// OpenBolt prepares the bbolt ledger at path, creating buckets and the
// schema marker when the file is new.
func OpenBolt(path string, lockTimeout time.Duration) (*BoltStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, unavailable("open", errors.New("ledger path required"))
	}
	if lockTimeout <= 0 {
		lockTimeout = 10 * time.Second
	}
	store := &BoltStore{path: path, lockTimeout: lockTimeout, now: func() time.Time { return time.Now().UTC() }}
	err := store.update(func(tx *bbolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(boltBucketMetadata)
		if err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(boltBucketRecords); err != nil {
			return err
		}
		raw := meta.Get(boltKeyVersion)
		if raw == nil {
			return meta.Put(boltKeyVersion, []byte(fmt.Sprint(boltSchemaVersion)))
		}
		if string(raw) != fmt.Sprint(boltSchemaVersion) {
			return fmt.Errorf("%w: ledger has version %s, expected %d", ErrSchemaMismatch, raw, boltSchemaVersion)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSchemaMismatch) {
			return nil, corrupt("open", err)
		}
		return nil, boltError("open", err)
	}
	return store, nil
}

// Close is a no-op; no handle is held between operations.
func (s *BoltStore) Close() error { return nil }

// Get returns the record for url, or nil when none exists.
func (s *BoltStore) Get(ctx context.Context, url uri.CanonicalURL) (*Record, error) {
	if err := ensureContext(ctx).Err(); err != nil {
		return nil, err
	}
	var record *Record
	err := s.view(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(boltBucketRecords)
		if bucket == nil {
			return &decodeError{field: "bucket", value: string(boltBucketRecords)}
		}
		raw := bucket.Get([]byte(url))
		if raw == nil {
			return nil
		}
		decoded, err := decodeBoltRecord(raw)
		if err != nil {
			return err
		}
		record = decoded
		return nil
	})
	if err != nil {
		return nil, boltError("get", err)
	}
	return record, nil
}

// Upsert applies mutate inside a single bbolt write transaction.
func (s *BoltStore) Upsert(ctx context.Context, url uri.CanonicalURL, mutate Mutator) (Record, error) {
	if err := ensureContext(ctx).Err(); err != nil {
		return Record{}, err
	}
	var (
		result    Record
		mutateErr error
	)
	err := s.update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(boltBucketRecords)
		if bucket == nil {
			return &decodeError{field: "bucket", value: string(boltBucketRecords)}
		}
		key := []byte(url)
		var current *Record
		if raw := bucket.Get(key); raw != nil {
			decoded, err := decodeBoltRecord(raw)
			if err != nil {
				return err
			}
			current = decoded
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

		encoded, err := json.Marshal(toBoltRecord(next))
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		if err := bucket.Put(key, encoded); err != nil {
			return err
		}
		result = next
		return nil
	})
	if mutateErr != nil {
		return Record{}, mutateErr
	}
	if err != nil {
		return Record{}, boltError("upsert", err)
	}
	return result, nil
}

// List returns every record, most recently updated first.
func (s *BoltStore) List(ctx context.Context) ([]Record, error) {
	if err := ensureContext(ctx).Err(); err != nil {
		return nil, err
	}
	var records []Record
	err := s.view(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(boltBucketRecords)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(_, raw []byte) error {
			decoded, err := decodeBoltRecord(raw)
			if err != nil {
				return err
			}
			records = append(records, *decoded)
			return nil
		})
	})
	if err != nil {
		return nil, boltError("list", err)
	}
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].UpdatedAt.Equal(records[j].UpdatedAt) {
			return records[i].UpdatedAt.After(records[j].UpdatedAt)
		}
		return records[i].URL < records[j].URL
	})
	return records, nil
}

// CheckHealth walks every page of the file.
func (s *BoltStore) CheckHealth(ctx context.Context) error {
	if err := ensureContext(ctx).Err(); err != nil {
		return err
	}
	err := s.view(func(tx *bbolt.Tx) error {
		var problems []string
		for problem := range tx.Check() {
			problems = append(problems, problem.Error())
		}
		if len(problems) > 0 {
			return &decodeError{field: "pages", value: strings.Join(problems, "; ")}
		}
		return nil
	})
	if err != nil {
		return boltError("health", err)
	}
	return nil
}

// view opens the file read-only so concurrent readers share the flock and
// only wait on a writer.
func (s *BoltStore) view(fn func(tx *bbolt.Tx) error) error {
	db, err := bbolt.Open(s.path, 0o600, &bbolt.Options{ReadOnly: true, Timeout: s.lockTimeout})
	if err != nil {
		return err
	}
	defer db.Close()
	return db.View(fn)
}

func (s *BoltStore) update(fn func(tx *bbolt.Tx) error) error {
	db, err := bbolt.Open(s.path, 0o600, &bbolt.Options{Timeout: s.lockTimeout})
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Update(fn)
}

func toBoltRecord(r Record) boltRecord {
	return boltRecord{
		URL:           string(r.URL),
		Status:        r.Status,
		Attempts:      r.Attempts,
		LastAttemptAt: r.LastAttemptAt,
		RemoteID:      r.RemoteID,
		LastError:     r.LastError,
		Owner:         r.Owner,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func decodeBoltRecord(raw []byte) (*Record, error) {
	var stored boltRecord
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, &decodeError{field: "record", value: string(raw)}
	}
	if _, ok := ParseStatus(string(stored.Status)); !ok {
		return nil, &decodeError{field: "status", value: string(stored.Status)}
	}
	return &Record{
		URL:           uri.CanonicalURL(stored.URL),
		Status:        stored.Status,
		Attempts:      stored.Attempts,
		LastAttemptAt: stored.LastAttemptAt.UTC(),
		RemoteID:      stored.RemoteID,
		LastError:     stored.LastError,
		Owner:         stored.Owner,
		CreatedAt:     stored.CreatedAt.UTC(),
		UpdatedAt:     stored.UpdatedAt.UTC(),
	}, nil
}

func boltError(op string, err error) error {
	if errors.Is(err, bbolt.ErrTimeout) {
		return unavailable(op, fmt.Errorf("ledger locked by another process: %w", err))
	}
	if errors.Is(err, bbolt.ErrInvalid) || errors.Is(err, bbolt.ErrChecksum) || errors.Is(err, bbolt.ErrVersionMismatch) {
		return corrupt(op, err)
	}
	return classify(op, err)
}
