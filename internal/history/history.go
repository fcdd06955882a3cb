// Package history keeps a journal of mutating operations in a bbolt database
// under the data directory. The journal is purely informational: a failed
// write here is logged and never fails the operation that produced it.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

const (
	// HistoryBucket holds one record per successful mutating operation.
	HistoryBucket = "history"

	dbFileName  = "history.db"
	openTimeout = time.Second
)

// Record is one journal entry.
type Record struct {
	Operation string    `json:"operation"`
	Servers   []string  `json:"servers,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// MarshalBinary implements encoding.BinaryMarshaler
func (r *Record) MarshalBinary() ([]byte, error) {
	return json.Marshal(r)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler
func (r *Record) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, r)
}

// Manager owns the journal database.
type Manager struct {
	db     *bbolt.DB
	mu     sync.Mutex
	logger *zap.SugaredLogger
}

// NewManager opens (creating if needed) the journal database under dataDir.
func NewManager(dataDir string, logger *zap.SugaredLogger) (*Manager, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := bbolt.Open(filepath.Join(dataDir, dbFileName), 0o600, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(HistoryBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history bucket: %w", err)
	}

	return &Manager{db: db, logger: logger}, nil
}

// Close closes the journal database.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

// Record appends one entry. Keys are the entry timestamp plus a bucket
// sequence number, so same-instant entries never collide and iteration order
// is chronological.
func (m *Manager) Record(rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	data, err := rec.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal history record: %w", err)
	}

	return m.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(HistoryBucket))
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		// Fixed-width timestamp so key order stays chronological.
		key := fmt.Sprintf("%s-%08d", rec.Timestamp.UTC().Format("2006-01-02T15:04:05.000000000"), seq)
		return bucket.Put([]byte(key), data)
	})
}

// Recent returns up to n records, newest first.
func (m *Manager) Recent(n int) ([]*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var records []*Record
	err := m.db.View(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket([]byte(HistoryBucket)).Cursor()
		for k, v := cursor.Last(); k != nil && len(records) < n; k, v = cursor.Prev() {
			var rec Record
			if err := rec.UnmarshalBinary(v); err != nil {
				m.logger.Warnw("Skipping corrupt history record", "key", string(k), "error", err)
				continue
			}
			records = append(records, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	return records, nil
}
