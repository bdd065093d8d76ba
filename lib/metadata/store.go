// Package metadata wraps a small embedded key-value store persisting one
// record per database. It is backed by cockroachdb/pebble so
// that Put can request per-write Sync durability: a crash immediately after
// Put returns must not lose the written record.
package metadata

import (
	"errors"
	"fmt"

	"github.com/ValentinKolb/shardctl/internal/logging"
	"github.com/cockroachdb/pebble"
)

var log = logging.New("metadata")

// ErrNotFound is returned by Get when no record exists for a database.
var ErrNotFound = errors.New("metadata: record not found")

// Store is the metadata-store wrapper.
type Store struct {
	db *pebble.DB
}

// Open opens (creating if absent) the metadata store rooted at dir, which by
// convention is "<base>/meta_db".
func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("metadata: open %s: %w", dir, err)
	}
	log.Infof("opened metadata store at %s", dir)
	return &Store{db: db}, nil
}

// Close closes the underlying pebble database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the record for db, or ErrNotFound.
func (s *Store) Get(db string) (Record, error) {
	data, closer, err := s.db.Get([]byte(db))
	if errors.Is(err, pebble.ErrNotFound) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("metadata: get %s: %w", db, err)
	}
	defer closer.Close()
	buf := make([]byte, len(data))
	copy(buf, data)
	return decodeRecord(buf)
}

// Put durably writes rec, keyed by rec.DB. Callers that only want to update
// the event-log timestamp must read-modify-write the full record themselves
// - Put never merges, it always overwrites.
func (s *Store) Put(rec Record) error {
	if rec.DB == "" {
		return fmt.Errorf("metadata: put: empty database name")
	}
	if err := s.db.Set([]byte(rec.DB), encodeRecord(rec), pebble.Sync); err != nil {
		return fmt.Errorf("metadata: put %s: %w", rec.DB, err)
	}
	return nil
}

// PutEventTimestamp loads the current record (if any), updates only
// LastEventTimestampMs and writes the full record back durably.
func (s *Store) PutEventTimestamp(db string, tsMs int64) error {
	rec, err := s.Get(db)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	rec.DB = db
	rec.LastEventTimestampMs = tsMs
	return s.Put(rec)
}

// Delete removes the record for db. Deleting an absent record is not an error.
func (s *Store) Delete(db string) error {
	if err := s.db.Delete([]byte(db), pebble.Sync); err != nil {
		return fmt.Errorf("metadata: delete %s: %w", db, err)
	}
	return nil
}
