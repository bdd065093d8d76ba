// Package objectstore implements the Object-Store Client Cache and
// Concurrency Gate, backed by a real client implementation on top of
// minio-go.
package objectstore

import "io"

// ClientKey identifies a client configuration: at most one client exists in
// the node at a time.
type ClientKey struct {
	Bucket        string
	RateLimitMBps float64
}

// Env is the object-store client surface the backup orchestrator and bulk
// ingest pipeline use: bucketed listing/fetch/put with a bandwidth cap
//.
type Env interface {
	// List returns the names of objects directly under prefix (no recursion
	// into further "directories", matching object-store layout).
	List(prefix string) ([]string, error)
	// Get opens a reader for the object at key, rate-limited per the client's
	// configured cap.
	Get(key string) (io.ReadCloser, error)
	// Put uploads r as the object at key.
	Put(key string, r io.Reader) error
	// Close releases the underlying client's resources.
	Close() error
}

// Factory constructs an Env for key. Production wiring uses NewMinioFactory;
// tests use an in-memory fake.
type Factory func(key ClientKey) (Env, error)
