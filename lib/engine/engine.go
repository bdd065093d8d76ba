// Package engine names the out-of-scope storage engine contract: open,
// close, get-latest-sequence, ingest-external-files, compact, destroy,
// set-options, write-batch iteration. This generalizes a KV-operations
// surface down to the narrower admin-plane surface this module drives.
package engine

import (
	"context"
	"io"
)

// Feature is a bitflag describing a capability an Engine implementation
// supports, mirroring the prior lib/db.Feature pattern.
type Feature int

const (
	FeatureIngestExternalFiles Feature = 1 << iota
	FeatureCompact
	FeatureSetOptions
	FeatureSnapshot
)

func (f Feature) String() string {
	switch f {
	case FeatureIngestExternalFiles:
		return "ingest-external-files"
	case FeatureCompact:
		return "compact"
	case FeatureSetOptions:
		return "set-options"
	case FeatureSnapshot:
		return "snapshot"
	default:
		return "unknown"
	}
}

// Options is an opaque set of runtime-tunable engine options, forwarded
// verbatim from set-db-options requests.
type Options map[string]string

// IngestOptions controls how IngestExternalFiles treats the supplied files.
type IngestOptions struct {
	// MoveFiles moves (rather than copies) the files into the engine's data directory.
	MoveFiles bool
	// AllowGlobalSeqno enables assigning a single sequence number to the whole ingest
	// batch; disallowed when overlapping keys across files must be resolved by per-key
	// sequence number instead.
	AllowGlobalSeqno bool
	// BlockingFlush forces any pending memtable flush to complete before ingest starts.
	BlockingFlush bool
}

// Info describes an open engine instance for check-db / dump-stats.
type Info struct {
	SizeBytes      int64
	SupportedFeatures []Feature
	WALTTLSeconds  int64
}

// WriteOp is a single write-batch operation kind, part of the "write-batch
// iteration" surface named out of scope in detail but still
// part of the engine contract (the event-log ingestor applies exactly these
// three op kinds per message).
type WriteOp int

const (
	OpPut WriteOp = iota
	OpDelete
	OpMerge
)

// Engine is the storage-engine contract this admin plane drives. A real
// deployment backs it with an embedded LSM engine; lib/engine/memengine
// provides the in-process reference implementation used by this repo's own
// tests.
type Engine interface {
	// Close releases the engine's resources. An implementation may persist its
	// data to its directory first (memengine writes its snapshot file there).
	Close() error

	// GetLatestSequenceNumber returns the highest applied write sequence number.
	GetLatestSequenceNumber() (uint64, error)

	// Apply applies a single write-batch operation with durable write
	// options, bumping the engine's sequence number. This is the event-log
	// ingestor's per-message write path.
	Apply(ctx context.Context, key, value []byte, op WriteOp) error

	// IngestExternalFiles ingests pre-sorted table files already staged on disk.
	IngestExternalFiles(ctx context.Context, paths []string, opts IngestOptions) error

	// Compact requests a full key-range compaction. Implementations that do not
	// support it return an error wrapping ErrUnsupported.
	Compact(ctx context.Context) error

	// SetOptions forwards runtime-tunable options to the engine.
	SetOptions(opts Options) error

	// Info reports the engine's current size/feature/TTL snapshot.
	Info() (Info, error)

	// Snapshot writes a consistent point-in-time image of the engine's data;
	// both backup environments in lib/backup build every backup from it.
	Snapshot(w io.Writer) error
}

// Opener opens or creates an engine instance rooted at dir using the
// segment's shared options profile.
type Opener interface {
	Open(dir string, segment string) (Engine, error)
	// Destroy removes all on-disk state for an engine instance at dir.
	Destroy(dir string) error
}

// ErrUnsupported is wrapped by Engine methods an implementation does not support.
var ErrUnsupported = &unsupportedError{}

type unsupportedError struct{}

func (*unsupportedError) Error() string { return "engine: operation not supported" }
