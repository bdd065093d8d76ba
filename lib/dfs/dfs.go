// Package dfs names the out-of-scope distributed filesystem environment's
// contract. No HDFS (or other DFS) client exists anywhere in
// the retrieval pack this module was grounded on, so the only implementation
// shipped here, lib/dfs/localfs, is a local-filesystem stand-in - see
// DESIGN.md for why this is the one ambient concern
// left on the standard library.
package dfs

import "io"

// Env is the minimal distributed-filesystem surface the backup orchestrator
// needs: list, read and write whole objects under a name-node-rooted path.
type Env interface {
	// NameNode returns the configured name-node URI, for logging/diagnostics.
	NameNode() string
	// List returns the names of entries directly under prefix.
	List(prefix string) ([]string, error)
	// Open returns a reader for the object at path.
	Open(path string) (io.ReadCloser, error)
	// Create returns a writer for a new object at path, truncating any
	// existing object there.
	Create(path string) (io.WriteCloser, error)
	// Remove deletes the object (or directory) at path.
	Remove(path string) error
}
