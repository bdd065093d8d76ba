// Package localfs backs lib/dfs.Env with the local filesystem. It exists
// because no HDFS (or other distributed filesystem) client library is
// available anywhere in this module's retrieval pack to ground a richer
// implementation on; see DESIGN.md.
package localfs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ValentinKolb/shardctl/lib/dfs"
)

type localEnv struct {
	nameNode string
	root     string
}

// New roots env at root on the local filesystem; nameNode is carried through
// purely for logging/diagnostics, matching what a real DFS client would
// report.
func New(nameNode, root string) dfs.Env {
	return &localEnv{nameNode: nameNode, root: root}
}

func (e *localEnv) NameNode() string { return e.nameNode }

func (e *localEnv) abs(path string) string {
	return filepath.Join(e.root, filepath.Clean("/"+path))
}

func (e *localEnv) List(prefix string) ([]string, error) {
	entries, err := os.ReadDir(e.abs(prefix))
	if err != nil {
		return nil, fmt.Errorf("localfs: list %s: %w", prefix, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names, nil
}

func (e *localEnv) Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(e.abs(path))
	if err != nil {
		return nil, fmt.Errorf("localfs: open %s: %w", path, err)
	}
	return f, nil
}

func (e *localEnv) Create(path string) (io.WriteCloser, error) {
	full := e.abs(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("localfs: mkdir for %s: %w", path, err)
	}
	f, err := os.Create(full)
	if err != nil {
		return nil, fmt.Errorf("localfs: create %s: %w", path, err)
	}
	return f, nil
}

func (e *localEnv) Remove(path string) error {
	if err := os.RemoveAll(e.abs(path)); err != nil {
		return fmt.Errorf("localfs: remove %s: %w", path, err)
	}
	return nil
}
