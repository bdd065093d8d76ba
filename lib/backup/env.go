// Package backup implements the Backup/Restore Orchestrator.
// Polymorphism across storage backends (distributed filesystem vs. object
// store) is expressed as a small capability set:
// open-backup-engine (the Env constructors below), create-new-backup
// (CreateBackup) and restore-from-latest (RestoreLatest), with two
// implementations selected at the call site.
package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/ValentinKolb/shardctl/lib/dfs"
	"github.com/ValentinKolb/shardctl/lib/engine"
	"github.com/ValentinKolb/shardctl/lib/objectstore"
)

// snapshotObjectName is the single object/file a backup writes under its
// root; full backups fully overwrite it, matching "create a
// new full backup" (there is no incremental backup chain in this design).
const snapshotObjectName = "backup.snap"

// Env is the capability set a backup target implements.
type Env interface {
	// CreateBackup snapshots src and writes it as the new full backup.
	CreateBackup(ctx context.Context, src engine.Engine) error
	// RestoreLatest streams the latest backup's bytes into dest.
	RestoreLatest(ctx context.Context, dest io.Writer) error
}

// --------------------------------------------------------------------------
// Distributed filesystem backend
// --------------------------------------------------------------------------

type dfsEnv struct {
	fs   dfs.Env
	root string
}

// NewDFSEnv roots a backup Env at root under fs.
func NewDFSEnv(fs dfs.Env, root string) Env {
	return &dfsEnv{fs: fs, root: root}
}

func (e *dfsEnv) CreateBackup(ctx context.Context, src engine.Engine) error {
	w, err := e.fs.Create(path.Join(e.root, snapshotObjectName))
	if err != nil {
		return fmt.Errorf("backup(dfs): create: %w", err)
	}
	defer w.Close()
	if err := src.Snapshot(w); err != nil {
		return fmt.Errorf("backup(dfs): snapshot: %w", err)
	}
	return nil
}

func (e *dfsEnv) RestoreLatest(ctx context.Context, dest io.Writer) error {
	r, err := e.fs.Open(path.Join(e.root, snapshotObjectName))
	if err != nil {
		return fmt.Errorf("backup(dfs): open latest: %w", err)
	}
	defer r.Close()
	if _, err := io.Copy(dest, r); err != nil {
		return fmt.Errorf("backup(dfs): copy: %w", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Object-store backend
// --------------------------------------------------------------------------

type objectStoreEnv struct {
	client objectstore.Env
	root   string
	// scratch is staged fresh before touching the object store and removed
	// again once the call returns, so a crash mid-transfer leaves nothing
	// behind beyond this directory.
	scratch string
}

// NewObjectStoreEnv roots a backup Env at root under the borrowed client,
// staging through scratchDir before/after every object-store transfer.
// Callers obtain client from an objectstore.Cache borrow and are responsible
// for releasing that borrow once the backup/restore call returns.
func NewObjectStoreEnv(client objectstore.Env, root, scratchDir string) Env {
	return &objectStoreEnv{client: client, root: root, scratch: scratchDir}
}

func (e *objectStoreEnv) stage() (cleanup func(), err error) {
	if err := os.RemoveAll(e.scratch); err != nil {
		return nil, fmt.Errorf("backup(objectstore): clear scratch: %w", err)
	}
	if err := os.MkdirAll(e.scratch, 0o755); err != nil {
		return nil, fmt.Errorf("backup(objectstore): create scratch: %w", err)
	}
	return func() { os.RemoveAll(e.scratch) }, nil
}

func (e *objectStoreEnv) CreateBackup(ctx context.Context, src engine.Engine) error {
	cleanup, err := e.stage()
	if err != nil {
		return err
	}
	defer cleanup()

	local := filepath.Join(e.scratch, snapshotObjectName)
	f, err := os.Create(local)
	if err != nil {
		return fmt.Errorf("backup(objectstore): stage snapshot: %w", err)
	}
	if err := src.Snapshot(f); err != nil {
		f.Close()
		return fmt.Errorf("backup(objectstore): snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("backup(objectstore): stage snapshot: %w", err)
	}

	r, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("backup(objectstore): reopen staged snapshot: %w", err)
	}
	defer r.Close()
	if err := e.client.Put(path.Join(e.root, snapshotObjectName), r); err != nil {
		return fmt.Errorf("backup(objectstore): put: %w", err)
	}
	return nil
}

func (e *objectStoreEnv) RestoreLatest(ctx context.Context, dest io.Writer) error {
	cleanup, err := e.stage()
	if err != nil {
		return err
	}
	defer cleanup()

	r, err := e.client.Get(path.Join(e.root, snapshotObjectName))
	if err != nil {
		return fmt.Errorf("backup(objectstore): get latest: %w", err)
	}
	local := filepath.Join(e.scratch, snapshotObjectName)
	f, err := os.Create(local)
	if err != nil {
		r.Close()
		return fmt.Errorf("backup(objectstore): stage snapshot: %w", err)
	}
	_, copyErr := io.Copy(f, r)
	f.Close()
	r.Close()
	if copyErr != nil {
		return fmt.Errorf("backup(objectstore): stage snapshot: %w", copyErr)
	}

	staged, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("backup(objectstore): reopen staged snapshot: %w", err)
	}
	defer staged.Close()
	if _, err := io.Copy(dest, staged); err != nil {
		return fmt.Errorf("backup(objectstore): copy: %w", err)
	}
	return nil
}

// nowMs is kept here, rather than inlined at call sites, purely so tests can
// observe the one place wall-clock time enters this package.
func nowMs() int64 { return time.Now().UnixMilli() }
