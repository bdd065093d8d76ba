package backup

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/shardctl/lib/dfs/localfs"
	"github.com/ValentinKolb/shardctl/lib/engine"
	"github.com/ValentinKolb/shardctl/lib/engine/memengine"
	"github.com/ValentinKolb/shardctl/lib/registry"
	"github.com/ValentinKolb/shardctl/lib/replication"
)

func TestDFSEnvBackupRestoreRoundTrip(t *testing.T) {
	root := t.TempDir()
	fs := localfs.New("", root)
	env := NewDFSEnv(fs, "backups/users_0")

	dataDir := filepath.Join(t.TempDir(), "users_0")
	src, err := memengine.NewOpener().Open(dataDir, "users")
	if err != nil {
		t.Fatalf("Open engine: %v", err)
	}
	if err := src.Apply(context.Background(), []byte("k"), []byte("v"), engine.OpPut); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if err := env.CreateBackup(context.Background(), src); err != nil {
		t.Fatalf("CreateBackup: %v", err)
	}

	var buf bytes.Buffer
	if err := env.RestoreLatest(context.Background(), &buf); err != nil {
		t.Fatalf("RestoreLatest: %v", err)
	}
	if buf.Len() == 0 {
		t.Error("RestoreLatest wrote no bytes")
	}
}

func TestDFSEnvRestoreWithNoBackupErrors(t *testing.T) {
	fs := localfs.New("", t.TempDir())
	env := NewDFSEnv(fs, "backups/users_0")

	if err := env.RestoreLatest(context.Background(), io.Discard); err == nil {
		t.Error("RestoreLatest with no prior backup: expected error, got nil")
	}
}

// fakeObjectStore is a minimal in-memory objectstore.Env used only by this
// package's own tests.
type fakeObjectStore struct {
	objects map[string][]byte
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: map[string][]byte{}}
}

func (f *fakeObjectStore) List(prefix string) ([]string, error) {
	var names []string
	for k := range f.objects {
		names = append(names, k)
	}
	return names, nil
}

func (f *fakeObjectStore) Get(key string) (io.ReadCloser, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeObjectStore) Put(key string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.objects[key] = data
	return nil
}

func (f *fakeObjectStore) Close() error { return nil }

func TestObjectStoreEnvBackupRestoreRoundTrip(t *testing.T) {
	store := newFakeObjectStore()
	env := NewObjectStoreEnv(store, "backups/users_0", filepath.Join(t.TempDir(), "s3_tmp", "users_0"))

	dataDir := filepath.Join(t.TempDir(), "users_0")
	src, err := memengine.NewOpener().Open(dataDir, "users")
	if err != nil {
		t.Fatalf("Open engine: %v", err)
	}
	if err := src.Apply(context.Background(), []byte("k"), []byte("v"), engine.OpPut); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if err := env.CreateBackup(context.Background(), src); err != nil {
		t.Fatalf("CreateBackup: %v", err)
	}

	var buf bytes.Buffer
	if err := env.RestoreLatest(context.Background(), &buf); err != nil {
		t.Fatalf("RestoreLatest: %v", err)
	}
	if buf.Len() == 0 {
		t.Error("RestoreLatest wrote no bytes")
	}
}

func TestObjectStoreEnvCleansUpScratchDir(t *testing.T) {
	store := newFakeObjectStore()
	scratch := filepath.Join(t.TempDir(), "s3_tmp", "users_0")
	env := NewObjectStoreEnv(store, "backups/users_0", scratch)

	dataDir := filepath.Join(t.TempDir(), "users_0")
	src, err := memengine.NewOpener().Open(dataDir, "users")
	if err != nil {
		t.Fatalf("Open engine: %v", err)
	}

	if err := env.CreateBackup(context.Background(), src); err != nil {
		t.Fatalf("CreateBackup: %v", err)
	}
	if _, err := os.Stat(scratch); !os.IsNotExist(err) {
		t.Errorf("scratch dir %s still exists after CreateBackup: stat err = %v", scratch, err)
	}

	var buf bytes.Buffer
	if err := env.RestoreLatest(context.Background(), &buf); err != nil {
		t.Fatalf("RestoreLatest: %v", err)
	}
	if _, err := os.Stat(scratch); !os.IsNotExist(err) {
		t.Errorf("scratch dir %s still exists after RestoreLatest: stat err = %v", scratch, err)
	}
}

func newTestOrchestrator(t *testing.T, base string) (*Orchestrator, *registry.Registry, *registry.LockMap) {
	t.Helper()
	reg := registry.New()
	locks := registry.NewLockMap()
	opener := memengine.NewOpener()
	orch := New(reg, locks, opener, func(db string) string {
		return filepath.Join(base, db)
	})
	return orch, reg, locks
}

func TestOrchestratorBackupUnregisteredDBFails(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t, t.TempDir())
	env := NewDFSEnv(localfs.New("", t.TempDir()), "backups/x")

	if err := orch.Backup(context.Background(), "missing_0", env); err == nil {
		t.Error("Backup of unregistered db: expected error, got nil")
	}
}

func TestOrchestratorBackupThenRestore(t *testing.T) {
	base := t.TempDir()
	orch, reg, _ := newTestOrchestrator(t, base)

	eng, err := memengine.NewOpener().Open(filepath.Join(base, "users_0"), "users")
	if err != nil {
		t.Fatalf("open source engine: %v", err)
	}
	if err := eng.Apply(context.Background(), []byte("k"), []byte("v"), engine.OpPut); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := reg.Add("users_0", &registry.Handle{Segment: "users", Engine: eng, Role: replication.Primary}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	backupRoot := t.TempDir()
	env := NewDFSEnv(localfs.New("", backupRoot), "backups/users_0")

	if err := orch.Backup(context.Background(), "users_0", env); err != nil {
		t.Fatalf("Backup: %v", err)
	}

	restoreOrch, restoreReg, _ := newTestOrchestrator(t, t.TempDir())
	if err := restoreOrch.Restore(context.Background(), "users_1", "users", env, nil); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	h, err := restoreReg.Get("users_1")
	if err != nil {
		t.Fatalf("Get restored handle: %v", err)
	}
	if h.Role != replication.Secondary {
		t.Errorf("restored role = %v, want Secondary", h.Role)
	}
}

func TestOrchestratorRestoreOverExistingDBFails(t *testing.T) {
	base := t.TempDir()
	orch, reg, _ := newTestOrchestrator(t, base)

	eng, err := memengine.NewOpener().Open(filepath.Join(base, "users_0"), "users")
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	if err := reg.Add("users_0", &registry.Handle{Segment: "users", Engine: eng}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	env := NewDFSEnv(localfs.New("", t.TempDir()), "backups/users_0")
	if err := orch.Restore(context.Background(), "users_0", "users", env, nil); err != registry.ErrAlreadyExists {
		t.Errorf("Restore over existing db: got %v, want ErrAlreadyExists", err)
	}
}
