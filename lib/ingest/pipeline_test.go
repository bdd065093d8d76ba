package ingest

import (
	"bytes"
	"context"
	"io"
	"path"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ValentinKolb/shardctl/lib/engine/memengine"
	"github.com/ValentinKolb/shardctl/lib/metadata"
	"github.com/ValentinKolb/shardctl/lib/objectstore"
	"github.com/ValentinKolb/shardctl/lib/registry"
	"github.com/ValentinKolb/shardctl/lib/replication"
)

// fakeObjectStore is a minimal in-memory objectstore.Env, local to this
// package's own tests, serving objects staged directly in a map.
type fakeObjectStore struct {
	objects map[string][]byte
}

func (f *fakeObjectStore) List(prefix string) ([]string, error) {
	var names []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix+"/") {
			names = append(names, strings.TrimPrefix(k, prefix+"/"))
		}
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

func (f *fakeObjectStore) Put(key string, r io.Reader) error { return nil }
func (f *fakeObjectStore) Close() error                      { return nil }

type testEnv struct {
	t       *testing.T
	base    string
	reg     *registry.Registry
	locks   *registry.LockMap
	meta    *metadata.Store
	osCache *objectstore.Cache
	gate    *objectstore.Gate
	pipe    *Pipeline
	store   *fakeObjectStore
}

func newTestEnv(t *testing.T, watchers WatcherChecker) *testEnv {
	t.Helper()
	base := t.TempDir()

	store := &fakeObjectStore{objects: map[string][]byte{}}
	osCache := objectstore.NewCache(func(key objectstore.ClientKey) (objectstore.Env, error) {
		return store, nil
	})

	meta, err := metadata.Open(filepath.Join(base, "meta_db"))
	if err != nil {
		t.Fatalf("metadata.Open: %v", err)
	}
	t.Cleanup(func() { _ = meta.Close() })

	reg := registry.New()
	locks := registry.NewLockMap()
	opener := memengine.NewOpener()
	gate := objectstore.NewGate(4)

	scratchDirFor := func(db string) string { return filepath.Join(base, "scratch", db) }
	dataDirFor := func(db string) string { return filepath.Join(base, "data", db) }

	pipe := New(reg, locks, meta, osCache, gate, opener, watchers, scratchDirFor, dataDirFor)

	env := &testEnv{t: t, base: base, reg: reg, locks: locks, meta: meta, osCache: osCache, gate: gate, pipe: pipe, store: store}
	return env
}

func (e *testEnv) registerDB(t *testing.T, db, segment string) {
	t.Helper()
	eng, err := memengine.NewOpener().Open(filepath.Join(e.base, "data", db), segment)
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	if err := e.reg.Add(db, &registry.Handle{Segment: segment, Engine: eng, Role: replication.Primary}); err != nil {
		t.Fatalf("Add: %v", err)
	}
}

func (e *testEnv) stageObject(name string, content []byte) {
	e.store.objects[path.Join("ingest-src", name)] = content
}

func TestAddExternalFilesIngestsStagedFiles(t *testing.T) {
	env := newTestEnv(t, nil)
	env.registerDB(t, "users_0", "users")
	env.stageObject("0001.sst", []byte("table-data"))

	req := Request{
		DB:             "users_0",
		Bucket:         "bkt",
		Path:           "ingest-src",
		AllowOverlap:   true,
		SnapshotSuffix: ".sst",
	}
	if err := env.pipe.AddExternalFiles(context.Background(), req); err != nil {
		t.Fatalf("AddExternalFiles: %v", err)
	}

	rec, err := env.meta.Get("users_0")
	if err != nil {
		t.Fatalf("metadata.Get: %v", err)
	}
	if rec.Bucket != "bkt" || rec.Path != "ingest-src" {
		t.Errorf("metadata record = %+v, want Bucket=bkt Path=ingest-src", rec)
	}

	h, err := env.reg.Get("users_0")
	if err != nil {
		t.Fatalf("registry.Get: %v", err)
	}
	seq, err := h.Engine.GetLatestSequenceNumber()
	if err != nil {
		t.Fatalf("GetLatestSequenceNumber: %v", err)
	}
	if seq == 0 {
		t.Error("expected sequence number to advance after ingest")
	}
}

func TestAddExternalFilesIsIdempotent(t *testing.T) {
	env := newTestEnv(t, nil)
	env.registerDB(t, "users_0", "users")
	env.stageObject("0001.sst", []byte("table-data"))

	req := Request{DB: "users_0", Bucket: "bkt", Path: "ingest-src", AllowOverlap: true, SnapshotSuffix: ".sst"}
	if err := env.pipe.AddExternalFiles(context.Background(), req); err != nil {
		t.Fatalf("first AddExternalFiles: %v", err)
	}

	h, _ := env.reg.Get("users_0")
	seqAfterFirst, _ := h.Engine.GetLatestSequenceNumber()

	// Same bucket/path: the idempotence precondition should make this a no-op.
	if err := env.pipe.AddExternalFiles(context.Background(), req); err != nil {
		t.Fatalf("second AddExternalFiles: %v", err)
	}

	h, _ = env.reg.Get("users_0")
	seqAfterSecond, _ := h.Engine.GetLatestSequenceNumber()
	if seqAfterSecond != seqAfterFirst {
		t.Errorf("second call with identical bucket/path advanced the sequence number: %d -> %d", seqAfterFirst, seqAfterSecond)
	}
}

func TestAddExternalFilesUnregisteredDBFails(t *testing.T) {
	env := newTestEnv(t, nil)
	req := Request{DB: "missing_0", Bucket: "bkt", Path: "ingest-src", AllowOverlap: true, SnapshotSuffix: ".sst"}
	if err := env.pipe.AddExternalFiles(context.Background(), req); err == nil {
		t.Error("AddExternalFiles on unregistered db: expected error, got nil")
	}
}

type alwaysRunning struct{}

func (alwaysRunning) IsRunning(db string) bool { return true }

func TestAddExternalFilesOverlapDisallowedRefusesWhileIngestorRunning(t *testing.T) {
	env := newTestEnv(t, alwaysRunning{})
	env.registerDB(t, "users_0", "users")
	env.stageObject("0001.sst", []byte("table-data"))

	req := Request{DB: "users_0", Bucket: "bkt", Path: "ingest-src", AllowOverlap: false, SnapshotSuffix: ".sst"}
	if err := env.pipe.AddExternalFiles(context.Background(), req); err == nil {
		t.Error("expected error when event-log ingestion is running and overlap is disallowed")
	}
}

type neverRunning struct{}

func (neverRunning) IsRunning(db string) bool { return false }

func TestAddExternalFilesOverlapDisallowedReopensEngine(t *testing.T) {
	env := newTestEnv(t, neverRunning{})
	env.registerDB(t, "users_0", "users")
	env.stageObject("0001.sst", []byte("table-data"))

	before, err := env.reg.Get("users_0")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	req := Request{DB: "users_0", Bucket: "bkt", Path: "ingest-src", AllowOverlap: false, SnapshotSuffix: ".sst"}
	if err := env.pipe.AddExternalFiles(context.Background(), req); err != nil {
		t.Fatalf("AddExternalFiles: %v", err)
	}

	after, err := env.reg.Get("users_0")
	if err != nil {
		t.Fatalf("Get after ingest: %v", err)
	}
	if after.Engine == before.Engine {
		t.Error("expected a destructive reopen to replace the engine instance")
	}
	if after.Role != replication.Primary {
		t.Errorf("role after reopen = %v, want preserved Primary", after.Role)
	}
}
