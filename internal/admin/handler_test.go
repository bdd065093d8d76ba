package admin

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/shardctl/internal/config"
	"github.com/ValentinKolb/shardctl/lib/dfs/localfs"
	"github.com/ValentinKolb/shardctl/lib/engine/memengine"
	"github.com/ValentinKolb/shardctl/lib/eventlog/refimpl"
	"github.com/ValentinKolb/shardctl/lib/metadata"
	"github.com/ValentinKolb/shardctl/lib/objectstore"
	"github.com/ValentinKolb/shardctl/lib/registry"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	base := t.TempDir()

	cfg := &config.Config{
		DataDir:                    base,
		MaxConcurrentTransfers:     4,
		MetadataCheckpointInterval: 100,
		SnapshotFileSuffix:         ".sst",
	}

	meta, err := metadata.Open(filepath.Join(base, "meta_db"))
	if err != nil {
		t.Fatalf("metadata.Open: %v", err)
	}
	t.Cleanup(func() { _ = meta.Close() })

	reg := registry.New()
	locks := registry.NewLockMap()
	opener := memengine.NewOpener()
	dfsEnv := localfs.New("", filepath.Join(base, "dfs"))
	broker := refimpl.NewRegistry()
	osCache := objectstore.NewCache(func(key objectstore.ClientKey) (objectstore.Env, error) {
		return nil, errTest("object store not configured")
	})
	gate := objectstore.NewGate(cfg.MaxConcurrentTransfers)

	return New(cfg, reg, locks, meta, osCache, gate, opener, dfsEnv, broker)
}

type errTest string

func (e errTest) Error() string { return string(e) }

func TestAddDBThenCloseDB(t *testing.T) {
	h := newTestHandler(t)
	req := AddDBRequest{Name: "users_0", Segment: "users", Role: "primary"}

	if err := h.AddDB(context.Background(), req); err != nil {
		t.Fatalf("AddDB: %v", err)
	}

	if err := h.CloseDB(context.Background(), "users_0"); err != nil {
		t.Fatalf("CloseDB: %v", err)
	}

	if err := h.CloseDB(context.Background(), "users_0"); err == nil {
		t.Error("CloseDB on already-closed db: expected error, got nil")
	}
}

func TestAddDBDuplicateWithoutOverwriteFails(t *testing.T) {
	h := newTestHandler(t)
	req := AddDBRequest{Name: "users_0", Segment: "users", Role: "primary"}
	if err := h.AddDB(context.Background(), req); err != nil {
		t.Fatalf("AddDB: %v", err)
	}
	if err := h.AddDB(context.Background(), req); err == nil {
		t.Error("duplicate AddDB without Overwrite: expected error, got nil")
	}
}

func TestAddDBOverwriteReplacesExisting(t *testing.T) {
	h := newTestHandler(t)
	req := AddDBRequest{Name: "users_0", Segment: "users", Role: "primary"}
	if err := h.AddDB(context.Background(), req); err != nil {
		t.Fatalf("AddDB: %v", err)
	}
	req.Overwrite = true
	if err := h.AddDB(context.Background(), req); err != nil {
		t.Fatalf("AddDB with Overwrite: %v", err)
	}
}

func TestAddDBSecondaryRequiresUpstream(t *testing.T) {
	h := newTestHandler(t)
	req := AddDBRequest{Name: "users_0", Segment: "users", Role: "secondary"}
	if err := h.AddDB(context.Background(), req); err == nil {
		t.Error("secondary AddDB with no upstream: expected error, got nil")
	}
}

func TestAddDBInvalidRole(t *testing.T) {
	h := newTestHandler(t)
	req := AddDBRequest{Name: "users_0", Segment: "users", Role: "bogus"}
	err := h.AddDB(context.Background(), req)
	if err == nil {
		t.Fatal("AddDB with bogus role: expected error, got nil")
	}
	e, ok := AsError(err)
	if !ok || e.Kind != KindInvalidArgument {
		t.Errorf("error = %+v, want KindInvalidArgument", err)
	}
}

func TestClearDBWithoutReopen(t *testing.T) {
	h := newTestHandler(t)
	if err := h.AddDB(context.Background(), AddDBRequest{Name: "users_0", Segment: "users", Role: "primary"}); err != nil {
		t.Fatalf("AddDB: %v", err)
	}
	if err := h.ClearDB(context.Background(), "users_0", false); err != nil {
		t.Fatalf("ClearDB: %v", err)
	}
	if _, err := h.GetSequenceNumber(context.Background(), "users_0"); err == nil {
		t.Error("GetSequenceNumber after ClearDB(reopen=false): expected error, got nil")
	}
}

func TestClearDBWithReopen(t *testing.T) {
	h := newTestHandler(t)
	if err := h.AddDB(context.Background(), AddDBRequest{Name: "users_0", Segment: "users", Role: "primary"}); err != nil {
		t.Fatalf("AddDB: %v", err)
	}
	if err := h.ClearDB(context.Background(), "users_0", true); err != nil {
		t.Fatalf("ClearDB(reopen=true): %v", err)
	}
	if _, err := h.GetSequenceNumber(context.Background(), "users_0"); err != nil {
		t.Errorf("GetSequenceNumber after ClearDB(reopen=true): %v", err)
	}
}

func TestClearDBUnregisteredFails(t *testing.T) {
	h := newTestHandler(t)
	err := h.ClearDB(context.Background(), "missing_0", false)
	e, ok := AsError(err)
	if !ok || e.Kind != KindNotFound {
		t.Errorf("ClearDB on unregistered db = %+v, want KindNotFound", err)
	}
}

func TestChangeRoleAndUpstream(t *testing.T) {
	h := newTestHandler(t)
	if err := h.AddDB(context.Background(), AddDBRequest{Name: "users_0", Segment: "users", Role: "primary"}); err != nil {
		t.Fatalf("AddDB: %v", err)
	}

	if err := h.ChangeRoleAndUpstream(context.Background(), "users_0", "secondary", "10.0.0.1:9090"); err != nil {
		t.Fatalf("ChangeRoleAndUpstream: %v", err)
	}

	res, err := h.CheckDB(context.Background(), "users_0")
	if err != nil {
		t.Fatalf("CheckDB: %v", err)
	}
	if res.IsPrimary {
		t.Error("CheckDB after promoting to secondary: IsPrimary = true, want false")
	}
}

func TestChangeRoleAndUpstreamSecondaryRequiresUpstream(t *testing.T) {
	h := newTestHandler(t)
	if err := h.AddDB(context.Background(), AddDBRequest{Name: "users_0", Segment: "users", Role: "primary"}); err != nil {
		t.Fatalf("AddDB: %v", err)
	}
	if err := h.ChangeRoleAndUpstream(context.Background(), "users_0", "secondary", ""); err == nil {
		t.Error("ChangeRoleAndUpstream to secondary with no upstream: expected error, got nil")
	}
}

func TestBackupAndRestoreDBViaDFS(t *testing.T) {
	h := newTestHandler(t)
	if err := h.AddDB(context.Background(), AddDBRequest{Name: "users_0", Segment: "users", Role: "primary"}); err != nil {
		t.Fatalf("AddDB: %v", err)
	}

	if err := h.BackupDB(context.Background(), "users_0"); err != nil {
		t.Fatalf("BackupDB: %v", err)
	}

	if err := h.RestoreDB(context.Background(), "users_1", "users", ""); err != nil {
		t.Fatalf("RestoreDB: %v", err)
	}

	res, err := h.CheckDB(context.Background(), "users_1")
	if err != nil {
		t.Fatalf("CheckDB: %v", err)
	}
	if res.IsPrimary {
		t.Error("restored db should be registered as secondary, IsPrimary = true")
	}
}

func TestBackupDBUnregisteredFails(t *testing.T) {
	h := newTestHandler(t)
	if err := h.BackupDB(context.Background(), "missing_0"); err == nil {
		t.Error("BackupDB on unregistered db: expected error, got nil")
	}
}

func TestGetSequenceNumberStartsAtZero(t *testing.T) {
	h := newTestHandler(t)
	if err := h.AddDB(context.Background(), AddDBRequest{Name: "users_0", Segment: "users", Role: "primary"}); err != nil {
		t.Fatalf("AddDB: %v", err)
	}

	seq0, err := h.GetSequenceNumber(context.Background(), "users_0")
	if err != nil {
		t.Fatalf("GetSequenceNumber: %v", err)
	}
	if seq0 != 0 {
		t.Fatalf("initial sequence number = %d, want 0", seq0)
	}
}

func TestSetDBOptionsAndCompactDB(t *testing.T) {
	h := newTestHandler(t)
	if err := h.AddDB(context.Background(), AddDBRequest{Name: "users_0", Segment: "users", Role: "primary"}); err != nil {
		t.Fatalf("AddDB: %v", err)
	}
	if err := h.SetDBOptions(context.Background(), "users_0", map[string]string{"k": "v"}); err != nil {
		t.Fatalf("SetDBOptions: %v", err)
	}
	if err := h.CompactDB(context.Background(), "users_0"); err != nil {
		t.Fatalf("CompactDB: %v", err)
	}
}

func TestPingAndDumpStats(t *testing.T) {
	h := newTestHandler(t)
	if got := h.Ping(); got != "pong" {
		t.Errorf("Ping() = %q, want %q", got, "pong")
	}
	if err := h.AddDB(context.Background(), AddDBRequest{Name: "users_0", Segment: "users", Role: "primary"}); err != nil {
		t.Fatalf("AddDB: %v", err)
	}
	stats := h.DumpStats()
	if stats == "" {
		t.Error("DumpStats() returned empty string after registering a db")
	}
}

func TestStartAndStopMessageIngestion(t *testing.T) {
	h := newTestHandler(t)
	if err := h.AddDB(context.Background(), AddDBRequest{Name: "users_0", Segment: "users", Role: "primary"}); err != nil {
		t.Fatalf("AddDB: %v", err)
	}

	req := StartMessageIngestionRequest{Name: "users_0", Topic: "topic", BrokerSetRef: "brokers-1"}
	if err := h.StartMessageIngestion(context.Background(), req); err != nil {
		t.Fatalf("StartMessageIngestion: %v", err)
	}
	if err := h.StopMessageIngestion(context.Background(), "users_0"); err != nil {
		t.Fatalf("StopMessageIngestion: %v", err)
	}
	if err := h.StopMessageIngestion(context.Background(), "users_0"); err == nil {
		t.Error("StopMessageIngestion when not running: expected error, got nil")
	}
}

func TestBackupDBToObjectStoreFailsWithoutConfiguredClient(t *testing.T) {
	h := newTestHandler(t)
	if err := h.AddDB(context.Background(), AddDBRequest{Name: "users_0", Segment: "users", Role: "primary"}); err != nil {
		t.Fatalf("AddDB: %v", err)
	}
	if err := h.BackupDBToObjectStore(context.Background(), "users_0", "bkt", 0); err == nil {
		t.Error("BackupDBToObjectStore without a configured object-store client: expected error, got nil")
	}
}
