// Package admin implements the Request Dispatcher: one
// method per command-catalogue row, each acquiring the per-DB admin lock
// where the row requires it and mapping component errors onto the admin
// error taxonomy (errors.go).
package admin

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/ValentinKolb/shardctl/internal/config"
	"github.com/ValentinKolb/shardctl/internal/logging"
	"github.com/ValentinKolb/shardctl/lib/backup"
	"github.com/ValentinKolb/shardctl/lib/dfs"
	"github.com/ValentinKolb/shardctl/lib/engine"
	"github.com/ValentinKolb/shardctl/lib/eventlog"
	"github.com/ValentinKolb/shardctl/lib/ingest"
	"github.com/ValentinKolb/shardctl/lib/metadata"
	"github.com/ValentinKolb/shardctl/lib/objectstore"
	"github.com/ValentinKolb/shardctl/lib/registry"
	"github.com/ValentinKolb/shardctl/lib/replication"
)

var log = logging.New("dispatcher")

// Handler is the per-node admin coordinator.
type Handler struct {
	cfg    *config.Config
	reg    *registry.Registry
	locks  *registry.LockMap
	meta   *metadata.Store
	osCache *objectstore.Cache
	gate   *objectstore.Gate
	opener engine.Opener
	dfsEnv dfs.Env

	backupOrch *backup.Orchestrator
	ingestPipe *ingest.Pipeline
	eventIngest *eventlog.Ingestor
}

// New wires a Handler over its already-constructed components. cfg must have
// passed Validate.
func New(cfg *config.Config, reg *registry.Registry, locks *registry.LockMap, meta *metadata.Store, osCache *objectstore.Cache, gate *objectstore.Gate, opener engine.Opener, dfsEnv dfs.Env, broker eventlog.BrokerRegistry) *Handler {
	h := &Handler{cfg: cfg, reg: reg, locks: locks, meta: meta, osCache: osCache, gate: gate, opener: opener, dfsEnv: dfsEnv}
	h.backupOrch = backup.New(reg, locks, opener, h.dataDirFor)
	h.eventIngest = eventlog.New(reg, locks, meta, broker, cfg.MetadataCheckpointInterval)
	h.ingestPipe = ingest.New(reg, locks, meta, osCache, gate, opener, h.eventIngest, h.scratchDirFor, h.dataDirFor)
	return h
}

func (h *Handler) dataDirFor(db string) string {
	return filepath.Join(h.cfg.DataDir, db)
}

func (h *Handler) scratchDirFor(db string) string {
	return filepath.Join(h.cfg.DataDir, "s3_tmp", db)
}

// --------------------------------------------------------------------------
// add-db / close-db / clear-db / change-role-and-upstream
// --------------------------------------------------------------------------

// AddDBRequest is add-db(name, upstream-ip, role?, overwrite?).
type AddDBRequest struct {
	Name         string
	Segment      string
	UpstreamAddr string
	Role         string
	Overwrite    bool
}

func (h *Handler) AddDB(ctx context.Context, req AddDBRequest) error {
	role, err := replication.ParseRole(req.Role)
	if err != nil {
		return InvalidArgument("add-db", CodeInvalidDBRole, "%v", err)
	}
	upstream, err := replication.ParseUpstream(req.UpstreamAddr)
	if err != nil {
		return InvalidArgument("add-db", CodeInvalidUpstream, "%v", err)
	}
	if role == replication.Secondary && upstream == nil {
		return InvalidArgument("add-db", CodeInvalidUpstream, "secondary role requires an upstream address")
	}

	var retErr error
	_ = h.locks.WithLock(req.Name, func() error {
		if _, err := h.reg.Get(req.Name); err == nil {
			if !req.Overwrite {
				retErr = AlreadyExistsf("add-db", "%s is already registered", req.Name)
				return nil
			}
			if _, err := h.reg.Remove(req.Name); err != nil {
				retErr = Adminf("add-db", err)
				return nil
			}
		}

		dir := h.dataDirFor(req.Name)
		eng, err := h.opener.Open(dir, req.Segment)
		if err != nil {
			retErr = Enginef("add-db", err)
			return nil
		}
		if err := h.reg.Add(req.Name, &registry.Handle{Segment: req.Segment, Engine: eng, Role: role, Upstream: upstream}); err != nil {
			retErr = Adminf("add-db", err)
			return nil
		}
		log.Infof("add-db: %s registered role=%s", req.Name, role)
		return nil
	})
	return retErr
}

// CloseDB implements close-db(name): drop from the registry, keep on-disk
// state.
func (h *Handler) CloseDB(ctx context.Context, name string) error {
	var retErr error
	_ = h.locks.WithLock(name, func() error {
		hdl, err := h.reg.Remove(name)
		if err != nil {
			retErr = NotFoundf("close-db", "%s: %v", name, err)
			return nil
		}
		if err := hdl.Engine.Close(); err != nil {
			retErr = Enginef("close-db", err)
			return nil
		}
		log.Infof("close-db: %s closed", name)
		return nil
	})
	return retErr
}

// ClearDB implements clear-db(name, reopen?): drop, clear metadata, destroy
// on-disk state, optionally reopen with the prior role/upstream (open
// question: this resolves the absent-db case as
// NotFound rather than a speculative re-open).
func (h *Handler) ClearDB(ctx context.Context, name string, reopen bool) error {
	var retErr error
	_ = h.locks.WithLock(name, func() error {
		hdl, err := h.reg.Get(name)
		if err != nil {
			retErr = NotFoundf("clear-db", "%s: %v", name, err)
			return nil
		}
		if _, err := h.reg.Remove(name); err != nil {
			retErr = Adminf("clear-db", err)
			return nil
		}
		if err := hdl.Engine.Close(); err != nil {
			log.Warningf("clear-db: %s: close before destroy: %v", name, err)
		}
		if err := h.meta.Delete(name); err != nil {
			retErr = Adminf("clear-db", err)
			return nil
		}
		dir := h.dataDirFor(name)
		if err := h.opener.Destroy(dir); err != nil {
			retErr = Adminf("clear-db", err)
			return nil
		}
		if !reopen {
			log.Infof("clear-db: %s cleared", name)
			return nil
		}
		eng, err := h.opener.Open(dir, hdl.Segment)
		if err != nil {
			retErr = Adminf("clear-db", fmt.Errorf("reopen: %w", err))
			return nil
		}
		if err := h.reg.Add(name, &registry.Handle{Segment: hdl.Segment, Engine: eng, Role: hdl.Role, Upstream: hdl.Upstream}); err != nil {
			retErr = Adminf("clear-db", err)
			return nil
		}
		log.Infof("clear-db: %s cleared and reopened role=%s", name, hdl.Role)
		return nil
	})
	return retErr
}

// ChangeRoleAndUpstream implements change-role-and-upstream(name, role,
// upstream?): remove and re-register the same engine handle under a new
// role/upstream.
func (h *Handler) ChangeRoleAndUpstream(ctx context.Context, name, roleStr, upstreamAddr string) error {
	role, err := replication.ParseRole(roleStr)
	if err != nil {
		return InvalidArgument("change-role-and-upstream", CodeInvalidDBRole, "%v", err)
	}
	upstream, err := replication.ParseUpstream(upstreamAddr)
	if err != nil {
		return InvalidArgument("change-role-and-upstream", CodeInvalidUpstream, "%v", err)
	}
	if role == replication.Secondary && upstream == nil {
		return InvalidArgument("change-role-and-upstream", CodeInvalidUpstream, "secondary role requires an upstream address")
	}

	var retErr error
	_ = h.locks.WithLock(name, func() error {
		hdl, err := h.reg.Remove(name)
		if err != nil {
			retErr = NotFoundf("change-role-and-upstream", "%s: %v", name, err)
			return nil
		}
		hdl.Role = role
		hdl.Upstream = upstream
		if err := h.reg.Add(name, hdl); err != nil {
			retErr = Adminf("change-role-and-upstream", err)
			return nil
		}
		log.Infof("change-role-and-upstream: %s now role=%s upstream=%s", name, role, upstream)
		return nil
	})
	return retErr
}

// --------------------------------------------------------------------------
// backup-db / restore-db
// --------------------------------------------------------------------------

// BackupDB implements backup-db against the distributed filesystem.
func (h *Handler) BackupDB(ctx context.Context, name string) error {
	env := backup.NewDFSEnv(h.dfsEnv, name)
	if err := h.backupOrch.Backup(ctx, name, env); err != nil {
		return mapRegistryErr("backup-db", name, err)
	}
	return nil
}

// RestoreDB implements restore-db from the distributed filesystem.
func (h *Handler) RestoreDB(ctx context.Context, name, segment, upstreamAddr string) error {
	upstream, err := replication.ParseUpstream(upstreamAddr)
	if err != nil {
		return InvalidArgument("restore-db", CodeInvalidUpstream, "%v", err)
	}
	env := backup.NewDFSEnv(h.dfsEnv, name)
	if err := h.backupOrch.Restore(ctx, name, segment, env, upstream); err != nil {
		return mapRegistryErr("restore-db", name, err)
	}
	return nil
}

// BackupDBToObjectStore implements backup-db against object storage, behind
// the concurrency gate and a borrowed, cache-shared client.
func (h *Handler) BackupDBToObjectStore(ctx context.Context, name, bucket string, rateLimitMBps float64) error {
	if err := h.gate.Acquire(); err != nil {
		return Capacityf("backup-db-to-object-store", "%v", err)
	}
	defer h.gate.Release()

	borrow, err := h.osCache.Borrow(objectstore.ClientKey{Bucket: bucket, RateLimitMBps: rateLimitMBps})
	if err != nil {
		return Adminf("backup-db-to-object-store", err)
	}
	defer borrow.Release()

	env := backup.NewObjectStoreEnv(borrow, name, h.scratchDirFor(name))
	if err := h.backupOrch.Backup(ctx, name, env); err != nil {
		return mapRegistryErr("backup-db-to-object-store", name, err)
	}
	return nil
}

// RestoreDBFromObjectStore implements restore-db-from-object-store.
func (h *Handler) RestoreDBFromObjectStore(ctx context.Context, name, segment, bucket string, rateLimitMBps float64, upstreamAddr string) error {
	upstream, err := replication.ParseUpstream(upstreamAddr)
	if err != nil {
		return InvalidArgument("restore-db-from-object-store", CodeInvalidUpstream, "%v", err)
	}
	if err := h.gate.Acquire(); err != nil {
		return Capacityf("restore-db-from-object-store", "%v", err)
	}
	defer h.gate.Release()

	borrow, err := h.osCache.Borrow(objectstore.ClientKey{Bucket: bucket, RateLimitMBps: rateLimitMBps})
	if err != nil {
		return Adminf("restore-db-from-object-store", err)
	}
	defer borrow.Release()

	env := backup.NewObjectStoreEnv(borrow, name, h.scratchDirFor(name))
	if err := h.backupOrch.Restore(ctx, name, segment, env, upstream); err != nil {
		return mapRegistryErr("restore-db-from-object-store", name, err)
	}
	return nil
}

// --------------------------------------------------------------------------
// add-object-store-files-to-db
// --------------------------------------------------------------------------

// AddObjectStoreFilesRequest is add-object-store-files-to-db.
type AddObjectStoreFilesRequest struct {
	Name          string
	Segment       string
	Bucket        string
	Path          string
	RateLimitMBps float64
	CompactAfter  bool
}

func (h *Handler) AddObjectStoreFilesToDB(ctx context.Context, req AddObjectStoreFilesRequest) error {
	ingestReq := ingest.Request{
		DB:             req.Name,
		Bucket:         req.Bucket,
		Path:           req.Path,
		RateLimitMBps:  req.RateLimitMBps,
		AllowOverlap:   h.cfg.AllowsOverlap(req.Segment),
		CompactAfter:   req.CompactAfter || h.cfg.CompactAfterIngest,
		SnapshotSuffix: h.cfg.SnapshotFileSuffix,
	}
	if err := h.ingestPipe.AddExternalFiles(ctx, ingestReq); err != nil {
		return mapRegistryErr("add-object-store-files-to-db", req.Name, err)
	}
	return nil
}

// --------------------------------------------------------------------------
// start-message-ingestion / stop-message-ingestion
// --------------------------------------------------------------------------

// StartMessageIngestionRequest is start-message-ingestion.
type StartMessageIngestionRequest struct {
	Name                     string
	Topic                    string
	BrokerSetRef             string
	DesiredReplayTimestampMs int64
	DecodePayload            bool
}

func (h *Handler) StartMessageIngestion(ctx context.Context, req StartMessageIngestionRequest) error {
	err := h.eventIngest.Start(ctx, eventlog.StartRequest{
		DB:                       req.Name,
		Topic:                    req.Topic,
		BrokerSetRef:             req.BrokerSetRef,
		DesiredReplayTimestampMs: req.DesiredReplayTimestampMs,
		DecodePayload:            req.DecodePayload,
	})
	if err != nil {
		return mapRegistryErr("start-message-ingestion", req.Name, err)
	}
	return nil
}

func (h *Handler) StopMessageIngestion(ctx context.Context, name string) error {
	if err := h.eventIngest.Stop(name); err != nil {
		if err == eventlog.ErrNotRunning {
			return NotFoundf("stop-message-ingestion", "%s: %v", name, err)
		}
		return Adminf("stop-message-ingestion", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// get-sequence-number / check-db / set-db-options / compact-db
// --------------------------------------------------------------------------

func (h *Handler) GetSequenceNumber(ctx context.Context, name string) (uint64, error) {
	var seq uint64
	var retErr error
	_ = h.locks.WithLock(name, func() error {
		hdl, err := h.reg.Get(name)
		if err != nil {
			retErr = NotFoundf("get-sequence-number", "%s: %v", name, err)
			return nil
		}
		seq, err = hdl.Engine.GetLatestSequenceNumber()
		if err != nil {
			retErr = Enginef("get-sequence-number", err)
		}
		return nil
	})
	return seq, retErr
}

// CheckDBResult is the response to check-db.
type CheckDBResult struct {
	SequenceNumber        uint64
	WALTTLSeconds         int64
	IsPrimary             bool
	LastUpdateTimestampMs int64
}

func (h *Handler) CheckDB(ctx context.Context, name string) (CheckDBResult, error) {
	var result CheckDBResult
	var retErr error
	_ = h.locks.WithLock(name, func() error {
		hdl, err := h.reg.Get(name)
		if err != nil {
			retErr = NotFoundf("check-db", "%s: %v", name, err)
			return nil
		}
		seq, err := hdl.Engine.GetLatestSequenceNumber()
		if err != nil {
			retErr = Enginef("check-db", err)
			return nil
		}
		info, err := hdl.Engine.Info()
		if err != nil {
			retErr = Enginef("check-db", err)
			return nil
		}
		rec, err := h.meta.Get(name)
		if err != nil && err != metadata.ErrNotFound {
			retErr = Adminf("check-db", err)
			return nil
		}
		result = CheckDBResult{
			SequenceNumber:        seq,
			WALTTLSeconds:         info.WALTTLSeconds,
			IsPrimary:             hdl.Role == replication.Primary,
			LastUpdateTimestampMs: rec.LastEventTimestampMs,
		}
		return nil
	})
	return result, retErr
}

func (h *Handler) SetDBOptions(ctx context.Context, name string, opts map[string]string) error {
	var retErr error
	_ = h.locks.WithLock(name, func() error {
		hdl, err := h.reg.Get(name)
		if err != nil {
			retErr = NotFoundf("set-db-options", "%s: %v", name, err)
			return nil
		}
		if err := hdl.Engine.SetOptions(engine.Options(opts)); err != nil {
			retErr = Enginef("set-db-options", err)
		}
		return nil
	})
	return retErr
}

func (h *Handler) CompactDB(ctx context.Context, name string) error {
	var retErr error
	_ = h.locks.WithLock(name, func() error {
		hdl, err := h.reg.Get(name)
		if err != nil {
			retErr = NotFoundf("compact-db", "%s: %v", name, err)
			return nil
		}
		if err := hdl.Engine.Compact(ctx); err != nil {
			retErr = Enginef("compact-db", err)
		}
		return nil
	})
	return retErr
}

// --------------------------------------------------------------------------
// ping / dump-stats
// --------------------------------------------------------------------------

func (h *Handler) Ping() string { return "pong" }

func (h *Handler) DumpStats() string {
	return h.reg.DumpStats()
}

// mapRegistryErr folds a component-level sentinel error into the admin
// taxonomy when the callee didn't already return an *Error.
func mapRegistryErr(op, name string, err error) error {
	if _, ok := AsError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return NotFoundf(op, "%s: %v", name, err)
	case errors.Is(err, registry.ErrAlreadyExists):
		return AlreadyExistsf(op, "%s: %v", name, err)
	case errors.Is(err, objectstore.ErrCapacityExceeded):
		return Capacityf(op, "%s: %v", name, err)
	default:
		return Adminf(op, err)
	}
}
