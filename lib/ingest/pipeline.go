// Package ingest implements the Bulk Ingest Pipeline (addExternalFiles).
package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/ValentinKolb/shardctl/internal/logging"
	"github.com/ValentinKolb/shardctl/lib/engine"
	"github.com/ValentinKolb/shardctl/lib/metadata"
	"github.com/ValentinKolb/shardctl/lib/objectstore"
	"github.com/ValentinKolb/shardctl/lib/registry"
	"github.com/VictoriaMetrics/metrics"
)

var log = logging.New("ingest")

// WatcherChecker reports whether an event-log watcher is currently running
// for a database. The Pipeline consults it to enforce the
// resolution of the addExternalFiles-vs-event-log race: destructive
// overlap-disallowed ingest refuses to run while ingestion is live.
type WatcherChecker interface {
	IsRunning(db string) bool
}

// Request is one addExternalFiles call.
type Request struct {
	DB               string
	Bucket           string
	Path             string
	RateLimitMBps    float64
	AllowOverlap     bool // global default, combined with per-segment overrides by the caller
	CompactAfter     bool
	SnapshotSuffix   string
}

// Pipeline implements the bulk ingest pipeline.
type Pipeline struct {
	reg      *registry.Registry
	locks    *registry.LockMap
	meta     *metadata.Store
	osCache  *objectstore.Cache
	gate     *objectstore.Gate
	opener   engine.Opener
	watchers WatcherChecker
	scratchDirFor func(db string) string
	dataDirFor    func(db string) string
}

// New creates a Pipeline.
func New(reg *registry.Registry, locks *registry.LockMap, meta *metadata.Store, osCache *objectstore.Cache, gate *objectstore.Gate, opener engine.Opener, watchers WatcherChecker, scratchDirFor, dataDirFor func(db string) string) *Pipeline {
	return &Pipeline{reg: reg, locks: locks, meta: meta, osCache: osCache, gate: gate, opener: opener, watchers: watchers, scratchDirFor: scratchDirFor, dataDirFor: dataDirFor}
}

// AddExternalFiles runs eleven steps under the per-DB lock.
func (p *Pipeline) AddExternalFiles(ctx context.Context, req Request) error {
	var retErr error
	_ = p.locks.WithLock(req.DB, func() error {
		retErr = p.run(ctx, req)
		return nil
	})
	return retErr
}

func (p *Pipeline) run(ctx context.Context, req Request) error {
	h, err := p.reg.Get(req.DB)
	if err != nil {
		return fmt.Errorf("addExternalFiles: %s: %w", req.DB, err)
	}

	// idempotence precondition
	if rec, err := p.meta.Get(req.DB); err == nil && rec.Bucket == req.Bucket && rec.Path == req.Path {
		log.Infof("addExternalFiles: %s already at bucket=%s path=%s, no-op", req.DB, req.Bucket, req.Path)
		return nil
	}

	// 1. concurrency gate
	if err := p.gate.Acquire(); err != nil {
		metrics.GetOrCreateCounter(`shardctl_ingest_capacity_rejections_total`).Inc()
		return err
	}
	defer p.gate.Release()

	// 2. fresh scratch directory
	scratch := p.scratchDirFor(req.DB)
	if err := os.RemoveAll(scratch); err != nil {
		return fmt.Errorf("addExternalFiles: %s: clear scratch: %w", req.DB, err)
	}
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return fmt.Errorf("addExternalFiles: %s: create scratch: %w", req.DB, err)
	}
	defer os.RemoveAll(scratch)

	// 3. object-store client
	borrow, err := p.osCache.Borrow(objectstore.ClientKey{Bucket: req.Bucket, RateLimitMBps: req.RateLimitMBps})
	if err != nil {
		return fmt.Errorf("addExternalFiles: %s: object-store client: %w", req.DB, err)
	}
	defer borrow.Release()

	// 4. list and download
	names, err := borrow.List(req.Path)
	if err != nil {
		metrics.GetOrCreateCounter(`shardctl_ingest_failures_total`).Inc()
		return fmt.Errorf("addExternalFiles: %s: list %s: %w", req.DB, req.Path, err)
	}
	localPaths := make([]string, 0, len(names))
	for _, name := range names {
		r, err := borrow.Get(path.Join(req.Path, name))
		if err != nil {
			metrics.GetOrCreateCounter(`shardctl_ingest_failures_total`).Inc()
			return fmt.Errorf("addExternalFiles: %s: download %s: %w", req.DB, name, err)
		}
		dst := filepath.Join(scratch, name)
		f, err := os.Create(dst)
		if err != nil {
			r.Close()
			return fmt.Errorf("addExternalFiles: %s: stage %s: %w", req.DB, name, err)
		}
		_, copyErr := io.Copy(f, r)
		f.Close()
		r.Close()
		if copyErr != nil {
			metrics.GetOrCreateCounter(`shardctl_ingest_failures_total`).Inc()
			return fmt.Errorf("addExternalFiles: %s: stage %s: %w", req.DB, name, copyErr)
		}
		localPaths = append(localPaths, dst)
	}

	// 5. commitment point
	if err := p.meta.Delete(req.DB); err != nil {
		return fmt.Errorf("addExternalFiles: %s: clear metadata: %w", req.DB, err)
	}

	// 6. overlap decision (global OR per-segment, both already folded into req.AllowOverlap by the caller)
	allowOverlap := req.AllowOverlap

	// 7. destructive reopen if overlap is not allowed
	eng := h.Engine
	if !allowOverlap {
		if p.watchers != nil && p.watchers.IsRunning(req.DB) {
			return fmt.Errorf("addExternalFiles: %s: event-log ingestion is running; stop it before overlap-disallowed ingest", req.DB)
		}
		role, upstream := h.Role, h.Upstream
		if _, err := p.reg.Remove(req.DB); err != nil {
			return fmt.Errorf("addExternalFiles: %s: drop handle: %w", req.DB, err)
		}
		if err := eng.Close(); err != nil {
			log.Warningf("addExternalFiles: %s: close before destroy: %v", req.DB, err)
		}
		dataDir := p.dataDirFor(req.DB)
		if err := p.opener.Destroy(dataDir); err != nil {
			return fmt.Errorf("addExternalFiles: %s: destroy: %w", req.DB, err)
		}
		newEng, err := p.opener.Open(dataDir, h.Segment)
		if err != nil {
			return fmt.Errorf("addExternalFiles: %s: reopen: %w", req.DB, err)
		}
		if err := p.reg.Add(req.DB, &registry.Handle{Segment: h.Segment, Engine: newEng, Role: role, Upstream: upstream}); err != nil {
			return fmt.Errorf("addExternalFiles: %s: re-register: %w", req.DB, err)
		}
		eng = newEng
	}

	// 8. ingest snapshot files
	suffix := req.SnapshotSuffix
	var toIngest []string
	for _, lp := range localPaths {
		if strings.HasSuffix(lp, suffix) {
			toIngest = append(toIngest, lp)
		}
	}
	if err := eng.IngestExternalFiles(ctx, toIngest, engine.IngestOptions{
		MoveFiles:        true,
		AllowGlobalSeqno: allowOverlap,
		BlockingFlush:    allowOverlap,
	}); err != nil {
		metrics.GetOrCreateCounter(`shardctl_ingest_failures_total`).Inc()
		return fmt.Errorf("addExternalFiles: %s: ingest: %w", req.DB, err)
	}

	// 9. write metadata
	if err := p.meta.Put(metadata.Record{DB: req.DB, Bucket: req.Bucket, Path: req.Path}); err != nil {
		return fmt.Errorf("addExternalFiles: %s: write metadata: %w", req.DB, err)
	}

	// 10. optional compaction, non-fatal
	if req.CompactAfter {
		if err := eng.Compact(ctx); err != nil {
			log.Warningf("addExternalFiles: %s: post-ingest compaction failed: %v", req.DB, err)
		}
	}

	metrics.GetOrCreateCounter(`shardctl_ingest_success_total`).Inc()
	log.Infof("addExternalFiles: %s ingested %d file(s) from bucket=%s path=%s", req.DB, len(toIngest), req.Bucket, req.Path)
	return nil
}
