package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ValentinKolb/shardctl/internal/logging"
	"github.com/ValentinKolb/shardctl/lib/engine"
	"github.com/ValentinKolb/shardctl/lib/registry"
	"github.com/ValentinKolb/shardctl/lib/replication"
	"github.com/VictoriaMetrics/metrics"
)

var log = logging.New("backup")

// Orchestrator implements backup(db, target, env, rate-limit?)
// and restore(db, source, env, upstream, rate-limit?).
type Orchestrator struct {
	reg    *registry.Registry
	locks  *registry.LockMap
	opener engine.Opener
	// dataDirFor returns the on-disk directory an engine instance for db lives in.
	dataDirFor func(db string) string
}

// New creates an Orchestrator over reg/locks, opening restored engines with
// opener and rooting them under dataDirFor(db).
func New(reg *registry.Registry, locks *registry.LockMap, opener engine.Opener, dataDirFor func(db string) string) *Orchestrator {
	return &Orchestrator{reg: reg, locks: locks, opener: opener, dataDirFor: dataDirFor}
}

// Backup creates a full backup of db's live engine into env. db must already
// be registered.
func (o *Orchestrator) Backup(ctx context.Context, db string, env Env) error {
	var retErr error
	_ = o.locks.WithLock(db, func() error {
		h, err := o.reg.Get(db)
		if err != nil {
			retErr = fmt.Errorf("backup: %s: %w", db, err)
			return nil
		}
		if err := env.CreateBackup(ctx, h.Engine); err != nil {
			metrics.GetOrCreateCounter(`shardctl_backup_failures_total`).Inc()
			retErr = err
			return nil
		}
		metrics.GetOrCreateCounter(`shardctl_backup_success_total`).Inc()
		log.Infof("backup of %s completed at %d", db, nowMs())
		return nil
	})
	return retErr
}

// Restore restores the latest backup from env into a freshly opened engine
// for db, registering it with role=secondary bound to upstream. Fails if db
// is already registered.
func (o *Orchestrator) Restore(ctx context.Context, db string, segment string, env Env, upstream *replication.Upstream) error {
	var retErr error
	_ = o.locks.WithLock(db, func() error {
		if _, err := o.reg.Get(db); err == nil {
			retErr = registry.ErrAlreadyExists
			return nil
		}

		dir := o.dataDirFor(db)
		if err := os.RemoveAll(dir); err != nil {
			retErr = fmt.Errorf("restore: %s: clear data dir: %w", db, err)
			return nil
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			retErr = fmt.Errorf("restore: %s: mkdir data dir: %w", db, err)
			return nil
		}

		snapPath := filepath.Join(dir, "snapshot.bin")
		f, err := os.Create(snapPath)
		if err != nil {
			retErr = fmt.Errorf("restore: %s: create snapshot file: %w", db, err)
			return nil
		}
		if err := env.RestoreLatest(ctx, f); err != nil {
			f.Close()
			metrics.GetOrCreateCounter(`shardctl_restore_failures_total`).Inc()
			retErr = err
			return nil
		}
		f.Close()

		eng, err := o.opener.Open(dir, segment)
		if err != nil {
			metrics.GetOrCreateCounter(`shardctl_restore_failures_total`).Inc()
			retErr = fmt.Errorf("restore: %s: open restored engine: %w", db, err)
			return nil
		}

		if err := o.reg.Add(db, &registry.Handle{
			Segment:  segment,
			Engine:   eng,
			Role:     replication.Secondary,
			Upstream: upstream,
		}); err != nil {
			retErr = err
			return nil
		}
		metrics.GetOrCreateCounter(`shardctl_restore_success_total`).Inc()
		log.Infof("restore of %s completed at %d", db, nowMs())
		return nil
	})
	return retErr
}
