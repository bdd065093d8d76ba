// Package registry implements the in-memory mapping from database name to
// live handle, generalizing the prior shard map
// (rpc/server/server.go's xsync.MapOf[uint64, serverShard]) from a
// shard-id-keyed map to a name-keyed one.
package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ValentinKolb/shardctl/internal/logging"
	"github.com/ValentinKolb/shardctl/lib/engine"
	"github.com/ValentinKolb/shardctl/lib/replication"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logging.New("registry")

// Handle bundles a live database's engine instance with its replication
// state.
type Handle struct {
	Segment  string
	Engine   engine.Engine
	Role     replication.Role
	Upstream *replication.Upstream
}

// Registry is the DB Registry. Registry operations are
// individually linearizable; whole-operation ordering across a single
// database is the per-DB admin lock's job, not the registry's.
type Registry struct {
	m *xsync.MapOf[string, *Handle]
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{m: xsync.NewMapOf[string, *Handle]()}
}

// ErrAlreadyExists is returned by Add when name is already registered.
var ErrAlreadyExists = fmt.Errorf("registry: database already registered")

// ErrNotFound is returned by Remove/Get when name is not registered.
var ErrNotFound = fmt.Errorf("registry: database not found")

// Add registers h under name. Fails with ErrAlreadyExists if name is present.
func (r *Registry) Add(name string, h *Handle) error {
	_, loaded := r.m.LoadOrStore(name, h)
	if loaded {
		return ErrAlreadyExists
	}
	log.Infof("registered %s (role=%s)", name, h.Role)
	return nil
}

// Remove unregisters name and returns its handle, or ErrNotFound.
func (r *Registry) Remove(name string) (*Handle, error) {
	h, loaded := r.m.LoadAndDelete(name)
	if !loaded {
		return nil, ErrNotFound
	}
	log.Infof("unregistered %s", name)
	return h, nil
}

// Get returns the handle for name, or ErrNotFound. The returned handle is
// shared and must not outlive operations that might concurrently Remove it;
// callers hold the per-DB admin lock for the duration of their use.
func (r *Registry) Get(name string) (*Handle, error) {
	h, ok := r.m.Load(name)
	if !ok {
		return nil, ErrNotFound
	}
	return h, nil
}

// List returns every registered database name, sorted for stable output.
func (r *Registry) List() []string {
	names := make([]string, 0, r.m.Size())
	r.m.Range(func(name string, _ *Handle) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

// DumpStats serializes a stable, human-readable per-db block.
func (r *Registry) DumpStats() string {
	var sb strings.Builder
	for _, name := range r.List() {
		h, err := r.Get(name)
		if err != nil {
			continue
		}
		fmt.Fprintf(&sb, "%s: role=%s upstream=%s\n", name, h.Role, h.Upstream)
		if info, err := h.Engine.Info(); err == nil {
			fmt.Fprintf(&sb, "  size_bytes=%d\n", info.SizeBytes)
		}
	}
	return sb.String()
}
