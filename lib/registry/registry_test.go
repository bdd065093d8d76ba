package registry

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ValentinKolb/shardctl/lib/engine/memengine"
	"github.com/ValentinKolb/shardctl/lib/replication"
)

func newTestHandle(t *testing.T, dir, segment string) *Handle {
	t.Helper()
	e, err := memengine.NewOpener().Open(filepath.Join(dir, segment), segment)
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	return &Handle{Segment: segment, Engine: e, Role: replication.Primary}
}

func TestAddGetRemove(t *testing.T) {
	r := New()
	dir := t.TempDir()
	h := newTestHandle(t, dir, "users_0")

	if err := r.Add("users_0", h); err != nil {
		t.Fatalf("Add: %v", err)
	}

	got, err := r.Get("users_0")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != h {
		t.Errorf("Get returned a different handle than was added")
	}

	removed, err := r.Remove("users_0")
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if removed != h {
		t.Errorf("Remove returned a different handle than was added")
	}

	if _, err := r.Get("users_0"); err != ErrNotFound {
		t.Errorf("Get after Remove: got err %v, want ErrNotFound", err)
	}
}

func TestAddDuplicateFails(t *testing.T) {
	r := New()
	dir := t.TempDir()
	h := newTestHandle(t, dir, "users_0")

	if err := r.Add("users_0", h); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.Add("users_0", h); err != ErrAlreadyExists {
		t.Errorf("second Add: got err %v, want ErrAlreadyExists", err)
	}
}

func TestRemoveUnknownFails(t *testing.T) {
	r := New()
	if _, err := r.Remove("nope_0"); err != ErrNotFound {
		t.Errorf("Remove unknown: got err %v, want ErrNotFound", err)
	}
}

func TestListIsSortedAndComplete(t *testing.T) {
	r := New()
	dir := t.TempDir()
	names := []string{"c_0", "a_0", "b_0"}
	for _, n := range names {
		if err := r.Add(n, newTestHandle(t, dir, n)); err != nil {
			t.Fatalf("Add(%s): %v", n, err)
		}
	}

	got := r.List()
	want := []string{"a_0", "b_0", "c_0"}
	if len(got) != len(want) {
		t.Fatalf("List() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDumpStatsIncludesEveryDB(t *testing.T) {
	r := New()
	dir := t.TempDir()
	if err := r.Add("users_0", newTestHandle(t, dir, "users_0")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.Add("orders_0", newTestHandle(t, dir, "orders_0")); err != nil {
		t.Fatalf("Add: %v", err)
	}

	out := r.DumpStats()
	for _, name := range []string{"users_0", "orders_0"} {
		if !containsSubstring(out, name) {
			t.Errorf("DumpStats() = %q, want it to mention %q", out, name)
		}
	}
}

func containsSubstring(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}

func TestLockMapExclusion(t *testing.T) {
	lm := NewLockMap()

	lm.Lock("db1")
	unlocked := make(chan struct{})
	go func() {
		lm.Lock("db1")
		close(unlocked)
		lm.Unlock("db1")
	}()

	select {
	case <-unlocked:
		t.Fatal("second Lock on same name returned before first Unlock")
	default:
	}

	lm.Unlock("db1")
	<-unlocked
}

func TestLockMapIndependentNames(t *testing.T) {
	lm := NewLockMap()
	lm.Lock("db1")
	defer lm.Unlock("db1")

	done := make(chan struct{})
	go func() {
		lm.Lock("db2")
		lm.Unlock("db2")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Lock on an independent name blocked")
	}
}

func TestWithLockReleasesOnError(t *testing.T) {
	lm := NewLockMap()
	testErr := errNamed("boom")

	err := lm.WithLock("db1", func() error { return testErr })
	if err != testErr {
		t.Fatalf("WithLock returned %v, want %v", err, testErr)
	}

	// If WithLock failed to release the lock on the error path, this would
	// deadlock the test.
	lm.Lock("db1")
	lm.Unlock("db1")
}

type errNamed string

func (e errNamed) Error() string { return string(e) }
