package objectstore

import "testing"

func TestGateAcquireUpToCap(t *testing.T) {
	g := NewGate(2)

	if err := g.Acquire(); err != nil {
		t.Fatalf("Acquire 1: %v", err)
	}
	if err := g.Acquire(); err != nil {
		t.Fatalf("Acquire 2: %v", err)
	}
	if err := g.Acquire(); err != ErrCapacityExceeded {
		t.Fatalf("Acquire 3: got %v, want ErrCapacityExceeded", err)
	}
	if got := g.Current(); got != 2 {
		t.Errorf("Current() = %d, want 2", got)
	}
}

func TestGateReleaseFreesCapacity(t *testing.T) {
	g := NewGate(1)

	if err := g.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	g.Release()
	if got := g.Current(); got != 0 {
		t.Fatalf("Current() after Release = %d, want 0", got)
	}
	if err := g.Acquire(); err != nil {
		t.Fatalf("Acquire after Release: %v", err)
	}
}

func TestGateNonPositiveCapRejectsEverything(t *testing.T) {
	g := NewGate(0)
	if err := g.Acquire(); err != ErrCapacityExceeded {
		t.Fatalf("Acquire on zero-cap gate: got %v, want ErrCapacityExceeded", err)
	}
}
