package status

import (
	"errors"
	"sync/atomic"
	"testing"
)

type countingHandle struct{ n atomic.Int32 }

func (h *countingHandle) Cancel() { h.n.Add(1) }

func TestRegistryLifecycle(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&countingHandle{}); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("register before start: %v", err)
	}
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	a, b := &countingHandle{}, &countingHandle{}
	if err := r.Register(a); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(b); err != nil {
		t.Fatal(err)
	}
	if r.Len() != 2 {
		t.Fatalf("len = %d", r.Len())
	}

	if n := r.StopAll(); n != 2 {
		t.Fatalf("first StopAll = %d", n)
	}
	if n := r.StopAll(); n != 0 {
		t.Fatalf("second StopAll = %d", n)
	}
	if a.n.Load() != 1 || b.n.Load() != 1 {
		t.Fatalf("handles canceled %d/%d times", a.n.Load(), b.n.Load())
	}
	if r.State() != StateStopped || r.Len() != 0 {
		t.Fatalf("state=%v len=%d", r.State(), r.Len())
	}
	if err := r.Register(&countingHandle{}); !errors.Is(err, ErrStopped) {
		t.Fatalf("register after stop: %v", err)
	}
	if err := r.Start(); !errors.Is(err, ErrStopped) {
		t.Fatalf("restart: %v", err)
	}
}

func TestRegistryStopAllBeforeStart(t *testing.T) {
	r := NewRegistry()
	if n := r.StopAll(); n != 0 {
		t.Fatalf("StopAll = %d", n)
	}
	if r.State() != StateStopped {
		t.Fatalf("state = %v", r.State())
	}
}
