package status

import "sync"

// Handle is anything the Registry can cancel.
type Handle interface {
	Cancel()
}

type State int32

const (
	StateNotStarted State = iota
	StateActive
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateStopped:
		return "stopped"
	default:
		return "not_started"
	}
}

// Registry is the process-wide set of live report loops.
// Lifecycle: NotStarted -> Active (Start) -> Stopped (StopAll).
type Registry struct {
	mu      sync.Mutex
	state   State
	handles map[Handle]struct{}
}

func NewRegistry() *Registry {
	return &Registry{handles: map[Handle]struct{}{}}
}

// Start moves the registry to Active. Starting a stopped registry fails.
func (r *Registry) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case StateStopped:
		return ErrStopped
	default:
		r.state = StateActive
		return nil
	}
}

func (r *Registry) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

func (r *Registry) Register(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.activeLocked(); err != nil {
		return err
	}
	r.handles[h] = struct{}{}
	return nil
}

func (r *Registry) Unregister(h Handle) {
	r.mu.Lock()
	delete(r.handles, h)
	r.mu.Unlock()
}

// StopAll cancels every registered handle and clears the set.
// It is idempotent; calls after the first return 0.
func (r *Registry) StopAll() int {
	r.mu.Lock()
	r.state = StateStopped
	hs := make([]Handle, 0, len(r.handles))
	for h := range r.handles {
		hs = append(hs, h)
	}
	r.handles = map[Handle]struct{}{}
	r.mu.Unlock()

	// Cancel outside the lock: handles may call Unregister.
	for _, h := range hs {
		h.Cancel()
	}
	return len(hs)
}

func (r *Registry) checkActive() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeLocked()
}

func (r *Registry) activeLocked() error {
	switch r.state {
	case StateActive:
		return nil
	case StateStopped:
		return ErrStopped
	default:
		return ErrNotStarted
	}
}
