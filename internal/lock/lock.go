// Package lock provides a keyed, FIFO-fair mutex for serializing mutating
// operations against a project working directory. One critical section runs
// per key at a time; waiters are granted the lock in arrival order.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrCleared is returned to waiters woken by ReleaseAll.
var ErrCleared = errors.New("lock: registry cleared")

// Registry owns all per-key lock state. Keys with no holder and no waiters
// have no entry at all.
type Registry struct {
	mu    sync.Mutex
	locks map[string]*lockState
}

// lockState tracks the current holder and FIFO queue for one key.
type lockState struct {
	holder string
	queue  []*waiter
}

// waiter is one queued contender. ready is closed exactly once, either on
// grant (granted=true) or on ReleaseAll (cleared=true).
type waiter struct {
	name    string
	ready   chan struct{}
	granted bool
	cleared bool
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{locks: make(map[string]*lockState)}
}

// WithLock runs fn while holding the lock for key. If the lock is held, the
// caller waits its turn in FIFO order. The lock is always released when fn
// returns, returns an error, or panics; errors and panics propagate to the
// caller. opName is recorded for diagnostics only.
//
// Waiting is context-aware: a cancelled waiter is unlinked from the queue
// without disturbing the order of the others.
func (r *Registry) WithLock(ctx context.Context, key, opName string, fn func(context.Context) error) error {
	if key == "" {
		return fmt.Errorf("lock: key is required")
	}

	if err := r.acquire(ctx, key, opName); err != nil {
		return err
	}
	defer r.release(key)
	return fn(ctx)
}

// acquire blocks until the caller holds the lock for key.
func (r *Registry) acquire(ctx context.Context, key, opName string) error {
	r.mu.Lock()
	st, ok := r.locks[key]
	if !ok {
		// Uncontended: become the holder immediately.
		r.locks[key] = &lockState{holder: opName}
		r.mu.Unlock()
		return nil
	}

	w := &waiter{name: opName, ready: make(chan struct{})}
	st.queue = append(st.queue, w)
	r.mu.Unlock()

	select {
	case <-w.ready:
		if w.cleared {
			return ErrCleared
		}
		return nil
	case <-ctx.Done():
		r.mu.Lock()
		if w.granted {
			// Grant raced the cancellation; pass the lock on.
			r.mu.Unlock()
			r.release(key)
			return ctx.Err()
		}
		if st, ok := r.locks[key]; ok {
			st.queue = removeWaiter(st.queue, w)
		}
		r.mu.Unlock()
		return ctx.Err()
	}
}

// release hands the lock to the next waiter, or deletes the key's state
// when the queue is empty.
func (r *Registry) release(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.locks[key]
	if !ok {
		return
	}
	if len(st.queue) == 0 {
		delete(r.locks, key)
		return
	}
	next := st.queue[0]
	st.queue = st.queue[1:]
	st.holder = next.name
	next.granted = true
	close(next.ready)
}

// IsLocked reports whether any operation currently holds the lock for key.
// Unknown keys report false.
func (r *Registry) IsLocked(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.locks[key]
	return ok
}

// Queue returns the operation names for key, current holder first. Unknown
// keys return nil.
func (r *Registry) Queue(key string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.locks[key]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(st.queue)+1)
	names = append(names, st.holder)
	for _, w := range st.queue {
		names = append(names, w.name)
	}
	return names
}

// ReleaseAll force-clears every lock and wakes all waiters with ErrCleared.
// This is an administrative escape hatch for shutdown: critical sections
// already running are NOT stopped, so mutual exclusion no longer holds for
// any operation started after this call. Never use it in normal flow.
func (r *Registry) ReleaseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, st := range r.locks {
		for _, w := range st.queue {
			w.cleared = true
			close(w.ready)
		}
	}
	r.locks = make(map[string]*lockState)
}

// removeWaiter returns queue with w removed, preserving order.
func removeWaiter(queue []*waiter, w *waiter) []*waiter {
	for i, q := range queue {
		if q == w {
			return append(queue[:i], queue[i+1:]...)
		}
	}
	return queue
}
