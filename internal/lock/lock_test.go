package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWithLock_RunsOperation(t *testing.T) {
	r := New()
	ran := false
	err := r.WithLock(context.Background(), "p1", "op", func(ctx context.Context) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock: %v", err)
	}
	if !ran {
		t.Fatal("operation did not run")
	}
	if r.IsLocked("p1") {
		t.Error("lock still held after operation")
	}
}

func TestWithLock_MutualExclusion(t *testing.T) {
	r := New()
	var inside int32
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.WithLock(context.Background(), "p1", "op", func(ctx context.Context) error {
				if n := atomic.AddInt32(&inside, 1); n != 1 {
					t.Errorf("overlapping critical sections: %d inside", n)
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
		}()
	}
	wg.Wait()
}

func TestWithLock_FIFO(t *testing.T) {
	r := New()
	release := make(chan struct{})
	started := make(chan struct{})

	go r.WithLock(context.Background(), "p1", "holder", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			r.WithLock(context.Background(), "p1", fmt.Sprintf("op-%d", n), func(ctx context.Context) error {
				mu.Lock()
				order = append(order, n)
				mu.Unlock()
				return nil
			})
		}(i)
		// Ensure each waiter is enqueued before the next is submitted.
		for {
			if len(r.Queue("p1")) == i+2 {
				break
			}
			time.Sleep(time.Millisecond)
		}
	}

	close(release)
	wg.Wait()

	for i, n := range order {
		if n != i {
			t.Fatalf("execution order %v not FIFO", order)
		}
	}
}

func TestWithLock_Independence(t *testing.T) {
	r := New()
	holdA := make(chan struct{})
	startedA := make(chan struct{})

	go r.WithLock(context.Background(), "a", "opA", func(ctx context.Context) error {
		close(startedA)
		<-holdA
		return nil
	})
	<-startedA

	// Project B must not block on project A's lock.
	done := make(chan struct{})
	go func() {
		r.WithLock(context.Background(), "b", "opB", func(ctx context.Context) error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("operation on independent key blocked")
	}
	close(holdA)
}

func TestWithLock_ReleasedOnError(t *testing.T) {
	r := New()
	wantErr := errors.New("boom")
	err := r.WithLock(context.Background(), "p1", "failing", func(ctx context.Context) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want %v", err, wantErr)
	}
	if r.IsLocked("p1") {
		t.Fatal("lock held after failed operation")
	}
	// A subsequent acquisition must succeed.
	if err := r.WithLock(context.Background(), "p1", "next", func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("second WithLock: %v", err)
	}
}

func TestWithLock_ReleasedOnPanic(t *testing.T) {
	r := New()
	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		r.WithLock(context.Background(), "p1", "panicking", func(ctx context.Context) error {
			panic("boom")
		})
	}()
	if r.IsLocked("p1") {
		t.Fatal("lock held after panicking operation")
	}
}

func TestWithLock_BackToBackOrdering(t *testing.T) {
	r := New()
	var aDone atomic.Bool
	started := make(chan struct{})
	finished := make(chan struct{}, 2)

	go func() {
		r.WithLock(context.Background(), "p1", "opA", func(ctx context.Context) error {
			close(started)
			time.Sleep(100 * time.Millisecond)
			aDone.Store(true)
			return nil
		})
		finished <- struct{}{}
	}()
	<-started
	go func() {
		r.WithLock(context.Background(), "p1", "opB", func(ctx context.Context) error {
			if !aDone.Load() {
				t.Error("opB began before opA finished")
			}
			return nil
		})
		finished <- struct{}{}
	}()

	<-finished
	<-finished
}

func TestQueue_Diagnostics(t *testing.T) {
	r := New()
	release := make(chan struct{})
	started := make(chan struct{})

	go r.WithLock(context.Background(), "p1", "send-prompt", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started

	go r.WithLock(context.Background(), "p1", "restore", func(ctx context.Context) error { return nil })
	for len(r.Queue("p1")) < 2 {
		time.Sleep(time.Millisecond)
	}

	q := r.Queue("p1")
	if q[0] != "send-prompt" || q[1] != "restore" {
		t.Errorf("Queue = %v, want [send-prompt restore]", q)
	}
	close(release)
}

func TestUnknownKey(t *testing.T) {
	r := New()
	if r.IsLocked("never-seen") {
		t.Error("unknown key reported locked")
	}
	if q := r.Queue("never-seen"); q != nil {
		t.Errorf("Queue for unknown key = %v, want nil", q)
	}
}

func TestReleaseAll_WakesWaiters(t *testing.T) {
	r := New()
	release := make(chan struct{})
	started := make(chan struct{})

	go r.WithLock(context.Background(), "p1", "holder", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started

	errCh := make(chan error, 1)
	go func() {
		errCh <- r.WithLock(context.Background(), "p1", "waiter", func(ctx context.Context) error { return nil })
	}()
	for len(r.Queue("p1")) < 2 {
		time.Sleep(time.Millisecond)
	}

	r.ReleaseAll()

	if err := <-errCh; !errors.Is(err, ErrCleared) {
		t.Errorf("waiter error = %v, want ErrCleared", err)
	}
	if r.IsLocked("p1") {
		t.Error("lock still reported held after ReleaseAll")
	}
	close(release)
}

func TestWithLock_ContextCancelledWhileWaiting(t *testing.T) {
	r := New()
	release := make(chan struct{})
	started := make(chan struct{})

	go r.WithLock(context.Background(), "p1", "holder", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- r.WithLock(ctx, "p1", "cancelled", func(ctx context.Context) error { return nil })
	}()
	for len(r.Queue("p1")) < 2 {
		time.Sleep(time.Millisecond)
	}
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	// The cancelled waiter must be unlinked.
	if q := r.Queue("p1"); len(q) != 1 {
		t.Errorf("Queue = %v, want only holder", q)
	}
	close(release)
}

func TestWithLock_EmptyKey(t *testing.T) {
	r := New()
	if err := r.WithLock(context.Background(), "", "op", func(ctx context.Context) error { return nil }); err == nil {
		t.Fatal("expected error for empty key")
	}
}
