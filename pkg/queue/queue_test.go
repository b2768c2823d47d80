package queue

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestFIFOOrder(t *testing.T) {
	q := NewBounded[int](4)

	for i := 0; i < 4; i++ {
		if err := q.Push(i); err != nil {
			t.Fatalf("Push(%d): %v", i, err)
		}
	}

	for i := 0; i < 4; i++ {
		got, err := q.Pop()
		if err != nil {
			t.Fatalf("Pop: %v", err)
		}
		if got != i {
			t.Errorf("Pop = %d, want %d", got, i)
		}
	}
}

func TestPushBlocksWhenFull(t *testing.T) {
	q := NewBounded[int](1)
	if err := q.Push(1); err != nil {
		t.Fatalf("Push: %v", err)
	}

	pushed := make(chan error, 1)
	go func() {
		pushed <- q.Push(2)
	}()

	select {
	case err := <-pushed:
		t.Fatalf("Push returned early with %v; expected it to block", err)
	case <-time.After(50 * time.Millisecond):
	}

	// Draining one item must wake the blocked pusher.
	if _, err := q.Pop(); err != nil {
		t.Fatalf("Pop: %v", err)
	}
	select {
	case err := <-pushed:
		if err != nil {
			t.Fatalf("blocked Push failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked Push never woke up")
	}
}

func TestPopBlocksWhenEmpty(t *testing.T) {
	q := NewBounded[string](2)

	popped := make(chan string, 1)
	go func() {
		v, err := q.Pop()
		if err != nil {
			popped <- "err:" + err.Error()
			return
		}
		popped <- v
	}()

	select {
	case v := <-popped:
		t.Fatalf("Pop returned early with %q; expected it to block", v)
	case <-time.After(50 * time.Millisecond):
	}

	if err := q.Push("hello"); err != nil {
		t.Fatalf("Push: %v", err)
	}
	select {
	case v := <-popped:
		if v != "hello" {
			t.Errorf("Pop = %q, want %q", v, "hello")
		}
	case <-time.After(time.Second):
		t.Fatal("blocked Pop never woke up")
	}
}

func TestTryPush(t *testing.T) {
	q := NewBounded[int](1)

	if err := q.TryPush(1); err != nil {
		t.Fatalf("TryPush: %v", err)
	}
	if err := q.TryPush(2); !errors.Is(err, ErrFull) {
		t.Errorf("TryPush on full queue = %v, want ErrFull", err)
	}

	q.Shutdown()
	if err := q.TryPush(3); !errors.Is(err, ErrShutdown) {
		t.Errorf("TryPush after shutdown = %v, want ErrShutdown", err)
	}
}

func TestShutdownDrains(t *testing.T) {
	q := NewBounded[int](4)
	for i := 0; i < 3; i++ {
		if err := q.Push(i); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}

	q.Shutdown()
	q.Shutdown() // idempotent

	// Remaining items are still delivered in order.
	for i := 0; i < 3; i++ {
		got, err := q.Pop()
		if err != nil {
			t.Fatalf("Pop during drain: %v", err)
		}
		if got != i {
			t.Errorf("Pop = %d, want %d", got, i)
		}
	}

	// Then the queue reports shutdown.
	if _, err := q.Pop(); !errors.Is(err, ErrShutdown) {
		t.Errorf("Pop after drain = %v, want ErrShutdown", err)
	}

	if err := q.Push(99); !errors.Is(err, ErrShutdown) {
		t.Errorf("Push after shutdown = %v, want ErrShutdown", err)
	}
}

func TestShutdownWakesBlockedWaiters(t *testing.T) {
	q := NewBounded[int](1)
	if err := q.Push(0); err != nil {
		t.Fatalf("Push: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)

	// Blocked pushers
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- q.Push(1)
		}()
	}

	time.Sleep(20 * time.Millisecond)
	q.Shutdown()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("blocked pushers not released by Shutdown")
	}

	for i := 0; i < 4; i++ {
		if err := <-errs; !errors.Is(err, ErrShutdown) {
			t.Errorf("blocked Push = %v, want ErrShutdown", err)
		}
	}
}

func TestConcurrentProducersConsumers(t *testing.T) {
	const (
		producers = 8
		consumers = 4
		perProd   = 200
	)

	q := NewBounded[int](16)

	var prodWG sync.WaitGroup
	for p := 0; p < producers; p++ {
		prodWG.Add(1)
		go func(base int) {
			defer prodWG.Done()
			for i := 0; i < perProd; i++ {
				if err := q.Push(base*perProd + i); err != nil {
					t.Errorf("Push: %v", err)
					return
				}
			}
		}(p)
	}

	var mu sync.Mutex
	seen := make(map[int]bool)
	var consWG sync.WaitGroup
	for c := 0; c < consumers; c++ {
		consWG.Add(1)
		go func() {
			defer consWG.Done()
			for {
				v, err := q.Pop()
				if err != nil {
					return
				}
				mu.Lock()
				if seen[v] {
					t.Errorf("item %d delivered twice", v)
				}
				seen[v] = true
				mu.Unlock()
			}
		}()
	}

	prodWG.Wait()
	q.Shutdown()
	consWG.Wait()

	if len(seen) != producers*perProd {
		t.Errorf("delivered %d items, want %d", len(seen), producers*perProd)
	}
	if q.Len() != 0 {
		t.Errorf("queue not drained: %d items remain", q.Len())
	}
}
