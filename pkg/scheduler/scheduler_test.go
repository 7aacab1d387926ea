package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLoop_RunsTasksInOrder(t *testing.T) {
	loop := NewLoop()
	loop.Start()
	defer loop.Stop()

	var mu sync.Mutex
	var order []int
	for i := 0; i < 100; i++ {
		i := i
		loop.Post(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}

	if err := loop.Do(context.Background(), func() {}); err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 100 {
		t.Fatalf("Expected 100 tasks, got %d", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("Task %d ran at position %d", v, i)
		}
	}
}

func TestLoop_SingleGoroutine(t *testing.T) {
	loop := NewLoop()
	loop.Start()
	defer loop.Stop()

	var active, maxActive atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = loop.Do(context.Background(), func() {
				n := active.Add(1)
				if n > maxActive.Load() {
					maxActive.Store(n)
				}
				time.Sleep(100 * time.Microsecond)
				active.Add(-1)
			})
		}()
	}
	wg.Wait()

	if maxActive.Load() != 1 {
		t.Errorf("Expected tasks to run one at a time, saw %d concurrently", maxActive.Load())
	}
	if loop.Executed() != 50 {
		t.Errorf("Expected 50 executed tasks, got %d", loop.Executed())
	}
}

func TestLoop_PostFromTask(t *testing.T) {
	loop := NewLoop()
	loop.Start()
	defer loop.Stop()

	done := make(chan struct{})
	loop.Post(func() {
		loop.Post(func() { close(done) })
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Nested post never ran")
	}
}

func TestLoop_PanicRecovery(t *testing.T) {
	var handled atomic.Int32
	loop := NewLoop(WithErrorHandler(func(err error) bool {
		handled.Add(1)
		return true
	}))
	loop.Start()
	defer loop.Stop()

	loop.Post(func() { panic("boom") })
	ran := false
	if err := loop.Do(context.Background(), func() { ran = true }); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if !ran {
		t.Error("Expected loop to keep running after a panic")
	}
	if handled.Load() != 1 {
		t.Errorf("Expected 1 handled panic, got %d", handled.Load())
	}
}

func TestLoop_PanicStopsLoop(t *testing.T) {
	loop := NewLoop(WithErrorHandler(func(error) bool { return false }))
	loop.Start()

	loop.Post(func() { panic("fatal") })
	select {
	case <-loop.Done():
	case <-time.After(time.Second):
		t.Fatal("Expected loop to stop")
	}
	if err := loop.Do(context.Background(), func() {}); !errors.Is(err, ErrStopped) {
		t.Errorf("Expected ErrStopped, got %v", err)
	}
}

func TestLoop_RunWithContext(t *testing.T) {
	loop := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() { errc <- loop.Run(ctx) }()

	if err := loop.Do(context.Background(), func() {}); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	cancel()

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if loop.IsRunning() {
		t.Error("Expected loop to report stopped")
	}
}

func TestLoop_StopBeforeStart(t *testing.T) {
	loop := NewLoop()
	loop.Stop()
	loop.Start()

	select {
	case <-loop.Done():
	case <-time.After(time.Second):
		t.Fatal("Expected Done to be closed")
	}
}
