package reactive

import (
	"sync"
	"testing"
)

func TestState_GetSet(t *testing.T) {
	state := NewState(nil, 42)

	if got := state.Get(); got != 42 {
		t.Errorf("Expected initial value 42, got %d", got)
	}

	if !state.Set(100) {
		t.Errorf("Expected Set to report a change")
	}
	if got := state.Get(); got != 100 {
		t.Errorf("Expected value 100 after Set, got %d", got)
	}
	if state.Set(100) {
		t.Errorf("Expected Set with the same value to report no change")
	}
}

func TestState_NotifiesOnlyOnChange(t *testing.T) {
	state := NewState(nil, "hello")

	var seen []string
	unsubscribe := state.Subscribe(func(v string) { seen = append(seen, v) })

	state.Set("hello")
	state.Set("world")
	state.Set("world")
	state.Set("again")

	if len(seen) != 2 || seen[0] != "world" || seen[1] != "again" {
		t.Errorf("Expected [world again], got %v", seen)
	}

	unsubscribe()
	unsubscribe()
	state.Set("ignored")
	if len(seen) != 2 {
		t.Errorf("Expected no notification after unsubscribe, got %v", seen)
	}
	if state.Subscribers() != 0 {
		t.Errorf("Expected 0 subscribers, got %d", state.Subscribers())
	}
}

func TestState_Update(t *testing.T) {
	state := NewState(nil, 10)

	calls := 0
	state.Subscribe(func(int) { calls++ })

	state.Update(func(v int) int { return v * 2 })
	if got := state.Get(); got != 20 {
		t.Errorf("Expected value 20 after Update, got %d", got)
	}
	state.Update(func(v int) int { return v })
	if calls != 1 {
		t.Errorf("Expected 1 notification, got %d", calls)
	}
}

func TestState_ConcurrentAccess(t *testing.T) {
	state := NewState(nil, 0)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func(val int) {
			defer wg.Done()
			state.Set(val)
		}(i)
		go func() {
			defer wg.Done()
			_ = state.Get()
		}()
	}
	wg.Wait()
}

func TestBatch(t *testing.T) {
	scope := NewScope()
	page := NewState(scope, 1)
	count := NewState(scope, 0)

	var observed [][2]int
	record := func(int) { observed = append(observed, [2]int{page.Get(), count.Get()}) }
	page.Subscribe(record)
	count.Subscribe(record)

	scope.RunBatch(func() {
		count.Set(5)
		page.Set(3)
		page.Set(4)
		if len(observed) != 0 {
			t.Errorf("Expected no notifications inside batch, got %v", observed)
		}
	})

	// One notification per changed state, each seeing the final values.
	if len(observed) != 2 {
		t.Fatalf("Expected 2 notifications, got %v", observed)
	}
	for _, o := range observed {
		if o != [2]int{4, 5} {
			t.Errorf("Expected listeners to see (4, 5), got %v", o)
		}
	}
}

func TestBatch_Nested(t *testing.T) {
	scope := NewScope()
	s := NewState(scope, 0)
	calls := 0
	s.Subscribe(func(int) { calls++ })

	scope.RunBatch(func() {
		scope.RunBatch(func() { s.Set(1) })
		if calls != 0 {
			t.Errorf("Expected inner batch to defer to the outer one")
		}
		s.Set(2)
	})
	if calls != 1 {
		t.Errorf("Expected 1 notification, got %d", calls)
	}
}

func TestComputed(t *testing.T) {
	page := NewState(nil, 1)
	count := NewState(nil, 10)

	computes := 0
	label := NewComputed(func() [2]int {
		computes++
		return [2]int{page.Get(), count.Get()}
	}, page, count)

	if got := label.Get(); got != [2]int{1, 10} {
		t.Errorf("Expected (1, 10), got %v", got)
	}
	_ = label.Get()
	if computes != 1 {
		t.Errorf("Expected memoized value, computed %d times", computes)
	}

	var pushed [2]int
	label.Subscribe(func(v [2]int) { pushed = v })
	page.Set(2)
	if pushed != [2]int{2, 10} {
		t.Errorf("Expected subscriber to receive (2, 10), got %v", pushed)
	}
}

func BenchmarkState_Set(b *testing.B) {
	state := NewState(nil, 0)
	state.Subscribe(func(int) {})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		state.Set(i)
	}
}
