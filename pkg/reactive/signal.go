// Package reactive provides observable values for viewer properties.
package reactive

import (
	"sync"
)

// Signal is the read side of a reactive value.
type Signal[T any] interface {
	Get() T
	Subscribe(fn func(T)) (unsubscribe func())
}

// Scope groups states whose notifications can be batched together.
// A nil *Scope is valid and never batches.
type Scope struct {
	mu      sync.Mutex
	depth   int
	pending []notifier
	queued  map[notifier]bool
}

type notifier interface {
	notify()
}

// NewScope creates an empty scope.
func NewScope() *Scope {
	return &Scope{queued: make(map[notifier]bool)}
}

// RunBatch runs fn and delivers the notifications of every state changed
// inside it once, after fn returns. Listeners then see the final values of
// all states in the batch. Batches nest.
func (sc *Scope) RunBatch(fn func()) {
	if sc == nil {
		fn()
		return
	}
	sc.mu.Lock()
	sc.depth++
	sc.mu.Unlock()

	defer func() {
		sc.mu.Lock()
		sc.depth--
		var pending []notifier
		if sc.depth == 0 {
			pending = sc.pending
			sc.pending = nil
			sc.queued = make(map[notifier]bool)
		}
		sc.mu.Unlock()

		for _, n := range pending {
			n.notify()
		}
	}()

	fn()
}

// deferNotify reports whether n was queued for the end of the current batch.
func (sc *Scope) deferNotify(n notifier) bool {
	if sc == nil {
		return false
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.depth == 0 {
		return false
	}
	if !sc.queued[n] {
		sc.queued[n] = true
		sc.pending = append(sc.pending, n)
	}
	return true
}

// listeners is the subscriber list shared by State and Computed.
type listeners[T any] struct {
	mu     sync.Mutex
	nextID int
	fns    map[int]func(T)
	order  []int
}

func (l *listeners[T]) add(fn func(T)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]func(T))
	}
	id := l.nextID
	l.nextID++
	l.fns[id] = fn
	l.order = append(l.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.fns, id)
			for i, v := range l.order {
				if v == id {
					l.order = append(l.order[:i], l.order[i+1:]...)
					break
				}
			}
		})
	}
}

func (l *listeners[T]) snapshot() []func(T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]func(T), 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.fns[id])
	}
	return out
}

func (l *listeners[T]) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fns)
}

// State is a reactive value. Set only notifies when the value changes.
type State[T comparable] struct {
	value T
	mu    sync.RWMutex
	scope *Scope
	subs  listeners[T]
	deps  []func()
}

// NewState creates a new reactive state in scope (which may be nil).
func NewState[T comparable](scope *Scope, initial T) *State[T] {
	return &State[T]{value: initial, scope: scope}
}

// Get returns the current value.
func (s *State[T]) Get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Set updates the value and notifies subscribers if it changed.
// It reports whether the value changed.
func (s *State[T]) Set(value T) bool {
	s.mu.Lock()
	if s.value == value {
		s.mu.Unlock()
		return false
	}
	s.value = value
	s.mu.Unlock()

	if !s.scope.deferNotify(s) {
		s.notify()
	}
	return true
}

// Update atomically reads, modifies, and writes the value
func (s *State[T]) Update(fn func(T) T) bool {
	s.mu.Lock()
	old := s.value
	s.value = fn(old)
	changed := s.value != old
	s.mu.Unlock()

	if changed && !s.scope.deferNotify(s) {
		s.notify()
	}
	return changed
}

// Subscribe registers fn to be called with the new value after each change.
func (s *State[T]) Subscribe(fn func(T)) func() {
	return s.subs.add(fn)
}

// Subscribers returns the number of registered listeners.
func (s *State[T]) Subscribers() int {
	return s.subs.count()
}

func (s *State[T]) onChange(fn func()) {
	s.mu.Lock()
	s.deps = append(s.deps, fn)
	s.mu.Unlock()
}

func (s *State[T]) notify() {
	s.mu.RLock()
	v := s.value
	deps := append([]func(){}, s.deps...)
	s.mu.RUnlock()

	for _, d := range deps {
		d()
	}
	for _, fn := range s.subs.snapshot() {
		fn(v)
	}
}

// Dependency is anything a Computed can be recomputed from.
type Dependency interface {
	onChange(fn func())
}

// Computed represents a memoized computed value
type Computed[T any] struct {
	compute func() T
	value   T
	valid   bool
	mu      sync.Mutex
	subs    listeners[T]
}

// NewComputed creates a computed value invalidated whenever one of deps changes.
func NewComputed[T any](compute func() T, deps ...Dependency) *Computed[T] {
	c := &Computed[T]{compute: compute}
	for _, d := range deps {
		d.onChange(c.Invalidate)
	}
	return c
}

// Get returns the computed value, recalculating if necessary
func (c *Computed[T]) Get() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.valid {
		c.value = c.compute()
		c.valid = true
	}
	return c.value
}

// Invalidate marks the value stale and notifies subscribers with the
// recomputed value.
func (c *Computed[T]) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.mu.Unlock()

	subs := c.subs.snapshot()
	if len(subs) == 0 {
		return
	}
	v := c.Get()
	for _, fn := range subs {
		fn(v)
	}
}

// Subscribe registers fn to be called after each invalidation.
func (c *Computed[T]) Subscribe(fn func(T)) func() {
	return c.subs.add(fn)
}
