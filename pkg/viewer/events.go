package viewer

import (
	"fmt"
	"sync"
)

// EventKind identifies a controller event.
type EventKind uint8

const (
	// EventLoad fires once a new document is bound and navigable.
	EventLoad EventKind = iota + 1
	// EventError fires when a load fails. Event.Err holds the cause.
	EventError
	// EventChange fires when the applied page number changes.
	EventChange
)

func (k EventKind) String() string {
	switch k {
	case EventLoad:
		return "load"
	case EventError:
		return "error"
	case EventChange:
		return "change"
	default:
		return fmt.Sprintf("EventKind(%d)", k)
	}
}

// Event is delivered to subscribers on the controller's executor.
type Event struct {
	Kind       EventKind
	Page       int
	DocumentID uint64
	Err        error
}

// Emitter fans events out to subscribers in subscription order.
type Emitter struct {
	mu    sync.Mutex
	next  int
	subs  map[int]func(Event)
	order []int
}

// Subscribe registers fn and returns a function that removes it.
func (e *Emitter) Subscribe(fn func(Event)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.subs == nil {
		e.subs = make(map[int]func(Event))
	}
	id := e.next
	e.next++
	e.subs[id] = fn
	e.order = append(e.order, id)

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if _, ok := e.subs[id]; !ok {
			return
		}
		delete(e.subs, id)
		for i, v := range e.order {
			if v == id {
				e.order = append(e.order[:i], e.order[i+1:]...)
				break
			}
		}
	}
}

func (e *Emitter) emit(ev Event) {
	e.mu.Lock()
	fns := make([]func(Event), 0, len(e.order))
	for _, id := range e.order {
		fns = append(fns, e.subs[id])
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
