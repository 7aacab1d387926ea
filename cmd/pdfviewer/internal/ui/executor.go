package ui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// runMsg carries posted functions into the program's Update.
type runMsg struct{ fns []func() }

// Executor makes the bubbletea event loop the controller's thread. Posted
// functions are forwarded to the program in order and run inside Update.
type Executor struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
}

// NewExecutor creates an executor. Nothing runs until Forward is started.
func NewExecutor() *Executor {
	return &Executor{wake: make(chan struct{}, 1)}
}

// Post implements viewer.Executor. It never blocks.
func (e *Executor) Post(fn func()) {
	e.mu.Lock()
	e.queue = append(e.queue, fn)
	e.mu.Unlock()
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Forward delivers posted functions to send until ctx is done. Pass the
// program's Send method.
func (e *Executor) Forward(ctx context.Context, send func(tea.Msg)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.wake:
		}
		e.mu.Lock()
		fns := e.queue
		e.queue = nil
		e.mu.Unlock()
		if len(fns) > 0 {
			send(runMsg{fns: fns})
		}
	}
}
