// Package scheduler runs tasks one at a time on a single goroutine.
//
// A viewer controller is not safe for concurrent use. Hosts without an event
// loop of their own give it a Loop, and asynchronous work (document fetches,
// metadata, page measurement) resumes through Post.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// ErrStopped is returned by Do once the loop has stopped.
var ErrStopped = errors.New("scheduler: loop stopped")

// Task is a unit of work run on the loop goroutine.
type Task func()

// ErrorHandler handles panics raised by a task.
// Returns true to keep the loop running, false to stop it.
type ErrorHandler func(err error) bool

// Loop is a single-goroutine task queue.
type Loop struct {
	mu      sync.Mutex
	queue   []Task
	wake    chan struct{}
	done    chan struct{}
	running atomic.Bool
	stopped atomic.Bool
	ran     atomic.Uint64
	closed  sync.Once

	onError ErrorHandler
	log     zerolog.Logger
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the loop's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(lp *Loop) { lp.log = l.With().Str("component", "scheduler").Logger() }
}

// WithErrorHandler sets the panic handler.
func WithErrorHandler(h ErrorHandler) Option {
	return func(lp *Loop) { lp.onError = h }
}

// NewLoop creates a loop. It does nothing until Start or Run.
func NewLoop(opts ...Option) *Loop {
	l := &Loop{
		queue: make([]Task, 0, 64),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
		log:   zerolog.Nop(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Post queues fn. It never blocks and never drops a task; tasks posted
// after Stop are discarded.
func (l *Loop) Post(fn func()) {
	if fn == nil || l.stopped.Load() {
		return
	}
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
		// already signalled, the loop will drain the whole queue
	}
}

// Do runs fn on the loop and waits for it to finish.
// It must not be called from the loop goroutine.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	if l.stopped.Load() {
		return ErrStopped
	}
	finished := make(chan struct{})
	l.Post(func() {
		defer close(finished)
		fn()
	})
	select {
	case <-finished:
		return nil
	case <-l.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start runs the loop in a new goroutine.
func (l *Loop) Start() {
	if l.running.CompareAndSwap(false, true) {
		l.log.Debug().Msg("starting loop")
		go l.loop()
	}
}

// Run runs the loop on the calling goroutine until ctx is done or Stop is
// called.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return errors.New("scheduler: loop already running")
	}
	stop := context.AfterFunc(ctx, l.Stop)
	defer stop()
	l.loop()
	return ctx.Err()
}

// Stop stops the loop. Queued tasks that have not started are dropped.
func (l *Loop) Stop() {
	if l.stopped.CompareAndSwap(false, true) {
		select {
		case l.wake <- struct{}{}:
		default:
		}
		if !l.running.Load() {
			l.closed.Do(func() { close(l.done) })
		}
	}
}

// Done is closed once the loop has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// IsRunning returns whether the loop is running
func (l *Loop) IsRunning() bool {
	return l.running.Load() && !l.stopped.Load()
}

// Executed returns the number of tasks run so far.
func (l *Loop) Executed() uint64 {
	return l.ran.Load()
}

func (l *Loop) loop() {
	defer l.closed.Do(func() { close(l.done) })
	for {
		<-l.wake
		if l.stopped.Load() {
			l.log.Debug().Msg("loop ended")
			return
		}

		// Take everything queued so far as one batch.
		l.mu.Lock()
		batch := l.queue
		l.queue = make([]Task, 0, cap(batch))
		l.mu.Unlock()

		for i, task := range batch {
			if l.stopped.Load() {
				l.log.Debug().Int("dropped", len(batch)-i).Msg("loop stopped with queued tasks")
				return
			}
			if !l.run(task) {
				l.stopped.Store(true)
				return
			}
		}
	}
}

// run executes one task and reports whether the loop should keep going.
func (l *Loop) run(task Task) (keepGoing bool) {
	keepGoing = true
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("scheduler: task panic: %v\n%s", r, debug.Stack())
			l.log.Error().Err(err).Msg("task panicked")
			if l.onError != nil {
				keepGoing = l.onError(err)
			}
		}
	}()
	l.ran.Add(1)
	task()
	return keepGoing
}
