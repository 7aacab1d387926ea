// Package viewer implements the viewport and navigation controller of an
// embeddable document viewer.
//
// The controller decides when the engine's viewer instance has to be
// rebuilt, loads documents (discarding superseded loads), clamps and applies
// page navigation, and derives the render scale from the scale mode, the
// zoom factor and the host's viewport. Hosts feed it property changes
// through Update or the Set* helpers and observe it through Subscribe and
// the reactive signals.
//
// A Controller is not safe for concurrent use. Every method must be called
// on the Executor given to New; asynchronous work resumes there too.
package viewer

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/recera/pdfviewer/pkg/engine"
	"github.com/recera/pdfviewer/pkg/reactive"
	"github.com/recera/pdfviewer/pkg/scale"
)

// Executor runs posted functions one at a time on the controller's thread.
// scheduler.Loop implements it.
type Executor interface {
	Post(fn func())
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.log = l.With().Str("component", "viewer").Logger() }
}

// WithContext sets the context passed to engine fetches. Close cancels a
// context derived from it.
func WithContext(ctx context.Context) Option {
	return func(c *Controller) { c.ctx = ctx }
}

// Controller is the viewport and navigation controller.
type Controller struct {
	eng    engine.Engine
	exec   Executor
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	cfg         Config
	initialized bool
	closed      bool

	lifecycle lifecycle
	loader    sequencer
	scaler    scaler
	doc       *documentHandle

	scope      *reactive.Scope
	page       *reactive.State[int]
	pageCount  *reactive.State[int]
	title      *reactive.State[string]
	loading    *reactive.State[bool]
	resolved   *reactive.State[float64]
	documentID *reactive.State[uint64]
	pageLabel  *reactive.Computed[string]

	events Emitter
}

// New creates a controller. No viewer instance exists until the first
// Update.
func New(eng engine.Engine, host engine.Host, exec Executor, opts ...Option) *Controller {
	scope := reactive.NewScope()
	c := &Controller{
		eng:        eng,
		exec:       exec,
		log:        zerolog.Nop(),
		ctx:        context.Background(),
		cfg:        DefaultConfig(),
		scope:      scope,
		page:       reactive.NewState(scope, 1),
		pageCount:  reactive.NewState(scope, 0),
		title:      reactive.NewState(scope, ""),
		loading:    reactive.NewState(scope, false),
		resolved:   reactive.NewState(scope, 0.0),
		documentID: reactive.NewState(scope, uint64(0)),
	}
	c.pageLabel = reactive.NewComputed(func() string {
		n := c.pageCount.Get()
		if n == 0 {
			return ""
		}
		return fmt.Sprintf("%d / %d", c.page.Get(), n)
	}, c.page, c.pageCount)
	for _, o := range opts {
		o(c)
	}
	c.ctx, c.cancel = context.WithCancel(c.ctx)
	c.lifecycle = lifecycle{eng: eng, host: host, log: c.log}
	return c
}

// Update applies a new configuration. Changes are processed in a fixed
// order: viewer instance rebuild, document load, navigation, then scale.
// The only error it returns is a failure to build the viewer instance (or
// ErrClosed); load failures are reported through EventError. After a failed
// rebuild every later Update tries again.
func (c *Controller) Update(next Config) error {
	if c.closed {
		return ErrClosed
	}
	next = next.normalize()
	ch := diff(c.cfg, next, !c.initialized)
	if c.initialized && c.lifecycle.instance == nil {
		// The last rebuild failed; retry it with whatever layout is current.
		ch.layout = true
	}
	if !ch.any() {
		return nil
	}
	c.cfg = next
	c.initialized = true

	var err error
	c.scope.RunBatch(func() {
		err = c.apply(ch)
	})
	return err
}

// apply processes ch. A failed rebuild leaves the controller without an
// instance; the remaining changes are still applied and the next Update
// retries the rebuild.
func (c *Controller) apply(ch changes) error {
	var err error
	if ch.layout {
		var doc engine.Document
		if c.doc != nil {
			doc = c.doc.doc
		}
		var rebuilt bool
		rebuilt, err = c.lifecycle.ensure(c.cfg.Layout, doc)
		if rebuilt {
			c.scaler.invalidate()
			if c.doc != nil {
				c.showPage(c.page.Get(), true)
			}
		}
	}

	if ch.source {
		c.load(c.cfg.Source)
	}

	switch {
	case ch.page && ch.source && c.cfg.Source != "":
		// The request targets the incoming document; bindDocument applies it.
		c.log.Debug().Int("page", c.cfg.Page).Msg("navigation deferred to incoming document")
	case ch.page:
		c.goToPage(c.cfg.Page)
	}

	if ch.scaleInputs() {
		c.updateScale()
	}
	return err
}

// set applies a single-property change through Update. The setters only
// fail if the viewer instance cannot be built, which they log.
func (c *Controller) set(mutate func(*Config)) {
	next := c.cfg
	mutate(&next)
	if err := c.Update(next); err != nil {
		c.log.Error().Err(err).Msg("update failed")
	}
}

// SetSource loads a new document, superseding any in-flight load.
func (c *Controller) SetSource(source string) {
	c.set(func(cfg *Config) { cfg.Source = source })
}

// SetPage navigates to page n, clamped to the document's page range.
func (c *Controller) SetPage(n int) {
	c.set(func(cfg *Config) { cfg.Page = n })
}

// SetLayout switches the layout mode, rebuilding the viewer instance.
func (c *Controller) SetLayout(mode engine.LayoutMode) {
	c.set(func(cfg *Config) { cfg.Layout = mode })
}

// SetScaleMode changes the scale policy.
func (c *Controller) SetScaleMode(mode scale.Mode) {
	c.set(func(cfg *Config) { cfg.Scale = mode })
}

// SetZoom changes the zoom multiplier. Values below MinZoom are raised to it.
func (c *Controller) SetZoom(zoom float64) {
	c.set(func(cfg *Config) { cfg.Zoom = zoom })
}

// Resize records a new viewport size sampled from the host.
func (c *Controller) Resize(size scale.Size) {
	c.set(func(cfg *Config) { cfg.Viewport = size })
}

// ZoomIn raises the zoom by ZoomStep. There is no ceiling.
func (c *Controller) ZoomIn() {
	c.SetZoom(c.cfg.Zoom + ZoomStep)
}

// ZoomOut lowers the zoom by ZoomStep, down to MinZoom.
func (c *Controller) ZoomOut() {
	z := c.cfg.Zoom - ZoomStep
	if z < MinZoom {
		z = MinZoom
	}
	c.SetZoom(z)
}

// Reload fetches the current source again. The loaded document stays on
// screen until the new copy is ready.
func (c *Controller) Reload() {
	if c.closed || c.cfg.Source == "" {
		return
	}
	c.scope.RunBatch(func() { c.load(c.cfg.Source) })
}

// Close releases the document and the viewer instance and discards every
// pending load. It is safe to call more than once.
func (c *Controller) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
	c.loader.token++
	if c.doc != nil {
		c.disposeDocument(c.doc)
		c.doc = nil
	}
	c.lifecycle.teardown()
	c.loading.Set(false)
	c.log.Debug().Msg("controller closed")
}

// Subscribe registers fn for load, error and change events.
func (c *Controller) Subscribe(fn func(Event)) (unsubscribe func()) {
	return c.events.Subscribe(fn)
}

// Config returns the current configuration. Page holds the applied page once
// a document is loaded, and the pending request before that.
func (c *Controller) Config() Config { return c.cfg }

// Source returns the current source locator.
func (c *Controller) Source() string { return c.cfg.Source }

// Page returns the applied 1-based page number.
func (c *Controller) Page() int { return c.page.Get() }

// PageCount returns the page count of the loaded document, or 0.
func (c *Controller) PageCount() int { return c.pageCount.Get() }

// Title returns the loaded document's title. It may lag the load event.
func (c *Controller) Title() string { return c.title.Get() }

// Layout returns the layout mode.
func (c *Controller) Layout() engine.LayoutMode { return c.cfg.Layout }

// ScaleMode returns the scale policy.
func (c *Controller) ScaleMode() scale.Mode { return c.cfg.Scale }

// Zoom returns the zoom multiplier.
func (c *Controller) Zoom() float64 { return c.cfg.Zoom }

// Scale returns the last resolved absolute scale, or 0 if none resolved yet.
func (c *Controller) Scale() float64 { return c.resolved.Get() }

// Loading reports whether a load is in flight.
func (c *Controller) Loading() bool { return c.loading.Get() }

// DocumentID identifies the loaded document; 0 means none. Each successful
// load gets a new ID.
func (c *Controller) DocumentID() uint64 { return c.documentID.Get() }

// PageLabel is "page / count", or empty with no document.
func (c *Controller) PageLabel() string { return c.pageLabel.Get() }

// Signals exposes the derived properties for hosts that re-render on change.
type Signals struct {
	Page       reactive.Signal[int]
	PageCount  reactive.Signal[int]
	Title      reactive.Signal[string]
	Loading    reactive.Signal[bool]
	Scale      reactive.Signal[float64]
	DocumentID reactive.Signal[uint64]
	PageLabel  reactive.Signal[string]
}

// Signals returns the controller's reactive properties. Notifications for
// changes made in one update arrive after the update completes.
func (c *Controller) Signals() Signals {
	return Signals{
		Page:       c.page,
		PageCount:  c.pageCount,
		Title:      c.title,
		Loading:    c.loading,
		Scale:      c.resolved,
		DocumentID: c.documentID,
		PageLabel:  c.pageLabel,
	}
}

// Snapshot is a serializable view of the controller state.
type Snapshot struct {
	Source     string  `json:"source"`
	Page       int     `json:"page"`
	PageCount  int     `json:"pageCount"`
	Title      string  `json:"title"`
	Layout     string  `json:"layout"`
	ScaleMode  string  `json:"scaleMode"`
	Zoom       float64 `json:"zoom"`
	Scale      float64 `json:"scale"`
	Loading    bool    `json:"loading"`
	DocumentID uint64  `json:"documentId"`
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	return Snapshot{
		Source:     c.cfg.Source,
		Page:       c.page.Get(),
		PageCount:  c.pageCount.Get(),
		Title:      c.title.Get(),
		Layout:     c.cfg.Layout.String(),
		ScaleMode:  c.cfg.Scale.String(),
		Zoom:       c.cfg.Zoom,
		Scale:      c.resolved.Get(),
		Loading:    c.loading.Get(),
		DocumentID: c.documentID.Get(),
	}
}
