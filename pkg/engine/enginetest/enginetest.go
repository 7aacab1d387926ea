// Package enginetest provides an in-memory engine for controller tests.
//
// Documents are registered by locator. A locator can be held so its fetch
// blocks until Release, which lets tests control the order in which
// overlapping loads resolve.
package enginetest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/recera/pdfviewer/pkg/engine"
	"github.com/recera/pdfviewer/pkg/scale"
)

// ErrNotFound is returned for locators that were never added.
var ErrNotFound = errors.New("enginetest: document not found")

// Letter is the natural size of a US Letter page in points.
var Letter = scale.Size{Width: 612, Height: 792}

// Spec describes a fake document.
type Spec struct {
	Pages int
	Title string
	// Size is the natural size of every page; Letter if zero.
	Size scale.Size
	// Sizes overrides Size for individual pages.
	Sizes map[int]scale.Size
	// MetadataErr makes Metadata fail.
	MetadataErr error
}

// Engine is a fake engine.Engine.
type Engine struct {
	mu      sync.Mutex
	specs   map[string]Spec
	fails   map[string]error
	gates   map[string]chan struct{}
	docs    map[string][]*Document
	viewers []*Viewer
	fetches []string

	// CreateErr, if set, makes CreateViewer fail.
	CreateErr error
}

// New returns an empty engine.
func New() *Engine {
	return &Engine{
		specs: make(map[string]Spec),
		fails: make(map[string]error),
		gates: make(map[string]chan struct{}),
		docs:  make(map[string][]*Document),
	}
}

// Add registers a document under locator.
func (e *Engine) Add(locator string, spec Spec) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.specs[locator] = spec
}

// Fail makes fetches of locator fail with err.
func (e *Engine) Fail(locator string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fails[locator] = err
}

// Hold makes fetches of locator block until Release.
func (e *Engine) Hold(locator string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gates[locator] = make(chan struct{})
}

// Release unblocks fetches of locator.
func (e *Engine) Release(locator string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if g, ok := e.gates[locator]; ok {
		close(g)
		delete(e.gates, locator)
	}
}

// Fetches returns the locators fetched so far, in order.
func (e *Engine) Fetches() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.fetches...)
}

// Documents returns every document created for locator.
func (e *Engine) Documents(locator string) []*Document {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Document(nil), e.docs[locator]...)
}

// LiveDocuments counts documents not yet disposed.
func (e *Engine) LiveDocuments() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, list := range e.docs {
		for _, d := range list {
			if !d.Disposed() {
				n++
			}
		}
	}
	return n
}

// Viewers returns every viewer created so far.
func (e *Engine) Viewers() []*Viewer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Viewer(nil), e.viewers...)
}

// LiveViewers returns the viewers not yet destroyed.
func (e *Engine) LiveViewers() []*Viewer {
	var live []*Viewer
	for _, v := range e.Viewers() {
		if !v.Destroyed() {
			live = append(live, v)
		}
	}
	return live
}

// FetchDocument implements engine.Engine.
func (e *Engine) FetchDocument(ctx context.Context, locator string) (engine.Document, error) {
	e.mu.Lock()
	e.fetches = append(e.fetches, locator)
	gate := e.gates[locator]
	e.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err, ok := e.fails[locator]; ok {
		return nil, err
	}
	spec, ok := e.specs[locator]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, locator)
	}
	doc := &Document{Locator: locator, spec: spec}
	e.docs[locator] = append(e.docs[locator], doc)
	return doc, nil
}

// CreateViewer implements engine.Engine.
func (e *Engine) CreateViewer(mode engine.LayoutMode, at engine.Attachment) (engine.Viewer, error) {
	if e.CreateErr != nil {
		return nil, e.CreateErr
	}
	v := &Viewer{Mode: mode, Attachment: at}
	e.mu.Lock()
	e.viewers = append(e.viewers, v)
	e.mu.Unlock()
	return v, nil
}

// Document is a fake engine.Document.
type Document struct {
	Locator string

	mu       sync.Mutex
	spec     Spec
	disposed bool
}

// PageCount implements engine.Document.
func (d *Document) PageCount() int { return d.spec.Pages }

// Page implements engine.Document.
func (d *Document) Page(_ context.Context, n int) (engine.Page, error) {
	if n < 1 || n > d.spec.Pages {
		return nil, fmt.Errorf("%w: %d", engine.ErrPageRange, n)
	}
	size := d.spec.Size
	if s, ok := d.spec.Sizes[n]; ok {
		size = s
	}
	if size.Empty() {
		size = Letter
	}
	return page{size: size}, nil
}

// Metadata implements engine.Document.
func (d *Document) Metadata(context.Context) (engine.Metadata, error) {
	if d.spec.MetadataErr != nil {
		return engine.Metadata{}, d.spec.MetadataErr
	}
	return engine.Metadata{Title: d.spec.Title}, nil
}

// Dispose implements engine.Document.
func (d *Document) Dispose() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.disposed {
		return errors.New("enginetest: document disposed twice")
	}
	d.disposed = true
	return nil
}

// Disposed reports whether Dispose was called.
func (d *Document) Disposed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disposed
}

type page struct{ size scale.Size }

func (p page) NaturalSize(s float64) scale.Size {
	return scale.Size{Width: p.size.Width * s, Height: p.size.Height * s}
}

// Viewer is a fake engine.Viewer that records every call.
type Viewer struct {
	Mode       engine.LayoutMode
	Attachment engine.Attachment

	mu        sync.Mutex
	doc       engine.Document
	binds     int
	scrolls   []int
	scales    []float64
	current   int
	destroyed bool
}

// BindDocument implements engine.Viewer.
func (v *Viewer) BindDocument(doc engine.Document) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.doc = doc
	v.binds++
	v.current = 1
}

// ScrollToPage implements engine.Viewer.
func (v *Viewer) ScrollToPage(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.scrolls = append(v.scrolls, n)
	v.current = n
}

// SetScale implements engine.Viewer.
func (v *Viewer) SetScale(s float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.scales = append(v.scales, s)
}

// CurrentPage implements engine.Viewer.
func (v *Viewer) CurrentPage() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// PageCount implements engine.Viewer.
func (v *Viewer) PageCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.doc == nil {
		return 0
	}
	return v.doc.PageCount()
}

// Destroy implements engine.Viewer.
func (v *Viewer) Destroy() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.destroyed = true
}

// Document returns the bound document.
func (v *Viewer) Document() engine.Document {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.doc
}

// Scrolls returns the pages scrolled to, in order.
func (v *Viewer) Scrolls() []int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]int(nil), v.scrolls...)
}

// Scales returns the scales applied, in order.
func (v *Viewer) Scales() []float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]float64(nil), v.scales...)
}

// Destroyed reports whether Destroy was called.
func (v *Viewer) Destroyed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.destroyed
}

// Host is a fake engine.Host.
type Host struct {
	mu   sync.Mutex
	next int
	all  []*Attachment

	// Err, if set, makes NewAttachment fail.
	Err error
}

// NewAttachment implements engine.Host.
func (h *Host) NewAttachment() (engine.Attachment, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Err != nil {
		return nil, h.Err
	}
	h.next++
	a := &Attachment{id: fmt.Sprintf("viewer-%d", h.next)}
	h.all = append(h.all, a)
	return a, nil
}

// Attachments returns every attachment handed out.
func (h *Host) Attachments() []*Attachment {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*Attachment(nil), h.all...)
}

// Attachment is a fake engine.Attachment.
type Attachment struct {
	id       string
	mu       sync.Mutex
	released bool
}

// ID implements engine.Attachment.
func (a *Attachment) ID() string { return a.id }

// Release implements engine.Attachment.
func (a *Attachment) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.released = true
}

// Released reports whether Release was called.
func (a *Attachment) Released() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.released
}
