package rscpdf

import (
	"fmt"
	"strings"
	"sync"

	"github.com/recera/pdfviewer/pkg/engine"
)

// Surface is the attachment a viewer renders into: a list of text lines
// plus the line offset of the current page.
type Surface struct {
	id string

	mu       sync.Mutex
	lines    []string
	offset   int
	version  uint64
	released bool
	notify   func()
}

// ID implements engine.Attachment.
func (s *Surface) ID() string { return s.id }

// Release implements engine.Attachment.
func (s *Surface) Release() {
	s.mu.Lock()
	s.released = true
	s.lines = nil
	s.mu.Unlock()
}

// Released reports whether the surface was released.
func (s *Surface) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// Lines returns the rendered lines and the line where the current page starts.
func (s *Surface) Lines() ([]string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...), s.offset
}

// Version increases every time the surface is redrawn.
func (s *Surface) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

func (s *Surface) draw(lines []string, offset int) {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.lines, s.offset = lines, offset
	s.version++
	notify := s.notify
	s.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// Host hands out surfaces. The most recent unreleased one is Current.
type Host struct {
	mu      sync.Mutex
	next    int
	current *Surface

	// OnDraw, if set, is called after any surface is redrawn.
	OnDraw func()
}

// NewAttachment implements engine.Host.
func (h *Host) NewAttachment() (engine.Attachment, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	s := &Surface{id: fmt.Sprintf("pdf-viewer-%d", h.next), notify: h.OnDraw}
	h.current = s
	return s, nil
}

// Current returns the live surface, or nil.
func (h *Host) Current() *Surface {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil || h.current.Released() {
		return nil
	}
	return h.current
}

// CreateViewer implements engine.Engine. The attachment must come from a Host.
func (e *Engine) CreateViewer(mode engine.LayoutMode, at engine.Attachment) (engine.Viewer, error) {
	s, ok := at.(*Surface)
	if !ok {
		return nil, fmt.Errorf("rscpdf: unsupported attachment %T", at)
	}
	return &Viewer{mode: mode, surface: s, scale: 1}, nil
}

// Viewer implements engine.Viewer by drawing text onto a Surface. In
// continuous mode every page is drawn and the surface offset marks the
// current one.
type Viewer struct {
	mode    engine.LayoutMode
	surface *Surface

	mu        sync.Mutex
	doc       *Document
	page      int
	scale     float64
	destroyed bool
}

// BindDocument implements engine.Viewer.
func (v *Viewer) BindDocument(doc engine.Document) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.doc, _ = doc.(*Document)
	v.page = 1
	v.render()
}

// ScrollToPage implements engine.Viewer.
func (v *Viewer) ScrollToPage(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.doc == nil || n < 1 || n > v.doc.PageCount() {
		return
	}
	v.page = n
	v.render()
}

// SetScale implements engine.Viewer.
func (v *Viewer) SetScale(s float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if s == v.scale {
		return
	}
	v.scale = s
	v.render()
}

// CurrentPage implements engine.Viewer.
func (v *Viewer) CurrentPage() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.page
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
	v.doc = nil
}

func (v *Viewer) render() {
	if v.destroyed {
		return
	}
	if v.doc == nil {
		v.surface.draw(nil, 0)
		return
	}

	count := v.doc.PageCount()
	first, last := v.page, v.page
	if v.mode == engine.ContinuousPages {
		first, last = 1, count
	}

	var (
		lines  []string
		offset int
	)
	for n := first; n <= last; n++ {
		if n == v.page {
			offset = len(lines)
		}
		lines = append(lines, pageHeader(n, count, v.scale))
		text, err := v.doc.Text(n)
		switch {
		case err != nil:
			lines = append(lines, "  [unreadable page: "+err.Error()+"]")
		case len(text) == 0:
			lines = append(lines, "  [no text layer]")
		default:
			lines = append(lines, text...)
		}
		lines = append(lines, "")
	}
	v.surface.draw(lines, offset)
}

func pageHeader(n, count int, s float64) string {
	label := fmt.Sprintf(" page %d/%d @ %.0f%% ", n, count, s*100)
	pad := 0
	if w := 60 - len(label); w > 0 {
		pad = w / 2
	}
	return strings.Repeat("─", pad) + label + strings.Repeat("─", pad)
}
