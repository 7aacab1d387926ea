package viewer

import (
	"math"

	"github.com/recera/pdfviewer/pkg/engine"
	"github.com/recera/pdfviewer/pkg/scale"
)

const (
	// DefaultZoom is used when Config.Zoom is left at zero.
	DefaultZoom = 1.0
	// MinZoom is the zoom floor.
	MinZoom = 0.25
	// ZoomStep is the increment used by ZoomIn and ZoomOut.
	ZoomStep = 0.25
)

// Config is the full set of externally owned viewer properties.
type Config struct {
	Source   string
	Page     int
	Layout   engine.LayoutMode
	Scale    scale.Mode
	Zoom     float64
	Viewport scale.Size
}

// DefaultConfig mirrors the component's attribute defaults.
func DefaultConfig() Config {
	return Config{
		Page:   1,
		Layout: engine.SinglePage,
		Scale:  scale.Cover(),
		Zoom:   DefaultZoom,
	}
}

func (c Config) normalize() Config {
	if c.Page < 1 {
		c.Page = 1
	}
	switch {
	case c.Zoom == 0 || math.IsNaN(c.Zoom) || math.IsInf(c.Zoom, 0):
		c.Zoom = DefaultZoom
	case c.Zoom < MinZoom:
		c.Zoom = MinZoom
	}
	if math.IsNaN(c.Viewport.Width) {
		c.Viewport.Width = 0
	}
	if math.IsNaN(c.Viewport.Height) {
		c.Viewport.Height = 0
	}
	return c
}

// changes records which properties differ between two configs.
type changes struct {
	layout   bool
	source   bool
	page     bool
	scale    bool
	zoom     bool
	viewport bool
}

func (ch changes) any() bool {
	return ch.layout || ch.source || ch.page || ch.scale || ch.zoom || ch.viewport
}

func (ch changes) scaleInputs() bool {
	return ch.layout || ch.scale || ch.zoom || ch.viewport
}

// diff compares prev and next. On the first update every property counts
// as changed, except an empty source which has nothing to load.
func diff(prev, next Config, first bool) changes {
	if first {
		return changes{
			layout:   true,
			source:   next.Source != "",
			page:     true,
			scale:    true,
			zoom:     true,
			viewport: true,
		}
	}
	return changes{
		layout:   prev.Layout != next.Layout,
		source:   prev.Source != next.Source,
		page:     prev.Page != next.Page,
		scale:    prev.Scale != next.Scale,
		zoom:     prev.Zoom != next.Zoom,
		viewport: prev.Viewport != next.Viewport,
	}
}

func clampPage(n, pageCount int) int {
	if pageCount < 1 {
		pageCount = 1
	}
	if n < 1 {
		return 1
	}
	if n > pageCount {
		return pageCount
	}
	return n
}
