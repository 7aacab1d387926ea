package viewer

import (
	"errors"

	"github.com/recera/pdfviewer/pkg/scale"
)

// scaleKey is every input the applied scale depends on.
type scaleKey struct {
	mode       scale.Mode
	zoom       float64
	viewport   scale.Size
	natural    scale.Size
	generation uint64
	document   uint64
}

// scaler caches the last scale applied to the viewer instance.
type scaler struct {
	applied bool
	key     scaleKey
	value   float64
}

func (s *scaler) invalidate() {
	s.applied = false
}

// updateScale resolves the scale for the current inputs and applies it if
// any input changed since the last application. When the inputs are not
// ready yet the previously applied scale stays in place.
func (c *Controller) updateScale() {
	inst := c.lifecycle.instance
	if inst == nil {
		return
	}

	key := scaleKey{
		mode:       c.cfg.Scale,
		zoom:       c.cfg.Zoom,
		viewport:   c.cfg.Viewport,
		generation: c.lifecycle.generation,
	}
	if c.doc != nil {
		key.document = c.doc.id
	}
	if c.cfg.Scale.NeedsPage() {
		if c.doc == nil {
			return
		}
		size, ok := c.naturalSize(c.page.Get())
		if !ok {
			return
		}
		key.natural = size
	}

	if c.scaler.applied && c.scaler.key == key {
		return
	}

	v, err := scale.Resolve(c.cfg.Scale, c.cfg.Zoom, c.cfg.Viewport, key.natural)
	if err != nil {
		if !errors.Is(err, scale.ErrNotReady) {
			c.log.Warn().Err(err).Msg("resolve scale")
		}
		return
	}
	c.resolved.Set(v)

	// Absolute scales resolve without a document but are only applied to an
	// instance that has one bound.
	if c.doc == nil {
		return
	}
	inst.SetScale(v)
	c.scaler.applied = true
	c.scaler.key = key
	c.scaler.value = v

	c.log.Debug().
		Str("mode", c.cfg.Scale.String()).
		Float64("zoom", c.cfg.Zoom).
		Float64("scale", v).
		Msg("scale applied")
}

// naturalSize returns the cached natural size of page n, or starts measuring
// it and reports false. The measurement resumes on the executor and is
// dropped if the document changed meanwhile.
func (c *Controller) naturalSize(n int) (scale.Size, bool) {
	h := c.doc
	if size, ok := h.sizes[n]; ok {
		return size, true
	}
	if h.measuring[n] {
		return scale.Size{}, false
	}
	h.measuring[n] = true

	ctx := c.ctx
	go func() {
		var size scale.Size
		page, err := h.doc.Page(ctx, n)
		if err == nil {
			size = page.NaturalSize(1)
		}
		c.exec.Post(func() {
			delete(h.measuring, n)
			if c.closed || c.doc != h {
				return
			}
			if err != nil {
				c.log.Warn().Err(err).Int("page", n).Msg("measure page")
				return
			}
			h.sizes[n] = size
			c.scope.RunBatch(c.updateScale)
		})
	}()
	return scale.Size{}, false
}
