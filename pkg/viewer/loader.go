package viewer

import (
	"github.com/recera/pdfviewer/pkg/engine"
	"github.com/recera/pdfviewer/pkg/scale"
)

// documentHandle is the loaded document, owned by the controller.
type documentHandle struct {
	id        uint64
	source    string
	doc       engine.Document
	pageCount int
	title     string

	sizes     map[int]scale.Size
	measuring map[int]bool
	disposed  bool
}

// sequencer tracks load requests. token is the freshness check every
// asynchronous resume point compares against.
type sequencer struct {
	token  uint64
	nextID uint64
}

// load supersedes every earlier load and fetches source off the executor.
func (c *Controller) load(source string) {
	c.loader.token++
	tok := c.loader.token

	if source == "" {
		// Nothing to fetch; the bump above already discards in-flight loads.
		c.loading.Set(false)
		return
	}

	c.loading.Set(true)
	c.log.Debug().Uint64("token", tok).Str("source", source).Msg("loading document")

	ctx := c.ctx
	go func() {
		doc, err := c.eng.FetchDocument(ctx, source)
		c.exec.Post(func() { c.finishLoad(tok, source, doc, err) })
	}()
}

func (c *Controller) finishLoad(tok uint64, source string, doc engine.Document, err error) {
	if c.closed || tok != c.loader.token {
		if doc != nil {
			if derr := doc.Dispose(); derr != nil {
				c.log.Warn().Err(derr).Str("source", source).Msg("dispose superseded document")
			}
		}
		c.log.Debug().
			Uint64("token", tok).
			Uint64("current", c.loader.token).
			Str("source", source).
			Msg("discarding superseded load")
		return
	}

	c.scope.RunBatch(func() {
		c.loading.Set(false)
		if err == nil && doc == nil {
			err = errNilDocument
		}
		if err != nil {
			c.log.Warn().Err(err).Str("source", source).Msg("document load failed")
			c.events.emit(Event{Kind: EventError, Err: &LoadError{Source: source, Err: err}})
			if c.doc != nil {
				// A page requested together with the failed source now
				// applies to the document still shown.
				c.goToPage(c.cfg.Page)
			}
			return
		}
		c.bindDocument(tok, source, doc)
	})
}

// bindDocument swaps in a freshly loaded document. The previous document is
// disposed only now that its replacement is ready.
func (c *Controller) bindDocument(tok uint64, source string, doc engine.Document) {
	c.loader.nextID++
	h := &documentHandle{
		id:        c.loader.nextID,
		source:    source,
		doc:       doc,
		pageCount: doc.PageCount(),
		sizes:     make(map[int]scale.Size),
		measuring: make(map[int]bool),
	}

	old := c.doc
	c.doc = h
	if old != nil {
		c.disposeDocument(old)
	}

	if inst := c.lifecycle.instance; inst != nil {
		inst.BindDocument(doc)
	}
	c.scaler.invalidate()

	c.documentID.Set(h.id)
	c.pageCount.Set(h.pageCount)
	c.title.Set("")

	target := clampPage(c.cfg.Page, h.pageCount)
	c.cfg.Page = target
	changed := c.showPage(target, true)
	c.updateScale()

	c.log.Info().
		Uint64("document", h.id).
		Str("source", source).
		Int("pages", h.pageCount).
		Int("page", target).
		Msg("document loaded")

	c.events.emit(Event{Kind: EventLoad, Page: target, DocumentID: h.id})
	if changed {
		c.events.emit(Event{Kind: EventChange, Page: target, DocumentID: h.id})
	}

	c.resolveTitle(tok, h)
}

// resolveTitle fetches metadata after the document is already usable.
func (c *Controller) resolveTitle(tok uint64, h *documentHandle) {
	ctx := c.ctx
	go func() {
		md, err := h.doc.Metadata(ctx)
		c.exec.Post(func() {
			if c.closed || tok != c.loader.token || c.doc != h {
				return
			}
			if err != nil {
				c.log.Debug().Err(err).Uint64("document", h.id).Msg("metadata unavailable")
				return
			}
			h.title = md.Title
			c.title.Set(md.Title)
		})
	}()
}

func (c *Controller) disposeDocument(h *documentHandle) {
	if h.disposed {
		return
	}
	h.disposed = true
	if err := h.doc.Dispose(); err != nil {
		c.log.Warn().Err(err).Uint64("document", h.id).Msg("dispose document")
	}
}
