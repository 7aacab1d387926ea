package viewer

// goToPage applies a page request. Without a document the request is kept
// in cfg.Page and applied by the next successful load.
func (c *Controller) goToPage(requested int) int {
	c.cfg.Page = requested
	if c.doc == nil {
		c.log.Debug().Int("page", requested).Msg("navigation deferred until a document loads")
		return c.page.Get()
	}

	p := clampPage(requested, c.doc.pageCount)
	c.cfg.Page = p
	if c.showPage(p, false) {
		c.events.emit(Event{Kind: EventChange, Page: p, DocumentID: c.doc.id})
		c.updateScale()
	}
	return p
}

// showPage scrolls the instance to p and reports whether the applied page
// changed. force scrolls even when p is already current, which a freshly
// bound document or rebuilt instance needs. Without an instance only the
// page is recorded; the next rebuild scrolls to it.
func (c *Controller) showPage(p int, force bool) bool {
	if p == c.page.Get() && !force {
		return false
	}
	if inst := c.lifecycle.instance; inst != nil {
		inst.ScrollToPage(p)
	}
	return c.page.Set(p)
}

// NextPage moves one page forward. It does nothing on the last page.
func (c *Controller) NextPage() {
	if c.doc == nil {
		return
	}
	if cur := c.page.Get(); cur < c.doc.pageCount {
		c.SetPage(cur + 1)
	}
}

// PreviousPage moves one page back. It does nothing on the first page.
func (c *Controller) PreviousPage() {
	if c.doc == nil {
		return
	}
	if cur := c.page.Get(); cur > 1 {
		c.SetPage(cur - 1)
	}
}
