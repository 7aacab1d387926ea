// Package rscpdf is a text-layer rendering engine built on rsc.io/pdf.
//
// It parses documents, reports natural page sizes and metadata, and renders
// each page's text runs onto a Surface. It does not rasterize.
package rscpdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"rsc.io/pdf"

	"github.com/recera/pdfviewer/pkg/engine"
	"github.com/recera/pdfviewer/pkg/scale"
)

var (
	// ErrNotPDF is returned when the fetched bytes lack a PDF header.
	ErrNotPDF = errors.New("rscpdf: not a PDF file")
	// ErrDisposed is returned by a Document after Dispose.
	ErrDisposed = errors.New("rscpdf: document disposed")
)

// defaultPageSize is used when no MediaBox can be found (US Letter).
var defaultPageSize = scale.Size{Width: 612, Height: 792}

// DefaultMaxBytes caps documents fetched over HTTP.
const DefaultMaxBytes = 256 << 20

// Cache stores downloaded documents with their HTTP validators.
type Cache interface {
	Get(key string) ([]byte, map[string]string, bool)
	Put(key string, data []byte, meta map[string]string) error
}

// Engine implements engine.Engine.
type Engine struct {
	client   *http.Client
	maxBytes int64
	cache    Cache
	log      zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithHTTPClient sets the client used for http(s) locators.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) { e.client = c }
}

// WithMaxBytes caps the size of documents fetched over HTTP.
func WithMaxBytes(n int64) Option {
	return func(e *Engine) { e.maxBytes = n }
}

// WithCache revalidates http(s) documents against c instead of downloading
// them again.
func WithCache(c Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithLogger sets the engine's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l.With().Str("component", "rscpdf").Logger() }
}

// New creates an engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		client:   http.DefaultClient,
		maxBytes: DefaultMaxBytes,
		log:      zerolog.Nop(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// FetchDocument opens a local path, a file:// URL or an http(s) URL.
func (e *Engine) FetchDocument(ctx context.Context, locator string) (engine.Document, error) {
	var (
		ra     io.ReaderAt
		size   int64
		closer io.Closer
	)
	switch {
	case strings.HasPrefix(locator, "http://"), strings.HasPrefix(locator, "https://"):
		data, err := e.download(ctx, locator)
		if err != nil {
			return nil, err
		}
		ra, size = bytes.NewReader(data), int64(len(data))
	default:
		path := strings.TrimPrefix(locator, "file://")
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("rscpdf: open %s: %w", path, err)
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("rscpdf: stat %s: %w", path, err)
		}
		ra, size, closer = f, info.Size(), f
	}

	doc, err := open(ra, size, closer)
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, fmt.Errorf("rscpdf: %s: %w", locator, err)
	}
	e.log.Debug().Str("locator", locator).Int("pages", doc.pages).Int64("bytes", size).Msg("document parsed")
	return doc, nil
}

func (e *Engine) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("rscpdf: %w", err)
	}

	var cached []byte
	if e.cache != nil {
		if data, meta, ok := e.cache.Get(url); ok {
			cached = data
			if v := meta["etag"]; v != "" {
				req.Header.Set("If-None-Match", v)
			}
			if v := meta["last-modified"]; v != "" {
				req.Header.Set("If-Modified-Since", v)
			}
		}
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rscpdf: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified && cached != nil:
		e.log.Debug().Str("url", url).Msg("cached document still valid")
		return cached, nil
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("rscpdf: fetch %s: %s", url, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("rscpdf: read %s: %w", url, err)
	}
	if int64(len(data)) > e.maxBytes {
		return nil, fmt.Errorf("rscpdf: %s exceeds %d bytes", url, e.maxBytes)
	}

	if e.cache != nil {
		meta := map[string]string{
			"etag":          resp.Header.Get("ETag"),
			"last-modified": resp.Header.Get("Last-Modified"),
		}
		if meta["etag"] != "" || meta["last-modified"] != "" {
			if err := e.cache.Put(url, data, meta); err != nil {
				e.log.Warn().Err(err).Str("url", url).Msg("failed to cache document")
			}
		}
	}
	return data, nil
}

func open(ra io.ReaderAt, size int64, closer io.Closer) (doc *Document, err error) {
	header := make([]byte, 5)
	if _, err := ra.ReadAt(header, 0); err != nil || string(header) != "%PDF-" {
		return nil, ErrNotPDF
	}

	defer recoverMalformed(&err)
	r, err := pdf.NewReader(ra, size)
	if err != nil {
		return nil, err
	}
	return &Document{
		r:      r,
		closer: closer,
		pages:  r.NumPage(),
		text:   make(map[int][]string),
	}, nil
}

// Document implements engine.Document.
type Document struct {
	mu       sync.Mutex
	r        *pdf.Reader
	closer   io.Closer
	pages    int
	text     map[int][]string
	disposed bool
}

// PageCount implements engine.Document.
func (d *Document) PageCount() int { return d.pages }

// Page implements engine.Document.
func (d *Document) Page(ctx context.Context, n int) (_ engine.Page, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.disposed {
		return nil, ErrDisposed
	}
	if n < 1 || n > d.pages {
		return nil, fmt.Errorf("%w: %d of %d", engine.ErrPageRange, n, d.pages)
	}
	defer recoverMalformed(&err)
	return &Page{size: naturalSize(d.r.Page(n).V)}, nil
}

// Metadata implements engine.Document.
func (d *Document) Metadata(ctx context.Context) (_ engine.Metadata, err error) {
	if err := ctx.Err(); err != nil {
		return engine.Metadata{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.disposed {
		return engine.Metadata{}, ErrDisposed
	}
	defer recoverMalformed(&err)
	title := d.r.Trailer().Key("Info").Key("Title").Text()
	return engine.Metadata{Title: strings.TrimSpace(title)}, nil
}

// Dispose implements engine.Document. It closes the underlying file.
func (d *Document) Dispose() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.disposed {
		return nil
	}
	d.disposed = true
	d.text = nil
	if d.closer != nil {
		return d.closer.Close()
	}
	return nil
}

// Text returns the text lines of page n, top to bottom.
func (d *Document) Text(n int) (_ []string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.disposed {
		return nil, ErrDisposed
	}
	if n < 1 || n > d.pages {
		return nil, fmt.Errorf("%w: %d of %d", engine.ErrPageRange, n, d.pages)
	}
	if lines, ok := d.text[n]; ok {
		return lines, nil
	}
	defer recoverMalformed(&err)
	lines, err := pageLines(d.r.Page(n))
	if err != nil {
		return nil, err
	}
	d.text[n] = lines
	return lines, nil
}

// Page implements engine.Page.
type Page struct {
	size scale.Size
}

// NaturalSize implements engine.Page.
func (p *Page) NaturalSize(s float64) scale.Size {
	return scale.Size{Width: p.size.Width * s, Height: p.size.Height * s}
}

// naturalSize reads the page's MediaBox, walking up the page tree for
// inherited values, and swaps the axes for quarter-turn rotations.
func naturalSize(page pdf.Value) scale.Size {
	size := defaultPageSize
	if box, ok := inherited(page, "MediaBox"); ok && box.Kind() == pdf.Array && box.Len() == 4 {
		w := math.Abs(number(box.Index(2)) - number(box.Index(0)))
		h := math.Abs(number(box.Index(3)) - number(box.Index(1)))
		if w > 0 && h > 0 {
			size = scale.Size{Width: w, Height: h}
		}
	}
	if rot, ok := inherited(page, "Rotate"); ok {
		if r := ((int(number(rot)) % 360) + 360) % 360; r == 90 || r == 270 {
			size.Width, size.Height = size.Height, size.Width
		}
	}
	return size
}

func inherited(v pdf.Value, key string) (pdf.Value, bool) {
	// Depth bound guards against cyclic Parent links.
	for depth := 0; depth < 64 && !v.IsNull(); depth++ {
		if val := v.Key(key); !val.IsNull() {
			return val, true
		}
		v = v.Key("Parent")
	}
	return pdf.Value{}, false
}

func number(v pdf.Value) float64 {
	switch v.Kind() {
	case pdf.Integer:
		return float64(v.Int64())
	case pdf.Real:
		return v.Float64()
	default:
		return 0
	}
}

// recoverMalformed turns a rsc.io/pdf panic, raised on broken objects and
// cross-reference entries, into an error.
func recoverMalformed(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("malformed document: %v", r)
	}
}

// pageLines groups the page's text runs into lines by baseline.
func pageLines(p pdf.Page) (lines []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			lines, err = nil, fmt.Errorf("rscpdf: page content: %v", r)
		}
	}()
	if p.V.IsNull() || p.V.Key("Contents").IsNull() {
		return nil, nil
	}

	texts := p.Content().Text
	sort.SliceStable(texts, func(i, j int) bool {
		if math.Abs(texts[i].Y-texts[j].Y) > 1 {
			return texts[i].Y > texts[j].Y
		}
		return texts[i].X < texts[j].X
	})

	var (
		b     strings.Builder
		lastY = math.Inf(1)
		endX  float64
	)
	flush := func() {
		if s := strings.TrimRight(b.String(), " "); s != "" {
			lines = append(lines, s)
		}
		b.Reset()
	}
	for _, t := range texts {
		if math.Abs(t.Y-lastY) > 1 {
			flush()
			lastY = t.Y
		} else if t.X-endX > t.FontSize*0.2 {
			b.WriteByte(' ')
		}
		b.WriteString(t.S)
		endX = t.X + t.W
	}
	flush()
	return lines, nil
}
