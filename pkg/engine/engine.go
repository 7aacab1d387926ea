// Package engine describes the rendering engine the viewer controller drives.
//
// The engine owns parsing, layout and rasterization. The controller only
// fetches documents, asks pages for their natural size and tells a viewer
// instance which document to show, where to scroll and at what scale.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/recera/pdfviewer/pkg/scale"
)

// ErrPageRange is returned by Document.Page for a page outside [1, PageCount].
var ErrPageRange = errors.New("engine: page out of range")

// LayoutMode selects how many pages a viewer instance renders.
type LayoutMode uint8

const (
	// SinglePage renders one page at a time. It is much cheaper.
	SinglePage LayoutMode = iota
	// ContinuousPages renders every page on one scrolling surface.
	ContinuousPages
)

func (m LayoutMode) String() string {
	switch m {
	case SinglePage:
		return "single"
	case ContinuousPages:
		return "continuous"
	default:
		return fmt.Sprintf("LayoutMode(%d)", m)
	}
}

// ParseLayout accepts "single" and "continuous" ("multi-page" and "multi"
// are aliases of the latter).
func ParseLayout(s string) (LayoutMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "single", "single-page", "":
		return SinglePage, nil
	case "continuous", "multi-page", "multi", "multipage":
		return ContinuousPages, nil
	default:
		return SinglePage, fmt.Errorf("engine: invalid layout mode %q", s)
	}
}

// Metadata is the document information the controller surfaces.
type Metadata struct {
	Title string
}

// Page is a handle to one page of a loaded document.
type Page interface {
	// NaturalSize returns the page size in points at the given scale.
	NaturalSize(scale float64) scale.Size
}

// Document is a loaded document. It holds engine resources until Dispose.
type Document interface {
	PageCount() int
	Page(ctx context.Context, n int) (Page, error)
	Metadata(ctx context.Context) (Metadata, error)
	Dispose() error
}

// Attachment is the surface a viewer instance renders into.
type Attachment interface {
	ID() string
	Release()
}

// Host hands out fresh, empty attachment points.
type Host interface {
	NewAttachment() (Attachment, error)
}

// Viewer is a stateful engine object bound to one layout mode. It is never
// reconfigured for another mode; the controller destroys it and asks for a
// new one instead.
type Viewer interface {
	BindDocument(doc Document)
	ScrollToPage(n int)
	SetScale(v float64)
	CurrentPage() int
	PageCount() int
	Destroy()
}

// Engine fetches documents and creates viewer instances.
type Engine interface {
	FetchDocument(ctx context.Context, locator string) (Document, error)
	CreateViewer(mode LayoutMode, at Attachment) (Viewer, error)
}
