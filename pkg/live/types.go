package live

import "github.com/recera/pdfviewer/pkg/viewer"

// MessageType identifies a server frame.
type MessageType string

const (
	// FrameState carries a full snapshot. Sent on connect and after every
	// batch of property changes.
	FrameState MessageType = "state"
	FrameLoad  MessageType = "load"
	FrameError MessageType = "error"
	// FrameChange reports a user-visible page change.
	FrameChange MessageType = "change"
)

// Message is a server-to-client frame.
type Message struct {
	Type  MessageType      `json:"type"`
	State *viewer.Snapshot `json:"state,omitempty"`
	Page  int              `json:"page,omitempty"`
	Error string           `json:"error,omitempty"`
}

// Op names a client command.
type Op string

const (
	OpNext    Op = "next"
	OpPrev    Op = "prev"
	OpZoomIn  Op = "zoomIn"
	OpZoomOut Op = "zoomOut"
	OpPage    Op = "page"
	OpSource  Op = "source"
	OpLayout  Op = "layout"
	OpScale   Op = "scale"
	OpZoom    Op = "zoom"
	OpResize  Op = "resize"
	OpReload  Op = "reload"
)

// Command is a client-to-server frame.
type Command struct {
	Op     Op      `json:"op"`
	Page   int     `json:"page,omitempty"`
	Source string  `json:"source,omitempty"`
	Layout string  `json:"layout,omitempty"`
	Scale  string  `json:"scale,omitempty"`
	Zoom   float64 `json:"zoom,omitempty"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
}
