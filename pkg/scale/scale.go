// Package scale maps a declarative scale mode onto an absolute render scale.
package scale

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// PointsToPixels converts PDF points (72 per inch) to CSS pixels (96 per inch).
	PointsToPixels = 96.0 / 72.0

	// BorderInset is the border the engine draws around each page, per side.
	BorderInset = 9.0

	// ScrollbarReserve keeps an overflow on one axis from forcing an
	// overflow on the other one.
	ScrollbarReserve = 16.0
)

// ErrNotReady is returned when the inputs cannot produce a finite scale yet.
var ErrNotReady = errors.New("scale: not ready")

// Kind tags a Mode.
type Kind uint8

const (
	KindAbsolute Kind = iota
	KindCover
	KindContain
	KindFit
)

// Size is a width/height pair. Units depend on the caller: points for
// natural page sizes, pixels for viewports.
type Size struct {
	Width  float64
	Height float64
}

// Empty reports whether either dimension is non-positive.
func (s Size) Empty() bool {
	return !(s.Width > 0) || !(s.Height > 0)
}

// Mode is the scale policy. The zero value is Absolute(1).
type Mode struct {
	Kind   Kind
	Factor float64 // only meaningful for KindAbsolute
}

// Absolute returns a fixed scale mode.
func Absolute(factor float64) Mode { return Mode{Kind: KindAbsolute, Factor: factor} }

// Cover scales the page so it fills the viewport on both axes.
func Cover() Mode { return Mode{Kind: KindCover} }

// Contain scales the page so it is fully visible.
func Contain() Mode { return Mode{Kind: KindContain} }

// Fit scales the page to the viewport width only.
func Fit() Mode { return Mode{Kind: KindFit} }

// NeedsPage reports whether resolving the mode needs a natural page size.
func (m Mode) NeedsPage() bool {
	return m.Kind != KindAbsolute
}

func (m Mode) factor() float64 {
	if m.Factor == 0 {
		return 1
	}
	return m.Factor
}

// String returns the attribute form of the mode.
func (m Mode) String() string {
	switch m.Kind {
	case KindCover:
		return "cover"
	case KindContain:
		return "contain"
	case KindFit:
		return "fit"
	default:
		return strconv.FormatFloat(m.factor(), 'g', -1, 64)
	}
}

// ParseMode parses "cover", "contain", "fit" or a positive number.
func ParseMode(s string) (Mode, error) {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "cover":
		return Cover(), nil
	case "contain":
		return Contain(), nil
	case "fit", "fit-width", "width":
		return Fit(), nil
	default:
		f, err := strconv.ParseFloat(strings.TrimSuffix(v, "%"), 64)
		if err != nil {
			return Mode{}, fmt.Errorf("scale: invalid mode %q", s)
		}
		if strings.HasSuffix(v, "%") {
			f /= 100
		}
		if !(f > 0) || math.IsInf(f, 0) {
			return Mode{}, fmt.Errorf("scale: factor must be positive, got %q", s)
		}
		return Absolute(f), nil
	}
}

// Resolve computes the absolute render scale.
//
// viewport is in pixels, natural in points at scale 1. Absolute modes ignore
// both. For the other modes a missing natural size or a viewport too small
// to hold the insets yields ErrNotReady, and the caller keeps whatever scale
// it applied before.
func Resolve(mode Mode, zoom float64, viewport, natural Size) (float64, error) {
	if !(zoom > 0) || math.IsInf(zoom, 0) {
		return 0, ErrNotReady
	}
	if mode.Kind == KindAbsolute {
		f := mode.factor()
		if !(f > 0) || math.IsInf(f, 0) {
			return 0, ErrNotReady
		}
		return f * zoom, nil
	}

	if natural.Empty() {
		return 0, ErrNotReady
	}
	pageW := natural.Width * PointsToPixels
	pageH := natural.Height * PointsToPixels

	if mode.Kind == KindFit {
		availW := viewport.Width - BorderInset*2
		if !(availW > 0) {
			return 0, ErrNotReady
		}
		return availW / pageW * zoom, nil
	}

	availW := viewport.Width - BorderInset*2 - ScrollbarReserve
	availH := viewport.Height - BorderInset*2 - ScrollbarReserve
	if !(availW > 0) || !(availH > 0) {
		return 0, ErrNotReady
	}
	fitW := availW / pageW
	fitH := availH / pageH

	switch mode.Kind {
	case KindCover:
		return math.Max(fitW, fitH) * zoom, nil
	case KindContain:
		return math.Min(fitW, fitH) * zoom, nil
	default:
		return 0, fmt.Errorf("scale: unknown mode kind %d", mode.Kind)
	}
}
