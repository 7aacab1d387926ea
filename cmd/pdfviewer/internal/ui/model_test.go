package ui

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recera/pdfviewer/pkg/engine"
	"github.com/recera/pdfviewer/pkg/engine/enginetest"
	"github.com/recera/pdfviewer/pkg/engine/rscpdf"
	"github.com/recera/pdfviewer/pkg/scale"
	"github.com/recera/pdfviewer/pkg/viewer"
)

type harness struct {
	eng   *enginetest.Engine
	ctrl  *viewer.Controller
	model *Model
	msgs  chan tea.Msg
}

func newHarness(t *testing.T, source string) *harness {
	t.Helper()
	eng := enginetest.New()
	eng.Add("report.pdf", enginetest.Spec{Pages: 3, Title: "Quarterly"})
	eng.Fail("broken.pdf", errors.New("corrupt xref"))

	exec := NewExecutor()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	msgs := make(chan tea.Msg, 64)
	go exec.Forward(ctx, func(msg tea.Msg) { msgs <- msg })

	host := &rscpdf.Host{}
	ctrl := viewer.New(eng, host, exec)
	initial := viewer.DefaultConfig()
	initial.Source = source
	initial.Scale = scale.Absolute(1)
	m := NewModel(ctrl, host, initial, scale.Size{Width: 8, Height: 16})
	return &harness{eng: eng, ctrl: ctrl, model: m, msgs: msgs}
}

func (h *harness) send(msg tea.Msg) tea.Cmd {
	_, cmd := h.model.Update(msg)
	return cmd
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	h.send(tea.WindowSizeMsg{Width: 80, Height: 26})
	h.send(h.model.Init()())
}

// pump feeds posted continuations back into Update until cond holds.
func (h *harness) pump(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case msg := <-h.msgs:
			h.send(msg)
		case <-deadline:
			t.Fatal("condition not reached")
		}
	}
}

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestStartLoadsDocument(t *testing.T) {
	h := newHarness(t, "report.pdf")
	h.start(t)

	assert.Equal(t, scale.Size{Width: 640, Height: 384}, h.ctrl.Config().Viewport)
	h.pump(t, func() bool { return h.ctrl.PageCount() == 3 && h.ctrl.Title() != "" })

	view := h.model.View()
	assert.Contains(t, view, "Quarterly")
	assert.Contains(t, view, "1 / 3")
	assert.Contains(t, view, "zoom 100%")
}

func TestKeysDriveController(t *testing.T) {
	h := newHarness(t, "report.pdf")
	h.start(t)
	h.pump(t, func() bool { return h.ctrl.PageCount() == 3 })

	h.send(keyMsg("n"))
	assert.Equal(t, 2, h.ctrl.Page())
	h.send(tea.KeyMsg{Type: tea.KeyLeft})
	assert.Equal(t, 1, h.ctrl.Page())
	h.send(keyMsg("p"))
	assert.Equal(t, 1, h.ctrl.Page(), "no page before the first")

	h.send(keyMsg("+"))
	assert.Equal(t, 1.25, h.ctrl.Zoom())
	h.send(keyMsg("-"))
	h.send(keyMsg("-"))
	assert.Equal(t, 0.75, h.ctrl.Zoom())

	h.send(keyMsg("m"))
	assert.Equal(t, engine.ContinuousPages, h.ctrl.Layout())

	h.send(keyMsg("s"))
	assert.Equal(t, scale.Cover(), h.ctrl.ScaleMode())
	h.send(keyMsg("s"))
	assert.Equal(t, scale.Contain(), h.ctrl.ScaleMode())

	h.send(keyMsg("?"))
	assert.True(t, h.model.help.ShowAll)
}

func TestResizeAfterStart(t *testing.T) {
	h := newHarness(t, "")
	h.start(t)

	h.send(tea.WindowSizeMsg{Width: 100, Height: 42})
	assert.Equal(t, scale.Size{Width: 800, Height: 640}, h.ctrl.Config().Viewport)
	assert.Contains(t, h.model.View(), "no document")
}

func TestLoadErrorShown(t *testing.T) {
	h := newHarness(t, "broken.pdf")
	h.start(t)
	h.pump(t, func() bool { return !h.ctrl.Loading() })

	assert.Contains(t, h.model.View(), "corrupt xref")
}

func TestQuitClosesController(t *testing.T) {
	h := newHarness(t, "report.pdf")
	h.start(t)
	h.pump(t, func() bool { return h.ctrl.PageCount() == 3 })

	cmd := h.send(keyMsg("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
	assert.ErrorIs(t, h.ctrl.Update(viewer.DefaultConfig()), viewer.ErrClosed)
	assert.Empty(t, h.model.View())
}

func TestNextScaleCycle(t *testing.T) {
	mode := scale.Cover()
	seen := []scale.Kind{mode.Kind}
	for i := 0; i < 4; i++ {
		mode = nextScale(mode)
		seen = append(seen, mode.Kind)
	}
	assert.Equal(t, []scale.Kind{
		scale.KindCover, scale.KindContain, scale.KindFit, scale.KindAbsolute, scale.KindCover,
	}, seen)
}
