// Package ui is the terminal host of the viewer controller.
package ui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/recera/pdfviewer/pkg/engine"
	"github.com/recera/pdfviewer/pkg/engine/rscpdf"
	"github.com/recera/pdfviewer/pkg/scale"
	"github.com/recera/pdfviewer/pkg/viewer"
)

// chromeRows is the toolbar plus the help line.
const chromeRows = 2

// startMsg applies the initial configuration once the program runs.
type startMsg struct{}

// Model is the bubbletea model. Every method runs on the program's event
// loop, which is also the controller's executor.
type Model struct {
	ctrl    *viewer.Controller
	host    *rscpdf.Host
	initial viewer.Config
	cell    scale.Size

	keys     KeyMap
	help     help.Model
	viewport viewport.Model

	width   int
	height  int
	started bool

	surface   *rscpdf.Surface
	drawn     uint64
	shownPage int
	blank     bool

	err         error
	quitting    bool
	unsubscribe func()
}

// NewModel creates the model. cell is the pixel size of one terminal cell.
func NewModel(ctrl *viewer.Controller, host *rscpdf.Host, initial viewer.Config, cell scale.Size) *Model {
	m := &Model{
		ctrl:     ctrl,
		host:     host,
		initial:  initial,
		cell:     cell,
		keys:     DefaultKeyMap,
		help:     help.New(),
		viewport: viewport.New(0, 0),
	}
	m.unsubscribe = ctrl.Subscribe(m.onEvent)
	return m
}

func (m *Model) onEvent(ev viewer.Event) {
	switch ev.Kind {
	case viewer.EventError:
		m.err = ev.Err
	case viewer.EventLoad:
		m.err = nil
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return func() tea.Msg { return startMsg{} }
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case startMsg:
		m.started = true
		m.initial.Viewport = m.pixelViewport()
		if err := m.ctrl.Update(m.initial); err != nil {
			m.err = err
		}

	case runMsg:
		for _, fn := range msg.fns {
			fn()
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-chromeRows, 0)
		if m.started {
			m.ctrl.Resize(m.pixelViewport())
		}

	case tea.KeyMsg:
		if m.handleKey(msg) {
			if m.quitting {
				return m, tea.Quit
			}
			break
		}
		m.viewport, cmd = m.viewport.Update(msg)

	default:
		m.viewport, cmd = m.viewport.Update(msg)
	}

	m.sync()
	return m, cmd
}

// handleKey reports whether the key was a viewer command.
func (m *Model) handleKey(msg tea.KeyMsg) bool {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		m.unsubscribe()
		m.ctrl.Close()
	case key.Matches(msg, m.keys.Next):
		m.ctrl.NextPage()
	case key.Matches(msg, m.keys.Prev):
		m.ctrl.PreviousPage()
	case key.Matches(msg, m.keys.ZoomIn):
		m.ctrl.ZoomIn()
	case key.Matches(msg, m.keys.ZoomOut):
		m.ctrl.ZoomOut()
	case key.Matches(msg, m.keys.Layout):
		m.ctrl.SetLayout(toggleLayout(m.ctrl.Layout()))
	case key.Matches(msg, m.keys.Scale):
		m.ctrl.SetScaleMode(nextScale(m.ctrl.ScaleMode()))
	case key.Matches(msg, m.keys.Reload):
		m.ctrl.Reload()
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	default:
		return false
	}
	return true
}

// sync copies the surface into the viewport when the engine redrew it, and
// scrolls to the current page after navigation.
func (m *Model) sync() {
	s := m.host.Current()
	if s == nil {
		if m.surface != nil {
			m.viewport.SetContent("")
			m.surface = nil
		}
		return
	}
	if s == m.surface && s.Version() == m.drawn {
		return
	}
	lines, offset := s.Lines()
	m.blank = len(lines) == 0
	m.viewport.SetContent(strings.Join(lines, "\n"))
	if s != m.surface || m.ctrl.Page() != m.shownPage {
		m.viewport.SetYOffset(offset)
	}
	m.surface, m.drawn, m.shownPage = s, s.Version(), m.ctrl.Page()
}

// pixelViewport converts the content area from cells to pixels.
func (m *Model) pixelViewport() scale.Size {
	return scale.Size{
		Width:  float64(m.viewport.Width) * m.cell.Width,
		Height: float64(m.viewport.Height) * m.cell.Height,
	}
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	body := m.viewport.View()
	if m.surface == nil || m.blank {
		body = lipgloss.Place(m.width, m.viewport.Height, lipgloss.Center, lipgloss.Center,
			emptyStyle.Render(m.emptyMessage()))
	}
	footer := m.help.View(m.keys)
	if m.err != nil {
		footer = errorStyle.Render(m.err.Error())
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.toolbar(), body, footer)
}

func (m *Model) emptyMessage() string {
	switch {
	case m.ctrl.Loading():
		return "loading…"
	case m.ctrl.Source() == "":
		return "no document"
	default:
		return "nothing to show"
	}
}

func (m *Model) toolbar() string {
	segments := []string{titleStyle.Render(m.title())}

	if label := m.ctrl.PageLabel(); label != "" {
		segments = append(segments, segmentStyle.Render(label))
	}
	segments = append(segments,
		segmentStyle.Render(fmt.Sprintf("zoom %.0f%%", m.ctrl.Zoom()*100)),
		mutedStyle.Render(fmt.Sprintf("%s · %s", m.ctrl.ScaleMode(), m.ctrl.Layout())),
	)
	if s := m.ctrl.Scale(); s > 0 {
		segments = append(segments, segmentStyle.Render(fmt.Sprintf("×%.2f", s)))
	}
	if m.ctrl.Loading() {
		segments = append(segments, loadingStyle.Render("loading"))
	}
	return toolbarStyle.Width(m.width).MaxHeight(1).Render(lipgloss.JoinHorizontal(lipgloss.Top, segments...))
}

func (m *Model) title() string {
	if t := m.ctrl.Title(); t != "" {
		return t
	}
	if src := m.ctrl.Source(); src != "" {
		return filepath.Base(src)
	}
	return "pdfviewer"
}

func toggleLayout(mode engine.LayoutMode) engine.LayoutMode {
	if mode == engine.SinglePage {
		return engine.ContinuousPages
	}
	return engine.SinglePage
}

// nextScale cycles cover, contain, fit and 100%.
func nextScale(mode scale.Mode) scale.Mode {
	switch mode.Kind {
	case scale.KindCover:
		return scale.Contain()
	case scale.KindContain:
		return scale.Fit()
	case scale.KindFit:
		return scale.Absolute(1)
	default:
		return scale.Cover()
	}
}
