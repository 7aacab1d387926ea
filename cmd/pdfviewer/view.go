package main

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/recera/pdfviewer/cmd/pdfviewer/internal/ui"
	"github.com/recera/pdfviewer/pkg/engine/rscpdf"
	"github.com/recera/pdfviewer/pkg/scale"
	"github.com/recera/pdfviewer/pkg/viewer"
)

func newViewCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "view [source]",
		Short: "Open a document in the terminal",
		Long: `Open a PDF in the terminal. The source is a local path, a file:// URL or an
http(s) URL. Pages are shown as their text layer; the toolbar reports the
page, the zoom and the resolved render scale.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runView(cmd, opts, args)
		},
	}
}

func runView(cmd *cobra.Command, opts *options, args []string) error {
	cfg, err := opts.resolve(cmd)
	if err != nil {
		return err
	}
	start, err := initial(cfg, args)
	if err != nil {
		return err
	}

	// The terminal belongs to the UI; logs only go to a file.
	log, closer, err := newLogger(cfg, nil)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	exec := ui.NewExecutor()
	host := &rscpdf.Host{}
	eng, cacheCloser := newEngine(cfg, log)
	defer cacheCloser.Close()
	ctrl := viewer.New(eng, host, exec, viewer.WithLogger(log), viewer.WithContext(ctx))

	cell := scale.Size{Width: cfg.TUI.CellWidth, Height: cfg.TUI.CellHeight}
	model := ui.NewModel(ctrl, host, start, cell)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	go exec.Forward(ctx, p.Send)
	if w := startWatcher(cfg, start.Source, func() { exec.Post(ctrl.Reload) }, log); w != nil {
		go w.Run(ctx)
	}

	log.Info().Str("source", start.Source).Msg("starting terminal viewer")
	_, err = p.Run()
	return err
}
