package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0-preview"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	opts := &options{}

	var rootCmd = &cobra.Command{
		Use:   "pdfviewer",
		Short: "pdfviewer - an embeddable PDF viewport and navigation controller",
		Long: `pdfviewer drives a PDF rendering engine: it loads documents, discards
superseded loads, clamps page navigation and derives the render scale from
a scale mode, a zoom factor and the size of the host viewport.

Use "view" for the terminal host or "serve" to drive the viewer over WebSocket.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts.bind(rootCmd)

	// Add commands
	rootCmd.AddCommand(newViewCommand(opts))
	rootCmd.AddCommand(newServeCommand(opts))
	rootCmd.AddCommand(newVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pdfviewer %s\ncommit: %s\nbuilt:  %s\n", version, commit, date)
		},
	}
}
