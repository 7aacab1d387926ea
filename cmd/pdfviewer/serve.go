package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/recera/pdfviewer/pkg/engine/rscpdf"
	"github.com/recera/pdfviewer/pkg/live"
	"github.com/recera/pdfviewer/pkg/scheduler"
	"github.com/recera/pdfviewer/pkg/viewer"
)

const shutdownTimeout = 5 * time.Second

func newServeCommand(opts *options) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve [source]",
		Short: "Drive the viewer over WebSocket",
		Long: `Run the controller behind a WebSocket endpoint at /live. Clients receive a
state snapshot on connect and after every change, plus load, error and
change events, and send commands such as next, prev, zoomIn or resize.
GET /state returns the current snapshot.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts, args, addr)
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (default from config, localhost:8090)")
	return cmd
}

func runServe(cmd *cobra.Command, opts *options, args []string, addr string) error {
	cfg, err := opts.resolve(cmd)
	if err != nil {
		return err
	}
	if addr == "" {
		addr = cfg.Addr()
	}
	start, err := initial(cfg, args)
	if err != nil {
		return err
	}

	log, closer, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loop := scheduler.NewLoop(
		scheduler.WithLogger(log),
		scheduler.WithErrorHandler(func(err error) bool {
			log.Error().Err(err).Msg("viewer task failed")
			return true
		}),
	)
	eng, cacheCloser := newEngine(cfg, log)
	defer cacheCloser.Close()
	ctrl := viewer.New(eng, &rscpdf.Host{}, loop, viewer.WithLogger(log), viewer.WithContext(ctx))

	// The loop is not running yet, so this goroutine may touch the controller.
	if err := ctrl.Update(start); err != nil {
		return err
	}
	srv := live.NewServer(ctrl, loop,
		live.WithLogger(log),
		live.WithCheckOrigin(checkOrigin(cfg.Server.Origins)),
	)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := loop.Run(loopCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}
		log.Info().Str("addr", ln.Addr().String()).Str("source", start.Source).Msg("serving viewer")
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if w := startWatcher(cfg, start.Source, func() { loop.Post(ctrl.Reload) }, log); w != nil {
		g.Go(func() error { return w.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return shutdown(httpSrv, srv, loop, ctrl, stopLoop, log)
	})

	return g.Wait()
}

// shutdown stops accepting clients, closes the controller on its loop and
// then stops the loop.
func shutdown(httpSrv *http.Server, srv *live.Server, loop *scheduler.Loop, ctrl *viewer.Controller, stopLoop func(), log zerolog.Logger) error {
	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	srv.Close()
	err := httpSrv.Shutdown(ctx)
	if doErr := loop.Do(ctx, ctrl.Close); doErr != nil {
		log.Warn().Err(doErr).Msg("controller did not close cleanly")
	}
	stopLoop()
	return err
}

// checkOrigin allows same-host requests and the configured origins.
func checkOrigin(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || set["*"] || set[origin] {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}
