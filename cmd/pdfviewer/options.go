package main

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/recera/pdfviewer/internal/cache"
	"github.com/recera/pdfviewer/internal/config"
	"github.com/recera/pdfviewer/internal/logging"
	"github.com/recera/pdfviewer/internal/watch"
	"github.com/recera/pdfviewer/pkg/engine/rscpdf"
	"github.com/recera/pdfviewer/pkg/viewer"
)

// options are the flags shared by view and serve. Flags that were set
// override the configuration file.
type options struct {
	configPath string
	layout     string
	scale      string
	zoom       float64
	page       int
	watch      bool
	logLevel   string
	logFormat  string
	logFile    string
	noCache    bool
}

func (o *options) bind(cmd *cobra.Command) {
	fs := cmd.PersistentFlags()
	fs.StringVarP(&o.configPath, "config", "c", "", "path to "+config.FileName)
	fs.StringVar(&o.layout, "layout", "", "layout mode: single or continuous")
	fs.StringVar(&o.scale, "scale", "", "scale mode: cover, contain, fit or a factor such as 1.5 or 150%")
	fs.Float64Var(&o.zoom, "zoom", 0, "zoom multiplier")
	fs.IntVar(&o.page, "page", 0, "initial page")
	fs.BoolVarP(&o.watch, "watch", "w", false, "reload local documents when they change")
	fs.StringVar(&o.logLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.StringVar(&o.logFormat, "log-format", "", "log format: console or json")
	fs.StringVar(&o.logFile, "log-file", "", "write logs to this file")
	fs.BoolVar(&o.noCache, "no-cache", false, "always download remote documents")
}

// resolve loads the configuration file and applies the flags that were set.
func (o *options) resolve(cmd *cobra.Command) (*config.Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(o.configPath, wd)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("layout") {
		cfg.Viewer.Layout = o.layout
	}
	if flags.Changed("scale") {
		cfg.Viewer.Scale = o.scale
	}
	if flags.Changed("zoom") {
		cfg.Viewer.Zoom = o.zoom
	}
	if flags.Changed("page") {
		cfg.Viewer.Page = o.page
	}
	if flags.Changed("watch") {
		cfg.Watch = o.watch
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = o.logFormat
	}
	if flags.Changed("log-file") {
		cfg.Log.File = o.logFile
	}
	if flags.Changed("no-cache") {
		cfg.Cache.Disabled = o.noCache
	}
	return cfg, cfg.Validate()
}

// initial builds the controller's first configuration.
func initial(cfg *config.Config, args []string) (viewer.Config, error) {
	vc, err := cfg.Initial()
	if err != nil {
		return vc, err
	}
	if len(args) > 0 {
		vc.Source = args[0]
	}
	return vc, nil
}

func newLogger(cfg *config.Config, stderr io.Writer) (zerolog.Logger, io.Closer, error) {
	return logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
		Stderr: stderr,
	})
}

// newEngine builds the PDF engine, backed by the download cache unless it
// is disabled. A cache that cannot be opened is logged and skipped.
func newEngine(cfg *config.Config, log zerolog.Logger) (*rscpdf.Engine, io.Closer) {
	opts := []rscpdf.Option{rscpdf.WithLogger(log)}
	if cc, ok := cfg.CacheOptions(); ok {
		cc.Logger = log
		c, err := cache.New(cc)
		if err == nil {
			return rscpdf.New(append(opts, rscpdf.WithCache(c))...), c
		}
		log.Warn().Err(err).Msg("download cache unavailable")
	}
	return rscpdf.New(opts...), io.NopCloser(nil)
}

// localPath returns the file path of a local source.
func localPath(source string) (string, bool) {
	switch {
	case source == "":
		return "", false
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		return "", false
	default:
		return strings.TrimPrefix(source, "file://"), true
	}
}

// startWatcher returns a watcher that calls reload when a local source
// changes, or nil when watching is off or not possible.
func startWatcher(cfg *config.Config, source string, reload func(), log zerolog.Logger) *watch.Watcher {
	path, ok := localPath(source)
	if !cfg.Watch || !ok {
		return nil
	}
	w, err := watch.New(path, reload, watch.WithLogger(log))
	if err != nil {
		log.Warn().Err(err).Str("file", path).Msg("not watching source")
		return nil
	}
	return w
}
