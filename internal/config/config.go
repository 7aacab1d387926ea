package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/recera/pdfviewer/internal/cache"
	"github.com/recera/pdfviewer/pkg/engine"
	"github.com/recera/pdfviewer/pkg/scale"
	"github.com/recera/pdfviewer/pkg/viewer"
)

// FileName is the configuration file looked up in the working directory.
const FileName = "pdfviewer.yaml"

// Config represents the pdfviewer.yaml configuration
type Config struct {
	// Initial viewer properties
	Viewer *ViewerConfig `yaml:"viewer,omitempty"`

	// Live server configuration
	Server *ServerConfig `yaml:"server,omitempty"`

	// Terminal host configuration
	TUI *TUIConfig `yaml:"tui,omitempty"`

	// Reload local sources when they change on disk
	Watch bool `yaml:"watch"`

	Log *LogConfig `yaml:"log,omitempty"`

	// Download cache for remote documents
	Cache *CacheConfig `yaml:"cache,omitempty"`
}

// ViewerConfig contains the initial controller properties
type ViewerConfig struct {
	// "single" or "continuous"
	Layout string `yaml:"layout,omitempty"`

	// "cover", "contain", "fit" or a number such as 1.5 or 150%
	Scale string `yaml:"scale,omitempty"`

	Zoom float64 `yaml:"zoom,omitempty"`

	Page int `yaml:"page,omitempty"`
}

// ServerConfig contains live server configuration
type ServerConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`

	// Allowed websocket origins; empty means same host only
	Origins []string `yaml:"origins,omitempty"`
}

// TUIConfig contains terminal host configuration
type TUIConfig struct {
	// Pixel size of one terminal cell, used to derive the viewport
	CellWidth  float64 `yaml:"cellWidth,omitempty"`
	CellHeight float64 `yaml:"cellHeight,omitempty"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	// trace, debug, info, warn, error
	Level string `yaml:"level,omitempty"`

	// console or json
	Format string `yaml:"format,omitempty"`

	// Optional log file; the terminal viewer logs nowhere else
	File string `yaml:"file,omitempty"`
}

// CacheConfig contains download cache configuration
type CacheConfig struct {
	Disabled bool `yaml:"disabled,omitempty"`

	// Defaults to the user cache directory
	Dir string `yaml:"dir,omitempty"`

	MaxSizeMB int `yaml:"maxSizeMB,omitempty"`

	// Entries older than this are dropped, e.g. 72h
	MaxAge string `yaml:"maxAge,omitempty"`
}

// Load loads configuration from path. An empty path looks for
// pdfviewer.yaml in dir; a missing file yields the defaults.
func Load(path, dir string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = filepath.Join(dir, FileName)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyDefaults(&config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &config, nil
}

// Save writes the configuration as YAML
func Save(config *Config, path string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Viewer: &ViewerConfig{
			Layout: "single",
			Scale:  "cover",
			Zoom:   viewer.DefaultZoom,
			Page:   1,
		},
		Server: &ServerConfig{
			Host: "localhost",
			Port: 8090,
		},
		TUI: &TUIConfig{
			CellWidth:  8,
			CellHeight: 16,
		},
		Watch: false,
		Log: &LogConfig{
			Level:  "info",
			Format: "console",
		},
		Cache: &CacheConfig{
			MaxSizeMB: 256,
			MaxAge:    "168h",
		},
	}
}

// applyDefaults applies default values to missing configuration
func applyDefaults(config *Config) {
	defaults := DefaultConfig()

	if config.Viewer == nil {
		config.Viewer = defaults.Viewer
	} else {
		if config.Viewer.Layout == "" {
			config.Viewer.Layout = defaults.Viewer.Layout
		}
		if config.Viewer.Scale == "" {
			config.Viewer.Scale = defaults.Viewer.Scale
		}
		if config.Viewer.Zoom == 0 {
			config.Viewer.Zoom = defaults.Viewer.Zoom
		}
		if config.Viewer.Page == 0 {
			config.Viewer.Page = defaults.Viewer.Page
		}
	}

	if config.Server == nil {
		config.Server = defaults.Server
	} else {
		if config.Server.Host == "" {
			config.Server.Host = defaults.Server.Host
		}
		if config.Server.Port == 0 {
			config.Server.Port = defaults.Server.Port
		}
	}

	if config.TUI == nil {
		config.TUI = defaults.TUI
	} else {
		if config.TUI.CellWidth == 0 {
			config.TUI.CellWidth = defaults.TUI.CellWidth
		}
		if config.TUI.CellHeight == 0 {
			config.TUI.CellHeight = defaults.TUI.CellHeight
		}
	}

	if config.Log == nil {
		config.Log = defaults.Log
	} else {
		if config.Log.Level == "" {
			config.Log.Level = defaults.Log.Level
		}
		if config.Log.Format == "" {
			config.Log.Format = defaults.Log.Format
		}
	}

	if config.Cache == nil {
		config.Cache = defaults.Cache
	} else {
		if config.Cache.MaxSizeMB == 0 {
			config.Cache.MaxSizeMB = defaults.Cache.MaxSizeMB
		}
		if config.Cache.MaxAge == "" {
			config.Cache.MaxAge = defaults.Cache.MaxAge
		}
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error
	if c.Viewer != nil {
		if _, err := engine.ParseLayout(c.Viewer.Layout); err != nil {
			errs = append(errs, err)
		}
		if _, err := scale.ParseMode(c.Viewer.Scale); err != nil {
			errs = append(errs, err)
		}
		if c.Viewer.Zoom < 0 {
			errs = append(errs, fmt.Errorf("viewer.zoom must be positive, got %v", c.Viewer.Zoom))
		}
		if c.Viewer.Page < 0 {
			errs = append(errs, fmt.Errorf("viewer.page must be positive, got %d", c.Viewer.Page))
		}
	}
	if c.Server != nil && (c.Server.Port < 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.TUI != nil && (c.TUI.CellWidth < 0 || c.TUI.CellHeight < 0) {
		errs = append(errs, errors.New("tui cell size must be positive"))
	}
	if c.Log != nil {
		switch c.Log.Format {
		case "", "console", "json":
		default:
			errs = append(errs, fmt.Errorf("log.format must be console or json, got %q", c.Log.Format))
		}
	}
	if c.Cache != nil {
		if c.Cache.MaxSizeMB < 0 {
			errs = append(errs, fmt.Errorf("cache.maxSizeMB must be positive, got %d", c.Cache.MaxSizeMB))
		}
		if c.Cache.MaxAge != "" {
			if _, err := time.ParseDuration(c.Cache.MaxAge); err != nil {
				errs = append(errs, fmt.Errorf("cache.maxAge: %w", err))
			}
		}
	}
	return errors.Join(errs...)
}

// Addr returns the live server listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Initial converts the file settings into the controller's initial
// configuration. The source and viewport are left for the host to fill in.
func (c *Config) Initial() (viewer.Config, error) {
	cfg := viewer.DefaultConfig()
	layout, err := engine.ParseLayout(c.Viewer.Layout)
	if err != nil {
		return cfg, err
	}
	mode, err := scale.ParseMode(c.Viewer.Scale)
	if err != nil {
		return cfg, err
	}
	cfg.Layout = layout
	cfg.Scale = mode
	cfg.Zoom = c.Viewer.Zoom
	cfg.Page = c.Viewer.Page
	return cfg, nil
}

// CacheOptions converts the cache section. ok is false when the cache is
// disabled.
func (c *Config) CacheOptions() (opts cache.Config, ok bool) {
	if c.Cache == nil || c.Cache.Disabled {
		return opts, false
	}
	opts = cache.DefaultConfig()
	if c.Cache.Dir != "" {
		opts.Dir = c.Cache.Dir
	}
	opts.MaxSize = int64(c.Cache.MaxSizeMB) << 20
	if d, err := time.ParseDuration(c.Cache.MaxAge); err == nil {
		opts.MaxAge = d
	}
	return opts, true
}
