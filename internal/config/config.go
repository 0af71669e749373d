// Package config reads the optional ccdash config file and resolves the
// usage data directory.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/sdpower/ccdash/internal/calculator"
	"github.com/sdpower/ccdash/internal/loader"
	"github.com/sdpower/ccdash/internal/types"
)

const (
	AppName              = "ccdash"
	DefaultWatchDebounce = 2 * time.Second
)

type Config struct {
	DataPath      string        `koanf:"data_path"`
	Timezone      string        `koanf:"timezone"`
	RecentDays    int           `koanf:"recent_days"`
	Workers       int           `koanf:"workers"`
	PricingFile   string        `koanf:"pricing_file"`
	DefaultRange  string        `koanf:"default_range"`
	CostMode      string        `koanf:"cost_mode"`
	WatchDebounce time.Duration `koanf:"watch_debounce"`
}

func Default() Config {
	return Config{
		RecentDays:    loader.DefaultRecentDays,
		Workers:       loader.DefaultWorkers,
		DefaultRange:  string(types.RangeAll),
		CostMode:      string(calculator.ModeCalculate),
		WatchDebounce: DefaultWatchDebounce,
	}
}

// DefaultPath is $XDG_CONFIG_HOME/ccdash/config.yaml, falling back to
// ~/.config/ccdash/config.yaml
func DefaultPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName, "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", AppName, "config.yaml")
}

// Load overlays the YAML file at path on the defaults. A missing file is not
// an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}

	cfg.DataPath = expandHome(cfg.DataPath)
	cfg.PricingFile = expandHome(cfg.PricingFile)
	return cfg, nil
}

func (c Config) Validate() error {
	if c.RecentDays < 0 {
		return fmt.Errorf("recent_days must not be negative: %w", types.ErrInvalidFormat)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative: %w", types.ErrInvalidFormat)
	}
	if c.WatchDebounce < 0 {
		return fmt.Errorf("watch_debounce must not be negative: %w", types.ErrInvalidFormat)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.Range(); err != nil {
		return err
	}
	if _, err := c.Mode(); err != nil {
		return err
	}
	return nil
}

// Location is the zone used for day buckets; empty means the local zone
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c Config) Range() (types.TimeRange, error) {
	return types.ParseTimeRange(c.DefaultRange)
}

func (c Config) Mode() (calculator.Mode, error) {
	return calculator.ParseMode(c.CostMode)
}

// ResolveDataPath returns the configured data path or the default one
func (c Config) ResolveDataPath() string {
	if c.DataPath != "" {
		return c.DataPath
	}
	return DefaultDataPath()
}

// DefaultDataPath honours CLAUDE_CONFIG_DIR, then the first of
// ~/.claude/projects and ~/.config/claude/projects that exists.
func DefaultDataPath() string {
	if dir := os.Getenv("CLAUDE_CONFIG_DIR"); dir != "" {
		return dir
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	claudePath := filepath.Join(homeDir, ".claude", "projects")
	if _, err := os.Stat(claudePath); err == nil {
		return claudePath
	}

	configPath := filepath.Join(homeDir, ".config", "claude", "projects")
	if _, err := os.Stat(configPath); err == nil {
		return configPath
	}

	return claudePath
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
