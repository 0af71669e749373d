package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdpower/ccdash/internal/calculator"
	"github.com/sdpower/ccdash/internal/config"
	"github.com/sdpower/ccdash/internal/types"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoadOverlaysFile(t *testing.T) {
	path := writeConfig(t, `
data_path: /data/claude
timezone: Asia/Tokyo
recent_days: 3
workers: 2
pricing_file: /etc/ccdash/prices.toml
default_range: 30d
cost_mode: auto
watch_debounce: 500ms
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/claude", cfg.DataPath)
	assert.Equal(t, 3, cfg.RecentDays)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, "/etc/ccdash/prices.toml", cfg.PricingFile)
	assert.Equal(t, 500*time.Millisecond, cfg.WatchDebounce)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", loc.String())

	tr, err := cfg.Range()
	require.NoError(t, err)
	assert.Equal(t, types.Last30Days, tr)

	mode, err := cfg.Mode()
	require.NoError(t, err)
	assert.Equal(t, calculator.ModeAuto, mode)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, "workers: 4\n"))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, config.Default().RecentDays, cfg.RecentDays)
	assert.Equal(t, config.DefaultWatchDebounce, cfg.WatchDebounce)

	mode, err := cfg.Mode()
	require.NoError(t, err)
	assert.Equal(t, calculator.ModeCalculate, mode)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"negative days", "recent_days: -1\n"},
		{"negative workers", "workers: -3\n"},
		{"bad timezone", "timezone: Mars/Olympus\n"},
		{"bad range", "default_range: fortnight\n"},
		{"bad cost mode", "cost_mode: guess\n"},
		{"bad yaml", "workers: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := config.Load(writeConfig(t, "data_path: ~/logs\n"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "logs"), cfg.DataPath)
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	assert.Equal(t, filepath.Join("/xdg", "ccdash", "config.yaml"), config.DefaultPath())

	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", home)
	assert.Equal(t, filepath.Join(home, ".config", "ccdash", "config.yaml"), config.DefaultPath())
}

func TestResolveDataPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("CLAUDE_CONFIG_DIR", "")

	// nothing exists: ~/.claude/projects
	assert.Equal(t, filepath.Join(home, ".claude", "projects"), config.Config{}.ResolveDataPath())

	alt := filepath.Join(home, ".config", "claude", "projects")
	require.NoError(t, os.MkdirAll(alt, 0o755))
	assert.Equal(t, alt, config.Config{}.ResolveDataPath())

	t.Setenv("CLAUDE_CONFIG_DIR", "/from/env")
	assert.Equal(t, "/from/env", config.Config{}.ResolveDataPath())

	// file value beats the environment
	assert.Equal(t, "/from/file", config.Config{DataPath: "/from/file"}.ResolveDataPath())
}
