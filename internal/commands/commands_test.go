package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdpower/ccdash/internal/logging"
	"github.com/sdpower/ccdash/internal/types"
	"github.com/sdpower/ccdash/internal/watch"
)

func logLine(ts time.Time, id, model string) string {
	return fmt.Sprintf(`{"timestamp":%q,"sessionId":"sess-%s","cwd":"/home/u/github/app","requestId":"req_%s","message":{"id":"msg_%s","model":%q,"usage":{"input_tokens":1000,"output_tokens":500,"cache_creation_input_tokens":200,"cache_read_input_tokens":100}}}`,
		ts.UTC().Format(time.RFC3339Nano), id, id, id, model)
}

func fixture(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "projects", "-home-u-github-app")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	lines := []string{
		logLine(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC), "a", "claude-sonnet-4-20250514"),
		logLine(time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC), "b", "claude-sonnet-4-20250514"),
		logLine(time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC), "c", "claude-opus-4-20250514"),
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "s.jsonl"), []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return root
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("NO_COLOR", "1")
	args = append(args, "--config", filepath.Join(t.TempDir(), "none.yaml"), "-z", "UTC")

	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestDailyJSON(t *testing.T) {
	out, err := run(t, "daily", "--data-path", fixture(t), "-f", "json")
	require.NoError(t, err)

	var got struct {
		Phase string `json:"phase"`
		Daily []struct {
			Date string `json:"date"`
			Cost string `json:"cost"`
		} `json:"daily"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "full", got.Phase)
	require.Len(t, got.Daily, 3)
	assert.Equal(t, "2025-06-01", got.Daily[0].Date)
	assert.Equal(t, "0.01128", got.Daily[0].Cost)
}

func TestCostModeFlag(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "projects", "app")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	line := strings.Replace(logLine(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC), "a", "claude-sonnet-4-20250514"),
		`"requestId"`, `"costUSD":1.25,"requestId"`, 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "s.jsonl"), []byte(line+"\n"), 0o644))

	dailyCost := func(args ...string) string {
		out, err := run(t, append([]string{"daily", "--data-path", root, "-f", "json"}, args...)...)
		require.NoError(t, err)
		var got struct {
			Daily []struct {
				Cost string `json:"cost"`
			} `json:"daily"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		require.Len(t, got.Daily, 1)
		return got.Daily[0].Cost
	}

	assert.Equal(t, "0.01128", dailyCost())
	assert.Equal(t, "1.25", dailyCost("--mode", "auto"))
	assert.Equal(t, "1.25", dailyCost("-m", "display"))

	_, err := run(t, "daily", "--data-path", root, "--mode", "guess")
	assert.ErrorIs(t, err, types.ErrInvalidFormat)
}

func TestCustomRange(t *testing.T) {
	out, err := run(t, "models", "--data-path", fixture(t), "-f", "csv", "--since", "20250602", "--until", "2025-06-02")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "claude-sonnet-4-20250514,Sonnet 4,"))
}

func TestSummaryTable(t *testing.T) {
	out, err := run(t, "summary", "--data-path", fixture(t))
	require.NoError(t, err)
	assert.Contains(t, out, "Usage Summary - All Time")
	assert.Contains(t, out, "Full history loaded")
	assert.NotContains(t, out, "\033[")
}

func TestRecentRangeIsEmptyForOldData(t *testing.T) {
	out, err := run(t, "projects", "--data-path", fixture(t), "-r", "7d")
	require.NoError(t, err)
	assert.Contains(t, out, "No usage data found")
}

func TestConfigFileSuppliesDefaults(t *testing.T) {
	root := fixture(t)
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("data_path: "+root+"\ndefault_range: all\n"), 0o644))

	t.Setenv("NO_COLOR", "1")
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"sessions", "--config", cfgPath, "-f", "csv", "-z", "UTC"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "sess-a")
}

func TestErrors(t *testing.T) {
	_, err := run(t, "daily", "--data-path", filepath.Join(t.TempDir(), "missing"))
	var de types.DiscoveryError
	assert.True(t, errors.As(err, &de))

	_, err = run(t, "daily", "--data-path", fixture(t), "-f", "xml")
	assert.ErrorContains(t, err, "unknown format")

	_, err = run(t, "daily", "--data-path", fixture(t), "-r", "fortnight")
	assert.ErrorIs(t, err, types.ErrInvalidTimeRange)

	_, err = run(t, "daily", "--data-path", fixture(t), "--since", "2025-06-03", "--until", "2025-06-01")
	assert.ErrorIs(t, err, types.ErrInvalidTimeRange)
}

type stoppedWatcher struct{ err error }

func (w stoppedWatcher) Run(context.Context) error { return w.err }

func TestRunWatcherLogsFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, false)

	runWatcher(context.Background(), stoppedWatcher{err: watch.ErrClosed}, logger)
	assert.Contains(t, buf.String(), "file watcher stopped")
	assert.Contains(t, buf.String(), watch.ErrClosed.Error())

	buf.Reset()
	runWatcher(context.Background(), stoppedWatcher{}, logger)
	assert.Empty(t, buf.String())
}
