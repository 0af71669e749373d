package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/sdpower/ccdash/internal/calculator"
	"github.com/sdpower/ccdash/internal/config"
	"github.com/sdpower/ccdash/internal/engine"
	"github.com/sdpower/ccdash/internal/logging"
	"github.com/sdpower/ccdash/internal/output"
	"github.com/sdpower/ccdash/internal/pricing"
	"github.com/sdpower/ccdash/internal/types"
)

// globalOptions holds the persistent flags shared by every subcommand
type globalOptions struct {
	configPath  string
	dataPath    string
	pricingFile string
	timezone    string
	format      string
	rangeName   string
	costMode    string
	since       string
	until       string
	recentDays  int
	workers     int
	debug       bool
	noColor     bool
	fast        bool
}

func (o *globalOptions) register(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&o.configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/ccdash/config.yaml)")
	flags.StringVar(&o.dataPath, "data-path", "", "Path to Claude data directory")
	flags.StringVar(&o.pricingFile, "pricing", "", "Pricing table override (YAML, TOML or JSON)")
	flags.StringVarP(&o.timezone, "timezone", "z", "", "Timezone for date grouping (e.g., UTC, America/New_York, Asia/Tokyo). Default: system timezone")
	flags.StringVarP(&o.format, "format", "f", "table", "Output format (table, json, csv)")
	flags.StringVarP(&o.rangeName, "range", "r", "", "Time range (all, 30d, 7d)")
	flags.StringVarP(&o.costMode, "mode", "m", "calculate", "Cost mode: calculate (from tokens), auto (recorded cost when present), display (recorded cost only)")
	flags.StringVar(&o.since, "since", "", "Start date (YYYY-MM-DD or YYYYMMDD)")
	flags.StringVar(&o.until, "until", "", "End date (YYYY-MM-DD or YYYYMMDD)")
	flags.IntVar(&o.recentDays, "recent-days", 0, "Days covered by the fast first pass")
	flags.IntVar(&o.workers, "workers", 0, "Files parsed in parallel")
	flags.BoolVar(&o.debug, "debug", false, "Show debug information")
	flags.BoolVar(&o.noColor, "no-color", false, "Disable colored output")
	flags.BoolVar(&o.fast, "fast", false, "Report after the fast pass without waiting for the full history")
}

// session is everything a subcommand needs once flags and config are merged
type session struct {
	cfg       config.Config
	root      string
	tr        types.TimeRange
	noColor   bool
	logger    *slog.Logger
	engine    *engine.Engine
	formatter *output.Formatter
}

// resolve layers flags over the config file over the environment and defaults
func (o *globalOptions) resolve(cmd *cobra.Command) (*session, error) {
	path := o.configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("data-path") {
		cfg.DataPath = o.dataPath
	}
	if flags.Changed("pricing") {
		cfg.PricingFile = o.pricingFile
	}
	if flags.Changed("timezone") {
		cfg.Timezone = o.timezone
	}
	if flags.Changed("range") {
		cfg.DefaultRange = o.rangeName
	}
	if flags.Changed("mode") {
		cfg.CostMode = o.costMode
	}
	if flags.Changed("recent-days") {
		cfg.RecentDays = o.recentDays
	}
	if flags.Changed("workers") {
		cfg.Workers = o.workers
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	tr, err := cfg.Range()
	if err != nil {
		return nil, err
	}
	if o.since != "" || o.until != "" {
		tr, err = types.ParseDateRange(o.since, o.until, loc)
		if err != nil {
			return nil, err
		}
	}

	mode, err := cfg.Mode()
	if err != nil {
		return nil, err
	}

	format, err := output.ParseFormat(o.format)
	if err != nil {
		return nil, err
	}

	table := pricing.Default()
	if cfg.PricingFile != "" {
		table, err = pricing.LoadFile(cfg.PricingFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load pricing: %w", err)
		}
	}

	noColor := o.noColor || os.Getenv("NO_COLOR") != "" ||
		!(isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()))

	logger := logging.New(cmd.ErrOrStderr(), o.debug)
	root := cfg.ResolveDataPath()
	logger.Debug("resolved settings", "config", path, "data_path", root, "timezone", loc.String(),
		"range", tr.String(), "cost_mode", mode, "recent_days", cfg.RecentDays, "workers", cfg.Workers, "pricing_models", table.Len())

	return &session{
		cfg:     cfg,
		root:    root,
		tr:      tr,
		noColor: noColor,
		logger:  logger,
		engine: engine.New(calculator.NewWithMode(table, mode), engine.Options{
			RecentDays: cfg.RecentDays,
			Workers:    cfg.Workers,
			Location:   loc,
			Logger:     logger,
		}),
		formatter: output.NewFormatter(output.FormatterOptions{
			Format:   format,
			NoColor:  noColor,
			Location: loc,
		}),
	}, nil
}
