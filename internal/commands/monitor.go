package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/sdpower/ccdash/internal/monitor"
	"github.com/sdpower/ccdash/internal/watch"
)

func newMonitorCommand(opts *globalOptions) *cobra.Command {
	var (
		interval int
		watching bool
	)

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Monitor Claude Code usage in real-time",
		Long: `Monitor Claude Code usage data in real-time with live dashboard.

Recent files are shown first while the full history loads in the background.
Press r to reload, t to cycle the time range and q to quit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.resolve(cmd)
			if err != nil {
				return err
			}
			defer s.engine.Close()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			if _, err := s.engine.Load(ctx, s.root); err != nil {
				return fmt.Errorf("failed to load usage data: %w", err)
			}

			if watching {
				w, err := watch.New(s.root, s.engine, watch.Options{
					Debounce: s.cfg.WatchDebounce,
					Logger:   s.logger,
				})
				if err != nil {
					return fmt.Errorf("failed to watch %s: %w", s.root, err)
				}
				go runWatcher(ctx, w, s.logger)
			}

			loc, err := s.cfg.Location()
			if err != nil {
				return err
			}
			if err := monitor.Run(ctx, s.engine, monitor.Options{
				Range:    s.tr,
				Interval: time.Duration(interval) * time.Second,
				NoColor:  s.noColor,
				Location: loc,
				Watching: watching,
			}); err != nil {
				return fmt.Errorf("failed to start monitor: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&interval, "interval", 5, "Update interval in seconds")
	cmd.Flags().BoolVar(&watching, "watch", false, "Reload when usage logs change")

	return cmd
}

type watchRunner interface {
	Run(ctx context.Context) error
}

// runWatcher blocks until w stops, logging why if it stopped on its own
func runWatcher(ctx context.Context, w watchRunner, logger *slog.Logger) {
	if err := w.Run(ctx); err != nil {
		logger.Error("file watcher stopped, press r to reload", "error", err)
	}
}
