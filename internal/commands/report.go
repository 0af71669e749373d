package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sdpower/ccdash/internal/output"
)

type reportSpec struct {
	use    string
	alias  []string
	short  string
	long   string
	report output.Report
}

var reportSpecs = []reportSpec{
	{
		use:    "summary",
		short:  "Show total cost and token usage",
		long:   `Show totals, top models and load diagnostics for the selected time range.`,
		report: output.ReportSummary,
	},
	{
		use:    "models",
		alias:  []string{"model"},
		short:  "Generate per-model usage report",
		long:   `Generate a usage report grouped by model for Claude Code usage data.`,
		report: output.ReportModels,
	},
	{
		use:    "projects",
		alias:  []string{"project"},
		short:  "Generate per-project usage report",
		long:   `Generate a usage report grouped by project directory.`,
		report: output.ReportProjects,
	},
	{
		use:    "daily",
		short:  "Generate daily usage report",
		long:   `Generate a daily usage report for Claude Code usage data.`,
		report: output.ReportDaily,
	},
	{
		use:    "sessions",
		alias:  []string{"session"},
		short:  "Generate session usage report",
		long:   `Generate a session-based usage report for Claude Code usage data.`,
		report: output.ReportSessions,
	},
}

func newReportCommand(opts *globalOptions, spec reportSpec) *cobra.Command {
	return &cobra.Command{
		Use:     spec.use,
		Aliases: spec.alias,
		Short:   spec.short,
		Long:    spec.long,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, opts, spec.report)
		},
	}
}

func runReport(cmd *cobra.Command, opts *globalOptions, report output.Report) error {
	s, err := opts.resolve(cmd)
	if err != nil {
		return err
	}
	defer s.engine.Close()

	ctx := cmd.Context()
	h, err := s.engine.Load(ctx, s.root)
	if err != nil {
		return fmt.Errorf("failed to load usage data: %w", err)
	}

	if !opts.fast {
		if err := h.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// the fast snapshot is still published; report it with the failure noted
			s.logger.Warn("full history unavailable, reporting recent files only", "error", err)
		}
	}

	snap := s.engine.Query(s.tr)
	out, err := s.formatter.Format(report, snap, s.engine.LoadStatus())
	if err != nil {
		return fmt.Errorf("failed to format report: %w", err)
	}

	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}
