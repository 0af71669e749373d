package commands

import (
	"github.com/spf13/cobra"
)

func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "ccdash",
		Short: "Claude Code usage analytics",
		Long: `A CLI tool for analyzing Claude Code usage data from local JSONL files.

Recent logs are scanned first so results appear quickly; the full history is
read in the background and replaces them when done.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts.register(rootCmd)

	for _, spec := range reportSpecs {
		rootCmd.AddCommand(newReportCommand(opts, spec))
	}
	rootCmd.AddCommand(newMonitorCommand(opts))

	return rootCmd
}
