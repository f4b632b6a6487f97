package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"sxvrs/internal/daemonctl"
	"sxvrs/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run preflight checks for directories, storage, the broker, and programs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			statuses := preflight.CheckSystemDeps(cmd.Context(), cfg)
			summary := daemonctl.BuildDependencySummary(statuses)

			if ctx.jsonOutput() {
				if err := writeJSON(cmd, map[string]any{
					"checks":             results,
					"dependencies":       statuses,
					"dependency_summary": summary,
				}); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				printSection(out, "Preflight", colorize)
				lines, _ := checkLines(results, colorize)
				for _, line := range lines {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out)
				printSection(out, "Dependencies", colorize)
				for _, line := range dependencyLines(statuses, summary, colorize) {
					fmt.Fprintln(out, line)
				}
			}

			failed := len(preflight.Failed(results))
			if failed > 0 || summary.MissingRequired > 0 {
				return errors.New("preflight checks failed")
			}
			return nil
		},
	}
}
