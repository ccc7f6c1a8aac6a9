package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"brickkit/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the renderer, parts library, browser, model repository and LLM",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg, preflight.Options{})
			out := cmd.OutOrStdout()
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				status := "ok"
				switch {
				case !r.Passed && r.Optional:
					status = "warn"
				case !r.Passed:
					status = "fail"
				}
				rows = append(rows, []string{r.Name, status, yesNo(r.Optional), r.Detail})
			}
			fmt.Fprintln(out, renderTable(out, []string{"Check", "Status", "Optional", "Detail"}, rows, nil))
			if failed := preflight.Failed(results); failed > 0 {
				return fmt.Errorf("%d required check(s) failed", failed)
			}
			fmt.Fprintln(out, "All required checks passed")
			return nil
		},
	}
}
