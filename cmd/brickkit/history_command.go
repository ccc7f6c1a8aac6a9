package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"brickkit/internal/api"
	"brickkit/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded runs",
	}
	historyCmd.AddCommand(newHistoryListCommand(ctx))
	historyCmd.AddCommand(newHistoryShowCommand(ctx))
	historyCmd.AddCommand(newHistoryDeleteCommand(ctx))
	historyCmd.AddCommand(newHistoryPruneCommand(ctx))
	return historyCmd
}

func (c *commandContext) withHistory(fn func(*history.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := history.Open(cfg.Paths.HistoryDB)
	if err != nil {
		return fmt.Errorf("open run history: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func newHistoryListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withHistory(func(store *history.Store) error {
				runs, err := store.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if jsonOutput {
					dtos := make([]api.Run, 0, len(runs))
					for _, run := range runs {
						dtos = append(dtos, api.FromHistoryRun(run))
					}
					return writeJSON(cmd, dtos)
				}
				out := cmd.OutOrStdout()
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs recorded")
					return nil
				}
				rows := make([][]string, 0, len(runs))
				for _, run := range runs {
					model := run.ModelID
					if run.ModelName != "" {
						model = run.ModelID + " " + run.ModelName
					}
					rows = append(rows, []string{
						shortID(run.RunID),
						run.StartedAt.Local().Format("2006-01-02 15:04"),
						colorStatus(out, run.Status),
						truncate(run.Prompt, 32),
						truncate(model, 32),
						strconv.Itoa(run.StepCount),
						run.Duration().Round(time.Second).String(),
					})
				}
				fmt.Fprintln(out, renderTable(out,
					[]string{"Run", "Started", "Status", "Prompt", "Model", "Steps", "Took"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print runs as JSON")
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := strings.TrimSpace(args[0])
			return ctx.withHistory(func(store *history.Store) error {
				run, err := store.Get(cmd.Context(), runID)
				if err != nil {
					return err
				}
				if run == nil {
					return fmt.Errorf("run %s not found", runID)
				}
				if jsonOutput {
					return writeJSON(cmd, api.FromHistoryRun(*run))
				}
				printRun(cmd.OutOrStdout(), *run)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the run as JSON")
	return cmd
}

func newHistoryDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Remove a run from history (artifacts are kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := strings.TrimSpace(args[0])
			return ctx.withHistory(func(store *history.Store) error {
				removed, err := store.Delete(cmd.Context(), runID)
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("run %s not found", runID)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed run %s\n", runID)
				return nil
			})
		},
	}
}

func newHistoryPruneCommand(ctx *commandContext) *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Drop all but the most recent runs from history",
		RunE: func(cmd *cobra.Command, args []string) error {
			if keep < 0 {
				return errors.New("--keep must not be negative")
			}
			return ctx.withHistory(func(store *history.Store) error {
				removed, err := store.Prune(cmd.Context(), keep)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d run(s), kept the newest %d\n", removed, keep)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 100, "Number of most recent runs to keep")
	return cmd
}

func printRun(w io.Writer, run history.Run) {
	fmt.Fprintf(w, "Run:       %s\n", run.RunID)
	fmt.Fprintf(w, "Prompt:    %s\n", run.Prompt)
	fmt.Fprintf(w, "Status:    %s (%s)\n", colorStatus(w, run.Status), run.State)
	if run.FailedStage != "" {
		fmt.Fprintf(w, "Failed at: %s\n", run.FailedStage)
	}
	if run.ErrorMessage != "" {
		fmt.Fprintf(w, "Error:     %s\n", run.ErrorMessage)
	}
	if run.AnalysisMode != "" {
		fmt.Fprintf(w, "Analysis:  %s\n", run.AnalysisMode)
	}
	if run.StrategyLabel != "" {
		fmt.Fprintf(w, "Strategy:  %s (%q)\n", run.StrategyLabel, run.StrategyQuery)
	}
	if run.ModelID != "" {
		fmt.Fprintf(w, "Model:     %s - %s (score %.2f, %s)\n", run.ModelID, run.ModelName, run.ModelScore, run.ChoiceKind)
	}
	if run.ChoiceReason != "" {
		fmt.Fprintf(w, "Reason:    %s\n", run.ChoiceReason)
	}
	if run.VariantLabel != "" {
		fmt.Fprintf(w, "Variant:   %s\n", run.VariantLabel)
	}
	fmt.Fprintf(w, "Steps:     %d\n", run.StepCount)
	if run.BOMPath != "" {
		fmt.Fprintf(w, "Parts:     %s\n", run.BOMPath)
	}
	if run.DocumentPath != "" {
		fmt.Fprintf(w, "Document:  %s\n", run.DocumentPath)
	}
	if run.RunDir != "" {
		fmt.Fprintf(w, "Directory: %s\n", run.RunDir)
	}
	fmt.Fprintf(w, "Started:   %s\n", run.StartedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(w, "Took:      %s\n", run.Duration().Round(time.Millisecond))
	if run.Summary != "" {
		fmt.Fprintf(w, "Summary:   %s\n", run.Summary)
	}
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
