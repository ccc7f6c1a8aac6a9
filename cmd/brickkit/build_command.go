package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"brickkit/internal/api"
	"brickkit/internal/pipeline"
)

func newBuildCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var quiet bool

	cmd := &cobra.Command{
		Use:   "build <description>",
		Short: "Find a model for a description and render its instructions",
		Long: "Analyze the description, search the model repository, pick a model,\n" +
			"download it and render step images, a parts list and an instruction document.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.TrimSpace(strings.Join(args, " "))
			if prompt == "" {
				return errors.New("a model description is required")
			}
			app, err := ctx.openPipeline()
			if err != nil {
				return err
			}
			defer app.Close()

			runID := app.coordinator.NewRunID()
			stopProgress := followRun(app.registry, runID, progressWriter(cmd, quiet || jsonOutput))
			res := app.coordinator.RunWithID(cmd.Context(), runID, prompt)
			stopProgress()

			if jsonOutput {
				if err := writeJSON(cmd, api.FromResult(res)); err != nil {
					return err
				}
			} else {
				printResult(cmd.OutOrStdout(), res)
			}
			return runError(res)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the run result as JSON")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print progress")
	return cmd
}

// progressWriter returns where stage progress goes, or nil when it should
// not be shown.
func progressWriter(cmd *cobra.Command, silent bool) io.Writer {
	if silent {
		return nil
	}
	return cmd.ErrOrStderr()
}

// followRun prints registry events for runID to w until the run finishes.
// The returned func waits for the printer to drain.
func followRun(registry *pipeline.Registry, runID string, w io.Writer) func() {
	if w == nil {
		return func() {}
	}
	registry.Begin(runID, time.Now())
	events, cancel, ok := registry.Subscribe(runID)
	if !ok {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		printEvents(w, events)
	}()
	return func() {
		cancel()
		<-done
	}
}

func printResult(w io.Writer, res *pipeline.Result) {
	if res == nil {
		return
	}
	fmt.Fprintf(w, "Run:       %s\n", res.RunID)
	fmt.Fprintf(w, "Status:    %s\n", colorStatus(w, res.Status()))
	if res.Strategy != nil {
		fmt.Fprintf(w, "Strategy:  %s (%q)\n", res.Strategy.Label, res.Strategy.Query)
	}
	if res.Choice != nil {
		c := res.Choice.Candidate
		fmt.Fprintf(w, "Model:     %s - %s (score %.2f, %s)\n", c.ID, c.DisplayName, c.Score, res.Choice.Kind)
	}
	if res.Variant != nil {
		fmt.Fprintf(w, "Variant:   %s\n", res.Variant.Label)
	}
	if res.Render != nil {
		fmt.Fprintf(w, "Steps:     %d\n", len(res.Render.StepPaths))
		if res.Render.BOMPath != "" {
			fmt.Fprintf(w, "Parts:     %s\n", res.Render.BOMPath)
		}
		if res.Render.DocumentPath != "" {
			fmt.Fprintf(w, "Document:  %s\n", res.Render.DocumentPath)
		}
	}
	if res.RunDir != "" {
		fmt.Fprintf(w, "Directory: %s\n", res.RunDir)
	}
	if res.Summary != "" {
		fmt.Fprintf(w, "Summary:   %s\n", res.Summary)
	}
}

func runError(res *pipeline.Result) error {
	if res == nil || res.State != pipeline.StateFailed {
		return nil
	}
	if res.FailedStage != "" {
		return fmt.Errorf("run %s failed while %s: %w", res.RunID, res.FailedStage, res.Err)
	}
	return fmt.Errorf("run %s failed: %w", res.RunID, res.Err)
}
