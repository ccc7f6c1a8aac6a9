package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"brickkit/internal/analysis"
	"brickkit/internal/catalog"
	"brickkit/internal/search"
)

type planReport struct {
	Mode       string             `json:"mode"`
	Request    catalog.Request    `json:"request"`
	Strategies []catalog.Strategy `json:"strategies"`
}

func newPlanCommand(ctx *commandContext) *cobra.Command {
	var direct bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "plan <description>",
		Short: "Show the analyzed request and the search strategies for a description",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.TrimSpace(strings.Join(args, " "))
			if prompt == "" {
				return errors.New("a model description is required")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			analyzer := analysis.New(analysis.WithLogger(logger))
			if !direct {
				analyzer = newAnalyzer(cfg, logger)
			}
			req, mode := analyzer.Analyze(cmd.Context(), prompt)
			report := planReport{
				Mode:       string(mode),
				Request:    req,
				Strategies: search.Plan(req, prompt),
			}
			if jsonOutput {
				return writeJSON(cmd, report)
			}
			printPlan(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().BoolVar(&direct, "direct", false, "Use rule-based analysis only, even when an LLM is configured")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the plan as JSON")
	return cmd
}

func printPlan(w io.Writer, report planReport) {
	req := report.Request
	fmt.Fprintf(w, "Analysis:    %s\n", report.Mode)
	fmt.Fprintf(w, "Theme:       %s\n", req.Theme)
	fmt.Fprintf(w, "Colors:      %s\n", listOrDash(req.Colors))
	fmt.Fprintf(w, "Constraints: %s\n", listOrDash(req.Constraints))
	fmt.Fprintf(w, "Keywords:    %s\n", listOrDash(req.Keywords))
	if req.Semantic() {
		fmt.Fprintf(w, "Related:     %s\n", listOrDash(req.RelatedConcepts))
		fmt.Fprintf(w, "Hints:       %s\n", listOrDash(req.SearchHints))
	}
	rows := make([][]string, 0, len(report.Strategies))
	for i, s := range report.Strategies {
		rows = append(rows, []string{strconv.Itoa(i + 1), s.Label, s.Query})
	}
	fmt.Fprintln(w, renderTable(w, []string{"#", "Strategy", "Query"}, rows, []columnAlignment{alignRight}))
}

func listOrDash(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, ", ")
}
