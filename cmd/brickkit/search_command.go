package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"brickkit/internal/catalog"
)

type searchReport struct {
	Mode       string                    `json:"mode"`
	Request    catalog.Request           `json:"request"`
	Strategy   catalog.Strategy          `json:"strategy"`
	Accepted   bool                      `json:"accepted"`
	Candidates []catalog.ScoredCandidate `json:"candidates"`
}

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "search <description>",
		Short: "Search the model repository without downloading anything",
		Args:  cobra.MinimumNArgs(1),
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

			req, mode := app.analyzer.Analyze(cmd.Context(), prompt)
			outcome, err := app.searcher.Search(cmd.Context(), req, prompt)
			if err != nil {
				return err
			}
			candidates := outcome.Candidates
			if limit > 0 && len(candidates) > limit {
				candidates = candidates[:limit]
			}

			if jsonOutput {
				return writeJSON(cmd, searchReport{
					Mode:       string(mode),
					Request:    req,
					Strategy:   outcome.Strategy,
					Accepted:   outcome.Accepted,
					Candidates: candidates,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Strategy: %s (%q)", outcome.Strategy.Label, outcome.Strategy.Query)
			if !outcome.Accepted {
				fmt.Fprint(out, " [best effort]")
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, renderTable(out, []string{"#", "Set", "Name", "Theme", "Year", "Score"}, candidateRows(candidates),
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight}))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of candidates to show (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the search outcome as JSON")
	return cmd
}

func candidateRows(candidates []catalog.ScoredCandidate) [][]string {
	rows := make([][]string, 0, len(candidates))
	for i, c := range candidates {
		year := ""
		if c.ReleaseYear != nil {
			year = strconv.Itoa(*c.ReleaseYear)
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			c.ID,
			truncate(c.DisplayName, 48),
			c.Category,
			year,
			fmt.Sprintf("%.2f", c.Score),
		})
	}
	return rows
}
