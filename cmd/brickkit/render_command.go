package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"brickkit/internal/api"
	"brickkit/internal/catalog"
	"brickkit/internal/config"
)

func newRenderCommand(ctx *commandContext) *cobra.Command {
	var modelID string
	var modelName string
	var jsonOutput bool
	var quiet bool

	cmd := &cobra.Command{
		Use:   "render <model-file>",
		Short: "Render instructions for a local .mpd or .ldr file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("resolve model path: %w", err)
			}
			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("model file: %w", err)
			}
			if info.IsDir() {
				return errors.New("model file: path is a directory")
			}

			model := localModel(path, modelID, modelName)
			app, err := ctx.openPipeline()
			if err != nil {
				return err
			}
			defer app.Close()

			runID := app.coordinator.NewRunID()
			stopProgress := followRun(app.registry, runID, progressWriter(cmd, quiet || jsonOutput))
			res := app.coordinator.RenderFileWithID(cmd.Context(), runID, path, model)
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
	cmd.Flags().StringVar(&modelID, "id", "", "Set number recorded for the model (defaults to the file name)")
	cmd.Flags().StringVar(&modelName, "name", "", "Display name recorded for the model")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the run result as JSON")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print progress")
	return cmd
}

func localModel(path, id, name string) catalog.Candidate {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	id = strings.TrimSpace(id)
	if id == "" {
		id = stem
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = stem
	}
	return catalog.Candidate{ID: id, DisplayName: name, Category: "local"}
}
