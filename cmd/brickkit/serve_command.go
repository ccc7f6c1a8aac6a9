package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"brickkit/internal/api"
	"brickkit/internal/history"
	"brickkit/internal/logging"
	"brickkit/internal/preflight"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string
	var maxRuns int
	var keep int
	var pruneEvery time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the run API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.openPipeline()
			if err != nil {
				return err
			}
			defer app.Close()

			if bind == "" {
				bind = app.cfg.Paths.APIBind
			}
			cfg := app.cfg
			srv, err := api.NewServer(bind, api.Deps{
				Runner:   app.coordinator,
				Registry: app.registry,
				Store:    app.store,
				Analyzer: app.analyzer,
				Health: func(ctx context.Context) []preflight.Result {
					return preflight.RunAll(ctx, cfg, preflight.Options{})
				},
			},
				api.WithToken(cfg.Paths.APIToken),
				api.WithMaxRuns(maxRuns),
				api.WithLogger(app.logger),
			)
			if err != nil {
				return err
			}
			if err := srv.Listen(); err != nil {
				return err
			}

			group, groupCtx := errgroup.WithContext(cmd.Context())
			group.Go(func() error {
				return srv.Serve(groupCtx)
			})
			if keep > 0 && pruneEvery > 0 {
				group.Go(func() error {
					pruneHistory(groupCtx, app.store, app.logger, keep, pruneEvery)
					return nil
				})
			}
			err = group.Wait()
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (defaults to paths.api_bind)")
	cmd.Flags().IntVar(&maxRuns, "max-runs", 2, "Maximum number of runs executing at once")
	cmd.Flags().IntVar(&keep, "keep", 500, "Runs kept in history by the periodic prune (0 disables pruning)")
	cmd.Flags().DurationVar(&pruneEvery, "prune-interval", time.Hour, "How often history is pruned")
	return cmd
}

// pruneHistory trims history to the newest keep runs every interval until
// ctx is cancelled.
func pruneHistory(ctx context.Context, store *history.Store, logger *slog.Logger, keep int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.Prune(ctx, keep)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logging.WarnWithContext(logger, "history prune failed", "history_prune_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "run history keeps growing until the next prune"),
				)
				continue
			}
			if removed > 0 {
				logger.Info("history pruned",
					logging.String(logging.FieldEventType, "history_pruned"),
					logging.Int64("removed", removed),
					logging.Int("kept", keep),
				)
			}
		}
	}
}
