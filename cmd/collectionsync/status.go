package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"collection-sync/internal/config"
	"collection-sync/internal/core/schema"
	coresync "collection-sync/internal/core/sync"
	"collection-sync/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what the last run stored on the collection",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Integration == "" {
			return config.ErrNoIntegration
		}
		in, err := schema.ParseIntegration(cfg.Integration)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		snk, closeSink, err := openSink(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeSink()

		rc, err := coresync.LoadRunContext(ctx, snk, in)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		switch c := rc.(type) {
		case coresync.NewRun:
			fmt.Fprintf(out, "Collection %q has not been synced yet.\n", cfg.Sink.Collection)
		case coresync.ErrorRun:
			fmt.Fprintf(out, "Collection %q cannot be synced from %s: %s\n", cfg.Sink.Collection, in, c.Message)
		case coresync.UpdateRun:
			ids, err := snk.ItemIDs(ctx)
			if err != nil {
				return err
			}
			fmt.Fprint(out, ui.RenderStatus(c.Metadata, len(ids)))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
