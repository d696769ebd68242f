package main

import (
	"context"

	"github.com/spf13/cobra"

	"collection-sync/internal/api"
	coresync "collection-sync/internal/core/sync"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve an HTTP API that triggers sync runs",
	Long: `Start an HTTP server so a scheduler or webhook can trigger runs.

Endpoints:
  GET  /healthz     liveness and whether a run is in progress
  POST /runs        run a sync, body {"full": bool, "reset": bool} is optional
  GET  /runs/last   report or error of the most recent run

Only one run executes at a time; a trigger during a run gets 409.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = cfg.Serve.Addr
		}
		srv := api.New(func(ctx context.Context, opts api.RunOptions) (*coresync.Report, error) {
			return runSync(ctx, cfg, opts.Full, opts.Reset, nil)
		})
		return srv.ListenAndServe(cmd.Context(), addr)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (defaults to serve.addr)")
	rootCmd.AddCommand(serveCmd)
}
