package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	coresync "collection-sync/internal/core/sync"
	"collection-sync/internal/infra/logx"
	"collection-sync/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync from the configured source into the collection",
	Long: `Fetch the source schema and records, convert them and write the collection.

Examples:
  collectionsync sync                   # interactive progress bar
  collectionsync sync --plain           # line-based progress for CI logs
  collectionsync sync --full            # re-evaluate every record
  collectionsync sync --reset           # ignore stored run metadata
  collectionsync sync --json --report out.json`,
	RunE: runSyncCmd,
}

func init() {
	syncCmd.Flags().Bool("plain", false, "Print progress lines instead of the interactive view")
	syncCmd.Flags().Bool("full", false, "Re-evaluate records even if unchanged since the last run")
	syncCmd.Flags().Bool("reset", false, "Ignore the metadata stored by previous runs")
	syncCmd.Flags().Bool("json", false, "Print the report as JSON")
	syncCmd.Flags().String("report", "", "Also write the JSON report to this file")
	rootCmd.AddCommand(syncCmd)
}

func runSyncCmd(cmd *cobra.Command, args []string) error {
	plain, _ := cmd.Flags().GetBool("plain")
	full, _ := cmd.Flags().GetBool("full")
	reset, _ := cmd.Flags().GetBool("reset")
	jsonOut, _ := cmd.Flags().GetBool("json")
	reportPath, _ := cmd.Flags().GetString("report")

	ctx := cmd.Context()
	fn := func(ctx context.Context, p coresync.Progress) (*coresync.Report, error) {
		return runSync(ctx, cfg, full, reset, p)
	}

	var rep *coresync.Report
	var err error
	switch {
	case jsonOut:
		rep, err = ui.RunPlain(ctx, io.Discard, fn)
	case plain || !isTerminal(os.Stdout):
		rep, err = ui.RunPlain(ctx, cmd.ErrOrStderr(), fn)
	default:
		// Log lines would tear the interactive view; keep them only when
		// they go to a file.
		if cfg.Log.File == "" {
			logx.SetOutput(io.Discard)
		}
		rep, err = ui.RunWithProgress(ctx, "Syncing "+cfg.Integration, os.Stdin, os.Stderr, fn)
	}
	if err != nil {
		return err
	}

	if reportPath != "" {
		if err := ui.Dump(reportPath, rep); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	if jsonOut {
		return ui.WriteJSON(cmd.OutOrStdout(), rep)
	}
	fmt.Fprint(cmd.OutOrStdout(), ui.RenderReport(rep))
	return nil
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
