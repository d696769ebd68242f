package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"collection-sync/internal/config"
	"collection-sync/internal/infra/logx"
)

var (
	cfgFile  string
	logLevel string
	verbose  bool

	cfg       config.Config
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "collectionsync",
	Short: "Mirror a Notion database, Airtable table or Google Sheet into a managed collection",
	Long: `collectionsync pulls the schema and records of an external table, converts
every mapped property to a collection field and writes the result into a
collection store (SQLite, Postgres or memory).

Runs are incremental: records unchanged since the last run are skipped,
records removed at the source are deleted from the collection.

Configuration is read from ~/.collectionsync.yaml and COLLECTIONSYNC_*
environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			cfg.Log.Level = logLevel
		}
		if verbose {
			cfg.Log.Verbose = true
		}
		return setupLogging(cfg.Log)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath(), "Config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log full request bodies without truncation")
}

func setupLogging(lc config.LogConfig) error {
	logx.SetMinLevel(logx.ParseLevel(lc.Level))
	logx.SetVerbose(lc.Verbose)
	logx.RegisterSecrets(cfg.Secrets())
	var w io.Writer = os.Stderr
	if lc.File != "" {
		f, err := logx.OpenFile(lc.File, logx.FileOptions{MaxSizeMB: lc.MaxSizeMB, MaxBackups: lc.MaxBackups})
		if err != nil {
			return err
		}
		logCloser = f
		w = f
	}
	logx.SetOutput(w)
	// Libraries logging through the standard logger end up as JSON lines too.
	log.SetFlags(0)
	log.SetOutput(logx.StdlogWriter(logx.LevelWarn, w))
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
