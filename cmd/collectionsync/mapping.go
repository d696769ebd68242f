package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"collection-sync/internal/core/fieldconv"
	"collection-sync/internal/mapping"
)

var mappingCmd = &cobra.Command{
	Use:   "mapping",
	Short: "Manage the field mapping file",
}

var mappingInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a mapping file with the default choice for every property",
	Long: `Fetch the source schema and write a YAML mapping file listing every
property with its default field type. Edit the file to disable properties,
pick other field types or change the slug field, then point mapping_file at it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		force, _ := cmd.Flags().GetBool("force")
		if out == "" {
			out = cfg.MappingFile
		}
		if out == "" {
			return errors.New("no output path: pass --out or set mapping_file")
		}
		if _, err := os.Stat(out); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", out)
		}

		ctx := cmd.Context()
		src, _, err := openSource(ctx, cfg)
		if err != nil {
			return err
		}
		sch, err := src.FetchSchema(ctx)
		if err != nil {
			return fmt.Errorf("fetch schema: %w", err)
		}
		if err := mapping.Default(fieldconv.Default, sch).Save(out); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote mapping for %d properties of %q to %s\n", len(sch.Properties), sch.DisplayName, out)
		return nil
	},
}

func init() {
	mappingInitCmd.Flags().StringP("out", "o", "", "Mapping file to write (defaults to mapping_file)")
	mappingInitCmd.Flags().Bool("force", false, "Overwrite an existing file")
	mappingCmd.AddCommand(mappingInitCmd)
	rootCmd.AddCommand(mappingCmd)
}
