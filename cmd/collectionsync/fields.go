package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"collection-sync/internal/core/fieldconv"
	"collection-sync/internal/core/schema"
	"collection-sync/internal/mapping"
	"collection-sync/internal/ui"
)

var fieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "List the source properties and how they map to collection fields",
	Long: `Fetch the source schema and show every property with its native type,
whether it is synced, the field type it converts to and which one is the slug.

Use --match to narrow the list with a fuzzy query on property names.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		query, _ := cmd.Flags().GetString("match")
		ctx := cmd.Context()

		src, _, err := openSource(ctx, cfg)
		if err != nil {
			return err
		}
		sch, err := src.FetchSchema(ctx)
		if err != nil {
			return fmt.Errorf("fetch schema: %w", err)
		}
		mf, err := loadMapping(cfg)
		if err != nil {
			return err
		}
		mappings, slugID, err := resolveMapping(mf, sch)
		if err != nil {
			return err
		}

		if query != "" {
			names := make([]string, len(sch.Properties))
			for i, p := range sch.Properties {
				names[i] = p.Name
			}
			mc := mapping.DefaultMatch
			mc.MaxResults = len(names)
			var props []schema.SourceProperty
			for _, i := range mapping.Match(query, names, mc) {
				props = append(props, sch.Properties[i])
			}
			sch.Properties = props
		}
		fmt.Fprint(cmd.OutOrStdout(), ui.RenderFields(sch, mappings, slugID, fieldconv.Default.AllowedTypes))
		return nil
	},
}

func init() {
	fieldsCmd.Flags().StringP("match", "m", "", "Only show properties matching this fuzzy query")
	rootCmd.AddCommand(fieldsCmd)
}
