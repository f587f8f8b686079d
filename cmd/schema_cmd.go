package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rowloom/rowloom/internal/config"
	"github.com/rowloom/rowloom/internal/schema"
	"github.com/rowloom/rowloom/internal/store"
)

var schemaOut string

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Introspect the store's schema",
	Long: `Schema connects to the configured store, discovers tables, columns,
keys and indexes, and prints the derived relations. With --out the raw
schema is written to a YAML file for offline use.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		in, ok := st.(store.Introspector)
		if !ok {
			return fmt.Errorf("store type %s cannot introspect its schema", cfg.Store.Type)
		}
		s, err := in.Introspect(ctx)
		if err != nil {
			return fmt.Errorf("introspecting schema: %w", err)
		}

		catalog := schema.NewCatalog(s)

		fmt.Println(titleStyle.Render("Derived relations"))
		for _, entity := range catalog.Entities() {
			rels := catalog.Relations(entity)
			if len(rels) == 0 {
				continue
			}
			fmt.Printf("  %s\n", entity)
			for _, rel := range rels {
				detail := rel.Related
				if rel.Kind == schema.KindManyToMany {
					detail = fmt.Sprintf("%s via %s", rel.Related, rel.JoinTable)
				}
				fmt.Println(dimStyle.Render(fmt.Sprintf("    %-20s %-14s -> %s", rel.Name, rel.Kind, detail)))
			}
		}

		if schemaOut != "" {
			if err := s.WriteYAML(schemaOut); err != nil {
				return err
			}
			fmt.Println(successStyle.Render("Schema written to " + schemaOut))
		}
		return nil
	},
}

func init() {
	schemaCmd.Flags().StringVar(&schemaOut, "out", "", "write the schema YAML to this path")
	rootCmd.AddCommand(schemaCmd)
}
