package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rowloom/rowloom/internal/config"
	"github.com/rowloom/rowloom/internal/mapping"
	"github.com/rowloom/rowloom/internal/schema"
	"github.com/rowloom/rowloom/internal/validate"
)

var validateSchemaFile string

var validateCmd = &cobra.Command{
	Use:   "validate <mapping.yaml>",
	Short: "Check a mapping definition against the store's schema",
	Long: `Validate parses every target path, resolves every relation against the
schema and checks execution order, without loading any row.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		def, err := mapping.LoadYAML(args[0])
		if err != nil {
			return fmt.Errorf("loading mapping: %w", err)
		}

		catalog, err := loadCatalog(ctx, validateSchemaFile, def)
		if err != nil {
			return err
		}

		res := validate.Definition(def, catalog)
		if len(res.Issues) == 0 {
			fmt.Println(successStyle.Render("Mapping definition is valid"))
			return nil
		}

		printIssues(res)
		if !res.OK() {
			return fmt.Errorf("mapping definition is invalid")
		}
		fmt.Println(successStyle.Render("Mapping definition is valid (warnings above)"))
		return nil
	},
}

// loadCatalog builds a catalog from a schema file without touching the
// store, falling back to a live connection when no file is given.
func loadCatalog(ctx context.Context, schemaFile string, def *mapping.Definition) (*schema.Catalog, error) {
	if schemaFile != "" {
		return buildCatalog(ctx, nil, schemaFile, def)
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	return buildCatalog(ctx, st, "", def)
}

func init() {
	validateCmd.Flags().StringVar(&validateSchemaFile, "schema", "", "schema YAML file (default: introspect the store)")
	rootCmd.AddCommand(validateCmd)
}
