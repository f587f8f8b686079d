package cmd

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rowloom/rowloom/internal/mapping"
	"github.com/rowloom/rowloom/internal/order"
)

var (
	orderSchemaFile string
	orderWrite      bool
)

var orderCmd = &cobra.Command{
	Use:   "order <mapping.yaml>",
	Short: "Suggest an execution order for the entity mappings",
	Long: `Order derives the dependencies between entity mappings from their
relation targets and prints a topological execution order. With --write
the suggested orders are stored back into the mapping file.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		def, err := mapping.LoadYAML(args[0])
		if err != nil {
			return fmt.Errorf("loading mapping: %w", err)
		}

		catalog, err := loadCatalog(ctx, orderSchemaFile, def)
		if err != nil {
			return err
		}

		orders, err := order.Suggest(def, catalog)
		if err != nil {
			var ce *order.CycleError
			if errors.As(err, &ce) {
				fmt.Println(errStyle.Render("Circular dependencies:"))
				for _, cycle := range ce.Cycles {
					fmt.Println(errStyle.Render("  " + strings.Join(cycle, " -> ")))
				}
			}
			return err
		}

		names := make([]string, 0, len(orders))
		for name := range orders {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool { return orders[names[i]] < orders[names[j]] })

		fmt.Println(titleStyle.Render("Execution order"))
		for _, name := range names {
			fmt.Printf("  %2d. %s\n", orders[name], name)
		}

		deps := order.Dependencies(def, catalog)
		for _, name := range names {
			if len(deps[name]) > 0 {
				fmt.Println(dimStyle.Render(fmt.Sprintf("  %s depends on %s", name, strings.Join(deps[name], ", "))))
			}
		}

		if orderWrite {
			for i := range def.Entities {
				name := def.Entities[i].Entity
				if def.Entities[i].Pivot != "" {
					name = def.Entities[i].Pivot
				}
				def.Entities[i].ExecutionOrder = orders[name]
			}
			if err := def.WriteYAML(args[0]); err != nil {
				return fmt.Errorf("writing mapping: %w", err)
			}
			fmt.Println(successStyle.Render("Execution orders written to " + args[0]))
		}
		return nil
	},
}

func init() {
	orderCmd.Flags().StringVar(&orderSchemaFile, "schema", "", "schema YAML file (default: introspect the store)")
	orderCmd.Flags().BoolVar(&orderWrite, "write", false, "write the suggested orders back into the mapping file")
	rootCmd.AddCommand(orderCmd)
}
