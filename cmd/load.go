package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rowloom/rowloom/internal/config"
	"github.com/rowloom/rowloom/internal/loader"
	"github.com/rowloom/rowloom/internal/mapping"
	"github.com/rowloom/rowloom/internal/report"
	"github.com/rowloom/rowloom/internal/rows"
	"github.com/rowloom/rowloom/internal/validate"
)

var (
	loadSchemaFile string
	loadDelimiter  string
	loadTrim       bool
	loadNullBlanks bool
	loadReportPath string
	loadSkipCheck  bool
)

var loadCmd = &cobra.Command{
	Use:   "load <mapping.yaml> <rows.csv>",
	Short: "Load a rows file through a mapping definition",
	Long: `Load reads delimited rows and maps each one onto the entities of the
mapping definition, resolving relations against the configured store.
Entity mappings run in dependency order; row failures are recorded and
do not stop the run.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		logger, err := setupLogger(cfg)
		if err != nil {
			return fmt.Errorf("setting up logging: %w", err)
		}

		def, err := mapping.LoadYAML(args[0])
		if err != nil {
			return fmt.Errorf("loading mapping: %w", err)
		}

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		catalog, err := buildCatalog(ctx, st, loadSchemaFile, def)
		if err != nil {
			return err
		}

		if !loadSkipCheck {
			res := validate.Definition(def, catalog)
			printIssues(res)
			if !res.OK() {
				return fmt.Errorf("mapping definition is invalid")
			}
		}

		opts := rows.CSVOptions{TrimSpace: loadTrim, NullBlanks: loadNullBlanks}
		if loadDelimiter != "" {
			opts.Comma = []rune(loadDelimiter)[0]
		}
		src, err := rows.OpenCSV(args[1], opts)
		if err != nil {
			return err
		}
		defer src.Close()

		all, err := rows.ReadAll(src)
		if err != nil {
			return fmt.Errorf("reading rows: %w", err)
		}
		input := make([]loader.Row, len(all))
		for i, r := range all {
			input[i] = loader.Row(r)
		}

		fmt.Println(titleStyle.Render(fmt.Sprintf("Loading %d rows from %s", len(input), args[1])))

		l := loader.New(st, catalog, logger)
		rep, err := l.LoadAll(ctx, def, input)
		if err != nil {
			return fmt.Errorf("load run: %w", err)
		}

		printReport(rep)

		if loadReportPath != "" {
			if err := rep.WriteJSON(loadReportPath); err != nil {
				return err
			}
			fmt.Println(dimStyle.Render("Report written to " + loadReportPath))
		}

		if rep.TotalFailed() > 0 {
			return fmt.Errorf("%d row(s) failed", rep.TotalFailed())
		}
		return nil
	},
}

func printReport(rep *report.Report) {
	fmt.Println()
	fmt.Println(titleStyle.Render("Load summary"))
	for _, name := range rep.EntityNames() {
		s := rep.Entities[name]
		line := fmt.Sprintf("  %-24s imported %-5d skipped %-5d failed %d", name, s.Imported, s.Skipped, s.Failed)
		switch {
		case s.Failed > 0:
			fmt.Println(errStyle.Render(line))
		case s.Skipped > 0:
			fmt.Println(warnStyle.Render(line))
		default:
			fmt.Println(successStyle.Render(line))
		}
		if s.Truncated > 0 {
			fmt.Println(warnStyle.Render(fmt.Sprintf("    %d value(s) truncated to column length", s.Truncated)))
		}
		if s.Links > 0 {
			fmt.Println(warnStyle.Render(fmt.Sprintf("    %d link(s) skipped: related record not found", s.Links)))
		}
		for _, re := range s.Errors {
			fmt.Println(dimStyle.Render(fmt.Sprintf("    row %d: %s", re.Row, re.Message)))
		}
	}
	fmt.Printf("\n%d row(s) processed\n", rep.Rows)
}

func printIssues(res *validate.Result) {
	for _, issue := range res.Issues {
		line := "  " + issue.String()
		if issue.Severity == validate.SeverityError {
			fmt.Println(errStyle.Render(line))
		} else {
			fmt.Println(warnStyle.Render(line))
		}
	}
}

func init() {
	loadCmd.Flags().StringVar(&loadSchemaFile, "schema", "", "schema YAML file (default: introspect the store)")
	loadCmd.Flags().StringVar(&loadDelimiter, "delimiter", "", "field delimiter (default: comma)")
	loadCmd.Flags().BoolVar(&loadTrim, "trim", false, "trim whitespace around cell values")
	loadCmd.Flags().BoolVar(&loadNullBlanks, "null-blanks", false, "treat empty cells as null")
	loadCmd.Flags().StringVar(&loadReportPath, "report", "", "write the JSON report to this path")
	loadCmd.Flags().BoolVar(&loadSkipCheck, "skip-validation", false, "skip mapping validation before loading")
	rootCmd.AddCommand(loadCmd)
}
