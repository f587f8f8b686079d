package loader

import (
	"context"
	"fmt"

	"github.com/rowloom/rowloom/internal/mapping"
	"github.com/rowloom/rowloom/internal/order"
	"github.com/rowloom/rowloom/internal/report"
)

// LoadAll loads every row against every entity mapping of the definition,
// in dependency-respecting execution order. Row failures are recorded in
// the report and do not stop the run; the context aborts it.
func (l *Loader) LoadAll(ctx context.Context, def *mapping.Definition, rows []Row) (*report.Report, error) {
	sorted, err := order.Sorted(def, l.catalog)
	if err != nil {
		return nil, fmt.Errorf("ordering entity mappings: %w", err)
	}

	rep := report.New(def.Name)
	defer rep.Finish()

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Rows++

		for _, em := range sorted {
			rec, err := l.LoadRow(ctx, em, row)
			name := em.Entity
			if em.Pivot != "" {
				name = em.Pivot
			}

			rep.Truncations(name, len(l.TruncatedFields()))
			rep.SkippedLinks(name, len(l.SkippedLinks()))

			switch {
			case err != nil:
				rep.Failed(name, i+1, err)
				l.logger.Error("row load failed",
					"entity", name, "row", i+1, "error", err)
			case rec == nil:
				rep.Skipped(name)
			default:
				rep.Imported(name)
			}
		}
	}

	return rep, nil
}
