package loader

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/rowloom/rowloom/internal/mapping"
	"github.com/rowloom/rowloom/internal/transform"
)

// resolveValue extracts the raw value for one column mapping from a row,
// substitutes the default for null or empty values, and applies the
// transform chain in order. The skip return means the mapping contributes
// nothing for this row.
func (l *Loader) resolveValue(row Row, cm mapping.ColumnMapping) (value any, skip bool, err error) {
	if mapping.IsVirtual(cm.Source) {
		switch cm.Source {
		case mapping.VirtualSkip:
			return nil, true, nil
		case mapping.VirtualDefault:
			return cm.Default, false, nil
		case mapping.VirtualRandom:
			return uuid.NewString(), false, nil
		default:
			return nil, false, fmt.Errorf("unknown virtual column %q", cm.Source)
		}
	}

	value = row[cm.Source]
	if isEmpty(value) {
		value = cm.Default
	}

	value, err = transform.Apply(cm.Transforms, value, row)
	if err != nil {
		return nil, false, fmt.Errorf("column %q: %w", cm.Source, err)
	}
	return value, false, nil
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}
