package rows

// Row is a flat record keyed by source column name.
type Row = map[string]any

// Source yields flat rows for loading. Next returns nil when the
// source is exhausted.
type Source interface {
	Columns() []string
	Next() (Row, error)
	Close() error
}

// ReadAll drains a source into memory.
func ReadAll(src Source) ([]Row, error) {
	var out []Row
	for {
		row, err := src.Next()
		if err != nil {
			return out, err
		}
		if row == nil {
			return out, nil
		}
		out = append(out, row)
	}
}
