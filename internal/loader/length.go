package loader

// lengthCache caches per entity+attribute column limits for the lifetime of
// one load run. Cache invalidation is deliberately absent: schemas do not
// change mid-run in the batch-import use case.
type lengthCache struct {
	limits map[string]*int
}

func newLengthCache() *lengthCache {
	return &lengthCache{limits: make(map[string]*int)}
}

// guardLength truncates a string value to the target column's maximum
// character length, recording the truncation. Non-string values and
// unbounded columns pass through unchanged. A column the catalog cannot
// resolve is treated as unlimited: truncation must never fail a load.
func (l *Loader) guardLength(entity, attr string, value any) any {
	s, ok := value.(string)
	if !ok {
		return value
	}

	key := entity + "." + attr
	limit, cached := l.lengths.limits[key]
	if !cached {
		var found bool
		limit, found = l.catalog.ColumnMaxLength(entity, attr)
		if !found {
			l.logger.Warn("column length unknown, treating as unlimited",
				"entity", entity, "attribute", attr)
			limit = nil
		}
		l.lengths.limits[key] = limit
	}

	if limit == nil {
		return s
	}

	runes := []rune(s)
	if len(runes) <= *limit {
		return s
	}

	l.truncated = append(l.truncated, TruncatedField{
		Field:          attr,
		OriginalLength: len(runes),
		MaxLength:      *limit,
	})
	return string(runes[:*limit])
}
