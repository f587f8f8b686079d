package loader

import (
	"context"

	"github.com/rowloom/rowloom/internal/mapping"
	"github.com/rowloom/rowloom/internal/store"
)

// persist creates or updates the owning entity according to the unique-key
// and duplicate-strategy options. A nil record with a nil error is the
// deliberate duplicate-skip outcome, not a failure.
func (l *Loader) persist(ctx context.Context, em mapping.EntityMapping, attrs map[string]any) (store.Record, error) {
	keys := []string(em.Options.UniqueKey)

	if len(keys) == 0 {
		rec, err := l.store.Create(ctx, em.Entity, store.Record(attrs))
		if err == nil {
			return rec, nil
		}
		// No unique key configured but the store rejected the insert:
		// recover the conflicting field from the error, best-effort, and
		// fall through to duplicate handling.
		uv, ok := store.AsUniqueViolation(err)
		if !ok || uv.Column == "" {
			return nil, err
		}
		keys = []string{uv.Column}
	}

	where := make(store.Record, len(keys))
	for _, k := range keys {
		v, ok := attrs[k]
		if !ok || v == nil {
			// A null key cannot identify a duplicate.
			return l.store.Create(ctx, em.Entity, store.Record(attrs))
		}
		where[k] = v
	}

	existing, err := l.store.FindBy(ctx, em.Entity, where)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return l.store.Create(ctx, em.Entity, store.Record(attrs))
	}

	switch em.Options.Strategy() {
	case mapping.DuplicateUpdate:
		idCol := l.idColumn(em.Entity)
		return l.store.Update(ctx, em.Entity, idCol, existing[idCol], store.Record(attrs))
	case mapping.DuplicateError:
		values := make([]any, len(keys))
		for i, k := range keys {
			values[i] = attrs[k]
		}
		return nil, &DuplicateError{Entity: em.Entity, Keys: keys, Values: values}
	default: // skip
		return nil, nil
	}
}
