package loader

import (
	"context"
	"fmt"
	"strings"

	"github.com/rowloom/rowloom/internal/mapping"
	"github.com/rowloom/rowloom/internal/schema"
	"github.com/rowloom/rowloom/internal/store"
)

// pivotEndpoint accumulates one side of a standalone pivot sync.
type pivotEndpoint struct {
	data   map[string]any
	lookup *mapping.RelationLookup
}

// syncPivot synchronizes a many-to-many join without creating or touching
// either endpoint's non-key attributes. The mapping's pivot path is
// "owner_entity.relation"; columns are tagged by target prefix as
// owner.<field>, related.<field>, or pivot.<field>. Either endpoint
// missing (and not creatable) aborts the sync for the row silently: the
// returned record is nil. On success the owner endpoint's record is
// returned.
func (l *Loader) syncPivot(ctx context.Context, em mapping.EntityMapping, row Row) (store.Record, error) {
	ownerEntity, relationName, ok := strings.Cut(em.Pivot, ".")
	if !ok {
		return nil, fmt.Errorf("pivot path %q: expected owner_entity.relation", em.Pivot)
	}

	rel := l.catalog.Relation(ownerEntity, relationName)
	if rel == nil || rel.Kind != schema.KindManyToMany {
		return nil, fmt.Errorf("pivot path %q: not a many-to-many relation", em.Pivot)
	}

	owner := &pivotEndpoint{data: make(map[string]any)}
	related := &pivotEndpoint{data: make(map[string]any)}
	pivot := make(map[string]any)

	for _, cm := range em.Columns {
		prefix, field, ok := strings.Cut(cm.Target, ".")
		if !ok {
			return nil, fmt.Errorf("pivot column target %q: expected prefix.field", cm.Target)
		}
		value, skip, err := l.resolveValue(row, cm)
		if err != nil {
			return nil, err
		}
		if skip {
			continue
		}

		optional := strings.HasPrefix(field, "?")
		field = strings.TrimPrefix(field, "?")
		if optional && value == nil {
			continue
		}

		switch prefix {
		case "owner":
			owner.data[field] = value
			owner.configure(cm, field)
		case "related":
			related.data[field] = value
			related.configure(cm, field)
		case "pivot":
			pivot[field] = value
		default:
			return nil, fmt.Errorf("pivot column target %q: unknown prefix %q", cm.Target, prefix)
		}
	}

	ownerRec, err := l.resolvePivotEndpoint(ctx, ownerEntity, relationName, owner)
	if err != nil || ownerRec == nil {
		return nil, err
	}
	relatedRec, err := l.resolvePivotEndpoint(ctx, rel.Related, relationName, related)
	if err != nil || relatedRec == nil {
		return nil, err
	}

	err = l.store.Attach(ctx, store.AttachSpec{
		JoinTable:  rel.JoinTable,
		OwnerKey:   rel.JoinOwnerKey,
		OwnerID:    ownerRec[l.idColumn(ownerEntity)],
		RelatedKey: rel.JoinRelatedKey,
		RelatedID:  relatedRec[rel.RelatedKey],
		Pivot:      store.Record(pivot),
	})
	if err != nil {
		return nil, err
	}
	return ownerRec, nil
}

func (e *pivotEndpoint) configure(cm mapping.ColumnMapping, field string) {
	if e.lookup != nil {
		return
	}
	if cm.Lookup != nil {
		cp := *cm.Lookup
		e.lookup = &cp
		return
	}
	e.lookup = &mapping.RelationLookup{Field: field}
}

// resolvePivotEndpoint finds one endpoint by its lookup field, optionally
// creating it per the endpoint's own lookup config. A nil record with a nil
// error means the endpoint is missing and the sync should silently stop.
func (l *Loader) resolvePivotEndpoint(ctx context.Context, entity, relationName string, e *pivotEndpoint) (store.Record, error) {
	if e.lookup == nil {
		return nil, nil
	}
	value := e.data[e.lookup.Field]
	if isEmpty(value) {
		return nil, nil
	}

	rec, err := l.store.FindBy(ctx, entity, store.Record{e.lookup.Field: value})
	if err != nil {
		return nil, &ResolutionError{
			Entity:          entity,
			Relation:        relationName,
			LookupField:     e.lookup.Field,
			LookupValue:     value,
			CreateIfMissing: e.lookup.CreateIfMissing,
			Kind:            Classify(err),
			Err:             err,
		}
	}
	if rec != nil {
		return rec, nil
	}
	if !e.lookup.CreateIfMissing {
		l.skipped = append(l.skipped, SkippedLink{
			Entity:   entity,
			Relation: relationName,
			Field:    e.lookup.Field,
			Value:    value,
		})
		return nil, nil
	}

	attrs := make(store.Record, len(e.data))
	for k, v := range e.data {
		if k != e.lookup.Field {
			attrs[k] = v
		}
	}
	rec, _, err = l.store.GetOrCreate(ctx, entity, e.lookup.Field, value, attrs)
	if err != nil {
		return nil, &ResolutionError{
			Entity:          entity,
			Relation:        relationName,
			LookupField:     e.lookup.Field,
			LookupValue:     value,
			CreateIfMissing: true,
			Kind:            Classify(err),
			Err:             err,
		}
	}
	return rec, nil
}
