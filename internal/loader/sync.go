package loader

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/rowloom/rowloom/internal/mapping"
	"github.com/rowloom/rowloom/internal/schema"
	"github.com/rowloom/rowloom/internal/store"
	"github.com/rowloom/rowloom/internal/transform"
)

// syncRelations synchronizes every non-owning relation fragment once the
// owner is persisted. A failure in one relation does not abort sync of the
// others; failures are aggregated and returned after all relations have
// been attempted.
func (l *Loader) syncRelations(ctx context.Context, em mapping.EntityMapping, owner store.Record, g *grouped, row Row) error {
	var errs *multierror.Error

	for _, name := range g.order {
		rd := g.relations[name]

		if rd.rel == nil {
			l.syncUnknown(ctx, rd)
			continue
		}

		var err error
		switch rd.rel.Kind {
		case schema.KindOwningToOne:
			// Resolved before the owner write.
		case schema.KindInverseToOne:
			err = l.syncInverseToOne(ctx, rd, owner)
		case schema.KindToMany:
			err = l.syncToMany(ctx, em, rd, owner, row)
		case schema.KindManyToMany:
			err = l.syncManyToMany(ctx, em, rd, owner, row)
		}
		if err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	return errs.ErrorOrNil()
}

// syncUnknown is the permissive fallback for unclassifiable relation names:
// a best-effort create of whatever data is present, never failing the row.
func (l *Loader) syncUnknown(ctx context.Context, rd *relationData) {
	if len(rd.data) == 0 {
		return
	}
	if _, err := l.store.Create(ctx, rd.name, store.Record(rd.data)); err != nil {
		l.logger.Warn("best-effort create for unknown relation failed",
			"relation", rd.name, "error", err)
	}
}

// syncInverseToOne creates or updates the single related record with its
// foreign key pointed at the owner.
func (l *Loader) syncInverseToOne(ctx context.Context, rd *relationData, owner store.Record) error {
	if len(rd.data) == 0 {
		return nil
	}

	rel := rd.rel
	attrs := store.Record(rd.data).Clone()
	attrs[rel.ForeignKey] = owner[rel.RelatedKey]

	if rd.lookup != nil {
		lookupValue := rd.data[rd.lookup.Field]
		if !isEmpty(lookupValue) {
			existing, err := l.store.FindBy(ctx, rel.Related, store.Record{rd.lookup.Field: lookupValue})
			if err != nil {
				return l.resolutionError(rel.Entity, rd, lookupValue, err)
			}
			if existing != nil {
				idCol := l.idColumn(rel.Related)
				_, err = l.store.Update(ctx, rel.Related, idCol, existing[idCol], attrs)
				return err
			}
		}
	}

	_, err := l.store.Create(ctx, rel.Related, attrs)
	return err
}

// syncToMany writes child records pointing back at the owner. Array
// payloads without a lookup are unbounded creates: the array arrives from a
// single source row and is caller-bounded.
func (l *Loader) syncToMany(ctx context.Context, em mapping.EntityMapping, rd *relationData, owner store.Record, row Row) error {
	rel := rd.rel
	fkValue := owner[rel.RelatedKey]

	elements, err := l.childElements(rd, row)
	if err != nil {
		return err
	}

	if rd.lookup == nil {
		for _, elem := range elements {
			elem[rel.ForeignKey] = fkValue
			if _, err := l.store.Create(ctx, rel.Related, elem); err != nil {
				return err
			}
		}
		return nil
	}

	if len(elements) == 1 {
		return l.syncToManyOne(ctx, em, rd, elements[0], fkValue)
	}

	// Batch path: one whereIn query pre-fetches existing children keyed by
	// lookup value instead of one query per element.
	values := make([]any, 0, len(elements))
	for _, elem := range elements {
		if v := elem[rd.lookup.Field]; !isEmpty(v) {
			values = append(values, v)
		}
	}
	existing, err := l.store.FindAllIn(ctx, rel.Related, rd.lookup.Field, values)
	if err != nil {
		return l.resolutionError(rel.Entity, rd, values, err)
	}
	byValue := make(map[string]store.Record, len(existing))
	for _, rec := range existing {
		byValue[stringKey(rec[rd.lookup.Field])] = rec
	}

	for _, elem := range elements {
		lookupValue := elem[rd.lookup.Field]
		if isEmpty(lookupValue) {
			continue
		}
		elem[rel.ForeignKey] = fkValue

		if hit, ok := byValue[stringKey(lookupValue)]; ok {
			switch em.Options.Strategy() {
			case mapping.DuplicateUpdate:
				idCol := l.idColumn(rel.Related)
				if _, err := l.store.Update(ctx, rel.Related, idCol, hit[idCol], elem); err != nil {
					return err
				}
			case mapping.DuplicateError:
				return &DuplicateError{
					Entity: rel.Related,
					Keys:   []string{rd.lookup.Field},
					Values: []any{lookupValue},
				}
			}
			continue
		}
		if rd.lookup.CreateIfMissing {
			created, err := l.store.Create(ctx, rel.Related, elem)
			if err != nil {
				return err
			}
			// Later elements carrying the same lookup value must hit, as
			// they would element by element.
			byValue[stringKey(lookupValue)] = created
		}
	}
	return nil
}

// syncToManyOne resolves a single child by the lookup field, honoring the
// owning entity's duplicate strategy on a hit.
func (l *Loader) syncToManyOne(ctx context.Context, em mapping.EntityMapping, rd *relationData, elem store.Record, fkValue any) error {
	rel := rd.rel
	lookupValue := elem[rd.lookup.Field]
	if isEmpty(lookupValue) {
		return nil
	}
	elem[rel.ForeignKey] = fkValue

	existing, err := l.store.FindBy(ctx, rel.Related, store.Record{rd.lookup.Field: lookupValue})
	if err != nil {
		return l.resolutionError(rel.Entity, rd, lookupValue, err)
	}
	if existing == nil {
		if rd.lookup.CreateIfMissing {
			_, err := l.store.Create(ctx, rel.Related, elem)
			return err
		}
		return nil
	}

	switch em.Options.Strategy() {
	case mapping.DuplicateUpdate:
		idCol := l.idColumn(rel.Related)
		_, err := l.store.Update(ctx, rel.Related, idCol, existing[idCol], elem)
		return err
	case mapping.DuplicateError:
		return &DuplicateError{
			Entity: rel.Related,
			Keys:   []string{rd.lookup.Field},
			Values: []any{lookupValue},
		}
	default:
		return nil
	}
}

// syncManyToMany resolves related records by lookup and writes the join
// table with attach-without-detaching semantics: existing links survive,
// pivot attributes are carried onto each link.
func (l *Loader) syncManyToMany(ctx context.Context, em mapping.EntityMapping, rd *relationData, owner store.Record, row Row) error {
	rel := rd.rel
	ownerID := owner[l.idColumn(em.Entity)]

	elements, err := l.childElements(rd, row)
	if err != nil {
		return err
	}

	for _, elem := range elements {
		var related store.Record

		if rd.lookup != nil {
			lookupValue := elem[rd.lookup.Field]
			if isEmpty(lookupValue) {
				continue
			}
			related, err = l.store.FindBy(ctx, rel.Related, store.Record{rd.lookup.Field: lookupValue})
			if err != nil {
				return l.resolutionError(rel.Entity, rd, lookupValue, err)
			}
			if related == nil {
				if !rd.lookup.CreateIfMissing {
					l.skipped = append(l.skipped, SkippedLink{
						Entity:   rel.Entity,
						Relation: rd.name,
						Field:    rd.lookup.Field,
						Value:    lookupValue,
					})
					continue
				}
				attrs := elem.Clone()
				delete(attrs, rd.lookup.Field)
				related, _, err = l.store.GetOrCreate(ctx, rel.Related, rd.lookup.Field, lookupValue, attrs)
				if err != nil {
					return l.resolutionError(rel.Entity, rd, lookupValue, err)
				}
			}
		} else {
			if len(elem) == 0 {
				continue
			}
			related, err = l.store.Create(ctx, rel.Related, elem)
			if err != nil {
				return err
			}
		}

		err = l.store.Attach(ctx, store.AttachSpec{
			JoinTable:  rel.JoinTable,
			OwnerKey:   rel.JoinOwnerKey,
			OwnerID:    ownerID,
			RelatedKey: rel.JoinRelatedKey,
			RelatedID:  related[rel.RelatedKey],
			Pivot:      store.Record(rd.pivot),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// childElements finalizes per-child records for a relation: the full-array
// payload verbatim, or per-field value arrays zipped by index, or the flat
// bundle as a single element. Deferred field transforms run here, per
// element, immediately before values are placed. Optional fields with null
// per-element values are omitted from that element only.
func (l *Loader) childElements(rd *relationData, row Row) ([]store.Record, error) {
	if len(rd.arrayFull) > 0 {
		out := make([]store.Record, len(rd.arrayFull))
		for i, m := range rd.arrayFull {
			out[i] = store.Record(m).Clone()
		}
		return out, nil
	}

	if len(rd.arrayFields) > 0 {
		n := 0
		for _, field := range rd.arrayFields {
			if len(rd.arrayValues[field]) > n {
				n = len(rd.arrayValues[field])
			}
		}

		out := make([]store.Record, 0, n)
		for i := 0; i < n; i++ {
			elem := store.Record(rd.data).Clone()
			for _, field := range rd.arrayFields {
				values := rd.arrayValues[field]
				if i >= len(values) {
					continue
				}
				v, err := transform.Apply(rd.fieldTransforms[field], values[i], row)
				if err != nil {
					return nil, err
				}
				if v == nil && rd.optional[field] {
					continue
				}
				elem[field] = v
			}
			out = append(out, elem)
		}
		return out, nil
	}

	if len(rd.data) == 0 {
		return nil, nil
	}

	// A delimiter on the lookup splits one source value into several
	// lookup values, one element each.
	if rd.lookup != nil && rd.lookup.Delimiter != "" {
		if s, ok := rd.data[rd.lookup.Field].(string); ok {
			var out []store.Record
			for _, part := range strings.Split(s, rd.lookup.Delimiter) {
				part = strings.TrimSpace(part)
				if part == "" {
					continue
				}
				elem := store.Record(rd.data).Clone()
				elem[rd.lookup.Field] = part
				out = append(out, elem)
			}
			return out, nil
		}
	}

	return []store.Record{store.Record(rd.data).Clone()}, nil
}

func stringKey(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
