package loader

import (
	"fmt"

	"github.com/rowloom/rowloom/internal/mapping"
	"github.com/rowloom/rowloom/internal/schema"
	"github.com/rowloom/rowloom/internal/transform"
)

// relationData accumulates everything mapped onto one relation for one row:
// scalar attribute values, pivot values, array payloads, lookup config, and
// per-field transform chains deferred until sync. One accumulator exists
// per relation name; it is finalized once all column mappings have been
// folded in, then consumed by resolution and sync for the same row.
type relationData struct {
	name string
	rel  *schema.Relation // nil when the relation name is unknown

	data  map[string]any
	pivot map[string]any

	lookup *mapping.RelationLookup

	// Full-array payload (relation.*): one map per child, persisted
	// verbatim.
	arrayFull []map[string]any

	// Per-field array mode: parallel value slices zipped into per-element
	// records at sync time. arrayFields preserves first-touch field order.
	arrayFields []string
	arrayValues map[string][]any

	optional        map[string]bool
	fieldTransforms map[string][]string
}

// grouped is the partition of one row's mappings into direct attributes and
// relation bundles.
type grouped struct {
	attrs     map[string]any
	relations map[string]*relationData
	order     []string // relation first-touch order
}

func (g *grouped) relation(name string, rel *schema.Relation) *relationData {
	if rd, ok := g.relations[name]; ok {
		return rd
	}
	rd := &relationData{
		name:            name,
		rel:             rel,
		data:            make(map[string]any),
		pivot:           make(map[string]any),
		arrayValues:     make(map[string][]any),
		optional:        make(map[string]bool),
		fieldTransforms: make(map[string][]string),
	}
	g.relations[name] = rd
	g.order = append(g.order, name)
	return rd
}

// group walks all column mappings for one row and partitions them. Direct
// attribute values pass through the length guard; relation fragments are
// routed by the second path segment.
func (l *Loader) group(em mapping.EntityMapping, row Row) (*grouped, error) {
	g := &grouped{
		attrs:     make(map[string]any),
		relations: make(map[string]*relationData),
	}

	for _, cm := range em.Columns {
		p, err := mapping.ParsePath(cm.Target)
		if err != nil {
			return nil, err
		}

		if p.Attribute != "" {
			value, skip, err := l.resolveValue(row, cm)
			if err != nil {
				return nil, err
			}
			if skip {
				continue
			}
			g.attrs[p.Attribute] = l.guardLength(em.Entity, p.Attribute, value)
			continue
		}

		rel := l.catalog.Relation(em.Entity, p.Relation)
		if err := l.groupRelationFragment(g, row, cm, p, rel); err != nil {
			return nil, err
		}
	}

	return g, nil
}

func (l *Loader) groupRelationFragment(g *grouped, row Row, cm mapping.ColumnMapping, p mapping.Path, rel *schema.Relation) error {
	arrayTyped := rel != nil && (rel.Kind == schema.KindToMany || rel.Kind == schema.KindManyToMany)

	switch {
	case p.Star:
		value, skip, err := l.resolveValue(row, cm)
		if err != nil {
			return err
		}
		if skip || value == nil {
			return nil
		}
		if !arrayTyped {
			l.logger.Warn("ignoring full-array payload on non-array relation",
				"relation", p.Relation)
			return nil
		}
		elements, err := asRecordSlice(value)
		if err != nil {
			return fmt.Errorf("relation %s.*: %w", p.Relation, err)
		}
		rd := g.relation(p.Relation, rel)
		rd.arrayFull = elements
		l.configureLookup(rd, cm, p)

	case p.Pivot:
		value, skip, err := l.resolveValue(row, cm)
		if err != nil {
			return err
		}
		if skip {
			return nil
		}
		if p.Optional && value == nil {
			return nil
		}
		rd := g.relation(p.Relation, rel)
		rd.pivot[p.Field] = value
		l.configureLookup(rd, cm, p)

	default:
		return l.groupRelationField(g, row, cm, p, rel, arrayTyped)
	}
	return nil
}

// groupRelationField handles the relation.field shape, including per-field
// array mode. For array values, transforms after the array-producing split
// are deferred to sync time, when zipping has determined per-element shape.
func (l *Loader) groupRelationField(g *grouped, row Row, cm mapping.ColumnMapping, p mapping.Path, rel *schema.Relation, arrayTyped bool) error {
	head, tail := splitChain(cm.Transforms)

	var value any
	if mapping.IsVirtual(cm.Source) || !arrayTyped {
		v, skip, err := l.resolveValue(row, cm)
		if err != nil {
			return err
		}
		if skip {
			return nil
		}
		value = v
		tail = nil
	} else {
		raw := row[cm.Source]
		if isEmpty(raw) {
			raw = cm.Default
		}
		if _, isArr := raw.([]any); isArr {
			// Already array-shaped at the source: defer the whole chain.
			value = raw
			tail = cm.Transforms
		} else {
			v, err := transform.Apply(head, raw, row)
			if err != nil {
				return fmt.Errorf("column %q: %w", cm.Source, err)
			}
			value = v
			if _, isArr := value.([]any); !isArr && len(tail) > 0 {
				v, err = transform.Apply(tail, value, row)
				if err != nil {
					return fmt.Errorf("column %q: %w", cm.Source, err)
				}
				value = v
				tail = nil
			}
		}
	}

	// An optional field with a null value leaves the relation bundle
	// untouched for this fragment.
	if p.Optional && value == nil {
		return nil
	}

	rd := g.relation(p.Relation, rel)

	if values, isArr := value.([]any); isArr && arrayTyped {
		if _, tracked := rd.arrayValues[p.Field]; !tracked {
			rd.arrayFields = append(rd.arrayFields, p.Field)
		}
		rd.arrayValues[p.Field] = values
		rd.optional[p.Field] = p.Optional
		if len(tail) > 0 {
			rd.fieldTransforms[p.Field] = tail
		}
	} else {
		rd.data[p.Field] = value
	}

	l.configureLookup(rd, cm, p)
	return nil
}

// splitChain cuts a transform chain after the first array-producing split
// operation. The head runs at grouping time; the tail is applied per
// element at sync time.
func splitChain(specs []string) (head, tail []string) {
	for i, s := range specs {
		if op, _ := transform.Parse(s); op == transform.OpSplit {
			return specs[:i+1], specs[i+1:]
		}
	}
	return specs, nil
}

func asRecordSlice(value any) ([]map[string]any, error) {
	switch v := value.(type) {
	case []map[string]any:
		return v, nil
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, e := range v {
			m, ok := e.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("array element is %T, expected an object", e)
			}
			out = append(out, m)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("value is %T, expected an array", value)
	}
}
