package loader

import (
	"github.com/rowloom/rowloom/internal/mapping"
	"github.com/rowloom/rowloom/internal/schema"
)

// configureLookup decides how a relation fragment finds its related
// records. The first successful configuration wins for a relation within a
// row. Explicit configuration on the column mapping always wins; otherwise
// the lookup is auto-detected by relation kind:
//
//   - owning-to-one: the mapped field itself, creating only on a "+" suffix
//   - to-many: only when the field is verified unique on the related
//     entity, in which case missing children are created; without a unique
//     field no lookup is configured and every child is a fresh create
//   - many-to-many and inverse-to-one: explicit configuration only, since
//     ambiguity is higher
func (l *Loader) configureLookup(rd *relationData, cm mapping.ColumnMapping, p mapping.Path) {
	if rd.lookup != nil {
		return
	}

	if cm.Lookup != nil {
		cp := *cm.Lookup
		rd.lookup = &cp
		return
	}

	if p.Field == "" || p.Pivot || rd.rel == nil {
		return
	}

	switch rd.rel.Kind {
	case schema.KindOwningToOne:
		rd.lookup = &mapping.RelationLookup{
			Field:           p.Field,
			CreateIfMissing: p.Create,
		}
	case schema.KindToMany:
		if l.catalog.IsUnique(rd.rel.Related, p.Field) {
			rd.lookup = &mapping.RelationLookup{
				Field:           p.Field,
				CreateIfMissing: true,
			}
		}
	}
}
