package mapping

import (
	"fmt"

	"github.com/rowloom/rowloom/internal/schema"
)

// ApplyOverrides registers the definition's explicit relations on the
// catalog, replacing anything derived from foreign keys.
func (d *Definition) ApplyOverrides(c *schema.Catalog) error {
	for _, ro := range d.Relations {
		kind, err := parseKind(ro.Kind)
		if err != nil {
			return fmt.Errorf("relation %s.%s: %w", ro.Entity, ro.Name, err)
		}
		rel := schema.Relation{
			Name:           ro.Name,
			Kind:           kind,
			Entity:         ro.Entity,
			Related:        ro.Related,
			ForeignKey:     ro.ForeignKey,
			RelatedKey:     ro.RelatedKey,
			JoinTable:      ro.JoinTable,
			JoinOwnerKey:   ro.JoinOwnerKey,
			JoinRelatedKey: ro.JoinRelatedKey,
		}
		if rel.RelatedKey == "" {
			rel.RelatedKey = "id"
		}
		c.Override(rel)
	}
	return nil
}

func parseKind(s string) (schema.RelationKind, error) {
	switch s {
	case "owning_to_one":
		return schema.KindOwningToOne, nil
	case "inverse_to_one":
		return schema.KindInverseToOne, nil
	case "to_many":
		return schema.KindToMany, nil
	case "many_to_many":
		return schema.KindManyToMany, nil
	default:
		return schema.KindUnknown, fmt.Errorf("unknown relation kind %q", s)
	}
}
