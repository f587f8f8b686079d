// Package validate checks a mapping definition against a schema catalog
// before any row is loaded. It reports structural problems a load run
// would otherwise hit halfway through.
package validate

import (
	"fmt"
	"strings"

	"github.com/rowloom/rowloom/internal/mapping"
	"github.com/rowloom/rowloom/internal/order"
	"github.com/rowloom/rowloom/internal/schema"
	"github.com/rowloom/rowloom/internal/transform"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is a single problem found in a definition.
type Issue struct {
	Severity Severity `json:"severity"`
	Entity   string   `json:"entity"`
	Target   string   `json:"target,omitempty"`
	Message  string   `json:"message"`
}

func (i Issue) String() string {
	if i.Target == "" {
		return fmt.Sprintf("[%s] %s: %s", i.Severity, i.Entity, i.Message)
	}
	return fmt.Sprintf("[%s] %s %s: %s", i.Severity, i.Entity, i.Target, i.Message)
}

// Result collects all issues from one validation pass.
type Result struct {
	Issues []Issue `json:"issues"`
}

// OK reports whether no error-severity issue was found. Warnings do not
// fail validation.
func (r *Result) OK() bool {
	for _, i := range r.Issues {
		if i.Severity == SeverityError {
			return false
		}
	}
	return true
}

func (r *Result) errorf(entity, target, format string, args ...any) {
	r.Issues = append(r.Issues, Issue{
		Severity: SeverityError,
		Entity:   entity,
		Target:   target,
		Message:  fmt.Sprintf(format, args...),
	})
}

func (r *Result) warnf(entity, target, format string, args ...any) {
	r.Issues = append(r.Issues, Issue{
		Severity: SeverityWarning,
		Entity:   entity,
		Target:   target,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Definition validates a mapping definition against the catalog.
func Definition(def *mapping.Definition, catalog *schema.Catalog) *Result {
	res := &Result{}

	if len(def.Entities) == 0 {
		res.errorf("", "", "definition has no entity mappings")
		return res
	}

	for _, em := range def.Entities {
		if em.Pivot != "" {
			validatePivot(res, em, catalog)
			continue
		}
		validateEntity(res, em, catalog)
	}

	if err := order.Validate(def, catalog); err != nil {
		res.errorf("", "", "execution order: %v", err)
	}
	if cycles := order.DetectCircular(def, catalog); len(cycles) > 0 {
		for _, cycle := range cycles {
			res.warnf("", "", "circular dependency: %s", strings.Join(cycle, " -> "))
		}
	}

	return res
}

func validateEntity(res *Result, em mapping.EntityMapping, catalog *schema.Catalog) {
	table := catalog.Table(em.Entity)
	if table == nil {
		res.errorf(em.Entity, "", "unknown entity table")
		return
	}
	if len(em.Columns) == 0 {
		res.errorf(em.Entity, "", "no column mappings")
	}

	switch em.Options.Strategy() {
	case mapping.DuplicateSkip, mapping.DuplicateUpdate, mapping.DuplicateError:
	default:
		res.errorf(em.Entity, "", "unknown duplicate strategy %q", em.Options.DuplicateStrategy)
	}
	for _, key := range em.Options.UniqueKey {
		if table.Column(key) == nil {
			res.errorf(em.Entity, "", "unique key column %q not in table", key)
		}
	}

	for _, cm := range em.Columns {
		validateColumn(res, em.Entity, table, cm, catalog)
	}
}

func validateColumn(res *Result, entity string, table *schema.Table, cm mapping.ColumnMapping, catalog *schema.Catalog) {
	if cm.Source == "" && cm.Default == nil {
		res.errorf(entity, cm.Target, "mapping has neither source nor default")
	}
	if err := transform.ValidateAll(cm.Transforms); err != nil {
		res.errorf(entity, cm.Target, "%v", err)
	}

	p, err := mapping.ParsePath(cm.Target)
	if err != nil {
		res.errorf(entity, cm.Target, "%v", err)
		return
	}

	if p.Attribute != "" {
		if table.Column(p.Attribute) == nil {
			res.errorf(entity, cm.Target, "column %q not in table", p.Attribute)
		}
		return
	}

	rel := catalog.Relation(entity, p.Relation)
	if rel == nil {
		res.errorf(entity, cm.Target, "unknown relation %q", p.Relation)
		return
	}

	if p.Pivot {
		if rel.Kind != schema.KindManyToMany {
			res.errorf(entity, cm.Target, "pivot field on %s relation %q", rel.Kind, p.Relation)
			return
		}
		checkTableColumn(res, entity, cm.Target, catalog, rel.JoinTable, p.Field)
		return
	}
	if p.Star || p.Field == "" {
		return
	}

	related := catalog.Table(rel.Related)
	if related == nil {
		res.errorf(entity, cm.Target, "relation %q points at unknown table %q", p.Relation, rel.Related)
		return
	}
	if related.Column(p.Field) == nil {
		res.errorf(entity, cm.Target, "column %q not in table %q", p.Field, rel.Related)
	}

	lookupField := p.Field
	if cm.Lookup != nil && cm.Lookup.Field != "" {
		lookupField = cm.Lookup.Field
		if related.Column(lookupField) == nil {
			res.errorf(entity, cm.Target, "lookup field %q not in table %q", lookupField, rel.Related)
			return
		}
	}
	creates := p.Create || (cm.Lookup != nil && cm.Lookup.CreateIfMissing)
	if creates && !catalog.IsUnique(rel.Related, lookupField) {
		res.warnf(entity, cm.Target, "create-on-miss lookup field %q is not unique on %q", lookupField, rel.Related)
	}
}

func validatePivot(res *Result, em mapping.EntityMapping, catalog *schema.Catalog) {
	owner, relName, ok := strings.Cut(em.Pivot, ".")
	if !ok {
		res.errorf(em.Pivot, "", "pivot must be owner_entity.relation")
		return
	}
	rel := catalog.Relation(owner, relName)
	if rel == nil {
		res.errorf(em.Pivot, "", "unknown relation %q on %q", relName, owner)
		return
	}
	if rel.Kind != schema.KindManyToMany {
		res.errorf(em.Pivot, "", "pivot sync needs a many_to_many relation, %q is %s", relName, rel.Kind)
		return
	}

	for _, cm := range em.Columns {
		if err := transform.ValidateAll(cm.Transforms); err != nil {
			res.errorf(em.Pivot, cm.Target, "%v", err)
		}
		prefix, field, ok := strings.Cut(cm.Target, ".")
		if !ok {
			res.errorf(em.Pivot, cm.Target, "pivot sync targets must be owner.field, related.field or pivot.field")
			continue
		}
		field = strings.TrimPrefix(field, "?")
		switch prefix {
		case "owner":
			checkTableColumn(res, em.Pivot, cm.Target, catalog, rel.Entity, field)
		case "related":
			checkTableColumn(res, em.Pivot, cm.Target, catalog, rel.Related, field)
		case "pivot":
			checkTableColumn(res, em.Pivot, cm.Target, catalog, rel.JoinTable, field)
		default:
			res.errorf(em.Pivot, cm.Target, "unknown pivot sync prefix %q", prefix)
		}
	}
}

func checkTableColumn(res *Result, entity, target string, catalog *schema.Catalog, tableName, field string) {
	table := catalog.Table(tableName)
	if table == nil {
		res.errorf(entity, target, "unknown table %q", tableName)
		return
	}
	if table.Column(field) == nil {
		res.errorf(entity, target, "column %q not in table %q", field, tableName)
	}
}
