package schema

import (
	"sort"
	"strings"
)

// RelationKind classifies the cardinality and ownership of a relation.
type RelationKind int

const (
	// KindUnknown means the relation name could not be resolved. Callers
	// must treat this permissively rather than failing the row.
	KindUnknown RelationKind = iota
	// KindOwningToOne: the foreign key lives on the entity being loaded.
	KindOwningToOne
	// KindInverseToOne: the foreign key lives on the related entity and is
	// unique there.
	KindInverseToOne
	// KindToMany: the foreign key lives on the related entities; many
	// children may point back at the loaded entity.
	KindToMany
	// KindManyToMany: the relation is expressed through a join table,
	// optionally carrying pivot attributes.
	KindManyToMany
)

func (k RelationKind) String() string {
	switch k {
	case KindOwningToOne:
		return "owning_to_one"
	case KindInverseToOne:
		return "inverse_to_one"
	case KindToMany:
		return "to_many"
	case KindManyToMany:
		return "many_to_many"
	default:
		return "unknown"
	}
}

// Relation describes one named relation on an entity.
type Relation struct {
	Name    string
	Kind    RelationKind
	Entity  string // the entity the relation is declared on
	Related string // the related entity's table

	// ForeignKey is the FK column on Entity for owning relations, or on
	// Related for inverse/to-many relations.
	ForeignKey string
	// RelatedKey is the column ForeignKey references, usually the id.
	RelatedKey string

	// Join table wiring, set only for many-to-many relations.
	JoinTable      string
	JoinOwnerKey   string
	JoinRelatedKey string
}

// Catalog resolves relation names and column facts against an introspected
// schema. It is built once per load run and read-only afterwards.
type Catalog struct {
	tables    map[string]*Table
	relations map[string]map[string]*Relation
}

// NewCatalog derives a relation catalog from the FK topology of a schema:
// owning relations from each table's own foreign keys, to-many and inverse
// relations from foreign keys pointing back at it, and many-to-many
// relations from detected join tables.
func NewCatalog(s *Schema) *Catalog {
	c := &Catalog{
		tables:    make(map[string]*Table, len(s.Tables)),
		relations: make(map[string]map[string]*Relation),
	}
	for i := range s.Tables {
		t := &s.Tables[i]
		c.tables[t.Name] = t
	}

	joins := detectJoinTables(c.tables)

	for name, t := range c.tables {
		for _, fk := range t.ForeignKeys {
			if len(fk.Columns) != 1 || c.tables[fk.ReferencedTable] == nil {
				continue
			}
			// Owning side: orders.customer_id -> relation "customer".
			c.add(&Relation{
				Name:       relationNameForFK(fk.Columns[0], fk.ReferencedTable),
				Kind:       KindOwningToOne,
				Entity:     name,
				Related:    fk.ReferencedTable,
				ForeignKey: fk.Columns[0],
				RelatedKey: referencedColumn(fk),
			})

			if joins[name] != nil {
				continue // join table rows are reached through many-to-many
			}

			// Inverse side on the referenced table.
			kind := KindToMany
			if c.columnUnique(name, fk.Columns[0]) {
				kind = KindInverseToOne
			}
			c.add(&Relation{
				Name:       name,
				Kind:       kind,
				Entity:     fk.ReferencedTable,
				Related:    name,
				ForeignKey: fk.Columns[0],
				RelatedKey: referencedColumn(fk),
			})
		}
	}

	for joinName, j := range joins {
		c.add(&Relation{
			Name:           j.right,
			Kind:           KindManyToMany,
			Entity:         j.left,
			Related:        j.right,
			RelatedKey:     c.tables[j.right].IDColumn(),
			JoinTable:      joinName,
			JoinOwnerKey:   j.leftCol,
			JoinRelatedKey: j.rightCol,
		})
		c.add(&Relation{
			Name:           j.left,
			Kind:           KindManyToMany,
			Entity:         j.right,
			Related:        j.left,
			RelatedKey:     c.tables[j.left].IDColumn(),
			JoinTable:      joinName,
			JoinOwnerKey:   j.rightCol,
			JoinRelatedKey: j.leftCol,
		})
	}

	return c
}

func (c *Catalog) add(r *Relation) {
	m := c.relations[r.Entity]
	if m == nil {
		m = make(map[string]*Relation)
		c.relations[r.Entity] = m
	}
	if _, exists := m[r.Name]; !exists {
		m[r.Name] = r
	}
}

// Override registers or replaces a relation definition, taking precedence
// over anything derived from the FK topology.
func (c *Catalog) Override(r Relation) {
	m := c.relations[r.Entity]
	if m == nil {
		m = make(map[string]*Relation)
		c.relations[r.Entity] = m
	}
	m[r.Name] = &r
}

// Relation resolves a named relation on an entity. Returns nil for unknown
// names; callers fall back to best-effort behavior.
func (c *Catalog) Relation(entity, name string) *Relation {
	return c.relations[entity][name]
}

// Table returns the table definition for an entity, or nil.
func (c *Catalog) Table(name string) *Table {
	return c.tables[name]
}

// Entities returns all known entity names in sorted order.
func (c *Catalog) Entities() []string {
	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Relations returns an entity's relations sorted by name.
func (c *Catalog) Relations(entity string) []*Relation {
	m := c.relations[entity]
	rels := make([]*Relation, 0, len(m))
	for _, r := range m {
		rels = append(rels, r)
	}
	sort.Slice(rels, func(i, j int) bool { return rels[i].Name < rels[j].Name })
	return rels
}

// ColumnMaxLength returns the maximum character length of a column, or nil
// when the column is unbounded or unknown. The second return reports whether
// the column was found at all.
func (c *Catalog) ColumnMaxLength(entity, column string) (*int, bool) {
	t := c.tables[entity]
	if t == nil {
		return nil, false
	}
	col := t.Column(column)
	if col == nil {
		return nil, false
	}
	return col.MaxLength, true
}

// IsUnique reports whether a column carries a uniqueness constraint
// (primary key or single-column unique index) on the entity.
func (c *Catalog) IsUnique(entity, column string) bool {
	return c.columnUnique(entity, column)
}

func (c *Catalog) columnUnique(entity, column string) bool {
	t := c.tables[entity]
	if t == nil {
		return false
	}
	if t.PrimaryKey != nil && len(t.PrimaryKey.Columns) == 1 && t.PrimaryKey.Columns[0] == column {
		return true
	}
	for _, idx := range t.Indexes {
		if idx.Unique && len(idx.Columns) == 1 && idx.Columns[0] == column {
			return true
		}
	}
	return false
}

type joinInfo struct {
	left, right       string
	leftCol, rightCol string
}

// detectJoinTables finds many-to-many join tables: exactly two single-column
// FKs and nothing referencing the table. Non-FK columns are allowed since
// join tables may carry pivot attributes.
func detectJoinTables(tables map[string]*Table) map[string]*joinInfo {
	referenced := make(map[string]bool)
	for _, t := range tables {
		for _, fk := range t.ForeignKeys {
			referenced[fk.ReferencedTable] = true
		}
	}

	result := make(map[string]*joinInfo)
	for name, t := range tables {
		if len(t.ForeignKeys) != 2 || referenced[name] {
			continue
		}
		l, r := t.ForeignKeys[0], t.ForeignKeys[1]
		if len(l.Columns) != 1 || len(r.Columns) != 1 {
			continue
		}
		if tables[l.ReferencedTable] == nil || tables[r.ReferencedTable] == nil {
			continue
		}
		result[name] = &joinInfo{
			left:     l.ReferencedTable,
			right:    r.ReferencedTable,
			leftCol:  l.Columns[0],
			rightCol: r.Columns[0],
		}
	}
	return result
}

// relationNameForFK derives an owning relation name from its FK column:
// "category_id" becomes "category". Columns without the _id suffix fall
// back to the referenced table name.
func relationNameForFK(column, referenced string) string {
	if stem, ok := strings.CutSuffix(column, "_id"); ok && stem != "" {
		return stem
	}
	return referenced
}

func referencedColumn(fk ForeignKey) string {
	if len(fk.ReferencedColumns) == 1 {
		return fk.ReferencedColumns[0]
	}
	return "id"
}
