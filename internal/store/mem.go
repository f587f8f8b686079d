package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/rowloom/rowloom/internal/schema"
)

// Mem is an in-memory Store used in tests. It enforces single-column
// unique indexes and primary keys from the catalog so duplicate handling
// and upsert semantics behave like a real database, and counts calls per
// operation so tests can assert on query volume.
type Mem struct {
	mu      sync.Mutex
	catalog *schema.Catalog
	tables  map[string][]Record
	nextID  map[string]int64

	// Calls counts invocations keyed by "op:entity", e.g. "FindAllIn:books".
	Calls map[string]int

	// Hook, when set, runs before every operation and can inject a failure.
	Hook func(op, entity string) error
}

// NewMem creates an empty in-memory store over the given catalog.
func NewMem(catalog *schema.Catalog) *Mem {
	return &Mem{
		catalog: catalog,
		tables:  make(map[string][]Record),
		nextID:  make(map[string]int64),
		Calls:   make(map[string]int),
	}
}

// Seed inserts a record directly, bypassing unique checks.
func (m *Mem) Seed(entity string, rec Record) Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := rec.Clone()
	m.fillID(entity, r)
	m.tables[entity] = append(m.tables[entity], r)
	return r.Clone()
}

// All returns copies of every record in an entity's table.
func (m *Mem) All(entity string) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.tables[entity]))
	for i, r := range m.tables[entity] {
		out[i] = r.Clone()
	}
	return out
}

func (m *Mem) Close() {}

func (m *Mem) FindBy(_ context.Context, entity string, where Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("FindBy", entity); err != nil {
		return nil, err
	}
	if rec := m.findLocked(entity, where); rec != nil {
		return rec.Clone(), nil
	}
	return nil, nil
}

func (m *Mem) FindAllIn(_ context.Context, entity, field string, values []any) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("FindAllIn", entity); err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(values))
	for _, v := range values {
		wanted[stringify(v)] = true
	}
	var out []Record
	for _, rec := range m.tables[entity] {
		if wanted[stringify(rec[field])] {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

func (m *Mem) Create(_ context.Context, entity string, attrs Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Create", entity); err != nil {
		return nil, err
	}
	return m.createLocked(entity, attrs)
}

func (m *Mem) GetOrCreate(_ context.Context, entity, field string, value any, attrs Record) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetOrCreate", entity); err != nil {
		return nil, false, err
	}
	if rec := m.findLocked(entity, Record{field: value}); rec != nil {
		return rec.Clone(), false, nil
	}
	merged := attrs.Clone()
	merged[field] = value
	rec, err := m.createLocked(entity, merged)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

func (m *Mem) Update(_ context.Context, entity, idColumn string, id any, attrs Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Update", entity); err != nil {
		return nil, err
	}
	for _, rec := range m.tables[entity] {
		if stringify(rec[idColumn]) == stringify(id) {
			for k, v := range attrs {
				rec[k] = v
			}
			return rec.Clone(), nil
		}
	}
	return nil, fmt.Errorf("updating %s: no record with %s = %v", entity, idColumn, id)
}

func (m *Mem) Attach(_ context.Context, spec AttachSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Attach", spec.JoinTable); err != nil {
		return err
	}
	for _, rec := range m.tables[spec.JoinTable] {
		if stringify(rec[spec.OwnerKey]) == stringify(spec.OwnerID) &&
			stringify(rec[spec.RelatedKey]) == stringify(spec.RelatedID) {
			for k, v := range spec.Pivot {
				rec[k] = v
			}
			return nil
		}
	}
	link := Record{spec.OwnerKey: spec.OwnerID, spec.RelatedKey: spec.RelatedID}
	for k, v := range spec.Pivot {
		link[k] = v
	}
	m.tables[spec.JoinTable] = append(m.tables[spec.JoinTable], link)
	return nil
}

func (m *Mem) enter(op, entity string) error {
	m.Calls[op+":"+entity]++
	if m.Hook != nil {
		return m.Hook(op, entity)
	}
	return nil
}

func (m *Mem) findLocked(entity string, where Record) Record {
	for _, rec := range m.tables[entity] {
		match := true
		for k, v := range where {
			if stringify(rec[k]) != stringify(v) {
				match = false
				break
			}
		}
		if match {
			return rec
		}
	}
	return nil
}

func (m *Mem) createLocked(entity string, attrs Record) (Record, error) {
	for _, col := range m.uniqueColumns(entity) {
		v, ok := attrs[col]
		if !ok || v == nil {
			continue
		}
		if m.findLocked(entity, Record{col: v}) != nil {
			return nil, &UniqueViolation{Entity: entity, Column: col, Value: v}
		}
	}

	rec := attrs.Clone()
	m.fillID(entity, rec)
	m.tables[entity] = append(m.tables[entity], rec)
	return rec.Clone(), nil
}

func (m *Mem) uniqueColumns(entity string) []string {
	t := m.catalog.Table(entity)
	if t == nil {
		return nil
	}
	var cols []string
	if t.PrimaryKey != nil && len(t.PrimaryKey.Columns) == 1 {
		cols = append(cols, t.PrimaryKey.Columns[0])
	}
	for _, idx := range t.Indexes {
		if idx.Unique && len(idx.Columns) == 1 {
			cols = append(cols, idx.Columns[0])
		}
	}
	return cols
}

func (m *Mem) fillID(entity string, rec Record) {
	idCol := "id"
	if t := m.catalog.Table(entity); t != nil {
		idCol = t.IDColumn()
	}
	if _, ok := rec[idCol]; !ok {
		m.nextID[entity]++
		rec[idCol] = m.nextID[entity]
	}
}

func stringify(v any) string {
	if v == nil {
		return "\x00nil"
	}
	return fmt.Sprintf("%v", v)
}
