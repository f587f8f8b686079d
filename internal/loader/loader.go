// Package loader implements the relation-driven load engine: it groups a
// row's mapped values into direct attributes and relation fragments,
// resolves owning relations before the owner is written, persists the owner
// under a duplicate-handling policy, and synchronizes dependent relations
// afterwards.
package loader

import (
	"context"
	"log/slog"

	"github.com/rowloom/rowloom/internal/mapping"
	"github.com/rowloom/rowloom/internal/schema"
	"github.com/rowloom/rowloom/internal/store"
)

// Row is one flat source record, keyed by source column name. Rows are
// read-only during load.
type Row map[string]any

// TruncatedField records one string truncation applied by the length guard.
type TruncatedField struct {
	Field          string
	OriginalLength int
	MaxLength      int
}

// SkippedLink records a to-one lookup that found no related record and was
// not allowed to create one. The row still succeeds; callers may surface
// these as warnings.
type SkippedLink struct {
	Entity   string
	Relation string
	Field    string
	Value    any
}

// Loader loads rows one at a time, in source order. It is not safe for
// concurrent use: the length cache and per-row diagnostics are scoped to
// one load run.
type Loader struct {
	store   store.Store
	catalog *schema.Catalog
	logger  *slog.Logger

	lengths   *lengthCache
	truncated []TruncatedField
	skipped   []SkippedLink
}

// New creates a loader over the given store and relation catalog.
func New(st store.Store, catalog *schema.Catalog, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		store:   st,
		catalog: catalog,
		logger:  logger,
		lengths: newLengthCache(),
	}
}

// LoadRow loads one row for one entity mapping. It returns the persisted
// owner record, or (nil, nil) when the duplicate-skip strategy deliberately
// produced no record, or a typed error.
//
// Phases run strictly in order: grouping, to-one resolution, persistence,
// relation synchronization. Resolved foreign keys must exist before the
// owner write.
func (l *Loader) LoadRow(ctx context.Context, em mapping.EntityMapping, row Row) (store.Record, error) {
	l.truncated = l.truncated[:0]
	l.skipped = l.skipped[:0]

	if em.Pivot != "" {
		return l.syncPivot(ctx, em, row)
	}

	g, err := l.group(em, row)
	if err != nil {
		return nil, err
	}

	for _, name := range g.order {
		rd := g.relations[name]
		if rd.rel == nil || rd.rel.Kind != schema.KindOwningToOne {
			continue
		}
		fkCol, fkVal, err := l.resolveOwning(ctx, em.Entity, rd)
		if err != nil {
			return nil, err
		}
		if fkCol != "" {
			g.attrs[fkCol] = fkVal
		}
	}

	owner, err := l.persist(ctx, em, g.attrs)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, nil // duplicate-skip outcome
	}

	if err := l.syncRelations(ctx, em, owner, g, row); err != nil {
		return owner, err
	}
	return owner, nil
}

// TruncatedFields returns the truncations recorded for the most recent row.
func (l *Loader) TruncatedFields() []TruncatedField {
	return l.truncated
}

// SkippedLinks returns the silently omitted to-one links for the most
// recent row.
func (l *Loader) SkippedLinks() []SkippedLink {
	return l.skipped
}

func (l *Loader) idColumn(entity string) string {
	if t := l.catalog.Table(entity); t != nil {
		return t.IDColumn()
	}
	return "id"
}
