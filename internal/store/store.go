package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/rowloom/rowloom/internal/schema"
)

// Record is one persisted entity's attributes, keyed by column name.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Store is the data-access contract the loader runs against. The store is
// the sole locking and consistency authority: GetOrCreate must be atomic
// under concurrent writers (upsert or unique-constraint catch, never a
// plain check-then-insert).
type Store interface {
	// FindBy returns the first record matching all fields, or nil.
	FindBy(ctx context.Context, entity string, where Record) (Record, error)
	// FindAllIn returns all records whose field value is in values, for
	// batch existence prefetching.
	FindAllIn(ctx context.Context, entity, field string, values []any) ([]Record, error)
	// Create inserts a record and returns it with generated columns filled.
	Create(ctx context.Context, entity string, attrs Record) (Record, error)
	// GetOrCreate returns the record whose field equals value, creating it
	// from attrs when absent. The second return reports creation.
	GetOrCreate(ctx context.Context, entity, field string, value any, attrs Record) (Record, bool, error)
	// Update overwrites attrs on the record identified by idColumn=id.
	Update(ctx context.Context, entity, idColumn string, id any, attrs Record) (Record, error)
	// Attach writes a join-table link without detaching existing links.
	// Pivot attributes are updated in place when the link already exists.
	Attach(ctx context.Context, spec AttachSpec) error

	Close()
}

// Introspector is implemented by drivers that can discover the target
// schema.
type Introspector interface {
	Introspect(ctx context.Context) (*schema.Schema, error)
}

// AttachSpec describes one join-table link.
type AttachSpec struct {
	JoinTable  string
	OwnerKey   string
	OwnerID    any
	RelatedKey string
	RelatedID  any
	Pivot      Record
}

// UniqueViolation is returned when the store rejects a write because of a
// uniqueness constraint. Column is best-effort: drivers fill it when the
// database error names the conflicting column, otherwise it is empty.
type UniqueViolation struct {
	Entity string
	Column string
	Value  any
	Err    error
}

func (e *UniqueViolation) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("unique violation on %s.%s", e.Entity, e.Column)
	}
	return fmt.Sprintf("unique violation on %s", e.Entity)
}

func (e *UniqueViolation) Unwrap() error { return e.Err }

// AsUniqueViolation unwraps a UniqueViolation from an error chain.
func AsUniqueViolation(err error) (*UniqueViolation, bool) {
	var uv *UniqueViolation
	if errors.As(err, &uv) {
		return uv, true
	}
	return nil, false
}
