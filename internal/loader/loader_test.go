package loader

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/rowloom/rowloom/internal/mapping"
	"github.com/rowloom/rowloom/internal/schema"
	"github.com/rowloom/rowloom/internal/store"
)

func intp(n int) *int { return &n }

func bookSchema() *schema.Schema {
	return &schema.Schema{
		DatabaseType: "postgresql",
		Database:     "library",
		Tables: []schema.Table{
			{
				Name: "authors",
				Columns: []schema.Column{
					{Name: "id", DataType: "bigint"},
					{Name: "name", DataType: "varchar", MaxLength: intp(120)},
					{Name: "country", DataType: "varchar", Nullable: true, MaxLength: intp(60)},
				},
				PrimaryKey: &schema.PrimaryKey{Columns: []string{"id"}},
				Indexes:    []schema.Index{{Name: "authors_name_key", Columns: []string{"name"}, Unique: true}},
			},
			{
				Name: "categories",
				Columns: []schema.Column{
					{Name: "id", DataType: "bigint"},
					{Name: "name", DataType: "varchar", MaxLength: intp(60)},
				},
				PrimaryKey: &schema.PrimaryKey{Columns: []string{"id"}},
				Indexes:    []schema.Index{{Name: "categories_name_key", Columns: []string{"name"}, Unique: true}},
			},
			{
				Name: "books",
				Columns: []schema.Column{
					{Name: "id", DataType: "bigint"},
					{Name: "title", DataType: "varchar", MaxLength: intp(80)},
					{Name: "isbn", DataType: "varchar", MaxLength: intp(13)},
					{Name: "summary", DataType: "text", Nullable: true},
					{Name: "author_id", DataType: "bigint", Nullable: true},
					{Name: "category_id", DataType: "bigint", Nullable: true},
				},
				PrimaryKey: &schema.PrimaryKey{Columns: []string{"id"}},
				ForeignKeys: []schema.ForeignKey{
					{Columns: []string{"author_id"}, ReferencedTable: "authors", ReferencedColumns: []string{"id"}},
					{Columns: []string{"category_id"}, ReferencedTable: "categories", ReferencedColumns: []string{"id"}},
				},
				Indexes: []schema.Index{{Name: "books_isbn_key", Columns: []string{"isbn"}, Unique: true}},
			},
			{
				Name: "book_details",
				Columns: []schema.Column{
					{Name: "id", DataType: "bigint"},
					{Name: "book_id", DataType: "bigint"},
					{Name: "page_count", DataType: "integer"},
				},
				PrimaryKey:  &schema.PrimaryKey{Columns: []string{"id"}},
				ForeignKeys: []schema.ForeignKey{{Columns: []string{"book_id"}, ReferencedTable: "books", ReferencedColumns: []string{"id"}}},
				Indexes:     []schema.Index{{Name: "details_book_key", Columns: []string{"book_id"}, Unique: true}},
			},
			{
				Name: "chapters",
				Columns: []schema.Column{
					{Name: "id", DataType: "bigint"},
					{Name: "book_id", DataType: "bigint"},
					{Name: "title", DataType: "varchar", MaxLength: intp(80)},
					{Name: "number", DataType: "integer", Nullable: true},
				},
				PrimaryKey:  &schema.PrimaryKey{Columns: []string{"id"}},
				ForeignKeys: []schema.ForeignKey{{Columns: []string{"book_id"}, ReferencedTable: "books", ReferencedColumns: []string{"id"}}},
			},
			{
				Name: "tags",
				Columns: []schema.Column{
					{Name: "id", DataType: "bigint"},
					{Name: "name", DataType: "varchar", MaxLength: intp(40)},
					{Name: "note", DataType: "varchar", Nullable: true, MaxLength: intp(200)},
				},
				PrimaryKey: &schema.PrimaryKey{Columns: []string{"id"}},
				Indexes:    []schema.Index{{Name: "tags_name_key", Columns: []string{"name"}, Unique: true}},
			},
			{
				Name: "book_tag",
				Columns: []schema.Column{
					{Name: "book_id", DataType: "bigint"},
					{Name: "tag_id", DataType: "bigint"},
					{Name: "weight", DataType: "integer", Nullable: true},
				},
				PrimaryKey: &schema.PrimaryKey{Columns: []string{"book_id", "tag_id"}},
				ForeignKeys: []schema.ForeignKey{
					{Columns: []string{"book_id"}, ReferencedTable: "books", ReferencedColumns: []string{"id"}},
					{Columns: []string{"tag_id"}, ReferencedTable: "tags", ReferencedColumns: []string{"id"}},
				},
			},
		},
	}
}

func newTestLoader(t *testing.T) (*Loader, *store.Mem) {
	t.Helper()
	catalog := schema.NewCatalog(bookSchema())
	mem := store.NewMem(catalog)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(mem, catalog, logger), mem
}

func bookMapping(columns ...mapping.ColumnMapping) mapping.EntityMapping {
	return mapping.EntityMapping{
		Entity:  "books",
		Columns: columns,
		Options: mapping.Options{UniqueKey: mapping.StringList{"isbn"}},
	}
}

func TestLoadRowAttributesAndOwningRelation(t *testing.T) {
	l, mem := newTestLoader(t)

	em := bookMapping(
		mapping.ColumnMapping{Source: "book_title", Target: "title", Transforms: []string{"trim"}},
		mapping.ColumnMapping{Source: "isbn", Target: "isbn"},
		mapping.ColumnMapping{Source: "author_name", Target: "author.name+"},
	)
	row := Row{"book_title": " Dune ", "isbn": "9780441013593", "author_name": "Frank Herbert"}

	owner, err := l.LoadRow(context.Background(), em, row)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if owner["title"] != "Dune" {
		t.Errorf("expected trimmed title, got %v", owner["title"])
	}

	authors := mem.All("authors")
	if len(authors) != 1 || authors[0]["name"] != "Frank Herbert" {
		t.Fatalf("expected created author, got %v", authors)
	}
	if owner["author_id"] != authors[0]["id"] {
		t.Errorf("foreign key not resolved before persistence: %v != %v", owner["author_id"], authors[0]["id"])
	}
}

func TestLoadRowReusesExistingRelatedRecord(t *testing.T) {
	l, mem := newTestLoader(t)
	seeded := mem.Seed("authors", store.Record{"name": "Frank Herbert"})

	em := bookMapping(
		mapping.ColumnMapping{Source: "isbn", Target: "isbn"},
		mapping.ColumnMapping{Source: "author_name", Target: "author.name+"},
	)
	owner, err := l.LoadRow(context.Background(), em, Row{"isbn": "1", "author_name": "Frank Herbert"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(mem.All("authors")) != 1 {
		t.Error("lookup hit must not create a second author")
	}
	if owner["author_id"] != seeded["id"] {
		t.Errorf("expected link to seeded author, got %v", owner["author_id"])
	}
}

func TestLoadRowMissingLinkIsSilent(t *testing.T) {
	l, mem := newTestLoader(t)

	em := bookMapping(
		mapping.ColumnMapping{Source: "isbn", Target: "isbn"},
		mapping.ColumnMapping{Source: "category_name", Target: "category.name"},
	)
	owner, err := l.LoadRow(context.Background(), em, Row{"isbn": "1", "category_name": "Sci-Fi"})
	if err != nil {
		t.Fatalf("row must succeed without the link: %v", err)
	}
	if _, linked := owner["category_id"]; linked {
		t.Error("expected no category_id on the owner")
	}
	if len(mem.All("categories")) != 0 {
		t.Error("lookup without create must not create the category")
	}

	skipped := l.SkippedLinks()
	if len(skipped) != 1 {
		t.Fatalf("expected 1 skipped link, got %d", len(skipped))
	}
	if skipped[0].Relation != "category" || skipped[0].Value != "Sci-Fi" {
		t.Errorf("unexpected skipped link: %+v", skipped[0])
	}
}

func TestDuplicateSkipIsDefault(t *testing.T) {
	l, mem := newTestLoader(t)

	em := bookMapping(
		mapping.ColumnMapping{Source: "title", Target: "title"},
		mapping.ColumnMapping{Source: "isbn", Target: "isbn"},
	)
	ctx := context.Background()

	if _, err := l.LoadRow(ctx, em, Row{"title": "Dune", "isbn": "1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec, err := l.LoadRow(ctx, em, Row{"title": "Changed", "isbn": "1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec != nil {
		t.Errorf("duplicate-skip must return no record, got %v", rec)
	}

	books := mem.All("books")
	if len(books) != 1 || books[0]["title"] != "Dune" {
		t.Errorf("skip must leave the existing record untouched: %v", books)
	}
}

func TestDuplicateUpdate(t *testing.T) {
	l, mem := newTestLoader(t)

	em := bookMapping(
		mapping.ColumnMapping{Source: "title", Target: "title"},
		mapping.ColumnMapping{Source: "isbn", Target: "isbn"},
	)
	em.Options.DuplicateStrategy = mapping.DuplicateUpdate
	ctx := context.Background()

	if _, err := l.LoadRow(ctx, em, Row{"title": "Dune", "isbn": "1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec, err := l.LoadRow(ctx, em, Row{"title": "Dune (Revised)", "isbn": "1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec == nil || rec["title"] != "Dune (Revised)" {
		t.Errorf("expected updated record, got %v", rec)
	}
	if len(mem.All("books")) != 1 {
		t.Error("update must not insert a second record")
	}
}

func TestDuplicateUpdateIsIdempotent(t *testing.T) {
	l, mem := newTestLoader(t)

	em := bookMapping(
		mapping.ColumnMapping{Source: "title", Target: "title"},
		mapping.ColumnMapping{Source: "isbn", Target: "isbn"},
	)
	em.Options.DuplicateStrategy = mapping.DuplicateUpdate
	ctx := context.Background()
	row := Row{"title": "Dune", "isbn": "1"}

	for i := 0; i < 3; i++ {
		if _, err := l.LoadRow(ctx, em, row); err != nil {
			t.Fatalf("pass %d: %v", i, err)
		}
	}
	books := mem.All("books")
	if len(books) != 1 || books[0]["title"] != "Dune" {
		t.Errorf("repeated update of the same row must converge: %v", books)
	}
}

func TestDuplicateError(t *testing.T) {
	l, _ := newTestLoader(t)

	em := bookMapping(
		mapping.ColumnMapping{Source: "isbn", Target: "isbn"},
	)
	em.Options.DuplicateStrategy = mapping.DuplicateError
	ctx := context.Background()

	if _, err := l.LoadRow(ctx, em, Row{"isbn": "1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := l.LoadRow(ctx, em, Row{"isbn": "1"})
	var dup *DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateError, got %v", err)
	}
	if dup.Entity != "books" || dup.Keys[0] != "isbn" {
		t.Errorf("unexpected duplicate detail: %+v", dup)
	}
}

func TestPersistRecoversKeyFromUniqueViolation(t *testing.T) {
	l, mem := newTestLoader(t)

	// No unique key configured: the store's rejection names the column and
	// duplicate handling proceeds from there.
	em := mapping.EntityMapping{
		Entity: "tags",
		Columns: []mapping.ColumnMapping{
			{Source: "tag", Target: "name"},
		},
	}
	ctx := context.Background()

	if _, err := l.LoadRow(ctx, em, Row{"tag": "scifi"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec, err := l.LoadRow(ctx, em, Row{"tag": "scifi"})
	if err != nil {
		t.Fatalf("expected duplicate-skip, got %v", err)
	}
	if rec != nil {
		t.Errorf("expected no record on duplicate, got %v", rec)
	}
	if len(mem.All("tags")) != 1 {
		t.Error("expected a single tag")
	}
}

func TestNullUniqueKeyFallsBackToCreate(t *testing.T) {
	l, mem := newTestLoader(t)

	em := bookMapping(
		mapping.ColumnMapping{Source: "title", Target: "title"},
	)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := l.LoadRow(ctx, em, Row{"title": "Untitled"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if len(mem.All("books")) != 2 {
		t.Error("null unique key cannot identify a duplicate; both rows insert")
	}
}

func TestTruncationToColumnLength(t *testing.T) {
	l, mem := newTestLoader(t)

	em := bookMapping(
		mapping.ColumnMapping{Source: "title", Target: "title"},
		mapping.ColumnMapping{Source: "isbn", Target: "isbn"},
	)
	long := strings.Repeat("x", 100)

	owner, err := l.LoadRow(context.Background(), em, Row{"title": long, "isbn": "1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := owner["title"].(string); len(got) != 80 {
		t.Errorf("expected 80 characters, got %d", len(got))
	}

	trunc := l.TruncatedFields()
	if len(trunc) != 1 {
		t.Fatalf("expected 1 truncation, got %d", len(trunc))
	}
	if trunc[0].Field != "title" || trunc[0].OriginalLength != 100 || trunc[0].MaxLength != 80 {
		t.Errorf("unexpected truncation detail: %+v", trunc[0])
	}

	if mem.All("books")[0]["title"].(string) != strings.Repeat("x", 80) {
		t.Error("stored value must be the truncated one")
	}
}

func TestVirtualColumns(t *testing.T) {
	l, _ := newTestLoader(t)

	em := bookMapping(
		mapping.ColumnMapping{Source: "isbn", Target: "isbn"},
		mapping.ColumnMapping{Source: mapping.VirtualDefault, Target: "summary", Default: "n/a"},
		mapping.ColumnMapping{Source: mapping.VirtualSkip, Target: "title", Default: "ignored"},
	)
	owner, err := l.LoadRow(context.Background(), em, Row{"isbn": "1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if owner["summary"] != "n/a" {
		t.Errorf("virtual:default must use the mapping default, got %v", owner["summary"])
	}
	if _, present := owner["title"]; present {
		t.Error("virtual:skip must contribute nothing")
	}
}

func TestVirtualRandomGeneratesDistinctValues(t *testing.T) {
	l, mem := newTestLoader(t)

	em := mapping.EntityMapping{
		Entity: "tags",
		Columns: []mapping.ColumnMapping{
			{Source: mapping.VirtualRandom, Target: "name"},
		},
	}
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := l.LoadRow(ctx, em, Row{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	tags := mem.All("tags")
	if len(tags) != 2 || tags[0]["name"] == tags[1]["name"] {
		t.Errorf("expected two distinct generated names: %v", tags)
	}
}

func TestDefaultSubstitutionForEmptyValue(t *testing.T) {
	l, _ := newTestLoader(t)

	em := bookMapping(
		mapping.ColumnMapping{Source: "isbn", Target: "isbn"},
		mapping.ColumnMapping{Source: "summary", Target: "summary", Default: "none"},
	)
	owner, err := l.LoadRow(context.Background(), em, Row{"isbn": "1", "summary": ""})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if owner["summary"] != "none" {
		t.Errorf("empty string must take the default, got %v", owner["summary"])
	}
}
