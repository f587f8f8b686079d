package loader

import (
	"context"
	"testing"

	"github.com/rowloom/rowloom/internal/mapping"
)

func importDefinition() *mapping.Definition {
	return &mapping.Definition{
		Name: "books-import",
		Entities: []mapping.EntityMapping{
			{
				Entity:  "books",
				Options: mapping.Options{UniqueKey: mapping.StringList{"isbn"}},
				Columns: []mapping.ColumnMapping{
					{Source: "title", Target: "title"},
					{Source: "isbn", Target: "isbn"},
					{Source: "author", Target: "author.name"},
				},
			},
			{
				Entity:  "authors",
				Options: mapping.Options{UniqueKey: mapping.StringList{"name"}},
				Columns: []mapping.ColumnMapping{
					{Source: "author", Target: "name"},
				},
			},
		},
	}
}

func TestLoadAllRunsDependenciesFirst(t *testing.T) {
	l, mem := newTestLoader(t)

	rows := []Row{
		{"title": "Dune", "isbn": "1", "author": "Frank Herbert"},
		{"title": "Hyperion", "isbn": "2", "author": "Dan Simmons"},
	}

	rep, err := l.LoadAll(context.Background(), importDefinition(), rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rep.Rows != 2 {
		t.Errorf("expected 2 rows, got %d", rep.Rows)
	}
	if got := rep.Entities["authors"].Imported; got != 2 {
		t.Errorf("expected 2 authors imported, got %d", got)
	}
	if got := rep.Entities["books"].Imported; got != 2 {
		t.Errorf("expected 2 books imported, got %d", got)
	}

	// The author mapping ran before the book mapping within each row, so
	// every book found its author.
	for _, book := range mem.All("books") {
		if book["author_id"] == nil {
			t.Errorf("book %v missing author link", book["isbn"])
		}
	}
	if got := len(rep.Entities["books"].Errors); got != 0 {
		t.Errorf("expected no sampled errors, got %v", rep.Entities["books"].Errors)
	}
}

func TestLoadAllCountsSkips(t *testing.T) {
	l, _ := newTestLoader(t)

	rows := []Row{
		{"title": "Dune", "isbn": "1", "author": "Frank Herbert"},
		{"title": "Dune", "isbn": "1", "author": "Frank Herbert"},
	}

	rep, err := l.LoadAll(context.Background(), importDefinition(), rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := rep.Entities["books"].Skipped; got != 1 {
		t.Errorf("expected 1 skipped book, got %d", got)
	}
	if got := rep.Entities["authors"].Skipped; got != 1 {
		t.Errorf("expected 1 skipped author, got %d", got)
	}
	if rep.TotalFailed() != 0 {
		t.Errorf("expected no failures, got %d", rep.TotalFailed())
	}
}

func TestLoadAllRecordsRowFailures(t *testing.T) {
	l, mem := newTestLoader(t)
	mem.Hook = func(op, entity string) error {
		if entity == "books" && op == "Create" {
			return context.DeadlineExceeded
		}
		return nil
	}

	rows := []Row{{"title": "Dune", "isbn": "1", "author": "Frank Herbert"}}
	rep, err := l.LoadAll(context.Background(), importDefinition(), rows)
	if err != nil {
		t.Fatalf("row failures must not abort the run: %v", err)
	}

	if got := rep.Entities["books"].Failed; got != 1 {
		t.Errorf("expected 1 failed book, got %d", got)
	}
	if got := rep.Entities["authors"].Imported; got != 1 {
		t.Errorf("other mappings still run, got %d authors", got)
	}
	if len(rep.Entities["books"].Errors) != 1 {
		t.Errorf("expected a sampled row error")
	}
}

func TestLoadAllHonorsContextCancellation(t *testing.T) {
	l, _ := newTestLoader(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rows := []Row{{"title": "Dune", "isbn": "1", "author": "x"}}
	if _, err := l.LoadAll(ctx, importDefinition(), rows); err == nil {
		t.Error("expected context error")
	}
}
