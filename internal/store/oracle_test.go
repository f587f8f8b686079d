package store

import (
	"testing"

	"github.com/rowloom/rowloom/internal/schema"
)

func TestOracleIDColumnFromCatalog(t *testing.T) {
	catalog := schema.NewCatalog(&schema.Schema{
		Tables: []schema.Table{
			{
				Name:       "invoices",
				Columns:    []schema.Column{{Name: "invoice_no"}, {Name: "total"}},
				PrimaryKey: &schema.PrimaryKey{Columns: []string{"invoice_no"}},
			},
		},
	})

	o := NewOracle("oracle://loader:secret@db:1521/app", "app")
	if got := o.idColumn("invoices"); got != "id" {
		t.Errorf("unbound store defaults to id, got %q", got)
	}

	o.BindCatalog(catalog)
	if got := o.idColumn("invoices"); got != "invoice_no" {
		t.Errorf("expected the table's primary key column, got %q", got)
	}
	if got := o.idColumn("unknown"); got != "id" {
		t.Errorf("unknown tables default to id, got %q", got)
	}
}

func TestQuoteIdentOra(t *testing.T) {
	if got := quoteIdentOra("invoice_no"); got != `"INVOICE_NO"` {
		t.Errorf("unexpected quoting: %s", got)
	}
	if got := quoteIdentOra(`bad"name`); got != `"BADNAME"` {
		t.Errorf("embedded quotes must be stripped, got %s", got)
	}
}
