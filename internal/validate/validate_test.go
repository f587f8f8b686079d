package validate

import (
	"strings"
	"testing"

	"github.com/rowloom/rowloom/internal/mapping"
	"github.com/rowloom/rowloom/internal/schema"
)

func shopCatalog() *schema.Catalog {
	s := &schema.Schema{
		Tables: []schema.Table{
			{
				Name: "brands",
				Columns: []schema.Column{
					{Name: "id"},
					{Name: "name"},
					{Name: "country"},
				},
				PrimaryKey: &schema.PrimaryKey{Columns: []string{"id"}},
				Indexes:    []schema.Index{{Name: "brands_name_key", Columns: []string{"name"}, Unique: true}},
			},
			{
				Name: "products",
				Columns: []schema.Column{
					{Name: "id"},
					{Name: "sku"},
					{Name: "name"},
					{Name: "brand_id"},
				},
				PrimaryKey: &schema.PrimaryKey{Columns: []string{"id"}},
				Indexes:    []schema.Index{{Name: "products_sku_key", Columns: []string{"sku"}, Unique: true}},
				ForeignKeys: []schema.ForeignKey{
					{Columns: []string{"brand_id"}, ReferencedTable: "brands", ReferencedColumns: []string{"id"}},
				},
			},
			{
				Name: "stores",
				Columns: []schema.Column{
					{Name: "id"},
					{Name: "code"},
				},
				PrimaryKey: &schema.PrimaryKey{Columns: []string{"id"}},
				Indexes:    []schema.Index{{Name: "stores_code_key", Columns: []string{"code"}, Unique: true}},
			},
			{
				Name: "product_store",
				Columns: []schema.Column{
					{Name: "product_id"},
					{Name: "store_id"},
					{Name: "stock"},
				},
				PrimaryKey: &schema.PrimaryKey{Columns: []string{"product_id", "store_id"}},
				ForeignKeys: []schema.ForeignKey{
					{Columns: []string{"product_id"}, ReferencedTable: "products", ReferencedColumns: []string{"id"}},
					{Columns: []string{"store_id"}, ReferencedTable: "stores", ReferencedColumns: []string{"id"}},
				},
			},
		},
	}
	return schema.NewCatalog(s)
}

func productMapping(columns ...mapping.ColumnMapping) *mapping.Definition {
	return &mapping.Definition{
		Entities: []mapping.EntityMapping{
			{
				Entity:  "products",
				Options: mapping.Options{UniqueKey: mapping.StringList{"sku"}},
				Columns: columns,
			},
		},
	}
}

func findIssue(t *testing.T, res *Result, fragment string) Issue {
	t.Helper()
	for _, i := range res.Issues {
		if strings.Contains(i.Message, fragment) {
			return i
		}
	}
	t.Fatalf("no issue containing %q, got %v", fragment, res.Issues)
	return Issue{}
}

func TestValidDefinitionPasses(t *testing.T) {
	def := productMapping(
		mapping.ColumnMapping{Source: "sku", Target: "sku"},
		mapping.ColumnMapping{Source: "brand", Target: "brand.name+"},
	)

	res := Definition(def, shopCatalog())
	if !res.OK() {
		t.Errorf("expected clean result, got %v", res.Issues)
	}
}

func TestEmptyDefinition(t *testing.T) {
	res := Definition(&mapping.Definition{}, shopCatalog())
	if res.OK() {
		t.Fatal("expected failure")
	}
	findIssue(t, res, "no entity mappings")
}

func TestUnknownEntityTable(t *testing.T) {
	def := &mapping.Definition{Entities: []mapping.EntityMapping{
		{Entity: "warehouses", Columns: []mapping.ColumnMapping{{Source: "c", Target: "code"}}},
	}}

	res := Definition(def, shopCatalog())
	findIssue(t, res, "unknown entity table")
}

func TestUnknownColumn(t *testing.T) {
	def := productMapping(mapping.ColumnMapping{Source: "p", Target: "price"})

	res := Definition(def, shopCatalog())
	i := findIssue(t, res, `column "price" not in table`)
	if i.Entity != "products" || i.Target != "price" {
		t.Errorf("issue misattributed: %v", i)
	}
}

func TestUnknownRelation(t *testing.T) {
	def := productMapping(mapping.ColumnMapping{Source: "s", Target: "supplier.name"})

	res := Definition(def, shopCatalog())
	findIssue(t, res, `unknown relation "supplier"`)
}

func TestUnknownRelatedColumn(t *testing.T) {
	def := productMapping(mapping.ColumnMapping{Source: "b", Target: "brand.slug"})

	res := Definition(def, shopCatalog())
	findIssue(t, res, `column "slug" not in table "brands"`)
}

func TestUnknownDuplicateStrategy(t *testing.T) {
	def := productMapping(mapping.ColumnMapping{Source: "sku", Target: "sku"})
	def.Entities[0].Options.DuplicateStrategy = "merge"

	res := Definition(def, shopCatalog())
	findIssue(t, res, `unknown duplicate strategy "merge"`)
}

func TestUniqueKeyColumnMustExist(t *testing.T) {
	def := productMapping(mapping.ColumnMapping{Source: "sku", Target: "sku"})
	def.Entities[0].Options.UniqueKey = mapping.StringList{"barcode"}

	res := Definition(def, shopCatalog())
	findIssue(t, res, `unique key column "barcode" not in table`)
}

func TestSourcelessMappingNeedsDefault(t *testing.T) {
	def := productMapping(mapping.ColumnMapping{Target: "name"})

	res := Definition(def, shopCatalog())
	findIssue(t, res, "neither source nor default")
}

func TestInvalidTransformSpec(t *testing.T) {
	def := productMapping(
		mapping.ColumnMapping{Source: "n", Target: "name", Transforms: []string{"shout"}},
	)

	res := Definition(def, shopCatalog())
	if res.OK() {
		t.Fatal("expected transform spec rejection")
	}
}

func TestBadLookupFieldRejected(t *testing.T) {
	def := productMapping(mapping.ColumnMapping{
		Source: "b",
		Target: "brand.name",
		Lookup: &mapping.RelationLookup{Field: "slug"},
	})

	res := Definition(def, shopCatalog())
	findIssue(t, res, `lookup field "slug" not in table "brands"`)
}

func TestCreateOnMissWithNonUniqueFieldWarns(t *testing.T) {
	def := productMapping(mapping.ColumnMapping{Source: "b", Target: "brand.country+"})

	res := Definition(def, shopCatalog())
	i := findIssue(t, res, "is not unique")
	if i.Severity != SeverityWarning {
		t.Errorf("expected warning, got %s", i.Severity)
	}
	if !res.OK() {
		t.Error("warnings alone must not fail validation")
	}
}

func TestPivotFieldOnNonManyToMany(t *testing.T) {
	def := productMapping(mapping.ColumnMapping{Source: "w", Target: "brand.pivot.weight"})

	res := Definition(def, shopCatalog())
	findIssue(t, res, "pivot field on")
}

func TestPivotFieldCheckedAgainstJoinTable(t *testing.T) {
	def := productMapping(mapping.ColumnMapping{Source: "w", Target: "stores.pivot.weight"})

	res := Definition(def, shopCatalog())
	findIssue(t, res, `column "weight" not in table "product_store"`)

	ok := productMapping(mapping.ColumnMapping{Source: "s", Target: "stores.pivot.stock"})
	if res := Definition(ok, shopCatalog()); !res.OK() {
		t.Errorf("stock lives on the join table: %v", res.Issues)
	}
}

func TestPivotSyncTargets(t *testing.T) {
	def := &mapping.Definition{Entities: []mapping.EntityMapping{
		{Pivot: "products.stores", Columns: []mapping.ColumnMapping{
			{Source: "sku", Target: "owner.sku"},
			{Source: "code", Target: "related.code"},
			{Source: "stock", Target: "pivot.stock"},
		}},
	}}

	if res := Definition(def, shopCatalog()); !res.OK() {
		t.Fatalf("expected clean pivot sync, got %v", res.Issues)
	}
}

func TestPivotSyncRejectsBadPrefix(t *testing.T) {
	def := &mapping.Definition{Entities: []mapping.EntityMapping{
		{Pivot: "products.stores", Columns: []mapping.ColumnMapping{
			{Source: "x", Target: "join.stock"},
		}},
	}}

	res := Definition(def, shopCatalog())
	findIssue(t, res, `unknown pivot sync prefix "join"`)
}

func TestPivotSyncNeedsManyToMany(t *testing.T) {
	def := &mapping.Definition{Entities: []mapping.EntityMapping{
		{Pivot: "products.brand", Columns: []mapping.ColumnMapping{
			{Source: "b", Target: "owner.sku"},
		}},
	}}

	res := Definition(def, shopCatalog())
	findIssue(t, res, "pivot sync needs a many_to_many relation")
}

func TestExecutionOrderViolationReported(t *testing.T) {
	def := &mapping.Definition{Entities: []mapping.EntityMapping{
		{
			Entity:         "products",
			ExecutionOrder: 1,
			Columns:        []mapping.ColumnMapping{{Source: "b", Target: "brand.name"}},
		},
		{
			Entity:         "brands",
			ExecutionOrder: 2,
			Columns:        []mapping.ColumnMapping{{Source: "n", Target: "name"}},
		},
	}}

	res := Definition(def, shopCatalog())
	findIssue(t, res, "execution order")
}

func TestIssueString(t *testing.T) {
	i := Issue{Severity: SeverityError, Entity: "products", Target: "sku", Message: "boom"}
	if got := i.String(); got != "[error] products sku: boom" {
		t.Errorf("unexpected format: %q", got)
	}
}
