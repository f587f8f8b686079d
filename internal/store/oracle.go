package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	// Oracle driver
	_ "github.com/sijms/go-ora/v2"

	"github.com/rowloom/rowloom/internal/schema"
)

// Oracle implements Store for Oracle using go-ora (pure Go, no Instant
// Client). Writes use insert-then-catch on ORA-00001 rather than ON
// CONFLICT, which Oracle lacks; the unique constraint is still the
// consistency authority.
type Oracle struct {
	connStr string
	schema  string
	db      *sql.DB
	catalog *schema.Catalog
}

// NewOracle creates an Oracle store scoped to the given schema.
func NewOracle(connStr, oraSchema string) *Oracle {
	return &Oracle{connStr: connStr, schema: strings.ToUpper(oraSchema)}
}

// BindCatalog supplies the schema catalog so writes can name each table's
// primary key column. Without it the column defaults to "id".
func (o *Oracle) BindCatalog(c *schema.Catalog) {
	o.catalog = c
}

func (o *Oracle) idColumn(entity string) string {
	if o.catalog != nil {
		if t := o.catalog.Table(entity); t != nil {
			return t.IDColumn()
		}
	}
	return "id"
}

// Connect opens the connection and verifies connectivity.
func (o *Oracle) Connect(ctx context.Context, maxConns int) error {
	db, err := sql.Open("oracle", o.connStr)
	if err != nil {
		return fmt.Errorf("opening Oracle connection: %w", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("pinging Oracle: %w", err)
	}
	o.db = db
	return nil
}

func (o *Oracle) Close() {
	if o.db != nil {
		o.db.Close()
		o.db = nil
	}
}

func (o *Oracle) FindBy(ctx context.Context, entity string, where Record) (Record, error) {
	cols, args := sortedPairs(where)
	conds := make([]string, len(cols))
	for i, c := range cols {
		conds[i] = fmt.Sprintf("%s = :%d", quoteIdentOra(c), i+1)
	}
	q := fmt.Sprintf("SELECT * FROM %s WHERE %s FETCH FIRST 1 ROWS ONLY",
		o.qualified(entity), strings.Join(conds, " AND "))

	recs, err := o.queryRows(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("finding %s: %w", entity, err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

func (o *Oracle) FindAllIn(ctx context.Context, entity, field string, values []any) ([]Record, error) {
	if len(values) == 0 {
		return nil, nil
	}
	params := make([]string, len(values))
	for i := range values {
		params[i] = fmt.Sprintf(":%d", i+1)
	}
	q := fmt.Sprintf("SELECT * FROM %s WHERE %s IN (%s)",
		o.qualified(entity), quoteIdentOra(field), strings.Join(params, ", "))
	recs, err := o.queryRows(ctx, q, values...)
	if err != nil {
		return nil, fmt.Errorf("batch finding %s by %s: %w", entity, field, err)
	}
	return recs, nil
}

func (o *Oracle) Create(ctx context.Context, entity string, attrs Record) (Record, error) {
	cols, args := sortedPairs(attrs)
	quoted := make([]string, len(cols))
	params := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdentOra(c)
		params[i] = fmt.Sprintf(":%d", i+1)
	}
	idCol := o.idColumn(entity)
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s INTO :%d",
		o.qualified(entity), strings.Join(quoted, ", "), strings.Join(params, ", "),
		quoteIdentOra(idCol), len(cols)+1)

	var id int64
	args = append(args, sql.Out{Dest: &id})
	if _, err := o.db.ExecContext(ctx, q, args...); err != nil {
		return nil, o.wrapWrite(entity, err)
	}

	rec := attrs.Clone()
	rec[idCol] = id
	return rec, nil
}

func (o *Oracle) GetOrCreate(ctx context.Context, entity, field string, value any, attrs Record) (Record, bool, error) {
	rec, err := o.FindBy(ctx, entity, Record{field: value})
	if err != nil {
		return nil, false, err
	}
	if rec != nil {
		return rec, false, nil
	}

	merged := attrs.Clone()
	merged[field] = value
	created, err := o.Create(ctx, entity, merged)
	if err == nil {
		return created, true, nil
	}
	// A concurrent writer may have won the insert race; re-select on the
	// unique rejection.
	if _, ok := AsUniqueViolation(err); ok {
		rec, ferr := o.FindBy(ctx, entity, Record{field: value})
		if ferr != nil {
			return nil, false, ferr
		}
		if rec != nil {
			return rec, false, nil
		}
	}
	return nil, false, err
}

func (o *Oracle) Update(ctx context.Context, entity, idColumn string, id any, attrs Record) (Record, error) {
	cols, args := sortedPairs(attrs)
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = :%d", quoteIdentOra(c), i+1)
	}
	args = append(args, id)
	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s = :%d",
		o.qualified(entity), strings.Join(sets, ", "), quoteIdentOra(idColumn), len(args))

	if _, err := o.db.ExecContext(ctx, q, args...); err != nil {
		return nil, o.wrapWrite(entity, err)
	}
	return o.FindBy(ctx, entity, Record{idColumn: id})
}

func (o *Oracle) Attach(ctx context.Context, spec AttachSpec) error {
	pivotCols, pivotArgs := sortedPairs(spec.Pivot)

	cols := append([]string{spec.OwnerKey, spec.RelatedKey}, pivotCols...)
	args := append([]any{spec.OwnerID, spec.RelatedID}, pivotArgs...)

	quoted := make([]string, len(cols))
	params := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdentOra(c)
		params[i] = fmt.Sprintf(":%d", i+1)
	}

	var merge strings.Builder
	fmt.Fprintf(&merge, "MERGE INTO %s t USING dual ON (t.%s = :1 AND t.%s = :2)",
		o.qualified(spec.JoinTable), quoteIdentOra(spec.OwnerKey), quoteIdentOra(spec.RelatedKey))
	if len(pivotCols) > 0 {
		sets := make([]string, len(pivotCols))
		for i, c := range pivotCols {
			sets[i] = fmt.Sprintf("t.%s = :%d", quoteIdentOra(c), i+3)
		}
		fmt.Fprintf(&merge, " WHEN MATCHED THEN UPDATE SET %s", strings.Join(sets, ", "))
	}
	fmt.Fprintf(&merge, " WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s)",
		strings.Join(quoted, ", "), strings.Join(params, ", "))

	if _, err := o.db.ExecContext(ctx, merge.String(), args...); err != nil {
		return fmt.Errorf("attaching %s: %w", spec.JoinTable, err)
	}
	return nil
}

func (o *Oracle) queryRows(ctx context.Context, q string, args ...any) ([]Record, error) {
	rows, err := o.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []Record
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make(Record, len(cols))
		for i, c := range cols {
			rec[strings.ToLower(c)] = vals[i]
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

func (o *Oracle) wrapWrite(entity string, err error) error {
	if strings.Contains(err.Error(), "ORA-00001") {
		return &UniqueViolation{Entity: entity, Err: err}
	}
	return fmt.Errorf("writing %s: %w", entity, err)
}

func (o *Oracle) qualified(table string) string {
	return quoteIdentOra(o.schema) + "." + quoteIdentOra(table)
}

func quoteIdentOra(s string) string {
	return `"` + strings.ToUpper(strings.ReplaceAll(s, `"`, "")) + `"`
}
