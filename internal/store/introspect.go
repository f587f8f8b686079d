package store

import (
	"context"
	"fmt"

	"github.com/rowloom/rowloom/internal/schema"
)

// Introspect discovers tables, columns, keys, and unique indexes for the
// configured pg schema.
func (p *Postgres) Introspect(ctx context.Context) (*schema.Schema, error) {
	if p.pool == nil {
		return nil, fmt.Errorf("not connected; call Connect first")
	}

	tables, err := p.introspectTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("introspecting tables: %w", err)
	}

	tableMap := make(map[string]*schema.Table, len(tables))
	names := make([]string, len(tables))
	for i := range tables {
		tableMap[tables[i].Name] = &tables[i]
		names[i] = tables[i].Name
	}

	if err := p.introspectColumns(ctx, names, tableMap); err != nil {
		return nil, fmt.Errorf("introspecting columns: %w", err)
	}
	if err := p.introspectPrimaryKeys(ctx, names, tableMap); err != nil {
		return nil, fmt.Errorf("introspecting primary keys: %w", err)
	}
	if err := p.introspectForeignKeys(ctx, names, tableMap); err != nil {
		return nil, fmt.Errorf("introspecting foreign keys: %w", err)
	}
	if err := p.introspectIndexes(ctx, names, tableMap); err != nil {
		return nil, fmt.Errorf("introspecting indexes: %w", err)
	}

	return &schema.Schema{
		DatabaseType: "postgresql",
		SchemaName:   p.schema,
		Tables:       tables,
	}, nil
}

func (p *Postgres) introspectTables(ctx context.Context) ([]schema.Table, error) {
	query := `
		SELECT c.relname
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1
		  AND c.relkind = 'r'
		ORDER BY c.relname`

	rows, err := p.pool.Query(ctx, query, p.schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []schema.Table
	for rows.Next() {
		var t schema.Table
		if err := rows.Scan(&t.Name); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func (p *Postgres) introspectColumns(ctx context.Context, names []string, tableMap map[string]*schema.Table) error {
	query := `
		SELECT
			table_name,
			column_name,
			data_type,
			is_nullable,
			character_maximum_length
		FROM information_schema.columns
		WHERE table_schema = $1
		  AND table_name = ANY($2)
		ORDER BY table_name, ordinal_position`

	rows, err := p.pool.Query(ctx, query, p.schema, names)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			tableName, colName, dataType, nullable string
			maxLen                                 *int
		)
		if err := rows.Scan(&tableName, &colName, &dataType, &nullable, &maxLen); err != nil {
			return err
		}
		t, ok := tableMap[tableName]
		if !ok {
			continue
		}
		t.Columns = append(t.Columns, schema.Column{
			Name:      colName,
			DataType:  dataType,
			Nullable:  nullable == "YES",
			MaxLength: maxLen,
		})
	}
	return rows.Err()
}

func (p *Postgres) introspectPrimaryKeys(ctx context.Context, names []string, tableMap map[string]*schema.Table) error {
	query := `
		SELECT
			tc.table_name,
			tc.constraint_name,
			kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		  AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema = $1
		  AND tc.table_name = ANY($2)
		ORDER BY tc.table_name, kcu.ordinal_position`

	rows, err := p.pool.Query(ctx, query, p.schema, names)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var tableName, constraintName, colName string
		if err := rows.Scan(&tableName, &constraintName, &colName); err != nil {
			return err
		}
		t, ok := tableMap[tableName]
		if !ok {
			continue
		}
		if t.PrimaryKey == nil {
			t.PrimaryKey = &schema.PrimaryKey{Name: constraintName}
		}
		t.PrimaryKey.Columns = append(t.PrimaryKey.Columns, colName)
	}
	return rows.Err()
}

func (p *Postgres) introspectForeignKeys(ctx context.Context, names []string, tableMap map[string]*schema.Table) error {
	query := `
		SELECT
			tc.table_name,
			tc.constraint_name,
			kcu.column_name,
			ccu.table_name AS referenced_table,
			ccu.column_name AS referenced_column
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		  AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
		  ON tc.constraint_name = ccu.constraint_name
		  AND tc.table_schema = ccu.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema = $1
		  AND tc.table_name = ANY($2)
		ORDER BY tc.table_name, tc.constraint_name, kcu.ordinal_position`

	rows, err := p.pool.Query(ctx, query, p.schema, names)
	if err != nil {
		return err
	}
	defer rows.Close()

	type fkKey struct{ table, constraint string }
	grouped := make(map[fkKey]*schema.ForeignKey)
	var order []fkKey

	for rows.Next() {
		var tableName, constraintName, column, refTable, refColumn string
		if err := rows.Scan(&tableName, &constraintName, &column, &refTable, &refColumn); err != nil {
			return err
		}
		k := fkKey{tableName, constraintName}
		fk, exists := grouped[k]
		if !exists {
			fk = &schema.ForeignKey{Name: constraintName, ReferencedTable: refTable}
			grouped[k] = fk
			order = append(order, k)
		}
		fk.Columns = append(fk.Columns, column)
		fk.ReferencedColumns = append(fk.ReferencedColumns, refColumn)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, k := range order {
		if t, ok := tableMap[k.table]; ok {
			t.ForeignKeys = append(t.ForeignKeys, *grouped[k])
		}
	}
	return nil
}

func (p *Postgres) introspectIndexes(ctx context.Context, names []string, tableMap map[string]*schema.Table) error {
	query := `
		SELECT
			t.relname AS table_name,
			i.relname AS index_name,
			a.attname AS column_name,
			ix.indisunique
		FROM pg_index ix
		JOIN pg_class t ON t.oid = ix.indrelid
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
		WHERE n.nspname = $1
		  AND t.relname = ANY($2)
		  AND NOT ix.indisprimary
		ORDER BY t.relname, i.relname, a.attnum`

	rows, err := p.pool.Query(ctx, query, p.schema, names)
	if err != nil {
		return err
	}
	defer rows.Close()

	type idxKey struct{ table, index string }
	grouped := make(map[idxKey]*schema.Index)
	var order []idxKey

	for rows.Next() {
		var tableName, indexName, colName string
		var unique bool
		if err := rows.Scan(&tableName, &indexName, &colName, &unique); err != nil {
			return err
		}
		k := idxKey{tableName, indexName}
		idx, exists := grouped[k]
		if !exists {
			idx = &schema.Index{Name: indexName, Unique: unique}
			grouped[k] = idx
			order = append(order, k)
		}
		idx.Columns = append(idx.Columns, colName)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, k := range order {
		if t, ok := tableMap[k.table]; ok {
			t.Indexes = append(t.Indexes, *grouped[k])
		}
	}
	return nil
}
