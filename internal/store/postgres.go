package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres implements Store for PostgreSQL using pgx.
type Postgres struct {
	connStr string
	schema  string
	pool    *pgxpool.Pool
}

// NewPostgres creates a PostgreSQL store for the given pg schema, defaulting
// to "public".
func NewPostgres(connStr, pgSchema string) *Postgres {
	if pgSchema == "" {
		pgSchema = "public"
	}
	return &Postgres{connStr: connStr, schema: pgSchema}
}

// Connect opens the connection pool and verifies connectivity.
func (p *Postgres) Connect(ctx context.Context, maxConns int32) error {
	cfg, err := pgxpool.ParseConfig(p.connStr)
	if err != nil {
		return fmt.Errorf("parsing connection string: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connecting to PostgreSQL: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("pinging PostgreSQL: %w", err)
	}
	p.pool = pool
	return nil
}

func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
		p.pool = nil
	}
}

func (p *Postgres) FindBy(ctx context.Context, entity string, where Record) (Record, error) {
	cols, args := sortedPairs(where)
	conds := make([]string, len(cols))
	for i, c := range cols {
		conds[i] = fmt.Sprintf("%s = $%d", quoteIdent(c), i+1)
	}
	sql := fmt.Sprintf("SELECT * FROM %s WHERE %s LIMIT 1",
		p.qualified(entity), strings.Join(conds, " AND "))

	recs, err := p.query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("finding %s: %w", entity, err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

func (p *Postgres) FindAllIn(ctx context.Context, entity, field string, values []any) ([]Record, error) {
	if len(values) == 0 {
		return nil, nil
	}
	sql := fmt.Sprintf("SELECT * FROM %s WHERE %s = ANY($1)",
		p.qualified(entity), quoteIdent(field))
	recs, err := p.query(ctx, sql, values)
	if err != nil {
		return nil, fmt.Errorf("batch finding %s by %s: %w", entity, field, err)
	}
	return recs, nil
}

func (p *Postgres) Create(ctx context.Context, entity string, attrs Record) (Record, error) {
	cols, args := sortedPairs(attrs)
	quoted := make([]string, len(cols))
	params := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		p.qualified(entity), strings.Join(quoted, ", "), strings.Join(params, ", "))

	recs, err := p.query(ctx, sql, args...)
	if err != nil {
		return nil, p.wrapWrite(entity, err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("creating %s: no row returned", entity)
	}
	return recs[0], nil
}

// GetOrCreate relies on ON CONFLICT DO NOTHING plus a re-select, so a
// concurrent creation of the same key is never a failure.
func (p *Postgres) GetOrCreate(ctx context.Context, entity, field string, value any, attrs Record) (Record, bool, error) {
	merged := attrs.Clone()
	merged[field] = value

	cols, args := sortedPairs(merged)
	quoted := make([]string, len(cols))
	params := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING RETURNING *",
		p.qualified(entity), strings.Join(quoted, ", "), strings.Join(params, ", "), quoteIdent(field))

	recs, err := p.query(ctx, sql, args...)
	if err != nil {
		return nil, false, p.wrapWrite(entity, err)
	}
	if len(recs) > 0 {
		return recs[0], true, nil
	}

	rec, err := p.FindBy(ctx, entity, Record{field: value})
	if err != nil {
		return nil, false, err
	}
	if rec == nil {
		return nil, false, fmt.Errorf("get-or-create %s by %s: conflict target missing", entity, field)
	}
	return rec, false, nil
}

func (p *Postgres) Update(ctx context.Context, entity, idColumn string, id any, attrs Record) (Record, error) {
	cols, args := sortedPairs(attrs)
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", quoteIdent(c), i+1)
	}
	args = append(args, id)
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d RETURNING *",
		p.qualified(entity), strings.Join(sets, ", "), quoteIdent(idColumn), len(args))

	recs, err := p.query(ctx, sql, args...)
	if err != nil {
		return nil, p.wrapWrite(entity, err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("updating %s: no record with %s = %v", entity, idColumn, id)
	}
	return recs[0], nil
}

func (p *Postgres) Attach(ctx context.Context, spec AttachSpec) error {
	cols := []string{spec.OwnerKey, spec.RelatedKey}
	args := []any{spec.OwnerID, spec.RelatedID}
	pivotCols, pivotArgs := sortedPairs(spec.Pivot)
	cols = append(cols, pivotCols...)
	args = append(args, pivotArgs...)

	quoted := make([]string, len(cols))
	params := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
		params[i] = fmt.Sprintf("$%d", i+1)
	}

	conflict := fmt.Sprintf("ON CONFLICT (%s, %s) DO NOTHING",
		quoteIdent(spec.OwnerKey), quoteIdent(spec.RelatedKey))
	if len(pivotCols) > 0 {
		sets := make([]string, len(pivotCols))
		for i, c := range pivotCols {
			sets[i] = fmt.Sprintf("%s = EXCLUDED.%s", quoteIdent(c), quoteIdent(c))
		}
		conflict = fmt.Sprintf("ON CONFLICT (%s, %s) DO UPDATE SET %s",
			quoteIdent(spec.OwnerKey), quoteIdent(spec.RelatedKey), strings.Join(sets, ", "))
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) %s",
		p.qualified(spec.JoinTable), strings.Join(quoted, ", "), strings.Join(params, ", "), conflict)

	if _, err := p.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("attaching %s: %w", spec.JoinTable, err)
	}
	return nil
}

func (p *Postgres) query(ctx context.Context, sql string, args ...any) ([]Record, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	descs := rows.FieldDescriptions()
	var results []Record
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		rec := make(Record, len(descs))
		for i, d := range descs {
			rec[d.Name] = vals[i]
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

// wrapWrite converts a unique-constraint rejection (SQLSTATE 23505) into a
// UniqueViolation, parsing the conflicting column from the error detail
// when present ("Key (email)=(x) already exists.").
func (p *Postgres) wrapWrite(entity string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return &UniqueViolation{
			Entity: entity,
			Column: columnFromDetail(pgErr.Detail),
			Err:    err,
		}
	}
	return fmt.Errorf("writing %s: %w", entity, err)
}

func columnFromDetail(detail string) string {
	start := strings.Index(detail, "Key (")
	if start == -1 {
		return ""
	}
	rest := detail[start+len("Key ("):]
	end := strings.IndexAny(rest, "),")
	if end == -1 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}

func (p *Postgres) qualified(table string) string {
	return quoteIdent(p.schema) + "." + quoteIdent(table)
}

func quoteIdent(s string) string {
	return pgx.Identifier{s}.Sanitize()
}

// sortedPairs returns columns in deterministic order with matching args.
func sortedPairs(r Record) ([]string, []any) {
	cols := make([]string, 0, len(r))
	for c := range r {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	args := make([]any, len(cols))
	for i, c := range cols {
		args[i] = r[c]
	}
	return cols, args
}
