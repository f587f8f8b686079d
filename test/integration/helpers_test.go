//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rowloom/rowloom/internal/store"
)

func pgConnString(t *testing.T) string {
	t.Helper()
	host := envOrDefault("ROWLOOM_TEST_PG_HOST", "localhost")
	port := envOrDefault("ROWLOOM_TEST_PG_PORT", "25432")
	db := envOrDefault("ROWLOOM_TEST_PG_DATABASE", "rowloom_test")
	user := envOrDefault("ROWLOOM_TEST_PG_USER", "postgres")
	pass := envOrDefault("ROWLOOM_TEST_PG_PASSWORD", "postgres")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, pass, host, port, db)
}

func skipIfNoPostgres(t *testing.T) {
	t.Helper()
	if os.Getenv("ROWLOOM_TEST_PG_HOST") == "" && os.Getenv("ROWLOOM_TEST_PG_PORT") == "" {
		t.Skip("skipping: ROWLOOM_TEST_PG_HOST/PORT not set")
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// setupLibrary creates the test tables in a throwaway pg schema and returns
// a connected store scoped to it. The schema is dropped on cleanup.
func setupLibrary(t *testing.T, ctx context.Context) *store.Postgres {
	t.Helper()

	pool, err := pgxpool.New(ctx, pgConnString(t))
	if err != nil {
		t.Fatalf("opening admin pool: %v", err)
	}
	t.Cleanup(pool.Close)

	schemaName := fmt.Sprintf("rowloom_it_%d", os.Getpid())
	ddl := []string{
		fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schemaName),
		fmt.Sprintf("CREATE SCHEMA %s", schemaName),
		fmt.Sprintf(`CREATE TABLE %s.authors (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE
		)`, schemaName),
		fmt.Sprintf(`CREATE TABLE %s.books (
			id BIGSERIAL PRIMARY KEY,
			isbn TEXT NOT NULL UNIQUE,
			title VARCHAR(80),
			author_id BIGINT REFERENCES %s.authors(id)
		)`, schemaName, schemaName),
		fmt.Sprintf(`CREATE TABLE %s.tags (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE
		)`, schemaName),
		fmt.Sprintf(`CREATE TABLE %s.book_tag (
			book_id BIGINT NOT NULL REFERENCES %s.books(id),
			tag_id BIGINT NOT NULL REFERENCES %s.tags(id),
			weight INT,
			PRIMARY KEY (book_id, tag_id)
		)`, schemaName, schemaName, schemaName),
	}
	for _, stmt := range ddl {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			t.Fatalf("setting up schema: %v", err)
		}
	}
	t.Cleanup(func() {
		pool.Exec(context.Background(), fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schemaName))
	})

	st := store.NewPostgres(pgConnString(t), schemaName)
	if err := st.Connect(ctx, 4); err != nil {
		t.Fatalf("connecting store: %v", err)
	}
	t.Cleanup(st.Close)
	return st
}
