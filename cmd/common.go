package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rowloom/rowloom/internal/config"
	"github.com/rowloom/rowloom/internal/logging"
	"github.com/rowloom/rowloom/internal/mapping"
	"github.com/rowloom/rowloom/internal/schema"
	"github.com/rowloom/rowloom/internal/store"
)

func setupLogger(cfg *config.Config) (*slog.Logger, error) {
	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	logger, err := logging.Setup(level, cfg.Logging.Directory)
	if err != nil {
		return nil, err
	}
	logging.Cleanup(cfg.Logging.Directory, cfg.Logging.RetentionDays)
	return logger, nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Store.Type {
	case "postgres":
		pg := store.NewPostgres(cfg.Store.ConnString(), cfg.Store.Schema)
		if err := pg.Connect(ctx, int32(cfg.Store.MaxConnections)); err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		return pg, nil
	case "oracle":
		ora := store.NewOracle(cfg.Store.ConnString(), cfg.Store.Schema)
		if err := ora.Connect(ctx, cfg.Store.MaxConnections); err != nil {
			return nil, fmt.Errorf("connecting to oracle: %w", err)
		}
		return ora, nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Store.Type)
	}
}

// buildCatalog resolves the schema from a file when given, otherwise by
// introspecting the store, then applies the definition's relation
// overrides.
func buildCatalog(ctx context.Context, st store.Store, schemaFile string, def *mapping.Definition) (*schema.Catalog, error) {
	var (
		s   *schema.Schema
		err error
	)
	if schemaFile != "" {
		s, err = schema.LoadYAML(schemaFile)
	} else {
		in, ok := st.(store.Introspector)
		if !ok {
			return nil, fmt.Errorf("store cannot introspect its schema; pass --schema")
		}
		s, err = in.Introspect(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("resolving schema: %w", err)
	}

	catalog := schema.NewCatalog(s)
	if def != nil {
		if err := def.ApplyOverrides(catalog); err != nil {
			return nil, fmt.Errorf("applying relation overrides: %w", err)
		}
	}
	if ora, ok := st.(*store.Oracle); ok {
		ora.BindCatalog(catalog)
	}
	return catalog, nil
}
