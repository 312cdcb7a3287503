package app

import (
	"context"
	"fmt"
	"log/slog"

	"certline/internal/config"
	"certline/internal/db"
	"certline/internal/engine"
	"certline/internal/migrate"
	"certline/internal/standards"
)

// Workspace is an opened workspace: migrated database, loaded config and
// a ready engine.
type Workspace struct {
	Dir    string
	Config *config.Config
	Engine engine.Engine
}

func (w Workspace) Close() error {
	return w.Engine.DB.Close()
}

// Open opens the workspace database, applies migrations, loads
// certline.yml (defaults when absent) and seeds the standards table if it
// is still empty.
func Open(ctx context.Context, dir, actorID string) (Workspace, error) {
	cfg, err := config.LoadOptional(dir)
	if err != nil {
		return Workspace{}, err
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		return Workspace{}, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return Workspace{}, err
	}
	e := engine.New(conn, cfg)
	if _, err := EnsureStandards(ctx, dir, e, actorID); err != nil {
		conn.Close()
		return Workspace{}, err
	}
	return Workspace{Dir: dir, Config: cfg, Engine: e}, nil
}

// Catalog returns the configured standards catalog, or the built-in one
// when standards.catalog is unset. The second value names the source.
func Catalog(dir string, cfg *config.Config) (*standards.Catalog, string, error) {
	path := cfg.CatalogPath(dir)
	if path == "" {
		return standards.Default(), "builtin", nil
	}
	cat, err := standards.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("standards catalog: %w", err)
	}
	return cat, path, nil
}

// EnsureStandards imports the configured catalog into an empty standards
// table. It returns how many standards were written.
func EnsureStandards(ctx context.Context, dir string, e engine.Engine, actorID string) (int, error) {
	n, err := e.Repo.CountStandards(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}
	cat, source, err := Catalog(dir, e.Config)
	if err != nil {
		return 0, err
	}
	written, err := e.ImportStandards(ctx, cat, source, actorID)
	if err != nil {
		return 0, err
	}
	slog.Info("seeded standards", "count", written, "source", source)
	return written, nil
}
