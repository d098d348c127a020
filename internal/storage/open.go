package storage

import (
	"context"
	"errors"
	"strings"

	logx "postsched/pkg/logx"
)

// Open initializes the configured store and runs its schema migration.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	var (
		st  Store
		err error
	)
	switch NormalizeDriver(cfg.Driver) {
	case "memory":
		st = NewMemory()
	case "sqlite":
		st, err = openSQLite(cfg, log)
	case "postgres":
		st, err = openPostgres(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// NormalizeDriver maps driver aliases to their canonical name.
// Unknown names are returned lowercased and trimmed.
func NormalizeDriver(driver string) string {
	d := strings.ToLower(strings.TrimSpace(driver))
	switch d {
	case "", "memory", "mem":
		return "memory"
	case "sqlite", "sqlite3":
		return "sqlite"
	case "postgres", "postgresql", "pg":
		return "postgres"
	default:
		return d
	}
}
