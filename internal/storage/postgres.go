package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	logx "postsched/pkg/logx"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Info("postgres store opened", logx.Int("max_open_conns", cfg.MaxOpenConns))
	return &sqlStore{db: db, log: log, dialect: "postgres"}, nil
}
