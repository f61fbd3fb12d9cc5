package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresDB is the production Database backend.
type PostgresDB struct {
	*sqlBackend
	cfg Config
}

func NewPostgresDB(cfg Config) *PostgresDB {
	return &PostgresDB{cfg: cfg}
}

func (p *PostgresDB) Connect(ctx context.Context) error {
	db, err := sql.Open("postgres", p.cfg.DSN)
	if err != nil {
		return fmt.Errorf("postgres: open: %w", err)
	}
	if p.cfg.PoolMax > 0 {
		db.SetMaxOpenConns(p.cfg.PoolMax)
	}
	if p.cfg.PoolMin > 0 {
		db.SetMaxIdleConns(p.cfg.PoolMin)
	}
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("postgres: apply schema: %w", err)
	}
	p.sqlBackend = &sqlBackend{db: db, placeholder: postgresPlaceholder}
	return nil
}
