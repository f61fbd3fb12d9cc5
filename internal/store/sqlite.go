package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteDB is the single-process dev/local Database backend.
type SQLiteDB struct {
	*sqlBackend
	cfg Config
}

func NewSQLiteDB(cfg Config) *SQLiteDB {
	return &SQLiteDB{cfg: cfg}
}

func (s *SQLiteDB) Connect(ctx context.Context) error {
	dsn := s.cfg.DSN
	if dsn == "" {
		dsn = "esg.db"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return fmt.Errorf("sqlite: open: %w", err)
	}
	// SQLite allows one writer at a time; a single connection avoids
	// "database is locked" errors under concurrent writers.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlite: apply schema: %w", err)
	}
	s.sqlBackend = &sqlBackend{db: db, placeholder: sqlitePlaceholder}
	return nil
}
