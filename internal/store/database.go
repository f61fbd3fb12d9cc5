package store

import (
	"context"
	"time"
)

// Database is the persistence interface the orchestrator and query layers
// depend on; PostgresDB and SQLiteDB are its two concrete backends.
type Database interface {
	Connect(ctx context.Context) error
	Close() error
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, user *User) error
	GetUserByID(ctx context.Context, id string) (*User, error)
	UpdateUserCredits(ctx context.Context, userID string, delta int) (int, error)

	InsertAnalysis(ctx context.Context, a *Analysis) error
	GetAnalysisByID(ctx context.Context, id, requestingUserID string) (*Analysis, error)
	ListAnalysesByUser(ctx context.Context, userID string, limit, offset int) ([]*Analysis, error)
	ListByCompany(ctx context.Context, companyName string, limit, offset int) ([]*Analysis, error)
	ListByCompanySince(ctx context.Context, companyName string, since time.Time) ([]*Analysis, error)
	AggregateBenchmark(ctx context.Context, industrySector string, limit int) ([]BenchmarkPoint, error)

	RecordActivity(ctx context.Context, a *Activity) error
	ListActivity(ctx context.Context, userID string, since time.Time, limit int) ([]*Activity, error)
}

// Config collects the connection parameters shared by both backends.
type Config struct {
	Driver   string // "postgres" or "sqlite"
	DSN      string
	PoolMin  int
	PoolMax  int
}

// Open constructs the backend named by cfg.Driver. Unknown drivers are a
// configuration error, not a runtime one.
func Open(cfg Config) (Database, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgresDB(cfg), nil
	case "sqlite", "":
		return NewSQLiteDB(cfg), nil
	default:
		return nil, &UnsupportedDriverError{Driver: cfg.Driver}
	}
}

// UnsupportedDriverError reports an unrecognized store.Config.Driver value.
type UnsupportedDriverError struct {
	Driver string
}

func (e *UnsupportedDriverError) Error() string {
	return "store: unsupported driver " + e.Driver
}
