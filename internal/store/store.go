package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"callpanel/internal/config"
)

// Store persists records, filters, and leases in SQLite or Postgres.
type Store struct {
	db      *sql.DB
	dialect dialect
	target  string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// Postgres SQLSTATEs after which the whole transaction can simply run again.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

func isPostgresRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
}

func isRetryable(err error) bool {
	return isSQLiteBusy(err) || isPostgresRetryable(err)
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// Open connects to the configured database and creates the schema on first use.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	var (
		db     *sql.DB
		d      dialect
		target string
		err    error
	)
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		d = sqliteDialect
		target = cfg.Store.DSN
		db, err = sql.Open("sqlite", sqliteDSN(cfg.Store.DSN))
		if err != nil {
			return nil, fmt.Errorf("open sqlite db: %w", err)
		}
		if cfg.Store.DSN == ":memory:" {
			// Every connection to :memory: is a separate database.
			db.SetMaxOpenConns(1)
		}
	case config.DriverPostgres:
		d = postgresDialect
		target = redactDSN(cfg.Store.DSN)
		db, err = sql.Open("pgx", cfg.Store.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres db: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}

	store := &Store{db: db, dialect: d, target: target}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// New wraps an existing connection pool without touching the schema.
func New(db *sql.DB, driver string) (*Store, error) {
	switch driver {
	case config.DriverSQLite:
		return &Store{db: db, dialect: sqliteDialect}, nil
	case config.DriverPostgres:
		return &Store{db: db, dialect: postgresDialect}, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}
}

// Driver reports which database backs the store.
func (s *Store) Driver() string {
	return s.dialect.name
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InTx runs fn inside one transaction. Any error from fn rolls back every
// statement fn issued. SQLite busy errors and Postgres deadlocks or
// serialization failures retry the whole transaction.
func (s *Store) InTx(ctx context.Context, fn func(*Tx) error) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		sqlTx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		tx := &Tx{tx: sqlTx, dialect: s.dialect}
		if err := fn(tx); err != nil {
			_ = sqlTx.Rollback()
			return err
		}
		if err := sqlTx.Commit(); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// sqliteDSN turns a file path into a modernc DSN with per-connection pragmas.
// Write transactions start with BEGIN IMMEDIATE so the busy timeout governs
// contention instead of failing at the first upgrade from read to write.
func sqliteDSN(path string) string {
	params := "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"
	if path == ":memory:" {
		return "file::memory:?" + params
	}
	if strings.HasPrefix(path, "file:") {
		if strings.Contains(path, "?") {
			return path + "&" + params
		}
		return path + "?" + params
	}
	return "file:" + path + "?_pragma=journal_mode(WAL)&" + params
}

func redactDSN(dsn string) string {
	parsed, err := url.Parse(dsn)
	if err != nil || parsed.Host == "" {
		return "postgres"
	}
	parsed.User = nil
	parsed.RawQuery = ""
	return parsed.String()
}
