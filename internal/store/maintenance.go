package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DatabaseHealth captures diagnostic information about the backing database.
type DatabaseHealth struct {
	Driver         string
	Target         string
	Readable       bool
	SchemaVersion  int
	IntegrityCheck bool
	TotalRecords   int
	ActiveLeases   int
	Error          string
}

// Ping verifies the connection is usable.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("database connection unavailable")
	}
	connCtx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()
	return s.db.PingContext(connCtx)
}

// CheckHealth returns diagnostic information about the database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{Driver: s.dialect.name, Target: s.target}

	if err := s.Ping(ctx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping database: %w", err)
	}
	health.Readable = true

	connCtx, cancel := context.WithTimeout(ensureContext(ctx), 5*time.Second)
	defer cancel()

	version, err := s.schemaVersion(connCtx)
	if err != nil {
		health.Error = err.Error()
		return health, err
	}
	health.SchemaVersion = version

	if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM records").Scan(&health.TotalRecords); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("count records: %w", err)
	}
	if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM leases").Scan(&health.ActiveLeases); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("count leases: %w", err)
	}

	if s.dialect.name != sqliteDialect.name {
		health.IntegrityCheck = true
		return health, nil
	}
	var integrityResult string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")
	return health, nil
}
