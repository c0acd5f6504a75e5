package testsupport

import (
	"path/filepath"
	"testing"

	"callpanel/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The store is a SQLite file inside the temp directory.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Store.Driver = config.DriverSQLite
	cfgVal.Store.DSN = filepath.Join(base, "data", "callpanel.db")
	cfgVal.Client.ActorID = "tester"
	cfgVal.Client.ActorName = "Tester"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithAPIToken sets the daemon bearer token on the test config.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// WithStoreDSN points the test config at a different database.
func WithStoreDSN(driver, dsn string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Store.Driver = driver
		b.cfg.Store.DSN = dsn
	}
}

// WithLeaseTiming overrides lease TTL and heartbeat seconds.
func WithLeaseTiming(ttlSeconds, heartbeatSeconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Lease.TTLSeconds = ttlSeconds
		b.cfg.Lease.HeartbeatSeconds = heartbeatSeconds
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
