package config

const (
	defaultDataDir              = "~/.local/share/callpanel"
	defaultLogDir               = "~/.local/share/callpanel/logs"
	defaultAPIBind              = "127.0.0.1:7490"
	defaultStoreDriver          = DriverSQLite
	defaultSQLiteFile           = "callpanel.db"
	defaultLeaseTTLSeconds      = 60
	defaultHeartbeatSeconds     = 25
	defaultSweepIntervalSeconds = 0
	defaultPollIntervalSeconds  = 3
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Supported store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Store: Store{
			Driver: defaultStoreDriver,
		},
		Lease: Lease{
			TTLSeconds:           defaultLeaseTTLSeconds,
			HeartbeatSeconds:     defaultHeartbeatSeconds,
			SweepIntervalSeconds: defaultSweepIntervalSeconds,
		},
		Client: Client{
			PollIntervalSeconds: defaultPollIntervalSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
