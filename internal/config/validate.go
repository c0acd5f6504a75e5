package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateLease(); err != nil {
		return err
	}
	if err := c.validateClient(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Driver {
	case DriverSQLite:
		return nil
	case DriverPostgres:
		if c.Store.DSN == "" {
			return errors.New("store.dsn is required for the postgres driver. Set CALLPANEL_DATABASE_URL or edit the config file")
		}
		return nil
	default:
		return fmt.Errorf("store.driver: unsupported value %q (want sqlite or postgres)", c.Store.Driver)
	}
}

func (c *Config) validateLease() error {
	if err := ensurePositiveMap(map[string]int{
		"lease.ttl_seconds":       c.Lease.TTLSeconds,
		"lease.heartbeat_seconds": c.Lease.HeartbeatSeconds,
	}); err != nil {
		return err
	}
	if c.Lease.HeartbeatSeconds*2 >= c.Lease.TTLSeconds {
		return fmt.Errorf("lease.heartbeat_seconds (%d) must be less than half of lease.ttl_seconds (%d)", c.Lease.HeartbeatSeconds, c.Lease.TTLSeconds)
	}
	if c.Lease.SweepIntervalSeconds < 0 {
		return errors.New("lease.sweep_interval_seconds must be zero or positive")
	}
	return nil
}

func (c *Config) validateClient() error {
	if c.Client.PollIntervalSeconds <= 0 {
		return errors.New("client.poll_interval_seconds must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
