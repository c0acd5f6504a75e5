// Package config loads, normalizes, and validates callpanel configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// CALLPANEL_API_TOKEN and CALLPANEL_DATABASE_URL. The Config type centralizes
// the knobs the daemon and CLI need: where records live, how long a lease
// lasts, how often holders renew, and who the local actor is.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
