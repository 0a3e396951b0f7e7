// Package config loads, normalizes, and validates tubeindex
// configuration from TOML. All pipeline components receive an explicit
// *Config; there are no process-wide configuration singletons.
package config
