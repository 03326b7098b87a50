// Package config loads the edge server configuration from an optional YAML
// file and environment variables. It resolves the upstream origin, listening
// port, static asset root and logging settings once at startup and validates
// them before any component is built.
package config
