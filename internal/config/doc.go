// Package config loads the service configuration from defaults, an optional
// YAML file and VIETGUARD_* environment variables, and validates it before any
// component is constructed. Components receive their section of Config and
// never read the environment themselves.
package config
