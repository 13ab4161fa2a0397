// Package config loads database and logging settings from YAML files,
// .env files and environment variables.
package config
