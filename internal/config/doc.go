// Package config loads the supervisor's configuration file: a single
// top-level YAML mapping whose only recognized key is "handlers", an
// ordered sequence of per-backend configuration blocks.
package config
