// Package config loads, normalizes, and validates portkiller configuration.
//
// It supplies defaults, expands `~` in paths, reads the TOML file at
// ~/.config/portkiller/config.toml, and honours PORTKILLER_ICA_URL and
// PORTKILLER_SETEC_URL overrides. A missing config file is fine: every field
// has a working default.
package config
