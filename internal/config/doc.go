// Package config loads and validates the spoketension TOML configuration.
//
// Configuration is read from ~/.config/spoketension/config.toml, or
// ./spoketension.toml when the former is missing, or from an explicit path.
// Missing files yield the defaults. [Config.Session] derives the
// measurement session parameters in SI units.
package config
