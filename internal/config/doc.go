// Package config loads the shopauth configuration.
//
// Values are resolved in three layers: built-in defaults, an optional
// config.yaml in the user configuration directory (~/.config/shopauth), and
// environment variables, which always win. Validation problems are reported
// to the caller and logged; they never prevent startup, so a misconfigured
// authority only fails the login attempt that needs it.
package config
