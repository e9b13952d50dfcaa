// Package logging provides the structured logging used across shopauth.
//
// It is a thin layer over log/slog that attaches a subsystem attribute to
// every entry and renders errors as a separate attribute.
//
// # Usage
//
//	logging.InitForCLI(logging.ParseLevel(cfg.LogLevel), os.Stderr)
//
//	logging.Info("Session", "restored session for %s", account.Username)
//	logging.Debug("ApiClient", "retrying %s in %s", path, delay)
//	logging.Error("Identity", err, "silent token acquisition failed")
//
// # Audit events
//
// Security relevant transitions (login, logout, refresh, cross-context
// sign-out) are logged through Audit, which prefixes the message with
// SECURITY_AUDIT. Token values are never logged; only account usernames
// and authentication methods are recorded.
package logging
