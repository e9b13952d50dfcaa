// Package callback completes a login when the identity provider redirects
// back to the application.
//
// Handler runs the one-shot procedure for the redirect URL: it makes sure
// the identity provider client is initialized, handles an explicit error
// parameter by clearing the stored session, and otherwise completes the
// login through the session manager, falling back to an account the
// provider already has cached. Every path ends in an Outcome with a
// locale-aware redirect target; panics are recovered into StatusError.
//
// Server hosts the Handler on the loopback redirect URI for CLI logins.
// It handles exactly one callback, renders the result page and reports the
// Outcome through Wait.
package callback
