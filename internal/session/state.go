package session

import (
	"shopauth/pkg/auth"
)

// Status is the authentication status of a session.
type Status int

const (
	// StatusAuthenticating is the initial status, and the status while a
	// login redirect is in flight.
	StatusAuthenticating Status = iota

	StatusAnonymous

	// StatusAuthenticated means an account and its tokens are present.
	StatusAuthenticated

	// StatusError means the last login or startup failed.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusAuthenticating:
		return "authenticating"
	case StatusAnonymous:
		return "anonymous"
	case StatusAuthenticated:
		return "authenticated"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// State is a snapshot of the session. Status is StatusAuthenticated
// exactly when Account is set.
type State struct {
	Status  Status
	Account *auth.Account
	Tokens  *auth.TokenPair
	Method  auth.AuthMethod

	// Error is the user-facing message of the last failure, if any.
	Error string
}

// Authenticated reports whether the snapshot carries a signed-in account.
func (s State) Authenticated() bool {
	return s.Status == StatusAuthenticated
}

// AccessToken returns the bearer token of an authenticated session, or "".
func (s State) AccessToken() string {
	if !s.Authenticated() {
		return ""
	}
	return s.Tokens.Bearer()
}

func (s State) equal(o State) bool {
	return s.Status == o.Status &&
		s.Method == o.Method &&
		s.Error == o.Error &&
		sameAccount(s.Account, o.Account) &&
		sameTokens(s.Tokens, o.Tokens)
}

func sameAccount(a, b *auth.Account) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.HomeAccountID == b.HomeAccountID && a.Username == b.Username && a.Name == b.Name
}

func sameTokens(a, b *auth.TokenPair) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
