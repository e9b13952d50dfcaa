package session

import (
	"fmt"

	"shopauth/pkg/auth"
)

type eventKind int

const (
	evInitialized eventKind = iota
	evLoginStarted
	evLoginCompleted
	evLoginFailed
	evRefreshed
	evInteractionRequired
	evTransientError
	evLoggedOut
	evRemoteAuthenticated
	evRemoteLoggedOut
	evFailed
)

func (k eventKind) String() string {
	switch k {
	case evInitialized:
		return "initialized"
	case evLoginStarted:
		return "login-started"
	case evLoginCompleted:
		return "login-completed"
	case evLoginFailed:
		return "login-failed"
	case evRefreshed:
		return "refreshed"
	case evInteractionRequired:
		return "interaction-required"
	case evTransientError:
		return "transient-error"
	case evLoggedOut:
		return "logged-out"
	case evRemoteAuthenticated:
		return "remote-authenticated"
	case evRemoteLoggedOut:
		return "remote-logged-out"
	case evFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// event is one external signal fed into transition. Account, Tokens and
// Method are set for events that carry a session; Message for failures.
type event struct {
	kind    eventKind
	account *auth.Account
	tokens  *auth.TokenPair
	method  auth.AuthMethod
	message string
}

// TransitionError is returned when an event is not valid in the current status.
type TransitionError struct {
	From  Status
	Event string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("session: %s is not valid while %s", e.Event, e.From)
}

func authenticated(ev event) State {
	return State{
		Status:  StatusAuthenticated,
		Account: ev.account,
		Tokens:  ev.tokens,
		Method:  ev.method,
	}
}

// transition is the only place session state changes. It is pure: the
// caller persists and notifies.
func transition(s State, ev event) (State, error) {
	invalid := func() (State, error) {
		return s, &TransitionError{From: s.Status, Event: ev.kind.String()}
	}

	switch ev.kind {
	case evInitialized:
		// a failed start may be retried
		if s.Status != StatusAuthenticating && s.Status != StatusError {
			return invalid()
		}
		if ev.account.Valid() {
			return authenticated(ev), nil
		}
		return State{Status: StatusAnonymous}, nil

	case evLoginStarted:
		if s.Status == StatusAuthenticated {
			return invalid()
		}
		return State{Status: StatusAuthenticating, Method: ev.method}, nil

	case evLoginCompleted, evRemoteAuthenticated:
		if !ev.account.Valid() || ev.tokens.Empty() {
			return invalid()
		}
		return authenticated(ev), nil

	case evLoginFailed, evFailed:
		return State{Status: StatusError, Method: s.Method, Error: ev.message}, nil

	case evRefreshed:
		if s.Status != StatusAuthenticated || ev.tokens.Empty() {
			return invalid()
		}
		next := s
		next.Tokens = ev.tokens
		next.Error = ""
		return next, nil

	case evInteractionRequired:
		return State{Status: StatusAnonymous, Error: ev.message}, nil

	case evTransientError:
		return s, nil

	case evLoggedOut:
		return State{Status: StatusAnonymous}, nil

	case evRemoteLoggedOut:
		// a login in flight here is not affected by another context signing out
		if s.Status == StatusAuthenticating {
			return s, nil
		}
		return State{Status: StatusAnonymous}, nil
	}
	return invalid()
}
