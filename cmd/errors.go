package cmd

import "fmt"

// AuthRequiredError indicates the command needs a signed-in session.
type AuthRequiredError struct {
	// Reason says why the session is not usable, if known.
	Reason string
}

func (e *AuthRequiredError) Error() string {
	reason := "You are not signed in"
	if e.Reason != "" {
		reason = e.Reason
	}
	return fmt.Sprintf(`%s

To sign in, run:
  shopauth login

To check the current session:
  shopauth status`, reason)
}

// Is allows errors.Is() to work with wrapped errors.
func (e *AuthRequiredError) Is(target error) bool {
	_, ok := target.(*AuthRequiredError)
	return ok
}

// AuthFailedError indicates a login or renewal failed.
type AuthFailedError struct {
	// Message is the user-facing description.
	Message string
	// Reason is the underlying error.
	Reason error
}

func (e *AuthFailedError) Error() string {
	return fmt.Sprintf(`Authentication failed: %s

To retry, run:
  shopauth login`, e.Message)
}

// Unwrap returns the underlying error.
func (e *AuthFailedError) Unwrap() error {
	return e.Reason
}

// Is allows errors.Is() to work with wrapped errors.
func (e *AuthFailedError) Is(target error) bool {
	_, ok := target.(*AuthFailedError)
	return ok
}
