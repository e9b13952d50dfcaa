package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"shopauth/pkg/oauth"
)

var (
	// ErrNotInitialized is returned by redirect operations called before Initialize succeeded.
	ErrNotInitialized = errors.New("identity provider client is not initialized")

	// ErrMissingAuthority is returned when the chosen method has no authority configured.
	ErrMissingAuthority = errors.New("no authority configured for auth method")
)

// Kind is the closed set of failure categories callers branch on.
type Kind int

const (
	KindUnknown Kind = iota
	// KindInteractionRequired means the cached session is unusable; the user must sign in again.
	KindInteractionRequired
	KindConsentRequired
	// KindEndpointsResolution means the authority metadata is not available yet.
	KindEndpointsResolution
	KindUserCancelled
	KindNetwork
	KindConfig
	KindInit
	// KindStateMismatch means the callback does not belong to the pending login.
	KindStateMismatch
)

func (k Kind) String() string {
	switch k {
	case KindInteractionRequired:
		return "interaction_required"
	case KindConsentRequired:
		return "consent_required"
	case KindEndpointsResolution:
		return "endpoints_resolution_error"
	case KindUserCancelled:
		return "user_cancelled"
	case KindNetwork:
		return "network_error"
	case KindConfig:
		return "configuration_error"
	case KindInit:
		return "initialization_error"
	case KindStateMismatch:
		return "state_mismatch"
	default:
		return "unknown_error"
	}
}

// Transient reports whether the failure may succeed on retry without user
// interaction. Transient failures must not clear the session.
func (k Kind) Transient() bool {
	return k == KindEndpointsResolution || k == KindNetwork
}

// ProviderError is the only error shape that crosses the identity client
// boundary for provider failures.
type ProviderError struct {
	Kind Kind
	// Code is the OAuth error code when the provider returned one.
	Code        string
	Description string
	Err         error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Code != "" && e.Code != e.Kind.String() {
		fmt.Fprintf(&b, " (%s)", e.Code)
	}
	if e.Description != "" {
		b.WriteString(": ")
		b.WriteString(e.Description)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// InitError is returned when Initialize fails. A later call may retry.
type InitError struct {
	Err error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("identity provider initialization failed: %v", e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// b2cCancelled is the B2C error code for "user cancelled the flow".
const b2cCancelled = "AADB2C90091"

// FromCallback classifies the error and error_description parameters of an
// authorization response.
func FromCallback(code, description string) *ProviderError {
	return &ProviderError{
		Kind:        kindForCode(code, description),
		Code:        code,
		Description: description,
	}
}

func kindForCode(code, description string) Kind {
	switch code {
	case "invalid_grant", "interaction_required", "login_required", "no_account_error", "no_tokens_found":
		return KindInteractionRequired
	case "consent_required":
		return KindConsentRequired
	case "user_cancelled":
		return KindUserCancelled
	case "access_denied":
		if strings.Contains(description, b2cCancelled) {
			return KindUserCancelled
		}
		return KindUnknown
	case "endpoints_resolution_error":
		return KindEndpointsResolution
	case "temporarily_unavailable", "server_error", "network_error":
		return KindNetwork
	default:
		return KindUnknown
	}
}

// Classify converts any error from the provider path into a ProviderError.
// It returns nil for a nil error.
func Classify(err error) *ProviderError {
	if err == nil {
		return nil
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}

	var initErr *InitError
	if errors.As(err, &initErr) {
		return &ProviderError{Kind: KindInit, Err: err}
	}

	if errors.Is(err, ErrMissingAuthority) {
		return &ProviderError{Kind: KindConfig, Err: err}
	}
	if errors.Is(err, ErrNotInitialized) {
		return &ProviderError{Kind: KindEndpointsResolution, Err: err}
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		kind := kindForCode(retrieveErr.ErrorCode, retrieveErr.ErrorDescription)
		if kind == KindUnknown && retrieveErr.Response != nil && retrieveErr.Response.StatusCode >= http.StatusInternalServerError {
			kind = KindNetwork
		}
		return &ProviderError{
			Kind:        kind,
			Code:        retrieveErr.ErrorCode,
			Description: retrieveErr.ErrorDescription,
			Err:         err,
		}
	}

	var metaErr *oauth.MetadataError
	if errors.As(err, &metaErr) {
		return &ProviderError{Kind: KindEndpointsResolution, Err: err}
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return &ProviderError{Kind: KindNetwork, Err: err}
	}

	return &ProviderError{Kind: KindUnknown, Err: err}
}

// IsKind reports whether err classifies as kind.
func IsKind(err error, kind Kind) bool {
	pe := Classify(err)
	return pe != nil && pe.Kind == kind
}

// UserMessage returns the text shown to the user for err.
func UserMessage(err error) string {
	pe := Classify(err)
	if pe == nil {
		return ""
	}
	switch pe.Kind {
	case KindInteractionRequired:
		return "Please sign in to continue"
	case KindConsentRequired:
		return "Please provide consent to continue"
	case KindUserCancelled:
		return "Authentication was cancelled"
	case KindNetwork:
		return "Network error. Please check your connection and try again."
	case KindEndpointsResolution:
		return "The sign-in service is not ready yet. Please try again in a moment."
	case KindConfig:
		return "Sign-in is not configured for this method."
	default:
		return "Authentication failed. Please try again."
	}
}
