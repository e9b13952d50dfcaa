package oauth

import (
	"slices"
	"strings"
	"time"
)

// TokenRefreshThreshold is how close to expiry an access token may get before
// it is proactively renewed instead of being sent.
const TokenRefreshThreshold = 5 * time.Minute

// DefaultScopes are requested on every login and silent renewal.
var DefaultScopes = []string{"openid", "profile", "email", "offline_access"}

// Metadata is the subset of OpenID Connect discovery (and RFC 8414)
// metadata the client uses.
type Metadata struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint,omitempty"`
	JwksURI               string `json:"jwks_uri,omitempty"`

	// EndSessionEndpoint is where logout redirects are sent (OIDC RP-initiated logout).
	EndSessionEndpoint string `json:"end_session_endpoint,omitempty"`

	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported,omitempty"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported,omitempty"`
	IDTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported,omitempty"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`
}

// SupportsPKCE returns true if the server supports S256 PKCE.
func (m *Metadata) SupportsPKCE() bool {
	// If not advertised, assume S256 is supported (OAuth 2.1 requirement)
	return len(m.CodeChallengeMethodsSupported) == 0 || slices.Contains(m.CodeChallengeMethodsSupported, "S256")
}

// Validate reports whether the metadata carries the endpoints the
// authorization code flow needs.
func (m *Metadata) Validate() error {
	var missing []string
	if m.Issuer == "" {
		missing = append(missing, "issuer")
	}
	if m.AuthorizationEndpoint == "" {
		missing = append(missing, "authorization_endpoint")
	}
	if m.TokenEndpoint == "" {
		missing = append(missing, "token_endpoint")
	}
	if m.JwksURI == "" {
		missing = append(missing, "jwks_uri")
	}
	if len(missing) > 0 {
		return &MetadataError{Missing: missing}
	}
	return nil
}

// MetadataError is returned when discovered metadata is incomplete.
type MetadataError struct {
	Missing []string
}

func (e *MetadataError) Error() string {
	return "discovery document is missing " + strings.Join(e.Missing, ", ")
}

// PKCEChallenge represents a PKCE (Proof Key for Code Exchange) challenge.
type PKCEChallenge struct {
	// CodeVerifier is kept locally and only sent with the token request.
	CodeVerifier string

	// CodeChallenge is the S256 hash of the verifier sent with the authorization request.
	CodeChallenge string

	CodeChallengeMethod string
}

// AuthChallenge represents parsed information from a WWW-Authenticate header.
type AuthChallenge struct {
	// Scheme is the authentication scheme (typically "Bearer").
	Scheme string

	Realm string

	// Scope is the space-separated list of scopes the resource requires.
	Scope string

	// Error is the error code from the header, e.g. "invalid_token".
	Error string

	ErrorDescription string
}

// IsInvalidToken reports whether the resource rejected the presented token
// itself, as opposed to a missing or insufficient one.
func (c *AuthChallenge) IsInvalidToken() bool {
	return c != nil && c.Error == "invalid_token"
}
