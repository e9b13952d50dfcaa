package auth

import (
	"time"

	"shopauth/pkg/oauth"
)

// TokenPair is the access and ID token issued for the current account.
// Expiry is carried by the tokens' exp claims.
type TokenPair struct {
	AccessToken string `json:"accessToken"`
	IDToken     string `json:"idToken"`
}

// Empty reports whether neither token is set.
func (t *TokenPair) Empty() bool {
	return t == nil || (t.AccessToken == "" && t.IDToken == "")
}

// Bearer returns the token sent to the API. B2C issues no access token when
// only OIDC scopes are requested, in which case the ID token is used.
func (t *TokenPair) Bearer() string {
	if t == nil {
		return ""
	}
	if t.AccessToken != "" {
		return t.AccessToken
	}
	return t.IDToken
}

// ExpiresAt returns the expiry of the bearer token, or the zero time when it
// cannot be decoded.
func (t *TokenPair) ExpiresAt() time.Time {
	exp, err := oauth.ExpiresAt(t.Bearer())
	if err != nil {
		return time.Time{}
	}
	return exp
}

// Valid reports whether the bearer token is still usable at now, keeping the
// refresh threshold as a safety margin.
func (t *TokenPair) Valid(now time.Time) bool {
	return oauth.IsTokenValid(t.Bearer(), oauth.TokenRefreshThreshold, now)
}
