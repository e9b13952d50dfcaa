package oauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoExpiry is returned when a token carries no exp claim.
var ErrNoExpiry = errors.New("token has no exp claim")

// ParseUnverifiedClaims decodes the claims of a JWT without checking its
// signature. Use it only on tokens that were obtained directly from the
// token endpoint or already verified elsewhere.
func ParseUnverifiedClaims(raw string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("failed to decode token claims: %w", err)
	}
	return claims, nil
}

// ExpiresAt returns the exp claim of a JWT.
func ExpiresAt(raw string) (time.Time, error) {
	claims, err := ParseUnverifiedClaims(raw)
	if err != nil {
		return time.Time{}, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, err
	}
	if exp == nil {
		return time.Time{}, ErrNoExpiry
	}
	return exp.Time, nil
}

// IsTokenValid reports whether raw decodes as a JWT whose exp is later than
// now plus buffer. Opaque or undecodable tokens are treated as invalid.
func IsTokenValid(raw string, buffer time.Duration, now time.Time) bool {
	if raw == "" {
		return false
	}
	exp, err := ExpiresAt(raw)
	if err != nil {
		return false
	}
	return exp.After(now.Add(buffer))
}

// StringClaim returns a string-valued claim, or "" when absent or not a string.
func StringClaim(claims map[string]interface{}, name string) string {
	if v, ok := claims[name].(string); ok {
		return v
	}
	return ""
}

// StringsClaim returns a claim that may be encoded either as a single string
// or as an array of strings (amr, emails).
func StringsClaim(claims map[string]interface{}, name string) []string {
	switch v := claims[name].(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
