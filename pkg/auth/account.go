package auth

import (
	"net/url"
	"strings"

	"shopauth/pkg/oauth"
)

// Account is the identity returned by the provider for the signed-in user.
// It is never mutated after construction.
type Account struct {
	// HomeAccountID is <object id>.<tenant id>, unique across authorities.
	HomeAccountID  string `json:"homeAccountId"`
	LocalAccountID string `json:"localAccountId"`
	Username       string `json:"username"`
	Name           string `json:"name,omitempty"`
	TenantID       string `json:"tenantId,omitempty"`
	// Environment is the host of the issuer that authenticated the user.
	Environment string `json:"environment,omitempty"`

	// Claims used to classify the authentication method.
	Issuer   string   `json:"iss,omitempty"`
	AMR      []string `json:"amr,omitempty"`
	UserFlow string   `json:"tfp,omitempty"`
}

// AccountFromClaims builds an Account from verified ID token claims.
func AccountFromClaims(claims map[string]interface{}) *Account {
	oid := oauth.StringClaim(claims, "oid")
	if oid == "" {
		oid = oauth.StringClaim(claims, "sub")
	}
	tid := oauth.StringClaim(claims, "tid")

	homeID := oid
	if tid != "" {
		homeID = oid + "." + tid
	}

	issuer := oauth.StringClaim(claims, "iss")
	var environment string
	if u, err := url.Parse(issuer); err == nil {
		environment = u.Host
	}

	userFlow := oauth.StringClaim(claims, "tfp")
	if userFlow == "" {
		userFlow = oauth.StringClaim(claims, "acr")
	}

	return &Account{
		HomeAccountID:  homeID,
		LocalAccountID: oid,
		Username:       usernameFromClaims(claims),
		Name:           oauth.StringClaim(claims, "name"),
		TenantID:       tid,
		Environment:    environment,
		Issuer:         issuer,
		AMR:            oauth.StringsClaim(claims, "amr"),
		UserFlow:       userFlow,
	}
}

// B2C puts addresses in "emails"; phone sign-ups only carry a phone number.
func usernameFromClaims(claims map[string]interface{}) string {
	if emails := oauth.StringsClaim(claims, "emails"); len(emails) > 0 {
		return emails[0]
	}
	for _, name := range []string{"email", "preferred_username", "phone_number", "signInNames.phoneNumber"} {
		if v := oauth.StringClaim(claims, name); v != "" {
			return v
		}
	}
	return ""
}

// Valid reports whether the account carries an identifier.
func (a *Account) Valid() bool {
	return a != nil && strings.TrimSpace(a.HomeAccountID) != ""
}

// Profile returns the UserProfile persisted alongside the session.
func (a *Account) Profile() UserProfile {
	return UserProfile{
		ID:            a.LocalAccountID,
		Username:      a.Username,
		Name:          a.Name,
		Email:         a.Username,
		TenantID:      a.TenantID,
		HomeAccountID: a.HomeAccountID,
		Environment:   a.Environment,
	}
}

// UserProfile is the serialized account stored under auth_user.
type UserProfile struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	TenantID      string `json:"tenantId"`
	HomeAccountID string `json:"homeAccountId"`
	Environment   string `json:"environment"`
}

// Account rebuilds the account identity from a stored profile. Classification
// claims are not part of the profile; the stored AuthMethod is used instead.
func (p UserProfile) Account() *Account {
	return &Account{
		HomeAccountID:  p.HomeAccountID,
		LocalAccountID: p.ID,
		Username:       p.Username,
		Name:           p.Name,
		TenantID:       p.TenantID,
		Environment:    p.Environment,
	}
}
