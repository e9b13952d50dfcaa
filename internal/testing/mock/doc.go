// Package mock provides test doubles for the identity provider.
//
// B2CServer is an in-process Azure AD B2C tenant. It serves the discovery
// document of every user flow under
//
//	/{tenant}/{flow}/v2.0/.well-known/openid-configuration
//
// together with the authorize, token, logout and JWKS endpoints the
// discovery document points at. Approve and Cancel stand in for the user
// on the sign-in page and return the redirect URL the browser would follow.
//
// Failure modes are toggled at runtime:
//
//	srv.FailTokenRequests(http.StatusBadRequest, "invalid_grant", "revoked")
//	srv.FailDiscovery()
//	srv.ClearFailures()
//
// MockClock makes token expiry controllable without waiting. Pass it as
// B2CServerConfig.Clock and move it with AdvanceUntil(srv.TokenExpiry(), d)
// to put issued tokens d before expiry.
package mock
