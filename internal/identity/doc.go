// Package identity is the client of the Azure AD B2C identity provider.
//
// A Client is created once per process and passed to its consumers. It
// resolves the configured user-flow authorities on Initialize and signals
// readiness through Ready. Interactive login goes through LoginRedirect and
// CompleteRedirect (authorization code flow with PKCE, state and nonce);
// renewal goes through AcquireTokenSilent using the cached refresh token.
//
// Every provider failure is reported as a *ProviderError whose Kind is one of
// a closed set. Classify converts arbitrary errors into that shape.
package identity
