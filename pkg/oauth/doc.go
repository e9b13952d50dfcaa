// Package oauth provides the OAuth 2.0 / OpenID Connect protocol helpers
// shared by the identity client and the API client.
//
// # Core Components
//
//   - Discoverer: authority metadata discovery with a TTL cache and
//     de-duplicated concurrent fetches
//   - PKCEChallenge: S256 code verifier/challenge generation (RFC 7636)
//   - GenerateState / GenerateNonce: request binding values
//   - ParseUnverifiedClaims / ExpiresAt / IsTokenValid: JWT claim decoding
//     for local expiry checks
//   - AuthChallenge: parsed WWW-Authenticate header information
package oauth
