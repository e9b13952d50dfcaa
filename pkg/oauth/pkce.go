package oauth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/oauth2"
)

// randomBytes is the entropy used for state and nonce values.
// 32 bytes encodes to 43 base64url characters.
const randomBytes = 32

// GeneratePKCE creates a fresh S256 code verifier/challenge pair.
func GeneratePKCE() *PKCEChallenge {
	verifier := oauth2.GenerateVerifier()
	return &PKCEChallenge{
		CodeVerifier:        verifier,
		CodeChallenge:       oauth2.S256ChallengeFromVerifier(verifier),
		CodeChallengeMethod: "S256",
	}
}

// AuthCodeOptions returns the authorization request parameters for the challenge.
func (p *PKCEChallenge) AuthCodeOptions() []oauth2.AuthCodeOption {
	return []oauth2.AuthCodeOption{oauth2.S256ChallengeOption(p.CodeVerifier)}
}

// ExchangeOptions returns the token request parameters for the challenge.
func (p *PKCEChallenge) ExchangeOptions() []oauth2.AuthCodeOption {
	return []oauth2.AuthCodeOption{oauth2.VerifierOption(p.CodeVerifier)}
}

// GenerateState returns a random value binding an authorization response to
// the request that started it.
func GenerateState() (string, error) {
	b := make([]byte, randomBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateNonce returns a random value that the ID token must echo back.
func GenerateNonce() (string, error) {
	return GenerateState()
}
