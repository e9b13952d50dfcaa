package mock

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// B2CVippsFlow and B2COTPFlow are the user flows served by default.
	B2CVippsFlow = "B2C_1_vipps"
	B2COTPFlow   = "B2C_1_otp"

	signingKeyID = "mock-b2c-key"
)

// B2CUser is the identity the mock provider signs in.
type B2CUser struct {
	ObjectID string
	Name     string
	Email    string
	Phone    string
}

// B2CServerConfig configures the mock Azure AD B2C tenant.
type B2CServerConfig struct {
	// ClientID is the expected client ID; it is also the ID token audience.
	ClientID string

	// Tenant is the first path segment of every authority.
	Tenant string

	// TenantID is issued as the tid claim and is part of the issuer.
	TenantID string

	User B2CUser

	// TokenLifetime is how long access and ID tokens remain valid.
	TokenLifetime time.Duration

	// Clock stamps iat and exp. Defaults to RealClock.
	Clock Clock

	// OmitEndSession removes end_session_endpoint from discovery.
	OmitEndSession bool
}

// B2CServer is a mock Azure AD B2C tenant serving discovery, authorize,
// token, logout and JWKS endpoints for any user flow. ID and access tokens
// are RS256 JWTs signed with a key published on the JWKS endpoint.
type B2CServer struct {
	config B2CServerConfig
	server *httptest.Server
	key    *rsa.PrivateKey
	clock  Clock

	mu            sync.Mutex
	authCodes     map[string]*b2cCode
	refreshTokens map[string]*b2cGrant
	tokenRequests map[string]int
	discoveries   int
	failToken     *b2cFailure
	failDiscovery bool
}

type b2cCode struct {
	flow          string
	clientID      string
	redirectURI   string
	scope         string
	nonce         string
	codeChallenge string
	method        string
}

type b2cGrant struct {
	flow  string
	scope string
}

type b2cFailure struct {
	status      int
	code        string
	description string
}

// NewB2CServer starts a mock tenant. Close it when done.
func NewB2CServer(config B2CServerConfig) *B2CServer {
	if config.ClientID == "" {
		config.ClientID = "test-client"
	}
	if config.Tenant == "" {
		config.Tenant = "shoptest.onmicrosoft.com"
	}
	if config.TenantID == "" {
		config.TenantID = "tenant-0001"
	}
	if config.TokenLifetime == 0 {
		config.TokenLifetime = time.Hour
	}
	if config.User.ObjectID == "" {
		config.User = B2CUser{ObjectID: "user-0001", Name: "Kari Nordmann", Email: "kari@example.com"}
	}
	clock := config.Clock
	if clock == nil {
		clock = RealClock{}
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(fmt.Errorf("generate signing key: %w", err))
	}

	s := &B2CServer{
		config:        config,
		key:           key,
		clock:         clock,
		authCodes:     make(map[string]*b2cCode),
		refreshTokens: make(map[string]*b2cGrant),
		tokenRequests: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{tenant}/{flow}/v2.0/.well-known/openid-configuration", s.handleMetadata)
	mux.HandleFunc("GET /{tenant}/{flow}/oauth2/v2.0/authorize", s.handleAuthorize)
	mux.HandleFunc("POST /{tenant}/{flow}/oauth2/v2.0/token", s.handleToken)
	mux.HandleFunc("GET /{tenant}/{flow}/oauth2/v2.0/logout", s.handleLogout)
	mux.HandleFunc("GET /{tenant}/{flow}/discovery/v2.0/keys", s.handleJWKS)
	s.server = httptest.NewServer(mux)
	return s
}

// Close shuts the server down.
func (s *B2CServer) Close() {
	s.server.Close()
}

// URL is the base URL of the server.
func (s *B2CServer) URL() string {
	return s.server.URL
}

// Client returns an HTTP client for the server.
func (s *B2CServer) Client() *http.Client {
	return s.server.Client()
}

// ClientID returns the client ID the server expects.
func (s *B2CServer) ClientID() string {
	return s.config.ClientID
}

// Authority returns the authority URL of a user flow.
func (s *B2CServer) Authority(flow string) string {
	return s.server.URL + "/" + s.config.Tenant + "/" + flow
}

// Issuer returns the iss claim of issued tokens.
func (s *B2CServer) Issuer() string {
	return s.server.URL + "/" + s.config.TenantID + "/v2.0/"
}

// HomeAccountID returns the home account ID of the signed-in user.
func (s *B2CServer) HomeAccountID() string {
	return s.config.User.ObjectID + "." + s.config.TenantID
}

// TokenRequests returns how many token requests used the grant type.
func (s *B2CServer) TokenRequests(grantType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenRequests[grantType]
}

// Discoveries returns how many discovery documents were served.
func (s *B2CServer) Discoveries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.discoveries
}

// FailTokenRequests makes the token endpoint answer every request with an
// OAuth error until ClearFailures is called.
func (s *B2CServer) FailTokenRequests(status int, code, description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failToken = &b2cFailure{status: status, code: code, description: description}
}

// FailDiscovery makes discovery answer 503 until ClearFailures is called.
func (s *B2CServer) FailDiscovery() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failDiscovery = true
}

// ClearFailures restores normal behavior.
func (s *B2CServer) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failToken = nil
	s.failDiscovery = false
}

// RevokeRefreshTokens invalidates every refresh token issued so far.
func (s *B2CServer) RevokeRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshTokens = make(map[string]*b2cGrant)
}

// Approve simulates the user completing the sign-in page for an
// authorization URL and returns the redirect URL the browser would follow.
func (s *B2CServer) Approve(authURL string) (string, error) {
	u, err := url.Parse(authURL)
	if err != nil {
		return "", err
	}
	flow, err := s.flowFromPath(u.Path)
	if err != nil {
		return "", err
	}
	return s.authorize(flow, u.Query())
}

// Cancel simulates the user cancelling the sign-in page.
func (s *B2CServer) Cancel(authURL string) (string, error) {
	u, err := url.Parse(authURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	redirect, err := url.Parse(q.Get("redirect_uri"))
	if err != nil {
		return "", err
	}
	rq := redirect.Query()
	rq.Set("error", "access_denied")
	rq.Set("error_description", "AADB2C90091: The user has cancelled entering self-asserted information.")
	rq.Set("state", q.Get("state"))
	redirect.RawQuery = rq.Encode()
	return redirect.String(), nil
}

func (s *B2CServer) flowFromPath(path string) (string, error) {
	prefix := "/" + s.config.Tenant + "/"
	rest, ok := strings.CutPrefix(path, prefix)
	if !ok {
		return "", fmt.Errorf("path %s is not served by this tenant", path)
	}
	flow, _, _ := strings.Cut(rest, "/")
	return flow, nil
}

func (s *B2CServer) authorize(flow string, q url.Values) (string, error) {
	if q.Get("response_type") != "code" {
		return "", fmt.Errorf("unsupported response_type %q", q.Get("response_type"))
	}
	if q.Get("client_id") != s.config.ClientID {
		return "", fmt.Errorf("unknown client_id %q", q.Get("client_id"))
	}
	redirect, err := url.Parse(q.Get("redirect_uri"))
	if err != nil || q.Get("redirect_uri") == "" {
		return "", fmt.Errorf("invalid redirect_uri %q", q.Get("redirect_uri"))
	}

	code := generateOpaqueToken()
	s.mu.Lock()
	s.authCodes[code] = &b2cCode{
		flow:          flow,
		clientID:      q.Get("client_id"),
		redirectURI:   q.Get("redirect_uri"),
		scope:         q.Get("scope"),
		nonce:         q.Get("nonce"),
		codeChallenge: q.Get("code_challenge"),
		method:        q.Get("code_challenge_method"),
	}
	s.mu.Unlock()

	rq := redirect.Query()
	rq.Set("code", code)
	if state := q.Get("state"); state != "" {
		rq.Set("state", state)
	}
	redirect.RawQuery = rq.Encode()
	return redirect.String(), nil
}

func (s *B2CServer) handleMetadata(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	fail := s.failDiscovery
	if !fail {
		s.discoveries++
	}
	s.mu.Unlock()
	if fail {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	authority := s.Authority(r.PathValue("flow"))
	metadata := map[string]interface{}{
		"issuer":                                s.Issuer(),
		"authorization_endpoint":                authority + "/oauth2/v2.0/authorize",
		"token_endpoint":                        authority + "/oauth2/v2.0/token",
		"jwks_uri":                              authority + "/discovery/v2.0/keys",
		"response_types_supported":              []string{"code", "code id_token", "id_token"},
		"scopes_supported":                      []string{"openid", "offline_access"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
		"token_endpoint_auth_methods_supported": []string{"client_secret_post", "client_secret_basic"},
	}
	if !s.config.OmitEndSession {
		metadata["end_session_endpoint"] = authority + "/oauth2/v2.0/logout"
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(metadata)
}

func (s *B2CServer) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	redirect, err := s.authorize(r.PathValue("flow"), r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	http.Redirect(w, r, redirect, http.StatusFound)
}

func (s *B2CServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("post_logout_redirect_uri")
	if target == "" {
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *B2CServer) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	pub := s.key.PublicKey
	jwks := map[string]interface{}{
		"keys": []map[string]string{{
			"kty": "RSA",
			"use": "sig",
			"alg": "RS256",
			"kid": signingKeyID,
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(jwks)
}

func (s *B2CServer) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}
	grantType := r.FormValue("grant_type")

	s.mu.Lock()
	s.tokenRequests[grantType]++
	failure := s.failToken
	s.mu.Unlock()

	if failure != nil {
		writeOAuthError(w, failure.status, failure.code, failure.description)
		return
	}
	if r.FormValue("client_id") != s.config.ClientID {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_client", "unknown client")
		return
	}

	switch grantType {
	case "authorization_code":
		s.handleAuthCodeExchange(w, r)
	case "refresh_token":
		s.handleRefreshToken(w, r)
	default:
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", fmt.Sprintf("grant_type %s not supported", grantType))
	}
}

func (s *B2CServer) handleAuthCodeExchange(w http.ResponseWriter, r *http.Request) {
	code := r.FormValue("code")

	s.mu.Lock()
	entry, exists := s.authCodes[code]
	delete(s.authCodes, code)
	s.mu.Unlock()

	if !exists {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "AADB2C90080: The provided grant has expired.")
		return
	}
	if entry.redirectURI != r.FormValue("redirect_uri") {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "redirect_uri does not match the authorization request")
		return
	}
	if entry.codeChallenge != "" && !verifyPKCE(entry.codeChallenge, entry.method, r.FormValue("code_verifier")) {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "code_verifier verification failed")
		return
	}

	s.issueTokens(w, entry.flow, entry.scope, entry.nonce)
}

func (s *B2CServer) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	refreshToken := r.FormValue("refresh_token")

	s.mu.Lock()
	grant, exists := s.refreshTokens[refreshToken]
	delete(s.refreshTokens, refreshToken)
	s.mu.Unlock()

	if !exists {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "AADB2C90129: The provided grant has been revoked.")
		return
	}
	s.issueTokens(w, grant.flow, grant.scope, "")
}

func (s *B2CServer) issueTokens(w http.ResponseWriter, flow, scope, nonce string) {
	idToken, err := s.IDToken(flow, nonce)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	accessToken, err := s.AccessToken(flow, scope)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	refreshToken := generateOpaqueToken()
	s.mu.Lock()
	s.refreshTokens[refreshToken] = &b2cGrant{flow: flow, scope: scope}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.config.TokenLifetime.Seconds()),
		Scope:        scope,
		IDToken:      idToken,
	})
}

// TokenExpiry is the exp claim of a token issued now.
func (s *B2CServer) TokenExpiry() time.Time {
	return s.clock.Now().Add(s.config.TokenLifetime)
}

// IDToken signs an ID token for the configured user as issued by flow.
func (s *B2CServer) IDToken(flow, nonce string) (string, error) {
	now := s.clock.Now()
	user := s.config.User
	claims := jwt.MapClaims{
		"iss":       s.Issuer(),
		"sub":       user.ObjectID,
		"aud":       s.config.ClientID,
		"iat":       now.Unix(),
		"auth_time": now.Unix(),
		"exp":       now.Add(s.config.TokenLifetime).Unix(),
		"oid":       user.ObjectID,
		"tid":       s.config.TenantID,
		"name":      user.Name,
		"tfp":       flow,
		"ver":       "1.0",
	}
	if user.Email != "" {
		claims["emails"] = []string{user.Email}
	}
	if user.Phone != "" {
		claims["phone_number"] = user.Phone
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}
	return s.Sign(claims)
}

// AccessToken signs an access token for the configured user.
func (s *B2CServer) AccessToken(flow, scope string) (string, error) {
	now := s.clock.Now()
	return s.Sign(jwt.MapClaims{
		"iss": s.Issuer(),
		"sub": s.config.User.ObjectID,
		"aud": s.config.ClientID,
		"iat": now.Unix(),
		"exp": now.Add(s.config.TokenLifetime).Unix(),
		"scp": scope,
		"tfp": flow,
		"jti": generateOpaqueToken(),
	})
}

// Sign signs arbitrary claims with the published key.
func (s *B2CServer) Sign(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = signingKeyID
	return token.SignedString(s.key)
}

// TokenResponse is the token endpoint response body.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
}

func generateOpaqueToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Errorf("crypto/rand failed: %w", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

func writeOAuthError(w http.ResponseWriter, status int, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             code,
		"error_description": description,
	})
}

func verifyPKCE(challenge, method, verifier string) bool {
	if verifier == "" {
		return false
	}
	switch method {
	case "S256":
		hash := sha256.Sum256([]byte(verifier))
		return base64.RawURLEncoding.EncodeToString(hash[:]) == challenge
	case "plain", "":
		return verifier == challenge
	default:
		return false
	}
}
