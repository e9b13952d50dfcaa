package identity

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"shopauth/internal/tokenstore"
	"shopauth/pkg/auth"
	"shopauth/pkg/logging"
	"shopauth/pkg/oauth"
)

// defaultPrompt makes the provider show the account picker on every login.
const defaultPrompt = "select_account"

// AuthResult is the outcome of a successful token operation.
type AuthResult struct {
	Account   *auth.Account
	Tokens    *auth.TokenPair
	Method    auth.AuthMethod
	ExpiresAt time.Time
	Scopes    []string
	// FromCache is set when the tokens were served without contacting the provider.
	FromCache bool
}

// LoginRequest starts an interactive login.
type LoginRequest struct {
	Method    auth.AuthMethod
	Scopes    []string
	Prompt    string
	LoginHint string
}

// SilentRequest asks for tokens without user interaction.
type SilentRequest struct {
	Account      *auth.Account
	Scopes       []string
	ForceRefresh bool
}

// LogoutRequest ends the session at the provider.
type LogoutRequest struct {
	Account               *auth.Account
	PostLogoutRedirectURI string
}

// LoginRedirect records a pending login and navigates to the authorization
// endpoint of the user flow serving req.Method.
func (c *Client) LoginRedirect(ctx context.Context, req LoginRequest) error {
	if !c.IsReady() {
		return ErrNotInitialized
	}

	authorityURL := c.cfg.AuthorityFor(req.Method)
	if authorityURL == "" {
		return ErrMissingAuthority
	}
	a, err := c.resolvedAuthority(ctx, authorityURL)
	if err != nil {
		return err
	}

	state, err := oauth.GenerateState()
	if err != nil {
		return err
	}
	nonce, err := oauth.GenerateNonce()
	if err != nil {
		return err
	}

	scopes := c.scopes(req.Scopes)
	prompt := req.Prompt
	if prompt == "" {
		prompt = defaultPrompt
	}

	pending := &pendingLogin{
		State:       state,
		Nonce:       nonce,
		Authority:   authorityURL,
		RedirectURI: c.cfg.RedirectURL,
		Method:      req.Method,
		Scopes:      scopes,
		CreatedAt:   c.now(),
	}
	opts := []oauth2.AuthCodeOption{
		oidc.Nonce(nonce),
		oauth2.SetAuthURLParam("prompt", prompt),
	}
	if req.LoginHint != "" {
		opts = append(opts, oauth2.SetAuthURLParam("login_hint", req.LoginHint))
	}
	if a.metadata.SupportsPKCE() {
		pkce := oauth.GeneratePKCE()
		pending.CodeVerifier = pkce.CodeVerifier
		opts = append(opts, pkce.AuthCodeOptions()...)
	}

	if err := c.store.SaveJSON(ctx, tokenstore.KeyPendingLogin, pending); err != nil {
		return err
	}

	conf := *a.oauth2
	conf.Scopes = scopes
	authURL := conf.AuthCodeURL(state, opts...)

	logging.Debug("Identity", "Redirecting to %s for %s login", a.metadata.AuthorizationEndpoint, req.Method)
	if err := c.nav.Navigate(ctx, authURL); err != nil {
		_ = c.store.Delete(ctx, tokenstore.KeyPendingLogin)
		return err
	}
	return nil
}

// CompleteRedirect processes the URL the provider redirected back to. It
// returns nil, nil when the URL carries no authorization response or no
// login is pending. The pending login is consumed before the code exchange,
// so a callback URL can only be redeemed once.
func (c *Client) CompleteRedirect(ctx context.Context, callbackURL string) (*AuthResult, error) {
	if !c.IsReady() {
		return nil, ErrNotInitialized
	}

	params, err := responseParams(callbackURL)
	if err != nil {
		return nil, err
	}
	code, errCode := params.Get("code"), params.Get("error")
	if code == "" && errCode == "" {
		return nil, nil
	}

	pending, err := c.loadPending(ctx)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		if errCode != "" {
			return nil, FromCallback(errCode, params.Get("error_description"))
		}
		logging.Debug("Identity", "Ignoring authorization response with no pending login")
		return nil, nil
	}
	if err := c.store.Delete(ctx, tokenstore.KeyPendingLogin); err != nil {
		return nil, err
	}

	if params.Get("state") != pending.State {
		return nil, &ProviderError{Kind: KindStateMismatch, Description: "state parameter does not match the pending login"}
	}
	if errCode != "" {
		return nil, FromCallback(errCode, params.Get("error_description"))
	}

	a, err := c.resolvedAuthority(ctx, pending.Authority)
	if err != nil {
		return nil, err
	}

	var opts []oauth2.AuthCodeOption
	if pending.CodeVerifier != "" {
		opts = append(opts, oauth2.VerifierOption(pending.CodeVerifier))
	}
	tok, err := a.oauth2.Exchange(c.httpContext(ctx), code, opts...)
	if err != nil {
		return nil, Classify(err)
	}

	result, err := c.completeTokens(ctx, a, tok, pending.Nonce, pending.Method, pending.Scopes, nil)
	if err != nil {
		return nil, err
	}
	logging.Info("Identity", "Login completed for %s", result.Account.Username)
	return result, nil
}

// responseParams returns the authorization response parameters from the
// query, or from the fragment when the fragment response mode was used.
func responseParams(callbackURL string) (url.Values, error) {
	u, err := url.Parse(callbackURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	if q.Get("code") == "" && q.Get("error") == "" && u.Fragment != "" {
		if fq, err := url.ParseQuery(u.Fragment); err == nil {
			return fq, nil
		}
	}
	return q, nil
}

// Accounts returns the accounts known to the provider cache: zero or one.
func (c *Client) Accounts(ctx context.Context) ([]*auth.Account, error) {
	entry, err := c.loadCache(ctx)
	if err != nil || entry == nil {
		return nil, err
	}
	return []*auth.Account{entry.Account}, nil
}

// AcquireTokenSilent returns tokens for the cached account, redeeming the
// refresh token when the cached tokens are near expiry or a refresh is forced.
func (c *Client) AcquireTokenSilent(ctx context.Context, req SilentRequest) (*AuthResult, error) {
	if !c.IsReady() {
		return nil, ErrNotInitialized
	}

	entry, err := c.loadCache(ctx)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, &ProviderError{Kind: KindInteractionRequired, Code: "no_account_error", Description: "no signed-in account"}
	}
	if req.Account.Valid() && req.Account.HomeAccountID != entry.Account.HomeAccountID {
		return nil, &ProviderError{Kind: KindInteractionRequired, Code: "no_account_error", Description: "account is not signed in"}
	}

	tokens := entry.tokens()
	if !req.ForceRefresh && tokens.Valid(c.now()) {
		return &AuthResult{
			Account:   entry.Account,
			Tokens:    tokens,
			Method:    entry.Method,
			ExpiresAt: entry.ExpiresAt,
			Scopes:    entry.Scopes,
			FromCache: true,
		}, nil
	}
	if entry.RefreshToken == "" {
		return nil, &ProviderError{Kind: KindInteractionRequired, Code: "no_tokens_found", Description: "no refresh token cached"}
	}

	a, err := c.resolvedAuthority(ctx, entry.Authority)
	if err != nil {
		return nil, err
	}

	tok, err := a.oauth2.TokenSource(c.httpContext(ctx), &oauth2.Token{RefreshToken: entry.RefreshToken}).Token()
	if err != nil {
		pe := Classify(err)
		logging.Warn("Identity", "Silent token renewal failed: %s", pe.Kind)
		return nil, pe
	}

	logging.Debug("Identity", "Renewed tokens for %s", entry.Account.Username)
	return c.completeTokens(ctx, a, tok, "", entry.Method, entry.Scopes, entry)
}

// completeTokens verifies a token response, caches it and builds the result.
// previous is the cache entry being renewed, or nil for a fresh login.
func (c *Client) completeTokens(ctx context.Context, a *authority, tok *oauth2.Token, nonce string, method auth.AuthMethod, scopes []string, previous *cacheEntry) (*AuthResult, error) {
	rawID, _ := tok.Extra("id_token").(string)

	var account *auth.Account
	switch {
	case rawID != "":
		idt, err := a.verifier.Verify(ctx, rawID)
		if err != nil {
			return nil, &ProviderError{Kind: KindUnknown, Description: "ID token verification failed", Err: err}
		}
		if nonce != "" && idt.Nonce != nonce {
			return nil, &ProviderError{Kind: KindStateMismatch, Description: "ID token nonce does not match the pending login"}
		}
		var claims map[string]interface{}
		if err := idt.Claims(&claims); err != nil {
			return nil, &ProviderError{Kind: KindUnknown, Description: "ID token claims are unreadable", Err: err}
		}
		account = auth.AccountFromClaims(claims)
	case previous != nil:
		rawID = previous.IDToken
		account = previous.Account
	default:
		return nil, &ProviderError{Kind: KindUnknown, Description: "token response carries no ID token"}
	}
	if !account.Valid() {
		return nil, &ProviderError{Kind: KindUnknown, Description: "ID token identifies no account"}
	}
	if previous != nil && previous.Account.HomeAccountID != account.HomeAccountID {
		return nil, &ProviderError{Kind: KindInteractionRequired, Code: "no_account_error", Description: "renewed tokens belong to a different account"}
	}

	if m := auth.DetermineAuthMethod(account); m.Valid() {
		method = m
	}

	tokens := &auth.TokenPair{AccessToken: tok.AccessToken, IDToken: rawID}
	expiresAt := tokens.ExpiresAt()
	if expiresAt.IsZero() {
		expiresAt = tok.Expiry
	}

	refreshToken := tok.RefreshToken
	if refreshToken == "" && previous != nil {
		refreshToken = previous.RefreshToken
	}

	entry := &cacheEntry{
		Account:      account,
		Authority:    a.url,
		Method:       method,
		RefreshToken: refreshToken,
		AccessToken:  tokens.AccessToken,
		IDToken:      tokens.IDToken,
		ExpiresAt:    expiresAt,
		Scopes:       scopes,
	}
	if err := c.saveCache(ctx, entry); err != nil {
		return nil, err
	}

	return &AuthResult{
		Account:   account,
		Tokens:    tokens,
		Method:    method,
		ExpiresAt: expiresAt,
		Scopes:    scopes,
	}, nil
}

// LogoutRedirect drops the provider cache and navigates to the end-session
// endpoint of the authority the account signed in through. The cache is
// removed even when the navigation fails.
func (c *Client) LogoutRedirect(ctx context.Context, req LogoutRequest) error {
	entry, loadErr := c.loadCache(ctx)
	if loadErr != nil {
		logging.Warn("Identity", "Provider cache unreadable during logout: %v", loadErr)
	}
	var errs []error
	for _, key := range []string{tokenstore.KeyProviderCache, tokenstore.KeyPendingLogin} {
		if err := c.store.Delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	if !c.IsReady() {
		return ErrNotInitialized
	}

	postLogout := req.PostLogoutRedirectURI
	if postLogout == "" {
		postLogout = c.cfg.PostLogoutRedirectURL
	}

	authorityURL := c.cfg.Authority
	if entry != nil && entry.Authority != "" {
		authorityURL = entry.Authority
	}
	if authorityURL == "" {
		authorityURL = c.cfg.AuthorityPhone
	}
	a, err := c.resolvedAuthority(ctx, authorityURL)
	if err != nil {
		return err
	}

	if a.metadata.EndSessionEndpoint == "" {
		if postLogout == "" {
			return nil
		}
		return c.nav.Navigate(ctx, postLogout)
	}

	endSession, err := url.Parse(a.metadata.EndSessionEndpoint)
	if err != nil {
		return &ProviderError{Kind: KindEndpointsResolution, Description: "invalid end_session_endpoint", Err: err}
	}
	q := endSession.Query()
	if postLogout != "" {
		q.Set("post_logout_redirect_uri", postLogout)
	}
	if entry != nil && entry.IDToken != "" {
		q.Set("id_token_hint", entry.IDToken)
	}
	endSession.RawQuery = q.Encode()

	logging.Debug("Identity", "Redirecting to end session endpoint %s", a.metadata.EndSessionEndpoint)
	return c.nav.Navigate(ctx, endSession.String())
}
