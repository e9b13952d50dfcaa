package identity

import (
	"context"
	"time"

	"shopauth/internal/tokenstore"
	"shopauth/pkg/auth"
)

// cacheEntry is the provider's own persisted state for the signed-in
// account. It is kept separately from the session keys so silent renewal
// survives restarts.
type cacheEntry struct {
	Account   *auth.Account `json:"account"`
	Authority string        `json:"authority"`
	// Method is the user flow the account signed in through.
	Method       auth.AuthMethod `json:"method,omitempty"`
	RefreshToken string          `json:"refresh_token,omitempty"`
	AccessToken  string          `json:"access_token,omitempty"`
	IDToken      string          `json:"id_token,omitempty"`
	ExpiresAt    time.Time       `json:"expires_at,omitempty"`
	Scopes       []string        `json:"scopes,omitempty"`
}

// pendingLogin is the state of an authorization request that has not come
// back yet.
type pendingLogin struct {
	State        string          `json:"state"`
	Nonce        string          `json:"nonce"`
	CodeVerifier string          `json:"code_verifier"`
	Authority    string          `json:"authority"`
	RedirectURI  string          `json:"redirect_uri"`
	Method       auth.AuthMethod `json:"method,omitempty"`
	Scopes       []string        `json:"scopes"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (c *Client) loadCache(ctx context.Context) (*cacheEntry, error) {
	var entry cacheEntry
	found, err := c.store.LoadJSON(ctx, tokenstore.KeyProviderCache, &entry)
	if err != nil || !found || !entry.Account.Valid() {
		return nil, err
	}
	return &entry, nil
}

func (e *cacheEntry) tokens() *auth.TokenPair {
	return &auth.TokenPair{AccessToken: e.AccessToken, IDToken: e.IDToken}
}

func (c *Client) saveCache(ctx context.Context, entry *cacheEntry) error {
	return c.store.SaveJSON(ctx, tokenstore.KeyProviderCache, entry)
}

func (c *Client) loadPending(ctx context.Context) (*pendingLogin, error) {
	var p pendingLogin
	found, err := c.store.LoadJSON(ctx, tokenstore.KeyPendingLogin, &p)
	if err != nil || !found {
		return nil, err
	}
	if c.now().Sub(p.CreatedAt) > pendingLoginTTL {
		_ = c.store.Delete(ctx, tokenstore.KeyPendingLogin)
		return nil, nil
	}
	return &p, nil
}
