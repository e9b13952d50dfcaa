package session

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopauth/internal/config"
	"shopauth/internal/identity"
	"shopauth/internal/navigation"
	"shopauth/internal/testing/mock"
	"shopauth/internal/tokenstore"
	"shopauth/pkg/auth"
)

// browserContext is one tab: its own store handle, navigator, identity
// client and session manager over a backend shared with other tabs.
type browserContext struct {
	store   *tokenstore.Store
	nav     *navigation.Recorder
	client  *identity.Client
	manager *Manager
}

func newBrowserContext(t *testing.T, srv *mock.B2CServer, clock *mock.MockClock, backend tokenstore.Backend) *browserContext {
	t.Helper()
	cfg := config.IdentityConfig{
		ClientID:              srv.ClientID(),
		Authority:             srv.Authority(mock.B2CVippsFlow),
		AuthorityPhone:        srv.Authority(mock.B2COTPFlow),
		RedirectURL:           "http://localhost:3000/auth/callback",
		PostLogoutRedirectURL: "http://localhost:3000/",
	}
	store := tokenstore.New(backend)
	nav := &navigation.Recorder{}
	client := identity.New(cfg, store, nav, identity.WithHTTPClient(srv.Client()), identity.WithClock(clock.Now))
	m := New(client, store, WithClock(clock.Now))
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(m.Stop)
	return &browserContext{store: store, nav: nav, client: client, manager: m}
}

func (b *browserContext) login(t *testing.T, srv *mock.B2CServer, method auth.AuthMethod) State {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, b.manager.Login(ctx, method))
	callback, err := srv.Approve(b.nav.Last())
	require.NoError(t, err)
	st, err := b.manager.CompleteLogin(ctx, callback)
	require.NoError(t, err)
	return st
}

func newTabs(t *testing.T) (*mock.B2CServer, *mock.MockClock, *browserContext, *browserContext) {
	t.Helper()
	clock := mock.NewMockClock(time.Now())
	srv := mock.NewB2CServer(mock.B2CServerConfig{Clock: clock})
	t.Cleanup(srv.Close)
	backend := tokenstore.NewMemoryBackend()
	return srv, clock, newBrowserContext(t, srv, clock, backend), newBrowserContext(t, srv, clock, backend)
}

func TestCrossContext_LoginPropagates(t *testing.T) {
	srv, _, a, b := newTabs(t)
	assert.Equal(t, StatusAnonymous, b.manager.State().Status)

	st := a.login(t, srv, auth.MethodOTP)
	require.Equal(t, StatusAuthenticated, st.Status)
	assert.Equal(t, auth.MethodOTP, st.Method)

	other := b.manager.State()
	assert.Equal(t, StatusAuthenticated, other.Status)
	assert.Equal(t, srv.HomeAccountID(), other.Account.HomeAccountID)
	assert.Equal(t, auth.MethodOTP, other.Method)
	assert.Equal(t, st.AccessToken(), other.AccessToken())
}

func TestCrossContext_LogoutPropagates(t *testing.T) {
	srv, _, a, b := newTabs(t)
	a.login(t, srv, auth.MethodVipps)
	require.Equal(t, StatusAuthenticated, b.manager.State().Status)

	require.NoError(t, b.manager.Logout(context.Background()))

	assert.Equal(t, StatusAnonymous, b.manager.State().Status)
	assert.Equal(t, StatusAnonymous, a.manager.State().Status)
	assert.True(t, b.nav.HasPrefix(srv.Authority(mock.B2CVippsFlow)))
}

func TestCrossContext_IgnoredDuringCallback(t *testing.T) {
	srv, _, a, b := newTabs(t)

	b.store.BeginCallback()
	a.login(t, srv, auth.MethodVipps)
	assert.Equal(t, StatusAnonymous, b.manager.State().Status)
	b.store.EndCallback()
}

func TestCrossContext_RemoteLogoutDoesNotInterruptLogin(t *testing.T) {
	srv, _, a, b := newTabs(t)
	a.login(t, srv, auth.MethodVipps)

	require.NoError(t, a.manager.Logout(context.Background()))
	require.Equal(t, StatusAnonymous, b.manager.State().Status)

	require.NoError(t, b.manager.Login(context.Background(), auth.MethodOTP))
	require.NoError(t, a.store.Clear(context.Background()))
	assert.Equal(t, StatusAuthenticating, b.manager.State().Status)
}

func TestSession_RefreshAfterRevocationSignsOut(t *testing.T) {
	srv, clock, a, b := newTabs(t)
	a.login(t, srv, auth.MethodVipps)

	clock.AdvanceUntil(srv.TokenExpiry(), 4*time.Minute)
	srv.RevokeRefreshTokens()

	_, err := a.manager.Refresh(context.Background(), false)
	assert.True(t, identity.IsKind(err, identity.KindInteractionRequired))
	assert.Equal(t, StatusAnonymous, a.manager.State().Status)
	assert.Equal(t, StatusAnonymous, b.manager.State().Status)

	var cached map[string]interface{}
	found, err := a.store.LoadJSON(context.Background(), tokenstore.KeyProviderCache, &cached)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSession_TransientRefreshFailureKeepsSession(t *testing.T) {
	srv, clock, a, _ := newTabs(t)
	st := a.login(t, srv, auth.MethodVipps)

	clock.AdvanceUntil(srv.TokenExpiry(), 4*time.Minute)
	srv.FailTokenRequests(http.StatusServiceUnavailable, "temporarily_unavailable", "maintenance")

	_, err := a.manager.Refresh(context.Background(), false)
	assert.True(t, identity.IsKind(err, identity.KindNetwork))
	assert.Equal(t, st, a.manager.State())

	stored, err := a.store.Read(context.Background())
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, st.Tokens.AccessToken, stored.Tokens.AccessToken)

	srv.ClearFailures()
	renewed, err := a.manager.Refresh(context.Background(), false)
	require.NoError(t, err)
	assert.NotEqual(t, st.Tokens.AccessToken, renewed.AccessToken)
}
