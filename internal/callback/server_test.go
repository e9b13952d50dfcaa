package callback

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopauth/internal/navigation"
	"shopauth/internal/session"
	"shopauth/pkg/auth"
)

func startServer(t *testing.T, completer Completer) (*Server, string) {
	t.Helper()
	h := NewHandler(fakeIdP{}, completer, &nopClearer{}, navigation.StaticLocale("en"))
	srv, err := NewServer(h, "http://127.0.0.1:0/auth")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	t.Cleanup(srv.Stop)

	url, err := srv.Start(ctx)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "http://127.0.0.1:"))
	require.True(t, strings.HasSuffix(url, "/auth"))
	assert.Equal(t, url, srv.URL())
	return srv, url
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestServer_HandlesOneCallback(t *testing.T) {
	var received string
	srv, url := startServer(t, completerFunc(func(_ context.Context, callbackURL string) (session.State, error) {
		received = callbackURL
		return session.State{
			Status:  session.StatusAuthenticated,
			Account: &auth.Account{HomeAccountID: "a.b", Username: "kari@example.com"},
			Tokens:  &auth.TokenPair{AccessToken: "at"},
			Method:  auth.MethodVipps,
		}, nil
	}))

	resp, body := get(t, url+"?code=abc&state=xyz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	assert.Contains(t, body, "Authentication Successful!")
	assert.Contains(t, body, "kari@example.com")
	assert.Contains(t, body, "url=/en")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	out, err := srv.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, "/en", out.RedirectTo)
	assert.Equal(t, url+"?code=abc&state=xyz", received)

	resp, body = get(t, url+"?code=again")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "Callback already processed")

	resp, body = get(t, strings.TrimSuffix(url, "/auth")+"/en")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "close this window")
}

func TestServer_RendersFailure(t *testing.T) {
	srv, url := startServer(t, completerFunc(func(context.Context, string) (session.State, error) {
		return session.State{Status: session.StatusError}, session.ErrNoAccount
	}))

	resp, body := get(t, url)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "Authentication Failed")
	assert.Contains(t, body, "Redirecting in 3 seconds")

	out, err := srv.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusError, out.Status)
}

func TestServer_WaitHonoursContext(t *testing.T) {
	srv, _ := startServer(t, completerFunc(func(context.Context, string) (session.State, error) {
		return session.State{}, nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := srv.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewServer_RejectsNonLocalRedirect(t *testing.T) {
	for _, redirect := range []string{
		"https://localhost:3000/auth",
		"http://shop.example.com/auth",
		"://bad",
	} {
		_, err := NewServer(nil, redirect)
		assert.Error(t, err, redirect)
	}

	_, err := NewServer(nil, "http://localhost:3000/auth")
	assert.NoError(t, err)
	_, err = NewServer(nil, "http://[::1]:3000/auth")
	assert.NoError(t, err)
}
