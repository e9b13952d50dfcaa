package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func metadataFor(base string) Metadata {
	return Metadata{
		Issuer:                base + "/issuer/v2.0/",
		AuthorizationEndpoint: base + "/oauth2/v2.0/authorize",
		TokenEndpoint:         base + "/oauth2/v2.0/token",
		JwksURI:               base + "/discovery/v2.0/keys",
		EndSessionEndpoint:    base + "/oauth2/v2.0/logout",
	}
}

func TestDiscover_B2CPath(t *testing.T) {
	var hits atomic.Int32
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tenant/B2C_1_vipps/v2.0/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(metadataFor(server.URL))
	}))
	defer server.Close()

	d := NewDiscoverer()
	m, err := d.Discover(context.Background(), server.URL+"/tenant/B2C_1_vipps/")
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/oauth2/v2.0/logout", m.EndSessionEndpoint)

	// second call is served from cache
	_, err = d.Discover(context.Background(), server.URL+"/tenant/B2C_1_vipps")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestDiscover_FallsBackToGenericOIDCPath(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(metadataFor(server.URL))
	}))
	defer server.Close()

	m, err := NewDiscoverer().Discover(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/oauth2/v2.0/token", m.TokenEndpoint)
}

func TestDiscover_IncompleteMetadata(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"issuer":"https://idp.example.com"}`))
	}))
	defer server.Close()

	_, err := NewDiscoverer().Discover(context.Background(), server.URL)
	require.Error(t, err)
	var metaErr *MetadataError
	require.ErrorAs(t, err, &metaErr)
	assert.Contains(t, metaErr.Missing, "token_endpoint")
}

func TestDiscover_DeduplicatesConcurrentFetches(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2.0/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		<-release
		_ = json.NewEncoder(w).Encode(metadataFor(server.URL))
	}))
	defer server.Close()

	d := NewDiscoverer()
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Discover(context.Background(), server.URL)
			assert.NoError(t, err)
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), hits.Load())
}

func TestDiscover_CacheExpiry(t *testing.T) {
	var hits atomic.Int32
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_ = json.NewEncoder(w).Encode(metadataFor(server.URL))
	}))
	defer server.Close()

	d := NewDiscoverer(WithMetadataCacheTTL(10 * time.Millisecond))
	_, err := d.Discover(context.Background(), server.URL)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	_, err = d.Discover(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())

	d.ClearCache()
	_, err = d.Discover(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())
}

func TestMetadata_SupportsPKCE(t *testing.T) {
	assert.True(t, (&Metadata{}).SupportsPKCE())
	assert.True(t, (&Metadata{CodeChallengeMethodsSupported: []string{"plain", "S256"}}).SupportsPKCE())
	assert.False(t, (&Metadata{CodeChallengeMethodsSupported: []string{"plain"}}).SupportsPKCE())
}
