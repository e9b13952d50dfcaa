package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// DefaultHTTPTimeout is the default timeout for discovery requests.
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultMetadataCacheTTL is the default TTL for cached metadata.
	DefaultMetadataCacheTTL = 30 * time.Minute
)

type metadataCacheEntry struct {
	metadata  *Metadata
	fetchedAt time.Time
}

// Discoverer resolves authority URLs to their OpenID Connect metadata.
type Discoverer struct {
	httpClient *http.Client
	logger     *slog.Logger

	metadataMu    sync.RWMutex
	metadataCache map[string]*metadataCacheEntry
	metadataTTL   time.Duration

	// deduplicates concurrent fetches for the same authority
	metadataGroup singleflight.Group
}

// DiscovererOption configures a Discoverer.
type DiscovererOption func(*Discoverer)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) DiscovererOption {
	return func(d *Discoverer) {
		d.httpClient = httpClient
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) DiscovererOption {
	return func(d *Discoverer) {
		d.logger = logger
	}
}

// WithMetadataCacheTTL sets the metadata cache TTL.
func WithMetadataCacheTTL(ttl time.Duration) DiscovererOption {
	return func(d *Discoverer) {
		d.metadataTTL = ttl
	}
}

// NewDiscoverer creates a Discoverer.
func NewDiscoverer(opts ...DiscovererOption) *Discoverer {
	d := &Discoverer{
		httpClient:    &http.Client{Timeout: DefaultHTTPTimeout},
		logger:        slog.Default(),
		metadataCache: make(map[string]*metadataCacheEntry),
		metadataTTL:   DefaultMetadataCacheTTL,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Discover fetches the metadata for an authority. B2C user-flow authorities
// publish it under /v2.0/.well-known/openid-configuration, generic OIDC
// providers under /.well-known/openid-configuration; RFC 8414
// /.well-known/oauth-authorization-server is tried last.
//
// Results are cached with a TTL.
func (d *Discoverer) Discover(ctx context.Context, authority string) (*Metadata, error) {
	authority = strings.TrimSuffix(authority, "/")

	if m, ok := d.cached(authority); ok {
		return m, nil
	}

	result, err, _ := d.metadataGroup.Do(authority, func() (interface{}, error) {
		if m, ok := d.cached(authority); ok {
			return m, nil
		}
		return d.doDiscover(ctx, authority)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Metadata), nil
}

func (d *Discoverer) cached(authority string) (*Metadata, bool) {
	d.metadataMu.RLock()
	defer d.metadataMu.RUnlock()
	entry, ok := d.metadataCache[authority]
	if !ok || time.Since(entry.fetchedAt) >= d.metadataTTL {
		return nil, false
	}
	return entry.metadata, true
}

func (d *Discoverer) doDiscover(ctx context.Context, authority string) (*Metadata, error) {
	candidates := []string{
		authority + "/v2.0/.well-known/openid-configuration",
		authority + "/.well-known/openid-configuration",
		authority + "/.well-known/oauth-authorization-server",
	}

	var lastErr error
	for _, candidate := range candidates {
		metadata, err := d.fetchMetadata(ctx, candidate)
		if err == nil {
			err = metadata.Validate()
		}
		if err == nil {
			d.cacheMetadata(authority, metadata)
			return metadata, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		d.logger.Debug("Metadata fetch failed, trying next location",
			"url", candidate,
			"error", err)
		lastErr = err
	}

	return nil, fmt.Errorf("failed to discover metadata for %s: %w", authority, lastErr)
}

func (d *Discoverer) fetchMetadata(ctx context.Context, metadataURL string) (*Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metadata request failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var metadata Metadata
	if err := json.Unmarshal(body, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return &metadata, nil
}

func (d *Discoverer) cacheMetadata(authority string, metadata *Metadata) {
	d.metadataMu.Lock()
	d.metadataCache[authority] = &metadataCacheEntry{
		metadata:  metadata,
		fetchedAt: time.Now(),
	}
	d.metadataMu.Unlock()

	d.logger.Debug("Cached OIDC metadata",
		"authority", authority,
		"issuer", metadata.Issuer,
		"token_endpoint", metadata.TokenEndpoint)
}

// ClearCache drops all cached metadata.
func (d *Discoverer) ClearCache() {
	d.metadataMu.Lock()
	d.metadataCache = make(map[string]*metadataCacheEntry)
	d.metadataMu.Unlock()
}
