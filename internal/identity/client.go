package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"shopauth/internal/config"
	"shopauth/internal/navigation"
	"shopauth/internal/tokenstore"
	"shopauth/pkg/auth"
	"shopauth/pkg/logging"
	"shopauth/pkg/oauth"
)

const (
	// DefaultHTTPTimeout bounds every request to the identity provider.
	DefaultHTTPTimeout = 30 * time.Second

	// pendingLoginTTL is how long an unanswered login redirect stays valid.
	pendingLoginTTL = 10 * time.Minute
)

// authority is a resolved user-flow authority.
type authority struct {
	url      string
	metadata *oauth.Metadata
	verifier *oidc.IDTokenVerifier
	oauth2   *oauth2.Config
}

// Client owns the OIDC relationship with the identity provider. Create one
// per process at bootstrap and pass it to every consumer.
type Client struct {
	cfg        config.IdentityConfig
	store      *tokenstore.Store
	nav        navigation.Navigator
	httpClient *http.Client
	discoverer *oauth.Discoverer
	now        func() time.Time

	mu           sync.Mutex
	initializing bool
	initDone     chan struct{}
	initErr      error
	isReady      bool
	ready        chan struct{}
	authorities  map[string]*authority
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for discovery, token and JWKS requests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithClock overrides the time source used for expiry checks and ID token validation.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// New creates a Client. No network traffic happens until Initialize.
func New(cfg config.IdentityConfig, store *tokenstore.Store, nav navigation.Navigator, opts ...Option) *Client {
	c := &Client{
		cfg:         cfg,
		store:       store,
		nav:         nav,
		httpClient:  &http.Client{Timeout: DefaultHTTPTimeout},
		now:         time.Now,
		ready:       make(chan struct{}),
		authorities: make(map[string]*authority),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.discoverer = oauth.NewDiscoverer(
		oauth.WithHTTPClient(c.httpClient),
		oauth.WithLogger(logging.Logger()),
	)
	return c
}

// Ready is closed once Initialize has succeeded.
func (c *Client) Ready() <-chan struct{} {
	return c.ready
}

// IsReady reports whether Initialize has succeeded.
func (c *Client) IsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isReady
}

// SupportsMethod reports whether an authority is configured for method.
func (c *Client) SupportsMethod(method auth.AuthMethod) bool {
	return c.cfg.AuthorityFor(method) != ""
}

// Initialize resolves the configured authorities. It is idempotent:
// concurrent callers wait for the initialization already in progress, and a
// failed initialization can be retried.
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.isReady {
		c.mu.Unlock()
		return nil
	}
	if c.initializing {
		done := c.initDone
		c.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.isReady {
			return nil
		}
		return c.initErr
	}
	c.initializing = true
	c.initDone = make(chan struct{})
	done := c.initDone
	c.mu.Unlock()

	logging.Debug("Identity", "Initializing identity provider client")
	err := c.initialize(ctx)

	c.mu.Lock()
	c.initializing = false
	if err != nil {
		c.initErr = &InitError{Err: err}
		err = c.initErr
		logging.Error("Identity", err, "Identity provider initialization failed")
	} else {
		c.initErr = nil
		c.isReady = true
		close(c.ready)
		logging.Info("Identity", "Identity provider client ready")
	}
	close(done)
	c.mu.Unlock()
	return err
}

func (c *Client) initialize(ctx context.Context) error {
	if c.cfg.ClientID == "" {
		return errors.New("client id is not configured")
	}
	if c.cfg.RedirectURL == "" {
		return errors.New("redirect URL is not configured")
	}

	var configured []string
	for _, a := range []string{c.cfg.Authority, c.cfg.AuthorityPhone} {
		if a != "" && !slices.Contains(configured, a) {
			configured = append(configured, a)
		}
	}
	if len(configured) == 0 {
		return ErrMissingAuthority
	}

	for _, a := range configured {
		if _, err := c.resolve(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// resolve returns the resolved authority, discovering it on first use.
func (c *Client) resolve(ctx context.Context, authorityURL string) (*authority, error) {
	c.mu.Lock()
	a, ok := c.authorities[authorityURL]
	c.mu.Unlock()
	if ok {
		return a, nil
	}

	if err := c.checkKnownAuthority(authorityURL); err != nil {
		return nil, err
	}

	md, err := c.discoverer.Discover(ctx, authorityURL)
	if err != nil {
		return nil, err
	}

	algs := md.IDTokenSigningAlgValuesSupported
	if len(algs) == 0 {
		algs = []string{oidc.RS256}
	}
	// The B2C issuer differs from the authority URL, so the provider is
	// built from the discovered document rather than oidc.NewProvider.
	provider := (&oidc.ProviderConfig{
		IssuerURL:   md.Issuer,
		AuthURL:     md.AuthorizationEndpoint,
		TokenURL:    md.TokenEndpoint,
		UserInfoURL: md.UserinfoEndpoint,
		JWKSURL:     md.JwksURI,
		Algorithms:  algs,
	}).NewProvider(oidc.ClientContext(context.Background(), c.httpClient))

	a = &authority{
		url:      authorityURL,
		metadata: md,
		verifier: provider.Verifier(&oidc.Config{ClientID: c.cfg.ClientID, Now: c.now}),
		oauth2: &oauth2.Config{
			ClientID:    c.cfg.ClientID,
			RedirectURL: c.cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   md.AuthorizationEndpoint,
				TokenURL:  md.TokenEndpoint,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}

	c.mu.Lock()
	c.authorities[authorityURL] = a
	c.mu.Unlock()

	logging.Debug("Identity", "Resolved authority %s (issuer %s)", authorityURL, md.Issuer)
	return a, nil
}

func (c *Client) checkKnownAuthority(authorityURL string) error {
	known := c.cfg.KnownAuthorityHost()
	u, err := url.Parse(authorityURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid authority URL %q", authorityURL)
	}
	if known != "" && u.Host != known {
		return fmt.Errorf("authority host %s is not the known authority %s", u.Host, known)
	}
	return nil
}

// resolvedAuthority resolves an authority after initialization. Failures are
// reported as endpoint resolution errors, which callers treat as transient.
func (c *Client) resolvedAuthority(ctx context.Context, authorityURL string) (*authority, error) {
	a, err := c.resolve(ctx, authorityURL)
	if err != nil {
		return nil, &ProviderError{Kind: KindEndpointsResolution, Description: "authority " + authorityURL + " could not be resolved", Err: err}
	}
	return a, nil
}

// oidcScopes carry no resource; B2C only issues an access token when the
// application's own client ID or an API scope is requested.
var oidcScopes = []string{"openid", "profile", "email", "offline_access"}

func (c *Client) scopes(requested []string) []string {
	var scopes []string
	switch {
	case len(requested) > 0:
		scopes = requested
	case len(c.cfg.Scopes) > 0:
		scopes = c.cfg.Scopes
	default:
		scopes = oauth.DefaultScopes
	}

	for _, s := range scopes {
		if !slices.Contains(oidcScopes, s) {
			return scopes
		}
	}
	return append(slices.Clone(scopes), c.cfg.ClientID)
}

// httpContext makes x/oauth2 use the configured HTTP client.
func (c *Client) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}
